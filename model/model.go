// Package model provides the interchangeable regression strategies a
// prediction batch can fit per player: ordinary least squares, a degree-2
// polynomial expansion of the same, and gradient-boosted regression trees.
package model

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"hoopcast/utils"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// splitSeed keeps the 80/20 holdout split deterministic so reported error
// bounds are reproducible run to run.
const splitSeed = 42
const testFraction = 0.2

// Strategy is the uniform fit/predict contract all model kinds satisfy.
type Strategy interface {
	Fit(x [][]float64, y []float64) error
	Predict(features []float64) (float64, error)
}

// New returns the strategy for a model type as named in the UI.
func New(kind string) (Strategy, error) {
	switch kind {
	case "Linear Regression":
		return &LinearRegression{}, nil
	case "Polynomial Regression":
		return &PolynomialRegression{Degree: 2}, nil
	case "Boosted Trees":
		return NewBoostedTrees(), nil
	default:
		return nil, utils.ErrorWithTrace(fmt.Errorf("unknown model type: %s", kind))
	}
}

type Evaluation struct {
	MSE       float64
	TrainRows int
	TestRows  int
}

// RMSE is the error bound shown alongside a prediction.
func (e Evaluation) RMSE() float64 {
	return math.Sqrt(e.MSE)
}

// TrainEvaluate fits the strategy on a deterministic 80/20 split and reports
// mean-squared-error on the held-out fifth.
func TrainEvaluate(s Strategy, x [][]float64, y []float64) (*Evaluation, error) {
	if len(x) != len(y) {
		return nil, utils.ErrorWithTrace(fmt.Errorf("feature/target length mismatch: %d != %d", len(x), len(y)))
	}
	trainX, trainY, testX, testY, err := split(x, y)
	if err != nil {
		return nil, utils.ErrorWithTrace(err)
	}
	if err := s.Fit(trainX, trainY); err != nil {
		return nil, utils.ErrorWithTrace(err)
	}

	sqErrs := make([]float64, len(testX))
	for i := range testX {
		pred, err := s.Predict(testX[i])
		if err != nil {
			return nil, utils.ErrorWithTrace(err)
		}
		diff := pred - testY[i]
		sqErrs[i] = diff * diff
	}
	return &Evaluation{
		MSE:       stat.Mean(sqErrs, nil),
		TrainRows: len(trainX),
		TestRows:  len(testX),
	}, nil
}

func split(x [][]float64, y []float64) ([][]float64, []float64, [][]float64, []float64, error) {
	n := len(x)
	testN := int(math.Ceil(testFraction * float64(n)))
	if n-testN < 1 {
		return nil, nil, nil, nil, fmt.Errorf("not enough rows to split: %d", n)
	}

	rng := rand.New(rand.NewSource(splitSeed))
	perm := rng.Perm(n)

	testX := make([][]float64, 0, testN)
	testY := make([]float64, 0, testN)
	trainX := make([][]float64, 0, n-testN)
	trainY := make([]float64, 0, n-testN)
	for i, idx := range perm {
		if i < testN {
			testX = append(testX, x[idx])
			testY = append(testY, y[idx])
		} else {
			trainX = append(trainX, x[idx])
			trainY = append(trainY, y[idx])
		}
	}
	return trainX, trainY, testX, testY, nil
}

// LinearRegression is ordinary least squares with an intercept term.
type LinearRegression struct {
	coef []float64 // intercept first
}

func (m *LinearRegression) Fit(x [][]float64, y []float64) error {
	n := len(x)
	if n == 0 {
		return utils.ErrorWithTrace(fmt.Errorf("cannot fit on zero rows"))
	}
	d := len(x[0])

	a := mat.NewDense(n, d+1, nil)
	for i, row := range x {
		if len(row) != d {
			return utils.ErrorWithTrace(fmt.Errorf("ragged feature row: want %d values, got %d", d, len(row)))
		}
		a.Set(i, 0, 1)
		for j, v := range row {
			a.Set(i, j+1, v)
		}
	}
	b := mat.NewVecDense(n, y)

	var beta mat.VecDense
	if err := beta.SolveVec(a, b); err != nil {
		// a Condition error is a warning about ill-conditioning, the
		// solution is still usable
		if _, ok := err.(mat.Condition); !ok {
			return utils.ErrorWithTrace(err)
		}
	}

	m.coef = make([]float64, d+1)
	for i := range m.coef {
		m.coef[i] = beta.AtVec(i)
	}
	return nil
}

func (m *LinearRegression) Predict(features []float64) (float64, error) {
	if m.coef == nil {
		return 0, utils.ErrorWithTrace(fmt.Errorf("model is not fitted"))
	}
	if len(features)+1 != len(m.coef) {
		return 0, utils.ErrorWithTrace(fmt.Errorf("expected %d features, got %d", len(m.coef)-1, len(features)))
	}
	pred := m.coef[0]
	for i, v := range features {
		pred += m.coef[i+1] * v
	}
	return pred, nil
}

// PolynomialRegression expands the features to the given degree (squares and
// pairwise interactions for degree 2) and fits least squares on the result.
type PolynomialRegression struct {
	Degree int
	lin    LinearRegression
	width  int
}

func (m *PolynomialRegression) Fit(x [][]float64, y []float64) error {
	if m.Degree != 2 {
		return utils.ErrorWithTrace(fmt.Errorf("only degree 2 is supported, got %d", m.Degree))
	}
	if len(x) == 0 {
		return utils.ErrorWithTrace(fmt.Errorf("cannot fit on zero rows"))
	}
	m.width = len(x[0])
	expanded := make([][]float64, len(x))
	for i, row := range x {
		expanded[i] = expandDegree2(row)
	}
	return m.lin.Fit(expanded, y)
}

func (m *PolynomialRegression) Predict(features []float64) (float64, error) {
	if m.width == 0 {
		return 0, utils.ErrorWithTrace(fmt.Errorf("model is not fitted"))
	}
	if len(features) != m.width {
		return 0, utils.ErrorWithTrace(fmt.Errorf("expected %d features, got %d", m.width, len(features)))
	}
	return m.lin.Predict(expandDegree2(features))
}

func expandDegree2(row []float64) []float64 {
	d := len(row)
	out := make([]float64, 0, d+d*(d+1)/2)
	out = append(out, row...)
	for i := 0; i < d; i++ {
		for j := i; j < d; j++ {
			out = append(out, row[i]*row[j])
		}
	}
	return out
}

// BoostedTrees is a gradient-boosted ensemble of small regression trees fit
// on squared-error residuals.
type BoostedTrees struct {
	Rounds       int
	LearningRate float64
	MaxDepth     int
	MinLeaf      int

	bias  float64
	trees []*treeNode
}

func NewBoostedTrees() *BoostedTrees {
	return &BoostedTrees{
		Rounds:       50,
		LearningRate: 0.1,
		MaxDepth:     3,
		MinLeaf:      2,
	}
}

type treeNode struct {
	feature   int
	threshold float64
	value     float64
	left      *treeNode
	right     *treeNode
}

func (t *treeNode) eval(features []float64) float64 {
	if t.left == nil {
		return t.value
	}
	if features[t.feature] <= t.threshold {
		return t.left.eval(features)
	}
	return t.right.eval(features)
}

func (m *BoostedTrees) Fit(x [][]float64, y []float64) error {
	if len(x) == 0 {
		return utils.ErrorWithTrace(fmt.Errorf("cannot fit on zero rows"))
	}
	m.bias = stat.Mean(y, nil)
	m.trees = make([]*treeNode, 0, m.Rounds)

	residuals := make([]float64, len(y))
	for i, v := range y {
		residuals[i] = v - m.bias
	}

	idx := make([]int, len(x))
	for i := range idx {
		idx[i] = i
	}

	for round := 0; round < m.Rounds; round++ {
		tree := m.buildTree(x, residuals, idx, m.MaxDepth)
		m.trees = append(m.trees, tree)
		for i := range residuals {
			residuals[i] -= m.LearningRate * tree.eval(x[i])
		}
	}
	return nil
}

func (m *BoostedTrees) Predict(features []float64) (float64, error) {
	if m.trees == nil {
		return 0, utils.ErrorWithTrace(fmt.Errorf("model is not fitted"))
	}
	pred := m.bias
	for _, t := range m.trees {
		pred += m.LearningRate * t.eval(features)
	}
	return pred, nil
}

func (m *BoostedTrees) buildTree(x [][]float64, residuals []float64, idx []int, depth int) *treeNode {
	leaf := &treeNode{value: meanAt(residuals, idx)}
	if depth == 0 || len(idx) < 2*m.MinLeaf {
		return leaf
	}

	baseSSE := sseAt(residuals, idx)
	bestGain := 0.0
	bestFeature := -1
	bestThreshold := 0.0
	var bestLeft, bestRight []int

	d := len(x[idx[0]])
	for f := 0; f < d; f++ {
		thresholds := candidateThresholds(x, idx, f)
		for _, thr := range thresholds {
			left := make([]int, 0, len(idx))
			right := make([]int, 0, len(idx))
			for _, i := range idx {
				if x[i][f] <= thr {
					left = append(left, i)
				} else {
					right = append(right, i)
				}
			}
			if len(left) < m.MinLeaf || len(right) < m.MinLeaf {
				continue
			}
			gain := baseSSE - sseAt(residuals, left) - sseAt(residuals, right)
			if gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = thr
				bestLeft, bestRight = left, right
			}
		}
	}

	if bestFeature < 0 {
		return leaf
	}
	return &treeNode{
		feature:   bestFeature,
		threshold: bestThreshold,
		value:     leaf.value,
		left:      m.buildTree(x, residuals, bestLeft, depth-1),
		right:     m.buildTree(x, residuals, bestRight, depth-1),
	}
}

func candidateThresholds(x [][]float64, idx []int, feature int) []float64 {
	seen := map[float64]bool{}
	vals := make([]float64, 0, len(idx))
	for _, i := range idx {
		v := x[i][feature]
		if !seen[v] {
			seen[v] = true
			vals = append(vals, v)
		}
	}
	if len(vals) < 2 {
		return nil
	}
	sort.Float64s(vals)
	mids := make([]float64, 0, len(vals)-1)
	for i := 0; i+1 < len(vals); i++ {
		mids = append(mids, (vals[i]+vals[i+1])/2)
	}
	return mids
}

func meanAt(vals []float64, idx []int) float64 {
	sum := 0.0
	for _, i := range idx {
		sum += vals[i]
	}
	return sum / float64(len(idx))
}

func sseAt(vals []float64, idx []int) float64 {
	mean := meanAt(vals, idx)
	sse := 0.0
	for _, i := range idx {
		diff := vals[i] - mean
		sse += diff * diff
	}
	return sse
}
