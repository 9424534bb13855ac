// Package features turns a raw two-season game log into the engineered rows
// the regression models train on.
package features

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"hoopcast/nba"
	"hoopcast/utils"

	"gonum.org/v1/gonum/stat"
)

// RollingWindow is the trailing game count behind the rolling averages. The
// first RollingWindow-1 chronological games have no defined rolling value
// and never survive Build.
const RollingWindow = 5

// FeatureCount is the width of the predictor vector: three rolling
// averages, minutes, and three shooting ratios.
const FeatureCount = 7

type Game struct {
	Date    time.Time
	Matchup string
	Home    bool
	Min     float64
	Pts     float64
	Reb     float64
	Ast     float64
	Fgm     float64
	Fga     float64
	Fg3m    float64
	Fg3a    float64
	Ftm     float64
	Fta     float64
	Tov     float64
	Pf      float64
}

type Row struct {
	Game

	RollingPts float64
	RollingReb float64
	RollingAst float64

	AvgPts float64
	AvgReb float64
	AvgAst float64

	FgmPct  float64
	FtmPct  float64
	Fg3mPct float64
}

// Features returns the predictor vector for one game.
func (r Row) Features() []float64 {
	return []float64{r.RollingPts, r.RollingReb, r.RollingAst, r.Min, r.FgmPct, r.FtmPct, r.Fg3mPct}
}

// Build derives rolling and cumulative statistics from a game log. Rows are
// sorted ascending by date before anything is computed; any row left with an
// undefined derived value (early rolling-window games, zero-attempt shooting
// ratios) is dropped from the result.
func Build(log []nba.GameLogRow) ([]Row, error) {
	games := make([]Game, 0, len(log))
	for _, r := range log {
		// a row missing its date, matchup, or core box-score stats would
		// poison every cumulative statistic downstream of it
		if r.GameDate == nil || r.Matchup == nil || r.PTS == nil || r.REB == nil || r.AST == nil || r.MIN == nil {
			continue
		}
		date, err := parseGameDate(*r.GameDate)
		if err != nil {
			return nil, utils.ErrorWithTrace(err)
		}
		games = append(games, Game{
			Date:    date,
			Matchup: *r.Matchup,
			Home:    !strings.Contains(*r.Matchup, "@"),
			Min:     num(r.MIN),
			Pts:     num(r.PTS),
			Reb:     num(r.REB),
			Ast:     num(r.AST),
			Fgm:     num(r.FGM),
			Fga:     num(r.FGA),
			Fg3m:    num(r.FG3M),
			Fg3a:    num(r.FG3A),
			Ftm:     num(r.FTM),
			Fta:     num(r.FTA),
			Tov:     num(r.TOV),
			Pf:      num(r.PF),
		})
	}

	sort.Slice(games, func(i, j int) bool { return games[i].Date.Before(games[j].Date) })

	pts := make([]float64, len(games))
	reb := make([]float64, len(games))
	ast := make([]float64, len(games))
	for i, g := range games {
		pts[i], reb[i], ast[i] = g.Pts, g.Reb, g.Ast
	}

	rows := make([]Row, 0, len(games))
	for i, g := range games {
		row := Row{
			Game:       g,
			RollingPts: rollingMean(pts, i),
			RollingReb: rollingMean(reb, i),
			RollingAst: rollingMean(ast, i),
			AvgPts:     stat.Mean(pts[:i+1], nil),
			AvgReb:     stat.Mean(reb[:i+1], nil),
			AvgAst:     stat.Mean(ast[:i+1], nil),
			FgmPct:     ratio(g.Fgm, g.Fga),
			FtmPct:     ratio(g.Ftm, g.Fta),
			Fg3mPct:    ratio(g.Fg3m, g.Fg3a),
		}
		if defined(row) {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// Matrix flattens engineered rows into the design matrix the models expect.
func Matrix(rows []Row) [][]float64 {
	x := make([][]float64, len(rows))
	for i, r := range rows {
		x[i] = r.Features()
	}
	return x
}

// Targets extracts the response column for a prediction category.
func Targets(rows []Row, category string) ([]float64, error) {
	y := make([]float64, len(rows))
	for i, r := range rows {
		switch category {
		case "Points":
			y[i] = r.Pts
		case "Assists":
			y[i] = r.Ast
		case "Rebounds":
			y[i] = r.Reb
		default:
			return nil, utils.ErrorWithTrace(fmt.Errorf("unknown prediction category: %s", category))
		}
	}
	return y, nil
}

// MeanFeatures collapses all engineered rows into the single "average game"
// row the fitted model is evaluated on.
func MeanFeatures(rows []Row) []float64 {
	mean := make([]float64, FeatureCount)
	col := make([]float64, len(rows))
	for j := 0; j < FeatureCount; j++ {
		for i, r := range rows {
			col[i] = r.Features()[j]
		}
		mean[j] = stat.Mean(col, nil)
	}
	return mean
}

func num(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

func rollingMean(vals []float64, i int) float64 {
	if i < RollingWindow-1 {
		return math.NaN()
	}
	return stat.Mean(vals[i-RollingWindow+1:i+1], nil)
}

func ratio(made, attempted float64) float64 {
	if attempted == 0 {
		return math.NaN()
	}
	return made / attempted
}

func defined(r Row) bool {
	for _, v := range r.Features() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return !math.IsNaN(r.AvgPts) && !math.IsNaN(r.AvgReb) && !math.IsNaN(r.AvgAst)
}

// parseGameDate handles the provider's "Mon DD, YYYY" dates, which show up
// both title-cased ("Apr 09, 2024") and upper-cased ("APR 09, 2024").
func parseGameDate(s string) (time.Time, error) {
	fields := strings.Fields(s)
	if len(fields) == 3 && len(fields[0]) == 3 {
		month := strings.ToUpper(fields[0][:1]) + strings.ToLower(fields[0][1:])
		s = month + " " + fields[1] + " " + fields[2]
	}
	t, err := time.Parse("Jan 2, 2006", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable game date %q: %v", s, err)
	}
	return t, nil
}
