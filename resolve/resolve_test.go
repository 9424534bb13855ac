package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var candidates = []string{
	"LeBron James",
	"Stephen Curry",
	"Luka Doncic",
	"Nikola Jokic",
	"Jayson Tatum",
}

func TestExactMatch(t *testing.T) {
	match := BestMatch("LeBron James", candidates)
	require.NotNil(t, match)
	assert.Equal(t, "LeBron James", match.Name)
	assert.Equal(t, 100, match.Score)
	assert.False(t, match.LowConfidence)
}

func TestAccentedInputFindsFoldedCanonicalName(t *testing.T) {
	match := BestMatch("Luka Dončić", candidates)
	require.NotNil(t, match)
	assert.Equal(t, "Luka Doncic", match.Name)
	assert.Equal(t, 100, match.Score)
}

func TestTypoStillFindsBestCandidate(t *testing.T) {
	match := BestMatch("Lebron Jams", candidates)
	require.NotNil(t, match)
	assert.Equal(t, "LeBron James", match.Name)
}

func TestGibberishIsFlaggedLowConfidence(t *testing.T) {
	match := BestMatch("Qwxz Vbnm", candidates)
	require.NotNil(t, match)
	assert.True(t, match.LowConfidence, "score %d should be below %d", match.Score, ScoreThreshold)
}

func TestEmptyCandidateListAbstains(t *testing.T) {
	assert.Nil(t, BestMatch("LeBron James", nil))
	assert.Nil(t, BestMatch("LeBron James", []string{}))
}
