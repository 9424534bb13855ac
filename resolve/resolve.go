package resolve

import (
	"github.com/mozillazg/go-unidecode"
	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
)

// ScoreThreshold is the similarity score below which a match is flagged as
// low confidence. The match is still returned so callers can warn and
// proceed, which mirrors how roster names with odd formatting have always
// been handled.
const ScoreThreshold = 80

type Match struct {
	Name          string
	Score         int
	LowConfidence bool
}

// BestMatch fuzzy-matches a free-text player name against the canonical name
// list. Accented characters are folded first so "Luka Dončić" finds
// "Luka Doncic". Returns nil when there is nothing to match against.
func BestMatch(name string, candidates []string) *Match {
	if len(candidates) == 0 {
		return nil
	}
	folded := unidecode.Unidecode(name)
	pair, err := fuzzy.ExtractOne(folded, candidates)
	if err != nil || pair == nil {
		return nil
	}
	return &Match{
		Name:          pair.Match,
		Score:         pair.Score,
		LowConfidence: pair.Score < ScoreThreshold,
	}
}
