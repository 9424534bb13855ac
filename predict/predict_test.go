package predict

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"hoopcast/db"
	"hoopcast/nba"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }
func str(v string) *string   { return &v }

// fakeLog builds n games for one season starting at the given date, most
// recent first, with points drifting so the models have something to fit.
func fakeLog(playerID, n int, start time.Time, basePts float64) []nba.GameLogRow {
	rows := make([]nba.GameLogRow, 0, n)
	for i := n; i >= 1; i-- {
		date := start.AddDate(0, 0, i-1)
		rows = append(rows, nba.GameLogRow{
			PlayerID: f64(float64(playerID)),
			GameID:   str(fmt.Sprintf("%d-%d", playerID, i)),
			GameDate: str(date.Format("Jan 2, 2006")),
			Matchup:  str("DAL vs. BOS"),
			MIN:      f64(32 + float64(i%4)),
			PTS:      f64(basePts + float64(i%7)),
			REB:      f64(6),
			AST:      f64(7),
			FGM:      f64(8),
			FGA:      f64(17),
			FG3M:     f64(2),
			FG3A:     f64(6),
			FTM:      f64(5),
			FTA:      f64(6),
			TOV:      f64(3),
			PF:       f64(2),
		})
	}
	return rows
}

type fakeProvider struct {
	players         []nba.CommonAllPlayer
	playersErr      error
	allPlayersCalls int
	rosters         map[int][]nba.RosterPlayer
	rosterErrs      map[int]error
	logs            map[int]map[string][]nba.GameLogRow
	logErrs         map[int]error
	gameLogCalls    int
}

func (f *fakeProvider) AllPlayers() ([]nba.CommonAllPlayer, error) {
	f.allPlayersCalls++
	return f.players, f.playersErr
}

func (f *fakeProvider) TeamRoster(teamID int, season string) ([]nba.RosterPlayer, error) {
	if err := f.rosterErrs[teamID]; err != nil {
		return nil, err
	}
	return f.rosters[teamID], nil
}

func (f *fakeProvider) PlayerGameLog(playerID int, season string) ([]nba.GameLogRow, error) {
	f.gameLogCalls++
	if err := f.logErrs[playerID]; err != nil {
		return nil, err
	}
	return f.logs[playerID][season], nil
}

type fakeStore struct {
	careerAvgs map[string]*float64
	cached     []db.GameLogEntry
}

func (f *fakeStore) CareerAvgVsOpponent(playerID int, opponent string) (*float64, error) {
	return f.careerAvgs[fmt.Sprintf("%d-%s", playerID, opponent)], nil
}

func (f *fakeStore) InsertGameLogs(entries []db.GameLogEntry) error {
	f.cached = append(f.cached, entries...)
	return nil
}

func allPlayer(id int, name string) nba.CommonAllPlayer {
	return nba.CommonAllPlayer{PersonID: f64(float64(id)), DisplayFirstLast: str(name)}
}

func rosterPlayer(name string) nba.RosterPlayer {
	return nba.RosterPlayer{PlayerName: str(name)}
}

var (
	mavs    = db.Team{ID: 1610612742, Abbreviation: "DAL", Name: "Dallas Mavericks"}
	celtics = db.Team{ID: 1610612738, Abbreviation: "BOS", Name: "Boston Celtics"}
)

func matchupProvider() *fakeProvider {
	currentStart := time.Date(2024, time.November, 1, 0, 0, 0, 0, time.UTC)
	previousStart := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	return &fakeProvider{
		players: []nba.CommonAllPlayer{
			allPlayer(77, "Luka Doncic"),
			allPlayer(202681, "Kyrie Irving"),
			allPlayer(999, "Rookie Benchguy"),
			allPlayer(1628369, "Jayson Tatum"),
		},
		rosters: map[int][]nba.RosterPlayer{
			mavs.ID: {
				rosterPlayer("Luka Doncic"),
				rosterPlayer("Rookie Benchguy"),
				rosterPlayer("Kyrie Irving"),
			},
			celtics.ID: {
				rosterPlayer("Jayson Tatum"),
			},
		},
		logs: map[int]map[string][]nba.GameLogRow{
			77: {
				"2024-25": fakeLog(77, 12, currentStart, 30),
				"2023-24": fakeLog(77, 10, previousStart, 32),
			},
			999: {
				"2024-25": fakeLog(999, 4, currentStart, 6),
			},
			1628369: {
				"2024-25": fakeLog(1628369, 11, currentStart, 27),
				"2023-24": fakeLog(1628369, 9, previousStart, 26),
			},
		},
		logErrs: map[int]error{
			202681: errors.New("connection reset"),
		},
	}
}

func TestRunAnalyzesBothSidesOfTheMatchup(t *testing.T) {
	store := &fakeStore{careerAvgs: map[string]*float64{"77-BOS": f64(31.5)}}
	engine := NewEngine(matchupProvider(), store)

	outlooks, err := engine.Run(Request{
		Home:      mavs,
		Away:      celtics,
		ModelType: "Boosted Trees",
		Category:  "Points",
	})
	require.NoError(t, err)
	require.Len(t, outlooks, 2)

	home, away := outlooks[0], outlooks[1]
	assert.Equal(t, "DAL", home.Team)
	assert.Equal(t, "BOS", home.Opponent)
	assert.Equal(t, "BOS", away.Team)
	assert.Equal(t, "DAL", away.Opponent)

	require.Len(t, home.Players, 3)
	require.Len(t, away.Players, 1)

	luka := home.Players[0]
	assert.Equal(t, 77, luka.PlayerID)
	assert.False(t, luka.Skipped())
	require.NotNil(t, luka.Predicted)
	require.NotNil(t, luka.RMSE)
	require.NotNil(t, luka.CareerAvg)
	assert.InDelta(t, 31.5, *luka.CareerAvg, 1e-9)

	rookie := home.Players[1]
	assert.True(t, rookie.Skipped())
	assert.Equal(t, "insufficient data: only 4 games found", rookie.SkipReason)
	assert.Nil(t, rookie.Predicted)

	kyrie := home.Players[2]
	assert.True(t, kyrie.Skipped())
	assert.Equal(t, "failed to fetch game log", kyrie.SkipReason)

	tatum := away.Players[0]
	assert.False(t, tatum.Skipped())
	require.NotNil(t, tatum.Predicted)
	// no cached history against DAL
	assert.Nil(t, tatum.CareerAvg)
}

func TestTotalPredictedSumsOnlySuccessfulPlayers(t *testing.T) {
	store := &fakeStore{}
	engine := NewEngine(matchupProvider(), store)

	outlooks, err := engine.Run(Request{
		Home:      mavs,
		Away:      celtics,
		ModelType: "Boosted Trees",
		Category:  "Points",
	})
	require.NoError(t, err)

	for _, outlook := range outlooks {
		sum := 0.0
		for _, p := range outlook.Players {
			if p.Predicted != nil {
				sum += *p.Predicted
			}
		}
		assert.InDelta(t, sum, outlook.TotalPredicted, 1e-9)
	}
}

func TestRunCachesFetchedGameLogs(t *testing.T) {
	store := &fakeStore{}
	engine := NewEngine(matchupProvider(), store)

	_, err := engine.Run(Request{
		Home:      mavs,
		Away:      celtics,
		ModelType: "Boosted Trees",
		Category:  "Points",
	})
	require.NoError(t, err)

	// Luka's 22 games plus Tatum's 20; the rookie and the failed fetch are
	// never cached
	assert.Len(t, store.cached, 42)
	for _, e := range store.cached {
		assert.NotEqual(t, 999, e.PlayerID)
		assert.NotEqual(t, 202681, e.PlayerID)
	}
}

func TestRosterFetchFailureYieldsEmptyOutlook(t *testing.T) {
	provider := matchupProvider()
	provider.rosterErrs = map[int]error{mavs.ID: errors.New("roster unavailable")}
	engine := NewEngine(provider, &fakeStore{})

	outlooks, err := engine.Run(Request{
		Home:      mavs,
		Away:      celtics,
		ModelType: "Linear Regression",
		Category:  "Points",
	})
	require.NoError(t, err)
	require.Len(t, outlooks, 2)
	assert.Empty(t, outlooks[0].Players)
	assert.NotEmpty(t, outlooks[1].Players)
}

func TestRunAbortsWhenPlayerIndexUnavailable(t *testing.T) {
	provider := matchupProvider()
	provider.playersErr = errors.New("stats api down")
	engine := NewEngine(provider, &fakeStore{})

	_, err := engine.Run(Request{Home: mavs, Away: celtics, ModelType: "Linear Regression", Category: "Points"})
	assert.Error(t, err)
}

func TestPlayerIndexIsLoadedOnce(t *testing.T) {
	provider := matchupProvider()
	engine := NewEngine(provider, &fakeStore{})

	req := Request{Home: mavs, Away: celtics, ModelType: "Boosted Trees", Category: "Points"}
	_, err := engine.Run(req)
	require.NoError(t, err)
	calls := provider.gameLogCalls

	_, err = engine.Run(req)
	require.NoError(t, err)
	assert.Equal(t, calls*2, provider.gameLogCalls)
	assert.Equal(t, 1, provider.allPlayersCalls)
}

func TestGameLogEntriesDropIncompleteRows(t *testing.T) {
	rows := []nba.GameLogRow{
		{GameID: str("001"), GameDate: str("Apr 1, 2024"), Matchup: str("DAL vs. LAL"), PTS: f64(30)},
		{GameID: nil, GameDate: str("Apr 3, 2024"), Matchup: str("DAL @ LAL"), PTS: f64(25)},
		{GameID: str("003"), GameDate: str("Apr 5, 2024"), Matchup: str("DAL vs. BOS")},
	}

	entries := GameLogEntries(77, "2023-24", rows)
	require.Len(t, entries, 2)
	assert.Equal(t, "001", entries[0].GameID)
	assert.Equal(t, 30.0, entries[0].Pts)
	// missing stats are stored as zero, not dropped
	assert.Equal(t, "003", entries[1].GameID)
	assert.Equal(t, 0.0, entries[1].Pts)
}
