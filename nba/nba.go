package nba

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"hoopcast/config"
	"hoopcast/utils"

	"golang.org/x/time/rate"
)

// statsBaseURL and client are package vars so tests can point the endpoints
// at an httptest server with a short timeout.
var statsBaseURL = "https://stats.nba.com"
var client = &http.Client{Timeout: 60 * time.Second}

// stats.nba.com throttles aggressive callers, so every request funnels
// through one shared limiter.
var limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1)

func initNBAReq(url string) *http.Request {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		panic(err)
	}
	req.Header.Add("Accept", "application/json")
	req.Header.Add("Referer", "https://www.nba.com/")
	req.Header.Add("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	return req
}

type resultSetResp struct {
	ResultSets []struct {
		RowSet [][]interface{} `json:"rowSet"`
	} `json:"resultSets"`
}

// fetchResultSets GETs a stats endpoint and decodes its resultSets envelope,
// retrying timeouts and connection errors with a fixed delay.
func fetchResultSets(url string) (*resultSetResp, error) {
	unmarshalled := resultSetResp{}
	err := utils.Retry(config.FetchRetries, config.FetchRetryDelay, func() error {
		if err := limiter.Wait(context.Background()); err != nil {
			return err
		}
		resp, err := client.Do(initNBAReq(url))
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		return json.Unmarshal(body, &unmarshalled)
	})
	if err != nil {
		return nil, utils.ErrorWithTrace(err)
	}
	if len(unmarshalled.ResultSets) == 0 {
		return nil, utils.ErrorWithTrace(fmt.Errorf("empty resultSets from %s", url))
	}
	return &unmarshalled, nil
}

type CommonAllPlayer struct {
	PersonID         *float64
	DisplayLastFirst *string
	DisplayFirstLast *string
	RosterStatus     *float64
	FromYear         *string
	ToYear           *string
	PlayerCode       *string
	PlayerSlug       *string
	TeamID           *float64
	TeamCity         *string
	TeamName         *string
	TeamAbbreviation *string
}

// CommonAllPlayers returns every player the league has a record of, current
// and historical. This is the canonical name list the resolver matches
// against.
func CommonAllPlayers() ([]CommonAllPlayer, error) {
	url := fmt.Sprintf("%s/stats/commonallplayers?LeagueID=00&Season=%s&IsOnlyCurrentSeason=0", statsBaseURL, config.CurrentSeason)
	resp, err := fetchResultSets(url)
	if err != nil {
		return nil, utils.ErrorWithTrace(err)
	}

	players := make([]CommonAllPlayer, len(resp.ResultSets[0].RowSet))
	for i, raw := range resp.ResultSets[0].RowSet {
		players[i] = CommonAllPlayer{
			PersonID:         maybe[float64](raw[0]),
			DisplayLastFirst: maybe[string](raw[1]),
			DisplayFirstLast: maybe[string](raw[2]),
			RosterStatus:     maybe[float64](raw[3]),
			FromYear:         maybe[string](raw[4]),
			ToYear:           maybe[string](raw[5]),
			PlayerCode:       maybe[string](raw[6]),
			PlayerSlug:       maybe[string](raw[7]),
			TeamID:           maybe[float64](raw[8]),
			TeamCity:         maybe[string](raw[9]),
			TeamName:         maybe[string](raw[10]),
			TeamAbbreviation: maybe[string](raw[11]),
		}
	}
	return players, nil
}

type RosterPlayer struct {
	TeamID     *float64
	Season     *string
	PlayerName *string
	Number     *string
	Position   *string
	PlayerID   *float64
}

// CommonTeamRoster returns the player id/name pairs on a team's roster for
// the given season.
func CommonTeamRoster(teamID int, season string) ([]RosterPlayer, error) {
	if utils.IsInvalidSeason(season) {
		return nil, utils.ErrorWithTrace(fmt.Errorf("invalid season provided: %s", season))
	}
	url := fmt.Sprintf("%s/stats/commonteamroster?LeagueID=00&TeamID=%d&Season=%s", statsBaseURL, teamID, season)
	resp, err := fetchResultSets(url)
	if err != nil {
		return nil, utils.ErrorWithTrace(err)
	}

	roster := make([]RosterPlayer, len(resp.ResultSets[0].RowSet))
	for i, raw := range resp.ResultSets[0].RowSet {
		roster[i] = RosterPlayer{
			TeamID:     maybe[float64](raw[0]),
			Season:     maybe[string](raw[1]),
			PlayerName: maybe[string](raw[3]),
			Number:     maybe[string](raw[6]),
			Position:   maybe[string](raw[7]),
			PlayerID:   maybe[float64](raw[14]),
		}
	}
	return roster, nil
}

type GameLogRow struct {
	SeasonID *string
	PlayerID *float64
	GameID   *string
	GameDate *string
	Matchup  *string
	WL       *string
	MIN      *float64
	FGM      *float64
	FGA      *float64
	FGPct    *float64
	FG3M     *float64
	FG3A     *float64
	FG3Pct   *float64
	FTM      *float64
	FTA      *float64
	FTPct    *float64
	OREB     *float64
	DREB     *float64
	REB      *float64
	AST      *float64
	STL      *float64
	BLK      *float64
	TOV      *float64
	PF       *float64
	PTS      *float64
}

// PlayerGameLog returns one row per game the player appeared in during the
// given regular season, most recent first.
func PlayerGameLog(playerID int, season string) ([]GameLogRow, error) {
	if utils.IsInvalidSeason(season) {
		return nil, utils.ErrorWithTrace(fmt.Errorf("invalid season provided: %s", season))
	}
	url := fmt.Sprintf("%s/stats/playergamelog?PlayerID=%d&Season=%s&SeasonType=Regular+Season", statsBaseURL, playerID, season)
	resp, err := fetchResultSets(url)
	if err != nil {
		return nil, utils.ErrorWithTrace(err)
	}

	rows := make([]GameLogRow, len(resp.ResultSets[0].RowSet))
	for i, raw := range resp.ResultSets[0].RowSet {
		rows[i] = GameLogRow{
			SeasonID: maybe[string](raw[0]),
			PlayerID: maybe[float64](raw[1]),
			GameID:   maybe[string](raw[2]),
			GameDate: maybe[string](raw[3]),
			Matchup:  maybe[string](raw[4]),
			WL:       maybe[string](raw[5]),
			MIN:      maybe[float64](raw[6]),
			FGM:      maybe[float64](raw[7]),
			FGA:      maybe[float64](raw[8]),
			FGPct:    maybe[float64](raw[9]),
			FG3M:     maybe[float64](raw[10]),
			FG3A:     maybe[float64](raw[11]),
			FG3Pct:   maybe[float64](raw[12]),
			FTM:      maybe[float64](raw[13]),
			FTA:      maybe[float64](raw[14]),
			FTPct:    maybe[float64](raw[15]),
			OREB:     maybe[float64](raw[16]),
			DREB:     maybe[float64](raw[17]),
			REB:      maybe[float64](raw[18]),
			AST:      maybe[float64](raw[19]),
			STL:      maybe[float64](raw[20]),
			BLK:      maybe[float64](raw[21]),
			TOV:      maybe[float64](raw[22]),
			PF:       maybe[float64](raw[23]),
			PTS:      maybe[float64](raw[24]),
		}
	}
	return rows, nil
}

func maybe[T any](x any) *T {
	if x, ok := x.(T); ok {
		return &x
	}
	return nil
}
