// Package predict runs a matchup prediction batch: for both sides of a
// matchup it walks the roster, fetches two seasons of game logs per player,
// engineers features, fits the requested model, and collects one result per
// player (a prediction or a reason the player was skipped).
package predict

import (
	"fmt"

	"hoopcast/config"
	"hoopcast/db"
	"hoopcast/features"
	"hoopcast/logger"
	"hoopcast/model"
	"hoopcast/nba"
	"hoopcast/resolve"
	"hoopcast/utils"
)

// Provider is the slice of the stats API the engine consumes.
type Provider interface {
	AllPlayers() ([]nba.CommonAllPlayer, error)
	TeamRoster(teamID int, season string) ([]nba.RosterPlayer, error)
	PlayerGameLog(playerID int, season string) ([]nba.GameLogRow, error)
}

// Store is the slice of local persistence the engine consumes: the career
// average read plus the cache write that keeps it populated.
type Store interface {
	CareerAvgVsOpponent(playerID int, opponentAbbreviation string) (*float64, error)
	InsertGameLogs(entries []db.GameLogEntry) error
}

type LiveProvider struct{}

func (LiveProvider) AllPlayers() ([]nba.CommonAllPlayer, error) {
	return nba.CommonAllPlayers()
}

func (LiveProvider) TeamRoster(teamID int, season string) ([]nba.RosterPlayer, error) {
	return nba.CommonTeamRoster(teamID, season)
}

func (LiveProvider) PlayerGameLog(playerID int, season string) ([]nba.GameLogRow, error) {
	return nba.PlayerGameLog(playerID, season)
}

type SQLiteStore struct{}

func (SQLiteStore) CareerAvgVsOpponent(playerID int, opponentAbbreviation string) (*float64, error) {
	return db.CareerAvgVsOpponent(playerID, opponentAbbreviation)
}

func (SQLiteStore) InsertGameLogs(entries []db.GameLogEntry) error {
	return db.InsertGameLogs(entries)
}

type Request struct {
	Home      db.Team
	Away      db.Team
	ModelType string
	Category  string
}

// PlayerResult is one collected outcome: either a prediction with its error
// bound and career-average annotation, or a skip reason.
type PlayerResult struct {
	PlayerID   int
	PlayerName string
	Team       string
	Opponent   string
	Predicted  *float64
	RMSE       *float64
	CareerAvg  *float64
	SkipReason string
}

func (r PlayerResult) Skipped() bool {
	return r.SkipReason != ""
}

// TeamOutlook is the per-side summary: every collected player result plus
// the total predicted team value.
type TeamOutlook struct {
	Team           string
	Opponent       string
	Players        []PlayerResult
	TotalPredicted float64
}

type Engine struct {
	provider Provider
	store    Store

	names []string
	index map[string]int
}

func NewEngine(provider Provider, store Store) *Engine {
	return &Engine{provider: provider, store: store}
}

// Run analyzes both sides of the matchup, home roster against the away team
// first. Per-player failures are collected as skip reasons; only a failure
// to load the canonical player list aborts the batch.
func (e *Engine) Run(req Request) ([]TeamOutlook, error) {
	if err := e.loadPlayerIndex(); err != nil {
		return nil, utils.ErrorWithTrace(err)
	}

	sides := []matchupSide{
		{team: req.Home, opponent: req.Away},
		{team: req.Away, opponent: req.Home},
	}

	outlooks := make([]TeamOutlook, 0, len(sides))
	for _, side := range sides {
		log := logger.GetLogger().WithField("team", side.team.Abbreviation)
		outlook := TeamOutlook{
			Team:     side.team.Abbreviation,
			Opponent: side.opponent.Abbreviation,
		}

		roster, err := e.provider.TeamRoster(side.team.ID, config.CurrentSeason)
		if err != nil {
			log.WithError(err).Error("failed to fetch team roster")
			outlooks = append(outlooks, outlook)
			continue
		}
		log.Infof("analyzing %d players against %s", len(roster), side.opponent.Abbreviation)

		for _, p := range roster {
			if p.PlayerName == nil {
				continue
			}
			result := e.analyzePlayer(*p.PlayerName, side, req.ModelType, req.Category)
			if result.Predicted != nil {
				outlook.TotalPredicted += *result.Predicted
			}
			outlook.Players = append(outlook.Players, result)
		}
		outlooks = append(outlooks, outlook)
	}
	return outlooks, nil
}

func (e *Engine) loadPlayerIndex() error {
	if e.index != nil {
		return nil
	}
	players, err := e.provider.AllPlayers()
	if err != nil {
		return utils.ErrorWithTrace(err)
	}
	e.index = make(map[string]int, len(players))
	e.names = make([]string, 0, len(players))
	for _, p := range players {
		if p.PersonID == nil || p.DisplayFirstLast == nil {
			continue
		}
		e.names = append(e.names, *p.DisplayFirstLast)
		e.index[*p.DisplayFirstLast] = int(*p.PersonID)
	}
	return nil
}

type matchupSide struct {
	team     db.Team
	opponent db.Team
}

func (e *Engine) analyzePlayer(name string, side matchupSide, modelType, category string) PlayerResult {
	log := logger.WithPlayer(name)
	result := PlayerResult{
		PlayerName: name,
		Team:       side.team.Abbreviation,
		Opponent:   side.opponent.Abbreviation,
	}

	match := resolve.BestMatch(name, e.names)
	if match == nil {
		result.SkipReason = "player not found"
		return result
	}
	if match.LowConfidence {
		log.Warnf("low-confidence name match, using %q (score %d)", match.Name, match.Score)
	}
	playerID, ok := e.index[match.Name]
	if !ok {
		result.SkipReason = "player not found"
		return result
	}
	result.PlayerID = playerID
	result.PlayerName = match.Name

	gameLog, entries, err := e.fetchGameLog(playerID)
	if err != nil {
		log.WithError(err).Error("failed to fetch game log")
		result.SkipReason = "failed to fetch game log"
		return result
	}
	if len(gameLog) < config.MinGames {
		result.SkipReason = fmt.Sprintf("insufficient data: only %d games found", len(gameLog))
		return result
	}
	// keep the career-average cache warm with whatever was just fetched
	if err := e.store.InsertGameLogs(entries); err != nil {
		log.WithError(err).Warn("failed to cache game log")
	}

	rows, err := features.Build(gameLog)
	if err != nil {
		log.WithError(err).Error("feature engineering failed")
		result.SkipReason = fmt.Sprintf("processing failed: %v", err)
		return result
	}
	if len(rows) == 0 {
		result.SkipReason = "no usable games after feature engineering"
		return result
	}

	targets, err := features.Targets(rows, category)
	if err != nil {
		result.SkipReason = fmt.Sprintf("processing failed: %v", err)
		return result
	}
	strategy, err := model.New(modelType)
	if err != nil {
		result.SkipReason = fmt.Sprintf("processing failed: %v", err)
		return result
	}
	eval, err := model.TrainEvaluate(strategy, features.Matrix(rows), targets)
	if err != nil {
		log.WithError(err).Error("model training failed")
		result.SkipReason = fmt.Sprintf("processing failed: %v", err)
		return result
	}
	predicted, err := strategy.Predict(features.MeanFeatures(rows))
	if err != nil {
		log.WithError(err).Error("prediction failed")
		result.SkipReason = fmt.Sprintf("processing failed: %v", err)
		return result
	}

	rmse := eval.RMSE()
	result.Predicted = &predicted
	result.RMSE = &rmse

	careerAvg, err := e.store.CareerAvgVsOpponent(playerID, side.opponent.Abbreviation)
	if err != nil {
		log.WithError(err).Warn("career average lookup failed")
	} else {
		result.CareerAvg = careerAvg
	}

	log.WithField("mse", eval.MSE).Infof("predicted %.1f %s (± %.2f)", predicted, category, rmse)
	return result
}

// fetchGameLog concatenates the current and prior season logs, current
// season first.
func (e *Engine) fetchGameLog(playerID int) ([]nba.GameLogRow, []db.GameLogEntry, error) {
	combined := []nba.GameLogRow{}
	entries := []db.GameLogEntry{}
	for _, season := range []string{config.CurrentSeason, config.PreviousSeason} {
		rows, err := e.provider.PlayerGameLog(playerID, season)
		if err != nil {
			return nil, nil, utils.ErrorWithTrace(err)
		}
		combined = append(combined, rows...)
		entries = append(entries, GameLogEntries(playerID, season, rows)...)
	}
	return combined, entries, nil
}

// GameLogEntries converts provider rows into cache rows, dropping anything
// too incomplete to store.
func GameLogEntries(playerID int, season string, rows []nba.GameLogRow) []db.GameLogEntry {
	entries := make([]db.GameLogEntry, 0, len(rows))
	for _, r := range rows {
		if r.GameID == nil || r.GameDate == nil || r.Matchup == nil {
			continue
		}
		entries = append(entries, db.GameLogEntry{
			PlayerID: playerID,
			GameID:   *r.GameID,
			GameDate: *r.GameDate,
			Season:   season,
			Matchup:  *r.Matchup,
			Min:      num(r.MIN),
			Pts:      num(r.PTS),
			Reb:      num(r.REB),
			Ast:      num(r.AST),
			Fgm:      num(r.FGM),
			Fga:      num(r.FGA),
			Fg3m:     num(r.FG3M),
			Fg3a:     num(r.FG3A),
			Ftm:      num(r.FTM),
			Fta:      num(r.FTA),
			Tov:      num(r.TOV),
			Pf:       num(r.PF),
		})
	}
	return entries
}

func num(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
