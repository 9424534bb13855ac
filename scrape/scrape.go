// Package scrape keeps the local game-log cache warm so the career-average
// lookup has data even for players nobody has predicted yet.
package scrape

import (
	"time"

	"hoopcast/config"
	"hoopcast/db"
	"hoopcast/logger"
	"hoopcast/nba"
	"hoopcast/predict"
	"hoopcast/utils"
)

// CacheDaemon refreshes every roster's game logs on start and then on a
// fixed interval. A full pass is slow on purpose: the shared client limiter
// keeps the provider happy.
func CacheDaemon(interval time.Duration) {
	if err := WarmCache(); err != nil {
		logger.GetLogger().Error(err)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		if err := WarmCache(); err != nil {
			logger.GetLogger().Error(err)
		}
	}
}

// WarmCache walks every team's current roster and upserts each player's
// current and prior season game logs. Per-team and per-player failures are
// logged and skipped so one bad fetch never stalls the pass.
func WarmCache() error {
	log := logger.GetLogger()
	teams, err := db.SelectAllTeams()
	if err != nil {
		return utils.ErrorWithTrace(err)
	}

	log.Infof("warming game-log cache for %d teams", len(teams))
	for _, t := range teams {
		roster, err := nba.CommonTeamRoster(t.ID, config.CurrentSeason)
		if err != nil {
			log.WithField("team", t.Abbreviation).WithError(err).Error("roster fetch failed, skipping team")
			continue
		}
		for _, p := range roster {
			if p.PlayerID == nil {
				continue
			}
			playerID := int(*p.PlayerID)
			for _, season := range []string{config.CurrentSeason, config.PreviousSeason} {
				rows, err := nba.PlayerGameLog(playerID, season)
				if err != nil {
					log.WithField("player_id", playerID).WithError(err).Warn("game log fetch failed, skipping")
					continue
				}
				if err := db.InsertGameLogs(predict.GameLogEntries(playerID, season, rows)); err != nil {
					log.WithField("player_id", playerID).WithError(err).Warn("game log insert failed")
				}
			}
		}
	}
	log.Info("cache warm pass finished")
	return nil
}
