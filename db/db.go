package db

import (
	"crypto/md5"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"hoopcast/config"
	"hoopcast/utils"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
)

type Team struct {
	ID           int    `db:"id"`
	Abbreviation string `db:"abbreviation"`
	Name         string `db:"name"`
}

type GameLogEntry struct {
	PlayerID int     `db:"player_id"`
	GameID   string  `db:"game_id"`
	GameDate string  `db:"game_date"`
	Season   string  `db:"season"`
	Matchup  string  `db:"matchup"`
	Min      float64 `db:"min"`
	Pts      float64 `db:"pts"`
	Reb      float64 `db:"reb"`
	Ast      float64 `db:"ast"`
	Fgm      float64 `db:"fgm"`
	Fga      float64 `db:"fga"`
	Fg3m     float64 `db:"fg3m"`
	Fg3a     float64 `db:"fg3a"`
	Ftm      float64 `db:"ftm"`
	Fta      float64 `db:"fta"`
	Tov      float64 `db:"tov"`
	Pf       float64 `db:"pf"`
}

type Job struct {
	Id        int64  `db:"id"`
	Slug      string `db:"slug"`
	State     string `db:"state"`
	HomeTeam  string `db:"home_team"`
	AwayTeam  string `db:"away_team"`
	ModelType string `db:"model_type"`
	Category  string `db:"category"`
	Error     string `db:"error"`
	CreatedAt string `db:"created_at"`
	UpdatedAt string `db:"updated_at"`
}

type Prediction struct {
	Id         int64    `db:"id"`
	JobId      int64    `db:"job_id"`
	PlayerID   int      `db:"player_id"`
	PlayerName string   `db:"player_name"`
	Team       string   `db:"team"`
	Opponent   string   `db:"opponent"`
	Category   string   `db:"category"`
	Predicted  *float64 `db:"predicted"`
	RMSE       *float64 `db:"rmse"`
	CareerAvg  *float64 `db:"career_avg"`
	SkipReason string   `db:"skip_reason"`
}

func NewJob(homeTeam, awayTeam, modelType, category string) *Job {
	seed := fmt.Sprintf("%s%s%s%s%d%d", homeTeam, awayTeam, modelType, category, time.Now().UnixNano(), rand.Int63())
	sum := md5.Sum([]byte(seed))
	return &Job{
		Slug:      fmt.Sprintf("%x", sum)[:12],
		State:     "PENDING",
		HomeTeam:  homeTeam,
		AwayTeam:  awayTeam,
		ModelType: modelType,
		Category:  category,
	}
}

// OhNo moves a job into its terminal error state, preserving the cause.
func (j *Job) OhNo(cause error) error {
	j.State = "ERROR"
	j.Error = cause.Error()
	if err := UpdateJob(j); err != nil {
		return utils.ErrorWithTrace(err)
	}
	return nil
}

func SetupDatabase() error {
	_, err := os.Stat(config.DatabaseFile)
	if os.IsNotExist(err) {
		log.Println("Database file not found. Creating a new database.")
		file, err := os.Create(config.DatabaseFile)
		if err != nil {
			return utils.ErrorWithTrace(err)
		}
		file.Close()
	} else if err != nil {
		return utils.ErrorWithTrace(err)
	}
	return nil
}

func RunMigrations() error {
	m, err := migrate.New(
		config.MigrationsURL,
		"sqlite3://"+config.DatabaseFile,
	)
	if err != nil {
		return utils.ErrorWithTrace(err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return utils.ErrorWithTrace(err)
	}
	return nil
}

func ValidateMigrations() error {
	db, err := sqlx.Open("sqlite3", config.DatabaseFile)
	if err != nil {
		return utils.ErrorWithTrace(err)
	}
	defer db.Close()

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM teams").Scan(&count); err != nil {
		return utils.ErrorWithTrace(err)
	}
	if count != 31 {
		return utils.ErrorWithTrace(fmt.Errorf("expected 31 teams, found %d", count))
	}

	var name string
	if err := db.QueryRow("SELECT name FROM teams WHERE id = 1610612752").Scan(&name); err != nil {
		return utils.ErrorWithTrace(fmt.Errorf("failed to find Knicks: %v", err))
	}
	if name != "New York Knicks" {
		return utils.ErrorWithTrace(fmt.Errorf("expected team.id 1610612752 to have name 'New York Knicks', got '%s'", name))
	}
	err = db.QueryRow("SELECT name FROM teams WHERE id = 0").Scan(&name)
	if err != nil {
		return utils.ErrorWithTrace(fmt.Errorf("failed to find NULL_TEAM: %v", err))
	}
	if name != "NULL_TEAM" {
		return utils.ErrorWithTrace(fmt.Errorf("expected team.id 0 to have name 'NULL_TEAM', got '%s'", name))
	}
	return nil
}

func Close() error {
	// connections are opened and closed per call, nothing to tear down
	return nil
}

func SelectAllTeams() ([]Team, error) {
	db, err := sqlx.Open("sqlite3", config.DatabaseFile)
	if err != nil {
		return nil, utils.ErrorWithTrace(err)
	}
	defer db.Close()

	teams := []Team{}
	if err := db.Select(&teams, "SELECT * FROM teams WHERE id != 0 ORDER BY abbreviation ASC;"); err != nil {
		return nil, utils.ErrorWithTrace(err)
	}
	return teams, nil
}

func SelectTeamByAbbreviation(abbreviation string) (*Team, error) {
	db, err := sqlx.Open("sqlite3", config.DatabaseFile)
	if err != nil {
		return nil, utils.ErrorWithTrace(err)
	}
	defer db.Close()

	team := Team{}
	if err := db.Get(&team, "SELECT * FROM teams WHERE abbreviation = ?;", abbreviation); err != nil {
		return nil, utils.ErrorWithTrace(fmt.Errorf("unknown team %q: %v", abbreviation, err))
	}
	return &team, nil
}

func InsertGameLogs(entries []GameLogEntry) error {
	db, err := sqlx.Open("sqlite3", config.DatabaseFile)
	if err != nil {
		return utils.ErrorWithTrace(err)
	}
	defer db.Close()

	tx, err := db.Beginx()
	if err != nil {
		return utils.ErrorWithTrace(err)
	}
	defer tx.Rollback()

	query := `
		REPLACE INTO game_logs (
			player_id, game_id, game_date, season, matchup, min, pts, reb,
			ast, fgm, fga, fg3m, fg3a, ftm, fta, tov, pf
		) VALUES (
			:player_id, :game_id, :game_date, :season, :matchup, :min, :pts, :reb,
			:ast, :fgm, :fga, :fg3m, :fg3a, :ftm, :fta, :tov, :pf
		)
	`
	for _, e := range entries {
		if _, err := tx.NamedExec(query, e); err != nil {
			return utils.ErrorWithTrace(err)
		}
	}

	return tx.Commit()
}

// CareerAvgVsOpponent reads the cached career scoring average for a player
// against an opponent abbreviation. The substring match catches both
// "XXX vs. LAL" and "XXX @ LAL" matchups. Returns nil when no games are
// cached for that pairing.
func CareerAvgVsOpponent(playerID int, opponentAbbreviation string) (*float64, error) {
	db, err := sqlx.Open("sqlite3", config.DatabaseFile)
	if err != nil {
		return nil, utils.ErrorWithTrace(err)
	}
	defer db.Close()

	query := `
		SELECT AVG(pts) FROM game_logs
		WHERE player_id = ? AND matchup LIKE '%' || ? || '%';
	`
	var avg sql.NullFloat64
	err = db.QueryRow(query, playerID, opponentAbbreviation).Scan(&avg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, utils.ErrorWithTrace(err)
	}
	if !avg.Valid {
		return nil, nil
	}
	return &avg.Float64, nil
}

func InsertJob(job *Job) (*Job, error) {
	db, err := sqlx.Open("sqlite3", config.DatabaseFile)
	if err != nil {
		return nil, utils.ErrorWithTrace(err)
	}
	defer db.Close()

	query := `
		INSERT INTO jobs (slug, state, home_team, away_team, model_type, category, error)
		VALUES (:slug, :state, :home_team, :away_team, :model_type, :category, :error)
	`
	res, err := db.NamedExec(query, job)
	if err != nil {
		return nil, utils.ErrorWithTrace(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, utils.ErrorWithTrace(err)
	}
	job.Id = id
	return job, nil
}

func SelectJobBySlug(slug string) (*Job, error) {
	db, err := sqlx.Open("sqlite3", config.DatabaseFile)
	if err != nil {
		return nil, utils.ErrorWithTrace(err)
	}
	defer db.Close()

	job := Job{}
	if err := db.Get(&job, "SELECT * FROM jobs WHERE slug = ?;", slug); err != nil {
		return nil, utils.ErrorWithTrace(err)
	}
	return &job, nil
}

// SelectJobForUpdate claims the oldest pending job by flipping it to RUNNING
// inside one transaction so two workers never grab the same job.
func SelectJobForUpdate() (*Job, error) {
	db, err := sqlx.Open("sqlite3", config.DatabaseFile)
	if err != nil {
		return nil, utils.ErrorWithTrace(err)
	}
	defer db.Close()

	tx, err := db.Beginx()
	if err != nil {
		return nil, utils.ErrorWithTrace(err)
	}
	defer tx.Rollback()

	job := Job{}
	err = tx.Get(&job, "SELECT * FROM jobs WHERE state = 'PENDING' ORDER BY created_at ASC LIMIT 1;")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("QUEUE EMPTY")
	}
	if err != nil {
		return nil, utils.ErrorWithTrace(err)
	}

	job.State = "RUNNING"
	query := "UPDATE jobs SET state = :state, updated_at = CURRENT_TIMESTAMP WHERE id = :id;"
	if _, err := tx.NamedExec(query, job); err != nil {
		return nil, utils.ErrorWithTrace(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, utils.ErrorWithTrace(err)
	}
	return &job, nil
}

func UpdateJob(job *Job) error {
	db, err := sqlx.Open("sqlite3", config.DatabaseFile)
	if err != nil {
		return utils.ErrorWithTrace(err)
	}
	defer db.Close()

	query := `
		UPDATE jobs
		SET state = :state, error = :error, updated_at = CURRENT_TIMESTAMP
		WHERE id = :id;
	`
	if _, err := db.NamedExec(query, job); err != nil {
		return utils.ErrorWithTrace(err)
	}
	return nil
}

// ResetStaleJobs requeues jobs a worker claimed but never finished, most
// likely because the process restarted mid-batch.
func ResetStaleJobs() error {
	db, err := sqlx.Open("sqlite3", config.DatabaseFile)
	if err != nil {
		return utils.ErrorWithTrace(err)
	}
	defer db.Close()

	query := `
		UPDATE jobs SET state = 'PENDING', updated_at = CURRENT_TIMESTAMP
		WHERE state = 'RUNNING' AND updated_at < DATETIME('now', '-15 minutes');
	`
	if _, err := db.Exec(query); err != nil {
		return utils.ErrorWithTrace(err)
	}
	return nil
}

func InsertPredictions(predictions []Prediction) error {
	db, err := sqlx.Open("sqlite3", config.DatabaseFile)
	if err != nil {
		return utils.ErrorWithTrace(err)
	}
	defer db.Close()

	tx, err := db.Beginx()
	if err != nil {
		return utils.ErrorWithTrace(err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO predictions (
			job_id, player_id, player_name, team, opponent, category,
			predicted, rmse, career_avg, skip_reason
		) VALUES (
			:job_id, :player_id, :player_name, :team, :opponent, :category,
			:predicted, :rmse, :career_avg, :skip_reason
		)
	`
	for _, p := range predictions {
		if _, err := tx.NamedExec(query, p); err != nil {
			return utils.ErrorWithTrace(err)
		}
	}

	return tx.Commit()
}

func SelectPredictionsByJobId(jobId int64) ([]Prediction, error) {
	db, err := sqlx.Open("sqlite3", config.DatabaseFile)
	if err != nil {
		return nil, utils.ErrorWithTrace(err)
	}
	defer db.Close()

	predictions := []Prediction{}
	query := "SELECT * FROM predictions WHERE job_id = ? ORDER BY team ASC, predicted DESC;"
	if err := db.Select(&predictions, query, jobId); err != nil {
		return nil, utils.ErrorWithTrace(err)
	}
	return predictions, nil
}
