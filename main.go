package main

import (
	"database/sql"
	"errors"
	"fmt"
	"html/template"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"hoopcast/config"
	"hoopcast/db"
	"hoopcast/jobs"
	"hoopcast/logger"
	"hoopcast/scrape"
	"hoopcast/utils"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type Templates struct {
	templates *template.Template
}

func (t *Templates) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	return t.templates.ExecuteTemplate(w, name, data)
}

func newTemplate() *Templates {
	return &Templates{
		templates: template.Must(template.New("").Funcs(template.FuncMap{
			"derefFloat64": derefFloat64,
		}).ParseGlob("views/*.html")),
	}
}

func derefFloat64(f *float64) float64 {
	if f == nil {
		return float64(0)
	}
	return *f
}

type IndexState struct {
	Teams      []db.Team
	ModelTypes []string
	Categories []string
	Error      string
}

type TeamResults struct {
	Team     string
	Opponent string
	Rows     []db.Prediction
	Total    float64
}

type JobState struct {
	Job     *db.Job
	Results []TeamResults
	Error   string
}

func newJobState(job *db.Job) *JobState {
	return &JobState{
		Job:     job,
		Results: []TeamResults{},
		Error:   "",
	}
}

var sigChan = make(chan os.Signal, 1)

func init() {
	if err := config.LoadConfig(); err != nil {
		panic(err)
	}
	logger.InitLogger("", *config.ProdFlag)
	if err := db.SetupDatabase(); err != nil {
		panic(err)
	}
	if err := db.RunMigrations(); err != nil {
		panic(err)
	}
	if err := db.ValidateMigrations(); err != nil {
		panic(err)
	}
	signal.Notify(sigChan, syscall.SIGTERM, os.Interrupt, syscall.SIGINT)
	go cleanup()
	go scrape.CacheDaemon(12 * time.Hour)
	fmt.Println("Wilt Chamberlain once averaged 48.5 minutes per game")
}

func cleanup() {
	<-sigChan
	fmt.Println("\nclosing database...")
	if err := db.Close(); err != nil {
		panic(err)
	}
	os.Exit(0)
}

func main() {
	scheduler := jobs.NewScheduler(0, 2, time.Second*10)
	go scheduler.Start()
	go jobs.StalledJobsJanitor(5 * time.Minute)

	e := echo.New()
	e.Use(middleware.Logger())

	e.Renderer = newTemplate()

	e.GET("/", func(c echo.Context) error {
		teams, err := db.SelectAllTeams()
		if err != nil {
			return utils.ErrorWithTrace(err)
		}
		state := IndexState{
			Teams:      teams,
			ModelTypes: config.ModelTypes,
			Categories: config.Categories,
		}
		return c.Render(200, "index", state)
	})

	e.POST("/", func(c echo.Context) error {
		req := c.Request()
		if err := req.ParseForm(); err != nil {
			return utils.ErrorWithTrace(err)
		}

		homeTeam := req.FormValue("home-team")
		awayTeam := req.FormValue("away-team")
		modelType := req.FormValue("model-type")
		category := req.FormValue("category")

		if homeTeam == awayTeam {
			return c.Render(200, "error", "a team cannot play itself (◞‸ ◟ ；)")
		}
		if !slices.Contains(config.ModelTypes, modelType) {
			return c.Render(200, "error", fmt.Sprintf("unknown model type: %s", modelType))
		}
		if !slices.Contains(config.Categories, category) {
			return c.Render(200, "error", fmt.Sprintf("unknown prediction category: %s", category))
		}
		if _, err := db.SelectTeamByAbbreviation(homeTeam); err != nil {
			return c.Render(200, "error", fmt.Sprintf("unknown team: %s", homeTeam))
		}
		if _, err := db.SelectTeamByAbbreviation(awayTeam); err != nil {
			return c.Render(200, "error", fmt.Sprintf("unknown team: %s", awayTeam))
		}

		job, err := db.InsertJob(db.NewJob(homeTeam, awayTeam, modelType, category))
		if err != nil {
			return c.Render(200, "error", err.Error())
		}

		redirect := fmt.Sprintf("/%s", job.Slug)
		c.Response().Header().Set("HX-Redirect", redirect)
		return c.NoContent(200)
	})

	e.GET("/:slug", func(c echo.Context) error {
		slug := c.Param("slug")
		job, err := db.SelectJobBySlug(slug)
		if err != nil {
			jobState := newJobState(nil)
			jobState.Error = "job not found (◞‸ ◟ ；)"
			return c.Render(200, "job", jobState)
		}
		jobState := newJobState(job)

		if job.State == "FINISHED" {
			predictions, err := db.SelectPredictionsByJobId(job.Id)
			if err != nil {
				jobState.Error = err.Error()
				return c.Render(200, "job", jobState)
			}
			jobState.Results = groupByTeam(predictions)
		}

		return c.Render(200, "job", jobState)
	})

	e.POST("/:slug/status/:state", func(c echo.Context) error {
		slug := c.Param("slug")
		state := c.Param("state")
		job, err := db.SelectJobBySlug(slug)
		redirect := fmt.Sprintf("/%s", slug)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return c.NoContent(404)
			} else {
				c.Response().Header().Set("HX-Redirect", redirect)
				return c.NoContent(200)
			}
		}
		if job.State == state {
			return c.NoContent(204)
		}

		if job.State == "FINISHED" {
			c.Response().Header().Set("HX-Redirect", redirect)
			return c.NoContent(200)
		}
		return c.Render(200, "state", job)
	})

	e.Logger.Fatal(e.Start(":8080"))
}

// groupByTeam splits a job's flat prediction rows back into the two matchup
// sides, preserving insertion order, and sums each side's predicted total.
func groupByTeam(predictions []db.Prediction) []TeamResults {
	results := []TeamResults{}
	for _, p := range predictions {
		idx := -1
		for i := range results {
			if results[i].Team == p.Team {
				idx = i
				break
			}
		}
		if idx < 0 {
			results = append(results, TeamResults{Team: p.Team, Opponent: p.Opponent})
			idx = len(results) - 1
		}
		results[idx].Rows = append(results[idx].Rows, p)
		if p.Predicted != nil {
			results[idx].Total += *p.Predicted
		}
	}
	return results
}
