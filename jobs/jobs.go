package jobs

import (
	"strings"
	"time"

	"hoopcast/db"
	"hoopcast/logger"
	"hoopcast/predict"
	"hoopcast/utils"
)

type Worker struct {
	Id     int
	Quit   chan bool
	IsIdle bool
}

func NewWorker(id int) *Worker {
	return &Worker{
		Id:     id,
		Quit:   make(chan bool, 1),
		IsIdle: true,
	}
}

// DoYourJob runs one prediction batch end to end: resolve the two teams,
// analyze both rosters, persist per-player results, finish the job.
func (w *Worker) DoYourJob(job *db.Job) {
	defer func() { w.IsIdle = true }()
	log := logger.WithJob(job.Slug).WithField("worker", w.Id)

	home, err := db.SelectTeamByAbbreviation(job.HomeTeam)
	if err != nil {
		log.WithError(err).Error("unknown home team")
		if err := job.OhNo(err); err != nil {
			log.Println(err)
		}
		return
	}
	away, err := db.SelectTeamByAbbreviation(job.AwayTeam)
	if err != nil {
		log.WithError(err).Error("unknown away team")
		if err := job.OhNo(err); err != nil {
			log.Println(err)
		}
		return
	}

	engine := predict.NewEngine(predict.LiveProvider{}, predict.SQLiteStore{})
	outlooks, err := engine.Run(predict.Request{
		Home:      *home,
		Away:      *away,
		ModelType: job.ModelType,
		Category:  job.Category,
	})
	if err != nil {
		log.WithError(err).Error("prediction batch failed")
		if err := job.OhNo(err); err != nil {
			log.Println(err)
		}
		return
	}

	predictions := []db.Prediction{}
	for _, outlook := range outlooks {
		for _, p := range outlook.Players {
			predictions = append(predictions, db.Prediction{
				JobId:      job.Id,
				PlayerID:   p.PlayerID,
				PlayerName: p.PlayerName,
				Team:       p.Team,
				Opponent:   p.Opponent,
				Category:   job.Category,
				Predicted:  p.Predicted,
				RMSE:       p.RMSE,
				CareerAvg:  p.CareerAvg,
				SkipReason: p.SkipReason,
			})
		}
	}
	if err := db.InsertPredictions(predictions); err != nil {
		log.WithError(err).Error("failed to persist predictions")
		if err := job.OhNo(err); err != nil {
			log.Println(err)
		}
		return
	}

	job.State = "FINISHED"
	if err := db.UpdateJob(job); err != nil {
		log.WithError(err).Error("failed to finish job")
		if err := job.OhNo(err); err != nil {
			log.Println(err)
		}
		return
	}
	log.Infof("finished: %d player results", len(predictions))
}

type Scheduler struct {
	Id           int
	MaxWorkers   int
	PollInterval time.Duration
	Workers      []*Worker
}

func NewScheduler(id int, maxWorkers int, pollInterval time.Duration) *Scheduler {
	s := Scheduler{
		Id:           id,
		MaxWorkers:   maxWorkers,
		PollInterval: pollInterval,
		Workers:      make([]*Worker, 0, maxWorkers),
	}
	for i := 0; i < maxWorkers; i++ {
		s.Workers = append(s.Workers, NewWorker(i))
	}
	return &s
}

func (s *Scheduler) Start() {
	ticker := time.NewTicker(s.PollInterval)
	defer ticker.Stop()
	for range ticker.C {
		w := s.GetIdleWorker()
		if w == nil {
			continue
		}
		w.IsIdle = false

		job, err := db.SelectJobForUpdate()
		if err != nil && strings.Contains(err.Error(), "QUEUE EMPTY") {
			w.IsIdle = true
			continue
		} else if err != nil {
			w.IsIdle = true
			logger.GetLogger().Error(utils.ErrorWithTrace(err))
			continue
		}
		go w.DoYourJob(job)
	}
}

func (s *Scheduler) GetIdleWorker() *Worker {
	for _, w := range s.Workers {
		if w.IsIdle {
			return w
		}
	}
	return nil
}

// StalledJobsJanitor periodically requeues jobs stuck in RUNNING.
func StalledJobsJanitor(duration time.Duration) {
	ticker := time.NewTicker(duration)
	defer ticker.Stop()
	for range ticker.C {
		if err := db.ResetStaleJobs(); err != nil {
			logger.GetLogger().Error(err)
		}
	}
}
