package scheduler

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// JobFunc adapts a function to Job.
type JobFunc struct {
	JobName string
	Fn      func(ctx context.Context) error
}

func (j JobFunc) Name() string { return j.JobName }
func (j JobFunc) Run(ctx context.Context) error { return j.Fn(ctx) }

// Scheduler runs jobs on cron expressions. A run that is still going when its
// next tick arrives causes that tick to be skipped.
type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration
}

// New returns a scheduler whose job runs are cancelled after timeout.
func New(timeout time.Duration) *Scheduler {
	logger := cron.PrintfLogger(log.StandardLogger())
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(logger),
			cron.SkipIfStillRunning(logger),
		)),
		timeout: timeout,
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	log.Info("Scheduler started")
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Info("Scheduler stopped")
}

// AddJob registers job with a standard five-field spec or a descriptor such
// as "@every 5m".
func (s *Scheduler) AddJob(spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		if err := s.RunNow(job); err != nil {
			log.Errorf("Job %s failed: %v", job.Name(), err)
		}
	})
	if err != nil {
		return errors.Wrapf(err, "invalid schedule %q for %s", spec, job.Name())
	}
	log.Infof("Job %s registered with schedule %s", job.Name(), spec)
	return nil
}

// Len is the number of registered jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// RunNow runs job once outside its schedule.
func (s *Scheduler) RunNow(job Job) error {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	log.Debugf("Running job %s", job.Name())
	start := time.Now()
	err := job.Run(ctx)
	log.Debugf("Job %s finished in %s", job.Name(), time.Since(start))
	return err
}
