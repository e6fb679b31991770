package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"raine/internal/metrics"
	"raine/internal/tracing"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Job is a named unit of scheduled work.
type Job struct {
	Name     string
	Schedule string
	Timeout  time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs jobs on cron schedules in a fixed location. A job never
// overlaps with itself.
type Scheduler struct {
	cron   *cron.Cron
	parser cron.Parser
	logger *logrus.Logger

	mu     sync.Mutex
	jobs   map[string]Job
	ctx    context.Context
	stopCh chan struct{}
	once   sync.Once
}

func NewScheduler(loc *time.Location, logger *logrus.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	cronLogger := cronLogrus{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithParser(parser),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		parser: parser,
		logger: logger,
		jobs:   make(map[string]Job),
		ctx:    context.Background(),
		stopCh: make(chan struct{}),
	}
}

// AddJob registers job. The schedule is validated here.
func (s *Scheduler) AddJob(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("job requires a name and a run function")
	}
	if _, err := s.parser.Parse(job.Schedule); err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", job.Schedule, job.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("job %s already registered", job.Name)
	}
	if _, err := s.cron.AddFunc(job.Schedule, func() { s.execute(s.baseContext(), job) }); err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", job.Name, err)
	}
	s.jobs[job.Name] = job
	s.logger.WithFields(logrus.Fields{
		LogFieldJob: job.Name,
		"schedule":  job.Schedule,
	}).Info("Scheduled job")
	return nil
}

// RunNow executes the named job synchronously, outside the cron schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %s", name)
	}
	return s.execute(ctx, job)
}

// Start runs the cron loop and blocks until ctx is done or Stop is called.
// Running jobs are waited for before it returns.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.logger.Info("Starting scheduler")
	s.cron.Start()

	select {
	case <-ctx.Done():
		s.logger.Info("Scheduler context cancelled, stopping")
	case <-s.stopCh:
		s.logger.Info("Scheduler stop signal received, stopping")
	}
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stopCh) })
}

func (s *Scheduler) baseContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *Scheduler) execute(ctx context.Context, job Job) error {
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}
	ctx, span := tracing.StartSpan(ctx, "job."+job.Name, tracing.AttrJob.String(job.Name))
	defer span.End()

	log := s.logger.WithField(LogFieldJob, job.Name)
	start := time.Now()
	err := job.Run(ctx)
	duration := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"
		tracing.RecordError(ctx, err)
		log.WithError(err).WithField(LogFieldDuration, duration.Milliseconds()).Error("Scheduled job failed")
	} else {
		log.WithField(LogFieldDuration, duration.Milliseconds()).Info("Scheduled job completed")
	}
	metrics.IncrementCounter(metrics.SchedulerJobRuns, map[string]string{"job": job.Name, "status": status}, "Scheduled job executions")
	return err
}

// cronLogrus adapts logrus to cron.Logger.
type cronLogrus struct {
	logger *logrus.Logger
}

func (l cronLogrus) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(kvFields(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogrus) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithError(err).WithFields(kvFields(keysAndValues)).Error("cron: " + msg)
}

func kvFields(kv []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
