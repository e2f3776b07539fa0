package service

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// SchedulerService runs named daily jobs. A job that is still running when
// its next slot comes up is skipped, and a panicking job is recovered.
type SchedulerService struct {
	cron *cron.Cron
	log  logrus.FieldLogger

	mu   sync.Mutex
	jobs map[string]cron.EntryID
}

func NewSchedulerService(loc *time.Location, log logrus.FieldLogger) *SchedulerService {
	clog := cronLogger{log: log}
	return &SchedulerService{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithSeconds(),
			cron.WithLogger(clog),
			cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
		),
		log:  log,
		jobs: make(map[string]cron.EntryID),
	}
}

// RegisterDaily schedules job under name at the given HH:MM time string.
// Registering a name again replaces the previous schedule.
func (s *SchedulerService) RegisterDaily(name, at string, job func()) error {
	spec, err := buildDailySpec(at)
	if err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.jobs[name]; ok {
		s.cron.Remove(old)
	}
	id, err := s.cron.AddJob(spec, s.timed(name, job))
	if err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}
	s.jobs[name] = id
	s.log.WithFields(logrus.Fields{"job": name, "at": strings.TrimSpace(at)}).Info("job registered")
	return nil
}

// RunNow runs a registered job synchronously through the same chain as a
// scheduled run, so it never overlaps a scheduled one.
func (s *SchedulerService) RunNow(name string) error {
	s.mu.Lock()
	id, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %s is not registered", name)
	}
	s.cron.Entry(id).WrappedJob.Run()
	return nil
}

// Next returns the next planned run of the named job. The time is only
// known once the scheduler has started.
func (s *SchedulerService) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	next := s.cron.Entry(id).Next
	return next, !next.IsZero()
}

func (s *SchedulerService) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for running jobs to return.
func (s *SchedulerService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *SchedulerService) timed(name string, job func()) cron.FuncJob {
	return func() {
		started := time.Now()
		log := s.log.WithField("job", name)
		log.Debug("job started")
		job()
		log.WithField("duration", time.Since(started)).Info("job finished")
	}
}

func buildDailySpec(timeStr string) (string, error) {
	parts := strings.Split(strings.TrimSpace(timeStr), ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid time %q, expected HH:MM", timeStr)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour in %q", timeStr)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute in %q", timeStr)
	}
	// cron format: second minute hour dom month dow
	return fmt.Sprintf("0 %d %d * * *", minute, hour), nil
}

// cronLogger routes cron's internal messages to logrus.
type cronLogger struct {
	log logrus.FieldLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(cronFields(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithError(err).WithFields(cronFields(keysAndValues)).Error("cron: " + msg)
}

func cronFields(keysAndValues []interface{}) logrus.Fields {
	fields := make(logrus.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
