package cli

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"taskflow/internal/config"
	"taskflow/internal/logging"
	"taskflow/internal/repository"
	"taskflow/internal/service"
)

// app is the wired object graph shared by the commands.
type app struct {
	cfg    config.Config
	log    *logrus.Logger
	db     *gorm.DB
	locker *service.TaskLocker

	tasks       *repository.TaskRepository
	users       *repository.UserRepository
	occurrences *repository.OccurrenceRepository

	assigneeSvc *service.AssigneeService
	syncSvc     *service.OccurrenceService
	taskSvc     *service.TaskService
	sweepSvc    *service.SweepService
	digestSvc   *service.DigestService
}

func newApp(opts *RootOptions) (*app, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	level := cfg.LogLevel
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	logger, err := logging.New(level)
	if err != nil {
		return nil, err
	}

	db, err := repository.NewDB(cfg.DatabaseDriver, cfg.DatabaseURL, logger.WithField("component", "db"))
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}

	a := &app{
		cfg:         cfg,
		log:         logger,
		db:          db,
		locker:      service.NewTaskLocker(),
		tasks:       repository.NewTaskRepository(db),
		users:       repository.NewUserRepository(db),
		occurrences: repository.NewOccurrenceRepository(db),
	}
	a.assigneeSvc = service.NewAssigneeService(db, a.tasks, a.occurrences, cfg.OccurrenceBatchSize, logger)
	a.syncSvc = service.NewOccurrenceService(db, a.tasks, a.occurrences, a.assigneeSvc, service.OccurrenceOptions{
		Location:       cfg.Location(),
		MaxOccurrences: cfg.MaxOccurrences,
		BatchSize:      cfg.OccurrenceBatchSize,
	}, logger)
	a.taskSvc = service.NewTaskService(db, a.tasks, a.users, a.syncSvc, a.assigneeSvc, a.locker, cfg.DateChangeTolerance, logger)
	a.sweepSvc = service.NewSweepService(a.tasks, a.syncSvc, a.locker, cfg.SweepWorkers, cfg.SyncTimeout, logger)
	a.digestSvc = service.NewDigestService(a.tasks, a.occurrences, a.users, a.syncSvc)
	return a, nil
}

func (a *app) Close() {
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
}
