package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule saves every five minutes.
const DefaultSchedule = "*/5 * * * *"

// defaultSaveTimeout bounds one scheduled save.
const defaultSaveTimeout = time.Minute

// ErrInvalidSchedule is returned for a cron expression that does not parse.
var ErrInvalidSchedule = errors.New("snapshot: invalid schedule")

// Saver is what the scheduler runs. Store implements it.
type Saver interface {
	Save(ctx context.Context) error
}

// Scheduler runs Save on a cron schedule and once more on Stop. It
// implements orchestrator.System; list it last so it is stopped first,
// while devices and actions are still live.
type Scheduler struct {
	saver   Saver
	cron    *cron.Cron
	timeout time.Duration
	logger  Logger
}

// NewScheduler validates spec (standard five-field cron, descriptors such
// as "@hourly" allowed) and prepares the scheduler. Jobs run in loc.
func NewScheduler(saver Saver, spec string, loc *time.Location) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	if loc == nil {
		loc = time.Local
	}

	s := &Scheduler{
		saver:   saver,
		timeout: defaultSaveTimeout,
		logger:  noopLogger{},
	}
	s.cron = cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := s.cron.AddFunc(spec, s.save); err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidSchedule, spec, err)
	}
	return s, nil
}

// SetLogger sets the logger.
func (s *Scheduler) SetLogger(logger Logger) {
	s.logger = logger
}

// Name implements orchestrator.System.
func (s *Scheduler) Name() string { return "snapshot" }

// Setup implements orchestrator.System. It starts the cron goroutine.
func (s *Scheduler) Setup(context.Context) error {
	s.cron.Start()
	return nil
}

// Update implements orchestrator.System.
func (s *Scheduler) Update(context.Context) error { return nil }

// Stop implements orchestrator.System. It waits for a running save and
// then saves one final time.
func (s *Scheduler) Stop() error {
	<-s.cron.Stop().Done()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.saver.Save(ctx); err != nil {
		return fmt.Errorf("final snapshot: %w", err)
	}
	s.logger.Info("final snapshot saved")
	return nil
}

// Next returns the time of the next scheduled save, or the zero time
// before Setup.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) save() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.saver.Save(ctx); err != nil {
		s.logger.Warn("scheduled snapshot failed", "error", err)
	}
}
