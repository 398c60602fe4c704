package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/homecore/internal/orchestrator"
)

// Defaults for the device system.
const (
	DefaultCheckInterval    = 15 * time.Minute
	DefaultDeviceTimeout    = 5 * time.Second
	DefaultInactiveValidity = 24 * time.Hour
)

// Notifier delivers deduplicated alerts. The notify package implements it.
type Notifier interface {
	NotifyOncePerValidity(key, message string, validity time.Duration) bool
}

// SystemConfig tunes the device system.
type SystemConfig struct {
	// Workers bounds concurrent device updates. Zero means unbounded.
	Workers int
	// DeviceTimeout bounds one device's Update.
	DeviceTimeout time.Duration
	// CheckInterval is the cadence of inactivity checks and sensor maintenance.
	CheckInterval time.Duration
	// InactiveValidity is how long an inactivity alert suppresses repeats.
	InactiveValidity time.Duration
}

// System drives every device from the tick loop. It implements orchestrator.System.
type System struct {
	registry *Registry
	notifier Notifier
	cfg      SystemConfig
	logger   Logger

	mu        sync.Mutex
	lastCheck time.Time
}

// NewSystem creates the device system. notifier may be nil, in which case
// inactivity is only logged.
func NewSystem(registry *Registry, notifier Notifier, cfg SystemConfig) *System {
	if cfg.DeviceTimeout <= 0 {
		cfg.DeviceTimeout = DefaultDeviceTimeout
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	if cfg.InactiveValidity <= 0 {
		cfg.InactiveValidity = DefaultInactiveValidity
	}
	return &System{
		registry: registry,
		notifier: notifier,
		cfg:      cfg,
		logger:   registry.logger,
	}
}

// SetLogger sets the logger for the system.
func (s *System) SetLogger(logger Logger) {
	s.logger = logger
}

// Name implements orchestrator.System.
func (s *System) Name() string { return "devices" }

// Setup implements orchestrator.System. Devices are set up as they are
// added to the registry, so this only starts the check clock.
func (s *System) Setup(context.Context) error {
	s.mu.Lock()
	s.lastCheck = s.registry.env.Now()
	s.mu.Unlock()
	return nil
}

// Update implements orchestrator.System. It updates all devices concurrently
// and runs maintenance when a check interval has elapsed.
func (s *System) Update(ctx context.Context) error {
	devices := s.registry.Devices()
	errs := orchestrator.FanOut(ctx, s.cfg.Workers, devices, func(ctx context.Context, d Device) error {
		ctx, cancel := context.WithTimeout(ctx, s.cfg.DeviceTimeout)
		defer cancel()
		return d.Update(ctx)
	})
	for i, err := range errs {
		if err != nil {
			s.logger.Warn("device update failed", "device", devices[i].TargetName(), "error", err)
		}
	}

	now := s.registry.env.Now()
	s.mu.Lock()
	due := now.Sub(s.lastCheck) >= s.cfg.CheckInterval
	if due {
		s.lastCheck = now
	}
	s.mu.Unlock()

	if due {
		s.check(now, devices)
	}
	return nil
}

// Stop implements orchestrator.System.
func (s *System) Stop() error {
	s.registry.Close()
	return nil
}

// check raises inactivity alerts and maintains sensor series.
//
// A device is reported once its last report is between four and five check
// intervals old, so each outage alerts at most once per window even
// without a notifier.
func (s *System) check(now time.Time, devices []Device) {
	low, high := 4*s.cfg.CheckInterval, 5*s.cfg.CheckInterval
	for _, d := range devices {
		last := d.Common().LastOnline()
		if last.IsZero() {
			continue
		}
		age := now.Sub(last)
		if age < low || age >= high {
			continue
		}
		msg := fmt.Sprintf("%s has not reported since %s", d.TargetName(), last.Format(time.RFC3339))
		s.logger.Warn("device inactive", "device", d.TargetName(), "last_online", last)
		if s.notifier != nil {
			s.notifier.NotifyOncePerValidity("inactive:"+d.TargetName(), msg, s.cfg.InactiveValidity)
		}
	}

	for _, sensor := range s.registry.Sensors() {
		series := sensor.Series()
		series.FillGaps(now)
		series.Compact(now, s.cfg.CheckInterval)
	}
}
