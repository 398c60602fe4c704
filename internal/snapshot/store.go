package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/homecore/internal/automation"
	"github.com/nerrad567/homecore/internal/device"
	"github.com/nerrad567/homecore/internal/timeseries"
)

// Logger defines the logging interface used by snapshots.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Store loads and saves the whole graph.
type Store struct {
	devices    *device.Registry
	deviceRepo device.Repository
	series     timeseries.Repository
	actions    *automation.Registry
	logger     Logger
}

// NewStore creates a snapshot store over the live registries and their
// repositories.
func NewStore(devices *device.Registry, deviceRepo device.Repository, series timeseries.Repository, actions *automation.Registry) *Store {
	return &Store{
		devices:    devices,
		deviceRepo: deviceRepo,
		series:     series,
		actions:    actions,
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// Load restores rooms, devices, sensor samples and actions.
//
// Devices are set up by the registry as they load; actions are cached and
// set up later by the action system. A sensor whose samples cannot be read
// starts empty. Failures are collected; everything that loaded stays.
func (s *Store) Load(ctx context.Context) error {
	specs, err := s.deviceRepo.LoadRooms(ctx)
	if err != nil {
		return fmt.Errorf("loading rooms: %w", err)
	}

	var errs []error
	sensors := 0
	for _, room := range specs {
		for _, env := range room.Devices {
			sensor, ok := env.Device.(*device.Sensor)
			if !ok {
				continue
			}
			id := sensorID(room.Name, sensor.Name)
			samples, last, err := s.series.Load(ctx, id)
			if err != nil {
				errs = append(errs, fmt.Errorf("loading samples of %s: %w", id, err))
				continue
			}
			sensor.Series().Restore(samples, last)
			sensors++
		}
	}

	if err := s.devices.Load(specs); err != nil {
		errs = append(errs, err)
	}
	if err := s.actions.RefreshCache(ctx); err != nil {
		errs = append(errs, err)
	}

	s.logger.Info("snapshot loaded",
		"rooms", len(specs),
		"sensors", sensors,
		"actions", s.actions.Count(),
	)
	return errors.Join(errs...)
}

// Save writes the current graph. Each part is attempted even when an
// earlier one fails.
func (s *Store) Save(ctx context.Context) error {
	var errs []error

	if err := s.deviceRepo.SaveRooms(ctx, s.devices.Specs()); err != nil {
		errs = append(errs, fmt.Errorf("saving rooms: %w", err))
	}
	sensors := s.devices.Sensors()
	for _, sensor := range sensors {
		series := sensor.Series()
		if err := s.series.Save(ctx, sensor.ID(), series.Samples(), series.LastReadings()); err != nil {
			errs = append(errs, fmt.Errorf("saving samples of %s: %w", sensor.ID(), err))
		}
	}
	if err := s.actions.SaveAll(ctx); err != nil {
		errs = append(errs, err)
	}

	err := errors.Join(errs...)
	if err != nil {
		s.logger.Warn("snapshot saved with errors", "error", err)
	} else {
		s.logger.Debug("snapshot saved", "sensors", len(sensors), "actions", s.actions.Count())
	}
	return err
}

// sensorID matches device.Sensor.ID for a sensor not yet attached.
func sensorID(room, name string) string {
	return room + "." + name
}
