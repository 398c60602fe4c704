// Package snapshot persists the live entity graph and restores it at
// startup.
//
// A snapshot covers three stores, all in the same SQLite database:
//
//	rooms + devices ── device.Repository      (tagged JSON per device)
//	sensor samples  ── timeseries.Repository  (keyed by "Room.Sensor")
//	actions         ── automation.Registry    (definitions, time-trigger deadlines)
//
// Load restores sensor samples before devices are set up, so Setup sees
// the restored series. Save is run on a cron schedule by Scheduler and
// once more on shutdown.
package snapshot
