// Package config handles loading and validating homecore configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with HOMECORE_* environment variables
//   - Validation of required fields and ranges
//   - Default value handling
//
// Sensitive values (MQTT password, InfluxDB token) should be supplied through
// the environment rather than the file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	loop := orchestrator.NewLoop(cfg.Runtime.TickInterval, bus)
package config
