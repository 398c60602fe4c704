// Package timeseries stores and ages per-sensor readings.
//
// A Series keeps a map of ingestion timestamp to channel values. Channels
// ("sub names") are either instantaneous readings such as temperature, or
// cumulative counters such as an energy meter. Counters are stored as the
// non-negative increase since the previous reading, so summing a range gives
// consumption over that range.
//
// Retention runs in three tiers:
//   - the last 24 hours stay raw
//   - between yesterday's midnight and 24 hours ago, Compact keeps one bucket
//     per check interval
//   - earlier days are collapsed by Archive into one midnight bucket per day,
//     and anything older than the retention period is dropped
//
// SQLiteRepository persists a Series snapshot between restarts.
package timeseries
