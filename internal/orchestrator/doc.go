// Package orchestrator drives the runtime.
//
// A Loop ticks every System sequentially at a fixed interval. Systems that
// manage many entities (devices, actions) spread each tick across goroutines
// with FanOut, which blocks until every entity is done, so a hung device only
// delays its own tick. Work triggered from event callbacks goes through a
// Pool instead, a fixed set of workers behind a bounded queue.
package orchestrator
