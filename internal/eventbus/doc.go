// Package eventbus is the in-process publish/subscribe hub that connects
// devices, sensors and automation rules.
//
// Dispatch is synchronous: Fire returns after every subscriber has run.
// Subscribers that need to do slow work (executing an action, talking to a
// device) hand it to a worker pool instead of blocking the firing goroutine.
//
//	bus := eventbus.New()
//	sub := bus.Subscribe(func(e eventbus.Event) {
//	    if e.Type == eventbus.SensorDataAdded { ... }
//	})
//	defer bus.Unsubscribe(sub)
package eventbus
