// Package device provides the entity model for homecore: rooms, devices
// and the capability tables rules act through.
//
// # Architecture
//
//	┌───────────────────────────────────────────────────────────────┐
//	│                           Registry                            │
//	│                                                               │
//	│   Room ──▶ Switch │ Light │ Climate │ Sensor (timeseries)      │
//	│     │                       │                                 │
//	│     └──── Capabilities ◀────┘  (Method / Property tables)     │
//	└──────────────┬───────────────────────────────┬────────────────┘
//	               │ Env.Transport (MQTT)          │ Repository
//	               ▼                               ▼
//	        driver topics                   SQLite (rooms, devices)
//
// # Lifecycle
//
// A device is constructed or decoded from its tagged JSON envelope, added
// to a Room through the Registry, and then set up with the shared Env.
// System calls Update on every device each tick and runs inactivity checks
// and sensor maintenance every check interval. Stop is called on removal
// and on shutdown.
//
// # Capabilities
//
// Rules never reflect over device structs. Each variant publishes a static
// table of named methods and properties with declared parameter types, and
// the automation package coerces literal arguments against those types
// before calling.
//
// # Usage
//
//	reg := device.NewRegistry(&device.Env{Bus: bus, Transport: mqttClient})
//	if _, err := reg.AddRoom("Kitchen"); err != nil {
//	    return err
//	}
//	lamp := &device.Switch{Base: device.Base{Name: "Lamp"}, CommandTopic: "kitchen/lamp/set"}
//	if err := reg.AddDevice("Kitchen", lamp); err != nil {
//	    return err
//	}
//	target, _ := reg.Resolve("Kitchen", "Lamp")
//	_ = target.Capabilities().Invoke(ctx, "TurnOn", nil)
//
// # Thread Safety
//
// Registry and Room are safe for concurrent use. Device state touched by
// transport callbacks and the tick loop is guarded by the device mutex.
package device
