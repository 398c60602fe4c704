// Package mqtt provides the broker connection shared by device drivers and
// the alert sink.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS validation and a 1MB payload cap
//   - Subscriptions that are replayed after a reconnect
//   - A retained online/offline status with a Last Will
//
// # Architecture
//
// Drivers never see paho. They hold a device.Transport, which *Client
// satisfies:
//
//	Driver ──Publish(command topic)──▶ Client ──▶ Broker ──▶ device
//	Driver ◀──handler(state topic)─── Client ◀── Broker ◀── device
//
// Core-owned topics live under the configured prefix (default "homecore"):
//
//	homecore/system/status   retained, online/offline, LWT
//	homecore/alerts          escalated alerts from notify.MQTTSink
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe("zigbee2mqtt/hall_sensor", 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("%s = %s", topic, payload)
//	        return nil
//	    })
package mqtt
