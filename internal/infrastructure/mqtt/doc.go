// Package mqtt provides the broker transport for Forge Fleet Core.
//
// This package wraps eclipse/paho.mqtt.golang and handles:
//   - Connection management with automatic reconnection (fixed backoff)
//   - Publishing with broker-handshake acknowledgement
//   - Subscription tracking and restoration after reconnects
//   - The ff/v1 topic grammar (builders, wildcard patterns, parsing)
//   - Demultiplexing inbound messages into typed events by topic shape
//
// # Delivery semantics
//
// The broker provides at-most-once, unordered delivery per topic. Nothing
// in this package adds guarantees on top: consumers must tolerate message
// loss, duplication, and reordering.
//
// # Offline mode
//
// Setting broker.host to the reserved sentinel "disabled" creates the
// client in offline mode: publishes validate their inputs and return nil,
// and no subscriptions are made. The rest of the application wires up
// identically.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.Broker)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := mqtt.Topics{}
//	client.Subscribe(topics.AllDeviceStatus(), 1, func(topic string, payload []byte) error {
//	    ev, ok := mqtt.ParseEvent(topic, payload)
//	    ...
//	})
package mqtt
