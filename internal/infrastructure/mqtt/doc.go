// Package mqtt connects the controller to the classroom's MQTT bus.
//
// The classroom firmware publishes full device reports on the telemetry
// topic (default "dataUpdate") and accepts complete target states on the
// control topic (default "setControl"). This package wraps
// eclipse/paho.mqtt.golang with:
//
//   - auto-reconnect, with subscriptions restored after every reconnect
//   - a retained Last Will on SystemStatusTopic so other clients can see the
//     controller go offline
//   - panic recovery around message handlers
//
// For bench setups with no external broker, StartBroker runs an in-process
// mochi-mqtt broker that the client then connects to like any other.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	err = client.Subscribe(cfg.MQTT.Topics.Telemetry, 1, ingestor.HandleMessage)
package mqtt
