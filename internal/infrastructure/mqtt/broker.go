package mqtt

import (
	"fmt"
	"log/slog"

	mqttbroker "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
)

// Broker is an in-process MQTT broker for installations without one.
// It accepts any client; put it on a trusted interface only.
type Broker struct {
	server  *mqttbroker.Server
	address string
}

// StartBroker listens on address (for example ":1883") and begins serving.
func StartBroker(address string, logger *slog.Logger) (*Broker, error) {
	if logger == nil {
		logger = slog.Default()
	}

	server := mqttbroker.New(&mqttbroker.Options{
		Logger: logger.With(slog.String("component", "mqtt-broker")),
	})

	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, fmt.Errorf("adding broker auth hook: %w", err)
	}

	tcp := listeners.NewTCP(listeners.Config{ID: "tcp", Address: address})
	if err := server.AddListener(tcp); err != nil {
		return nil, fmt.Errorf("adding broker listener on %s: %w", address, err)
	}

	if err := server.Serve(); err != nil {
		server.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("starting broker: %w", err)
	}

	return &Broker{server: server, address: address}, nil
}

// Address returns the configured listen address.
func (b *Broker) Address() string {
	return b.address
}

// Close disconnects all clients and stops the listeners.
func (b *Broker) Close() error {
	if b == nil || b.server == nil {
		return nil
	}
	return b.server.Close()
}
