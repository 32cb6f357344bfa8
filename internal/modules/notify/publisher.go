// README: MQTT publisher: forwards dispatch events to a broker, one topic per event type.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"stationq/internal/events"
)

const DefaultTopicPrefix = "stationq/events"

// Client is the part of a paho client the publisher uses.
type Client interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type MQTTPublisher struct {
	client Client
	prefix string
	qos    byte
}

func NewMQTTPublisher(client Client, prefix string, qos byte) *MQTTPublisher {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return &MQTTPublisher{client: client, prefix: strings.TrimSuffix(prefix, "/"), qos: qos}
}

func (p *MQTTPublisher) Name() string { return "mqtt" }

// Topic is the topic an event of type t is published on.
func (p *MQTTPublisher) Topic(t events.Type) string {
	return p.prefix + "/" + string(t)
}

func (p *MQTTPublisher) Handle(ctx context.Context, ev events.Event) error {
	if !p.client.IsConnected() {
		return fmt.Errorf("mqtt: not connected")
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	token := p.client.Publish(p.Topic(ev.Type), p.qos, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return fmt.Errorf("mqtt publish %s: %w", ev.Type, ctx.Err())
	}
}
