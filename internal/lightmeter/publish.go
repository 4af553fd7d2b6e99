package lightmeter

import (
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher forwards recorded results to another system.
type Publisher interface {
	Publish(result LuxResults) error
}

// MQTTPublisher publishes each result as retained JSON on a topic.
type MQTTPublisher struct {
	client mqtt.Client
	topic  string
}

// Connect to the MQTT broker, e.g. tcp://localhost:1883
func NewMQTTPublisher(broker, clientID, topic string) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("MQTT connect error: %w", token.Error())
	}
	return &MQTTPublisher{client: client, topic: topic}, nil
}

func (p *MQTTPublisher) Publish(result LuxResults) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("json marshal error: %w", err)
	}
	if token := p.client.Publish(p.topic, 0, true, payload); token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT publish error: %w", token.Error())
	}
	return nil
}

func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
