package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// LogOutput writes utterances to the log instead of a speech engine.
type LogOutput struct {
	logger zerolog.Logger
}

// NewLogOutput creates a log-backed output.
func NewLogOutput(logger zerolog.Logger) *LogOutput {
	return &LogOutput{logger: logger.With().Str("component", "voice-log").Logger()}
}

func (o *LogOutput) Say(_ context.Context, text string) error {
	o.logger.Info().Str("text", text).Msg("Speak")
	return nil
}

func (o *LogOutput) Stop() error {
	o.logger.Info().Msg("Stop speaking")
	return nil
}

// MQTTOutput hands utterances to a speech device listening on topic/say and
// topic/stop.
type MQTTOutput struct {
	client   mqtt.Client
	topic    string
	language string
}

type sayMessage struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	At       time.Time `json:"at"`
}

// NewMQTTOutput creates an output publishing on client.
func NewMQTTOutput(client mqtt.Client, topic, language string) *MQTTOutput {
	return &MQTTOutput{client: client, topic: topic, language: language}
}

func (o *MQTTOutput) Say(ctx context.Context, text string) error {
	payload, err := json.Marshal(sayMessage{Text: text, Language: o.language, At: time.Now()})
	if err != nil {
		return fmt.Errorf("marshal utterance: %w", err)
	}
	return o.publish(ctx, o.topic+"/say", payload)
}

func (o *MQTTOutput) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return o.publish(ctx, o.topic+"/stop", []byte("{}"))
}

func (o *MQTTOutput) publish(ctx context.Context, topic string, payload []byte) error {
	token := o.client.Publish(topic, 1, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disconnects the underlying client.
func (o *MQTTOutput) Close() {
	o.client.Disconnect(250)
}
