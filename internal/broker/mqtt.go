// Package broker connects to the MQTT broker shared by the tilt sensor feed
// and the voice output.
package broker

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/goodtune/gravityease/internal/config"
	"github.com/rs/zerolog"
)

const connectTimeout = 10 * time.Second

// Dial connects a client whose ID is the configured client ID plus suffix.
// onConnect runs after every (re)connect so subscriptions survive broker
// restarts.
func Dial(cfg config.MQTTConfig, suffix string, onConnect func(mqtt.Client), logger zerolog.Logger) (mqtt.Client, error) {
	log := logger.With().Str("component", "mqtt").Str("client", suffix).Logger()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID + "-" + suffix).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout).
		SetOnConnectHandler(func(c mqtt.Client) {
			log.Info().Str("broker", cfg.Broker).Msg("Connected to MQTT broker")
			if onConnect != nil {
				onConnect(c)
			}
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn().Err(err).Msg("MQTT connection lost")
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connect to %s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Broker, err)
	}
	return client, nil
}
