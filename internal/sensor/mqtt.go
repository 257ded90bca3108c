package sensor

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// tiltPayload accepts either a pose with pitch or raw accelerometer axes.
type tiltPayload struct {
	Pitch *float64 `json:"pitch"`
	AX    *float64 `json:"ax"`
	AY    *float64 `json:"ay"`
	AZ    *float64 `json:"az"`
}

// MQTTSource keeps the latest tilt reading published on a topic.
type MQTTSource struct {
	client      mqtt.Client
	topic       string
	conditioner Conditioner
	staleAfter  time.Duration
	now         func() time.Time
	logger      zerolog.Logger

	mu      sync.RWMutex
	latest  Reading
	haveOne bool
}

// MQTTOptions configures an MQTTSource.
type MQTTOptions struct {
	Topic       string
	Conditioner Conditioner
	StaleAfter  time.Duration
	Now         func() time.Time
}

// NewMQTTSource creates a source; call Subscribe once a client is connected.
func NewMQTTSource(opts MQTTOptions, logger zerolog.Logger) *MQTTSource {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 2 * time.Second
	}
	return &MQTTSource{
		topic:       opts.Topic,
		conditioner: opts.Conditioner,
		staleAfter:  opts.StaleAfter,
		now:         opts.Now,
		logger:      logger.With().Str("component", "sensor").Str("topic", opts.Topic).Logger(),
	}
}

// Subscribe registers the source on client. It is suitable as a broker
// on-connect hook.
func (s *MQTTSource) Subscribe(client mqtt.Client) {
	s.mu.Lock()
	s.client = client
	s.mu.Unlock()

	token := client.Subscribe(s.topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		if err := s.handle(msg.Payload()); err != nil {
			s.logger.Warn().Err(err).Msg("Ignoring tilt payload")
		}
	})
	token.Wait()
	if err := token.Error(); err != nil {
		s.logger.Error().Err(err).Msg("Failed to subscribe to tilt topic")
		return
	}
	s.logger.Info().Msg("Subscribed to tilt topic")
}

func (s *MQTTSource) handle(payload []byte) error {
	var p tiltPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	var pitch float64
	switch {
	case p.Pitch != nil:
		pitch = *p.Pitch
	case p.AX != nil && p.AY != nil && p.AZ != nil:
		pitch = PitchFromAccel(*p.AX, *p.AY, *p.AZ)
	default:
		return fmt.Errorf("payload has neither pitch nor accelerometer axes")
	}

	s.mu.Lock()
	s.latest = Reading{Degrees: s.conditioner.Apply(pitch), At: s.now()}
	s.haveOne = true
	s.mu.Unlock()
	return nil
}

func (s *MQTTSource) Latest() (Reading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.haveOne
}

func (s *MQTTSource) Available() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.haveOne {
		return false
	}
	if s.client != nil && !s.client.IsConnectionOpen() {
		return false
	}
	return s.now().Sub(s.latest.At) <= s.staleAfter
}

func (s *MQTTSource) Close() error {
	s.mu.RLock()
	client := s.client
	s.mu.RUnlock()
	if client != nil {
		client.Unsubscribe(s.topic).Wait()
		client.Disconnect(250)
	}
	return nil
}
