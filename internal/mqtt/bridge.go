// Package mqtt bridges external perception pipelines into the agent.
// Vision and voice-analysis services publish scene descriptions and
// tone classifications to the broker; the bridge subscribes and feeds
// them to the multimodal analyzer. The agent's availability and
// dominant emotion are published back for anything that wants to
// listen.
package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/emberhearth/ember/internal/config"
	"github.com/emberhearth/ember/internal/events"
)

// Perceiver receives decoded perception events. The multimodal
// analyzer satisfies it.
type Perceiver interface {
	ProcessScene(ctx context.Context, camera, description string) string
	ProcessTone(tone string, confidence float64) string
}

// Bridge manages the broker connection and subscription routing.
type Bridge struct {
	cfg       config.MQTTConfig
	perceiver Perceiver
	logger    *slog.Logger
	cm        *autopaho.ConnectionManager
}

// scenePayload is the wire shape on the scene topic.
type scenePayload struct {
	Camera      string `json:"camera"`
	Description string `json:"description"`
}

// tonePayload is the wire shape on the tone topic.
type tonePayload struct {
	Tone       string  `json:"tone"`
	Confidence float64 `json:"confidence"`
}

// New creates a Bridge but does not connect. Call Start to begin.
func New(cfg config.MQTTConfig, perceiver Perceiver, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{cfg: cfg, perceiver: perceiver, logger: logger}
}

// Start connects to the broker, subscribes to the perception topics,
// and blocks until ctx is cancelled.
func (b *Bridge) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(b.cfg.BrokerURL)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	availTopic := b.availabilityTopic()

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: b.cfg.Username,
		ConnectPassword: []byte(b.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   availTopic,
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			b.logger.Info("mqtt connected", "broker", b.cfg.BrokerURL)
			if _, err := cm.Subscribe(ctx, &paho.Subscribe{
				Subscriptions: []paho.SubscribeOptions{
					{Topic: b.cfg.SceneTopic, QoS: 0},
					{Topic: b.cfg.ToneTopic, QoS: 0},
				},
			}); err != nil {
				b.logger.Warn("mqtt subscribe failed", "error", err)
			}
			b.publishAvailability(ctx, cm, "online")
		},
		OnConnectError: func(err error) {
			b.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: b.cfg.ClientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					b.route(ctx, pr.Packet.Topic, pr.Packet.Payload)
					return true, nil
				},
			},
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	b.cm = cm

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		// autopaho keeps retrying in the background.
		b.logger.Warn("mqtt initial connection timed out, will retry", "error", err)
	}

	<-ctx.Done()
	return nil
}

// Stop publishes offline availability and disconnects.
func (b *Bridge) Stop(ctx context.Context) error {
	if b.cm == nil {
		return nil
	}
	b.publishAvailability(ctx, b.cm, "offline")
	return b.cm.Disconnect(ctx)
}

// route dispatches an inbound message by topic.
func (b *Bridge) route(ctx context.Context, topic string, payload []byte) {
	switch topic {
	case b.cfg.SceneTopic:
		var p scenePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			b.logger.Debug("mqtt scene payload malformed", "error", err)
			return
		}
		if p.Camera == "" {
			p.Camera = "default"
		}
		b.perceiver.ProcessScene(ctx, p.Camera, p.Description)

	case b.cfg.ToneTopic:
		var p tonePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			b.logger.Debug("mqtt tone payload malformed", "error", err)
			return
		}
		if p.Confidence == 0 {
			p.Confidence = 1
		}
		b.perceiver.ProcessTone(p.Tone, p.Confidence)

	default:
		b.logger.Debug("mqtt message on unexpected topic", "topic", topic)
	}
}

// PublishEmotion publishes the agent's dominant emotion, retained so
// late subscribers see current state.
func (b *Bridge) PublishEmotion(ctx context.Context, emotion string, intensity float64) {
	if b.cm == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"emotion":   emotion,
		"intensity": intensity,
	})
	if err != nil {
		return
	}
	if _, err := b.cm.Publish(ctx, &paho.Publish{
		Topic:   b.baseTopic() + "/state/emotion",
		Payload: payload,
		QoS:     0,
		Retain:  true,
	}); err != nil {
		b.logger.Debug("mqtt publish emotion failed", "error", err)
	}
}

// WatchEmotions mirrors emotion shifts from the event bus onto the
// broker. Blocks until ctx is cancelled.
func (b *Bridge) WatchEmotions(ctx context.Context, bus *events.Bus) {
	ch := bus.Subscribe(16)
	defer bus.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			emotion, intensity, ok := emotionShift(e)
			if !ok {
				continue
			}
			b.PublishEmotion(ctx, emotion, intensity)
		}
	}
}

// emotionShift decodes an emotion-shift event. Reports false for any
// other kind or a payload without an emotion label.
func emotionShift(e events.Event) (emotion string, intensity float64, ok bool) {
	if e.Kind != events.KindEmotionShift {
		return "", 0, false
	}
	emotion, _ = e.Data["emotion"].(string)
	if emotion == "" {
		return "", 0, false
	}
	intensity, _ = e.Data["intensity"].(float64)
	return emotion, intensity, true
}

func (b *Bridge) publishAvailability(ctx context.Context, cm *autopaho.ConnectionManager, state string) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   b.availabilityTopic(),
		Payload: []byte(state),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		b.logger.Warn("mqtt publish availability failed", "error", err)
	}
}

func (b *Bridge) baseTopic() string {
	if b.cfg.ClientID != "" {
		return b.cfg.ClientID
	}
	return "ember"
}

func (b *Bridge) availabilityTopic() string {
	return b.baseTopic() + "/availability"
}
