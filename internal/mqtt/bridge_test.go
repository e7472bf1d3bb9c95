package mqtt

import (
	"context"
	"testing"
	"time"

	"github.com/emberhearth/ember/internal/config"
	"github.com/emberhearth/ember/internal/events"
)

type recordingPerceiver struct {
	scenes []string
	tones  []string
	confs  []float64
}

func (r *recordingPerceiver) ProcessScene(_ context.Context, camera, description string) string {
	r.scenes = append(r.scenes, camera+": "+description)
	return ""
}

func (r *recordingPerceiver) ProcessTone(tone string, confidence float64) string {
	r.tones = append(r.tones, tone)
	r.confs = append(r.confs, confidence)
	return ""
}

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		BrokerURL:  "tcp://localhost:1883",
		ClientID:   "ember",
		SceneTopic: "ember/vision/scene",
		ToneTopic:  "ember/voice/tone",
	}
}

func TestRouteScene(t *testing.T) {
	p := &recordingPerceiver{}
	b := New(testConfig(), p, nil)

	b.route(context.Background(), "ember/vision/scene",
		[]byte(`{"camera": "front_door", "description": "a package on the step"}`))

	if len(p.scenes) != 1 || p.scenes[0] != "front_door: a package on the step" {
		t.Errorf("scenes = %v", p.scenes)
	}
}

func TestRouteSceneDefaultsCamera(t *testing.T) {
	p := &recordingPerceiver{}
	b := New(testConfig(), p, nil)

	b.route(context.Background(), "ember/vision/scene",
		[]byte(`{"description": "movement in the hallway"}`))

	if len(p.scenes) != 1 || p.scenes[0] != "default: movement in the hallway" {
		t.Errorf("scenes = %v", p.scenes)
	}
}

func TestRouteTone(t *testing.T) {
	p := &recordingPerceiver{}
	b := New(testConfig(), p, nil)

	b.route(context.Background(), "ember/voice/tone",
		[]byte(`{"tone": "stressed", "confidence": 0.8}`))

	if len(p.tones) != 1 || p.tones[0] != "stressed" {
		t.Errorf("tones = %v", p.tones)
	}
	if p.confs[0] != 0.8 {
		t.Errorf("confidence = %f, want 0.8", p.confs[0])
	}
}

func TestRouteToneDefaultsConfidence(t *testing.T) {
	p := &recordingPerceiver{}
	b := New(testConfig(), p, nil)

	b.route(context.Background(), "ember/voice/tone", []byte(`{"tone": "happy"}`))

	if len(p.confs) != 1 || p.confs[0] != 1.0 {
		t.Errorf("missing confidence should default to 1, got %v", p.confs)
	}
}

func TestRouteIgnoresMalformedAndForeign(t *testing.T) {
	p := &recordingPerceiver{}
	b := New(testConfig(), p, nil)

	b.route(context.Background(), "ember/vision/scene", []byte(`{broken`))
	b.route(context.Background(), "other/topic", []byte(`{"tone": "happy"}`))

	if len(p.scenes) != 0 || len(p.tones) != 0 {
		t.Errorf("malformed or foreign messages reached the perceiver: %v %v", p.scenes, p.tones)
	}
}

func TestEmotionShiftDecoding(t *testing.T) {
	e, i, ok := emotionShift(events.Event{
		Kind: events.KindEmotionShift,
		Data: map[string]any{"emotion": "Joy", "intensity": 0.7, "cause": "good news"},
	})
	if !ok || e != "Joy" || i != 0.7 {
		t.Errorf("decoded = %q %f %v", e, i, ok)
	}

	if _, _, ok := emotionShift(events.Event{Kind: events.KindTurnStart}); ok {
		t.Error("foreign event kinds should be skipped")
	}
	if _, _, ok := emotionShift(events.Event{Kind: events.KindEmotionShift, Data: map[string]any{}}); ok {
		t.Error("shift without an emotion label should be skipped")
	}
}

func TestWatchEmotionsStopsOnCancel(t *testing.T) {
	b := New(testConfig(), &recordingPerceiver{}, nil)
	bus := events.New()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.WatchEmotions(ctx, bus)
		close(done)
	}()

	// An offline bridge swallows the publish but must keep consuming.
	bus.Publish(events.Event{
		Kind: events.KindEmotionShift,
		Data: map[string]any{"emotion": "Curiosity", "intensity": 0.5},
	})
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("WatchEmotions did not return after cancel")
	}
}

func TestStopWithoutStartIsNoop(t *testing.T) {
	b := New(testConfig(), &recordingPerceiver{}, nil)
	if err := b.Stop(context.Background()); err != nil {
		t.Errorf("Stop() before Start() = %v, want nil", err)
	}
}
