package pipeline

import (
	"testing"
	"time"
)

func pushLoudFrames(t *testing.T, p *Pipeline, n int, frameSamples int, sample *int64) {
	t.Helper()
	for i := 0; i < n; i++ {
		samples := make([]float32, frameSamples)
		for j := range samples {
			if j%2 == 0 {
				samples[j] = 0.9
			} else {
				samples[j] = -0.9
			}
		}
		p.PushFrame(AudioFrame{Samples: samples, FirstSample: *sample, CaptureTime: time.Now()})
		*sample += int64(frameSamples)
	}
}

func pushSilentFrames(t *testing.T, p *Pipeline, n int, frameSamples int, sample *int64) {
	t.Helper()
	for i := 0; i < n; i++ {
		p.PushFrame(AudioFrame{Samples: make([]float32, frameSamples), FirstSample: *sample, CaptureTime: time.Now()})
		*sample += int64(frameSamples)
	}
}

func TestPipelineEndToEndEmitsTranslation(t *testing.T) {
	cfg := DefaultConfig()
	asrPort := &mockASRPort{text: "the quick brown fox jumps over the lazy dog", language: LangEn, confidence: 0.95, consumedMs: 1000}
	mtPort := &mockMTPort{translated: "le renard brun"}
	cfg.TargetLang = LangFr

	p, err := New(cfg, Ports{ASR: asrPort, MT: mtPort}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	events := make(chan PipelineEvent, 64)
	if err := p.Start(func(e PipelineEvent) { events <- e }); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	frameSamples := cfg.SampleRate * cfg.FrameMs / 1000
	var sample int64

	speechFrames := int(cfg.MinSpeechDurationMs/int64(cfg.FrameMs)) + 5
	pushLoudFrames(t, p, speechFrames, frameSamples, &sample)

	silenceFrames := int(cfg.MinSilenceDurationMs/int64(cfg.FrameMs)) + 3
	pushSilentFrames(t, p, silenceFrames, frameSamples, &sample)

	deadline := time.After(10 * time.Second)
	for {
		select {
		case e := <-events:
			if e.Type == EventTranslation {
				if e.Translation == nil || e.Translation.TranslatedText != "le renard brun" {
					t.Fatalf("unexpected translation event: %+v", e.Translation)
				}
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for an EventTranslation")
		}
	}
}

func TestPipelineStartTwiceFails(t *testing.T) {
	cfg := DefaultConfig()
	p, err := New(cfg, Ports{ASR: &mockASRPort{text: "hi", confidence: 0.9}, MT: &mockMTPort{}}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Start(func(PipelineEvent) {}); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	defer p.Stop()

	if err := p.Start(func(PipelineEvent) {}); err != ErrAlreadyStarted {
		t.Errorf("expected ErrAlreadyStarted on second Start, got %v", err)
	}
}

func TestPipelineNewRejectsNilProviders(t *testing.T) {
	cfg := DefaultConfig()
	if _, err := New(cfg, Ports{ASR: nil, MT: &mockMTPort{}}, nil); err != ErrNilProvider {
		t.Errorf("expected ErrNilProvider for a nil ASR port, got %v", err)
	}
	if _, err := New(cfg, Ports{ASR: &mockASRPort{}, MT: nil}, nil); err != ErrNilProvider {
		t.Errorf("expected ErrNilProvider for a nil MT port, got %v", err)
	}
}

func TestPipelineStopIsIdempotent(t *testing.T) {
	cfg := DefaultConfig()
	p, err := New(cfg, Ports{ASR: &mockASRPort{text: "hi", confidence: 0.9}, MT: &mockMTPort{}}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Start(func(PipelineEvent) {}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	p.Stop()
	p.Stop() // must not panic or block
}

func TestReorderBufferRestoresOrder(t *testing.T) {
	b := newReorderBuffer(1, 4)
	b.put(2, ASRResult{ConsumedMs: 2})
	if ready := b.drainReady(); len(ready) != 0 {
		t.Fatalf("expected nothing ready until seq 1 arrives, got %d", len(ready))
	}
	b.put(1, ASRResult{ConsumedMs: 1})
	ready := b.drainReady()
	if len(ready) != 2 {
		t.Fatalf("expected both 1 and 2 to drain once the gap fills, got %d", len(ready))
	}
	if ready[0].ConsumedMs != 1 || ready[1].ConsumedMs != 2 {
		t.Errorf("expected ascending order, got %+v", ready)
	}
}

func TestReorderBufferSkipAdvancesPastGap(t *testing.T) {
	b := newReorderBuffer(1, 4)
	b.put(2, ASRResult{ConsumedMs: 2})
	b.skip(1)
	ready := b.drainReady()
	if len(ready) != 1 || ready[0].ConsumedMs != 2 {
		t.Fatalf("expected seq 2 to drain after skipping the missing seq 1, got %+v", ready)
	}
}
