package vad

import "testing"

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/models/silero_vad.onnx")
	if cfg.SampleRate != 16000 {
		t.Errorf("expected 16kHz default sample rate, got %d", cfg.SampleRate)
	}
	if cfg.WindowSize != 512 {
		t.Errorf("expected a 512-sample window, got %d", cfg.WindowSize)
	}
	if cfg.ModelPath != "/models/silero_vad.onnx" {
		t.Errorf("expected the model path to be carried through, got %q", cfg.ModelPath)
	}
}
