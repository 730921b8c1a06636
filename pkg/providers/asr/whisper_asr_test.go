package asr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voxlink-ai/translingo/pkg/pipeline"
)

func TestWhisperASRTranscribeSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Fatalf("failed to parse multipart form: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("expected accurate model whisper-1, got %q", got)
		}

		resp := map[string]interface{}{
			"text":     "hello world",
			"language": "english",
			"segments": []map[string]interface{}{
				{"avg_logprob": -0.1},
				{"avg_logprob": -0.2},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewWithBaseURL("test-key", server.URL+"/v1", DefaultConfig())
	samples := make([]float32, 16000) // 1 second at 16kHz
	result, err := client.Transcribe(context.Background(), samples, 16000, pipeline.LangEn, pipeline.ASRModeAccurate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "hello world" {
		t.Errorf("unexpected text: %q", result.Text)
	}
	if result.ConsumedMs != 1000 {
		t.Errorf("expected 1000ms of consumed audio, got %d", result.ConsumedMs)
	}
	if result.Confidence <= 0 || result.Confidence > 1 {
		t.Errorf("expected a confidence in (0, 1], got %v", result.Confidence)
	}
}

func TestWhisperASRUsesFastModelForDrafts(t *testing.T) {
	var gotModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseMultipartForm(10 << 20)
		gotModel = r.FormValue("model")
		json.NewEncoder(w).Encode(map[string]interface{}{"text": "hi"})
	}))
	defer server.Close()

	client := NewWithBaseURL("test-key", server.URL+"/v1", DefaultConfig())
	_, err := client.Transcribe(context.Background(), make([]float32, 480), 16000, pipeline.LangEn, pipeline.ASRModeFast)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotModel != "gpt-4o-mini-transcribe" {
		t.Errorf("expected the fast model for a draft call, got %q", gotModel)
	}
}

func TestConfidenceFromSegmentsEmptyDefaultsToOne(t *testing.T) {
	if got := confidenceFromSegments(nil); got != 1.0 {
		t.Errorf("expected default confidence of 1.0 with no segments, got %v", got)
	}
}
