package asr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voxlink-ai/translingo/pkg/pipeline"
)

func TestGroqASRTranscribeSelectsFastModel(t *testing.T) {
	var gotModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Fatalf("failed to parse multipart form: %v", err)
		}
		gotModel = r.FormValue("model")
		json.NewEncoder(w).Encode(map[string]string{"text": "hello", "language": "english"})
	}))
	defer server.Close()

	client := NewGroqASRWithURL("test-key", server.URL)
	result, err := client.Transcribe(context.Background(), make([]float32, 16000), 16000, pipeline.LangEn, pipeline.ASRModeFast)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotModel != "whisper-large-v3-turbo" {
		t.Errorf("expected the fast model, got %q", gotModel)
	}
	if result.Text != "hello" {
		t.Errorf("unexpected text: %q", result.Text)
	}
	if result.ConsumedMs != 1000 {
		t.Errorf("expected 1000ms consumed, got %d", result.ConsumedMs)
	}
}

func TestGroqASRTranscribeErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid api key"})
	}))
	defer server.Close()

	client := NewGroqASRWithURL("bad-key", server.URL)
	_, err := client.Transcribe(context.Background(), make([]float32, 480), 16000, pipeline.LangAuto, pipeline.ASRModeAccurate)
	if err == nil {
		t.Fatal("expected an error on a non-200 response")
	}
}

func TestGroqASRName(t *testing.T) {
	client := NewGroqASR("test-key")
	if client.Name() != "groq_asr" {
		t.Errorf("unexpected name: %q", client.Name())
	}
}
