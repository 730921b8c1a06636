package mt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voxlink-ai/translingo/pkg/pipeline"
)

func TestAnthropicMTTranslateSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"id":   "msg_test",
			"type": "message",
			"role": "assistant",
			"content": []map[string]interface{}{
				{"type": "text", "text": "le renard brun"},
			},
			"model":       "claude-3-5-haiku-latest",
			"stop_reason": "end_turn",
			"usage":       map[string]interface{}{"input_tokens": 10, "output_tokens": 4},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewAnthropicMTWithBaseURL("test-key", server.URL, "")
	out, err := client.Translate(context.Background(), "the brown fox", pipeline.LangEn, pipeline.LangFr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "le renard brun" {
		t.Errorf("unexpected translation: %q", out)
	}
}

func TestAnthropicMTTranslateEmptyContentIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id": "msg_test", "type": "message", "role": "assistant",
			"content": []interface{}{},
		})
	}))
	defer server.Close()

	client := NewAnthropicMTWithBaseURL("test-key", server.URL, "")
	_, err := client.Translate(context.Background(), "hi", pipeline.LangEn, pipeline.LangFr)
	if err == nil {
		t.Fatal("expected an error when no content blocks are returned")
	}
}

func TestAnthropicMTName(t *testing.T) {
	client := NewAnthropicMT("test-key", "")
	if client.Name() != "anthropic_mt" {
		t.Errorf("unexpected name: %q", client.Name())
	}
}
