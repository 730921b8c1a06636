package mt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/voxlink-ai/translingo/pkg/pipeline"
)

func TestOpenAIMTTranslateSuccess(t *testing.T) {
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		resp := map[string]interface{}{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o-mini",
			"choices": []map[string]interface{}{
				{
					"index": 0,
					"message": map[string]interface{}{
						"role":    "assistant",
						"content": "le renard brun",
					},
					"finish_reason": "stop",
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewOpenAIMTWithBaseURL("test-key", server.URL+"/v1", "")
	out, err := client.Translate(context.Background(), "the brown fox", pipeline.LangEn, pipeline.LangFr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "le renard brun" {
		t.Errorf("unexpected translation: %q", out)
	}

	messages, ok := gotBody["messages"].([]interface{})
	if !ok || len(messages) != 2 {
		t.Fatalf("expected a system + user message pair, got %v", gotBody["messages"])
	}
	system := messages[0].(map[string]interface{})
	if !strings.Contains(system["content"].(string), "en") || !strings.Contains(system["content"].(string), "fr") {
		t.Errorf("expected the system prompt to name both languages, got %q", system["content"])
	}
}

func TestOpenAIMTTranslateNoChoicesIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"choices": []interface{}{}})
	}))
	defer server.Close()

	client := NewOpenAIMTWithBaseURL("test-key", server.URL+"/v1", "")
	_, err := client.Translate(context.Background(), "hi", pipeline.LangEn, pipeline.LangFr)
	if err == nil {
		t.Fatal("expected an error when no choices are returned")
	}
}

func TestOpenAIMTName(t *testing.T) {
	client := NewOpenAIMT("test-key", "")
	if client.Name() != "openai_mt" {
		t.Errorf("unexpected name: %q", client.Name())
	}
}
