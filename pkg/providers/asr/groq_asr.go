package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/voxlink-ai/translingo/pkg/audio"
	"github.com/voxlink-ai/translingo/pkg/pipeline"
)

// GroqASR implements pipeline.ASRPort against Groq's OpenAI-compatible
// transcription endpoint: the same raw multipart upload over net/http an
// earlier Groq STT client in this codebase used (Groq has no dedicated Go
// SDK), generalized from a single model/call into the fast/accurate
// dichotomy requires. whisper-large-v3-turbo's low latency makes
// Groq a natural pick for ASRModeFast drafts.
type GroqASR struct {
	url           string
	apiKey        string
	fastModel     string
	accurateModel string
}

// NewGroqASR constructs a GroqASR client.
func NewGroqASR(apiKey string) *GroqASR {
	return &GroqASR{
		url:           "https://api.groq.com/openai/v1/audio/transcriptions",
		apiKey:        apiKey,
		fastModel:     "whisper-large-v3-turbo",
		accurateModel: "whisper-large-v3",
	}
}

// NewGroqASRWithURL is the test-friendly constructor.
func NewGroqASRWithURL(apiKey, url string) *GroqASR {
	g := NewGroqASR(apiKey)
	g.url = url
	return g
}

// Transcribe implements pipeline.ASRPort.
func (g *GroqASR) Transcribe(ctx context.Context, samples []float32, sampleRate int, lang pipeline.Language, mode pipeline.ASRMode) (pipeline.ASRPort_Result, error) {
	model := g.accurateModel
	if mode == pipeline.ASRModeFast {
		model = g.fastModel
	}

	wavData := audio.EncodeWAV(samples, sampleRate)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("model", model); err != nil {
		return pipeline.ASRPort_Result{}, err
	}
	if lang != "" && lang != pipeline.LangAuto {
		if err := writer.WriteField("language", string(lang)); err != nil {
			return pipeline.ASRPort_Result{}, err
		}
	}

	part, err := writer.CreateFormFile("file", "segment.wav")
	if err != nil {
		return pipeline.ASRPort_Result{}, err
	}
	if _, err := io.Copy(part, bytes.NewReader(wavData)); err != nil {
		return pipeline.ASRPort_Result{}, err
	}
	if err := writer.Close(); err != nil {
		return pipeline.ASRPort_Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, body)
	if err != nil {
		return pipeline.ASRPort_Result{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return pipeline.ASRPort_Result{}, fmt.Errorf("groq asr: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errBody interface{}
		json.NewDecoder(resp.Body).Decode(&errBody)
		return pipeline.ASRPort_Result{}, fmt.Errorf("groq asr: status %d: %v", resp.StatusCode, errBody)
	}

	var result struct {
		Text     string `json:"text"`
		Language string `json:"language"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return pipeline.ASRPort_Result{}, err
	}

	return pipeline.ASRPort_Result{
		Text:       result.Text,
		Language:   resolveLanguage(result.Language, lang),
		Confidence: 1.0,
		ConsumedMs: int64(len(samples)) * 1000 / int64(sampleRate),
	}, nil
}

// Name implements pipeline.ASRPort.
func (g *GroqASR) Name() string { return "groq_asr" }
