// Package asr implements the pipeline.ASRPort speech recognition port on
// top of the OpenAI Whisper transcription API via go-openai, using the
// same API-key-and-model client construction shape as this module's other
// provider adapters, generalized from a single-shot PCM-to-text call into
// the fast/accurate model-selection contract and confidence
// extraction from verbose_json segment log-probabilities.
package asr

import (
	"bytes"
	"context"
	"fmt"
	"math"

	openai "github.com/sashabaranov/go-openai"
	"github.com/voxlink-ai/translingo/pkg/audio"
	"github.com/voxlink-ai/translingo/pkg/pipeline"
)

// Config selects the models used for draft ("fast") and final ("accurate")
// transcription passes (fast/accurate mode dichotomy).
type Config struct {
	FastModel     string
	AccurateModel string
}

// DefaultConfig picks gpt-4o-mini-transcribe for low-latency drafts and
// whisper-1 for the higher-fidelity final pass.
func DefaultConfig() Config {
	return Config{
		FastModel:     "gpt-4o-mini-transcribe",
		AccurateModel: "whisper-1",
	}
}

// WhisperASR implements pipeline.ASRPort.
type WhisperASR struct {
	client *openai.Client
	cfg    Config
}

// New constructs a WhisperASR client around an OpenAI API key.
func New(apiKey string, cfg Config) *WhisperASR {
	return &WhisperASR{client: openai.NewClient(apiKey), cfg: cfg}
}

// NewWithBaseURL constructs a WhisperASR client against a custom base URL,
// for Azure-compatible deployments and for tests.
func NewWithBaseURL(apiKey, baseURL string, cfg Config) *WhisperASR {
	clientCfg := openai.DefaultConfig(apiKey)
	clientCfg.BaseURL = baseURL
	return &WhisperASR{client: openai.NewClientWithConfig(clientCfg), cfg: cfg}
}

// Transcribe implements pipeline.ASRPort: it encodes the cumulative segment
// buffer as a WAV file and uploads it for transcription, selecting the
// model by mode.
func (w *WhisperASR) Transcribe(ctx context.Context, samples []float32, sampleRate int, lang pipeline.Language, mode pipeline.ASRMode) (pipeline.ASRPort_Result, error) {
	model := w.cfg.AccurateModel
	if mode == pipeline.ASRModeFast {
		model = w.cfg.FastModel
	}

	wavBytes := audio.EncodeWAV(samples, sampleRate)

	req := openai.AudioRequest{
		Model:    model,
		Reader:   bytes.NewReader(wavBytes),
		FilePath: "segment.wav",
		Format:   openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{
			openai.TranscriptionTimestampGranularityWord,
		},
	}
	if lang != "" && lang != pipeline.LangAuto {
		req.Language = string(lang)
	}

	resp, err := w.client.CreateTranscription(ctx, req)
	if err != nil {
		return pipeline.ASRPort_Result{}, fmt.Errorf("whisper asr: %w", err)
	}

	result := pipeline.ASRPort_Result{
		Text:       resp.Text,
		Language:   resolveLanguage(resp.Language, lang),
		Confidence: confidenceFromSegments(resp.Segments),
		ConsumedMs: int64(len(samples)) * 1000 / int64(sampleRate),
	}
	for _, word := range resp.Words {
		result.WordTimings = append(result.WordTimings, pipeline.WordTiming{
			Word:    word.Word,
			StartMs: int64(word.Start * 1000),
			EndMs:   int64(word.End * 1000),
		})
	}
	return result, nil
}

// Name implements pipeline.ASRPort.
func (w *WhisperASR) Name() string { return "whisper_asr" }

func resolveLanguage(detected string, requested pipeline.Language) pipeline.Language {
	if detected == "" {
		return requested
	}
	return pipeline.Language(detected)
}

// confidenceFromSegments maps Whisper's average log-probability per segment
// to a [0, 1] confidence score (exp of the mean log-probability), the
// closest analogue verbose_json exposes to a direct confidence figure.
func confidenceFromSegments(segments []openai.Segment) float64 {
	if len(segments) == 0 {
		return 1.0
	}
	var sum float64
	for _, s := range segments {
		sum += s.AvgLogprob
	}
	mean := sum / float64(len(segments))
	return math.Exp(mean)
}
