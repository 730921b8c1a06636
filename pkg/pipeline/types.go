package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Logger is the structured logging port the pipeline writes through. It is
// intentionally the same narrow shape regardless of the concrete backend.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// NoOpLogger discards everything. Used as the zero-value default so callers
// never need a nil check.
type NoOpLogger struct{}

func (n *NoOpLogger) Debug(msg string, args ...interface{}) {}
func (n *NoOpLogger) Info(msg string, args ...interface{})  {}
func (n *NoOpLogger) Warn(msg string, args ...interface{})  {}
func (n *NoOpLogger) Error(msg string, args ...interface{}) {}

// Clock is a monotonic time source, injected for testability.
type Clock interface {
	Now() time.Time
}

// SystemClock wraps time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ASRMode selects the compute path for a recognizer invocation.
type ASRMode string

const (
	ASRModeFast     ASRMode = "fast"
	ASRModeAccurate ASRMode = "accurate"
)

// Language is the canonical two-letter (plus zh-TW) ISO language code set.
type Language string

const (
	LangAuto Language = "auto"
	LangEn   Language = "en"
	LangZh   Language = "zh"
	LangZhTW Language = "zh-TW"
	LangJa   Language = "ja"
	LangFr   Language = "fr"
	LangDe   Language = "de"
	LangEs   Language = "es"
	LangKo   Language = "ko"
)

// sovLanguages is the set of target languages for which draft translation
// is gated to punctuation-terminated text only.
var sovLanguages = map[Language]bool{
	LangJa:          true,
	LangKo:          true,
	LangDe:          true,
	Language("tr"): true,
	Language("fa"): true,
	Language("hi"): true,
}

// IsSOV reports whether lang has subject-object-verb word order.
func IsSOV(lang Language) bool {
	return sovLanguages[lang]
}

// AudioFrame is a fixed-duration block of mono PCM samples, immutable after
// creation.
type AudioFrame struct {
	Samples     []float32
	FirstSample int64
	CaptureTime time.Time
}

// DurationMs returns the frame's duration given the configured sample rate.
func (f AudioFrame) DurationMs(sampleRate int) int64 {
	if sampleRate <= 0 {
		return 0
	}
	return int64(len(f.Samples)) * 1000 / int64(sampleRate)
}

// SpeechSegment is an ordered sequence of AudioFrames forming one
// contiguous utterance candidate.
type SpeechSegment struct {
	ID           uuid.UUID
	Seq          int64
	Frames       []AudioFrame
	StartSample  int64
	EndSample    int64
	DurationMs   int64
	IsPartial    bool
	PreRollMs    int64
	CreationTime time.Time

	// mu guards Frames/EndSample/DurationMs once a segment is shared between
	// the segmentation goroutine (which appends) and an ASR worker ticking
	// drafts against the still-open segment (which reads). The segmentation
	// thread is the sole writer; AppendFrame and Samples both take it.
	mu sync.Mutex
}

// AppendFrame appends a frame to the segment, updating EndSample and
// DurationMs. Frames are pinned (owned) by the segment once appended: the
// ring buffer must not reuse a frame's backing array after this call.
func (s *SpeechSegment) AppendFrame(f AudioFrame, sampleRate int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Frames = append(s.Frames, f)
	s.EndSample = f.FirstSample + int64(len(f.Samples))
	s.DurationMs = (s.EndSample - s.StartSample) * 1000 / int64(sampleRate)
}

// Samples flattens the segment's frames into one contiguous sample slice,
// safe to call from an ASR worker goroutine while segmentation is still
// appending.
func (s *SpeechSegment) Samples() []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, f := range s.Frames {
		total += len(f.Samples)
	}
	out := make([]float32, 0, total)
	for _, f := range s.Frames {
		out = append(out, f.Samples...)
	}
	return out
}

// DurationSnapshot safely reads the segment's current duration from a
// goroutine other than the one appending to it.
func (s *SpeechSegment) DurationSnapshot() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.DurationMs
}

// ResultKind distinguishes rolling drafts from the terminal authoritative
// result.
type ResultKind string

const (
	KindDraft ResultKind = "draft"
	KindFinal ResultKind = "final"
)

// WordTiming is an optional word-level timestamp attached to an ASRResult.
type WordTiming struct {
	Word       string
	StartMs    int64
	EndMs      int64
	Confidence float64
}

// ASRResult is the recognizer's output for a given segment.
type ASRResult struct {
	SegmentID     uuid.UUID
	Kind          ResultKind
	Text          string
	Language      Language
	Confidence    float64
	WordTimings   []WordTiming
	ComputeTimeMs int64
	ConsumedMs    int64
}

// TranslationResult is the translator's output.
type TranslationResult struct {
	SegmentID      uuid.UUID
	Kind           ResultKind
	SourceText     string
	TranslatedText string
	SourceLang     Language
	TargetLang     Language
	Stability      float64
	ComputeTimeMs  int64
	MTFailed       bool
}

// DropReason enumerates why a segment or draft never reached the
// subscriber.
type DropReason string

const (
	DropTooShort          DropReason = "TooShort"
	DropBackpressure      DropReason = "BackpressureDrop"
	DropTimeout           DropReason = "Timeout"
	DropHallucination     DropReason = "Hallucination"
	DropAsrUnavailable    DropReason = "AsrUnavailable"
	DropInvariantViolated DropReason = "InvariantViolated"
)

// Stage names events and traces are attributed to.
type Stage string

const (
	StageVAD Stage = "vad"
	StageSeg Stage = "segmentation"
	StageASR Stage = "asr"
	StageMT  Stage = "mt"
	StageOut Stage = "output"
)

// EventType enumerates the PipelineEvent variants.
type EventType string

const (
	EventNewSegment   EventType = "NEW_SEGMENT"
	EventDraftASR     EventType = "DRAFT_ASR"
	EventFinalASR     EventType = "FINAL_ASR"
	EventTranslation  EventType = "TRANSLATION"
	EventDropped      EventType = "DROPPED"
	EventHealthTick   EventType = "HEALTH_TICK"
	EventSessionReset EventType = "SESSION_RESET"
)

// PipelineEvent is the unit that traverses the orchestrator's queues and is
// ultimately delivered to the subscriber.
type PipelineEvent struct {
	Type      EventType
	SegmentID uuid.UUID
	Seq       int64
	Stage     Stage
	CreatedAt time.Time

	Segment     *SpeechSegment
	ASR         *ASRResult
	Translation *TranslationResult
	DropReason  DropReason
	Health      *MetricsSnapshot
}

// VADEventType is the output of the adaptive VAD's Schmitt-trigger state
// machine.
type VADEventType string

const (
	VADSilence          VADEventType = "SILENCE"
	VADSpeech           VADEventType = "SPEECH"
	VADSpeechContinuing VADEventType = "SPEECH_CONTINUING"
)

// VADEvent is the per-frame decision emitted by the adaptive VAD.
type VADEvent struct {
	Type              VADEventType
	SpeechProbability float64
	EnergyRMS         float64
	IsTrigger         bool
	Timestamp         time.Time
}

// VADPort is the neural VAD inference port. Implementations need not
// be thread-safe; the pipeline calls it from a single VAD goroutine.
type VADPort interface {
	Probe(frame AudioFrame) (probability float64, confidence float64, err error)
	Name() string
}

// ASRPort is the speech recognition port. Implementations must be
// safe to call concurrently by up to Config.ASRWorkers goroutines.
type ASRPort interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int, lang Language, mode ASRMode) (ASRPort_Result, error)
	Name() string
}

// ASRPort_Result is the raw tuple an ASRPort returns, before post-processing.
type ASRPort_Result struct {
	Text        string
	Language    Language
	Confidence  float64
	WordTimings []WordTiming
	ConsumedMs  int64
}

// MTPort is the machine translation port. Calls are serialized by the
// single MT worker; implementations need not be thread-safe.
type MTPort interface {
	Translate(ctx context.Context, text string, sourceLang, targetLang Language) (string, error)
	Name() string
}

// Subscriber receives PipelineEvents from the output worker thread. It must
// never be invoked from the capture thread and must not block for more
// than ~10ms.
type Subscriber func(event PipelineEvent)
