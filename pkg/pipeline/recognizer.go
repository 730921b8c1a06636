package pipeline

import (
	"context"
	"time"
)

// recognizerState tracks the per-segment cumulative buffer and draft
// bookkeeping the streaming recognizer needs. One instance lives for the
// lifetime of a single open segment.
type recognizerState struct {
	segment *SpeechSegment

	lastDraftText       string
	lastDraftConsumedMs int64
	lastDraftAt         time.Time
	lockedLanguage      Language
	languageLocked      bool
}

// StreamingRecognizer keeps the cumulative per-segment buffer, ticks
// drafts every DraftIntervalMs while a segment is open (subject to the
// adaptive skip rules), and emits exactly one final on segment close.
// Grounded on the streaming-STT callback bookkeeping of an earlier
// single-flight conversational engine this module replaces, generalized
// from a single cumulative transcript into the draft/final ASRResult model
// with consumed_ms tracking.
type StreamingRecognizer struct {
	port    ASRPort
	breaker *CircuitBreaker
	cfg     Config
	logger  Logger

	states map[string]*recognizerState
}

// NewStreamingRecognizer constructs the recognizer around an ASRPort.
func NewStreamingRecognizer(port ASRPort, cfg Config, breaker *CircuitBreaker, logger Logger) *StreamingRecognizer {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &StreamingRecognizer{
		port:    port,
		breaker: breaker,
		cfg:     cfg,
		logger:  logger,
		states:  map[string]*recognizerState{},
	}
}

// Open begins tracking a newly created (or forced-split continuation)
// segment.
func (r *StreamingRecognizer) Open(seg *SpeechSegment) {
	r.states[seg.ID.String()] = &recognizerState{segment: seg}
}

// Close forgets a segment's state once it has produced its final result
// or has been dropped.
func (r *StreamingRecognizer) Close(segID string) {
	delete(r.states, segID)
}

// Rebind swaps in a different *SpeechSegment for an already-open state. The
// forced-split path hands the orchestrator a fresh, frame-truncated
// SpeechSegment carrying the same ID as the one Open was originally called
// with; Rebind points the recognizer at that truncated copy so Final reads
// exactly the audio that belongs to the closing half, not whatever the live
// segment object accumulated afterward.
func (r *StreamingRecognizer) Rebind(segID string, seg *SpeechSegment) {
	if st, ok := r.states[segID]; ok && seg != nil {
		st.segment = seg
	}
}

// DraftSkipReason explains why ShouldDraft declined to tick, purely for
// logging/metrics.
type DraftSkipReason string

const (
	SkipNone              DraftSkipReason = ""
	SkipBackpressure      DraftSkipReason = "backpressure"
	SkipInsufficientAudio DraftSkipReason = "insufficient_audio"
	SkipPaused            DraftSkipReason = "paused"
	SkipClosingImminent   DraftSkipReason = "closing_imminent"
)

// AdaptiveDraftInputs carries the signals ShouldDraft needs from the
// orchestrator to decide whether to dispatch a draft tick.
type AdaptiveDraftInputs struct {
	ASRInFlightJobs          int
	PauseDraftsFlag          bool
	RecentSilenceMs          int64
	NewAudioSinceLastDraftMs int64
}

// ShouldDraft implements the adaptive draft-skipping rules.
func ShouldDraft(cfg Config, in AdaptiveDraftInputs) (bool, DraftSkipReason) {
	if in.ASRInFlightJobs > 2 {
		return false, SkipBackpressure
	}
	if in.NewAudioSinceLastDraftMs < cfg.MinDraftAudioMs {
		return false, SkipInsufficientAudio
	}
	if in.PauseDraftsFlag {
		return false, SkipPaused
	}
	if in.RecentSilenceMs >= 300 {
		return false, SkipClosingImminent
	}
	return true, SkipNone
}

// Draft invokes the ASR port in fast mode over the segment's cumulative
// buffer and returns the deduplicated, cumulative-context-checked result.
// ok=false means the draft must not be emitted (stale consumed_ms, port
// failure, or breaker open).
func (r *StreamingRecognizer) Draft(ctx context.Context, segID string) (ASRResult, bool) {
	st, found := r.states[segID]
	if !found {
		return ASRResult{}, false
	}
	return r.invoke(ctx, st, ASRModeFast, KindDraft)
}

// Final invokes the ASR port in accurate mode over the complete buffer and
// produces the single authoritative transcript for the segment. A failed
// attempt (breaker open or port error) is retried once before giving up: a
// final transcript is too important to drop on the first transient hiccup.
func (r *StreamingRecognizer) Final(ctx context.Context, segID string) (ASRResult, bool) {
	st, found := r.states[segID]
	if !found {
		return ASRResult{}, false
	}
	result, ok := r.invoke(ctx, st, ASRModeAccurate, KindFinal)
	if !ok {
		result, ok = r.invoke(ctx, st, ASRModeAccurate, KindFinal)
	}
	return result, ok
}

func (r *StreamingRecognizer) invoke(ctx context.Context, st *recognizerState, mode ASRMode, kind ResultKind) (ASRResult, bool) {
	if r.breaker != nil && !r.breaker.Allow() {
		return ASRResult{}, false
	}

	lang := r.cfg.SourceLang
	if st.languageLocked {
		lang = st.lockedLanguage
	}

	start := time.Now()
	samples := st.segment.Samples()
	raw, err := r.port.Transcribe(ctx, samples, r.cfg.SampleRate, lang, mode)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		if r.breaker != nil {
			r.breaker.RecordFailure()
		}
		return ASRResult{}, false
	}
	if r.breaker != nil {
		r.breaker.RecordSuccess()
	}

	// cumulative-context invariant: a draft whose consumed_ms does not
	// increase relative to the previous one is discarded.
	if kind == KindDraft && raw.ConsumedMs <= st.lastDraftConsumedMs && !st.lastDraftAt.IsZero() {
		return ASRResult{}, false
	}

	if r.cfg.SourceLang == LangAuto && r.cfg.LockLanguageAfterFirstDraft && !st.languageLocked {
		st.languageLocked = true
		st.lockedLanguage = raw.Language
	}

	if kind == KindDraft {
		st.lastDraftText = raw.Text
		st.lastDraftConsumedMs = raw.ConsumedMs
		st.lastDraftAt = time.Now()
	}

	return ASRResult{
		SegmentID:     st.segment.ID,
		Kind:          kind,
		Text:          raw.Text,
		Language:      raw.Language,
		Confidence:    raw.Confidence,
		WordTimings:   raw.WordTimings,
		ComputeTimeMs: elapsed,
		ConsumedMs:    raw.ConsumedMs,
	}, true
}

// LongestCommonPrefixLen returns the length (in runes) of the common
// prefix of a and b, used by the UI-diffing dedup: only the extension past
// this point is "new" for display purposes, while the full cumulative text
// is still carried on the event.
func LongestCommonPrefixLen(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	n := len(ra)
	if len(rb) < n {
		n = len(rb)
	}
	i := 0
	for i < n && ra[i] == rb[i] {
		i++
	}
	return i
}
