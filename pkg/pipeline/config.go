package pipeline

import "fmt"

// Config holds every tunable knob the pipeline exposes. It is validated once,
// at initialize time; nothing in this package reads a config file or
// environment variable — that is an external "configuration file loading"
// concern, left to callers (see cmd/demo/config.go).
type Config struct {
	SampleRate int
	FrameMs    int

	VADMinThreshold float64
	VADMaxThreshold float64

	PreRollMs            int64
	MinSpeechDurationMs  int64
	MinSilenceDurationMs int64
	MaxSegmentDurationMs int64
	PauseThresholdMs     int64

	DraftIntervalMs int64
	MinDraftAudioMs int64

	ASRWorkers int

	MinConfidence     float64
	MinDiversityRatio float64
	RemoveFillerWords bool
	InterviewMode     bool
	SentenceMode      bool

	SourceLang Language
	TargetLang Language

	EnableTranslationCache bool
	TranslationCacheSize   int

	// LockLanguageAfterFirstDraft: when SourceLang == LangAuto, lock the
	// detected language after the first draft to prevent UI flicker.
	// Exposed as a toggle since this behavior is a judgment call, not an
	// unambiguous requirement.
	LockLanguageAfterFirstDraft bool

	MinWordsToInterrupt int

	// Queue capacities.
	QueueAudioToVAD int
	QueueVADToSeg   int
	QueueSegToASR   int
	QueueASRToMT    int
	QueueMTToOut    int

	// Per-call timeouts.
	ASRDraftTimeoutMs     int64
	ASRFinalTimeoutMs     int64
	MTTimeoutMs           int64
	ShutdownGracePeriodMs int64
}

// DefaultConfig returns conservative defaults tuned for a quiet room with a
// single speaker.
func DefaultConfig() Config {
	return Config{
		SampleRate: 16000,
		FrameMs:    30,

		VADMinThreshold: 0.3,
		VADMaxThreshold: 0.8,

		PreRollMs:            500,
		MinSpeechDurationMs:  250,
		MinSilenceDurationMs: 400,
		MaxSegmentDurationMs: 8000,
		PauseThresholdMs:     800,

		DraftIntervalMs: 2000,
		MinDraftAudioMs: 1500,

		ASRWorkers: 2,

		MinConfidence:     0.30,
		MinDiversityRatio: 0.30,
		RemoveFillerWords: true,

		SourceLang: LangAuto,
		TargetLang: LangEn,

		EnableTranslationCache: true,
		TranslationCacheSize:   10000,

		LockLanguageAfterFirstDraft: true,

		MinWordsToInterrupt: 1,

		QueueAudioToVAD: 10,
		QueueVADToSeg:   10,
		QueueSegToASR:   5,
		QueueASRToMT:    5,
		QueueMTToOut:    20,

		ASRDraftTimeoutMs:     1500,
		ASRFinalTimeoutMs:     5000,
		MTTimeoutMs:           2000,
		ShutdownGracePeriodMs: 5000,
	}
}

// MaxSegmentDurationForMode returns the forced-split threshold, accounting
// for sentence/interview mode overrides.
func (c Config) MaxSegmentDurationForMode() int64 {
	switch {
	case c.InterviewMode:
		return 15000
	case c.SentenceMode:
		return 12000
	default:
		return c.MaxSegmentDurationMs
	}
}

// MinDiversityRatioForMode returns the loosened interview-mode diversity
// threshold.
func (c Config) MinDiversityRatioForMode() float64 {
	if c.InterviewMode {
		return 0.12
	}
	return c.MinDiversityRatio
}

// RemoveFillerWordsForMode returns whether filler-word stripping is active,
// honoring the "outside interview mode" default.
func (c Config) RemoveFillerWordsForMode() bool {
	if c.InterviewMode {
		return false
	}
	return c.RemoveFillerWords
}

var supportedLanguages = map[Language]bool{
	LangAuto: true, LangEn: true, LangZh: true, LangZhTW: true,
	LangJa: true, LangFr: true, LangDe: true, LangEs: true, LangKo: true,
}

// Validate checks the configuration for internal consistency. Any failure
// is a ConfigurationError and is fatal to initialize. A TargetLang or
// SourceLang outside supportedLanguages is always rejected; there is no
// option to admit other languages.
func (c Config) Validate() error {
	if c.SampleRate != 16000 {
		return &ConfigurationError{Field: "SampleRate", Reason: "only 16000 is guaranteed supported"}
	}
	if c.MinSilenceDurationMs >= c.MaxSegmentDurationMs {
		return &ConfigurationError{Field: "MinSilenceDurationMs", Reason: "must be less than MaxSegmentDurationMs"}
	}
	if c.PreRollMs >= c.MaxSegmentDurationMs {
		return &ConfigurationError{Field: "PreRollMs", Reason: "must be less than MaxSegmentDurationMs"}
	}
	if c.VADMinThreshold >= c.VADMaxThreshold {
		return &ConfigurationError{Field: "VADMinThreshold", Reason: "must be less than VADMaxThreshold"}
	}
	if c.ASRWorkers < 1 {
		return &ConfigurationError{Field: "ASRWorkers", Reason: "must be >= 1"}
	}
	if c.SourceLang == "" || c.TargetLang == "" {
		return &ConfigurationError{Field: "SourceLang/TargetLang", Reason: "both are required"}
	}
	if !supportedLanguages[c.TargetLang] {
		return &ConfigurationError{Field: "TargetLang", Reason: fmt.Sprintf("%q is not in the supported set", c.TargetLang)}
	}
	if c.SourceLang != LangAuto && !supportedLanguages[c.SourceLang] {
		return &ConfigurationError{Field: "SourceLang", Reason: fmt.Sprintf("%q is not in the supported set", c.SourceLang)}
	}
	return nil
}
