package pipeline

import "context"

type mockVADPort struct {
	probability float64
	confidence  float64
	err         error
}

func (m *mockVADPort) Probe(frame AudioFrame) (float64, float64, error) {
	return m.probability, m.confidence, m.err
}

func (m *mockVADPort) Name() string { return "MockVAD" }

type mockASRPort struct {
	text       string
	language   Language
	confidence float64
	consumedMs int64
	err        error
}

func (m *mockASRPort) Transcribe(ctx context.Context, samples []float32, sampleRate int, lang Language, mode ASRMode) (ASRPort_Result, error) {
	if m.err != nil {
		return ASRPort_Result{}, m.err
	}
	lang2 := lang
	if m.language != "" {
		lang2 = m.language
	}
	return ASRPort_Result{
		Text:       m.text,
		Language:   lang2,
		Confidence: m.confidence,
		ConsumedMs: m.consumedMs,
	}, nil
}

func (m *mockASRPort) Name() string { return "MockASR" }

type mockMTPort struct {
	translated string
	err        error
	calls      int
}

func (m *mockMTPort) Translate(ctx context.Context, text string, sourceLang, targetLang Language) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	if m.translated != "" {
		return m.translated, nil
	}
	return "translated:" + text, nil
}

func (m *mockMTPort) Name() string { return "MockMT" }
