package pipeline

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestShouldTranslateDraftTerminalPunctuationAlwaysQualifies(t *testing.T) {
	if !ShouldTranslateDraft("hello there.", LangEn, LangJa) {
		t.Error("expected terminal punctuation to qualify a draft regardless of target language")
	}
}

func TestShouldTranslateDraftSOVTargetDisablesVerbGate(t *testing.T) {
	if ShouldTranslateDraft("I am going", LangEn, LangJa) {
		t.Error("expected the verb-presence path to be disabled for an SOV target language")
	}
}

func TestShouldTranslateDraftNonSOVTargetUsesVerbGate(t *testing.T) {
	if !ShouldTranslateDraft("I am going", LangEn, LangFr) {
		t.Error("expected a verb-containing draft to qualify for a non-SOV target")
	}
	if ShouldTranslateDraft("the red", LangEn, LangFr) {
		t.Error("expected a verbless, unpunctuated fragment not to qualify")
	}
}

func TestTranslationCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := newTranslationCache(2)
	c.Put("a", "1")
	c.Put("b", "2")
	c.Get("a") // touch a, making b the LRU entry
	c.Put("c", "3")

	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted as the least recently used entry")
	}
	if v, ok := c.Get("a"); !ok || v != "1" {
		t.Error("expected a to survive the eviction")
	}
	if v, ok := c.Get("c"); !ok || v != "3" {
		t.Error("expected c to be present")
	}
}

func TestStreamingTranslatorDraftUsesCache(t *testing.T) {
	port := &mockMTPort{translated: "bonjour"}
	cfg := DefaultConfig()
	cfg.TargetLang = LangFr
	tr := NewStreamingTranslator(port, cfg, nil, nil)

	asr := ASRResult{SegmentID: uuid.New(), Text: "hello.", Language: LangEn}
	res1, ok := tr.TranslateDraft(context.Background(), asr)
	if !ok {
		t.Fatal("expected draft to qualify via terminal punctuation")
	}
	res2, ok := tr.TranslateDraft(context.Background(), asr)
	if !ok {
		t.Fatal("expected second draft to also succeed")
	}
	if res1.TranslatedText != res2.TranslatedText {
		t.Error("expected identical source text to hit the cache")
	}
	if port.calls != 1 {
		t.Errorf("expected exactly one underlying MT call due to caching, got %d", port.calls)
	}
}

func TestStreamingTranslatorDraftGatedOutIsSilent(t *testing.T) {
	port := &mockMTPort{}
	cfg := DefaultConfig()
	cfg.TargetLang = LangJa
	tr := NewStreamingTranslator(port, cfg, nil, nil)

	asr := ASRResult{SegmentID: uuid.New(), Text: "I am going", Language: LangEn}
	_, ok := tr.TranslateDraft(context.Background(), asr)
	if ok {
		t.Error("expected an SOV-gated draft with no terminal punctuation to be silently skipped")
	}
	if port.calls != 0 {
		t.Error("expected no MT call for a gated-out draft")
	}
}

func TestStreamingTranslatorStabilityScoreDecreasesOnBigChange(t *testing.T) {
	port := &mockMTPort{}
	cfg := DefaultConfig()
	tr := NewStreamingTranslator(port, cfg, nil, nil)

	segID := uuid.New()
	first, ok := tr.TranslateDraft(context.Background(), ASRResult{SegmentID: segID, Text: "I am going.", Language: LangEn})
	if !ok {
		t.Fatal("expected first draft to succeed")
	}
	if first.Stability != 1.0 {
		t.Errorf("expected the first draft's stability to be 1.0, got %v", first.Stability)
	}

	second, ok := tr.TranslateDraft(context.Background(), ASRResult{SegmentID: segID, Text: "I am going to the store.", Language: LangEn})
	if !ok {
		t.Fatal("expected second draft to succeed")
	}
	if second.Stability >= first.Stability {
		t.Errorf("expected stability to drop as the draft text changed, got %v", second.Stability)
	}
}

func TestStreamingTranslatorFinalRetriesThenPassesThroughOnSustainedFailure(t *testing.T) {
	port := &mockMTPort{err: errBoom}
	cfg := DefaultConfig()
	tr := NewStreamingTranslator(port, cfg, nil, nil)

	asr := ASRResult{SegmentID: uuid.New(), Text: "hello there", Language: LangEn}
	res := tr.TranslateFinal(context.Background(), asr)

	if !res.MTFailed {
		t.Error("expected MTFailed=true after sustained MT failure")
	}
	if res.TranslatedText != asr.Text {
		t.Errorf("expected pass-through translated_text = source_text, got %q", res.TranslatedText)
	}
	if port.calls != 3 {
		t.Errorf("expected exactly 3 attempts (1 + 2 retries), got %d", port.calls)
	}
}

func TestStreamingTranslatorFinalSucceedsOnFirstTry(t *testing.T) {
	port := &mockMTPort{translated: "bonjour le monde"}
	cfg := DefaultConfig()
	tr := NewStreamingTranslator(port, cfg, nil, nil)

	asr := ASRResult{SegmentID: uuid.New(), Text: "hello world", Language: LangEn}
	res := tr.TranslateFinal(context.Background(), asr)

	if res.MTFailed {
		t.Error("did not expect MTFailed on a successful call")
	}
	if res.TranslatedText != "bonjour le monde" {
		t.Errorf("unexpected translated text: %q", res.TranslatedText)
	}
	if port.calls != 1 {
		t.Errorf("expected exactly one MT call, got %d", port.calls)
	}
}

func TestStreamingTranslatorBreakerOpenPassesThroughDraft(t *testing.T) {
	port := &mockMTPort{translated: "should not be used"}
	clock := &fakeClock{}
	breaker := NewCircuitBreaker(clock)
	for i := 0; i < 5; i++ {
		breaker.RecordFailure()
	}

	cfg := DefaultConfig()
	cfg.EnableTranslationCache = false
	tr := NewStreamingTranslator(port, cfg, breaker, nil)

	asr := ASRResult{SegmentID: uuid.New(), Text: "hello.", Language: LangEn}
	res, ok := tr.TranslateDraft(context.Background(), asr)
	if !ok {
		t.Fatal("expected a pass-through draft result while the breaker is open")
	}
	if res.TranslatedText != asr.Text {
		t.Errorf("expected pass-through text while breaker open, got %q", res.TranslatedText)
	}
	if port.calls != 0 {
		t.Error("did not expect the underlying MT port to be called while the breaker is open")
	}
}
