package pipeline

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"
)

// sourceVerbLists is a minimal per-language verb vocabulary used by the
// semantic gate. A real deployment would load a fuller list; the gate's
// contract only needs "contains a verb from the list."
var sourceVerbLists = map[Language][]string{
	LangEn: {"is", "are", "was", "were", "am", "do", "does", "did", "have", "has", "had", "will", "can", "go", "goes", "went", "make", "makes", "said", "says", "sat", "sit"},
	LangFr: {"est", "sont", "était", "ai", "as", "a", "fait", "vais", "va"},
	LangEs: {"es", "son", "era", "tengo", "tiene", "hace", "voy", "va"},
}

var terminalPunctuation = []rune{'.', '!', '?', '。', '！', '？'}

func endsWithTerminalPunctuation(text string) bool {
	trimmed := strings.TrimRightFunc(text, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n'
	})
	if trimmed == "" {
		return false
	}
	last := []rune(trimmed)
	lastRune := last[len(last)-1]
	for _, p := range terminalPunctuation {
		if lastRune == p {
			return true
		}
	}
	return false
}

func containsVerb(text string, lang Language) bool {
	verbs, ok := sourceVerbLists[lang]
	if !ok {
		return false
	}
	lower := strings.ToLower(text)
	for _, w := range strings.FieldsFunc(lower, func(r rune) bool { return !('a' <= r && r <= 'z') }) {
		for _, v := range verbs {
			if w == v {
				return true
			}
		}
	}
	return false
}

// ShouldTranslateDraft implements the semantic gating predicate. For SOV
// target languages the verb-presence path is disabled; only
// punctuation-terminated text is translated as a draft.
func ShouldTranslateDraft(text string, sourceLang, targetLang Language) bool {
	if endsWithTerminalPunctuation(text) {
		return true
	}
	if IsSOV(targetLang) {
		return false
	}
	return containsVerb(text, sourceLang)
}

// translationCache is a capacity-bounded LRU keyed by
// (source_text_normalized, source_lang, target_lang).
type translationCache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[string]*list.Element
}

type cacheEntry struct {
	key   string
	value string
}

func newTranslationCache(capacity int) *translationCache {
	if capacity < 1 {
		capacity = 1
	}
	return &translationCache{
		capacity: capacity,
		ll:       list.New(),
		items:    map[string]*list.Element{},
	}
}

func cacheKey(text string, sourceLang, targetLang Language) string {
	return strings.ToLower(strings.TrimSpace(text)) + "|" + string(sourceLang) + "|" + string(targetLang)
}

func (c *translationCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return "", false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*cacheEntry).value, true
}

func (c *translationCache) Put(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		el.Value.(*cacheEntry).value = value
		c.ll.MoveToFront(el)
		return
	}
	el := c.ll.PushFront(&cacheEntry{key: key, value: value})
	c.items[key] = el
	if c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheEntry).key)
		}
	}
}

// translatorSegmentState tracks the previous draft's tokens for stability
// scoring.
type translatorSegmentState struct {
	prevTokens []string
}

// StreamingTranslator implements gated draft translation, always-on final
// translation, per-segment stability scoring, an LRU cache, and the
// failure policy (drop draft silently, retry final twice then
// pass-through).
type StreamingTranslator struct {
	port    MTPort
	breaker *CircuitBreaker
	cfg     Config
	logger  Logger
	cache   *translationCache

	mu     sync.Mutex
	states map[string]*translatorSegmentState
}

// NewStreamingTranslator constructs the translator around an MTPort.
func NewStreamingTranslator(port MTPort, cfg Config, breaker *CircuitBreaker, logger Logger) *StreamingTranslator {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	t := &StreamingTranslator{
		port:    port,
		breaker: breaker,
		cfg:     cfg,
		logger:  logger,
		states:  map[string]*translatorSegmentState{},
	}
	if cfg.EnableTranslationCache {
		t.cache = newTranslationCache(cfg.TranslationCacheSize)
	}
	return t
}

// TranslateDraft gates and, if eligible, translates a draft ASRResult.
// ok=false means the draft should not be emitted at all (gated out or the
// MT call failed, both silent per the failure policy).
func (t *StreamingTranslator) TranslateDraft(ctx context.Context, asr ASRResult) (TranslationResult, bool) {
	if !ShouldTranslateDraft(asr.Text, asr.Language, t.cfg.TargetLang) {
		return TranslationResult{}, false
	}

	translated, err := t.translate(ctx, asr.Text, asr.Language, t.cfg.TargetLang)
	if err != nil {
		return TranslationResult{}, false
	}

	stability := t.updateStability(asr.SegmentID.String(), asr.Text)

	return TranslationResult{
		SegmentID:      asr.SegmentID,
		Kind:           KindDraft,
		SourceText:     asr.Text,
		TranslatedText: translated,
		SourceLang:     asr.Language,
		TargetLang:     t.cfg.TargetLang,
		Stability:      stability,
	}, true
}

// TranslateFinal always produces a result: on sustained MT failure after
// retrying, it falls back to translated_text = source_text with
// mt_failed = true rather than losing the segment.
func (t *StreamingTranslator) TranslateFinal(ctx context.Context, asr ASRResult) TranslationResult {
	translated, err := t.translate(ctx, asr.Text, asr.Language, t.cfg.TargetLang)
	if err == nil {
		t.forgetSegment(asr.SegmentID.String())
		return TranslationResult{
			SegmentID:      asr.SegmentID,
			Kind:           KindFinal,
			SourceText:     asr.Text,
			TranslatedText: translated,
			SourceLang:     asr.Language,
			TargetLang:     t.cfg.TargetLang,
		}
	}

	// Retry once immediately, then once after 200ms.
	translated, err = t.translate(ctx, asr.Text, asr.Language, t.cfg.TargetLang)
	if err != nil {
		select {
		case <-time.After(200 * time.Millisecond):
		case <-ctx.Done():
		}
		translated, err = t.translate(ctx, asr.Text, asr.Language, t.cfg.TargetLang)
	}

	t.forgetSegment(asr.SegmentID.String())

	if err != nil {
		return TranslationResult{
			SegmentID:      asr.SegmentID,
			Kind:           KindFinal,
			SourceText:     asr.Text,
			TranslatedText: asr.Text,
			SourceLang:     asr.Language,
			TargetLang:     t.cfg.TargetLang,
			MTFailed:       true,
		}
	}

	return TranslationResult{
		SegmentID:      asr.SegmentID,
		Kind:           KindFinal,
		SourceText:     asr.Text,
		TranslatedText: translated,
		SourceLang:     asr.Language,
		TargetLang:     t.cfg.TargetLang,
	}
}

func (t *StreamingTranslator) translate(ctx context.Context, text string, sourceLang, targetLang Language) (string, error) {
	key := cacheKey(text, sourceLang, targetLang)
	if t.cache != nil {
		if v, ok := t.cache.Get(key); ok {
			return v, nil
		}
	}

	if t.breaker != nil && !t.breaker.Allow() {
		// Pass-through fallback while the breaker is open.
		return text, nil
	}

	start := time.Now()
	translated, err := t.port.Translate(ctx, text, sourceLang, targetLang)
	_ = time.Since(start)

	if err != nil {
		if t.breaker != nil {
			t.breaker.RecordFailure()
		}
		return "", err
	}
	if t.breaker != nil {
		t.breaker.RecordSuccess()
	}

	if t.cache != nil {
		t.cache.Put(key, translated)
	}
	return translated, nil
}

func (t *StreamingTranslator) updateStability(segID, currentText string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[segID]
	if !ok {
		st = &translatorSegmentState{}
		t.states[segID] = st
	}

	currTokens := strings.Fields(currentText)
	stability := 1.0
	if len(st.prevTokens) > 0 {
		dist := tokenEditDistance(st.prevTokens, currTokens)
		maxLen := len(st.prevTokens)
		if len(currTokens) > maxLen {
			maxLen = len(currTokens)
		}
		if maxLen > 0 {
			stability = 1 - float64(dist)/float64(maxLen)
		}
	}

	st.prevTokens = currTokens
	return stability
}

func (t *StreamingTranslator) forgetSegment(segID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, segID)
}

// tokenEditDistance is the classic Levenshtein distance over token
// sequences, used for the stability score.
func tokenEditDistance(a, b []string) int {
	la, lb := len(a), len(b)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			m := del
			if ins < m {
				m = ins
			}
			if sub < m {
				m = sub
			}
			curr[j] = m
		}
		prev, curr = curr, prev
	}
	return prev[lb]
}
