package pipeline

import "testing"

func TestPostProcessDropsLowConfidence(t *testing.T) {
	cfg := DefaultConfig()
	out := PostProcess(ASRResult{Text: "hello there", Confidence: 0.1}, cfg)
	if !out.Skip || out.Reason != DropHallucination {
		t.Errorf("expected a low-confidence result to be dropped as hallucination, got skip=%v reason=%s", out.Skip, out.Reason)
	}
}

func TestPostProcessDropsCharRepetition(t *testing.T) {
	cfg := DefaultConfig()
	out := PostProcess(ASRResult{Text: "aaaaaaaaaa", Confidence: 0.9}, cfg)
	if !out.Skip {
		t.Error("expected character-repetition hallucination to be dropped")
	}
}

func TestPostProcessDropsSequenceRepetition(t *testing.T) {
	cfg := DefaultConfig()
	out := PostProcess(ASRResult{Text: "go go go go go go", Confidence: 0.9}, cfg)
	if !out.Skip {
		t.Error("expected sequence-repetition hallucination to be dropped")
	}
}

func TestPostProcessKeepsNormalSpeech(t *testing.T) {
	cfg := DefaultConfig()
	out := PostProcess(ASRResult{Text: "the quick brown fox jumps over the lazy dog", Confidence: 0.95}, cfg)
	if out.Skip {
		t.Errorf("did not expect normal speech to be dropped, reason=%s", out.Reason)
	}
}

func TestPostProcessNormalizesWhitespaceAndPunctuation(t *testing.T) {
	cfg := DefaultConfig()
	out := PostProcess(ASRResult{Text: "hello world!!! how are you??", Confidence: 0.9}, cfg)
	if out.Skip {
		t.Fatalf("did not expect this to be dropped, reason=%s", out.Reason)
	}
	if out.Result.Text != "hello world! how are you?" {
		t.Errorf("unexpected normalized text: %q", out.Result.Text)
	}
}

func TestPostProcessStripsParentheticalArtifacts(t *testing.T) {
	cfg := DefaultConfig()
	out := PostProcess(ASRResult{Text: "that's funny (Laughter) right", Confidence: 0.9}, cfg)
	if out.Skip {
		t.Fatalf("did not expect this to be dropped, reason=%s", out.Reason)
	}
	if out.Result.Text != "that's funny right" {
		t.Errorf("expected the (Laughter) artifact to be stripped, got %q", out.Result.Text)
	}
}

func TestPostProcessStripsFillerWords(t *testing.T) {
	cfg := DefaultConfig()
	out := PostProcess(ASRResult{Text: "um so I think uh it works", Language: LangEn, Confidence: 0.9}, cfg)
	if out.Skip {
		t.Fatalf("did not expect this to be dropped, reason=%s", out.Reason)
	}
	if out.Result.Text != "so I think it works" {
		t.Errorf("expected fillers stripped, got %q", out.Result.Text)
	}
}

func TestPostProcessNeverEmptiesAllFillerText(t *testing.T) {
	cfg := DefaultConfig()
	out := PostProcess(ASRResult{Text: "um uh", Language: LangEn, Confidence: 0.9}, cfg)
	if out.Skip {
		t.Error("an all-filler utterance has text, so it shouldn't be blanked into a drop by filler-stripping alone")
	}
}

func TestPostProcessIsIdempotent(t *testing.T) {
	cfg := DefaultConfig()
	first := PostProcess(ASRResult{Text: "hello world!!! (Laughter) um ok", Language: LangEn, Confidence: 0.9}, cfg)
	if first.Skip {
		t.Fatalf("unexpected drop on first pass: %s", first.Reason)
	}
	second := PostProcess(first.Result, cfg)
	if second.Skip {
		t.Fatalf("unexpected drop on second pass: %s", second.Reason)
	}
	if second.Result.Text != first.Result.Text {
		t.Errorf("expected normalization to be a fixed point: %q vs %q", first.Result.Text, second.Result.Text)
	}
}
