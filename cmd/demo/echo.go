package main

import (
	"math"
	"sync"
	"time"
)

// echoGate detects when captured microphone audio is actually the demo's
// own speaker/monitor output bleeding back into the mic, gating PushFrame
// calls during playback. Adapted from an earlier correlation-based echo
// suppressor in this codebase, pared down to the float32 samples and
// single isEcho decision the demo's capture callback needs (no offline
// post-processing or time-domain cancellation — this is a gate, not an
// echo canceller).
type echoGate struct {
	mu            sync.Mutex
	played        []float32
	maxBufSamples int
	threshold     float64
	silenceWindow time.Duration
	lastPlayedAt  time.Time
	enabled       bool
}

func newEchoGate(sampleRate int, enabled bool) *echoGate {
	return &echoGate{
		maxBufSamples: sampleRate * 2, // ~2s of monitor audio
		threshold:     0.55,
		silenceWindow: 1200 * time.Millisecond,
		enabled:       enabled,
	}
}

// recordPlayed records audio just written to the output device.
func (g *echoGate) recordPlayed(samples []float32) {
	if !g.enabled || len(samples) == 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	g.played = append(g.played, samples...)
	g.lastPlayedAt = time.Now()
	if len(g.played) > g.maxBufSamples {
		g.played = g.played[len(g.played)-g.maxBufSamples:]
	}
}

// isEcho reports whether input correlates highly with recently played
// audio, i.e. is probably the demo hearing itself rather than the user.
func (g *echoGate) isEcho(input []float32) bool {
	if !g.enabled || len(input) == 0 {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if time.Since(g.lastPlayedAt) > g.silenceWindow {
		return false
	}
	if len(g.played) == 0 {
		return false
	}

	compareLen := len(input)
	if compareLen > len(g.played) {
		compareLen = len(g.played)
	}
	ref := g.played[len(g.played)-compareLen:]

	inEnergy := energy(input[:compareLen])
	refEnergy := energy(ref)
	if inEnergy == 0 || refEnergy == 0 {
		return false
	}

	var dot float64
	for i := 0; i < compareLen; i++ {
		dot += float64(input[i]) * float64(ref[i])
	}
	corr := dot / math.Sqrt(inEnergy*refEnergy)
	if corr < 0 {
		corr = 0
	}
	return corr > g.threshold
}

func energy(samples []float32) float64 {
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return sum
}
