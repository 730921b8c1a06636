package pipeline

import (
	"math"
	"time"
)

// NoiseFloorEstimator tracks a smoothed 10th-percentile RMS estimate over
// silence, updated only while speech_probability < 0.1.
type NoiseFloorEstimator struct {
	window       []float64
	windowMs     int64
	frameMs      int64
	smoothed     float64
	initialValue float64
	silenceMs    int64
	alpha        float64
}

// NewNoiseFloorEstimator creates an estimator over a sliding 2-second
// window with the default initial value of 0.001 and alpha = 0.1.
func NewNoiseFloorEstimator(frameMs int64) *NoiseFloorEstimator {
	return &NoiseFloorEstimator{
		windowMs:     2000,
		frameMs:      frameMs,
		initialValue: 0.001,
		smoothed:     0.001,
		alpha:        0.1,
	}
}

// Observe feeds one frame's RMS and speech probability. Only frames below
// the 0.1 probability threshold update the estimate.
func (n *NoiseFloorEstimator) Observe(rms, speechProbability float64) {
	if speechProbability >= 0.1 {
		return
	}

	n.window = append(n.window, rms)
	maxLen := int(n.windowMs / n.frameMs)
	if maxLen < 1 {
		maxLen = 1
	}
	if len(n.window) > maxLen {
		n.window = n.window[len(n.window)-maxLen:]
	}
	n.silenceMs += n.frameMs

	p10 := percentile(n.window, 0.10)
	n.smoothed = n.alpha*p10 + (1-n.alpha)*n.smoothed
}

// Estimate returns the current noise floor. Before 0.5s of silence has
// been observed, the configured initial value is returned instead.
func (n *NoiseFloorEstimator) Estimate() float64 {
	if n.silenceMs < 500 {
		return n.initialValue
	}
	return n.smoothed
}

func percentile(xs []float64, p float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	idx := int(p * float64(len(sorted)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// AdaptiveThreshold computes and rate-limits the VAD trigger threshold.
// The rate limit's reference point is the previous threshold.
type AdaptiveThreshold struct {
	current  float64
	min, max float64
}

// NewAdaptiveThreshold seeds the threshold at the "moderate" band mid
// point, clamped to [min, max].
func NewAdaptiveThreshold(min, max float64) *AdaptiveThreshold {
	t := &AdaptiveThreshold{min: min, max: max, current: 0.50}
	t.current = clamp(t.current, min, max)
	return t
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// targetForNoiseFloor maps a noise floor estimate to the threshold band
// (quiet/moderate/noisy).
func targetForNoiseFloor(n float64) float64 {
	switch {
	case n < 0.001:
		return 0.35
	case n < 0.01:
		return 0.50
	default:
		return 0.65
	}
}

// Update advances the threshold toward the noise-floor-implied target,
// rate-limited to at most 20% of the delta per update, then clamps to
// [min, max].
func (t *AdaptiveThreshold) Update(noiseFloor float64) float64 {
	target := targetForNoiseFloor(noiseFloor)
	delta := target - t.current
	t.current += 0.20 * delta
	t.current = clamp(t.current, t.min, t.max)
	return t.current
}

// Current returns the threshold without advancing it.
func (t *AdaptiveThreshold) Current() float64 { return t.current }

// vadHysteresisState is the Schmitt-trigger state machine's internal
// tracked run lengths (enter Speech after 3 consecutive frames above
// threshold; leave after 5 consecutive frames below it).
type vadHysteresisState struct {
	speaking bool
	aboveRun int
	belowRun int
}

const (
	vadEnterFrames = 3
	vadExitFrames  = 5
)

func (h *vadHysteresisState) step(prob, threshold float64) (event VADEventType, isTrigger bool) {
	if prob >= threshold {
		h.aboveRun++
		h.belowRun = 0
	} else {
		h.belowRun++
		h.aboveRun = 0
	}

	if !h.speaking {
		if h.aboveRun >= vadEnterFrames {
			h.speaking = true
			return VADSpeech, true
		}
		return VADSilence, false
	}

	// currently speaking
	if h.belowRun >= vadExitFrames {
		h.speaking = false
		return VADSilence, false
	}
	return VADSpeechContinuing, false
}

// AdaptiveVAD implements noise-floor estimation, an adaptive threshold, an
// energy pre-filter that short-circuits the neural VAD port, and
// hysteresis-based speech/silence classification. Grounded on an earlier
// RMS-threshold VAD this module replaces, generalized to drive an external
// VADPort rather than deciding purely on RMS.
type AdaptiveVAD struct {
	port VADPort

	sampleRate int
	frameMs    int64

	noiseFloor *NoiseFloorEstimator
	threshold  *AdaptiveThreshold
	hysteresis vadHysteresisState

	filteredCount uint64
	totalCount    uint64

	breaker *CircuitBreaker
	logger  Logger

	lastWarnLog time.Time
}

// NewAdaptiveVAD constructs the adaptive VAD around an optional neural
// VADPort (nil means energy-only operation).
func NewAdaptiveVAD(port VADPort, cfg Config, breaker *CircuitBreaker, logger Logger) *AdaptiveVAD {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &AdaptiveVAD{
		port:       port,
		sampleRate: cfg.SampleRate,
		frameMs:    int64(cfg.FrameMs),
		noiseFloor: NewNoiseFloorEstimator(int64(cfg.FrameMs)),
		threshold:  NewAdaptiveThreshold(cfg.VADMinThreshold, cfg.VADMaxThreshold),
		breaker:    breaker,
		logger:     logger,
	}
}

func rmsOf(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Process classifies one frame, returning the VADEvent the segmentation
// engine consumes.
func (v *AdaptiveVAD) Process(frame AudioFrame) VADEvent {
	v.totalCount++
	rms := rmsOf(frame.Samples)
	n := v.noiseFloor.Estimate()

	var prob, confidence float64

	// Energy pre-filter: below ~6dB over the noise floor, skip the neural
	// VAD entirely.
	if rms < 2*n {
		v.filteredCount++
		prob = 0
		confidence = 1
	} else if v.port != nil && v.breakerAllows() {
		p, c, err := v.port.Probe(frame)
		if err != nil {
			v.recordFailure()
			if time.Since(v.lastWarnLog) > time.Second {
				v.logger.Warn("neural VAD port errored, falling back to energy-only", "error", err)
				v.lastWarnLog = time.Now()
			}
			prob = energyOnlyProbability(rms, 4*n)
			confidence = 0.5
		} else {
			v.recordSuccess()
			prob, confidence = p, c
		}
	} else {
		// No neural port configured, or its breaker is open: energy-only
		// fallback at the "4*n" threshold.
		prob = energyOnlyProbability(rms, 4*n)
		confidence = 0.5
	}

	v.noiseFloor.Observe(rms, prob)
	threshold := v.threshold.Update(n)

	evType, isTrigger := v.hysteresis.step(prob, threshold)

	return VADEvent{
		Type:              evType,
		SpeechProbability: prob,
		EnergyRMS:         rms,
		IsTrigger:         isTrigger,
		Timestamp:         frame.CaptureTime,
	}
}

func energyOnlyProbability(rms, threshold float64) float64 {
	if threshold <= 0 {
		if rms > 0 {
			return 1
		}
		return 0
	}
	if rms >= threshold {
		return 1
	}
	return rms / threshold
}

func (v *AdaptiveVAD) breakerAllows() bool {
	if v.breaker == nil {
		return true
	}
	return v.breaker.Allow()
}

func (v *AdaptiveVAD) recordFailure() {
	if v.breaker != nil {
		v.breaker.RecordFailure()
	}
}

func (v *AdaptiveVAD) recordSuccess() {
	if v.breaker != nil {
		v.breaker.RecordSuccess()
	}
}

// FilterEfficiency returns the fraction of frames the energy pre-filter
// short-circuited, reported as "filter efficiency" in metrics (expected
// 30-50%).
func (v *AdaptiveVAD) FilterEfficiency() float64 {
	if v.totalCount == 0 {
		return 0
	}
	return float64(v.filteredCount) / float64(v.totalCount)
}

// Threshold returns the current adaptive threshold value.
func (v *AdaptiveVAD) Threshold() float64 { return v.threshold.Current() }

// IsSpeaking reports the hysteresis state machine's current speaking flag.
func (v *AdaptiveVAD) IsSpeaking() bool { return v.hysteresis.speaking }

// SilenceRunMs returns how long the current run of below-threshold frames
// has lasted, used by the adaptive draft controller's "closing imminent"
// skip rule.
func (v *AdaptiveVAD) SilenceRunMs() int64 {
	return int64(v.hysteresis.belowRun) * v.frameMs
}
