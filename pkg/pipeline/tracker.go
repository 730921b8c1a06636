package pipeline

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// SegmentTrace records every stage timestamp a segment passes through, used
// both to compute the per-segment latency breakdown and to enforce the
// terminal-state invariant at stop: every segment ends up either emitted or
// dropped, never silently lost.
type SegmentTrace struct {
	SegmentID uuid.UUID
	Seq       int64

	CreatedAt        time.Time
	LastAudioFrameAt time.Time
	VADAt            time.Time
	SegmentedAt      time.Time
	DraftASRAt       []time.Time
	FinalASRAt       time.Time
	DraftMTAt        []time.Time
	FinalMTAt        time.Time
	EmittedAt        time.Time
	DroppedAt        time.Time
	DropReason       DropReason
}

func (t *SegmentTrace) terminal() bool {
	return !t.EmittedAt.IsZero() || !t.DroppedAt.IsZero()
}

const trackerShardCount = 16

type trackerShard struct {
	mu     sync.RWMutex
	traces map[uuid.UUID]*SegmentTrace
}

// latencySample is one completed segment's worth of timing data, folded
// into the rolling window SegmentTracker uses for MetricsSnapshot's mean/p95
// figures (last 100 segments).
type latencySample struct {
	ttftMs           int64
	meaningLatencyMs int64
	earVoiceLagMs    int64
	asrMs            int64
	mtMs             int64
	overlapSavingsMs int64
}

// SegmentTracker is the per-segment trace registry. It shards its locking
// across trackerShardCount buckets keyed by the segment UUID's first byte
// so concurrent ASR/MT workers recording stage timestamps for different
// segments don't contend on a single mutex.
type SegmentTracker struct {
	shards [trackerShardCount]*trackerShard
	clock  Clock

	metrics *Metrics

	historyMu sync.Mutex
	history   []latencySample
}

// NewSegmentTracker constructs a tracker bound to metrics for gauge/counter
// export.
func NewSegmentTracker(clock Clock, metrics *Metrics) *SegmentTracker {
	if clock == nil {
		clock = SystemClock{}
	}
	t := &SegmentTracker{clock: clock, metrics: metrics}
	for i := range t.shards {
		t.shards[i] = &trackerShard{traces: map[uuid.UUID]*SegmentTrace{}}
	}
	return t
}

func (t *SegmentTracker) shardFor(id uuid.UUID) *trackerShard {
	return t.shards[id[0]%trackerShardCount]
}

// Open registers a new segment's trace.
func (t *SegmentTracker) Open(segID uuid.UUID, seq int64, createdAt time.Time, lastAudioFrameAt time.Time) {
	shard := t.shardFor(segID)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	shard.traces[segID] = &SegmentTrace{
		SegmentID:        segID,
		Seq:              seq,
		CreatedAt:        createdAt,
		LastAudioFrameAt: lastAudioFrameAt,
	}
}

func (t *SegmentTracker) withTrace(segID uuid.UUID, fn func(tr *SegmentTrace)) {
	shard := t.shardFor(segID)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	tr, ok := shard.traces[segID]
	if !ok {
		return
	}
	fn(tr)
}

// RecordVAD marks when the VAD stage produced the trigger event for this
// segment's first frame.
func (t *SegmentTracker) RecordVAD(segID uuid.UUID, at time.Time) {
	t.withTrace(segID, func(tr *SegmentTrace) { tr.VADAt = at })
}

// RecordSegmented marks when segmentation handed the segment to the
// recognizer.
func (t *SegmentTracker) RecordSegmented(segID uuid.UUID, at time.Time) {
	t.withTrace(segID, func(tr *SegmentTrace) { tr.SegmentedAt = at })
}

// RecordDraftASR appends a draft-ASR completion timestamp. The first one
// anchors time-to-first-token.
func (t *SegmentTracker) RecordDraftASR(segID uuid.UUID, at time.Time) {
	t.withTrace(segID, func(tr *SegmentTrace) { tr.DraftASRAt = append(tr.DraftASRAt, at) })
}

// RecordFinalASR marks the terminal ASR result.
func (t *SegmentTracker) RecordFinalASR(segID uuid.UUID, at time.Time) {
	t.withTrace(segID, func(tr *SegmentTrace) { tr.FinalASRAt = at })
}

// RecordDraftMT appends a draft-translation completion timestamp.
func (t *SegmentTracker) RecordDraftMT(segID uuid.UUID, at time.Time) {
	t.withTrace(segID, func(tr *SegmentTrace) { tr.DraftMTAt = append(tr.DraftMTAt, at) })
}

// RecordFinalMT marks the terminal translation result.
func (t *SegmentTracker) RecordFinalMT(segID uuid.UUID, at time.Time) {
	t.withTrace(segID, func(tr *SegmentTrace) { tr.FinalMTAt = at })
}

// RecordEmitted closes out a segment's trace as successfully delivered to
// the subscriber, folding its latencies into the rolling window.
func (t *SegmentTracker) RecordEmitted(segID uuid.UUID, at time.Time) {
	t.finalize(segID, at, "")
}

// RecordDropped closes out a segment's trace as discarded for reason.
func (t *SegmentTracker) RecordDropped(segID uuid.UUID, reason DropReason, at time.Time) {
	t.finalize(segID, at, reason)
}

func (t *SegmentTracker) finalize(segID uuid.UUID, at time.Time, reason DropReason) {
	shard := t.shardFor(segID)
	shard.mu.Lock()
	tr, ok := shard.traces[segID]
	if !ok {
		shard.mu.Unlock()
		return
	}
	if reason != "" {
		tr.DroppedAt = at
		tr.DropReason = reason
	} else {
		tr.EmittedAt = at
	}
	sample := computeLatencySample(tr)
	delete(shard.traces, segID)
	shard.mu.Unlock()

	if reason != "" {
		if t.metrics != nil {
			t.metrics.IncDropped(reason)
		}
		return
	}

	if t.metrics != nil {
		t.metrics.IncEmitted()
		t.metrics.ObserveASRLatency(sample.asrMs)
		t.metrics.ObserveMTLatency(sample.mtMs)
	}

	t.historyMu.Lock()
	t.history = append(t.history, sample)
	if len(t.history) > 100 {
		t.history = t.history[len(t.history)-100:]
	}
	t.historyMu.Unlock()
}

// computeLatencySample derives the latency figures from a trace's raw
// timestamps. TTFT, meaning_latency and ear_voice_lag are all measured from
// the trace's LastAudioFrameAt, the value given to Open. Pipeline passes the
// segment's creation time there, and the value is not updated as later
// frames are appended to the segment.
func computeLatencySample(tr *SegmentTrace) latencySample {
	var s latencySample

	if len(tr.DraftASRAt) > 0 && !tr.LastAudioFrameAt.IsZero() {
		s.ttftMs = tr.DraftASRAt[0].Sub(tr.LastAudioFrameAt).Milliseconds()
	}
	if !tr.FinalMTAt.IsZero() && !tr.LastAudioFrameAt.IsZero() {
		s.meaningLatencyMs = tr.FinalMTAt.Sub(tr.LastAudioFrameAt).Milliseconds()
	}
	if !tr.EmittedAt.IsZero() && !tr.LastAudioFrameAt.IsZero() {
		s.earVoiceLagMs = tr.EmittedAt.Sub(tr.LastAudioFrameAt).Milliseconds()
	}
	if !tr.FinalASRAt.IsZero() && !tr.SegmentedAt.IsZero() {
		s.asrMs = tr.FinalASRAt.Sub(tr.SegmentedAt).Milliseconds()
	}
	if !tr.FinalMTAt.IsZero() && !tr.FinalASRAt.IsZero() {
		s.mtMs = tr.FinalMTAt.Sub(tr.FinalASRAt).Milliseconds()
	}
	// overlap_savings_ms: time reclaimed by having already produced drafts
	// before the final became available, i.e. how much of the ASR+MT
	// pipeline ran concurrently with continued speech rather than after it.
	if len(tr.DraftASRAt) > 0 && !tr.FinalASRAt.IsZero() {
		s.overlapSavingsMs = tr.FinalASRAt.Sub(tr.DraftASRAt[0]).Milliseconds()
	}
	return s
}

// OpenSegmentCount reports the number of traces not yet terminal, used by
// stop to decide whether the grace period drained everything.
func (t *SegmentTracker) OpenSegmentCount() int {
	total := 0
	for _, shard := range t.shards {
		shard.mu.RLock()
		total += len(shard.traces)
		shard.mu.RUnlock()
	}
	return total
}

// CheckTerminalInvariant returns the segment IDs still open (neither
// emitted nor dropped), for stop to log as an invariant violation.
func (t *SegmentTracker) CheckTerminalInvariant() []uuid.UUID {
	var stuck []uuid.UUID
	for _, shard := range t.shards {
		shard.mu.RLock()
		for id, tr := range shard.traces {
			if !tr.terminal() {
				stuck = append(stuck, id)
			}
		}
		shard.mu.RUnlock()
	}
	return stuck
}

// QueueDepthSnapshot is one queue's instantaneous depth/capacity and the
// watermark flags, embedded into MetricsSnapshot.
type QueueDepthSnapshot struct {
	Depth    int
	Capacity int
	Warning  bool
	Critical bool
}

// MetricsSnapshot is the periodic health report the orchestrator attaches
// to HEALTH_TICK events.
type MetricsSnapshot struct {
	Timestamp time.Time

	TTFTMeanMs, TTFTP95Ms                     int64
	MeaningLatencyMeanMs, MeaningLatencyP95Ms int64
	EarVoiceLagMeanMs, EarVoiceLagP95Ms       int64
	ASRMeanMs, ASRP95Ms                       int64
	MTMeanMs, MTP95Ms                         int64
	OverlapSavingsMeanMs                      int64

	VADFilterEfficiency float64
	QueueDepths         map[string]QueueDepthSnapshot
	BreakerStates       map[string]BreakerState
}

// Snapshot computes mean/p95 figures over the last (up to) 100 completed
// segments.
func (t *SegmentTracker) Snapshot(now time.Time) MetricsSnapshot {
	t.historyMu.Lock()
	samples := append([]latencySample(nil), t.history...)
	t.historyMu.Unlock()

	snap := MetricsSnapshot{Timestamp: now}
	if len(samples) == 0 {
		return snap
	}

	extract := func(f func(latencySample) int64) (mean, p95 int64) {
		vals := make([]int64, len(samples))
		var sum int64
		for i, s := range samples {
			v := f(s)
			vals[i] = v
			sum += v
		}
		sort.Slice(vals, func(i, j int) bool { return vals[i] < vals[j] })
		mean = sum / int64(len(vals))
		idx := int(0.95 * float64(len(vals)-1))
		p95 = vals[idx]
		return
	}

	snap.TTFTMeanMs, snap.TTFTP95Ms = extract(func(s latencySample) int64 { return s.ttftMs })
	snap.MeaningLatencyMeanMs, snap.MeaningLatencyP95Ms = extract(func(s latencySample) int64 { return s.meaningLatencyMs })
	snap.EarVoiceLagMeanMs, snap.EarVoiceLagP95Ms = extract(func(s latencySample) int64 { return s.earVoiceLagMs })
	snap.ASRMeanMs, snap.ASRP95Ms = extract(func(s latencySample) int64 { return s.asrMs })
	snap.MTMeanMs, snap.MTP95Ms = extract(func(s latencySample) int64 { return s.mtMs })
	snap.OverlapSavingsMeanMs, _ = extract(func(s latencySample) int64 { return s.overlapSavingsMs })

	return snap
}

// Metrics is the Prometheus-backed exporter. Every gauge/counter is
// registered against the provided registry so callers can mount it on
// whatever handler (or none) they choose.
type Metrics struct {
	segmentsEmitted     prometheus.Counter
	segmentsDropped     *prometheus.CounterVec
	queueDepth          *prometheus.GaugeVec
	vadFilterEfficiency prometheus.Gauge
	asrLatency          prometheus.Histogram
	mtLatency           prometheus.Histogram
	breakerState        *prometheus.GaugeVec
}

// NewMetrics registers the pipeline's metric families against reg. Pass
// prometheus.NewRegistry for an isolated registry, or nil to use the
// default global one.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		segmentsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "translingo",
			Name:      "segments_emitted_total",
			Help:      "Segments successfully delivered to the subscriber.",
		}),
		segmentsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "translingo",
			Name:      "segments_dropped_total",
			Help:      "Segments discarded before delivery, by reason.",
		}, []string{"reason"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "translingo",
			Name:      "queue_depth",
			Help:      "Current depth of an internal pipeline queue.",
		}, []string{"queue"}),
		vadFilterEfficiency: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "translingo",
			Name:      "vad_filter_efficiency",
			Help:      "Fraction of frames short-circuited by the VAD energy pre-filter.",
		}),
		asrLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "translingo",
			Name:      "asr_latency_ms",
			Help:      "Final ASR compute latency in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2000, 5000},
		}),
		mtLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "translingo",
			Name:      "mt_latency_ms",
			Help:      "Final translation compute latency in milliseconds.",
			Buckets:   []float64{25, 50, 100, 250, 500, 1000, 2000},
		}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "translingo",
			Name:      "breaker_state",
			Help:      "0=closed, 1=half_open, 2=open, by port.",
		}, []string{"port"}),
	}

	reg.MustRegister(
		m.segmentsEmitted, m.segmentsDropped, m.queueDepth,
		m.vadFilterEfficiency, m.asrLatency, m.mtLatency, m.breakerState,
	)
	return m
}

func (m *Metrics) IncEmitted() { m.segmentsEmitted.Inc() }

func (m *Metrics) IncDropped(reason DropReason) {
	m.segmentsDropped.WithLabelValues(string(reason)).Inc()
}

func (m *Metrics) SetQueueDepth(queue string, depth int) {
	m.queueDepth.WithLabelValues(queue).Set(float64(depth))
}

func (m *Metrics) SetFilterEfficiency(v float64) { m.vadFilterEfficiency.Set(v) }

func (m *Metrics) ObserveASRLatency(ms int64) {
	if ms > 0 {
		m.asrLatency.Observe(float64(ms))
	}
}

func (m *Metrics) ObserveMTLatency(ms int64) {
	if ms > 0 {
		m.mtLatency.Observe(float64(ms))
	}
}

func (m *Metrics) SetBreakerState(port string, state BreakerState) {
	var v float64
	switch state {
	case BreakerClosed:
		v = 0
	case BreakerHalfOpen:
		v = 1
	case BreakerOpen:
		v = 2
	}
	m.breakerState.WithLabelValues(port).Set(v)
}
