package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// vadFrameEvent pairs a frame with the VAD decision for it, the unit
// carried on the vad->seg queue.
type vadFrameEvent struct {
	frame AudioFrame
	event VADEvent
}

// reorderBuffer restores ascending segment-sequence order to the finals
// reaching the translator, so a slower ASR worker finishing segment N-1
// after a faster one finished N doesn't send the MT stage (and therefore
// the subscriber) out-of-order transcripts. Drafts are not reordered: they
// are ephemeral previews and arriving slightly out of sequence across two
// different segments does not corrupt anything downstream. Capacity bounds
// how many completed-but-not-yet-drained finals can be held behind a gap.
type reorderBuffer struct {
	mu       sync.Mutex
	cond     *sync.Cond
	nextSeq  int64
	pending  map[int64]ASRResult
	capacity int
	closed   bool
}

func newReorderBuffer(startSeq int64, capacity int) *reorderBuffer {
	if capacity < 1 {
		capacity = 1
	}
	b := &reorderBuffer{nextSeq: startSeq, capacity: capacity, pending: map[int64]ASRResult{}}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// put stores a final result keyed by its segment's sequence number,
// blocking the caller while capacity is already exhausted by results stuck
// behind an earlier gap.
func (b *reorderBuffer) put(seq int64, result ASRResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.pending) >= b.capacity && !b.closed {
		b.cond.Wait()
	}
	if b.closed {
		return
	}
	b.pending[seq] = result
	b.cond.Broadcast()
}

// drainReady pops the contiguous run of results starting at nextSeq.
func (b *reorderBuffer) drainReady() []ASRResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []ASRResult
	for {
		r, ok := b.pending[b.nextSeq]
		if !ok {
			break
		}
		out = append(out, r)
		delete(b.pending, b.nextSeq)
		b.nextSeq++
	}
	if out != nil {
		b.cond.Broadcast()
	}
	return out
}

// skip advances past a sequence number that will never arrive (its segment
// was dropped before reaching ASR), so a single discarded segment can't
// stall every later final behind it forever.
func (b *reorderBuffer) skip(seq int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if seq == b.nextSeq {
		b.nextSeq++
		b.cond.Broadcast()
	}
}

func (b *reorderBuffer) close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.cond.Broadcast()
}

// segmentLifecycle is the per-open-segment bookkeeping an ASR worker keeps
// while ticking drafts against a segment that is still being appended to.
type segmentLifecycle struct {
	closeCh chan SegmentEmission
}

// Pipeline is the parallel orchestrator: it owns the ring buffer, the four
// bounded inter-stage queues, the worker goroutines driving VAD,
// segmentation, ASR, MT, and output delivery, and the lifecycle of the
// whole session. Grounded on an earlier single-flight conversational
// engine's goroutine-per-role shape and idempotent start/stop, generalized
// from a single conversational turn into a continuously segmented audio
// stream with bounded, independently-policed queues between every stage.
type Pipeline struct {
	cfg    Config
	logger Logger
	clock  Clock

	vadBreaker *CircuitBreaker
	asrBreaker *CircuitBreaker
	mtBreaker  *CircuitBreaker

	vad        *AdaptiveVAD
	seg        *SegmentationEngine
	recognizer *StreamingRecognizer
	translator *StreamingTranslator
	tracker    *SegmentTracker
	metrics    *Metrics

	audioRing *RingAudioBuffer
	vadToSeg  *BoundedQueue[vadFrameEvent]
	segToASR  *BoundedQueue[SegmentEmission]
	asrToMT   *BoundedQueue[ASRResult]
	mtToOut   *BoundedQueue[PipelineEvent]

	reorder *reorderBuffer

	subscriber Subscriber

	asrSem chan struct{}

	lifecyclesMu sync.Mutex
	lifecycles   map[uuid.UUID]*segmentLifecycle

	asrInFlight int32

	mu       sync.Mutex
	started  bool
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	lastSampleIndex int64
	haveSample      bool
}

// Ports bundles the three concrete adapters a caller wires in at
// initialize time. VAD may be nil for energy-only operation.
type Ports struct {
	VAD VADPort
	ASR ASRPort
	MT  MTPort
}

// New constructs a Pipeline. Validate is run immediately; a
// *ConfigurationError short-circuits before any goroutine is started.
func New(cfg Config, ports Ports, logger Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if ports.ASR == nil || ports.MT == nil {
		return nil, ErrNilProvider
	}
	if logger == nil {
		logger = &NoOpLogger{}
	}

	clock := SystemClock{}
	vadBreaker := NewCircuitBreaker(clock)
	asrBreaker := NewCircuitBreaker(clock)
	mtBreaker := NewCircuitBreaker(clock)

	metrics := NewMetrics(prometheus.NewRegistry())

	p := &Pipeline{
		cfg:    cfg,
		logger: logger,
		clock:  clock,

		vadBreaker: vadBreaker,
		asrBreaker: asrBreaker,
		mtBreaker:  mtBreaker,

		vad:        NewAdaptiveVAD(ports.VAD, cfg, vadBreaker, logger),
		seg:        NewSegmentationEngine(cfg),
		recognizer: NewStreamingRecognizer(ports.ASR, cfg, asrBreaker, logger),
		translator: NewStreamingTranslator(ports.MT, cfg, mtBreaker, logger),
		tracker:    NewSegmentTracker(clock, metrics),
		metrics:    metrics,

		audioRing: NewRingAudioBuffer(64),
		vadToSeg:  NewBoundedQueue[vadFrameEvent](cfg.QueueVADToSeg, DropOldest, 0),
		segToASR:  NewBoundedQueue[SegmentEmission](cfg.QueueSegToASR, BlockThenDropNewest, 50*time.Millisecond),
		asrToMT:   NewBoundedQueue[ASRResult](cfg.QueueASRToMT, BlockThenDropNewest, 50*time.Millisecond),
		mtToOut:   NewBoundedQueue[PipelineEvent](cfg.QueueMTToOut, BlockIndefinitely, 0),

		reorder: newReorderBuffer(1, cfg.ASRWorkers+1),

		asrSem: make(chan struct{}, cfg.ASRWorkers),

		lifecycles: map[uuid.UUID]*segmentLifecycle{},
	}

	return p, nil
}

// Start launches every worker goroutine and begins delivering
// PipelineEvents to subscriber. Returns ErrAlreadyStarted if called twice.
func (p *Pipeline) Start(subscriber Subscriber) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}
	p.started = true
	p.subscriber = subscriber
	p.stopCh = make(chan struct{})
	p.mu.Unlock()

	p.wg.Add(1)
	go p.runCaptureDispatch()

	p.wg.Add(1)
	go p.runVADWorker()

	p.wg.Add(1)
	go p.runSegmentationWorker()

	for i := 0; i < p.cfg.ASRWorkers; i++ {
		p.wg.Add(1)
		go p.runASRWorker()
	}

	p.wg.Add(1)
	go p.runMTWorker()

	p.wg.Add(1)
	go p.runOutputWorker()

	p.wg.Add(1)
	go p.runHealthMonitor()

	return nil
}

// PushFrame is the AudioSource contract: the caller hands in frames as
// they arrive from capture. A non-contiguous FirstSample triggers a
// session reset (flushing any open segment and restarting sequence
// tracking) rather than silently corrupting a segment's buffer.
func (p *Pipeline) PushFrame(frame AudioFrame) {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if !started {
		return
	}

	if p.haveSample && frame.FirstSample != p.lastSampleIndex {
		p.handleSessionReset()
	}
	p.lastSampleIndex = frame.FirstSample + int64(len(frame.Samples))
	p.haveSample = true

	p.audioRing.Push(frame)
}

func (p *Pipeline) handleSessionReset() {
	for _, emission := range p.seg.Finalize() {
		p.dispatchSegmentEmission(emission)
	}
	p.seg = NewSegmentationEngine(p.cfg)
	p.publish(PipelineEvent{Type: EventSessionReset, CreatedAt: p.clock.Now()})
}

// Stop drains in-flight work for up to ShutdownGracePeriodMs, then tears
// down every worker. Idempotent: a second call is a no-op.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		if !p.started {
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()

		for _, emission := range p.seg.Finalize() {
			p.dispatchSegmentEmission(emission)
		}

		grace := time.Duration(p.cfg.ShutdownGracePeriodMs) * time.Millisecond
		deadline := time.After(grace)
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
	drain:
		for {
			select {
			case <-deadline:
				break drain
			case <-ticker.C:
				if p.tracker.OpenSegmentCount() == 0 {
					break drain
				}
			}
		}

		if stuck := p.tracker.CheckTerminalInvariant(); len(stuck) > 0 {
			p.logger.Warn("pipeline stop: segments never reached a terminal state", "count", len(stuck))
		}

		close(p.stopCh)
		p.audioRing.Close()
		p.vadToSeg.Close()
		p.segToASR.Close()
		p.asrToMT.Close()
		p.mtToOut.Close()
		p.reorder.close()
		p.wg.Wait()
	})
}

// --- worker loops -----------------------------------------------------

func (p *Pipeline) runCaptureDispatch() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		default:
		}
		frame, ok := p.audioRing.PopTimeout(100 * time.Millisecond)
		if !ok {
			continue
		}
		event := p.vad.Process(frame)
		p.vadToSeg.Push(vadFrameEvent{frame: frame, event: event})
	}
}

// runVADWorker exists as a distinct named stage even though VAD inference
// itself runs synchronously inside capture dispatch (it must see every
// frame in order to keep the hysteresis state machine correct); this
// goroutine is the one that reports VAD health metrics.
func (p *Pipeline) runVADWorker() {
	defer p.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.metrics.SetFilterEfficiency(p.vad.FilterEfficiency())
			p.metrics.SetBreakerState("vad", p.vadBreaker.State())
		}
	}
}

func (p *Pipeline) runSegmentationWorker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		default:
		}
		fe, ok := p.vadToSeg.PopTimeout(100 * time.Millisecond)
		if !ok {
			continue
		}
		for _, emission := range p.seg.Feed(fe.frame, fe.event) {
			if emission.Segment != nil {
				p.tracker.RecordSegmented(emission.Segment.ID, p.clock.Now())
			}
			p.dispatchSegmentEmission(emission)
		}
	}
}

func (p *Pipeline) dispatchSegmentEmission(emission SegmentEmission) {
	if emission.Segment == nil && emission.Discard == "" {
		return
	}
	if emission.Opened {
		p.tracker.Open(emission.Segment.ID, emission.Segment.Seq, emission.Segment.CreationTime, emission.Segment.CreationTime)
	}
	if !p.segToASR.Push(emission) {
		// BlockThenDropNewest: the segment submission itself is the
		// casualty of backpressure.
		if emission.Segment != nil {
			p.tracker.RecordDropped(emission.Segment.ID, DropBackpressure, p.clock.Now())
			p.reorder.skip(emission.Segment.Seq)
		}
		p.publish(PipelineEvent{
			Type:       EventDropped,
			DropReason: DropBackpressure,
			CreatedAt:  p.clock.Now(),
		})
	}
}

func (p *Pipeline) runASRWorker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		default:
		}
		emission, ok := p.segToASR.PopTimeout(100 * time.Millisecond)
		if !ok {
			continue
		}

		if emission.Opened {
			p.runSegmentLifecycle(emission.Segment)
		} else {
			p.closeLifecycle(emission)
		}
	}
}

// runSegmentLifecycle owns one segment from open to close: it ticks drafts
// at cfg.DraftIntervalMs (subject to the adaptive skip rules) until a
// matching close emission arrives on the segment's close channel, then
// runs the accurate final pass.
func (p *Pipeline) runSegmentLifecycle(seg *SpeechSegment) {
	lc := &segmentLifecycle{closeCh: make(chan SegmentEmission, 1)}
	p.lifecyclesMu.Lock()
	p.lifecycles[seg.ID] = lc
	p.lifecyclesMu.Unlock()

	p.recognizer.Open(seg)
	p.publish(PipelineEvent{Type: EventNewSegment, SegmentID: seg.ID, Seq: seg.Seq, Stage: StageSeg, CreatedAt: p.clock.Now()})

	ticker := time.NewTicker(time.Duration(p.cfg.DraftIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	var lastDraftAt time.Time
	var closeEmission SegmentEmission
	var closed bool

	for !closed {
		select {
		case <-p.stopCh:
			closed = true
		case closeEmission = <-lc.closeCh:
			closed = true
		case <-ticker.C:
			newAudioMs := int64(0)
			if !lastDraftAt.IsZero() {
				newAudioMs = p.clock.Now().Sub(lastDraftAt).Milliseconds()
			} else {
				newAudioMs = seg.DurationSnapshot()
			}
			ok, _ := ShouldDraft(p.cfg, AdaptiveDraftInputs{
				ASRInFlightJobs:          int(atomic.LoadInt32(&p.asrInFlight)),
				PauseDraftsFlag:          p.segToASR.Len() > (p.segToASR.Capacity()*6)/10,
				RecentSilenceMs:          p.vad.SilenceRunMs(),
				NewAudioSinceLastDraftMs: newAudioMs,
			})
			if !ok {
				continue
			}
			draftCtx, cancel := context.WithTimeout(context.Background(), time.Duration(p.cfg.ASRDraftTimeoutMs)*time.Millisecond)
			result, ok := p.withASRSlot(func() (ASRResult, bool) {
				return p.recognizer.Draft(draftCtx, seg.ID.String())
			})
			cancel()
			lastDraftAt = p.clock.Now()
			if !ok {
				continue
			}
			p.tracker.RecordDraftASR(seg.ID, p.clock.Now())
			p.asrToMT.Push(result)
		}
	}

	p.lifecyclesMu.Lock()
	delete(p.lifecycles, seg.ID)
	p.lifecyclesMu.Unlock()

	if closeEmission.Discard != "" {
		p.tracker.RecordDropped(seg.ID, closeEmission.Discard, p.clock.Now())
		p.reorder.skip(seg.Seq)
		p.recognizer.Close(seg.ID.String())
		if closeEmission.Discard != DropTooShort {
			p.publish(PipelineEvent{Type: EventDropped, SegmentID: seg.ID, Seq: seg.Seq, DropReason: closeEmission.Discard, CreatedAt: p.clock.Now()})
		}
		return
	}

	finalSeg := seg
	if closeEmission.Segment != nil && closeEmission.Segment != seg {
		finalSeg = closeEmission.Segment
		p.recognizer.Rebind(finalSeg.ID.String(), finalSeg)
	}

	finalCtx, cancel := context.WithTimeout(context.Background(), time.Duration(p.cfg.ASRFinalTimeoutMs)*time.Millisecond)
	result, ok := p.withASRSlot(func() (ASRResult, bool) {
		return p.recognizer.Final(finalCtx, finalSeg.ID.String())
	})
	p.recognizer.Close(finalSeg.ID.String())

	if !ok {
		reason := DropAsrUnavailable
		if finalCtx.Err() != nil {
			reason = DropTimeout
		}
		cancel()
		p.tracker.RecordDropped(finalSeg.ID, reason, p.clock.Now())
		p.reorder.skip(finalSeg.Seq)
		p.publish(PipelineEvent{Type: EventDropped, SegmentID: finalSeg.ID, Seq: finalSeg.Seq, DropReason: reason, CreatedAt: p.clock.Now()})
		return
	}
	cancel()

	outcome := PostProcess(result, p.cfg)
	if outcome.Skip {
		p.tracker.RecordDropped(finalSeg.ID, outcome.Reason, p.clock.Now())
		p.reorder.skip(finalSeg.Seq)
		p.publish(PipelineEvent{Type: EventDropped, SegmentID: finalSeg.ID, Seq: finalSeg.Seq, DropReason: outcome.Reason, CreatedAt: p.clock.Now()})
		return
	}

	p.tracker.RecordFinalASR(finalSeg.ID, p.clock.Now())
	p.reorder.put(finalSeg.Seq, outcome.Result)
	p.drainReorderedFinals()
}

func (p *Pipeline) closeLifecycle(emission SegmentEmission) {
	if emission.Segment == nil {
		return
	}
	p.lifecyclesMu.Lock()
	lc, ok := p.lifecycles[emission.Segment.ID]
	p.lifecyclesMu.Unlock()
	if !ok {
		return
	}
	select {
	case lc.closeCh <- emission:
	default:
	}
}

func (p *Pipeline) drainReorderedFinals() {
	for _, result := range p.reorder.drainReady() {
		p.asrToMT.Push(result)
	}
}

func (p *Pipeline) withASRSlot(fn func() (ASRResult, bool)) (ASRResult, bool) {
	p.asrSem <- struct{}{}
	atomic.AddInt32(&p.asrInFlight, 1)
	defer func() {
		atomic.AddInt32(&p.asrInFlight, -1)
		<-p.asrSem
	}()
	return fn()
}

func (p *Pipeline) runMTWorker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		default:
		}
		result, ok := p.asrToMT.PopTimeout(100 * time.Millisecond)
		if !ok {
			continue
		}

		mtCtx, cancel := context.WithTimeout(context.Background(), time.Duration(p.cfg.MTTimeoutMs)*time.Millisecond)

		if result.Kind == KindDraft {
			translation, ok := p.translator.TranslateDraft(mtCtx, result)
			cancel()
			if !ok {
				continue
			}
			p.tracker.RecordDraftMT(result.SegmentID, p.clock.Now())
			p.mtToOut.Push(PipelineEvent{
				Type:        EventDraftASR,
				SegmentID:   result.SegmentID,
				Stage:       StageMT,
				CreatedAt:   p.clock.Now(),
				ASR:         &result,
				Translation: &translation,
			})
			continue
		}

		p.publish(PipelineEvent{
			Type:      EventFinalASR,
			SegmentID: result.SegmentID,
			Stage:     StageASR,
			CreatedAt: p.clock.Now(),
			ASR:       &result,
		})

		translation := p.translator.TranslateFinal(mtCtx, result)
		cancel()
		p.tracker.RecordFinalMT(result.SegmentID, p.clock.Now())
		p.mtToOut.Push(PipelineEvent{
			Type:        EventTranslation,
			SegmentID:   result.SegmentID,
			Stage:       StageMT,
			CreatedAt:   p.clock.Now(),
			ASR:         &result,
			Translation: &translation,
		})
	}
}

func (p *Pipeline) runOutputWorker() {
	defer p.wg.Done()
	for {
		event, ok := p.mtToOut.PopTimeout(100 * time.Millisecond)
		if !ok {
			select {
			case <-p.stopCh:
				return
			default:
				continue
			}
		}
		if event.Type == EventTranslation {
			p.tracker.RecordEmitted(event.SegmentID, p.clock.Now())
		}
		p.publish(event)
	}
}

func (p *Pipeline) runHealthMonitor() {
	defer p.wg.Done()
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			snap := p.tracker.Snapshot(p.clock.Now())
			snap.VADFilterEfficiency = p.vad.FilterEfficiency()
			snap.QueueDepths = p.queueDepths()
			snap.BreakerStates = map[string]BreakerState{
				"vad": p.vadBreaker.State(),
				"asr": p.asrBreaker.State(),
				"mt":  p.mtBreaker.State(),
			}
			for name, qd := range snap.QueueDepths {
				p.metrics.SetQueueDepth(name, qd.Depth)
			}
			p.publish(PipelineEvent{Type: EventHealthTick, CreatedAt: p.clock.Now(), Health: &snap})
		}
	}
}

func (p *Pipeline) queueDepths() map[string]QueueDepthSnapshot {
	d1, c1, w1, cr1 := p.vadToSeg.Watermark()
	d2, c2, w2, cr2 := p.segToASR.Watermark()
	d3, c3, w3, cr3 := p.asrToMT.Watermark()
	d4, c4, w4, cr4 := p.mtToOut.Watermark()
	return map[string]QueueDepthSnapshot{
		"vad_to_seg": {Depth: d1, Capacity: c1, Warning: w1, Critical: cr1},
		"seg_to_asr": {Depth: d2, Capacity: c2, Warning: w2, Critical: cr2},
		"asr_to_mt":  {Depth: d3, Capacity: c3, Warning: w3, Critical: cr3},
		"mt_to_out":  {Depth: d4, Capacity: c4, Warning: w4, Critical: cr4},
	}
}

func (p *Pipeline) publish(event PipelineEvent) {
	if p.subscriber == nil {
		return
	}
	p.subscriber(event)
}
