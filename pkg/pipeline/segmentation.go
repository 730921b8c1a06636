package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// SegState is one of the segmentation engine's four states.
type SegState string

const (
	SegIdle     SegState = "idle"
	SegPreRoll  SegState = "pre_roll"
	SegSpeaking SegState = "speaking"
	SegHanging  SegState = "hanging"
)

// lookbackBuffer retains recent frames so PreRoll can copy the last
// pre_roll_ms of audio once speech triggers, without the ring buffer
// needing to keep them around itself.
type lookbackBuffer struct {
	frames     []AudioFrame
	maxMs      int64
	sampleRate int
}

func newLookbackBuffer(maxMs int64, sampleRate int) *lookbackBuffer {
	return &lookbackBuffer{maxMs: maxMs, sampleRate: sampleRate}
}

func (l *lookbackBuffer) push(f AudioFrame) {
	l.frames = append(l.frames, f)
	totalMs := int64(0)
	for i := len(l.frames) - 1; i >= 0; i-- {
		totalMs += l.frames[i].DurationMs(l.sampleRate)
		if totalMs > l.maxMs {
			l.frames = l.frames[i:]
			return
		}
	}
}

func (l *lookbackBuffer) lastMs(ms int64) []AudioFrame {
	totalMs := int64(0)
	start := len(l.frames)
	for i := len(l.frames) - 1; i >= 0; i-- {
		totalMs += l.frames[i].DurationMs(l.sampleRate)
		start = i
		if totalMs >= ms {
			break
		}
	}
	out := make([]AudioFrame, len(l.frames)-start)
	copy(out, l.frames[start:])
	return out
}

// SegmentEmission is what the segmentation state machine hands to the
// orchestrator. Opened marks a just-created segment the ASR worker pool
// should start ticking drafts against immediately, while it is still being
// appended to; a later emission with Opened false and the same Segment.ID
// (or a Discard reason) closes it out.
type SegmentEmission struct {
	Segment *SpeechSegment
	Opened  bool
	Discard DropReason
}

// SegmentationEngine turns VAD events into SpeechSegment objects with
// pre-roll, max-duration forced split, and pause-boundary close. It is
// driven by a single goroutine (the segmentation thread) so it keeps no
// internal locking.
type SegmentationEngine struct {
	cfg        Config
	sampleRate int

	state    SegState
	lookback *lookbackBuffer
	current  *SpeechSegment
	nextSeq  int64

	hangingFrames    []AudioFrame
	hangingSilenceMs int64

	sessionID string
}

// NewSegmentationEngine constructs the state machine for one capture
// session (sequence numbers restart at 1 per session).
func NewSegmentationEngine(cfg Config) *SegmentationEngine {
	return &SegmentationEngine{
		cfg:        cfg,
		sampleRate: cfg.SampleRate,
		state:      SegIdle,
		lookback:   newLookbackBuffer(cfg.PreRollMs, cfg.SampleRate),
		nextSeq:    1,
	}
}

// Feed advances the state machine by one frame/event pair. It may emit
// zero, one, or (on a forced split) two SegmentEmissions.
func (s *SegmentationEngine) Feed(frame AudioFrame, event VADEvent) []SegmentEmission {
	s.lookback.push(frame)

	switch s.state {
	case SegIdle:
		if event.Type != VADSilence {
			return []SegmentEmission{s.startPreRoll(frame)}
		}
		return nil

	case SegPreRoll, SegSpeaking:
		return s.feedSpeaking(frame, event)

	case SegHanging:
		return s.feedHanging(frame, event)
	}
	return nil
}

func (s *SegmentationEngine) startPreRoll(triggerFrame AudioFrame) SegmentEmission {
	pre := s.lookback.lastMs(s.cfg.PreRollMs)

	seg := &SpeechSegment{
		ID:           uuid.New(),
		Seq:          s.nextSeq,
		CreationTime: time.Now(),
		PreRollMs:    s.cfg.PreRollMs,
	}
	s.nextSeq++

	if len(pre) > 0 {
		seg.StartSample = pre[0].FirstSample
	} else {
		seg.StartSample = triggerFrame.FirstSample
	}
	for _, f := range pre {
		seg.AppendFrame(f, s.sampleRate)
	}

	s.current = seg
	s.state = SegSpeaking // PreRoll contents are committed immediately
	return SegmentEmission{Segment: seg, Opened: true}
}

func (s *SegmentationEngine) feedSpeaking(frame AudioFrame, event VADEvent) []SegmentEmission {
	if event.Type == VADSilence {
		s.state = SegHanging
		s.hangingFrames = []AudioFrame{frame}
		s.hangingSilenceMs = frame.DurationMs(s.sampleRate)
		return nil
	}

	s.current.AppendFrame(frame, s.sampleRate)

	maxMs := s.cfg.MaxSegmentDurationForMode()
	if s.current.DurationMs >= maxMs {
		return s.forcedSplit()
	}
	return nil
}

func (s *SegmentationEngine) feedHanging(frame AudioFrame, event VADEvent) []SegmentEmission {
	if event.Type != VADSilence {
		// Resume: re-absorb the hanging frames into the same segment.
		for _, hf := range s.hangingFrames {
			s.current.AppendFrame(hf, s.sampleRate)
		}
		s.hangingFrames = nil
		s.hangingSilenceMs = 0
		s.state = SegSpeaking
		return s.feedSpeaking(frame, event)
	}

	s.hangingFrames = append(s.hangingFrames, frame)
	s.hangingSilenceMs += frame.DurationMs(s.sampleRate)

	if s.hangingSilenceMs >= s.cfg.MinSilenceDurationMs {
		return s.closeSegment(false)
	}
	return nil
}

// forcedSplit implements the forced-split policy: search the last
// pause_threshold_ms of frames for the lowest-energy run of >= 50ms; split
// there (keeping >= 300ms of overlap as the next segment's pre-roll), or
// hard-split at the maximum with the same overlap if no pause is found.
func (s *SegmentationEngine) forcedSplit() []SegmentEmission {
	const overlapMs = 300
	const minPauseRunMs = 50

	frames := s.current.Frames
	splitIdx := findLowestEnergySplit(frames, s.sampleRate, s.cfg.PauseThresholdMs, minPauseRunMs)
	if splitIdx <= 0 || splitIdx >= len(frames) {
		splitIdx = overlapSplitIndex(frames, s.sampleRate, overlapMs)
	}

	head := &SpeechSegment{
		ID:           s.current.ID,
		Seq:          s.current.Seq,
		CreationTime: s.current.CreationTime,
		IsPartial:    true,
		PreRollMs:    s.current.PreRollMs,
		StartSample:  s.current.StartSample,
	}
	for _, f := range frames[:splitIdx] {
		head.AppendFrame(f, s.sampleRate)
	}

	overlapStart := overlapSplitIndex(frames[:splitIdx], s.sampleRate, overlapMs)
	tail := &SpeechSegment{
		ID:           uuid.New(),
		Seq:          s.nextSeq,
		CreationTime: time.Now(),
		IsPartial:    true,
		PreRollMs:    overlapMs,
	}
	s.nextSeq++
	overlapFrames := frames[overlapStart:splitIdx]
	if len(overlapFrames) > 0 {
		tail.StartSample = overlapFrames[0].FirstSample
	}
	for _, f := range overlapFrames {
		tail.AppendFrame(f, s.sampleRate)
	}
	for _, f := range frames[splitIdx:] {
		tail.AppendFrame(f, s.sampleRate)
	}

	s.current = tail
	s.state = SegSpeaking

	return []SegmentEmission{
		{Segment: head},
		{Segment: tail, Opened: true},
	}
}

// findLowestEnergySplit scans the tail pauseWindowMs of frames for the
// lowest-energy contiguous run of at least minRunMs and returns the frame
// index at its midpoint, or -1 if no window qualifies.
func findLowestEnergySplit(frames []AudioFrame, sampleRate int, pauseWindowMs, minRunMs int64) int {
	if len(frames) == 0 {
		return -1
	}

	windowStart := 0
	accMs := int64(0)
	for i := len(frames) - 1; i >= 0; i-- {
		accMs += frames[i].DurationMs(sampleRate)
		windowStart = i
		if accMs >= pauseWindowMs {
			break
		}
	}

	bestIdx := -1
	bestEnergy := -1.0
	runMs := int64(0)
	runStart := windowStart

	for i := windowStart; i < len(frames); i++ {
		e := rmsOf(frames[i].Samples)
		isLow := e < 0.02
		if isLow {
			runMs += frames[i].DurationMs(sampleRate)
		} else {
			runMs = 0
			runStart = i + 1
		}
		if isLow && runMs >= minRunMs {
			if bestEnergy < 0 || e < bestEnergy {
				bestEnergy = e
				bestIdx = (runStart + i) / 2
			}
		}
	}
	return bestIdx
}

// overlapSplitIndex returns the frame index such that frames[idx:] covers
// at least overlapMs of trailing audio.
func overlapSplitIndex(frames []AudioFrame, sampleRate int, overlapMs int64) int {
	accMs := int64(0)
	for i := len(frames) - 1; i >= 0; i-- {
		accMs += frames[i].DurationMs(sampleRate)
		if accMs >= overlapMs {
			return i
		}
	}
	return 0
}

// closeSegment finalizes the current segment on silence exhaustion,
// discarding it with DropTooShort if it does not meet the minimum
// duration.
func (s *SegmentationEngine) closeSegment(forceFinalize bool) []SegmentEmission {
	seg := s.current
	s.current = nil
	s.hangingFrames = nil
	s.hangingSilenceMs = 0
	s.state = SegIdle

	if seg == nil {
		return nil
	}

	if seg.DurationMs < s.cfg.MinSpeechDurationMs {
		// Segment is still attached so the orchestrator can route the
		// discard to the right in-flight ASR lifecycle by ID; nothing
		// downstream transcribes it.
		return []SegmentEmission{{Segment: seg, Discard: DropTooShort}}
	}

	return []SegmentEmission{{Segment: seg}}
}

// Finalize flushes any open segment, used on stop and on a capture
// SessionReset.
func (s *SegmentationEngine) Finalize() []SegmentEmission {
	if s.state == SegIdle || s.current == nil {
		return nil
	}
	for _, hf := range s.hangingFrames {
		s.current.AppendFrame(hf, s.sampleRate)
	}
	return s.closeSegment(true)
}
