package main

import (
	"math"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/voxlink-ai/translingo/pkg/audio"
	"github.com/voxlink-ai/translingo/pkg/pipeline"
)

// audioEngine owns the malgo duplex device: it feeds capture into the
// pipeline and plays a short confirmation tone back out whenever a
// translation is emitted. The tone is the only thing ever sent to the
// speakers in this demo, but it is a real enough playback signal that it
// can leak back into the mic on a laptop with no headset, so the
// playback/capture loop is gated through echoGate.
type audioEngine struct {
	pl   *pipeline.Pipeline
	gate *echoGate
	cfg  pipeline.Config

	frameSamples int
	captureBuf   []float32
	nextSample   int64

	playbackMu sync.Mutex
	playback   []float32
}

func newAudioEngine(pl *pipeline.Pipeline, gate *echoGate, cfg pipeline.Config) *audioEngine {
	return &audioEngine{
		pl:           pl,
		gate:         gate,
		cfg:          cfg,
		frameSamples: cfg.SampleRate * cfg.FrameMs / 1000,
	}
}

// queueTone enqueues a short sine confirmation tone for playback, called
// when a translation is emitted.
func (e *audioEngine) queueTone() {
	const durationMs = 120
	const freqHz = 880.0
	n := e.cfg.SampleRate * durationMs / 1000
	tone := make([]float32, n)
	for i := range tone {
		t := float64(i) / float64(e.cfg.SampleRate)
		tone[i] = float32(0.2 * math.Sin(2*math.Pi*freqHz*t))
	}

	e.playbackMu.Lock()
	e.playback = append(e.playback, tone...)
	e.playbackMu.Unlock()
}

func (e *audioEngine) onSamples(pOutput, pInput []byte, frameCount uint32) {
	if pInput != nil {
		samples := pcm16ToFloat32(pInput)
		if !e.gate.isEcho(samples) {
			e.captureBuf = append(e.captureBuf, samples...)
		}
		for len(e.captureBuf) >= e.frameSamples {
			frame := pipeline.AudioFrame{
				Samples:     append([]float32(nil), e.captureBuf[:e.frameSamples]...),
				FirstSample: e.nextSample,
				CaptureTime: time.Now(),
			}
			e.pl.PushFrame(frame)
			e.nextSample += int64(e.frameSamples)
			e.captureBuf = e.captureBuf[e.frameSamples:]
		}
	}

	if pOutput != nil {
		e.playbackMu.Lock()
		n := len(pOutput) / 2
		if n > len(e.playback) {
			n = len(e.playback)
		}
		played := append([]float32(nil), e.playback[:n]...)
		e.playback = e.playback[n:]
		e.playbackMu.Unlock()

		pcm := audio.Float32ToPCM16(played)
		copy(pOutput, pcm)
		for i := len(pcm); i < len(pOutput); i++ {
			pOutput[i] = 0
		}

		e.gate.recordPlayed(played)
	}
}

// runAudioLoop opens a duplex malgo device at cfg.SampleRate and drives
// engine's capture/playback callback (malgo.Duplex, FormatS16
// capture/playback callback pair).
func runAudioLoop(engine *audioEngine) error {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Duplex)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = uint32(engine.cfg.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: engine.onSamples})
	if err != nil {
		mctx.Uninit()
		return err
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		mctx.Uninit()
		return err
	}

	return nil
}

// pcm16ToFloat32 converts little-endian signed 16-bit PCM bytes to
// [-1, 1]-ranged float32 samples, the inverse of audio.Float32ToPCM16.
func pcm16ToFloat32(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		sample := int16(pcm[2*i]) | int16(pcm[2*i+1])<<8
		out[i] = float32(sample) / 32768.0
	}
	return out
}
