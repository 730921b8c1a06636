// Package audio provides WAV encoding for the float32 mono PCM buffers the
// pipeline passes between segmentation and the ASR/VAD ports.
package audio

import (
	"bytes"
	"encoding/binary"
)

// Float32ToPCM16 converts [-1, 1]-ranged float32 samples to little-endian
// signed 16-bit PCM bytes, clamping out-of-range values rather than
// wrapping them.
func Float32ToPCM16(samples []float32) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := s
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		sample := int16(v * 32767)
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(sample))
	}
	return buf
}

// NewWavBuffer wraps raw 16-bit mono PCM bytes in a minimal RIFF/WAVE
// header at sampleRate.
func NewWavBuffer(pcm []byte, sampleRate int) []byte {
	const bitsPerSample = 16
	const numChannels = 1

	buf := new(bytes.Buffer)
	byteRate := sampleRate * numChannels * bitsPerSample / 8
	blockAlign := numChannels * bitsPerSample / 8

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint16(numChannels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// EncodeWAV renders a mono float32 PCM buffer as a complete WAV file at
// sampleRate, the format the ASR ports upload for transcription.
func EncodeWAV(samples []float32, sampleRate int) []byte {
	return NewWavBuffer(Float32ToPCM16(samples), sampleRate)
}
