package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestNewWavBuffer(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	sampleRate := 44100
	wav := NewWavBuffer(pcm, sampleRate)

	if !bytes.HasPrefix(wav, []byte("RIFF")) {
		t.Errorf("Expected RIFF prefix")
	}

	if !bytes.Contains(wav, []byte("WAVE")) {
		t.Errorf("Expected WAVE format identifier")
	}

	expectedLen := 44 + len(pcm)
	if len(wav) != expectedLen {
		t.Errorf("Expected length %d, got %d", expectedLen, len(wav))
	}
}

func TestFloat32ToPCM16ClampsOutOfRange(t *testing.T) {
	samples := []float32{0, 1.5, -1.5, 0.5}
	pcm := Float32ToPCM16(samples)
	if len(pcm) != len(samples)*2 {
		t.Fatalf("expected %d bytes, got %d", len(samples)*2, len(pcm))
	}

	maxVal := int16(binary.LittleEndian.Uint16(pcm[2:4]))
	minVal := int16(binary.LittleEndian.Uint16(pcm[4:6]))
	if maxVal != 32767 {
		t.Errorf("expected clamping to max int16, got %d", maxVal)
	}
	if minVal != -32767 {
		t.Errorf("expected clamping to -32767, got %d", minVal)
	}
}

func TestEncodeWAVProducesValidHeaderAtGivenSampleRate(t *testing.T) {
	samples := []float32{0.1, -0.1, 0.2, -0.2}
	wav := EncodeWAV(samples, 16000)

	if !bytes.HasPrefix(wav, []byte("RIFF")) {
		t.Fatal("expected RIFF prefix")
	}
	sampleRate := binary.LittleEndian.Uint32(wav[24:28])
	if sampleRate != 16000 {
		t.Errorf("expected sample rate 16000 in the fmt chunk, got %d", sampleRate)
	}
	numChannels := binary.LittleEndian.Uint16(wav[22:24])
	if numChannels != 1 {
		t.Errorf("expected mono (1 channel), got %d", numChannels)
	}
	if len(wav) != 44+len(samples)*2 {
		t.Errorf("expected %d total bytes, got %d", 44+len(samples)*2, len(wav))
	}
}
