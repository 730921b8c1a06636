//go:build darwin

package vad

import impl "github.com/k2-fsa/sherpa-onnx-go-macos"

// Re-exported so the rest of this package stays platform-agnostic; only the
// import above differs between linux and darwin builds.

type voiceActivityDetector = impl.VoiceActivityDetector
type vadModelConfig = impl.VadModelConfig

var newVoiceActivityDetector = impl.NewVoiceActivityDetector
var deleteVoiceActivityDetector = impl.DeleteVoiceActivityDetector
