// Package audio provides the PCM primitives shared by the capture and
// playback engines: int16 encode/decode, streaming linear-interpolation
// resampling, and RMS energy measurement.
//
// The wire contract with the guide backend is fixed: uplink frames are
// 16-bit signed little-endian mono PCM at 24 kHz, 1920 samples (3840 bytes)
// per frame; downlink chunks are 16-bit signed mono PCM at 48 kHz with
// arbitrary length per message.
package audio

const (
	// CaptureRate is the uplink sample rate in Hz expected by the backend STT.
	CaptureRate = 24000

	// PlaybackRate is the downlink sample rate in Hz produced by the backend TTS.
	PlaybackRate = 48000

	// FrameSamples is the number of samples per uplink frame (80 ms at 24 kHz).
	FrameSamples = 1920

	// FrameBytes is the byte length of one uplink frame (int16 mono).
	FrameBytes = FrameSamples * 2
)
