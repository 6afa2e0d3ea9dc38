package audio

import (
	"fmt"
	"log/slog"

	"clipdeck/internal/settings"
)

// AcquireResult reports how audio acquisition went for a capture start.
type AcquireResult struct {
	Mixer       *Mixer // nil when no audio source is active
	MicDegraded bool   // mic was requested but could not be acquired
}

// Acquire builds and starts a mixer from a settings snapshot for video
// recording: system loopback when enabled, microphone when enabled. A mic
// failure does not abort acquisition; it degrades to no mic track and is
// reported through MicDegraded. A system-audio failure propagates.
func Acquire(snap settings.Settings, bufferSeconds int) (AcquireResult, error) {
	if !snap.SystemAudio && !snap.Microphone {
		return AcquireResult{}, nil
	}

	mixer, err := NewMixer()
	if err != nil {
		return AcquireResult{}, fmt.Errorf("failed to create audio mixer: %w", err)
	}

	res := AcquireResult{}

	if snap.SystemAudio {
		if err := mixer.AddSource(SourceSpec{Loopback: true, Gain: 1.0}); err != nil {
			mixer.Close()
			return AcquireResult{}, fmt.Errorf("failed to acquire system audio: %w", err)
		}
	}

	if snap.Microphone {
		if err := mixer.AddSource(SourceSpec{DeviceID: snap.MicDeviceID, Gain: 1.0}); err != nil {
			slog.Warn("microphone unavailable, continuing without it", "device", snap.MicDeviceID, "error", err)
			res.MicDegraded = true
		}
	}

	if mixer.SourceCount() == 0 {
		mixer.Close()
		return res, nil
	}

	if err := mixer.Start(bufferSeconds); err != nil {
		mixer.Close()
		return AcquireResult{}, fmt.Errorf("failed to start audio mixer: %w", err)
	}

	res.Mixer = mixer
	return res, nil
}

// AcquireForMode builds a mixer for standalone audio recording. Unlike
// video acquisition, a missing source in the selected mode is an error.
func AcquireForMode(mode settings.AudioMode, micDeviceID string, bufferSeconds int) (*Mixer, error) {
	mixer, err := NewMixer()
	if err != nil {
		return nil, fmt.Errorf("failed to create audio mixer: %w", err)
	}

	if mode == settings.AudioSystem || mode == settings.AudioSystemPlusMic {
		if err := mixer.AddSource(SourceSpec{Loopback: true, Gain: 1.0}); err != nil {
			mixer.Close()
			return nil, fmt.Errorf("failed to acquire system audio: %w", err)
		}
	}
	if mode == settings.AudioMicOnly || mode == settings.AudioSystemPlusMic {
		if err := mixer.AddSource(SourceSpec{DeviceID: micDeviceID, Gain: 1.0}); err != nil {
			mixer.Close()
			return nil, fmt.Errorf("failed to acquire microphone: %w", err)
		}
	}

	if err := mixer.Start(bufferSeconds); err != nil {
		mixer.Close()
		return nil, err
	}
	return mixer, nil
}

// StreamBufferBytes is the size of one source's staging ring.
func StreamBufferBytes(seconds int) int {
	return SampleRate * BytesPerFrame * seconds
}

// MixedBufferBytes is the size of the mixed output ring holding the last
// 'seconds' of audio.
func MixedBufferBytes(seconds int) int {
	return SampleRate * BytesPerFrame * seconds
}
