package settings

import "fmt"

// AudioMode selects which sources feed standalone audio recording.
type AudioMode string

const (
	AudioSystem        AudioMode = "system"
	AudioSystemPlusMic AudioMode = "system+mic"
	AudioMicOnly       AudioMode = "mic"
)

// Settings is the user-configurable state read by the recording core. The
// core takes an immutable snapshot of it each time a capture starts or
// restarts; only RegionBounds is re-read live (see BoundsCell).
type Settings struct {
	Resolution    ResolutionPreset `json:"resolution"`
	LockAspect    bool             `json:"lockAspect"`
	Aspect        string           `json:"aspect"`
	Region        *RegionBounds    `json:"region,omitempty"`
	BufferSeconds int              `json:"bufferSeconds"`
	SystemAudio   bool             `json:"systemAudio"`
	Microphone    bool             `json:"microphone"`
	MicDeviceID   string           `json:"micDeviceId"`
	AudioMode     AudioMode        `json:"audioMode"`
	OutputDir     string           `json:"outputDir"`
}

// Default returns sensible defaults.
func Default() Settings {
	outputDir, err := RecordingsDir()
	if err != nil {
		outputDir = "./recordings"
	}

	return Settings{
		Resolution:    Res1080p,
		LockAspect:    false,
		Aspect:        "16:9",
		BufferSeconds: 30,
		SystemAudio:   true,
		Microphone:    false,
		AudioMode:     AudioSystem,
		OutputDir:     outputDir,
	}
}

func (s Settings) Validate() error {
	switch s.Resolution {
	case Res720p, Res1080p, Res1440p:
	default:
		return fmt.Errorf("unknown resolution preset: %q", s.Resolution)
	}
	if s.BufferSeconds <= 0 {
		return fmt.Errorf("buffer seconds must be positive")
	}
	if s.LockAspect && FindAspect(s.Aspect) == nil {
		return fmt.Errorf("unknown aspect preset: %q", s.Aspect)
	}
	if s.Region != nil && !s.Region.Valid() {
		return fmt.Errorf("region must have positive width and height")
	}
	switch s.AudioMode {
	case AudioSystem, AudioSystemPlusMic, AudioMicOnly:
	default:
		return fmt.Errorf("unknown audio mode: %q", s.AudioMode)
	}
	return nil
}

// CropEnabled reports whether the capture pipeline needs the region crop
// stage: either an aspect lock or an explicit region is active.
func (s Settings) CropEnabled() bool {
	return s.LockAspect || (s.Region != nil && s.Region.Valid())
}
