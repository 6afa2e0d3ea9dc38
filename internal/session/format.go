package session

import (
	"clipdeck/internal/capture"
	"clipdeck/internal/settings"
)

// mimePreference is probed in order; the first supported profile wins.
var mimePreference = []string{
	"video/mp4;codecs=avc1.640028,mp4a.40.2",
	"video/mp4",
	"video/webm;codecs=vp9,opus",
	"video/webm;codecs=vp8,opus",
	"video/webm",
}

// SelectMimeType picks the best available output container/codec. When
// nothing probes as supported the generic WebM fallback is returned.
func SelectMimeType(p capture.FormatProber) string {
	for _, mt := range mimePreference {
		if p.Supports(mt) {
			return mt
		}
	}
	return mimePreference[len(mimePreference)-1]
}

// BitrateFor returns the video bitrate in bits per second for a resolution
// preset. Unset presets default to 8 Mbps.
func BitrateFor(preset settings.ResolutionPreset) int {
	switch preset {
	case settings.Res720p:
		return 10_000_000
	case settings.Res1080p:
		return 20_000_000
	case settings.Res1440p:
		return 50_000_000
	default:
		return 8_000_000
	}
}

// EstimateMemory approximates how many bytes a rolling buffer of the given
// length holds at a preset's video bitrate.
func EstimateMemory(preset settings.ResolutionPreset, seconds int) int64 {
	return int64(BitrateFor(preset)) / 8 * int64(seconds)
}
