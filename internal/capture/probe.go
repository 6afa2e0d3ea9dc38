package capture

import (
	"os/exec"
	"strings"
	"sync"
)

// FFmpegProber answers format support questions by querying the resolved
// ffmpeg binary's encoder list once and caching it.
type FFmpegProber struct {
	FFmpegPath string

	once     sync.Once
	encoders string
}

func (p *FFmpegProber) load() {
	out, err := exec.Command(p.FFmpegPath, "-hide_banner", "-encoders").CombinedOutput()
	if err != nil && len(out) == 0 {
		return
	}
	p.encoders = string(out)
}

// Supports reports whether every codec a mime profile needs is available.
func (p *FFmpegProber) Supports(mimeType string) bool {
	p.once.Do(p.load)

	for _, enc := range requiredEncoders(mimeType) {
		if !strings.Contains(p.encoders, enc) {
			return false
		}
	}
	return len(p.encoders) > 0
}

func requiredEncoders(mimeType string) []string {
	mt := strings.ToLower(mimeType)
	switch {
	case strings.Contains(mt, "vp9"):
		return []string{"libvpx-vp9", "libopus"}
	case strings.Contains(mt, "vp8"):
		return []string{"libvpx", "libopus"}
	case strings.HasPrefix(mt, "video/webm"):
		return []string{"libvpx"}
	case strings.Contains(mt, "avc1"), strings.Contains(mt, "h264"):
		return []string{"libx264", "aac"}
	default:
		return []string{"libx264"}
	}
}
