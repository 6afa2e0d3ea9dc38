package settings

// ResolutionPreset selects the maximum requested capture size.
type ResolutionPreset string

const (
	Res720p  ResolutionPreset = "720p"
	Res1080p ResolutionPreset = "1080p"
	Res1440p ResolutionPreset = "1440p"
)

// Maximum supported capture size, requested whenever region cropping is
// active so the crop stage has full detail to downsample from.
const (
	MaxCaptureWidth  = 2560
	MaxCaptureHeight = 1440
)

// MaxFrameRate caps every capture request.
const MaxFrameRate = 60

// Dimensions returns the maximum width/height for the preset. Unknown
// presets fall back to 1080p.
func (p ResolutionPreset) Dimensions() (int, int) {
	switch p {
	case Res720p:
		return 1280, 720
	case Res1440p:
		return 2560, 1440
	default:
		return 1920, 1080
	}
}

// AspectPreset is a locked aspect ratio such as "16:9".
type AspectPreset struct {
	Name string
	W    int
	H    int
}

var AspectPresets = []AspectPreset{
	{Name: "16:9", W: 16, H: 9},
	{Name: "4:3", W: 4, H: 3},
	{Name: "1:1", W: 1, H: 1},
	{Name: "21:9", W: 21, H: 9},
}

// FindAspect returns the preset with the given name, or nil.
func FindAspect(name string) *AspectPreset {
	for i := range AspectPresets {
		if AspectPresets[i].Name == name {
			return &AspectPresets[i]
		}
	}
	return nil
}

// LockedDimensions returns the output size for a locked ratio derived from
// the resolution preset: preset width, height recomputed for the ratio.
func (a AspectPreset) LockedDimensions(p ResolutionPreset) (int, int) {
	w, _ := p.Dimensions()
	h := w * a.H / a.W
	return evenFloor(w), evenFloor(h)
}

// evenFloor rounds down to the nearest even integer. Video encoders need
// even dimensions for chroma subsampling.
func evenFloor(n int) int {
	return n &^ 1
}
