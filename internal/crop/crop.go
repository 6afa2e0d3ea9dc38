// Package crop implements the live region crop stage: a sub-rectangle of
// the full desktop capture redrawn onto a fixed-size output every frame.
package crop

import (
	"image"

	"clipdeck/internal/settings"
)

// ScaleFactor corrects for the mismatch between the capture's native pixel
// width and the full physical display width the region bounds are expressed
// in. The physical display size is used, not the window work area, which
// may exclude system UI.
func ScaleFactor(captureW, displayW int) float64 {
	if captureW <= 0 || displayW <= 0 {
		return 1.0
	}
	return float64(captureW) / float64(displayW)
}

// SourceRect maps region bounds from display coordinates into capture
// pixels.
func SourceRect(b settings.RegionBounds, scale float64) image.Rectangle {
	x := int(float64(b.X) * scale)
	y := int(float64(b.Y) * scale)
	w := int(float64(b.W) * scale)
	h := int(float64(b.H) * scale)
	return image.Rect(x, y, x+w, y+h)
}

// OutputSize computes the output canvas dimensions. With an aspect lock the
// preset-derived size for the locked ratio wins; otherwise the region's own
// size is used, rounded down to even numbers for the encoder's chroma
// subsampling.
func OutputSize(snap settings.Settings, b settings.RegionBounds) (int, int) {
	if snap.LockAspect {
		if a := settings.FindAspect(snap.Aspect); a != nil {
			return a.LockedDimensions(snap.Resolution)
		}
	}
	return evenFloor(b.W), evenFloor(b.H)
}

func evenFloor(n int) int {
	return n &^ 1
}
