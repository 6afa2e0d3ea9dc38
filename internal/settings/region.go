package settings

import "sync"

// RegionBounds is a crop rectangle in desktop coordinate space.
type RegionBounds struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

func (b RegionBounds) Valid() bool {
	return b.W > 0 && b.H > 0
}

// ClampToDisplay moves and shrinks the region so it fits entirely within a
// displayW x displayH desktop.
func (b RegionBounds) ClampToDisplay(displayW, displayH int) RegionBounds {
	if b.W > displayW {
		b.W = displayW
	}
	if b.H > displayH {
		b.H = displayH
	}
	if b.X < 0 {
		b.X = 0
	}
	if b.Y < 0 {
		b.Y = 0
	}
	if b.X+b.W > displayW {
		b.X = displayW - b.W
	}
	if b.Y+b.H > displayH {
		b.Y = displayH - b.H
	}
	return b
}

// BoundsCell is a thread-safe observable holding the live region bounds.
// Every other setting is read as a snapshot at acquisition time; the region
// is the one deliberate exception, re-read by the cropper on every frame so
// dragging the box takes effect without restarting capture.
type BoundsCell struct {
	mu     sync.RWMutex
	bounds *RegionBounds
}

func NewBoundsCell(b *RegionBounds) *BoundsCell {
	c := &BoundsCell{}
	if b != nil {
		copied := *b
		c.bounds = &copied
	}
	return c
}

// Get returns the current bounds, or false when no region is set.
func (c *BoundsCell) Get() (RegionBounds, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.bounds == nil {
		return RegionBounds{}, false
	}
	return *c.bounds, true
}

func (c *BoundsCell) Set(b RegionBounds) {
	c.mu.Lock()
	copied := b
	c.bounds = &copied
	c.mu.Unlock()
}

func (c *BoundsCell) Clear() {
	c.mu.Lock()
	c.bounds = nil
	c.mu.Unlock()
}
