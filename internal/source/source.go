// Package source models the capturable desktop sources reported by the
// external screen/window enumerator.
package source

import (
	"fmt"
	"strings"
)

// Desktop is one capturable screen or window.
type Desktop struct {
	ID          string
	DisplayName string
	Thumbnail   []byte
	// Physical pixel size of the display, when the enumerator reports it.
	// The cropper uses it to compute the capture/display scale factor.
	Width  int
	Height int
}

// Enumerator lists capturable sources. Implemented by the host shell; a
// static list is used in tests.
type Enumerator interface {
	Sources() ([]Desktop, error)
}

// StaticEnumerator returns a fixed source list.
type StaticEnumerator []Desktop

func (s StaticEnumerator) Sources() ([]Desktop, error) {
	return []Desktop(s), nil
}

// PickPrimary selects the full-screen source: an entry named
// "Entire Screen" or "Screen 1" when present, otherwise the first entry.
func PickPrimary(sources []Desktop) (Desktop, error) {
	if len(sources) == 0 {
		return Desktop{}, fmt.Errorf("no capturable sources available")
	}

	for _, s := range sources {
		name := strings.ToLower(s.DisplayName)
		if name == "entire screen" || name == "screen 1" {
			return s, nil
		}
	}

	return sources[0], nil
}
