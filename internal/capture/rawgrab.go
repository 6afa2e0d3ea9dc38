package capture

import (
	"bufio"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
)

// RawGrabber captures the desktop with a dedicated ffmpeg process decoding
// to raw rgba frames. It feeds the live region crop stage, which composes
// each frame against the current bounds before encoding.
type RawGrabber struct {
	ffmpegPath string
	sourceID   string
	width      int
	height     int
	fps        int

	mu      sync.Mutex
	cmd     *exec.Cmd
	reader  *bufio.Reader
	frame   *image.RGBA
	running bool
}

func NewRawGrabber(ffmpegPath, sourceID string, width, height, fps int) *RawGrabber {
	return &RawGrabber{
		ffmpegPath: ffmpegPath,
		sourceID:   sourceID,
		width:      width,
		height:     height,
		fps:        fps,
	}
}

func (g *RawGrabber) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running {
		return fmt.Errorf("grabber already running")
	}
	if g.width <= 0 || g.height <= 0 {
		return fmt.Errorf("invalid grab size %dx%d", g.width, g.height)
	}

	args := []string{"-hide_banner"}
	args = append(args, grabInputArgs(g.sourceID, g.width, g.height, g.fps)...)
	args = append(args,
		// Fix the frame size so every frame is exactly width*height*4 bytes.
		"-vf", fmt.Sprintf("scale=%d:%d", g.width, g.height),
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-",
	)

	g.cmd = exec.Command(g.ffmpegPath, args...)
	stdout, err := g.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	slog.Info("starting raw frame grabber", "command", g.ffmpegPath+" "+strings.Join(args, " "))

	if err := g.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	g.reader = bufio.NewReaderSize(stdout, 4*1024*1024)
	g.frame = image.NewRGBA(image.Rect(0, 0, g.width, g.height))
	g.running = true
	return nil
}

// NextFrame blocks until one full frame arrives. The returned image is
// reused between calls; the caller must be done with it before the next one.
func (g *RawGrabber) NextFrame() (*image.RGBA, error) {
	g.mu.Lock()
	reader := g.reader
	frame := g.frame
	running := g.running
	g.mu.Unlock()

	if !running {
		return nil, fmt.Errorf("grabber not running")
	}
	if _, err := io.ReadFull(reader, frame.Pix); err != nil {
		return nil, fmt.Errorf("failed to read frame: %w", err)
	}
	return frame, nil
}

// Stop kills the grab process, which also unblocks a pending NextFrame.
func (g *RawGrabber) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.running {
		return nil
	}
	g.running = false

	if g.cmd != nil && g.cmd.Process != nil {
		g.cmd.Process.Kill()
		g.cmd.Wait()
	}
	return nil
}
