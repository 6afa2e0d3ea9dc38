package capture

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DesktopTrack is a live desktop grab handle. The actual OS capture is
// performed by the ffmpeg process the encoder starts; the track carries the
// negotiated parameters and marks ownership.
type DesktopTrack struct {
	SourceID    string
	Constraints Constraints

	// RawVideo, when set, replaces the desktop grab: the encoder reads
	// pre-composed rgba frames of RawWidth x RawHeight from it. The live
	// region crop stage feeds this.
	RawVideo  io.Reader
	RawWidth  int
	RawHeight int

	// PCM, when set, is a live mixed audio feed muxed into the output.
	PCM           io.Reader
	PCMSampleRate int
	PCMChannels   int

	// OnStop tears down the stages feeding RawVideo.
	OnStop func() error

	mu      sync.Mutex
	stopped bool
}

func (t *DesktopTrack) Kind() TrackKind { return TrackVideo }

func (t *DesktopTrack) Stop() error {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return nil
	}
	t.stopped = true
	onStop := t.OnStop
	t.mu.Unlock()

	if onStop != nil {
		return onStop()
	}
	return nil
}

func (t *DesktopTrack) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// FFmpegAcquirer produces desktop streams captured by ffmpeg.
type FFmpegAcquirer struct {
	FFmpegPath string
}

func (a *FFmpegAcquirer) AcquireDesktop(ctx context.Context, sourceID string, c Constraints) (*Composite, error) {
	if sourceID == "" {
		return nil, fmt.Errorf("failed to acquire desktop stream: empty source id")
	}
	if c.MaxWidth <= 0 || c.MaxHeight <= 0 {
		return nil, fmt.Errorf("failed to acquire desktop stream: invalid constraints %dx%d", c.MaxWidth, c.MaxHeight)
	}

	return &Composite{
		Video: &DesktopTrack{SourceID: sourceID, Constraints: c},
	}, nil
}

// FFmpegEncoder drives one ffmpeg process that encodes and writes a
// streamable container to stdout. Video comes from the desktop grab ffmpeg
// performs itself, or from the track's composed RawVideo frame feed. The
// read loop slices stdout into timestamped chunks on the requested interval.
type FFmpegEncoder struct {
	ffmpegPath string
	track      *DesktopTrack
	opts       EncoderOptions
	mime       string

	mu        sync.Mutex
	cmd       *exec.Cmd
	stdout    io.ReadCloser
	ln        net.Listener
	audioAddr string
	running   bool

	pending []byte
	out     chan Chunk
	readErr error

	quit    chan struct{}
	done    chan struct{}
	cutDone chan struct{}
}

// NewFFmpegEncoder is an EncoderFactory for desktop composites.
func NewFFmpegEncoder(ffmpegPath string) EncoderFactory {
	return func(stream *Composite, opts EncoderOptions) (Encoder, error) {
		track, ok := stream.Video.(*DesktopTrack)
		if !ok {
			return nil, fmt.Errorf("ffmpeg encoder needs a desktop video track")
		}
		return &FFmpegEncoder{
			ffmpegPath: ffmpegPath,
			track:      track,
			opts:       opts,
			mime:       opts.MimeType,
			out:        make(chan Chunk, 64),
			quit:       make(chan struct{}),
			done:       make(chan struct{}),
			cutDone:    make(chan struct{}),
		}, nil
	}
}

func (e *FFmpegEncoder) MimeType() string { return e.mime }

func (e *FFmpegEncoder) Chunks() <-chan Chunk { return e.out }

func (e *FFmpegEncoder) Start(interval time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return fmt.Errorf("encoder already running")
	}

	// With a frame feed on stdin, audio arrives over a loopback socket.
	if e.track.RawVideo != nil && e.track.PCM != nil {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to open audio feed listener: %w", err)
		}
		e.ln = ln
		e.audioAddr = "tcp://" + ln.Addr().String()
		go e.serveAudio(ln)
	}

	args := e.buildArgs()
	e.cmd = exec.Command(e.ffmpegPath, args...)
	switch {
	case e.track.RawVideo != nil:
		e.cmd.Stdin = e.track.RawVideo
	case e.track.PCM != nil:
		e.cmd.Stdin = e.track.PCM
	}

	var err error
	e.stdout, err = e.cmd.StdoutPipe()
	if err != nil {
		e.closeListenerLocked()
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	slog.Info("starting ffmpeg encoder", "command", e.ffmpegPath+" "+strings.Join(args, " "))

	if err := e.cmd.Start(); err != nil {
		e.closeListenerLocked()
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	e.running = true
	go e.readLoop()
	go e.cutLoop(interval)

	return nil
}

// serveAudio streams the mixed PCM feed to the encoder process over the
// loopback socket. The copy ends when the feed closes or the process dies.
func (e *FFmpegEncoder) serveAudio(ln net.Listener) {
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	if _, err := io.Copy(conn, e.track.PCM); err != nil {
		slog.Debug("audio feed ended", "error", err)
	}
}

func (e *FFmpegEncoder) closeListenerLocked() {
	if e.ln != nil {
		e.ln.Close()
		e.ln = nil
	}
}

func (e *FFmpegEncoder) readLoop() {
	reader := bufio.NewReaderSize(e.stdout, 4*1024*1024)
	buf := make([]byte, 1024*1024)

	for {
		n, err := reader.Read(buf)
		if n > 0 {
			e.mu.Lock()
			e.pending = append(e.pending, buf[:n]...)
			e.mu.Unlock()
		}
		if err != nil {
			if err != io.EOF {
				e.mu.Lock()
				e.readErr = err
				e.mu.Unlock()
			}
			close(e.done)
			return
		}
	}
}

func (e *FFmpegEncoder) cutLoop(interval time.Duration) {
	defer close(e.cutDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.quit:
			return
		case <-ticker.C:
			e.cut()
		}
	}
}

// cut moves accumulated bytes into one chunk.
func (e *FFmpegEncoder) cut() {
	e.mu.Lock()
	data := e.pending
	e.pending = nil
	e.mu.Unlock()

	if len(data) == 0 {
		return
	}
	e.out <- Chunk{Data: data, At: time.Now()}
}

func (e *FFmpegEncoder) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	cmd := e.cmd
	ln := e.ln
	e.mu.Unlock()

	// Join the cut loop before anything else: a tick won concurrently with
	// the quit close must finish its send before the channel can be closed.
	close(e.quit)
	<-e.cutDone

	if ln != nil {
		ln.Close()
	}

	if cmd != nil && cmd.Process != nil {
		cmd.Process.Kill()
		cmd.Wait()
	}

	// Wait for the read loop to drain stdout so the tail chunk is complete.
	select {
	case <-e.done:
	case <-ctx.Done():
		close(e.out)
		return fmt.Errorf("encoder stop interrupted: %w", ctx.Err())
	}

	e.cut()
	close(e.out)

	e.mu.Lock()
	err := e.readErr
	e.mu.Unlock()
	return err
}

func (e *FFmpegEncoder) buildArgs() []string {
	args := []string{"-hide_banner"}
	args = append(args, e.inputArgs()...)
	args = append(args, e.audioInputArgs()...)
	args = append(args, e.filterArgs()...)
	args = append(args, e.codecArgs()...)
	args = append(args, e.outputArgs()...)
	return args
}

func (e *FFmpegEncoder) inputArgs() []string {
	c := e.track.Constraints
	fps := c.FrameRate
	if e.opts.FrameRate > 0 {
		fps = e.opts.FrameRate
	}

	if e.track.RawVideo != nil {
		return []string{
			"-f", "rawvideo",
			"-pix_fmt", "rgba",
			"-video_size", fmt.Sprintf("%dx%d", e.track.RawWidth, e.track.RawHeight),
			"-framerate", strconv.Itoa(fps),
			"-i", "pipe:0",
		}
	}

	return grabInputArgs(e.track.SourceID, c.MaxWidth, c.MaxHeight, fps)
}

// grabInputArgs builds the platform desktop-grab input.
func grabInputArgs(sourceID string, maxWidth, maxHeight, fps int) []string {
	switch runtime.GOOS {
	case "windows":
		return []string{
			"-f", "lavfi",
			"-rtbufsize", "100M",
			"-i", fmt.Sprintf("ddagrab=output_idx=%d:framerate=%d:draw_mouse=1",
				displayIndex(sourceID), fps),
		}
	case "darwin":
		return []string{
			"-f", "avfoundation",
			"-framerate", strconv.Itoa(fps),
			"-i", strconv.Itoa(displayIndex(sourceID)),
		}
	default:
		return []string{
			"-f", "x11grab",
			"-framerate", strconv.Itoa(fps),
			"-video_size", fmt.Sprintf("%dx%d", maxWidth, maxHeight),
			"-i", fmt.Sprintf(":0.%d", displayIndex(sourceID)),
		}
	}
}

func (e *FFmpegEncoder) audioInputArgs() []string {
	if e.track.PCM == nil {
		return nil
	}

	input := "pipe:0"
	if e.track.RawVideo != nil {
		input = e.audioAddr
	}

	rate := e.track.PCMSampleRate
	if rate == 0 {
		rate = 48000
	}
	channels := e.track.PCMChannels
	if channels == 0 {
		channels = 2
	}
	return []string{
		"-f", "f32le",
		"-ar", strconv.Itoa(rate),
		"-ac", strconv.Itoa(channels),
		"-i", input,
	}
}

func (e *FFmpegEncoder) filterArgs() []string {
	// Composed frames arrive already cropped and sized.
	if e.track.RawVideo != nil {
		return nil
	}

	c := e.track.Constraints
	return []string{"-vf", fmt.Sprintf("scale='min(iw,%d)':-2", c.MaxWidth)}
}

func (e *FFmpegEncoder) codecArgs() []string {
	bitrate := fmt.Sprintf("%d", e.opts.VideoBitsPerSecond)

	var args []string
	switch {
	case strings.HasPrefix(e.mime, "video/webm"):
		if strings.Contains(e.mime, "vp9") {
			args = append(args, "-c:v", "libvpx-vp9")
		} else {
			args = append(args, "-c:v", "libvpx")
		}
		if e.track.PCM != nil {
			args = append(args, "-c:a", "libopus", "-b:a", "192k")
		}
	default:
		args = append(args, "-c:v", "libx264", "-preset", "veryfast")
		if e.track.PCM != nil {
			args = append(args, "-c:a", "aac", "-b:a", "192k")
		}
	}

	args = append(args, "-pix_fmt", "yuv420p")
	args = append(args, "-b:v", bitrate, "-maxrate", bitrate, "-bufsize", bitrate)
	return args
}

func (e *FFmpegEncoder) outputArgs() []string {
	if strings.HasPrefix(e.mime, "video/webm") {
		return []string{"-f", "webm", "-"}
	}
	// Fragmented MP4 so the byte stream stays valid across chunk cuts; the
	// post-processing faststart remux rewrites it progressive.
	return []string{"-f", "mp4", "-movflags", "frag_keyframe+empty_moov", "-"}
}

// displayIndex extracts a trailing display index from a source id such as
// "screen:1". Unparseable ids map to display 0.
func displayIndex(sourceID string) int {
	idx := strings.LastIndexAny(sourceID, ":-")
	if idx < 0 || idx == len(sourceID)-1 {
		return 0
	}
	n, err := strconv.Atoi(sourceID[idx+1:])
	if err != nil || n < 0 {
		return 0
	}
	return n
}
