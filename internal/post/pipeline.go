// Package post turns finished chunk lists into seekable, compressed, or
// trimmed media files using the external ffmpeg tool.
package post

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"clipdeck/internal/store"

	"github.com/bogem/id3v2"
)

// Runner invokes the external media tool. Stderr text is returned even on
// non-zero exit, because ffmpeg reports diagnostics there in both cases.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stderr string, err error)
}

// ExecRunner runs real subprocesses.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.String(), err
}

// Pipeline post-processes captured bytes into final files.
type Pipeline struct {
	runner     Runner
	ffmpegPath string
	sink       *store.Sink
	now        func() time.Time
}

func NewPipeline(ffmpegPath string, sink *store.Sink) *Pipeline {
	return &Pipeline{
		runner:     ExecRunner{},
		ffmpegPath: ffmpegPath,
		sink:       sink,
		now:        time.Now,
	}
}

// NewPipelineWith injects a runner and clock for tests.
func NewPipelineWith(runner Runner, ffmpegPath string, sink *store.Sink, now func() time.Time) *Pipeline {
	return &Pipeline{runner: runner, ffmpegPath: ffmpegPath, sink: sink, now: now}
}

// Concat joins chunks into one payload in strict order. Order loss here
// corrupts the media file.
func Concat(chunks [][]byte) []byte {
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	out := make([]byte, 0, total)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

// Filename builds `{prefix}-{timestamp}.{ext}` with ':' and '.' in the
// ISO8601 timestamp replaced by '-'.
func Filename(prefix, ext string, t time.Time) string {
	stamp := t.UTC().Format("2006-01-02T15:04:05.000Z")
	stamp = strings.ReplaceAll(stamp, ":", "-")
	stamp = strings.ReplaceAll(stamp, ".", "-")
	return fmt.Sprintf("%s-%s.%s", prefix, stamp, ext)
}

// ExtensionFor maps a container mime type to a file extension. Standalone
// audio is always normalized to mp3.
func ExtensionFor(mimeType string) string {
	mt := strings.ToLower(mimeType)
	switch {
	case strings.HasPrefix(mt, "audio/"):
		return "mp3"
	case strings.Contains(mt, "webm"):
		return "webm"
	default:
		return "mp4"
	}
}

// SaveVideo concatenates the chunks, writes the raw clip, and rewrites the
// container for progressive-download seekability. A remux failure keeps the
// un-optimized original and is only a soft warning; a file still exists.
func (p *Pipeline) SaveVideo(chunks [][]byte, mimeType, prefix string) *Task {
	task := NewTask()

	go func() {
		payload := Concat(chunks)
		if len(payload) == 0 {
			task.Finish("", fmt.Errorf("no data to save"))
			return
		}

		name := Filename(prefix, ExtensionFor(mimeType), p.now())
		path, err := p.sink.SaveClip(payload, name)
		if err != nil {
			task.Finish("", fmt.Errorf("failed to write clip: %w", err))
			return
		}

		if err := p.faststart(path); err != nil {
			slog.Warn("faststart remux failed, keeping un-optimized file", "path", path, "error", err)
		}

		slog.Info("clip saved", "path", path)
		task.Finish(path, nil)
	}()

	return task
}

// faststart stream-copies the clip into a temporary file with the metadata
// atom up front, then atomically replaces the original.
func (p *Pipeline) faststart(path string) error {
	tmp := path + ".faststart.tmp"

	stderr, err := p.runner.Run(context.Background(), p.ffmpegPath,
		"-y", "-i", path,
		"-c", "copy",
		"-movflags", "+faststart",
		tmp,
	)
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("remux failed: %w (%s)", err, tail(stderr))
	}

	return os.Rename(tmp, path)
}

// SaveAudio writes the raw audio capture to an intermediate file, then
// transcodes it to a fixed-profile MP3. The raw capture is never the final
// format; a transcode failure deletes the intermediate and is a hard
// failure, there is no usable fallback file.
func (p *Pipeline) SaveAudio(raw []byte, rawExt, prefix string) *Task {
	task := NewTask()

	go func() {
		if len(raw) == 0 {
			task.Finish("", fmt.Errorf("no audio data to save"))
			return
		}

		now := p.now()
		intermediate, err := p.sink.SaveAudio(raw, Filename(prefix, rawExt, now))
		if err != nil {
			task.Finish("", fmt.Errorf("failed to write audio intermediate: %w", err))
			return
		}

		finalPath := filepath.Join(p.sink.AudioDir(), Filename(prefix, "mp3", now))

		stderr, err := p.runner.Run(context.Background(), p.ffmpegPath,
			"-y", "-i", intermediate,
			"-codec:a", "libmp3lame",
			"-b:a", "192k",
			"-ar", "44100",
			finalPath,
		)

		os.Remove(intermediate)

		if err != nil {
			os.Remove(finalPath)
			task.Finish("", fmt.Errorf("audio transcode failed: %w (%s)", err, tail(stderr)))
			return
		}

		p.tagMP3(finalPath, prefix, now)

		slog.Info("audio recording saved", "path", finalPath)
		task.Finish(finalPath, nil)
	}()

	return task
}

// tagMP3 writes ID3 title/year frames on a finalized recording. Tag
// failures never fail the save.
func (p *Pipeline) tagMP3(path, prefix string, at time.Time) {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		slog.Warn("failed to open mp3 for tagging", "path", path, "error", err)
		return
	}
	defer tag.Close()

	tag.SetTitle(fmt.Sprintf("%s %s", prefix, at.Format("2006-01-02 15:04")))
	tag.SetYear(strconv.Itoa(at.Year()))
	if err := tag.Save(); err != nil {
		slog.Warn("failed to tag mp3", "path", path, "error", err)
	}
}

// Trim extracts a time range from an existing audio file in stream-copy
// mode into a new sibling file. On failure any partial output is deleted
// and the error propagates.
func (p *Pipeline) Trim(path string, start, end time.Duration) (string, error) {
	validated, err := p.sink.ValidateAudioPath(path)
	if err != nil {
		return "", err
	}
	if end <= start {
		return "", fmt.Errorf("invalid trim range %v..%v", start, end)
	}

	base := strings.TrimSuffix(filepath.Base(validated), filepath.Ext(validated))
	stamp := strings.ReplaceAll(p.now().UTC().Format("2006-01-02T15-04-05"), ":", "-")
	out := filepath.Join(filepath.Dir(validated), fmt.Sprintf("%s_trimmed_%s.mp3", base, stamp))

	stderr, err := p.runner.Run(context.Background(), p.ffmpegPath,
		"-y",
		"-ss", formatSeconds(start),
		"-to", formatSeconds(end),
		"-i", validated,
		"-c", "copy",
		out,
	)
	if err != nil {
		os.Remove(out)
		return "", fmt.Errorf("trim failed: %w (%s)", err, tail(stderr))
	}

	return out, nil
}

var durationRe = regexp.MustCompile(`(\d+):(\d{2}):(\d{2})\.(\d+)`)

// Duration probes a media file's length by parsing the tool's diagnostic
// text. The text appears whether or not the tool exits zero, so both paths
// are parsed; unparseable output yields 0, not an error.
func (p *Pipeline) Duration(path string) time.Duration {
	stderr, _ := p.runner.Run(context.Background(), p.ffmpegPath,
		"-i", path,
		"-f", "null", "-",
	)
	return ParseDuration(stderr)
}

// ParseDuration extracts the first HH:MM:SS.fraction pattern from tool
// output.
func ParseDuration(text string) time.Duration {
	m := durationRe.FindStringSubmatch(text)
	if m == nil {
		return 0
	}

	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	seconds, _ := strconv.Atoi(m[3])

	frac, _ := strconv.Atoi(m[4])
	fracDur := time.Duration(float64(frac) / float64(pow10(len(m[4]))) * float64(time.Second))

	return time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second +
		fracDur
}

func pow10(n int) int {
	out := 1
	for i := 0; i < n; i++ {
		out *= 10
	}
	return out
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

// tail keeps error messages readable when ffmpeg dumps pages of stderr.
func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 300 {
		return s
	}
	return "..." + s[len(s)-300:]
}
