package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"clipdeck/internal/buffer"
	"clipdeck/internal/capture"

	"github.com/gen2brain/malgo"
)

const (
	SampleRate     = 48000
	Channels       = 2
	Format         = malgo.FormatF32
	BytesPerSample = 4
	BytesPerFrame  = BytesPerSample * Channels
)

// SourceSpec identifies one live audio source to capture.
type SourceSpec struct {
	DeviceID string // hex id from ListDevices; empty selects the default device
	Loopback bool   // capture a playback device's output (system audio)
	Gain     float32
}

// Mixer combines zero, one, or two live audio sources into a single PCM
// track. With one source the samples pass through untouched; with two they
// are summed with per-source gain and a hard clip limiter. Construction or
// device failures propagate, there is no silent fallback.
type Mixer struct {
	ctx     *malgo.AllocatedContext
	streams []*stream
	out     *buffer.Ring

	mu      sync.Mutex
	running bool
	quit    chan struct{}
}

type stream struct {
	device *malgo.Device
	ring   *buffer.Ring
	gain   float32
}

func NewMixer() (*Mixer, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to init audio context: %w", err)
	}
	return &Mixer{ctx: ctx}, nil
}

// AddSource initializes and starts capture for one source. The caller
// decides whether a failure is fatal (system audio) or a degrade (mic).
func (m *Mixer) AddSource(spec SourceSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("mixer already started")
	}
	if len(m.streams) >= 2 {
		return fmt.Errorf("mixer supports at most two sources")
	}

	gain := spec.Gain
	if gain <= 0 {
		gain = 1.0
	}
	if gain > 2.0 {
		gain = 2.0
	}

	s := &stream{
		ring: buffer.NewRing(StreamBufferBytes(2)),
		gain: gain,
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = Format
	deviceConfig.Capture.Channels = Channels
	deviceConfig.SampleRate = SampleRate

	if spec.DeviceID != "" {
		id, err := ParseDeviceID(spec.DeviceID)
		if err != nil {
			return fmt.Errorf("invalid device id %q: %w", spec.DeviceID, err)
		}
		if spec.Loopback {
			deviceConfig.DeviceType = malgo.Loopback
			deviceConfig.Playback.DeviceID = id.Pointer()
		} else {
			deviceConfig.Capture.DeviceID = id.Pointer()
		}
	} else if spec.Loopback {
		deviceConfig.DeviceType = malgo.Loopback
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, pInput []byte, framecount uint32) {
			s.ring.Write(pInput)
		},
	}

	device, err := malgo.InitDevice(m.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("failed to init audio device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("failed to start audio device: %w", err)
	}

	s.device = device
	m.streams = append(m.streams, s)
	slog.Info("audio source started", "loopback", spec.Loopback, "gain", gain)
	return nil
}

func (m *Mixer) SourceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}

// Start begins producing mixed output holding the last bufferSeconds of
// audio. It fails when no source was added.
func (m *Mixer) Start(bufferSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("mixer already started")
	}
	if len(m.streams) == 0 {
		return fmt.Errorf("no audio sources to mix")
	}
	if bufferSeconds <= 0 {
		bufferSeconds = 2
	}

	m.out = buffer.NewRing(MixedBufferBytes(bufferSeconds))
	m.quit = make(chan struct{})
	m.running = true

	if len(m.streams) == 1 {
		go m.passthroughLoop(m.streams[0])
	} else {
		go m.mixLoop()
	}
	return nil
}

// passthroughLoop attaches a single source directly, no sample summing.
func (m *Mixer) passthroughLoop(s *stream) {
	buf := make([]byte, 960*BytesPerFrame)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-m.quit:
			return
		case <-ticker.C:
			for {
				n, _ := s.ring.Read(buf)
				if n == 0 {
					break
				}
				m.out.Write(buf[:n])
			}
		}
	}
}

func (m *Mixer) mixLoop() {
	const framesPerChunk = 960
	chunkSize := framesPerChunk * BytesPerFrame

	mixBuf := make([]float32, framesPerChunk*Channels)
	byteBuf := make([]byte, chunkSize)
	streamBuf := make([]byte, chunkSize)

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-m.quit:
			return
		case <-ticker.C:
			for i := range mixBuf {
				mixBuf[i] = 0
			}

			for _, s := range m.streams {
				n, _ := s.ring.Read(streamBuf)
				if n == 0 {
					continue
				}

				numSamples := n / BytesPerSample
				for i := 0; i < numSamples && i < len(mixBuf); i++ {
					bits := binary.LittleEndian.Uint32(streamBuf[i*4 : (i+1)*4])
					sample := math.Float32frombits(bits)
					mixBuf[i] += sample * s.gain
				}
			}

			// Hard clip limiter
			for i := range mixBuf {
				if mixBuf[i] > 1.0 {
					mixBuf[i] = 1.0
				} else if mixBuf[i] < -1.0 {
					mixBuf[i] = -1.0
				}
			}

			for i, sample := range mixBuf {
				binary.LittleEndian.PutUint32(byteBuf[i*4:(i+1)*4], math.Float32bits(sample))
			}

			m.out.Write(byteBuf)
		}
	}
}

// Output returns the mixed PCM ring. Valid after Start.
func (m *Mixer) Output() *buffer.Ring {
	return m.out
}

// Reader exposes the mixed output as a blocking stream for muxing.
func (m *Mixer) Reader() io.Reader {
	return &pcmReader{m: m}
}

// Track adapts the mixer into a composite audio track whose Stop closes
// the mixer.
func (m *Mixer) Track() capture.Track {
	return &capture.FuncTrack{
		TrackKind: capture.TrackAudio,
		OnStop: func() error {
			m.Close()
			return nil
		},
	}
}

func (m *Mixer) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Close stops mixing, every device, and the audio context.
func (m *Mixer) Close() {
	m.mu.Lock()
	if m.running {
		close(m.quit)
		m.running = false
	}
	streams := m.streams
	m.streams = nil
	ctx := m.ctx
	m.ctx = nil
	m.mu.Unlock()

	for _, s := range streams {
		if s.device != nil {
			s.device.Uninit()
		}
	}
	if ctx != nil {
		_ = ctx.Uninit()
		ctx.Free()
	}
}

type pcmReader struct {
	m *Mixer
}

func (r *pcmReader) Read(p []byte) (int, error) {
	for {
		if !r.m.IsRunning() {
			return 0, io.EOF
		}
		out := r.m.Output()
		if out != nil {
			if n, _ := out.Read(p); n > 0 {
				return n, nil
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
}
