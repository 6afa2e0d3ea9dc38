package post

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// EncodeWAV converts raw f32le interleaved PCM into a 16-bit WAV payload,
// the intermediate the MP3 transcode consumes.
func EncodeWAV(pcm []byte, sampleRate, channels int) ([]byte, error) {
	if len(pcm)%4 != 0 {
		pcm = pcm[:len(pcm)-len(pcm)%4]
	}

	samples := make([]int, len(pcm)/4)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(pcm[i*4 : (i+1)*4])
		f := math.Float32frombits(bits)
		if f > 1.0 {
			f = 1.0
		} else if f < -1.0 {
			f = -1.0
		}
		samples[i] = int(f * 32767)
	}

	tmp, err := os.CreateTemp("", "clipdeck-*.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create wav scratch file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	// wav.Encoder needs a WriteSeeker to patch the RIFF header on close.
	enc := wav.NewEncoder(tmp, sampleRate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Data:           samples,
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		SourceBitDepth: 16,
	}

	if err := enc.Write(buf); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to finalize wav: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}

	return os.ReadFile(tmpName)
}
