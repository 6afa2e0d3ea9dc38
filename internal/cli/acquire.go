package cli

import (
	"context"
	"io"
	"runtime"

	"clipdeck/internal/audio"
	"clipdeck/internal/capture"
	"clipdeck/internal/crop"
	"clipdeck/internal/replay"
	"clipdeck/internal/settings"
	"clipdeck/internal/source"
)

func isWindows() bool { return runtime.GOOS == "windows" }

// enumerateSources stands in for the host shell's screen enumerator.
func enumerateSources(displayW, displayH int) source.Enumerator {
	return source.StaticEnumerator{
		{ID: "screen:0", DisplayName: "Entire Screen", Width: displayW, Height: displayH},
	}
}

// buildAcquire assembles the full acquisition path. Without cropping the
// encoder grabs the desktop itself. With cropping active a raw frame
// grabber feeds the live crop stage, which re-reads the bounds cell every
// frame and streams composed frames into the encoder; dragging the region
// takes effect immediately, no capture restart.
func buildAcquire(ffmpegPath string, bounds *settings.BoundsCell, displayW, displayH int) replay.AcquireFunc {
	acquirer := &capture.FFmpegAcquirer{FFmpegPath: ffmpegPath}

	return func(ctx context.Context, sourceID string, snap settings.Settings) (*capture.Composite, error) {
		cons := capture.ConstraintsFor(snap)
		comp, err := acquirer.AcquireDesktop(ctx, sourceID, cons)
		if err != nil {
			return nil, err
		}

		track := comp.Video.(*capture.DesktopTrack)

		if snap.CropEnabled() {
			grab := capture.NewRawGrabber(ffmpegPath, sourceID, cons.MaxWidth, cons.MaxHeight, cons.FrameRate)
			if err := grab.Start(); err != nil {
				return nil, err
			}

			pr, pw := io.Pipe()
			cropper, outW, outH, err := crop.NewLive(grab, pw, bounds, snap, cons.MaxWidth, displayW, displayH, cons.FrameRate)
			if err != nil {
				grab.Stop()
				return nil, err
			}
			go cropper.Run()

			track.RawVideo = pr
			track.RawWidth = outW
			track.RawHeight = outH
			track.OnStop = func() error {
				cropper.Close()
				return nil
			}
		}

		res, err := audio.Acquire(snap, snap.BufferSeconds)
		if err != nil {
			comp.Release()
			return nil, err
		}
		if res.Mixer != nil {
			track.PCM = res.Mixer.Reader()
			track.PCMSampleRate = audio.SampleRate
			track.PCMChannels = audio.Channels
			comp.Audio = res.Mixer.Track()
		}

		return comp, nil
	}
}
