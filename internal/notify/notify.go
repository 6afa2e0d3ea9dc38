// Package notify is the UI notification surface: asynchronous save and
// error callbacks plus desktop toasts.
package notify

import (
	"log/slog"

	"github.com/atotto/clipboard"
	"github.com/gen2brain/beeep"
)

// Notifier receives asynchronous outcomes from the recording core. No
// return values flow back into the core.
type Notifier interface {
	Saved(path string)
	Error(op string, err error)
}

// Desktop shows system notifications and optionally copies saved paths to
// the clipboard.
type Desktop struct {
	AppName       string
	CopyClipboard bool
}

func NewDesktop(copyClipboard bool) *Desktop {
	return &Desktop{AppName: "Clipdeck", CopyClipboard: copyClipboard}
}

func (d *Desktop) Saved(path string) {
	slog.Info("recording saved", "path", path)

	if d.CopyClipboard {
		if err := clipboard.WriteAll(path); err != nil {
			slog.Warn("failed to copy path to clipboard", "error", err)
		}
	}

	if err := beeep.Notify(d.AppName, "Saved "+path, ""); err != nil {
		slog.Warn("failed to show notification", "error", err)
	}
}

func (d *Desktop) Error(op string, err error) {
	slog.Error("operation failed", "op", op, "error", err)

	if alertErr := beeep.Alert(d.AppName, op+" failed: "+err.Error(), ""); alertErr != nil {
		slog.Warn("failed to show alert", "error", alertErr)
	}
}

// Log only writes to the log, for headless use and tests.
type Log struct{}

func (Log) Saved(path string)          { slog.Info("recording saved", "path", path) }
func (Log) Error(op string, err error) { slog.Error("operation failed", "op", op, "error", err) }
