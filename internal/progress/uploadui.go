package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"

	"github.com/shelfdrop/shelfdrop-cli/internal/events"
)

// UploadUI renders one progress bar per in-flight upload using mpb, driven
// entirely by the event stream. On a non-TTY it degrades to plain line
// output.
type UploadUI struct {
	progress   *mpb.Progress
	bars       sync.Map // fileID -> *uploadFileBar
	isTerminal bool
	totalFiles int
	completed  int32
	nextIndex  int32
	out        io.Writer
	done       chan struct{}
}

type uploadFileBar struct {
	bar   *mpb.Bar
	index int
	name  string
	size  int64
}

// NewUploadUI creates the display for totalFiles uploads.
func NewUploadUI(totalFiles int) *UploadUI {
	isTerminal := term.IsTerminal(int(os.Stderr.Fd()))

	var p *mpb.Progress
	if isTerminal {
		// Windows consoles need ANSI escapes switched on before mpb draws.
		enableANSIOnWindows(os.Stderr)

		p = mpb.New(
			mpb.WithOutput(os.Stderr),
			mpb.WithRefreshRate(300*time.Millisecond),
			mpb.WithWidth(100),
		)
	} else {
		p = mpb.New(mpb.WithOutput(io.Discard))
	}

	return &UploadUI{
		progress:   p,
		isTerminal: isTerminal,
		totalFiles: totalFiles,
		out:        os.Stderr,
		done:       make(chan struct{}),
	}
}

// Watch consumes the event stream until the channel closes. Run it in its
// own goroutine; call Wait to block until rendering is finished.
func (u *UploadUI) Watch(ch <-chan events.Event) {
	defer close(u.done)

	for ev := range ch {
		switch e := ev.(type) {
		case *events.FileEvent:
			u.handleFileEvent(e)
		case *events.FallbackEvent:
			fmt.Fprintf(u.out, "Switching to chunked uploads: %v\n", e.Reason)
		}
	}
}

func (u *UploadUI) handleFileEvent(e *events.FileEvent) {
	switch e.Type() {
	case events.EventFileStarted:
		u.startBar(e)
	case events.EventFileProgress:
		if fb := u.lookup(e.FileID); fb != nil && fb.bar != nil {
			fb.bar.SetCurrent(e.BytesUploaded)
		}
	case events.EventFileCompleted:
		n := atomic.AddInt32(&u.completed, 1)
		if fb := u.lookup(e.FileID); fb != nil && fb.bar != nil {
			fb.bar.SetCurrent(e.Size)
		}
		if !u.isTerminal {
			fmt.Fprintf(u.out, "Completed [%d/%d]: %s\n", n, u.totalFiles, e.Name)
		}
	case events.EventFileFailed:
		if fb := u.lookup(e.FileID); fb != nil && fb.bar != nil {
			fb.bar.Abort(false)
		}
		fmt.Fprintf(u.out, "Failed: %s: %v\n", e.Name, e.Error)
	case events.EventFileRemoved:
		if fb := u.lookup(e.FileID); fb != nil && fb.bar != nil {
			fb.bar.Abort(true)
		}
	}
}

func (u *UploadUI) lookup(fileID string) *uploadFileBar {
	v, ok := u.bars.Load(fileID)
	if !ok {
		return nil
	}
	return v.(*uploadFileBar)
}

func (u *UploadUI) startBar(e *events.FileEvent) {
	// A file restarting under a new strategy reuses its bar from zero.
	if fb := u.lookup(e.FileID); fb != nil {
		if fb.bar != nil {
			fb.bar.SetCurrent(0)
		}
		return
	}

	index := int(atomic.AddInt32(&u.nextIndex, 1))
	fb := &uploadFileBar{index: index, name: e.Name, size: e.Size}

	if u.isTerminal {
		sizeMiB := float64(e.Size) / (1024 * 1024)
		fb.bar = u.progress.New(e.Size,
			mpb.BarStyle().
				Lbound("[").
				Filler("█").
				Tip("█").
				Padding("░").
				Rbound("]"),
			mpb.PrependDecorators(
				decor.Name(fmt.Sprintf("[%d/%d] %s (%.1f MiB)", index, u.totalFiles, e.Name, sizeMiB), decor.WCSyncSpaceR),
			),
			mpb.AppendDecorators(
				decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
				decor.Name("  "),
				decor.Percentage(decor.WCSyncSpace),
			),
			mpb.BarRemoveOnComplete(),
		)
	} else {
		fmt.Fprintf(u.out, "Uploading [%d/%d]: %s (%.1f MiB)\n",
			index, u.totalFiles, e.Name, float64(e.Size)/(1024*1024))
	}

	u.bars.Store(e.FileID, fb)
}

// Wait blocks until the event stream ends and all bars finish rendering.
func (u *UploadUI) Wait() {
	<-u.done
	u.progress.Wait()
}
