package progress

import (
	"context"
	"os"
	"sync"
	"sync/atomic"

	barlib "github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// Update describes a single increment of bytes transferred, fed by the
// restore engine's workers as downloaded objects are written.
type Update struct {
	Complete int64
	Total    int64
}

// TransferBar renders byte-level CAS upload/download progress. It mirrors
// the update-channel/done-channel pattern the pusher uses for OCI layer
// pushes, generalized here to bulk object puts and gets.
type TransferBar struct {
	description string
	verbose     bool

	updates chan Update
	done    chan struct{}
	closed  sync.Once

	total     int64
	completed int64
}

// NewTransferBar starts a background renderer for a named transfer
// ("restoring", "saving"). Call Add to report progress and Close when the
// transfer is finished.
func NewTransferBar(description string, verbose bool) *TransferBar {
	b := &TransferBar{
		description: description,
		verbose:     verbose,
		updates:     make(chan Update, 16),
		done:        make(chan struct{}),
	}
	go b.run()
	return b
}

// SetTotal declares the total number of bytes expected across the transfer.
// May be called more than once as the plan is refined.
func (b *TransferBar) SetTotal(n int64) {
	atomic.StoreInt64(&b.total, n)
}

// Add reports that n additional bytes have completed transfer.
func (b *TransferBar) Add(n int64) {
	completed := atomic.AddInt64(&b.completed, n)
	select {
	case b.updates <- Update{Complete: completed, Total: atomic.LoadInt64(&b.total)}:
	default:
		// Drop the update rather than block the caller; the next update will
		// eventually reflect the value.
	}
}

// Close stops the renderer. Safe to call more than once.
func (b *TransferBar) Close() {
	b.closed.Do(func() { close(b.done) })
}

func (b *TransferBar) run() {
	var bar *barlib.ProgressBar
	for {
		select {
		case u := <-b.updates:
			if bar == nil {
				bar = barlib.NewOptions64(u.Total,
					barlib.OptionSetVisibility(!b.verbose && term.IsTerminal(int(os.Stdout.Fd()))),
					barlib.OptionSetDescription(b.description),
					barlib.OptionShowCount(),
					barlib.OptionShowBytes(true),
					barlib.OptionShowElapsedTimeOnFinish())
			}
			_ = bar.Set64(u.Complete)
		case <-b.done:
			if bar != nil {
				_ = bar.Finish()
			}
			return
		}
	}
}

// RunWithContext stops the renderer early if ctx is cancelled, in addition
// to the normal Close path. Useful when a transfer is aborted mid-flight.
func (b *TransferBar) RunWithContext(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			b.Close()
		case <-b.done:
		}
	}()
}
