package output

import (
	"io"
	"sync"

	"github.com/cheggaaa/pb/v3"
)

// Progress displays a hash-verification progress bar. The bar starts
// lazily on the first callback so that comparisons which never hash
// anything stay silent.
type Progress struct {
	writer io.Writer

	mu  sync.Mutex
	bar *pb.ProgressBar
}

// NewProgress creates a progress display writing to w
func NewProgress(w io.Writer) *Progress {
	return &Progress{writer: w}
}

// Callback returns a function suitable for engine progress reporting
func (p *Progress) Callback() func(done, total int) {
	return func(done, total int) {
		p.mu.Lock()
		defer p.mu.Unlock()

		if p.bar == nil {
			if total == 0 {
				return
			}
			p.bar = pb.New(total)
			p.bar.SetWriter(p.writer)
			p.bar.Set(pb.Terminal, true)
			p.bar.Start()
		}

		p.bar.SetTotal(int64(total))
		p.bar.SetCurrent(int64(done))
	}
}

// Finish stops the bar if it was started
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar != nil {
		p.bar.Finish()
		p.bar = nil
	}
}
