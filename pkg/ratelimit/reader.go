// Package ratelimit bounds aggregate read bandwidth with a token bucket,
// shared across every reader it wraps. Remote backends make hashing
// network-bound; the limiter keeps a comparison from saturating a link.
package ratelimit

import (
	"io"
	"sync"
	"time"
)

// Limiter controls the aggregate read rate across multiple readers
type Limiter struct {
	bytesPerSecond int64
	bucketSize     int64

	mu         sync.Mutex
	tokens     int64
	lastUpdate time.Time
}

// NewLimiter creates a limiter for the given bytes-per-second rate.
// A rate of zero or less returns nil, which disables limiting.
func NewLimiter(bytesPerSecond int64) *Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}

	// One second of burst, 64KB minimum so small reads stay smooth
	bucketSize := bytesPerSecond
	if bucketSize < 65536 {
		bucketSize = 65536
	}

	return &Limiter{
		bytesPerSecond: bytesPerSecond,
		bucketSize:     bucketSize,
		tokens:         bucketSize,
		lastUpdate:     time.Now(),
	}
}

// Wrap returns a reader limited by l. A nil limiter returns r unchanged.
func (l *Limiter) Wrap(r io.Reader) io.Reader {
	if l == nil {
		return r
	}
	return &reader{reader: r, limiter: l}
}

// reader applies the token bucket to every Read
type reader struct {
	reader  io.Reader
	limiter *Limiter
}

func (r *reader) Read(p []byte) (int, error) {
	toRead := int64(len(p))
	if toRead > r.limiter.bucketSize {
		toRead = r.limiter.bucketSize
	}

	r.limiter.waitFor(toRead)

	n, err := r.reader.Read(p[:toRead])
	if n > 0 {
		r.limiter.consume(int64(n))
	}
	return n, err
}

// waitFor blocks until needed tokens are available
func (l *Limiter) waitFor(needed int64) {
	for {
		l.mu.Lock()
		l.refill()

		if l.tokens >= needed {
			l.mu.Unlock()
			return
		}

		deficit := needed - l.tokens
		l.mu.Unlock()

		wait := time.Duration(float64(deficit) / float64(l.bytesPerSecond) * float64(time.Second))
		if wait < time.Millisecond {
			wait = time.Millisecond
		}
		time.Sleep(wait)
	}
}

// refill adds tokens for elapsed time. Caller holds the lock.
func (l *Limiter) refill() {
	now := time.Now()
	elapsed := now.Sub(l.lastUpdate)

	add := int64(float64(elapsed) / float64(time.Second) * float64(l.bytesPerSecond))
	if add > 0 {
		l.tokens += add
		if l.tokens > l.bucketSize {
			l.tokens = l.bucketSize
		}
		l.lastUpdate = now
	}
}

// consume removes tokens after a completed read
func (l *Limiter) consume(n int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokens -= n
	if l.tokens < 0 {
		l.tokens = 0
	}
}
