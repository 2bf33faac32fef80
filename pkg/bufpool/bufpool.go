// Package bufpool provides a size-classed buffer pool for frame-sized copies.
//
// Frames piped to an encoder are large (a 1080p RGB frame is ~6MB, 4K is
// ~25MB) and produced at a steady rate, so the pool keeps one sync.Pool per
// power-of-two size class between MinSize and MaxSize. A request is served
// from the smallest class that fits it; the returned slice has the requested
// length and the class size as capacity.
//
// Buffers larger than MaxSize are allocated directly and not pooled to avoid
// keeping very large buffers in memory indefinitely.
//
// # Thread Safety
//
// All operations are thread-safe via sync.Pool.
//
// # Usage
//
//	buf := bufpool.Get(size)
//	defer bufpool.Put(buf)
//	// ... use buf ...
package bufpool

import (
	"math/bits"
	"sync"
)

const (
	// DefaultMinSize is the smallest size class (4KB, one page).
	DefaultMinSize = 4 << 10

	// DefaultMaxSize is the largest pooled size class (64MB, an 8K RGBA frame
	// rounded up).
	DefaultMaxSize = 64 << 20
)

// Pool manages one sync.Pool per power-of-two size class.
type Pool struct {
	minShift uint
	maxShift uint
	classes  []sync.Pool
}

// Config holds configuration for creating a custom buffer pool.
type Config struct {
	// MinSize is the smallest size class. Rounded up to a power of two.
	// Default: 4KB
	MinSize int

	// MaxSize is the largest pooled size class. Rounded up to a power of two.
	// Default: 64MB
	MaxSize int
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() Config {
	return Config{
		MinSize: DefaultMinSize,
		MaxSize: DefaultMaxSize,
	}
}

// NewPool creates a new buffer pool with the given configuration.
// If cfg is nil, default values are used.
func NewPool(cfg *Config) *Pool {
	if cfg == nil {
		defaultCfg := DefaultConfig()
		cfg = &defaultCfg
	}

	minSize, maxSize := cfg.MinSize, cfg.MaxSize
	if minSize <= 0 {
		minSize = DefaultMinSize
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if maxSize < minSize {
		maxSize = minSize
	}

	p := &Pool{
		minShift: shiftFor(minSize),
		maxShift: shiftFor(maxSize),
	}
	p.classes = make([]sync.Pool, p.maxShift-p.minShift+1)
	for i := range p.classes {
		size := 1 << (p.minShift + uint(i))
		p.classes[i].New = func() any {
			buf := make([]byte, size)
			return &buf
		}
	}
	return p
}

// Get returns a byte slice of length size.
//
// The caller should call Put when finished with the buffer. Requests larger
// than the largest class are allocated directly.
func (p *Pool) Get(size int) []byte {
	if size < 0 {
		size = 0
	}
	class, ok := p.classFor(size)
	if !ok {
		return make([]byte, size)
	}
	bufPtr := p.classes[class].Get().(*[]byte)
	return (*bufPtr)[:size]
}

// Put returns a buffer obtained from Get to the pool.
// Buffers whose capacity is not one of the pool's classes are dropped.
func (p *Pool) Put(buf []byte) {
	if buf == nil {
		return
	}
	c := cap(buf)
	if c == 0 || c&(c-1) != 0 {
		return
	}
	shift := uint(bits.TrailingZeros(uint(c)))
	if shift < p.minShift || shift > p.maxShift {
		return
	}
	full := buf[:c]
	p.classes[shift-p.minShift].Put(&full)
}

// ClassSize returns the capacity of buffers Get returns for size, or size
// itself when the request is not pooled.
func (p *Pool) ClassSize(size int) int {
	class, ok := p.classFor(size)
	if !ok {
		return size
	}
	return 1 << (p.minShift + uint(class))
}

// MaxSize returns the largest pooled size class.
func (p *Pool) MaxSize() int {
	return 1 << p.maxShift
}

func (p *Pool) classFor(size int) (int, bool) {
	shift := shiftFor(size)
	if shift < p.minShift {
		shift = p.minShift
	}
	if shift > p.maxShift {
		return 0, false
	}
	return int(shift - p.minShift), true
}

// shiftFor returns the exponent of the smallest power of two >= n.
func shiftFor(n int) uint {
	if n <= 1 {
		return 0
	}
	return uint(bits.Len(uint(n - 1)))
}

// =============================================================================
// Global Pool
// =============================================================================

// globalPool is the package-level buffer pool with default configuration.
var globalPool = NewPool(nil)

// Get returns a byte slice of length size from the global pool.
func Get(size int) []byte {
	return globalPool.Get(size)
}

// Put returns a buffer to the global pool.
func Put(buf []byte) {
	globalPool.Put(buf)
}
