package pools

import "sync"

// BytePool is a tiered byte-slice pool. The read loop borrows a buffer
// per readable event and returns it once the chunk has been handed to
// the parser.
type BytePool struct {
	pools []*sync.Pool
	sizes []int
}

// Size tiers chosen for HTTP read workloads.
var defaultSizes = []int{512, 2048, 8192, 32768}

// NewBytePool creates a pool with the standard size tiers.
func NewBytePool() *BytePool {
	bp := &BytePool{
		pools: make([]*sync.Pool, len(defaultSizes)),
		sizes: defaultSizes,
	}

	for i, size := range bp.sizes {
		sz := size
		bp.pools[i] = &sync.Pool{
			New: func() any {
				buf := make([]byte, sz)
				return &buf
			},
		}
	}

	return bp
}

// Get returns a slice of at least size bytes, length set to size.
func (bp *BytePool) Get(size int) []byte {
	for i, tier := range bp.sizes {
		if size <= tier {
			buf := *bp.pools[i].Get().(*[]byte)
			return buf[:size]
		}
	}
	return make([]byte, size)
}

// Put returns a slice to its tier. Slices not sized to a tier are left
// to the GC.
func (bp *BytePool) Put(buf []byte) {
	c := cap(buf)
	for i, tier := range bp.sizes {
		if c == tier {
			buf = buf[:c]
			bp.pools[i].Put(&buf)
			return
		}
	}
}
