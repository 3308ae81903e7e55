package transport

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/danmuck/cxlctl/internal/protocol/mctp"
)

// Buffer holds one message body.
type Buffer struct {
	data  [mctp.MaxBodyLen]byte
	n     int
	pool  *Pool
	inUse atomic.Bool
}

func detachedBuffer(p []byte) *Buffer {
	b := &Buffer{}
	_ = b.Set(p)
	return b
}

func (b *Buffer) Bytes() []byte { return b.data[:b.n] }

func (b *Buffer) Set(p []byte) error {
	if len(p) > len(b.data) {
		return fmt.Errorf("%w: %d bytes", mctp.ErrBodyTooLarge, len(p))
	}
	b.n = copy(b.data[:], p)
	return nil
}

// Release returns b to its pool. Releasing a nil, detached or already
// released buffer does nothing.
func (b *Buffer) Release() {
	if b == nil || b.pool == nil {
		return
	}
	if !b.inUse.CompareAndSwap(true, false) {
		return
	}
	b.n = 0
	b.pool.free <- b
}

// Pool is a fixed set of message buffers shared by requests and responses.
type Pool struct {
	free chan *Buffer
	size int
}

func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{free: make(chan *Buffer, size), size: size}
	for i := 0; i < size; i++ {
		p.free <- &Buffer{pool: p}
	}
	return p
}

// Acquire waits for a free buffer until ctx is done.
func (p *Pool) Acquire(ctx context.Context) (*Buffer, error) {
	select {
	case b := <-p.free:
		b.inUse.Store(true)
		return b, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrPoolExhausted, ctx.Err())
	}
}

// TryAcquire returns a free buffer without waiting.
func (p *Pool) TryAcquire() (*Buffer, bool) {
	select {
	case b := <-p.free:
		b.inUse.Store(true)
		return b, true
	default:
		return nil, false
	}
}

func (p *Pool) Release(b *Buffer) { b.Release() }

// Available is the number of free buffers.
func (p *Pool) Available() int { return len(p.free) }

func (p *Pool) Size() int { return p.size }
