package rastercache

import "sync/atomic"

// BlockHandle is a pinned reference to a resident block returned by
// Raster.GetBlock. The block is not evictable until Release is called.
type BlockHandle struct {
	c        *Cache
	e        *entry
	released atomic.Bool
}

// Key returns the identity of the block
func (h *BlockHandle) Key() BlockKey {
	return h.e.key
}

// View calls fn with the decoded pixels of the block. data must not be
// retained nor modified after fn returns.
func (h *BlockHandle) View(fn func(data []byte)) {
	h.e.mu.RLock()
	defer h.e.mu.RUnlock()
	fn(h.e.data)
}

// Update calls fn with the decoded pixels of the block, which may modify
// them, and marks the block dirty. It returns ErrRasterClosed if the raster
// was closed since the handle was obtained, in which case fn is not called.
func (h *BlockHandle) Update(fn func(data []byte)) error {
	h.e.mu.Lock()
	defer h.e.mu.Unlock()
	if h.e.detached.Load() {
		return ErrRasterClosed
	}
	fn(h.e.data)
	h.e.version.Add(1)
	return nil
}

// Bytes returns a copy of the pixels of the block
func (h *BlockHandle) Bytes() []byte {
	var out []byte
	h.View(func(data []byte) {
		out = append([]byte(nil), data...)
	})
	return out
}

// Release unpins the block. Subsequent calls are no-ops.
func (h *BlockHandle) Release() {
	if !h.released.CompareAndSwap(false, true) {
		return
	}
	h.c.mu.Lock()
	h.c.unpin(h.e)
	h.c.mu.Unlock()
}
