package rastercache

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrOutOfBounds is returned by region operations whose window extends
	// outside the raster when the raster was opened with ErrorOutside
	ErrOutOfBounds = errors.New("window outside raster bounds")
	// ErrRasterClosed is returned when operating on a closed raster or through
	// a handle detached by Close
	ErrRasterClosed = errors.New("raster closed")
	// ErrCacheClosed is returned when operating on a closed cache
	ErrCacheClosed = errors.New("cache closed")
	// ErrDuplicateRaster is returned by Open for an id already attached
	ErrDuplicateRaster = errors.New("raster already open")
	// ErrInvalidBand is returned for band indexes outside [0,NBands)
	ErrInvalidBand = errors.New("invalid band")
	// ErrInvalidBlock is returned for block coordinates outside the raster
	ErrInvalidBlock = errors.New("invalid block coordinates")
	// ErrBufferSize is returned when a caller supplied buffer does not match
	// the requested window
	ErrBufferSize = errors.New("buffer size mismatch")
	// ErrBufferType is returned when a typed buffer does not match the band's
	// data type
	ErrBufferType = errors.New("buffer type mismatch")
)

// DecodeError is returned when a BlockStore could not produce a block's
// pixel data. It is never retried by the cache.
type DecodeError struct {
	Key BlockKey
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode block %v: %v", e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// WriteError is returned when a BlockStore could not persist a dirty block.
// The block is left dirty and resident.
type WriteError struct {
	Key BlockKey
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write block %v: %v", e.Key, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// CapacityError is returned when the configured budget cannot accommodate a
// block: the block is larger than the budget, every resident block is pinned,
// or a dirty victim could not be written back (Err is then the *WriteError).
type CapacityError struct {
	Need int64
	Used int64
	Max  int64
	Err  error
}

func (e *CapacityError) Error() string {
	msg := fmt.Sprintf("cannot admit %d bytes (used %d, max %d)", e.Need, e.Used, e.Max)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CapacityError) Unwrap() error { return e.Err }

// ConfigError is returned for invalid cache budget values
type ConfigError struct {
	Value string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid cache size %q: %v", e.Value, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// FlushError lists every block that could not be written during a flush.
// All dirty blocks are attempted; the failed ones stay dirty.
type FlushError struct {
	Failed []*WriteError
}

func (e *FlushError) Error() string {
	switch len(e.Failed) {
	case 0:
		return "flush: no failures"
	case 1:
		return "flush: " + e.Failed[0].Error()
	}
	msgs := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		msgs = append(msgs, f.Error())
	}
	return fmt.Sprintf("flush: %d blocks failed: %s", len(e.Failed), strings.Join(msgs, "; "))
}

func (e *FlushError) Unwrap() []error {
	errs := make([]error, len(e.Failed))
	for i, f := range e.Failed {
		errs[i] = f
	}
	return errs
}

// RegionError is returned by WriteRegion when a block of the window could
// not be fetched. Blocks are applied in row-major order: the Applied blocks
// preceding Key have been written to the cache (and are dirty), Key and all
// following blocks are untouched. ReadRegion returns it too, in which case
// the output buffer contents are unspecified.
type RegionError struct {
	Key     BlockKey
	Applied int
	Err     error
}

func (e *RegionError) Error() string {
	return fmt.Sprintf("block %v (after %d applied blocks): %v", e.Key, e.Applied, e.Err)
}

func (e *RegionError) Unwrap() error { return e.Err }
