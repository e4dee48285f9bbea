// Package tilestore persists rasters in a store.Store as one object per
// block, and exposes them as rastercache.BlockStore.
//
// A raster under prefix p is made of a manifest object p/manifest and of the
// block objects p/<band>/<row>/<col>. Each block object carries a small
// header (data type, block size, compression, checksum) followed by the
// compressed pixels. Blocks that were never written, or that only contain
// the nodata value, have no object and read as nodata.
package tilestore

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/airbusgeo/rastercache"
	"github.com/airbusgeo/rastercache/store"
	"github.com/spaolacci/murmur3"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	// ErrExists is returned by Create when a raster already exists under the prefix
	ErrExists = errors.New("raster already exists")
	// ErrCorrupt is wrapped by ReadBlock errors for undecodable block objects
	ErrCorrupt = errors.New("corrupt block")
)

var magic = [4]byte{'R', 'C', 'B', 1}

// blockHeader precedes the payload of each block object
type blockHeader struct {
	DataType    string `msgpack:"dt"`
	BlockSizeX  int    `msgpack:"bx"`
	BlockSizeY  int    `msgpack:"by"`
	Compression string `msgpack:"c"`
	RawLen      int    `msgpack:"n"`
	Checksum    uint32 `msgpack:"h"`
}

// Raster is a tiled raster stored in a store.Store
type Raster struct {
	st          store.Store
	prefix      string
	manifest    Manifest
	structure   rastercache.DatasetStructure
	compression Compression
	nodata      []byte //one block filled with the nodata value
}

var _ rastercache.BlockStore = (*Raster)(nil)

type createOpts struct {
	compression Compression
	nodata      *float64
	overwrite   bool
}

// Option is an option that can be passed to Create
type Option func(o *createOpts)

// WithCompression sets the block compression. Defaults to Deflate.
func WithCompression(c Compression) Option {
	return func(o *createOpts) {
		o.compression = c
	}
}

// NoData sets the value of pixels of blocks that were never written.
// Defaults to 0.
func NoData(v float64) Option {
	return func(o *createOpts) {
		o.nodata = &v
	}
}

// Overwrite allows Create to replace the manifest of an existing raster.
// Existing block objects are not removed.
func Overwrite() Option {
	return func(o *createOpts) {
		o.overwrite = true
	}
}

func key(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// Create writes the manifest of a new empty raster under prefix
func Create(ctx context.Context, st store.Store, prefix string, structure rastercache.DatasetStructure, opts ...Option) (*Raster, error) {
	co := createOpts{compression: Deflate}
	for _, o := range opts {
		o(&co)
	}
	if err := structure.Validate(); err != nil {
		return nil, err
	}
	if _, err := co.compression.compress(nil); err != nil {
		return nil, err
	}
	mkey := key(prefix, "manifest")
	if !co.overwrite {
		_, err := st.Get(ctx, mkey)
		if err == nil {
			return nil, fmt.Errorf("%s: %w", mkey, ErrExists)
		}
		if !errors.Is(err, store.ErrNotExist) {
			return nil, err
		}
	}
	m := newManifest(structure, co.compression, co.nodata)
	data, err := m.encode()
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	if err := st.Put(ctx, mkey, data); err != nil {
		return nil, fmt.Errorf("put manifest: %w", err)
	}
	return newRaster(st, prefix, m)
}

// Open reads the manifest of the raster stored under prefix
func Open(ctx context.Context, st store.Store, prefix string) (*Raster, error) {
	mkey := key(prefix, "manifest")
	data, err := st.Get(ctx, mkey)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", mkey, err)
	}
	m, err := decodeManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", mkey, err)
	}
	return newRaster(st, prefix, m)
}

func newRaster(st store.Store, prefix string, m Manifest) (*Raster, error) {
	structure, err := m.Structure()
	if err != nil {
		return nil, err
	}
	c, err := ParseCompression(m.Compression)
	if err != nil {
		return nil, err
	}
	r := &Raster{
		st:          st,
		prefix:      prefix,
		manifest:    m,
		structure:   structure,
		compression: c,
		nodata:      make([]byte, structure.BlockBytes()),
	}
	if m.NoData != nil {
		structure.DataType.Fill(r.nodata, *m.NoData)
	}
	return r, nil
}

// Structure implements rastercache.BlockStore
func (r *Raster) Structure() rastercache.DatasetStructure {
	return r.structure
}

// Manifest returns the manifest the raster was created or opened with
func (r *Raster) Manifest() Manifest {
	return r.manifest
}

func (r *Raster) blockKey(band, col, row int) string {
	return key(r.prefix, fmt.Sprintf("%d/%d/%d", band, row, col))
}

// ReadBlock implements rastercache.BlockSource
func (r *Raster) ReadBlock(ctx context.Context, band, col, row int, buf []byte) error {
	if len(buf) != len(r.nodata) {
		return fmt.Errorf("block buffer of %d bytes, expected %d", len(buf), len(r.nodata))
	}
	k := r.blockKey(band, col, row)
	obj, err := r.st.Get(ctx, k)
	if errors.Is(err, store.ErrNotExist) {
		copy(buf, r.nodata)
		return nil
	}
	if err != nil {
		return err
	}
	if err := r.decode(obj, buf); err != nil {
		return fmt.Errorf("%s: %w", k, err)
	}
	return nil
}

func (r *Raster) decode(obj, buf []byte) error {
	if len(obj) < 8 || !bytes.Equal(obj[:4], magic[:]) {
		return fmt.Errorf("bad magic: %w", ErrCorrupt)
	}
	hlen := int(binary.BigEndian.Uint32(obj[4:8]))
	if hlen > len(obj)-8 {
		return fmt.Errorf("truncated header: %w", ErrCorrupt)
	}
	var h blockHeader
	if err := msgpack.Unmarshal(obj[8:8+hlen], &h); err != nil {
		return fmt.Errorf("msgpack.unmarshal: %v: %w", err, ErrCorrupt)
	}
	if h.DataType != r.manifest.DataType || h.BlockSizeX != r.structure.BlockSizeX ||
		h.BlockSizeY != r.structure.BlockSizeY || h.RawLen != len(buf) {
		return fmt.Errorf("block layout %s %dx%d (%d bytes) does not match raster: %w",
			h.DataType, h.BlockSizeX, h.BlockSizeY, h.RawLen, ErrCorrupt)
	}
	c, err := ParseCompression(h.Compression)
	if err != nil {
		return fmt.Errorf("%v: %w", err, ErrCorrupt)
	}
	if err := c.decompress(obj[8+hlen:], buf); err != nil {
		return fmt.Errorf("%v: %w", err, ErrCorrupt)
	}
	if sum := murmur3.Sum32(buf); sum != h.Checksum {
		return fmt.Errorf("checksum %08x, expected %08x: %w", sum, h.Checksum, ErrCorrupt)
	}
	return nil
}

// WriteBlock implements rastercache.BlockSink. Blocks only containing the
// nodata value are deleted rather than stored.
func (r *Raster) WriteBlock(ctx context.Context, band, col, row int, data []byte) error {
	if len(data) != len(r.nodata) {
		return fmt.Errorf("block of %d bytes, expected %d", len(data), len(r.nodata))
	}
	k := r.blockKey(band, col, row)
	if bytes.Equal(data, r.nodata) {
		return r.st.Delete(ctx, k)
	}
	obj, err := r.encode(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", k, err)
	}
	return r.st.Put(ctx, k, obj)
}

func (r *Raster) encode(data []byte) ([]byte, error) {
	payload, err := r.compression.compress(data)
	if err != nil {
		return nil, err
	}
	h := blockHeader{
		DataType:    r.manifest.DataType,
		BlockSizeX:  r.structure.BlockSizeX,
		BlockSizeY:  r.structure.BlockSizeY,
		Compression: r.compression.String(),
		RawLen:      len(data),
		Checksum:    murmur3.Sum32(data),
	}
	hdr, err := msgpack.Marshal(&h)
	if err != nil {
		return nil, fmt.Errorf("msgpack.marshal: %w", err)
	}
	obj := make([]byte, 8, 8+len(hdr)+len(payload))
	copy(obj, magic[:])
	binary.BigEndian.PutUint32(obj[4:8], uint32(len(hdr)))
	obj = append(obj, hdr...)
	obj = append(obj, payload...)
	return obj, nil
}
