package tilestore

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
)

// Compression is the codec applied to the pixels of each block object
type Compression int

const (
	//None stores raw pixels
	None Compression = iota
	//Deflate compresses blocks with deflate
	Deflate
	//Zstd compresses blocks with zstandard
	Zstd
	//Snappy compresses blocks with snappy
	Snappy
)

var compressionNames = []string{"none", "deflate", "zstd", "snappy"}

func (c Compression) String() string {
	if c < 0 || int(c) >= len(compressionNames) {
		return fmt.Sprintf("Compression(%d)", int(c))
	}
	return compressionNames[c]
}

// ParseCompression returns the Compression named s (case insensitive)
func ParseCompression(s string) (Compression, error) {
	for i, n := range compressionNames {
		if strings.EqualFold(n, s) {
			return Compression(i), nil
		}
	}
	return None, fmt.Errorf("unknown compression %q", s)
}

// zstd encoders and decoders are safe for concurrent EncodeAll/DecodeAll
// but expensive to create
var (
	zstdOnce sync.Once
	zstdEnc  *zstd.Encoder
	zstdDec  *zstd.Decoder
	zstdErr  error
)

func zstdCodec() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEnc, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if zstdErr != nil {
			return
		}
		zstdDec, zstdErr = zstd.NewReader(nil)
	})
	return zstdEnc, zstdDec, zstdErr
}

func (c Compression) compress(raw []byte) ([]byte, error) {
	switch c {
	case None:
		return raw, nil
	case Deflate:
		var buf bytes.Buffer
		w, err := flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			return nil, fmt.Errorf("flate.newwriter: %w", err)
		}
		if _, err := w.Write(raw); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case Zstd:
		enc, _, err := zstdCodec()
		if err != nil {
			return nil, err
		}
		return enc.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
	case Snappy:
		return snappy.Encode(nil, raw), nil
	}
	return nil, fmt.Errorf("unsupported compression %v", c)
}

// decompress decodes payload into dst, which must be exactly the raw size
func (c Compression) decompress(payload, dst []byte) error {
	var raw []byte
	var err error
	switch c {
	case None:
		raw = payload
	case Deflate:
		r := flate.NewReader(bytes.NewReader(payload))
		defer r.Close()
		n, rerr := io.ReadFull(r, dst)
		if rerr != nil {
			return fmt.Errorf("inflate: %w", rerr)
		}
		//the stream must end exactly at the block size
		if extra, _ := r.Read(make([]byte, 1)); extra != 0 {
			return fmt.Errorf("inflate: more than %d bytes", n)
		}
		return nil
	case Zstd:
		_, dec, zerr := zstdCodec()
		if zerr != nil {
			return zerr
		}
		raw, err = dec.DecodeAll(payload, make([]byte, 0, len(dst)))
	case Snappy:
		var n int
		if n, err = snappy.DecodedLen(payload); err == nil && n != len(dst) {
			return fmt.Errorf("snappy: decoded length %d, expected %d", n, len(dst))
		}
		if err == nil {
			raw, err = snappy.Decode(dst, payload)
		}
	default:
		return fmt.Errorf("unsupported compression %v", c)
	}
	if err != nil {
		return fmt.Errorf("%v: %w", c, err)
	}
	if len(raw) != len(dst) {
		return fmt.Errorf("%v: decoded %d bytes, expected %d", c, len(raw), len(dst))
	}
	copy(dst, raw)
	return nil
}
