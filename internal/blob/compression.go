package blob

import (
	"bytes"

	"github.com/klauspost/compress/zstd"
)

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// CompressionOptions configures transparent blob compression.
type CompressionOptions struct {
	// Minimum raw size in bytes before compression is attempted.
	MinSize int
	// Compression level (1=fastest, 3=best).
	Level int
}

// DefaultCompressionOptions provides sensible defaults.
func DefaultCompressionOptions() CompressionOptions {
	return CompressionOptions{
		MinSize: 1024,
		Level:   2,
	}
}

type compressor struct {
	opts CompressionOptions
	enc  *zstd.Encoder
	dec  *zstd.Decoder
}

func newCompressor(opts CompressionOptions) (*compressor, error) {
	if opts.MinSize == 0 {
		opts.MinSize = DefaultCompressionOptions().MinSize
	}
	if opts.Level == 0 {
		opts.Level = DefaultCompressionOptions().Level
	}

	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(opts.Level)),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
	)
	if err != nil {
		enc.Close()
		return nil, err
	}

	return &compressor{opts: opts, enc: enc, dec: dec}, nil
}

// compress returns the bytes to write on disk and whether they are
// compressed. Raw content that itself begins with the zstd magic is
// always wrapped, so decompress can key off the magic alone.
func (c *compressor) compress(content []byte) ([]byte, bool) {
	if bytes.HasPrefix(content, zstdMagic) {
		return c.enc.EncodeAll(content, nil), true
	}
	if len(content) < c.opts.MinSize {
		return content, false
	}

	compressed := c.enc.EncodeAll(content, nil)
	if len(compressed) >= len(content) {
		return content, false
	}
	return compressed, true
}

// decompress reverses compress.
func (c *compressor) decompress(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, zstdMagic) {
		return data, nil
	}
	return c.dec.DecodeAll(data, nil)
}
