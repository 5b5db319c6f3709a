// Package codec decompresses ZSTD-framed block payloads. The container
// format stores each compressed block as a single, self-describing ZSTD
// frame, so decompression only needs the frame's own declared content size.
package codec

import (
	"github.com/klauspost/compress/zstd"

	"github.com/autobrr/mrimgx-restore/internal/restoreerr"
)

var decoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))

// Decompress returns the plaintext content of a single ZSTD frame. The
// frame's declared content size is used to size the output buffer exactly,
// matching the original's ZSTD_getFrameContentSize/ZSTD_decompress pairing.
func Decompress(src []byte) ([]byte, error) {
	out, err := decoder.DecodeAll(src, nil)
	if err != nil {
		return nil, restoreerr.Wrap(restoreerr.CodecError, "zstd decompress", err)
	}
	return out, nil
}
