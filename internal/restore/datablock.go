package restore

import (
	"github.com/autobrr/mrimgx-restore/internal/binreader"
	"github.com/autobrr/mrimgx-restore/internal/codec"
	"github.com/autobrr/mrimgx-restore/internal/layout"
	"github.com/autobrr/mrimgx-restore/internal/mrcrypto"
	"github.com/autobrr/mrimgx-restore/internal/restoreerr"
)

// dataBlockCrypto carries the fixed-per-file settings needed to decode a
// data or reserved-sector block: the key material (Variant is AESNone when
// the container is unencrypted) and whether blocks are compressed.
type dataBlockCrypto struct {
	Variant       mrcrypto.AESVariant
	Key           [mrcrypto.KeyLength]byte
	ImageID       [8]byte
	Compressed    bool
}

// decodeDataBlock implements the shared data-block decode pipeline: read the
// stored bytes at entry.FilePosition, AES-CBC decrypt in place when
// encrypted, ZSTD-decompress when compressed, and verify the decoded
// payload's MD5 against entry.MD5Hash.
//
// Unlike the original, the hash check always runs, not only when a
// compressed frame is present — an unencrypted, uncompressed block's
// integrity was previously going unverified.
func decodeDataBlock(r *binreader.Reader, entry layout.DataBlockIndexElement, crypto *dataBlockCrypto, diskNumber, partitionNumber uint16, blockIndex uint32) ([]byte, error) {
	if entry.BlockLength == 0 {
		return nil, nil
	}

	if err := r.Seek(entry.FilePosition, binreader.Begin); err != nil {
		return nil, err
	}
	buf := make([]byte, entry.BlockLength)
	if err := r.ReadFull(buf); err != nil {
		return nil, err
	}

	if crypto != nil && crypto.Variant != mrcrypto.AESNone {
		iv, err := mrcrypto.FormatIV(crypto.ImageID, diskNumber, partitionNumber, blockIndex, crypto.Key)
		if err != nil {
			return nil, err
		}
		if err := mrcrypto.DecryptCBC(crypto.Variant, crypto.Key[:], iv[:], buf); err != nil {
			return nil, err
		}
	}

	if crypto != nil && crypto.Compressed {
		decoded, err := codec.Decompress(buf)
		if err != nil {
			return nil, err
		}
		buf = decoded
	}

	got := mrcrypto.MD5(buf)
	if got != entry.MD5Hash {
		return nil, restoreerr.New(restoreerr.HashMismatch, "data block hash mismatch")
	}
	return buf, nil
}
