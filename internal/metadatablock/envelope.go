// Package metadatablock implements the framed metadata-block envelope and
// its decode pipeline: read the envelope, read the payload, verify its
// stored-byte MD5, then conditionally decrypt and decompress.
package metadatablock

import (
	"encoding/binary"

	"github.com/autobrr/mrimgx-restore/internal/binreader"
	"github.com/autobrr/mrimgx-restore/internal/codec"
	"github.com/autobrr/mrimgx-restore/internal/mrcrypto"
	"github.com/autobrr/mrimgx-restore/internal/restoreerr"
)

// EnvelopeSize is the on-disk size of a metadata block envelope.
const EnvelopeSize = 32

// Block name constants, exactly 8 space-padded ASCII bytes each.
const (
	NameJSON    = "$JSON   "
	NameBitmap  = "$BITMAP "
	NameFAT     = "$FAT    "
	NameCBT     = "$CBT    "
	NameMFT     = "$MFT    "
	NameTrack0  = "$TRACK0 "
	NameIndex   = "$INDEX  "
	NameEPT     = "$EPT    "
)

// Flags is the envelope's bit-packed flag byte.
type Flags byte

const (
	FlagLastBlock  Flags = 1 << 0
	FlagCompressed Flags = 1 << 1
	FlagEncrypted  Flags = 1 << 2
)

func (f Flags) Last() bool        { return f&FlagLastBlock != 0 }
func (f Flags) Compressed() bool  { return f&FlagCompressed != 0 }
func (f Flags) Encrypted() bool   { return f&FlagEncrypted != 0 }

// Envelope is the 32-byte, little-endian, packed block header that precedes
// every metadata block payload.
type Envelope struct {
	Name        [8]byte
	BlockLength uint32
	Hash        [16]byte
	Flags       Flags
	_           [3]byte // padding, ignored
}

// NameString trims no padding: block names are compared as the full
// 8-byte, space-padded ASCII form, matching the original's memcmp.
func (e Envelope) NameString() string { return string(e.Name[:]) }

// ReadEnvelope reads and decodes one 32-byte envelope from r.
func ReadEnvelope(r *binreader.Reader) (Envelope, error) {
	var buf [EnvelopeSize]byte
	if err := r.ReadFull(buf[:]); err != nil {
		return Envelope{}, err
	}
	var e Envelope
	copy(e.Name[:], buf[0:8])
	e.BlockLength = binary.LittleEndian.Uint32(buf[8:12])
	copy(e.Hash[:], buf[12:28])
	e.Flags = Flags(buf[28])
	return e, nil
}

// KeyMaterial carries what the decode pipeline needs to decrypt a block;
// it is nil-safe for unencrypted containers.
type KeyMaterial struct {
	AESVariant mrcrypto.AESVariant
	Key        []byte
}

// ReadBlock takes an already-read envelope and a reader positioned at its
// payload, and returns the decoded plaintext. A zero-length block returns
// (nil, nil) with the last_block flag still meaningful to the caller via
// the Envelope.
func ReadBlock(r *binreader.Reader, env Envelope, km *KeyMaterial) ([]byte, error) {
	if env.BlockLength == 0 {
		return nil, nil
	}

	buf := make([]byte, env.BlockLength)
	if err := r.ReadFull(buf); err != nil {
		return nil, err
	}

	storedHash := mrcrypto.MD5(buf)
	if storedHash != env.Hash {
		return nil, restoreerr.New(restoreerr.HashMismatch, "metadata block hash mismatch: "+env.NameString())
	}

	if env.Flags.Encrypted() {
		if km == nil {
			return nil, restoreerr.New(restoreerr.CryptoInit, "encrypted block but no key material")
		}
		if err := mrcrypto.DecryptECB(km.AESVariant, km.Key, buf); err != nil {
			return nil, err
		}
	}

	if env.Flags.Compressed() {
		decoded, err := codec.Decompress(buf)
		if err != nil {
			return nil, err
		}
		buf = decoded
	}

	return buf, nil
}

// SkipBlock advances past a payload the caller does not need to decode.
func SkipBlock(r *binreader.Reader, env Envelope) error {
	if env.BlockLength == 0 {
		return nil
	}
	return r.Seek(int64(env.BlockLength), binreader.Current)
}
