// Package diskid rewrites the on-disk identifiers in a captured boot track
// so a restored disk never collides with the disk it was imaged from.
package diskid

import (
	"crypto/rand"
	"encoding/binary"
	"hash/crc32"

	"github.com/google/uuid"

	"github.com/autobrr/mrimgx-restore/internal/restoreerr"
)

const (
	mbrDiskIDOffset = 440
	gptHeaderSize   = 512

	gptHeaderCRCOffset  = 16
	gptHeaderDiskGUID   = 56
	gptHeaderSizeOffset = 12
)

// RewriteMBR overwrites the 4-byte disk signature at bootCode[440:444] in an
// MBR track0 image with a fresh random value.
func RewriteMBR(track0 []byte) error {
	if len(track0) < mbrDiskIDOffset+4 {
		return restoreerr.New(restoreerr.BadArgument, "track0 too short for MBR disk signature")
	}
	var id [4]byte
	if _, err := rand.Read(id[:]); err != nil {
		return restoreerr.Wrap(restoreerr.IoError, "generate random disk id", err)
	}
	copy(track0[mbrDiskIDOffset:mbrDiskIDOffset+4], id[:])
	return nil
}

// RewriteGPT overwrites the disk GUID in the GPT header at sector 1 (offset
// bytesPerSector into track0) and recomputes header_crc32 over the header's
// declared header_size, with the checksum field itself zeroed during the
// calculation.
func RewriteGPT(track0 []byte, bytesPerSector uint32) error {
	headerStart := int(bytesPerSector)
	if len(track0) < headerStart+gptHeaderSize {
		return restoreerr.New(restoreerr.BadArgument, "track0 too short for GPT header")
	}
	header := track0[headerStart : headerStart+gptHeaderSize]

	id := uuid.New()
	putGUID(header[gptHeaderDiskGUID:gptHeaderDiskGUID+16], id)

	binary.LittleEndian.PutUint32(header[gptHeaderCRCOffset:gptHeaderCRCOffset+4], 0)

	headerSize := binary.LittleEndian.Uint32(header[gptHeaderSizeOffset : gptHeaderSizeOffset+4])
	if headerSize > gptHeaderSize {
		return restoreerr.New(restoreerr.BadArgument, "gpt header_size exceeds sector bounds")
	}
	sum := crc32.Checksum(header[:headerSize], crc32.IEEETable)
	binary.LittleEndian.PutUint32(header[gptHeaderCRCOffset:gptHeaderCRCOffset+4], sum)
	return nil
}

// putGUID writes a uuid.UUID into the EFI GUID wire form: data1 (u32 LE),
// data2 (u16 LE), data3 (u16 LE), data4 (8 raw bytes) — the mixed-endian
// layout every GPT implementation uses for the disk/partition GUID fields.
func putGUID(dst []byte, id uuid.UUID) {
	binary.LittleEndian.PutUint32(dst[0:4], binary.BigEndian.Uint32(id[0:4]))
	binary.LittleEndian.PutUint16(dst[4:6], binary.BigEndian.Uint16(id[4:6]))
	binary.LittleEndian.PutUint16(dst[6:8], binary.BigEndian.Uint16(id[6:8]))
	copy(dst[8:16], id[8:16])
}
