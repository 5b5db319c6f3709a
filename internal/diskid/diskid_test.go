package diskid

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"testing"
)

func TestRewriteMBRChangesDiskSignature(t *testing.T) {
	track0 := make([]byte, 512)
	original := make([]byte, 512)
	copy(original, track0)

	if err := RewriteMBR(track0); err != nil {
		t.Fatalf("RewriteMBR: %v", err)
	}

	if bytes.Equal(track0[mbrDiskIDOffset:mbrDiskIDOffset+4], original[mbrDiskIDOffset:mbrDiskIDOffset+4]) {
		t.Fatalf("disk signature unchanged (possible, but vanishingly unlikely with crypto/rand)")
	}
}

func TestRewriteMBRRejectsShortBuffer(t *testing.T) {
	if err := RewriteMBR(make([]byte, 10)); err == nil {
		t.Fatalf("expected error for short track0")
	}
}

func buildGPTHeader(headerSize uint32) []byte {
	track0 := make([]byte, 512+gptHeaderSize)
	header := track0[512:]
	binary.LittleEndian.PutUint32(header[gptHeaderSizeOffset:gptHeaderSizeOffset+4], headerSize)
	return track0
}

func TestRewriteGPTRecomputesValidCRC(t *testing.T) {
	track0 := buildGPTHeader(92)

	if err := RewriteGPT(track0, 512); err != nil {
		t.Fatalf("RewriteGPT: %v", err)
	}

	header := track0[512 : 512+gptHeaderSize]
	storedCRC := binary.LittleEndian.Uint32(header[gptHeaderCRCOffset : gptHeaderCRCOffset+4])

	verify := make([]byte, gptHeaderSize)
	copy(verify, header)
	binary.LittleEndian.PutUint32(verify[gptHeaderCRCOffset:gptHeaderCRCOffset+4], 0)
	want := crc32.Checksum(verify[:92], crc32.IEEETable)

	if storedCRC != want {
		t.Fatalf("stored crc32 %x does not match recomputed %x", storedCRC, want)
	}
}

func TestRewriteGPTRejectsShortBuffer(t *testing.T) {
	if err := RewriteGPT(make([]byte, 100), 512); err == nil {
		t.Fatalf("expected error for short track0")
	}
}
