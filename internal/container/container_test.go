package container

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/autobrr/mrimgx-restore/internal/mrcrypto"
)

type fixtureWriter struct {
	buf bytes.Buffer
}

func (w *fixtureWriter) block(name string, payload []byte, last bool) {
	var flags byte
	if last {
		flags |= 1
	}
	hash := mrcrypto.MD5(payload)
	w.buf.WriteString(name)
	var length [4]byte
	binary.LittleEndian.PutUint32(length[:], uint32(len(payload)))
	w.buf.Write(length[:])
	w.buf.Write(hash[:])
	w.buf.WriteByte(flags)
	w.buf.Write([]byte{0, 0, 0})
	w.buf.Write(payload)
}

func (w *fixtureWriter) uint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *fixtureWriter) dataBlockElement(filePos int64, md5 [16]byte, length uint32, fileNumber uint16) {
	var b [30]byte
	binary.LittleEndian.PutUint64(b[0:8], uint64(filePos))
	copy(b[8:24], md5[:])
	binary.LittleEndian.PutUint32(b[24:28], length)
	binary.LittleEndian.PutUint16(b[28:30], fileNumber)
	w.buf.Write(b[:])
}

const (
	jsonBlockName   = "$JSON   "
	track0BlockName = "$TRACK0 "
	indexBlockName  = "$INDEX  "

	indexPlaceholder = "0000000000" // 10-digit fixed-width placeholder
)

// buildUnencryptedFullFixture assembles a minimal container: one disk, one
// partition, one 16-byte full data block, no encryption or compression.
func buildUnencryptedFullFixture(t *testing.T) string {
	t.Helper()

	headerJSONTemplate := `{
		"_header": {"imageid":"0123456789abcdef","file_number":1,"index_file_position":` + indexPlaceholder + `,"delta_index":false,"split_file":false},
		"_encryption": {"enable":false,"key_iterations":0,"hmac":""},
		"_compression": {"compression_level":"none"},
		"disks": [{
			"_header": {"disk_format":"mbr","disk_number":0},
			"_geometry": {"bytes_per_sector":512,"disk_size":1048576},
			"partitions": [{
				"_header": {"block_size":65536,"partition_number":0},
				"_geometry": {"start":1048576,"boot_sector_offset":0},
				"_file_system": {"reserved_sectors_byte_length":0,"lcn0_offset":1048576,"start":1048576}
			}]
		}]
	}`

	// The $JSON block is the first (and only) file-level block, starting at
	// file offset 0, so index_file_position equals its total envelope+
	// payload length. Substituting the placeholder with a same-width,
	// zero-padded value keeps that length unchanged, avoiding a circular
	// dependency between the field's value and its own block length.
	jsonBlockLen := 32 + len(headerJSONTemplate)
	indexFilePosition := jsonBlockLen
	padded := fmt.Sprintf("%010d", indexFilePosition)
	if len(padded) != len(indexPlaceholder) {
		t.Fatalf("placeholder width mismatch: need %d digits", len(padded))
	}
	headerJSON := []byte(strings.Replace(headerJSONTemplate, indexPlaceholder, padded, 1))

	var w fixtureWriter
	w.block(jsonBlockName, headerJSON, true)
	if w.buf.Len() != indexFilePosition {
		t.Fatalf("internal fixture bug: json block length drifted, got %d want %d", w.buf.Len(), indexFilePosition)
	}

	track0 := bytes.Repeat([]byte{0xAB}, 1024)
	w.block(track0BlockName, track0, true)

	w.block(indexBlockName, []byte{}, true)
	indexStart := w.buf.Len()

	w.uint32(0) // reserved sector blocks
	w.uint32(1) // one data block
	payload := bytes.Repeat([]byte{0xCD}, 16)
	w.dataBlockElement(int64(indexStart+8+30), mrcrypto.MD5(payload), uint32(len(payload)), 1)
	w.buf.Write(payload)

	var offsetBuf [8]byte
	binary.LittleEndian.PutUint64(offsetBuf[:], 0) // $JSON block starts at file offset 0
	w.buf.Write(offsetBuf[:])
	w.buf.WriteString(MagicBytes)

	dir := t.TempDir()
	path := filepath.Join(dir, "full.mrimgx")
	if err := os.WriteFile(path, w.buf.Bytes(), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestReadBackupFileUnencryptedFull(t *testing.T) {
	path := buildUnencryptedFullFixture(t)

	f, err := ReadBackupFile(path, "", true)
	if err != nil {
		t.Fatalf("ReadBackupFile: %v", err)
	}

	if len(f.Disks) != 1 {
		t.Fatalf("expected 1 disk, got %d", len(f.Disks))
	}
	if len(f.Disks[0].Track0) != 1024 {
		t.Fatalf("expected track0 of length 1024, got %d", len(f.Disks[0].Track0))
	}
	partitions := f.Disks[0].Partitions
	if len(partitions) != 1 {
		t.Fatalf("expected 1 partition, got %d", len(partitions))
	}
	if len(partitions[0].DataBlocks) != 1 {
		t.Fatalf("expected 1 data block, got %d", len(partitions[0].DataBlocks))
	}
}

func TestReadBackupFileBadMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.mrimgx")
	if err := os.WriteFile(path, append(make([]byte, 8), []byte("MACRIUM_XXXX")...), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadBackupFile(path, "", true); err == nil {
		t.Fatalf("expected bad magic error")
	}
}
