package backupset

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

// minimalFixture builds one container file: either a full backup (one disk,
// one partition, the given data blocks) or a delta (delta_data_blocks
// overriding specific slots of that same partition).
type minimalFixture struct {
	imageID     string
	fileNumber  int
	deltaIndex  bool
	dataBlocks  [][]byte // full only
	deltaBlocks map[int][]byte
}

func writeFixture(t *testing.T, dir string, f minimalFixture) string {
	t.Helper()

	const indexPlaceholder = "0000000000"
	headerTemplate := fmt.Sprintf(`{
		"_header": {"imageid":%q,"file_number":%d,"index_file_position":%s,"delta_index":%v,"split_file":false},
		"_encryption": {"enable":false,"key_iterations":0,"hmac":""},
		"_compression": {"compression_level":"none"},
		"disks": [{
			"_header": {"disk_format":"mbr","disk_number":0},
			"_geometry": {"bytes_per_sector":512,"disk_size":1048576},
			"partitions": [{
				"_header": {"block_size":16,"partition_number":0},
				"_geometry": {"start":1048576,"boot_sector_offset":0},
				"_file_system": {"reserved_sectors_byte_length":0,"lcn0_offset":1048576,"start":1048576}
			}]
		}]
	}`, f.imageID, f.fileNumber, indexPlaceholder, f.deltaIndex)

	jsonBlockLen := 32 + len(headerTemplate)
	padded := fmt.Sprintf("%010d", jsonBlockLen)
	headerJSON := []byte(strings.Replace(headerTemplate, indexPlaceholder, padded, 1))

	var buf bytes.Buffer
	writeBlock := func(name string, payload []byte, last bool) {
		var flags byte
		if last {
			flags = 1
		}
		hash := mrcrypto.MD5(payload)
		buf.WriteString(name)
		var length [4]byte
		binary.LittleEndian.PutUint32(length[:], uint32(len(payload)))
		buf.Write(length[:])
		buf.Write(hash[:])
		buf.WriteByte(flags)
		buf.Write([]byte{0, 0, 0})
		buf.Write(payload)
	}
	writeUint32 := func(v uint32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		buf.Write(b[:])
	}

	writeBlock("$JSON   ", headerJSON, true)
	if buf.Len() != jsonBlockLen {
		t.Fatalf("json block length drifted: got %d want %d", buf.Len(), jsonBlockLen)
	}

	track0 := bytes.Repeat([]byte{0xAB}, 64)
	writeBlock("$TRACK0 ", track0, true)

	writeBlock("$INDEX  ", []byte{}, true)
	indexStart := buf.Len()

	writeUint32(0) // reserved sector blocks

	if f.deltaIndex {
		writeUint32(uint32(len(f.deltaBlocks)))
		// deterministic order: ascending block index
		indices := make([]int, 0, len(f.deltaBlocks))
		for idx := range f.deltaBlocks {
			indices = append(indices, idx)
		}
		for i := 0; i < len(indices); i++ {
			for j := i + 1; j < len(indices); j++ {
				if indices[j] < indices[i] {
					indices[i], indices[j] = indices[j], indices[i]
				}
			}
		}
		payloadOffset := indexStart + 4 + 4 + len(indices)*34
		var payloadBuf bytes.Buffer
		for _, idx := range indices {
			payload := f.deltaBlocks[idx]
			var rec [34]byte
			binary.LittleEndian.PutUint64(rec[0:8], uint64(payloadOffset+payloadBuf.Len()))
			md5 := mrcrypto.MD5(payload)
			copy(rec[8:24], md5[:])
			binary.LittleEndian.PutUint32(rec[24:28], uint32(len(payload)))
			binary.LittleEndian.PutUint16(rec[28:30], uint16(f.fileNumber))
			binary.LittleEndian.PutUint32(rec[30:34], uint32(idx))
			buf.Write(rec[:])
			payloadBuf.Write(payload)
		}
		buf.Write(payloadBuf.Bytes())
	} else {
		writeUint32(uint32(len(f.dataBlocks)))
		payloadOffset := indexStart + 4 + 4 + len(f.dataBlocks)*30
		var payloadBuf bytes.Buffer
		for _, payload := range f.dataBlocks {
			var rec [30]byte
			binary.LittleEndian.PutUint64(rec[0:8], uint64(payloadOffset+payloadBuf.Len()))
			md5 := mrcrypto.MD5(payload)
			copy(rec[8:24], md5[:])
			binary.LittleEndian.PutUint32(rec[24:28], uint32(len(payload)))
			binary.LittleEndian.PutUint16(rec[28:30], uint16(f.fileNumber))
			buf.Write(rec[:])
			payloadBuf.Write(payload)
		}
		buf.Write(payloadBuf.Bytes())
	}

	var offsetBuf [8]byte
	binary.LittleEndian.PutUint64(offsetBuf[:], 0)
	buf.Write(offsetBuf[:])
	buf.WriteString("MACRIUM_FILE")

	name := fmt.Sprintf("backup-%d.mrimgx", f.fileNumber)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("write fixture %s: %v", name, err)
	}
	return path
}

func TestDeltaOverlayScenario(t *testing.T) {
	dir := t.TempDir()
	const imageID = "0123456789abcdef"

	a := bytes.Repeat([]byte{0xA0}, 16)
	b := bytes.Repeat([]byte{0xB0}, 16)
	c := bytes.Repeat([]byte{0xC0}, 16)
	d := bytes.Repeat([]byte{0xD0}, 16)
	bPrime := bytes.Repeat([]byte{0xB1}, 16)
	dPrime := bytes.Repeat([]byte{0xD1}, 16)

	writeFixture(t, dir, minimalFixture{
		imageID:    imageID,
		fileNumber: 1,
		deltaIndex: false,
		dataBlocks: [][]byte{a, b, c, d},
	})
	deltaPath := writeFixture(t, dir, minimalFixture{
		imageID:     imageID,
		fileNumber:  2,
		deltaIndex:  true,
		deltaBlocks: map[int][]byte{1: bPrime, 3: dPrime},
	})

	set, err := Create(deltaPath, "", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer set.Close()

	restoration := set.LayoutForRestoration()
	blocks := restoration.Disks[0].Partitions[0].DataBlocks
	if len(blocks) != 4 {
		t.Fatalf("expected 4 resolved data blocks, got %d", len(blocks))
	}

	wantFileNumbers := []uint16{1, 2, 1, 2}
	for i, want := range wantFileNumbers {
		if blocks[i].FileNumber != want {
			t.Errorf("block %d: file number = %d, want %d", i, blocks[i].FileNumber, want)
		}
	}

	if _, err := set.FileHandle(1); err != nil {
		t.Errorf("expected file handle for full backup: %v", err)
	}
	if _, err := set.FileHandle(2); err != nil {
		t.Errorf("expected file handle for delta: %v", err)
	}
	if _, err := set.FileHandle(99); err == nil {
		t.Errorf("expected UnknownFileNumber for unreferenced file number")
	}
}

func TestDeltaOneBlockPastEndGrowsVectorByOne(t *testing.T) {
	dir := t.TempDir()
	const imageID = "11112222333344445"

	a := bytes.Repeat([]byte{0xA0}, 16)
	b := bytes.Repeat([]byte{0xB0}, 16)
	extra := bytes.Repeat([]byte{0xE0}, 16)

	writeFixture(t, dir, minimalFixture{
		imageID:    imageID,
		fileNumber: 1,
		deltaIndex: false,
		dataBlocks: [][]byte{a, b},
	})
	deltaPath := writeFixture(t, dir, minimalFixture{
		imageID:     imageID,
		fileNumber:  2,
		deltaIndex:  true,
		deltaBlocks: map[int][]byte{2: extra},
	})

	set, err := Create(deltaPath, "", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer set.Close()

	blocks := set.LayoutForRestoration().Disks[0].Partitions[0].DataBlocks
	if len(blocks) != 3 {
		t.Fatalf("expected vector to grow by exactly one slot, got %d blocks", len(blocks))
	}
}

func TestCreateFullOnlyIsNoOp(t *testing.T) {
	dir := t.TempDir()
	a := bytes.Repeat([]byte{0xA0}, 16)
	b := bytes.Repeat([]byte{0xB0}, 16)

	path := writeFixture(t, dir, minimalFixture{
		imageID:    "fedcba9876543210",
		fileNumber: 1,
		deltaIndex: false,
		dataBlocks: [][]byte{a, b},
	})

	set, err := Create(path, "", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer set.Close()

	blocks := set.LayoutForRestoration().Disks[0].Partitions[0].DataBlocks
	if len(blocks) != 2 {
		t.Fatalf("expected 2 data blocks, got %d", len(blocks))
	}
}
