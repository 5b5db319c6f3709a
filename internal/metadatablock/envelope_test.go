package metadatablock

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/autobrr/mrimgx-restore/internal/binreader"
	"github.com/autobrr/mrimgx-restore/internal/mrcrypto"
)

func writeEnvelopeAndPayload(t *testing.T, path string, name string, flags Flags, payload []byte) {
	t.Helper()
	hash := mrcrypto.MD5(payload)
	var buf []byte
	buf = append(buf, []byte(name)...)
	length := uint32(len(payload))
	buf = append(buf, byte(length), byte(length>>8), byte(length>>16), byte(length>>24))
	buf = append(buf, hash[:]...)
	buf = append(buf, byte(flags), 0, 0, 0)
	buf = append(buf, payload...)
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
}

func TestReadBlockPlain(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "block.bin")
	payload := []byte("hello metadata block")
	writeEnvelopeAndPayload(t, path, NameJSON, FlagLastBlock, payload)

	r, err := binreader.Open(path, true)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()

	env, err := ReadEnvelope(r)
	if err != nil {
		t.Fatalf("ReadEnvelope: %v", err)
	}
	if env.NameString() != NameJSON {
		t.Fatalf("got name %q", env.NameString())
	}
	if !env.Flags.Last() {
		t.Fatalf("expected last_block flag set")
	}

	got, err := ReadBlock(r, env, nil)
	if err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("got %q want %q", got, payload)
	}
}

func TestReadBlockHashMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "block.bin")
	payload := []byte("tampered")
	writeEnvelopeAndPayload(t, path, NameBitmap, FlagLastBlock, payload)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	// Corrupt the payload after the hash was computed over the original bytes.
	data[len(data)-1] ^= 0xFF
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("rewrite fixture: %v", err)
	}

	r, err := binreader.Open(path, true)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()

	env, err := ReadEnvelope(r)
	if err != nil {
		t.Fatalf("ReadEnvelope: %v", err)
	}
	if _, err := ReadBlock(r, env, nil); err == nil {
		t.Fatalf("expected hash mismatch error")
	}
}

func TestSkipBlockAdvancesByLength(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "block.bin")
	payload := []byte("skip me")
	writeEnvelopeAndPayload(t, path, NameFAT, 0, payload)
	// trailing marker so we can confirm the seek landed exactly past the payload
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	if _, err := f.Write([]byte("END")); err != nil {
		t.Fatalf("append marker: %v", err)
	}
	f.Close()

	r, err := binreader.Open(path, true)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()

	env, err := ReadEnvelope(r)
	if err != nil {
		t.Fatalf("ReadEnvelope: %v", err)
	}
	if err := SkipBlock(r, env); err != nil {
		t.Fatalf("SkipBlock: %v", err)
	}
	marker := make([]byte, 3)
	if err := r.ReadFull(marker); err != nil {
		t.Fatalf("read marker: %v", err)
	}
	if string(marker) != "END" {
		t.Fatalf("seek landed wrong, got %q", marker)
	}
}
