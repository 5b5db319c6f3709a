package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateSourcePathRejectsWrongExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "backup.txt")
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if err := validateSourcePath(path); err == nil {
		t.Fatalf("expected error for non-container extension")
	}
}

func TestValidateSourcePathRejectsMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "missing.mrimgx")
	if err := validateSourcePath(path); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidateSourcePathAcceptsKnownExtensionsCaseInsensitively(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"backup.mrimgx", "backup.MRBAKX"} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
		if err := validateSourcePath(path); err != nil {
			t.Fatalf("validateSourcePath(%q): %v", name, err)
		}
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCommand()
	for _, name := range []string{"restore", "describe", "dump-json", "update"} {
		if _, _, err := root.Find([]string{name}); err != nil {
			t.Fatalf("Find(%q): %v", name, err)
		}
	}
}
