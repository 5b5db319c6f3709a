// Package backupset resolves the chain of full and delta backup files that
// together describe one restorable point, merging their per-partition data
// block indexes into a single effective index and mapping every resolved
// block back to the file it actually lives in.
package backupset

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/autobrr/mrimgx-restore/internal/binreader"
	"github.com/autobrr/mrimgx-restore/internal/container"
	"github.com/autobrr/mrimgx-restore/internal/layout"
	"github.com/autobrr/mrimgx-restore/internal/restoreerr"
)

// FileHandle is one physical backup file participating in the set, opened
// for random-access reads during restoration.
type FileHandle struct {
	FileNumber uint16
	Path       string
	Reader     *binreader.Reader
}

// Set is a resolved backup chain: the merged layout to restore plus every
// file handle its data blocks can reference.
type Set struct {
	restoration *layout.File
	handles     map[uint16]*FileHandle
}

// candidate is the cheap, unauthenticated metadata read from one sibling
// file: enough to decide whether it belongs in the chain without paying for
// password validation or the full index read.
type candidate struct {
	path  string
	entry *layout.File
}

// Create resolves the backup set that path belongs to: it enumerates sibling
// files in the same directory sharing path's image ID, walks the ancestor
// chain from the nearest full backup up to path itself, and overlays each
// delta's changed blocks onto the full's index in oldest-to-newest order so
// the newest delta's copy of a block always wins.
func Create(path string, password string, logger *zap.Logger) (*Set, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	entry, err := container.ReadBackupFile(path, password, true)
	if err != nil {
		return nil, err
	}

	siblings, err := scanSiblings(path, entry.Header.ImageID, logger)
	if err != nil {
		return nil, err
	}

	chain := selectChain(siblings, entry.Header.FileNumber)
	if len(chain) == 0 {
		return nil, restoreerr.New(restoreerr.NoFullBackup, "no full backup found for image "+entry.Header.ImageID)
	}

	handles := make(map[uint16]*FileHandle)
	layouts := make([]*layout.File, 0, len(chain))
	for _, c := range chain {
		var f *layout.File
		if c.path == path {
			f = entry
		} else {
			f, err = container.ReadBackupFile(c.path, password, true)
			if err != nil {
				closeHandles(handles)
				return nil, err
			}
		}
		layouts = append(layouts, f)

		r, err := binreader.Open(c.path, true)
		if err != nil {
			closeHandles(handles)
			return nil, err
		}
		fh := &FileHandle{FileNumber: f.Header.FileNumber, Path: c.path, Reader: r}
		handles[f.Header.FileNumber] = fh
		for _, alias := range f.Header.MergedFiles {
			handles[uint16(alias)] = fh
		}
	}

	restoration := layouts[len(layouts)-1]
	base := layouts[0]
	var intermediateDeltas []*layout.File
	if len(layouts) > 1 {
		intermediateDeltas = layouts[1 : len(layouts)-1]
	}
	mergeDataBlocks(restoration, base, intermediateDeltas)

	return &Set{restoration: restoration, handles: handles}, nil
}

// scanSiblings reads every file in path's directory sharing its extension,
// keeping only those whose image ID matches. Files that fail to open or
// parse are logged and skipped rather than treated as fatal: a directory may
// legitimately contain unrelated or foreign-image backup files.
func scanSiblings(path string, imageID string, logger *zap.Logger) ([]candidate, error) {
	dir := filepath.Dir(path)
	ext := strings.ToLower(filepath.Ext(path))

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, restoreerr.Wrap(restoreerr.IoError, "read backup directory", err)
	}

	var out []candidate
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.ToLower(filepath.Ext(name)) != ext {
			continue
		}
		siblingPath := filepath.Join(dir, name)

		f, err := container.ReadBackupFile(siblingPath, "", false)
		if err != nil {
			logger.Warn("skipping unreadable sibling backup file", zap.String("path", siblingPath), zap.Error(err))
			continue
		}
		if f.Header.ImageID != imageID {
			continue
		}
		out = append(out, candidate{path: siblingPath, entry: f})
	}
	return out, nil
}

// selectChain picks, from siblings sharing an image ID, the ancestor chain
// ending at entryFileNumber: every candidate whose file number is no newer
// than the target, sorted oldest first, truncated to start at the nearest
// preceding full backup.
func selectChain(siblings []candidate, entryFileNumber uint16) []candidate {
	var inRange []candidate
	for _, c := range siblings {
		if c.entry.Header.FileNumber <= entryFileNumber {
			inRange = append(inRange, c)
		}
	}
	sort.Slice(inRange, func(i, j int) bool {
		return inRange[i].entry.Header.FileNumber < inRange[j].entry.Header.FileNumber
	})

	fullIdx := -1
	for i, c := range inRange {
		if !c.entry.Header.DeltaIndex && !c.entry.Header.SplitFile {
			fullIdx = i
		}
	}
	if fullIdx == -1 {
		return nil
	}
	return inRange[fullIdx:]
}

// mergeDataBlocks overlays each intermediate delta's changed blocks onto the
// full backup's per-partition data block index, oldest to newest, and stores
// the result on restoration (which is the entry file itself — already
// carrying its own metadata/track0/partition headers, only missing a
// resolved data block index if it is itself a delta).
func mergeDataBlocks(restoration *layout.File, base *layout.File, deltas []*layout.File) {
	for d := range restoration.Disks {
		if d >= len(base.Disks) {
			continue
		}
		for p := range restoration.Disks[d].Partitions {
			restPart := &restoration.Disks[d].Partitions[p]
			basePart := findPartition(base.Disks[d].Partitions, restPart.Header.PartitionNumber)
			if basePart == nil {
				continue
			}

			merged := make([]layout.DataBlockIndexElement, len(basePart.DataBlocks))
			copy(merged, basePart.DataBlocks)

			for _, delta := range deltas {
				if d >= len(delta.Disks) {
					continue
				}
				deltaPart := findPartition(delta.Disks[d].Partitions, restPart.Header.PartitionNumber)
				if deltaPart == nil {
					continue
				}
				for _, db := range deltaPart.DeltaDataBlocks {
					idx := int(db.BlockIndex)
					for idx >= len(merged) {
						merged = append(merged, layout.DataBlockIndexElement{})
					}
					merged[idx] = db.DataBlock
				}
			}

			// restoration itself may be a delta and thus carry its own
			// delta_data_blocks too; apply them last since they are the
			// newest in the chain.
			for _, db := range restPart.DeltaDataBlocks {
				idx := int(db.BlockIndex)
				for idx >= len(merged) {
					merged = append(merged, layout.DataBlockIndexElement{})
				}
				merged[idx] = db.DataBlock
			}

			restPart.DataBlocks = merged
		}
	}
}

func findPartition(partitions []layout.PartitionLayout, number int32) *layout.PartitionLayout {
	for i := range partitions {
		if partitions[i].Header.PartitionNumber == number {
			return &partitions[i]
		}
	}
	return nil
}

func closeHandles(handles map[uint16]*FileHandle) {
	seen := make(map[*FileHandle]bool)
	for _, fh := range handles {
		if seen[fh] {
			continue
		}
		seen[fh] = true
		fh.Reader.Close()
	}
}

// FileHandle returns the open reader for fileNumber, including file numbers
// reached only through a merged_files alias.
func (s *Set) FileHandle(fileNumber uint16) (*FileHandle, error) {
	fh, ok := s.handles[fileNumber]
	if !ok {
		return nil, restoreerr.New(restoreerr.UnknownFileNumber, "file number not present in backup set")
	}
	return fh, nil
}

// LayoutForRestoration returns the effective layout to restore: the entry
// file's own disk/partition metadata with every partition's data block index
// already resolved against its full+delta ancestor chain.
func (s *Set) LayoutForRestoration() *layout.File {
	return s.restoration
}

// Close closes every distinct file handle opened for this set.
func (s *Set) Close() error {
	closeHandles(s.handles)
	return nil
}
