// Package restore is the public API facade for restoring a Macrium-style
// disk-image backup container onto a target device or raw image file. It
// aggregates internal/container, internal/backupset, and internal/restore
// behind a single call so callers never touch the lower layers directly.
package restore

import (
	"time"

	"github.com/autobrr/mrimgx-restore/internal/backupset"
	"github.com/autobrr/mrimgx-restore/internal/config"
	"github.com/autobrr/mrimgx-restore/internal/container"
	internalrestore "github.com/autobrr/mrimgx-restore/internal/restore"
	"github.com/autobrr/mrimgx-restore/internal/restoreerr"
)

// Stage names a coarse progress phase, re-exported from internal/restore so
// callers need not import it directly.
type Stage = internalrestore.Stage

const (
	StageTrack0          = internalrestore.StageTrack0
	StageExtendedPartEPT = internalrestore.StageExtendedPartEPT
	StageReservedSectors = internalrestore.StageReservedSectors
	StageDataBlocks      = internalrestore.StageDataBlocks
)

// ProgressEvent reports cumulative bytes written against the backup's
// estimated total.
type ProgressEvent struct {
	Stage        Stage
	BytesWritten uint64
	TotalBytes   uint64
	Elapsed      time.Duration
}

// Options configures one restore run.
type Options struct {
	// SourcePath names any file in the backup set (full or delta); the
	// rest of the set is discovered by directory enumeration.
	SourcePath string
	Password   string
	TargetPath string
	// DiskNumber selects which disk to restore; config.DiskNumberAuto
	// (-1) restores the only/first disk.
	DiskNumber int32
	KeepDiskID bool
	OnProgress func(ProgressEvent)
}

// Result summarizes a completed restore.
type Result struct {
	DiskNumber   int32
	BytesWritten uint64
	Elapsed      time.Duration
}

// Run resolves source's backup set and restores one disk onto TargetPath.
func Run(options Options) (Result, error) {
	if options.SourcePath == "" {
		return Result{}, restoreerr.New(restoreerr.BadArgument, "source path is required")
	}
	if options.TargetPath == "" {
		return Result{}, restoreerr.New(restoreerr.BadArgument, "target path is required")
	}

	opts := config.Default()
	opts.Password = options.Password
	opts.TargetPath = options.TargetPath
	opts.DiskNumber = options.DiskNumber
	opts.KeepDiskID = options.KeepDiskID

	start := time.Now()
	var lastEvent internalrestore.ProgressEvent
	onProgress := func(e internalrestore.ProgressEvent) {
		lastEvent = e
		if options.OnProgress != nil {
			options.OnProgress(ProgressEvent{
				Stage:        e.Stage,
				BytesWritten: e.BytesWritten,
				TotalBytes:   e.TotalBytes,
				Elapsed:      e.Elapsed,
			})
		}
	}

	err := internalrestore.Disk(internalrestore.Options{
		SourcePath: options.SourcePath,
		Password:   opts.Password,
		TargetPath: opts.TargetPath,
		DiskNumber: opts.DiskNumber,
		KeepDiskID: opts.KeepDiskID,
	}, onProgress)
	if err != nil {
		return Result{}, err
	}

	diskNumber := options.DiskNumber
	if diskNumber == config.DiskNumberAuto {
		entry, err := container.ReadBackupFile(options.SourcePath, options.Password, true)
		if err != nil {
			return Result{}, err
		}
		if len(entry.Disks) > 0 {
			diskNumber = entry.Disks[0].Header.DiskNumber
		}
	}

	return Result{
		DiskNumber:   diskNumber,
		BytesWritten: lastEvent.BytesWritten,
		Elapsed:      time.Since(start),
	}, nil
}

// Describe is the informational counterpart to Run: what Inspect reports
// from one backup file's own metadata, read without writing anything.
type Describe struct {
	ImageID    string
	FileNumber uint16
	DeltaIndex bool
	SplitFile  bool
	Disks      []DiskDescribe
	RawJSON    string
}

// DiskDescribe summarizes one disk entry for reporting.
type DiskDescribe struct {
	DiskNumber int32
	DiskFormat string
	Partitions int
	SizeBytes  uint64
}

// Inspect reads sourcePath's own container metadata (not the full resolved
// backup-set overlay — just the entry file itself) for reporting.
func Inspect(sourcePath, password string) (Describe, error) {
	file, err := container.ReadBackupFile(sourcePath, password, false)
	if err != nil {
		return Describe{}, err
	}

	out := Describe{
		ImageID:    file.Header.ImageID,
		FileNumber: file.Header.FileNumber,
		DeltaIndex: file.Header.DeltaIndex,
		SplitFile:  file.Header.SplitFile,
		RawJSON:    file.RawJSON,
	}
	for _, disk := range file.Disks {
		out.Disks = append(out.Disks, DiskDescribe{
			DiskNumber: disk.Header.DiskNumber,
			DiskFormat: disk.Header.DiskFormat,
			Partitions: len(disk.Partitions),
			SizeBytes:  disk.Geometry.DiskSize,
		})
	}
	return out, nil
}

// ResolveSet opens the full backup set rooted at sourcePath (following the
// chain of prior fulls/deltas) and returns its effective, fully-resolved
// layout without restoring anything — used by -j to dump the merged view
// rather than just the entry file's own JSON.
func ResolveSet(sourcePath, password string) (*backupset.Set, error) {
	return backupset.Create(sourcePath, password, nil)
}
