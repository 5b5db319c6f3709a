// Package restore implements the disk restoration engine: selecting a disk
// from a resolved backup set, optionally rewriting its identity, and
// replaying its boot track, extended-partition records, reserved sectors,
// and data blocks onto a target device.
package restore

import (
	"time"

	"github.com/autobrr/mrimgx-restore/internal/backupset"
	"github.com/autobrr/mrimgx-restore/internal/binreader"
	"github.com/autobrr/mrimgx-restore/internal/diskid"
	"github.com/autobrr/mrimgx-restore/internal/layout"
	"github.com/autobrr/mrimgx-restore/internal/mrcrypto"
	"github.com/autobrr/mrimgx-restore/internal/restoreerr"
)

// Options configures a single disk restoration.
type Options struct {
	SourcePath string
	Password   string
	TargetPath string
	// DiskNumber selects which disk within the backup set to restore;
	// -1 means "the only/first disk" (the first disk of the resolved layout).
	DiskNumber int32
	KeepDiskID bool
}

// Stage names the phase a ProgressEvent was emitted from, for UI grouping.
type Stage string

const (
	StageTrack0          Stage = "track0"
	StageExtendedPartEPT Stage = "extended_partitions"
	StageReservedSectors Stage = "reserved_sectors"
	StageDataBlocks      Stage = "data_blocks"
)

// ProgressEvent reports cumulative bytes written against the backup's
// total estimated size.
type ProgressEvent struct {
	Stage        Stage
	BytesWritten uint64
	TotalBytes   uint64
	Elapsed      time.Duration
}

// ProgressFunc receives progress updates; implementations must not block.
type ProgressFunc func(ProgressEvent)

// Disk restores one disk from source's backup set onto target.
func Disk(opts Options, onProgress ProgressFunc) error {
	target, err := binreader.Open(opts.TargetPath, false)
	if err != nil {
		return err
	}
	defer target.Close()

	set, err := backupset.Create(opts.SourcePath, opts.Password, nil)
	if err != nil {
		return err
	}
	defer set.Close()

	backupLayout := set.LayoutForRestoration()
	if backupLayout.Header.SplitFile {
		return restoreerr.New(restoreerr.SplitFileNotTerminal, "cannot restore directly from a split file")
	}

	disk, err := selectDisk(backupLayout, opts.DiskNumber)
	if err != nil {
		return err
	}

	if !opts.KeepDiskID {
		if err := rewriteDiskID(disk); err != nil {
			return err
		}
	}

	total := calculateTotalBytes(disk)
	var written uint64
	start := time.Now()
	emit := func(stage Stage) {
		if onProgress != nil {
			onProgress(ProgressEvent{Stage: stage, BytesWritten: written, TotalBytes: total, Elapsed: time.Since(start)})
		}
	}

	if err := target.WriteAt(disk.Track0, 0); err != nil {
		return err
	}
	written += uint64(len(disk.Track0))
	emit(StageTrack0)

	if layout.ParseDiskFormat(disk.Header.DiskFormat) == layout.DiskFormatMBR {
		for _, ept := range disk.ExtendedPartitions {
			if err := target.WriteAt(ept.PartitionSector[:], int64(ept.Offset)); err != nil {
				return err
			}
			written += uint64(len(ept.PartitionSector))
		}
		emit(StageExtendedPartEPT)
	}

	crypto, err := cryptoFor(backupLayout)
	if err != nil {
		return err
	}

	for p := range disk.Partitions {
		partition := &disk.Partitions[p]
		if err := restorePartition(target, set, backupLayout, disk, partition, crypto, &written, emit); err != nil {
			return err
		}
	}

	return nil
}

func selectDisk(backupLayout *layout.File, diskNumber int32) (*layout.DiskLayout, error) {
	if diskNumber == -1 {
		if len(backupLayout.Disks) == 0 {
			return nil, restoreerr.New(restoreerr.UnknownDisk, "backup set contains no disks")
		}
		return &backupLayout.Disks[0], nil
	}
	for i := range backupLayout.Disks {
		if backupLayout.Disks[i].Header.DiskNumber == diskNumber {
			return &backupLayout.Disks[i], nil
		}
	}
	return nil, restoreerr.New(restoreerr.UnknownDisk, "no disk with the requested disk number")
}

func rewriteDiskID(disk *layout.DiskLayout) error {
	switch layout.ParseDiskFormat(disk.Header.DiskFormat) {
	case layout.DiskFormatGPT:
		return diskid.RewriteGPT(disk.Track0, uint32(disk.Geometry.BytesPerSector))
	default:
		return diskid.RewriteMBR(disk.Track0)
	}
}

func cryptoFor(backupLayout *layout.File) (*dataBlockCrypto, error) {
	if !backupLayout.Encryption.Enable {
		return &dataBlockCrypto{Compressed: layout.ParseCompressionLevel(backupLayout.Compression.Level) != layout.CompressionNone}, nil
	}
	variantCode, err := backupLayout.Encryption.AESVariantCode()
	if err != nil {
		return nil, restoreerr.Wrap(restoreerr.CryptoInit, "aes variant", err)
	}
	return &dataBlockCrypto{
		Variant:    codeToVariant(variantCode),
		Key:        backupLayout.Encryption.DerivedKey,
		ImageID:    backupLayout.Header.ImageIDBinary,
		Compressed: layout.ParseCompressionLevel(backupLayout.Compression.Level) != layout.CompressionNone,
	}, nil
}

func codeToVariant(code int) mrcrypto.AESVariant {
	switch code {
	case 10:
		return mrcrypto.AES128
	case 12:
		return mrcrypto.AES192
	case 14:
		return mrcrypto.AES256
	default:
		return mrcrypto.AESNone
	}
}

// restorePartition writes one partition's reserved sectors, then its data
// blocks, to target.
func restorePartition(target *binreader.Reader, set *backupset.Set, backupLayout *layout.File, disk *layout.DiskLayout, partition *layout.PartitionLayout, crypto *dataBlockCrypto, written *uint64, emit func(Stage)) error {
	diskNumber := uint16(disk.Header.DiskNumber)
	partitionNumber := uint16(partition.Header.PartitionNumber)

	if partition.FileSystem.ReservedSectorsByteLength > 0 {
		totalToWrite := partition.FileSystem.ReservedSectorsByteLength
		var bytesWritten uint32
		offset := int64(partition.Geometry.Start + partition.Geometry.BootSectorOffset)

		for index, block := range partition.ReservedSectorsBlocks {
			fh, err := set.FileHandle(block.FileNumber)
			if err != nil {
				return err
			}
			decoded, err := decodeDataBlock(fh.Reader, block, crypto, diskNumber, partitionNumber, uint32(index))
			if err != nil {
				return err
			}
			if decoded == nil {
				continue
			}
			remaining := totalToWrite - bytesWritten
			toWrite := uint32(len(decoded))
			if toWrite > remaining {
				toWrite = remaining
			}
			if err := target.WriteAt(decoded[:toWrite], offset); err != nil {
				return err
			}
			offset += int64(toWrite)
			bytesWritten += toWrite
		}
		*written += uint64(partition.FileSystem.ReservedSectorsByteLength)
		emit(StageReservedSectors)
	}

	lcn0Start := partition.Geometry.Start + (partition.FileSystem.LCN0Offset - partition.FileSystem.Start)

	for blockIndex, block := range partition.DataBlocks {
		fh, err := set.FileHandle(block.FileNumber)
		if err != nil {
			return err
		}
		decoded, err := decodeDataBlock(fh.Reader, block, crypto, diskNumber, partitionNumber, uint32(blockIndex))
		if err != nil {
			return err
		}
		if decoded == nil || len(decoded) == 0 {
			continue
		}
		*written += uint64(partition.Header.BlockSize)
		offset := int64(lcn0Start + uint64(partition.Header.BlockSize)*uint64(blockIndex))
		if err := target.WriteAt(decoded, offset); err != nil {
			return err
		}
		emit(StageDataBlocks)
	}

	return nil
}

// calculateTotalBytes sums a disk's track0/EPT footprint, reserved-sector
// budget, and populated data-block sizes across all of its partitions, for
// progress reporting.
func calculateTotalBytes(disk *layout.DiskLayout) uint64 {
	total := uint64(len(disk.Track0))
	for _, ept := range disk.ExtendedPartitions {
		total += uint64(len(ept.PartitionSector))
	}
	for _, partition := range disk.Partitions {
		total += uint64(partition.FileSystem.ReservedSectorsByteLength)
		for _, block := range partition.DataBlocks {
			if block.BlockLength != 0 {
				total += uint64(partition.Header.BlockSize)
			}
		}
	}
	return total
}
