// Package container implements the top-level container parser: footer
// detection, JSON layout extraction, per-disk/per-partition metadata walk,
// and reserved-sector/data-block index ingestion.
package container

import (
	"encoding/binary"
	"strconv"

	"github.com/autobrr/mrimgx-restore/internal/binreader"
	"github.com/autobrr/mrimgx-restore/internal/layout"
	"github.com/autobrr/mrimgx-restore/internal/metadatablock"
	"github.com/autobrr/mrimgx-restore/internal/mrcrypto"
	"github.com/autobrr/mrimgx-restore/internal/restoreerr"
)

// MagicBytes is the 12-byte ASCII magic that closes every non-split
// container, immediately following the 8-byte header offset.
const MagicBytes = "MACRIUM_FILE"

const footerTrailerSize = 8 + len(MagicBytes)

// ReadBackupFile opens path and returns its parsed Layout. When loadIndex
// is false, the per-partition reserved-sector and data-block index arrays
// are skipped rather than allocated — used by the backup-set resolver's
// cheap first pass over sibling files when resolving a backup set. When
// encryption is enabled and loadIndex is true, password is validated before
// the index region is read.
func ReadBackupFile(path string, password string, loadIndex bool) (*layout.File, error) {
	r, err := binreader.Open(path, true)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	headerOffset, err := readFooter(r)
	if err != nil {
		return nil, err
	}

	if err := r.Seek(int64(headerOffset), binreader.Begin); err != nil {
		return nil, err
	}

	rawJSON, err := readFileMetadata(r)
	if err != nil {
		return nil, err
	}

	file, err := layout.Parse(rawJSON)
	if err != nil {
		return nil, err
	}
	file.FileName = path

	if file.Encryption.Enable && loadIndex {
		if err := file.Header.SetImageIDBinary(); err != nil {
			return nil, restoreerr.Wrap(restoreerr.JsonParse, "decode imageid", err)
		}
		if err := file.Encryption.ConvertHMACToBinary(); err != nil {
			return nil, restoreerr.Wrap(restoreerr.JsonParse, "decode hmac", err)
		}
		key, err := mrcrypto.ValidatePassword(
			file.Header.ImageIDBinary,
			password,
			file.Encryption.KeyIterations,
			file.Encryption.HMACBinary,
		)
		if err != nil {
			return nil, err
		}
		file.Encryption.DerivedKey = key
	}

	if err := r.Seek(int64(file.Header.IndexFilePosition), binreader.Begin); err != nil {
		return nil, err
	}

	if !file.Header.SplitFile {
		keyMaterial, err := keyMaterialFor(file)
		if err != nil {
			return nil, err
		}
		for d := range file.Disks {
			if err := readDiskMetadata(r, keyMaterial, &file.Disks[d]); err != nil {
				return nil, err
			}
			for p := range file.Disks[d].Partitions {
				if err := readPartitionIndex(r, keyMaterial, file.Header.DeltaIndex, loadIndex, &file.Disks[d].Partitions[p]); err != nil {
					return nil, err
				}
			}
		}
	}

	return file, nil
}

func keyMaterialFor(file *layout.File) (*metadatablock.KeyMaterial, error) {
	if !file.Encryption.Enable {
		return nil, nil
	}
	variantCode, err := file.Encryption.AESVariantCode()
	if err != nil {
		return nil, restoreerr.Wrap(restoreerr.CryptoInit, "aes variant", err)
	}
	return &metadatablock.KeyMaterial{
		AESVariant: codeToVariant(variantCode),
		Key:        file.Encryption.DerivedKey[:],
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

// readFooter seeks to the last 20 bytes, reads the 8-byte little-endian
// header offset and 12-byte magic, and verifies the magic.
func readFooter(r *binreader.Reader) (uint64, error) {
	if err := r.Seek(-int64(footerTrailerSize), binreader.End); err != nil {
		return 0, err
	}
	var offsetBuf [8]byte
	if err := r.ReadFull(offsetBuf[:]); err != nil {
		return 0, err
	}
	magic := make([]byte, len(MagicBytes))
	if err := r.ReadFull(magic); err != nil {
		return 0, err
	}
	if string(magic) != MagicBytes {
		return 0, restoreerr.New(restoreerr.BadMagic, "not a recognized backup container")
	}
	return binary.LittleEndian.Uint64(offsetBuf[:]), nil
}

// readFileMetadata walks metadata blocks until last_block, capturing the
// $JSON   payload.
func readFileMetadata(r *binreader.Reader) ([]byte, error) {
	var jsonPayload []byte
	found := false

	for {
		env, err := metadatablock.ReadEnvelope(r)
		if err != nil {
			return nil, err
		}
		if env.NameString() == metadatablock.NameJSON {
			// The file-level JSON block is never encrypted/compressed with
			// per-file key material (it precedes password validation), so
			// it is read with no key material, matching the original's
			// order of operations in file_reader.cpp.
			payload, err := metadatablock.ReadBlock(r, env, nil)
			if err != nil {
				return nil, err
			}
			jsonPayload = payload
			found = true
		} else {
			if err := metadatablock.SkipBlock(r, env); err != nil {
				return nil, err
			}
		}
		if env.Flags.Last() {
			break
		}
	}

	if !found {
		return nil, restoreerr.New(restoreerr.MissingJson, "no $JSON block found")
	}
	return jsonPayload, nil
}

// readDiskMetadata walks per-disk metadata blocks until last_block,
// capturing $TRACK0 (required) and $EPT (optional).
func readDiskMetadata(r *binreader.Reader, km *metadatablock.KeyMaterial, disk *layout.DiskLayout) error {
	track0Found := false

	for {
		env, err := metadatablock.ReadEnvelope(r)
		if err != nil {
			return err
		}
		switch env.NameString() {
		case metadatablock.NameTrack0:
			if env.BlockLength > 0 {
				payload, err := metadatablock.ReadBlock(r, env, km)
				if err != nil {
					return err
				}
				disk.Track0 = payload
				track0Found = true
			}
		case metadatablock.NameEPT:
			if env.BlockLength > 0 {
				payload, err := metadatablock.ReadBlock(r, env, km)
				if err != nil {
					return err
				}
				parts, err := decodeExtendedPartitions(payload)
				if err != nil {
					return err
				}
				disk.ExtendedPartitions = parts
			}
		default:
			if err := metadatablock.SkipBlock(r, env); err != nil {
				return err
			}
		}
		if env.Flags.Last() {
			break
		}
	}

	if !track0Found {
		return restoreerr.New(restoreerr.MissingTrack0, "no $TRACK0 block found for disk "+strconv.Itoa(int(disk.Header.DiskNumber)))
	}
	return nil
}

// decodeExtendedPartitions decodes the $EPT payload: a 4-byte count
// followed by that many packed ExtendedPartition records.
func decodeExtendedPartitions(payload []byte) ([]layout.ExtendedPartition, error) {
	const recordSize = 8 + 512
	if len(payload) < 4 {
		return nil, restoreerr.New(restoreerr.JsonParse, "$EPT payload too short for count")
	}
	count := binary.LittleEndian.Uint32(payload[0:4])
	want := 4 + int(count)*recordSize
	if len(payload) < want {
		return nil, restoreerr.New(restoreerr.JsonParse, "$EPT payload shorter than declared count")
	}
	out := make([]layout.ExtendedPartition, count)
	cursor := payload[4:]
	for i := range out {
		out[i].Offset = binary.LittleEndian.Uint64(cursor[0:8])
		copy(out[i].PartitionSector[:], cursor[8:8+512])
		cursor = cursor[recordSize:]
	}
	return out, nil
}

// readPartitionIndex walks partition metadata blocks until $INDEX  ,
// validates it, repositions to its payload start, then reads the
// reserved-sector and data-block index arrays.
func readPartitionIndex(r *binreader.Reader, km *metadatablock.KeyMaterial, deltaIndex bool, loadIndex bool, partition *layout.PartitionLayout) error {
	indexFound := false

	for {
		env, err := metadatablock.ReadEnvelope(r)
		if err != nil {
			return err
		}
		switch env.NameString() {
		case metadatablock.NameBitmap:
			if _, err := metadatablock.ReadBlock(r, env, km); err != nil {
				return err
			}
		case metadatablock.NameIndex:
			if _, err := metadatablock.ReadBlock(r, env, km); err != nil {
				return err
			}
			// $INDEX   is always the last block in a partition's metadata;
			// reposition to the start of its payload so the raw index
			// arrays below can be read directly, matching the original's
			// setFilePointer(-block_Length) dance.
			if err := r.Seek(-int64(env.BlockLength), binreader.Current); err != nil {
				return err
			}
			indexFound = true
		default:
			if err := metadatablock.SkipBlock(r, env); err != nil {
				return err
			}
		}
		if indexFound || env.Flags.Last() {
			break
		}
	}

	if !indexFound {
		return restoreerr.New(restoreerr.MissingIndex, "no $INDEX block found for partition "+strconv.Itoa(int(partition.Header.PartitionNumber)))
	}

	return readIndexArrays(r, deltaIndex, loadIndex, partition)
}

// readIndexArrays reads the index-array wire format directly following the
// $INDEX   payload start.
func readIndexArrays(r *binreader.Reader, deltaIndex bool, loadIndex bool, partition *layout.PartitionLayout) error {
	reservedCount, err := readUint32(r)
	if err != nil {
		return err
	}
	if reservedCount > 0 {
		if !loadIndex {
			if err := r.Seek(int64(reservedCount)*dataBlockElementSize, binreader.Current); err != nil {
				return err
			}
		} else {
			blocks, err := readDataBlockElements(r, int(reservedCount))
			if err != nil {
				return err
			}
			partition.ReservedSectorsBlocks = blocks
		}
	}

	dataCount, err := readUint32(r)
	if err != nil {
		return err
	}
	if dataCount == 0 {
		return nil
	}

	if !loadIndex {
		elementSize := dataBlockElementSize
		if deltaIndex {
			elementSize = deltaDataBlockSize
		}
		return r.Seek(int64(dataCount)*int64(elementSize), binreader.Current)
	}

	if deltaIndex {
		blocks, err := readDeltaDataBlocks(r, int(dataCount))
		if err != nil {
			return err
		}
		partition.DeltaDataBlocks = blocks
		return nil
	}

	blocks, err := readDataBlockElements(r, int(dataCount))
	if err != nil {
		return err
	}
	partition.DataBlocks = blocks
	return nil
}

const (
	dataBlockElementSize = 30
	deltaDataBlockSize   = 34
)

func readUint32(r *binreader.Reader) (uint32, error) {
	var buf [4]byte
	if err := r.ReadFull(buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func readDataBlockElements(r *binreader.Reader, count int) ([]layout.DataBlockIndexElement, error) {
	buf := make([]byte, count*dataBlockElementSize)
	if err := r.ReadFull(buf); err != nil {
		return nil, err
	}
	out := make([]layout.DataBlockIndexElement, count)
	for i := range out {
		decodeDataBlockElement(buf[i*dataBlockElementSize:], &out[i])
	}
	return out, nil
}

func readDeltaDataBlocks(r *binreader.Reader, count int) ([]layout.DeltaDataBlock, error) {
	buf := make([]byte, count*deltaDataBlockSize)
	if err := r.ReadFull(buf); err != nil {
		return nil, err
	}
	out := make([]layout.DeltaDataBlock, count)
	for i := range out {
		rec := buf[i*deltaDataBlockSize:]
		decodeDataBlockElement(rec, &out[i].DataBlock)
		out[i].BlockIndex = binary.LittleEndian.Uint32(rec[dataBlockElementSize : dataBlockElementSize+4])
	}
	return out, nil
}

func decodeDataBlockElement(buf []byte, out *layout.DataBlockIndexElement) {
	out.FilePosition = int64(binary.LittleEndian.Uint64(buf[0:8]))
	copy(out.MD5Hash[:], buf[8:24])
	out.BlockLength = binary.LittleEndian.Uint32(buf[24:28])
	out.FileNumber = binary.LittleEndian.Uint16(buf[28:30])
}

