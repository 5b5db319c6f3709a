// Package layout holds the typed representation of a container's JSON
// layout plus the binary index structures appended after it. Field names
// and enum spellings match the container format's own JSON schema; this
// package never evaluates or executes any of it.
package layout

import "encoding/json"

// DataBlockIndexElement locates one physical data block: which file holds
// it, where, how long it is on disk, and the plaintext MD5 it must decode
// to. On disk this is a packed 30-byte little-endian record.
type DataBlockIndexElement struct {
	FilePosition int64
	MD5Hash      [16]byte
	BlockLength  uint32
	FileNumber   uint16
}

// DeltaDataBlock supersedes one logical slot of a base partition's
// DataBlockIndexElement vector. On disk this is a packed 34-byte
// little-endian record (a DataBlockIndexElement followed by the index).
type DeltaDataBlock struct {
	DataBlock  DataBlockIndexElement
	BlockIndex uint32
}

// ExtendedPartition is one packed record from the optional $EPT block: an
// MBR extended-partition boot sector captured verbatim plus the on-disk
// offset it must be replayed to.
type ExtendedPartition struct {
	Offset          uint64
	PartitionSector [512]byte
}

// FileHistory names one prior file in a partition's backup chain, as
// recorded in the JSON. Sibling discovery does not use it (it enumerates
// the directory, see internal/backupset) and the describe command does not
// print it.
type FileHistory struct {
	FileName   string `json:"file_name"`
	FileNumber int32  `json:"file_number"`
}

// Header is the file-level header of a container.
type Header struct {
	ImageID           string  `json:"imageid"`
	ImageIDBinary     [8]byte `json:"-"`
	FileNumber        uint16  `json:"file_number"`
	IncrementNumber   uint16  `json:"increment_number"`
	ImagedDisksCount  uint16  `json:"imaged_disks_count"`
	MergedFiles       []int32 `json:"merged_files"`
	SplitFile         bool    `json:"split_file"`
	NetbiosName       string  `json:"netbios_name"`
	BackupTime        int64   `json:"backup_time"`
	BackupsetTime     int64   `json:"backupset_time"`
	BackupGUID        string  `json:"backup_guid"`
	IndexFilePosition uint64  `json:"index_file_position"`
	DeltaIndex        bool    `json:"delta_index"`
	JSONVersion       int32   `json:"json_version"`
	BackupType        string  `json:"backup_type"`
	BackupFormat      string  `json:"backup_format"`
}

// SetImageIDBinary decodes the 16-hex-digit ImageID string into its 8-byte
// binary form, used as PBKDF2 salt material and as the IV record prefix.
func (h *Header) SetImageIDBinary() error {
	return decodeHexInto(h.ImageID, h.ImageIDBinary[:])
}

// Encryption describes the container's password protection.
type Encryption struct {
	Enable        bool        `json:"enable"`
	KeyIterations int         `json:"key_iterations"`
	HMAC          string      `json:"hmac"`
	HMACBinary    [32]byte    `json:"-"`
	DerivedKey    [32]byte    `json:"-"`
	AESType       string      `json:"aes_type"`
	KeyDerivation string      `json:"key_derivation"`
}

// ConvertHMACToBinary decodes the 64-hex-character HMAC string into its
// 32-byte binary form.
func (e *Encryption) ConvertHMACToBinary() error {
	return decodeHexInto(e.HMAC, e.HMACBinary[:])
}

// AESVariantCode returns the variant code used by AES-NI-style cipher
// selection in the original (10/12/14 for 128/192/256-bit AES). It has no
// meaning for AESTypeNone and is only called when encryption is enabled.
func (e *Encryption) AESVariantCode() (int, error) {
	switch ParseAESType(e.AESType) {
	case AESType128:
		return 10, nil
	case AESType192:
		return 12, nil
	case AESType256:
		return 14, nil
	default:
		return 0, errInvalidAESType
	}
}

// Compression describes the container-wide compression settings.
type Compression struct {
	Method string `json:"compression_method"`
	Level  string `json:"compression_level"`
}

// PartitionEntry is one MBR partition-table entry captured for reference.
type PartitionEntry struct {
	Status        uint8  `json:"status"`
	StartHead     uint8  `json:"start_head"`
	StartCylinder uint16 `json:"start_cylinder"`
	Type          uint8  `json:"type"`
	EndHead       uint8  `json:"end_head"`
	EndCylinder   uint16 `json:"end_cylinder"`
	BootSector    uint32 `json:"boot_sector"`
	NumSectors    uint32 `json:"num_sectors"`
	Active        bool   `json:"active"`
	PartitionType string `json:"partition_type"`
}

// PartitionHeader carries the per-partition block accounting needed by the
// restore engine.
type PartitionHeader struct {
	BlockCount         uint32        `json:"block_count"`
	BlockSize          uint32        `json:"block_size"`
	PartitionFileOffset uint64       `json:"partition_file_offset"`
	FileHistoryCount   uint32        `json:"file_history_count"`
	PartitionNumber    int32         `json:"partition_number"`
	FileHistory        []FileHistory `json:"file_history"`
}

// FileSystem describes the filesystem occupying a partition.
type FileSystem struct {
	DriveLetter               byte   `json:"drive_letter"`
	End                       uint64 `json:"end"`
	Start                     uint64 `json:"start"`
	FatOffset                 uint64 `json:"fat_offset"`
	FreeClusters              uint32 `json:"free_clusters"`
	LCN0Offset                uint64 `json:"lcn0_offset"`
	LinuxBlocksPerGroup       uint32 `json:"linux_blocks_per_group"`
	LinuxGroupCount           uint32 `json:"linux_group_count"`
	MFTOffset                 uint64 `json:"mft_offset"`
	MFTRecordSize             uint32 `json:"mft_record_size"`
	ReservedSectorsByteLength uint32 `json:"reserved_sectors_byte_length"`
	SectorsPerCluster         uint32 `json:"sectors_per_cluster"`
	TotalClusters             uint32 `json:"total_clusters"`
	PartitionIndex            int32  `json:"partition_index"`
	VolumeGUID                string `json:"volume_guid"`
	VolumeLabel               string `json:"volume_label"`
	ShadowCopy                string `json:"shadow_copy"`
	LCN0FileNumber            uint16 `json:"lcn0_file_number"`
	BitlockerState            string `json:"bitlocker_state"`
	Type                      string `json:"type"`
}

// PartitionGeometry locates a partition on the physical disk.
type PartitionGeometry struct {
	Start            uint64 `json:"start"`
	End              uint64 `json:"end"`
	Length           uint64 `json:"length"`
	BootSectorOffset uint64 `json:"boot_sector_offset"`
}

// PartitionLayout is one partition's full metadata plus the three post-parse
// binary index arrays populated by internal/container after the JSON parse.
type PartitionLayout struct {
	Header              PartitionHeader       `json:"_header"`
	Geometry             PartitionGeometry    `json:"_geometry"`
	PartitionTableEntry PartitionEntry        `json:"_partition_table_entry"`
	FileSystem          FileSystem            `json:"_file_system"`

	ReservedSectorsBlocks []DataBlockIndexElement `json:"-"`
	DataBlocks            []DataBlockIndexElement `json:"-"`
	DeltaDataBlocks       []DeltaDataBlock        `json:"-"`
}

// DiskHeader identifies a disk within the backup set.
type DiskHeader struct {
	DiskSignature                  string `json:"disk_signature"`
	DiskFormat                     string `json:"disk_format"`
	DiskNumber                     int32  `json:"disk_number"`
	ExtendedPartitionSectorOffset  uint32 `json:"extended_partition_sector_offset"`
	ExtendedPartitionCount         int32  `json:"extended_partition_count"`
	ImagedPartitionCount           int32  `json:"imaged_partition_count"`
}

// DiskGeometry captures the physical disk geometry at backup time.
type DiskGeometry struct {
	BytesPerSector    int32  `json:"bytes_per_sector"`
	Cylinders         uint64 `json:"cylinders"`
	MediaType         string `json:"media_type"`
	SectorsPerTrack   int32  `json:"sectors_per_track"`
	TracksPerCylinder int32  `json:"tracks_per_cylinder"`
	DiskSize          uint64 `json:"disk_size"`
}

// DiskDescriptor carries informational hardware identification. Restoration
// does not use it and the describe command does not print it.
type DiskDescriptor struct {
	Description  string `json:"disk_description"`
	Manufacturer string `json:"disk_manufacturer"`
	ProductID    string `json:"disk_productid"`
	RevisionNo   string `json:"disk_revisonno"`
	SerialNo     string `json:"disk_serialno"`
}

// DiskLayout is one disk's full metadata plus the track0 image and optional
// extended-partition records populated after the per-disk metadata walk.
type DiskLayout struct {
	Header      DiskHeader       `json:"_header"`
	Geometry    DiskGeometry     `json:"_geometry"`
	Descriptor  DiskDescriptor   `json:"_descriptor"`
	Partitions  []PartitionLayout `json:"partitions"`

	Track0             []byte              `json:"-"`
	ExtendedPartitions []ExtendedPartition `json:"-"`
}

// File is the root of a parsed container's layout (the original's
// fileLayout). AuxiliaryData is decoded as opaque JSON: it carries backup
// policy/definition fields (PostBackup, Retention, viBoot, BackupDefinition,
// ...) that restoration never needs to interpret but that -desc/-j must be
// able to surface faithfully.
type File struct {
	Header        Header          `json:"_header"`
	AuxiliaryData json.RawMessage `json:"_auxiliary_data"`
	Encryption    Encryption      `json:"_encryption"`
	Compression   Compression     `json:"_compression"`
	Disks         []DiskLayout    `json:"disks"`

	FileName string `json:"-"`
	RawJSON  string `json:"-"`
}
