package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/autobrr/mrimgx-restore/internal/layout"
	pkgrestore "github.com/autobrr/mrimgx-restore/pkg/restore"
)

func newDumpJSONCommand() *cobra.Command {
	var password string
	var raw bool

	cmd := &cobra.Command{
		Use:   "dump-json <file>",
		Short: "Print a backup file's layout as JSON",
		Long: "Print a backup file's layout as JSON. By default this resolves the\n" +
			"full backup set (following prior fulls/deltas) and prints the merged,\n" +
			"effective view; --raw prints only the entry file's own stored JSON.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := args[0]
			if err := validateSourcePath(source); err != nil {
				return err
			}

			if raw {
				info, err := pkgrestore.Inspect(source, password)
				if err != nil {
					return err
				}
				fmt.Println(info.RawJSON)
				return nil
			}

			set, err := pkgrestore.ResolveSet(source, password)
			if err != nil {
				return err
			}
			defer set.Close()

			out, err := json.MarshalIndent(resolvedSummary(set.LayoutForRestoration()), "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "Password protecting the backup set, if encrypted")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print only the entry file's own stored JSON, not the resolved set")
	return cmd
}

// resolvedSummary re-shapes a resolved *layout.File into a JSON-friendly
// view. layout.File's binary index fields carry json:"-" tags (they mirror
// the container's own wire schema, which has no field for them), so
// marshaling it directly would silently drop the very blocks this command
// exists to show.
type resolvedFileSummary struct {
	ImageID    string                `json:"image_id"`
	FileNumber uint16                `json:"file_number"`
	Disks      []resolvedDiskSummary `json:"disks"`
}

type resolvedDiskSummary struct {
	DiskNumber int32                      `json:"disk_number"`
	DiskFormat string                     `json:"disk_format"`
	Partitions []resolvedPartitionSummary `json:"partitions"`
}

type resolvedPartitionSummary struct {
	PartitionNumber int32                  `json:"partition_number"`
	BlockSize       uint32                 `json:"block_size"`
	ReservedSectors int                    `json:"reserved_sector_block_count"`
	DataBlocks      []resolvedBlockSummary `json:"data_blocks"`
}

type resolvedBlockSummary struct {
	Index      int    `json:"index"`
	FileNumber uint16 `json:"file_number"`
	Length     uint32 `json:"length"`
}

func resolvedSummary(file *layout.File) resolvedFileSummary {
	out := resolvedFileSummary{
		ImageID:    file.Header.ImageID,
		FileNumber: file.Header.FileNumber,
	}
	for _, disk := range file.Disks {
		diskOut := resolvedDiskSummary{
			DiskNumber: disk.Header.DiskNumber,
			DiskFormat: disk.Header.DiskFormat,
		}
		for _, partition := range disk.Partitions {
			partitionOut := resolvedPartitionSummary{
				PartitionNumber: partition.Header.PartitionNumber,
				BlockSize:       partition.Header.BlockSize,
				ReservedSectors: len(partition.ReservedSectorsBlocks),
			}
			for i, block := range partition.DataBlocks {
				partitionOut.DataBlocks = append(partitionOut.DataBlocks, resolvedBlockSummary{
					Index:      i,
					FileNumber: block.FileNumber,
					Length:     block.BlockLength,
				})
			}
			diskOut.Partitions = append(diskOut.Partitions, partitionOut)
		}
		out.Disks = append(out.Disks, diskOut)
	}
	return out
}
