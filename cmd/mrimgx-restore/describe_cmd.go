package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/autobrr/mrimgx-restore/internal/restore"
	pkgrestore "github.com/autobrr/mrimgx-restore/pkg/restore"
)

func newDescribeCommand() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:     "describe <file>",
		Aliases: []string{"desc"},
		Short:   "Print a summary of one backup file's own metadata",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := args[0]
			if err := validateSourcePath(source); err != nil {
				return err
			}

			info, err := pkgrestore.Inspect(source, password)
			if err != nil {
				return err
			}

			fmt.Printf("image id:     %s\n", info.ImageID)
			fmt.Printf("file number:  %d\n", info.FileNumber)
			fmt.Printf("delta index:  %t\n", info.DeltaIndex)
			fmt.Printf("split file:   %t\n", info.SplitFile)
			fmt.Printf("disks:        %d\n", len(info.Disks))
			for _, disk := range info.Disks {
				fmt.Printf("  disk %d: format=%s partitions=%d size=%s\n",
					disk.DiskNumber, disk.DiskFormat, disk.Partitions, restore.FormatSize(disk.SizeBytes))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "Password protecting the backup set, if encrypted")
	return cmd
}
