package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/autobrr/mrimgx-restore/internal/config"
	"github.com/autobrr/mrimgx-restore/internal/restore"
	pkgrestore "github.com/autobrr/mrimgx-restore/pkg/restore"
)

func newRestoreCommand() *cobra.Command {
	var password string
	var output string
	var diskNumber int32
	var keepID bool
	var verbose bool

	cmd := &cobra.Command{
		Use:   "restore <file>",
		Short: "Restore a disk from a backup set onto a target device or image file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := args[0]
			if err := validateSourcePath(source); err != nil {
				return err
			}
			if output == "" {
				return fmt.Errorf("-o/--output is required")
			}

			logger := newLogger(verbose)
			defer logger.Sync()

			onProgress := func(e pkgrestore.ProgressEvent) {
				logger.Info("restore progress",
					zap.String("stage", string(e.Stage)),
					zap.String("written", restore.FormatSize(e.BytesWritten)),
					zap.String("total", restore.FormatSize(e.TotalBytes)),
					zap.Duration("elapsed", e.Elapsed),
				)
			}

			result, err := pkgrestore.Run(pkgrestore.Options{
				SourcePath: source,
				Password:   password,
				TargetPath: output,
				DiskNumber: diskNumber,
				KeepDiskID: keepID,
				OnProgress: onProgress,
			})
			if err != nil {
				logger.Error("restore failed", zap.Error(err))
				return err
			}

			logger.Info("restore complete",
				zap.Int32("disk_number", result.DiskNumber),
				zap.String("written", restore.FormatSize(result.BytesWritten)),
				zap.Duration("elapsed", result.Elapsed),
			)
			return nil
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "Password protecting the backup set, if encrypted")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Target device or raw image file to restore onto")
	cmd.Flags().Int32VarP(&diskNumber, "disk", "d", config.DiskNumberAuto, "Disk number to restore; defaults to the only/first disk")
	cmd.Flags().BoolVarP(&keepID, "keep-id", "k", false, "Keep the backup's disk identity instead of assigning a fresh one")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose development-mode logging")
	return cmd
}
