package main

import (
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "mrimgx-restore",
		Short:         "Restore Macrium-style disk-image backup containers",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRestoreCommand())
	root.AddCommand(newDescribeCommand())
	root.AddCommand(newDumpJSONCommand())
	root.AddCommand(newUpdateCommand())
	return root
}

func newLogger(verbose bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.DisableStacktrace = true
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// validateSourcePath checks the positional filename argument: it must
// exist and carry one of the container's two recognized extensions.
func validateSourcePath(path string) error {
	lower := strings.ToLower(path)
	if !strings.HasSuffix(lower, ".mrimgx") && !strings.HasSuffix(lower, ".mrbakx") {
		return errInvalidExtension
	}
	if _, err := statFile(path); err != nil {
		return err
	}
	return nil
}
