// Package config holds restore defaults shared between the CLI and any
// library caller, analogous to the container format's own defaults for
// unset fields.
package config

// RestoreOptions mirrors the restore engine's tunables at the CLI boundary.
type RestoreOptions struct {
	Password   string
	TargetPath string
	DiskNumber int32
	KeepDiskID bool
	Verbose    bool
}

// DiskNumberAuto selects the only/first disk in a backup set, recording
// its real disk number rather than requiring the caller to know it.
const DiskNumberAuto int32 = -1

// Default returns restore defaults equivalent to running with no flags:
// restore the only/first disk, assign it a fresh identity, and use an empty
// password.
func Default() RestoreOptions {
	return RestoreOptions{
		Password:   "",
		TargetPath: "",
		DiskNumber: DiskNumberAuto,
		KeepDiskID: false,
		Verbose:    false,
	}
}
