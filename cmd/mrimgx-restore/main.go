// Command mrimgx-restore restores a Macrium-style disk-image backup
// container (.mrimgx/.mrbakx) onto a target device or raw image file.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
