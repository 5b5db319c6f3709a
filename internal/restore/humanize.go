package restore

import (
	"fmt"
	"math"
)

var sizeUnits = []string{"B", "KB", "MB", "GB", "TB", "PB", "EB"}

// FormatSize renders a byte count in the largest unit that keeps the
// mantissa readable, for progress-bar and -desc output.
func FormatSize(size uint64) string {
	if size == 0 {
		return "0 B"
	}
	f := float64(size)
	group := int(math.Log10(f) / math.Log10(1024))
	if group < 0 {
		group = 0
	}
	if group >= len(sizeUnits) {
		group = len(sizeUnits) - 1
	}
	return fmt.Sprintf("%.2f %s", f/math.Pow(1024, float64(group)), sizeUnits[group])
}
