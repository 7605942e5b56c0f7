package validation

import "fmt"

var sizeUnits = []string{"KB", "MB", "GB", "TB"}

// FormatBytes renders n with 1024-based units: 512 -> "512 Bytes",
// 10485760 -> "10.00 MB".
func FormatBytes(n int64) string {
	if n < 1024 {
		return fmt.Sprintf("%d Bytes", n)
	}

	v := float64(n) / 1024
	unit := 0
	for v >= 1024 && unit < len(sizeUnits)-1 {
		v /= 1024
		unit++
	}
	return fmt.Sprintf("%.2f %s", v, sizeUnits[unit])
}
