//go:build !linux

package rastercache

// physicalMemory is not probed outside linux; percentage budgets fail to
// resolve and the default budget falls back to 64MiB.
func physicalMemory() uint64 {
	return 0
}
