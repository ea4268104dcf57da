//go:build !linux

package device

// systemMemory returns total system memory in bytes. Without an OS query
// a fixed default is reported; only device info output depends on it.
func systemMemory() uint64 {
	return defaultSystemMemory
}
