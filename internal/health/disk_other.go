//go:build !linux && !darwin

package health

// freeBytes is unknown on this platform.
func freeBytes(string) (int64, error) {
	return -1, nil
}
