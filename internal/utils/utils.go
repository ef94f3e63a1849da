package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnvOrString returns the value of envKey, or defaultValue when it is unset.
func EnvOrString(envKey, defaultValue string) string {
	value, defined := os.LookupEnv(envKey)
	if defined {
		return value
	}
	return defaultValue
}

// EnsureWritableDir creates dir when needed and proves it accepts new files.
func EnsureWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", dir, err)
	}
	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("directory %s is not writable: %w", dir, err)
	}
	name := probe.Name()
	probe.Close()
	return os.Remove(filepath.Clean(name))
}
