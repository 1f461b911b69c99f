//go:build windows

package journal

import "os"

// Windows relies on the in-process mutex only.
func lockFile(_ *os.File) error   { return nil }
func unlockFile(_ *os.File) error { return nil }
