//go:build !unix

package memory

import "os"

// Advisory locking is only available on unix; elsewhere the in-process
// mutex is the only writer discipline.
func lockFile(f *os.File, exclusive bool) error { return nil }

func unlockFile(f *os.File) error { return nil }
