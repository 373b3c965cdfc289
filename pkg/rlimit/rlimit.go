// Package rlimit raises the process's soft open-file limit so the bulk
// indexing pipeline can keep many blk*.dat files, LevelDB table files, and
// RPC sockets open concurrently without hitting EMFILE.
package rlimit

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// RaiseNoFile sets RLIMIT_NOFILE's soft limit to n, capped at the hard
// limit. Querying or setting the limit is fatal to the caller's run:
// there is no fallback path that indexes with fewer file descriptors
// than planned.
func RaiseNoFile(n uint64) error {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return fmt.Errorf("getrlimit(NOFILE): %w", err)
	}
	if rlim.Cur >= n {
		return nil
	}
	if rlim.Max != unix.RLIM_INFINITY && n > rlim.Max {
		n = rlim.Max
	}
	rlim.Cur = n
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return fmt.Errorf("setrlimit(NOFILE, %d): %w", n, err)
	}
	return nil
}
