// Copyright 2025 Ledgercore Contributors
//
// Free-disk-space check for the orphan reconciler (spec.md §4.6). No
// third-party disk-usage library appears anywhere in the retrieval pack, so
// this one check is built on the standard library's syscall.Statfs rather
// than adapted from an example; see DESIGN.md.

package bundle

import "syscall"

// freeDiskBytes reports the bytes available to an unprivileged writer on
// the filesystem backing dir.
func freeDiskBytes(dir string) (uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
