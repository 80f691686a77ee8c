package fileutil

import (
	"os"
	"syscall"
)

// Fsync commits the current contents of the file to disk, including
// the inode metadata. raftlog's manifest uses this after every
// double-buffered slot write; the manifest file grows while its two
// slots are first written (spec.md §4.1's "atomic metadata replace").
//
// (etcd pkg.fileutil.Fsync)
func Fsync(f *os.File) error {
	return f.Sync()
}

// Fdatasync flushes a file's data blocks without the inode-metadata
// write Fsync also performs. raftlog's segments track their own
// logical length in the segment header rather than relying on the
// file's length, so appends and rollovers only need the data fsync.
//
// (etcd pkg.fileutil.Fdatasync)
func Fdatasync(f *os.File) error {
	return syscall.Fdatasync(int(f.Fd()))
}
