// Package fileutil holds the on-disk helpers raftlog's segmented log
// needs to manage its data directory: directory creation with a
// writability check, and an existence probe used during crash
// recovery to tell a cold start apart from a manifest/segment
// mismatch (spec.md §4.1 "Missing manifest with segments present").
package fileutil

import (
	"io/ioutil"
	"os"
	"path/filepath"
)

const (
	// PrivateFileMode grants owner to read/write a file.
	PrivateFileMode = 0600

	// PrivateDirMode grants owner to make/remove files inside the directory.
	PrivateDirMode = 0700
)

// DirWritable returns nil if dir is writable.
func DirWritable(dir string) error {
	f := filepath.Join(dir, ".touch")
	if err := ioutil.WriteFile(f, []byte(""), PrivateFileMode); err != nil {
		return err
	}
	return os.Remove(f)
}

// MkdirAll runs os.MkdirAll with a writable check, so a log directory
// that exists but is mounted read-only fails fast at Open rather than
// on the first append.
//
// (etcd pkg.fileutil.TouchDirAll)
func MkdirAll(dir string) error {
	// If path is already a directory, MkdirAll does nothing
	// and returns nil.
	err := os.MkdirAll(dir, PrivateDirMode)
	if err != nil {
		// if mkdirAll("a/text") and "text" is not
		// a directory, this will return syscall.ENOTDIR
		return err
	}
	return DirWritable(dir)
}

// ExistFileOrDir returns true if the file or directory exists.
//
// (etcd pkg.fileutil.Exist)
func ExistFileOrDir(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}
