package fileutil

import (
	"io"
	"os"
	"syscall"
)

// Preallocate reserves sizeInBytes of disk space for f via fallocate,
// so raftlog's segment files don't fragment as appends grow them
// toward the configured segment_size. If extendFile is true the file's
// reported length grows to sizeInBytes immediately (matching how a
// segment's target size is fixed at creation); otherwise the space is
// reserved without changing the file's length.
//
// (http://man7.org/linux/man-pages/man2/fallocate.2.html)
func Preallocate(f *os.File, sizeInBytes int64, extendFile bool) error {
	var (
		keepSizeMode uint32
		offset       int64
	)
	if !extendFile {
		keepSizeMode = 1
	}
	err := syscall.Fallocate(int(f.Fd()), keepSizeMode, offset, sizeInBytes)
	if err != nil {
		errno, ok := err.(syscall.Errno)

		if ok {
			switch extendFile {
			case true:
				// fallocate not supported
				// fallocate EINTRs frequently in some environments; fallback
				if errno == syscall.ENOTSUP || errno == syscall.EINTR {
					return preallocExtendTrunc(f, sizeInBytes)
				}

			case false:
				// treat not supported as nil error
				if errno == syscall.ENOTSUP {
					return nil
				}
			}
		}
	}
	return err
}

// preallocExtendTrunc extends the file by adding holes
// without reserving disk space. No actual disk space is reserved.
func preallocExtendTrunc(f *os.File, sizeInBytes int64) error {
	// Seek sets the offset for the next Read or Write on file to offset,
	// interpreted according to whence:
	//
	// move current offset to the beginning (0)
	curOff, err := f.Seek(0, io.SeekCurrent) // 1, io.SeekCurrent: seek relative to the current offset
	if err != nil {
		return err
	}

	// move(set) end of the file with sizeInBytes
	sizeOff, err := f.Seek(sizeInBytes, io.SeekEnd) // 2, io.SeekEnd: seek relative to the end
	if err != nil {
		return err
	}

	// move(set) beginning of the file(io.SeekStart) to curOff(beginning)
	if _, err = f.Seek(curOff, io.SeekStart); err != nil { // 0, io.SeekStart: seek relative to the origin(beginning) of the file
		return err
	}

	if sizeInBytes > sizeOff { // no need to change the file size
		return nil
	}

	// Truncate changes the size of the file.
	return f.Truncate(sizeInBytes)
}
