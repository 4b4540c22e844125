// Package fileutil provides small filesystem helpers shared by the capture
// store and the job manager.
package fileutil

import (
	"io"
	"os"
)

// CopyFile streams src to dst using io.Copy with default permissions (0o644).
func CopyFile(src, dst string) error {
	return CopyFileMode(src, dst, 0o644)
}

// CopyFileMode streams src to dst, setting the given file mode on dst.
func CopyFileMode(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

// LinkOrCopy makes dst refer to the contents of src, preferring a hard link
// to avoid duplicating image data on the same filesystem. An existing dst is
// left untouched.
func LinkOrCopy(src, dst string) error {
	err := os.Link(src, dst)
	if err == nil || os.IsExist(err) {
		return nil
	}
	return CopyFile(src, dst)
}
