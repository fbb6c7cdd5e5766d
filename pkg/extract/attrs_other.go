//go:build !windows
// +build !windows

package extract

import (
	"io/fs"
	"os"

	"github.com/windowsadmins/msiextract/pkg/cab"
)

// setAttributes maps the read-only and executable bits onto the file mode.
func setAttributes(path string, attrs uint16) error {
	mode := fs.FileMode(0o644)
	if attrs&cab.AttrExec != 0 {
		mode = 0o755
	}
	if attrs&cab.AttrReadOnly != 0 {
		mode &^= 0o222
	}
	return os.Chmod(path, mode)
}

func clearReadOnly(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	return os.Chmod(path, fi.Mode().Perm()|0o200)
}
