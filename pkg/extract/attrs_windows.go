//go:build windows
// +build windows

package extract

import (
	"golang.org/x/sys/windows"

	"github.com/windowsadmins/msiextract/pkg/cab"
)

const fileAttributeMask = cab.AttrReadOnly | cab.AttrHidden | cab.AttrSystem | cab.AttrArchive

// setAttributes applies the cabinet attribute bits that map onto file
// attributes.
func setAttributes(path string, attrs uint16) error {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return err
	}
	a := uint32(attrs) & fileAttributeMask
	if a == 0 {
		a = windows.FILE_ATTRIBUTE_NORMAL
	}
	return windows.SetFileAttributes(p, a)
}

func clearReadOnly(path string) error {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return err
	}
	a, err := windows.GetFileAttributes(p)
	if err != nil {
		return err
	}
	return windows.SetFileAttributes(p, a&^windows.FILE_ATTRIBUTE_READONLY)
}
