package gofat32

import (
	"os"
	"time"
)

// FileInfo returns the entry as os.FileInfo. Sys() returns the EntryHeader.
func (h *EntryHeader) FileInfo() os.FileInfo {
	return entryHeaderFileInfo{*h}
}

type entryHeaderFileInfo struct {
	entry EntryHeader
}

func (e entryHeaderFileInfo) Name() string {
	return e.entry.DisplayName()
}

func (e entryHeaderFileInfo) Size() int64 {
	return int64(e.entry.FileSize)
}

func (e entryHeaderFileInfo) Mode() os.FileMode {
	mode := os.FileMode(0666)
	if e.entry.Attribute&AttrReadOnly != 0 {
		mode = 0444
	}
	if e.IsDir() {
		return mode | os.ModeDir | 0111
	}
	return mode
}

func (e entryHeaderFileInfo) ModTime() time.Time {
	writeDate := ParseDate(e.entry.WriteDate)
	writeTime := ParseTime(e.entry.WriteTime)

	// An invalid date results in time.Time{}, the time alone cannot tell that.
	if writeDate.IsZero() {
		return time.Time{}
	}

	return time.Date(writeDate.Year(), writeDate.Month(), writeDate.Day(), writeTime.Hour(), writeTime.Minute(), writeTime.Second(), 0, time.UTC)
}

func (e entryHeaderFileInfo) IsDir() bool {
	return e.entry.IsDir()
}

func (e entryHeaderFileInfo) Sys() interface{} {
	return e.entry
}

// dirInfo describes a directory which has no entry of its own, like the root directory.
type dirInfo struct {
	name string
}

func (d dirInfo) Name() string       { return d.name }
func (d dirInfo) Size() int64        { return 0 }
func (d dirInfo) Mode() os.FileMode  { return os.ModeDir | 0777 }
func (d dirInfo) ModTime() time.Time { return time.Time{} }
func (d dirInfo) IsDir() bool        { return true }
func (d dirInfo) Sys() interface{}   { return nil }
