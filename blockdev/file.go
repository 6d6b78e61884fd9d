package blockdev

import (
	"os"

	"github.com/spf13/afero"
)

// File is a Device backed by an image file on any afero.Fs.
type File struct {
	file     afero.File
	sectors  uint32
	readOnly bool
}

// Open opens an existing image. The sector count is derived from the file size.
func Open(fs afero.Fs, name string, readOnly bool) (*File, error) {
	flag := os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	}

	f, err := fs.OpenFile(name, flag, 0)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	return &File{
		file:     f,
		sectors:  uint32(info.Size() / SectorSize),
		readOnly: readOnly,
	}, nil
}

// Create creates (or truncates) an image with the given amount of zeroed sectors.
func Create(fs afero.Fs, name string, sectors uint32) (*File, error) {
	f, err := fs.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}

	if err := f.Truncate(int64(sectors) * SectorSize); err != nil {
		f.Close()
		return nil, err
	}

	return &File{file: f, sectors: sectors}, nil
}

func (f *File) Sectors() uint32 {
	return f.sectors
}

func (f *File) ReadSectors(dst []byte, start uint32) (int, error) {
	from, _, err := span(len(dst), start, f.sectors)
	if err != nil {
		return 0, err
	}
	return f.file.ReadAt(dst, from)
}

func (f *File) WriteSectors(src []byte, start uint32) (int, error) {
	if f.readOnly {
		return 0, ErrReadOnly
	}
	from, _, err := span(len(src), start, f.sectors)
	if err != nil {
		return 0, err
	}
	return f.file.WriteAt(src, from)
}

// Sync flushes the image file.
func (f *File) Sync() error {
	return f.file.Sync()
}

func (f *File) Close() error {
	return f.file.Close()
}
