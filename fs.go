package gofat32

import (
	"errors"
	"os"
	"time"

	"github.com/aligator/gofat32/checkpoint"
	"github.com/spf13/afero"
)

var (
	_ afero.Fs   = (*Fs)(nil)
	_ afero.File = (*File)(nil)
)

// Fs provides a volume as afero.Fs. Paths are resolved by drive 0.
// Only creating and appending is supported, everything removing or changing
// existing data fails with ErrNotSupported.
type Fs struct {
	drive *Drive
}

// NewFs wraps a mounted volume.
func NewFs(v *Volume) *Fs {
	return &Fs{drive: v.Drive(0)}
}

// pathError wraps err into an *os.PathError which also matches the matching os errors.
func pathError(op, name string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ErrNotFound):
		err = checkpoint.Wrap(err, os.ErrNotExist)
	case errors.Is(err, ErrAlreadyExists):
		err = checkpoint.Wrap(err, os.ErrExist)
	case errors.Is(err, ErrInvalidName):
		err = checkpoint.Wrap(err, os.ErrInvalid)
	}
	return &os.PathError{Op: op, Path: name, Err: err}
}

func (fs *Fs) Create(name string) (afero.File, error) {
	return fs.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
}

func (fs *Fs) Mkdir(name string, perm os.FileMode) error {
	return pathError("mkdir", name, fs.drive.CreateDirectory(name))
}

// MkdirAll creates all missing directories of path.
func (fs *Fs) MkdirAll(path string, perm os.FileMode) error {
	current := ""
	if path != "" && isSeparator(path[0]) {
		current = "/"
	}

	for _, component := range splitComponents(path) {
		current += component

		info, err := fs.drive.Stat(current)
		switch {
		case err == nil && !info.IsDir():
			return pathError("mkdir", current, checkpoint.From(ErrNotDirectory))
		case errors.Is(err, ErrNotFound):
			if err := fs.drive.CreateDirectory(current); err != nil {
				return pathError("mkdir", current, err)
			}
		case err != nil:
			return pathError("mkdir", current, err)
		}

		current += "/"
	}
	return nil
}

func (fs *Fs) Open(name string) (afero.File, error) {
	return fs.OpenFile(name, os.O_RDONLY, 0)
}

// OpenFile supports os.O_CREATE and os.O_EXCL. os.O_TRUNC is only accepted for empty files.
// Files opened without os.O_WRONLY or os.O_RDWR cannot be written.
func (fs *Fs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	f := &File{}
	err := fs.drive.OpenFile(f, name)

	switch {
	case errors.Is(err, ErrIsDirectory):
		dir, err := fs.drive.OpenDir(name)
		if err != nil {
			return nil, pathError("open", name, err)
		}
		return dir, nil
	case errors.Is(err, ErrNotFound) && flag&os.O_CREATE != 0:
		if err := fs.drive.CreateFile(name); err != nil {
			return nil, pathError("open", name, err)
		}
		if err := fs.drive.OpenFile(f, name); err != nil {
			return nil, pathError("open", name, err)
		}
	case err != nil:
		return nil, pathError("open", name, err)
	case flag&(os.O_CREATE|os.O_EXCL) == os.O_CREATE|os.O_EXCL:
		f.Close()
		return nil, pathError("open", name, checkpoint.Wrap(ErrAlreadyExists, os.ErrExist))
	}

	if flag&os.O_TRUNC != 0 && f.size != 0 {
		f.Close()
		return nil, pathError("truncate", name, checkpoint.From(ErrNotSupported))
	}

	f.readOnly = flag&(os.O_WRONLY|os.O_RDWR) == 0
	return f, nil
}

func (fs *Fs) Remove(name string) error {
	return pathError("remove", name, checkpoint.From(ErrNotSupported))
}

func (fs *Fs) RemoveAll(path string) error {
	return pathError("removeall", path, checkpoint.From(ErrNotSupported))
}

func (fs *Fs) Rename(oldname, newname string) error {
	return &os.LinkError{Op: "rename", Old: oldname, New: newname, Err: checkpoint.From(ErrNotSupported)}
}

func (fs *Fs) Stat(name string) (os.FileInfo, error) {
	info, err := fs.drive.Stat(name)
	if err != nil {
		return nil, pathError("stat", name, err)
	}
	return info, nil
}

func (fs *Fs) Name() string {
	return "gofat32"
}

func (fs *Fs) Chmod(name string, mode os.FileMode) error {
	return pathError("chmod", name, checkpoint.From(ErrNotSupported))
}

func (fs *Fs) Chown(name string, uid, gid int) error {
	return pathError("chown", name, checkpoint.From(ErrNotSupported))
}

func (fs *Fs) Chtimes(name string, atime time.Time, mtime time.Time) error {
	return pathError("chtimes", name, checkpoint.From(ErrNotSupported))
}
