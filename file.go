package gofat32

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"syscall"

	"github.com/aligator/gofat32/checkpoint"
	"github.com/spf13/afero"
)

// File is a handle to a file or directory of a volume.
// A File has exactly one cursor which is used by Read, Seek and Readdir.
// Write always appends at the end of the file.
type File struct {
	lock sync.Mutex

	v    *Volume
	name string
	open bool

	readOnly    bool
	isDirectory bool
	dirCluster  uint32
	dirOffset   int

	// entry is the directory entry of the file and slot its position.
	entry EntryHeader
	slot  dirSlot

	firstCluster uint32
	size         uint32
	remaining    uint32

	// The cursor: the sector index may be equal to the sectors per cluster,
	// the next cluster is then looked up by the next read.
	cluster uint32
	sector  uint32
	offset  uint32

	// lastCluster and tailFree describe the end of the file including written but unflushed data.
	lastCluster uint32
	tailFree    uint32

	// committedLast is the last cluster of the chain as it exists in the FAT.
	committedLast uint32
	runs          []writeRun
	pending       uint32
}

// OpenFile opens path into the handle f, which must be closed or new.
func (d *Drive) OpenFile(f *File, path string) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.open {
		return checkpoint.Wrap(fmt.Errorf("handle of %q", f.name), ErrAlreadyOpen)
	}

	h, slot, err := d.find(path)
	if err != nil {
		return err
	}
	if h.IsDir() {
		return checkpoint.Wrap(fmt.Errorf("path %q", path), ErrIsDirectory)
	}

	last, length, err := d.v.walkChain(h.Cluster())
	if err != nil {
		return err
	}
	capacity := uint64(length) * uint64(d.v.geo.ClusterSize())
	if uint64(h.FileSize) > capacity {
		return checkpoint.Wrap(fmt.Errorf("%q has %d bytes in %d clusters", path, h.FileSize, length), ErrCorruptChain)
	}

	f.v = d.v
	f.name = path
	f.open = true
	f.entry = h
	f.slot = slot
	f.firstCluster = h.Cluster()
	f.size = h.FileSize
	f.remaining = h.FileSize
	f.cluster = h.Cluster()
	f.sector = 0
	f.offset = 0
	f.lastCluster = last
	f.committedLast = last
	f.tailFree = uint32(capacity - uint64(h.FileSize))
	return nil
}

// OpenDir opens a directory handle which can be used with Readdir.
func (d *Drive) OpenDir(path string) (*File, error) {
	cluster, _, err := d.walk(path, d.v.newSteps())
	if err != nil {
		return nil, err
	}

	return &File{
		v:           d.v,
		name:        path,
		open:        true,
		readOnly:    true,
		isDirectory: true,
		dirCluster:  cluster,
		entry: EntryHeader{
			Attribute: AttrDirectory,
		},
	}, nil
}

// Close flushes pending appends and resets the handle.
// If the flush fails, the appended data is dropped and its clusters are freed.
// Closing a closed handle does nothing.
func (f *File) Close() error {
	f.lock.Lock()
	defer f.lock.Unlock()

	if !f.open {
		return nil
	}

	err := f.sync()
	if err != nil {
		f.abandon()
	}
	f.reset()
	return err
}

func (f *File) reset() {
	f.v = nil
	f.name = ""
	f.open = false
	f.readOnly = false
	f.isDirectory = false
	f.dirCluster = 0
	f.dirOffset = 0
	f.entry = EntryHeader{}
	f.slot = dirSlot{}
	f.firstCluster = 0
	f.size = 0
	f.remaining = 0
	f.cluster = 0
	f.sector = 0
	f.offset = 0
	f.lastCluster = 0
	f.tailFree = 0
	f.committedLast = 0
	f.runs = nil
	f.pending = 0
}

// Read reads up to len(p) bytes at the cursor.
// Reading into an empty p returns 0 and leaves the cursor untouched.
func (f *File) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	f.lock.Lock()
	defer f.lock.Unlock()

	if err := f.readable(); err != nil {
		return 0, err
	}
	if f.remaining == 0 {
		return 0, io.EOF
	}

	n := uint32(len(p))
	if n > f.remaining {
		n = f.remaining
	}

	read, err := f.readCursor(p[:n])
	f.remaining -= uint32(read)

	// Prepare a new pass from the start.
	if f.remaining == 0 && f.offset == 0 {
		f.cluster = f.firstCluster
		f.sector = 0
	}

	if err != nil {
		return read, err
	}
	return read, nil
}

func (f *File) readable() error {
	if !f.open {
		return checkpoint.From(ErrClosed)
	}
	if f.isDirectory {
		return checkpoint.Wrap(syscall.EISDIR, ErrIsDirectory)
	}
	return nil
}

// readCursor copies len(dst) bytes from the cursor position and advances the cursor.
// The caller makes sure that the file has enough bytes left.
func (f *File) readCursor(dst []byte) (int, error) {
	v := f.v
	spc := uint32(v.geo.SectorsPerCluster)
	buf := make([]byte, sectorSize)

	done := 0
	for done < len(dst) {
		if f.sector == spc {
			e, err := v.next(f.cluster)
			if err != nil {
				return done, err
			}
			if !e.IsNextCluster() {
				return done, checkpoint.Wrap(fmt.Errorf("chain of %q ends at cluster %d", f.name, f.cluster), ErrCorruptChain)
			}
			f.cluster, f.sector = e.Value(), 0
		}

		first, err := v.clusterToSector(f.cluster)
		if err != nil {
			return done, err
		}

		// Whole sectors go directly into dst.
		if whole := uint32(len(dst)-done) / sectorSize; f.offset == 0 && whole > 0 {
			if whole > spc-f.sector {
				whole = spc - f.sector
			}
			end := done + int(whole)*sectorSize
			if err := v.readSectors(dst[done:end], first+f.sector); err != nil {
				return done, err
			}
			done = end
			f.sector += whole
			continue
		}

		if err := v.readSectors(buf, first+f.sector); err != nil {
			return done, err
		}
		n := copy(dst[done:], buf[f.offset:])
		done += n
		f.offset += uint32(n)
		if f.offset == sectorSize {
			f.offset = 0
			f.sector++
		}
	}
	return done, nil
}

// seek moves the cursor to the byte position pos by walking the chain.
// pos must not exceed the size.
func (f *File) seek(pos uint32) error {
	v := f.v
	clusterSize := v.geo.ClusterSize()

	index := pos / clusterSize
	within := pos % clusterSize
	sector, offset := within/sectorSize, within%sectorSize
	if pos > 0 && within == 0 {
		// Stay at the end of the previous cluster.
		index--
		sector, offset = uint32(v.geo.SectorsPerCluster), 0
	}

	cluster := f.firstCluster
	for i := uint32(0); i < index; i++ {
		e, err := v.next(cluster)
		if err != nil {
			return err
		}
		if !e.IsNextCluster() {
			return checkpoint.Wrap(fmt.Errorf("chain of %q ends at cluster %d", f.name, cluster), ErrCorruptChain)
		}
		cluster = e.Value()
	}

	f.cluster, f.sector, f.offset = cluster, sector, offset
	f.remaining = f.size - pos
	return nil
}

// ReadAt reads at the given offset without moving the cursor.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	if err := f.readable(); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, checkpoint.Wrap(fmt.Errorf("offset %d", off), afero.ErrOutOfRange)
	}
	if off >= int64(f.size) {
		return 0, io.EOF
	}

	cluster, sector, offset, remaining := f.cluster, f.sector, f.offset, f.remaining
	defer func() {
		f.cluster, f.sector, f.offset, f.remaining = cluster, sector, offset, remaining
	}()

	if err := f.seek(uint32(off)); err != nil {
		return 0, err
	}

	n := len(p)
	if uint32(n) > f.remaining {
		n = int(f.remaining)
	}
	read, err := f.readCursor(p[:n])
	if err != nil {
		return read, err
	}
	if read < len(p) {
		return read, io.EOF
	}
	return read, nil
}

// Seek moves the cursor used by Read. Offsets beyond the flushed size are out of range.
// May return a syscall.EINVAL error if the whence value is invalid.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	if err := f.readable(); err != nil {
		return 0, err
	}

	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset += int64(f.size - f.remaining)
	case io.SeekEnd:
		offset += int64(f.size)
	default:
		return 0, checkpoint.Wrap(fmt.Errorf("whence %v", whence), syscall.EINVAL)
	}

	if offset < 0 || offset > int64(f.size) {
		return 0, checkpoint.Wrap(fmt.Errorf("offset %v of %v bytes", offset, f.size), afero.ErrOutOfRange)
	}

	if err := f.seek(uint32(offset)); err != nil {
		return 0, err
	}
	return offset, nil
}

func (f *File) Name() string {
	return f.name
}

// Readdir reads the contents of a directory.
// May return syscall.ENOTDIR if the File is no directory.
func (f *File) Readdir(count int) ([]os.FileInfo, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	if !f.open {
		return nil, checkpoint.From(ErrClosed)
	}
	if !f.isDirectory {
		return nil, checkpoint.Wrap(syscall.ENOTDIR, ErrNotDirectory)
	}

	entries, err := f.v.readDir(f.dirCluster, f.v.newSteps())
	if err != nil {
		return nil, err
	}

	if f.dirOffset > len(entries) {
		f.dirOffset = len(entries)
	}
	entries = entries[f.dirOffset:]

	if count > 0 {
		if len(entries) == 0 {
			return nil, io.EOF
		}
		if count < len(entries) {
			entries = entries[:count]
		}
	}
	f.dirOffset += len(entries)

	result := make([]os.FileInfo, len(entries))
	for i := range entries {
		result[i] = entries[i].FileInfo()
	}
	return result, nil
}

func (f *File) Readdirnames(count int) ([]string, error) {
	content, err := f.Readdir(count)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(content))
	for i, entry := range content {
		names[i] = entry.Name()
	}
	return names, nil
}

// Stat returns the FileInfo of the flushed state of the file.
func (f *File) Stat() (os.FileInfo, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	if !f.open {
		return nil, checkpoint.From(ErrClosed)
	}
	if f.isDirectory {
		_, name := splitPath(strings.TrimRight(f.name, "/\\"))
		if name == "" {
			name = "/"
		}
		return dirInfo{name: name}, nil
	}
	return f.entry.FileInfo(), nil
}
