package gofat32

import (
	"fmt"
	"math"
	"os"

	"github.com/aligator/gofat32/checkpoint"
	"github.com/sirupsen/logrus"
)

// writeRun is a range of consecutive clusters allocated by appends but not yet linked in the FAT.
type writeRun struct {
	start uint32
	end   uint32
}

// addToRun records an allocated cluster. A cluster directly following the last run extends it.
func (f *File) addToRun(c uint32) {
	if n := len(f.runs); n > 0 && f.runs[n-1].end+1 == c {
		f.runs[n-1].end = c
		return
	}
	f.runs = append(f.runs, writeRun{start: c, end: c})
}

func (f *File) writable() error {
	if !f.open {
		return checkpoint.From(ErrClosed)
	}
	if f.isDirectory {
		return checkpoint.From(ErrIsDirectory)
	}
	if f.readOnly {
		return checkpoint.Wrap(fmt.Errorf("%q is opened read only", f.name), os.ErrPermission)
	}
	return nil
}

// Write appends p to the end of the file, regardless of the read cursor.
// The data is on the device when Write returns, but the new clusters are linked and
// the size is updated only by Sync or Close.
func (f *File) Write(p []byte) (int, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	if err := f.writable(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	if uint64(f.size)+uint64(f.pending)+uint64(len(p)) > math.MaxUint32 {
		return 0, checkpoint.Wrap(fmt.Errorf("%q would exceed 4 GiB", f.name), ErrNotSupported)
	}

	v := f.v
	clusterSize := v.geo.ClusterSize()
	n := uint32(len(p))

	var need uint32
	if n > f.tailFree {
		need = n - f.tailFree
	}
	count := (need + clusterSize - 1) / clusterSize

	clusters, snap, err := v.allocClusters(count)
	if err != nil {
		return 0, err
	}

	prevRuns := append([]writeRun(nil), f.runs...)
	prevFirst := f.firstCluster
	if f.firstCluster == 0 && count > 0 {
		f.firstCluster = clusters[0]
	}
	for _, c := range clusters {
		f.addToRun(c)
	}

	if err := f.writeData(p, clusters); err != nil {
		f.runs = prevRuns
		f.firstCluster = prevFirst
		v.freeClusters(clusters, snap)
		return 0, err
	}

	if count > 0 {
		f.lastCluster = clusters[len(clusters)-1]
		f.tailFree = count*clusterSize - need
	} else {
		f.tailFree -= n
	}
	f.pending += n

	v.log.WithFields(logrus.Fields{
		"name":     f.name,
		"bytes":    n,
		"clusters": count,
		"pending":  f.pending,
	}).Debug("appended")
	return len(p), nil
}

// WriteString appends s, see Write.
func (f *File) WriteString(s string) (int, error) {
	return f.Write([]byte(s))
}

// WriteAt is only supported at the end of the file.
func (f *File) WriteAt(p []byte, off int64) (int, error) {
	f.lock.Lock()
	end := int64(f.size) + int64(f.pending)
	f.lock.Unlock()

	if off != end {
		return 0, checkpoint.Wrap(fmt.Errorf("write at %d, end is %d", off, end), ErrNotSupported)
	}
	return f.Write(p)
}

// Truncate only accepts the current size, files cannot shrink or grow without data.
func (f *File) Truncate(size int64) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	if err := f.writable(); err != nil {
		return err
	}
	if end := int64(f.size) + int64(f.pending); size != end {
		return checkpoint.Wrap(fmt.Errorf("truncate to %d, size is %d", size, end), ErrNotSupported)
	}
	return nil
}

// writeData writes p into the free space of the last cluster and then into the new clusters.
func (f *File) writeData(p []byte, clusters []uint32) error {
	clusterSize := f.v.geo.ClusterSize()

	if f.tailFree > 0 && f.lastCluster != 0 {
		n := uint32(len(p))
		if n > f.tailFree {
			n = f.tailFree
		}
		if err := f.writeCluster(f.lastCluster, clusterSize-f.tailFree, p[:n]); err != nil {
			return err
		}
		p = p[n:]
	}

	for _, c := range clusters {
		n := uint32(len(p))
		if n > clusterSize {
			n = clusterSize
		}
		if err := f.writeCluster(c, 0, p[:n]); err != nil {
			return err
		}
		p = p[n:]
	}

	if len(p) != 0 {
		return checkpoint.From(fmt.Errorf("append: %d bytes left after the last cluster", len(p)))
	}
	return nil
}

// writeCluster writes data into a cluster starting at the byte offset off.
// Only a sector which already holds data of the file is read first,
// a partial sector behind the data is padded with zeros.
func (f *File) writeCluster(c, off uint32, data []byte) error {
	v := f.v
	first, err := v.clusterToSector(c)
	if err != nil {
		return err
	}
	sector := first + off/sectorSize

	if within := off % sectorSize; within != 0 {
		buf := make([]byte, sectorSize)
		if err := v.readSectors(buf, sector); err != nil {
			return err
		}
		n := copy(buf[within:], data)
		if err := v.writeSectors(buf, sector); err != nil {
			return err
		}
		data = data[n:]
		sector++
	}

	if whole := len(data) / sectorSize * sectorSize; whole > 0 {
		if err := v.writeSectors(data[:whole], sector); err != nil {
			return err
		}
		data = data[whole:]
		sector += uint32(whole / sectorSize)
	}

	if len(data) > 0 {
		buf := make([]byte, sectorSize)
		copy(buf, data)
		return v.writeSectors(buf, sector)
	}
	return nil
}

// Sync links the appended clusters into the chain and updates the directory entry.
func (f *File) Sync() error {
	f.lock.Lock()
	defer f.lock.Unlock()

	if !f.open {
		return checkpoint.From(ErrClosed)
	}
	return f.sync()
}

func (f *File) sync() error {
	if f.isDirectory || (len(f.runs) == 0 && f.pending == 0) {
		return nil
	}
	v := f.v

	v.fatLock.Lock()
	err := f.commitRuns()
	if err == nil {
		err = v.writeFSInfo()
	}
	v.fatLock.Unlock()
	if err != nil {
		return err
	}

	h := f.entry
	h.FileSize = f.size + f.pending
	if h.Cluster() == 0 {
		h.SetCluster(f.firstCluster)
	}
	v.touch(&h)

	v.dirLock.Lock()
	err = v.writeEntry(f.slot, &h)
	v.dirLock.Unlock()
	if err != nil {
		return err
	}

	offset := f.size - f.remaining
	atEnd := f.remaining == 0

	f.entry = h
	f.size = h.FileSize
	f.remaining = f.size - offset
	f.pending = 0

	v.log.WithFields(logrus.Fields{"name": f.name, "size": f.size, "first": f.firstCluster}).Debug("synced")

	// The cursor of an exhausted read may not point into the new data yet.
	if atEnd {
		return f.seek(offset)
	}
	return nil
}

// commitRuns links every run and then hooks it onto the committed chain,
// so the chain on the device is valid after each step. Must be called with fatLock held.
func (f *File) commitRuns() error {
	v := f.v
	for len(f.runs) > 0 {
		r := f.runs[0]
		if err := v.linkRun(r.start, r.end, fatEOC); err != nil {
			return err
		}
		if f.committedLast != 0 {
			if err := v.link(f.committedLast, fatEntry(r.start)); err != nil {
				return err
			}
		}
		v.log.WithFields(logrus.Fields{"run_start": r.start, "run_end": r.end, "cluster": f.committedLast}).Debug("linked run")
		f.committedLast = r.end
		f.runs = f.runs[1:]
	}
	f.runs = nil
	return nil
}

// abandon releases the clusters of a failed flush which nothing on the device refers to.
// The directory entry on the device is still f.entry.
func (f *File) abandon() {
	v := f.v
	v.fatLock.Lock()
	defer v.fatLock.Unlock()

	var lost []uint32
	if f.entry.Cluster() == 0 && f.committedLast != 0 {
		for c := f.firstCluster; ; {
			lost = append(lost, c)
			if c == f.committedLast {
				break
			}
			e, err := v.nextLocked(c)
			if err != nil || !e.IsNextCluster() {
				break
			}
			c = e.Value()
		}
	} else if f.committedLast != 0 {
		// The link to the next run may be half written.
		if err := v.link(f.committedLast, fatEOC); err != nil {
			v.log.WithError(err).WithField("cluster", f.committedLast).Warn("could not terminate chain")
		}
	}
	for _, r := range f.runs {
		for c := r.start; c <= r.end; c++ {
			lost = append(lost, c)
		}
	}

	for _, c := range lost {
		if err := v.release(c); err != nil {
			v.log.WithError(err).WithField("cluster", c).Warn("could not release cluster")
		}
	}
	v.log.WithFields(logrus.Fields{"name": f.name, "clusters": len(lost)}).Warn("dropped unflushed data")
}
