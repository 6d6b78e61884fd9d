package gofat32

import (
	"fmt"

	"github.com/aligator/gofat32/checkpoint"
	"github.com/sirupsen/logrus"
)

// dirSlot is the position of a directory entry on the device.
type dirSlot struct {
	sector uint32
	index  int
}

// steps bounds the work of a single operation on possibly corrupt directory chains.
type steps struct {
	left int
}

func (v *Volume) newSteps() *steps {
	return &steps{left: v.cfg.MaxPathSteps}
}

func (s *steps) take() error {
	if s.left <= 0 {
		return checkpoint.From(ErrPathTimeout)
	}
	s.left--
	return nil
}

// scanResult describes where a directory scan stopped.
type scanResult struct {
	// free is the first unused slot, only set if hasFree is true.
	free    dirSlot
	hasFree bool
	// tail is the last cluster visited.
	tail uint32
}

// scanDir visits all live entries of the directory starting at cluster dir.
// Deleted entries, long name slots and the volume label are skipped.
// The scan ends at the first unused slot, at the end of the chain or as soon as visit returns true.
func (v *Volume) scanDir(dir uint32, s *steps, visit func(h *EntryHeader, slot dirSlot) bool) (scanResult, error) {
	var res scanResult
	buf := make([]byte, sectorSize)
	spc := uint32(v.geo.SectorsPerCluster)

	cluster := dir
	for {
		if err := s.take(); err != nil {
			return res, err
		}
		res.tail = cluster

		first, err := v.clusterToSector(cluster)
		if err != nil {
			return res, err
		}

		for sec := uint32(0); sec < spc; sec++ {
			if err := v.readSectors(buf, first+sec); err != nil {
				return res, err
			}

			for i := 0; i < entriesPerSector; i++ {
				raw := buf[i*entrySize : (i+1)*entrySize]
				switch raw[0] {
				case entryEnd:
					res.free = dirSlot{sector: first + sec, index: i}
					res.hasFree = true
					return res, nil
				case entryDeleted:
					continue
				}

				h, err := decodeEntry(raw)
				if err != nil {
					return res, err
				}
				if h.IsLongName() || h.IsVolumeLabel() {
					continue
				}
				if visit != nil && visit(&h, dirSlot{sector: first + sec, index: i}) {
					return res, nil
				}
			}
		}

		e, err := v.next(cluster)
		if err != nil {
			return res, err
		}
		if e.IsEOF() {
			return res, nil
		}
		if !e.IsNextCluster() {
			return res, checkpoint.Wrap(fmt.Errorf("directory cluster %d links to %#x", cluster, e.Value()), ErrCorruptChain)
		}
		cluster = e.Value()
	}
}

// lookup searches a path component in the directory starting at cluster dir.
func (v *Volume) lookup(dir uint32, component string, s *steps) (EntryHeader, dirSlot, error) {
	key, err := lookupKey(component)
	if err != nil {
		return EntryHeader{}, dirSlot{}, err
	}

	var (
		found bool
		hit   EntryHeader
		at    dirSlot
	)
	dots := key == "." || key == ".."
	_, err = v.scanDir(dir, s, func(h *EntryHeader, slot dirSlot) bool {
		if h.IsDot() != dots {
			return false
		}
		if namesEqual(h.DisplayName(), key, v.cfg.StrictNames) {
			found, hit, at = true, *h, slot
			return true
		}
		return false
	})
	if err != nil {
		return EntryHeader{}, dirSlot{}, err
	}
	if !found {
		return EntryHeader{}, dirSlot{}, checkpoint.Wrap(fmt.Errorf("%q in cluster %d", component, dir), ErrNotFound)
	}
	return hit, at, nil
}

// readDir returns all entries of a directory except "." and "..".
func (v *Volume) readDir(dir uint32, s *steps) ([]EntryHeader, error) {
	var entries []EntryHeader
	_, err := v.scanDir(dir, s, func(h *EntryHeader, _ dirSlot) bool {
		if !h.IsDot() {
			entries = append(entries, *h)
		}
		return false
	})
	return entries, err
}

// writeEntry stores an entry at its slot. Must be called with dirLock held.
func (v *Volume) writeEntry(slot dirSlot, h *EntryHeader) error {
	buf := make([]byte, sectorSize)
	if err := v.readSectors(buf, slot.sector); err != nil {
		return err
	}
	if err := h.put(buf[slot.index*entrySize:]); err != nil {
		return err
	}
	return v.writeSectors(buf, slot.sector)
}

// zeroCluster clears all sectors of a cluster with a single write.
func (v *Volume) zeroCluster(cluster uint32) error {
	first, err := v.clusterToSector(cluster)
	if err != nil {
		return err
	}
	return v.writeSectors(make([]byte, v.geo.ClusterSize()), first)
}

// allocCluster allocates a single cluster and clears it.
func (v *Volume) allocCluster() (uint32, error) {
	clusters, snap, err := v.allocClusters(1)
	if err != nil {
		return 0, err
	}
	if err := v.zeroCluster(clusters[0]); err != nil {
		v.freeClusters(clusters, snap)
		return 0, err
	}
	return clusters[0], nil
}

// extendDir appends a cleared cluster to a full directory chain and returns its first slot.
// Must be called with dirLock held.
func (v *Volume) extendDir(tail uint32) (dirSlot, error) {
	c, err := v.allocCluster()
	if err != nil {
		return dirSlot{}, err
	}

	sector, err := v.clusterToSector(c)
	if err != nil {
		return dirSlot{}, err
	}

	v.fatLock.Lock()
	err = v.link(tail, fatEntry(c))
	if err != nil {
		// Only some FAT copies may point to c.
		if uerr := v.link(tail, fatEOC); uerr != nil {
			v.log.WithError(uerr).WithField("cluster", tail).Warn("could not terminate directory")
		}
	}
	v.fatLock.Unlock()
	if err != nil {
		v.discard(c)
		return dirSlot{}, err
	}

	v.log.WithFields(logrus.Fields{"cluster": c, "tail": tail}).Debug("extended directory")
	return dirSlot{sector: sector, index: 0}, nil
}

// discard releases a single cluster which did not become part of a chain.
func (v *Volume) discard(c uint32) {
	v.fatLock.Lock()
	defer v.fatLock.Unlock()
	if err := v.release(c); err != nil {
		v.log.WithError(err).WithField("cluster", c).Warn("could not release cluster")
	}
}

// newDirCluster allocates and initializes the first cluster of a new directory
// with its "." and ".." entries.
func (v *Volume) newDirCluster(parent uint32) (uint32, error) {
	c, err := v.allocCluster()
	if err != nil {
		return 0, err
	}

	parentRef := parent
	if parent == rootCluster {
		parentRef = 0
	}

	dot := dotEntry(".", c)
	dotdot := dotEntry("..", parentRef)
	v.stamp(&dot)
	v.stamp(&dotdot)

	sector, err := v.clusterToSector(c)
	if err != nil {
		return 0, err
	}

	buf := make([]byte, sectorSize)
	err = dot.put(buf)
	if err == nil {
		err = dotdot.put(buf[entrySize:])
	}
	if err == nil {
		err = v.writeSectors(buf, sector)
	}
	if err != nil {
		v.discard(c)
		return 0, err
	}
	return c, nil
}

// createEntry creates a new file or directory entry named name in the directory parent.
func (v *Volume) createEntry(parent uint32, name string, isDir bool, s *steps) error {
	raw, flags, err := shortName(name)
	if err != nil {
		return err
	}
	key := (&EntryHeader{Name: raw}).DisplayName()

	v.dirLock.Lock()
	defer v.dirLock.Unlock()

	var exists bool
	res, err := v.scanDir(parent, s, func(h *EntryHeader, _ dirSlot) bool {
		exists = !h.IsDot() && namesEqual(h.DisplayName(), key, v.cfg.StrictNames)
		return exists
	})
	if err != nil {
		return err
	}
	if exists {
		return checkpoint.Wrap(fmt.Errorf("%q", name), ErrAlreadyExists)
	}

	h := EntryHeader{Name: raw, CaseFlags: flags, Attribute: AttrArchive}
	v.stamp(&h)

	var dirCluster uint32
	if isDir {
		h.Attribute = AttrDirectory
		if dirCluster, err = v.newDirCluster(parent); err != nil {
			return err
		}
		h.SetCluster(dirCluster)
	}

	slot := res.free
	if !res.hasFree {
		if slot, err = v.extendDir(res.tail); err != nil {
			if isDir {
				v.discard(dirCluster)
			}
			return err
		}
	}

	if err := v.writeEntry(slot, &h); err != nil {
		if isDir {
			v.discard(dirCluster)
		}
		return err
	}

	v.log.WithFields(logrus.Fields{"name": key, "dir": isDir, "sector": slot.sector, "slot": slot.index}).Debug("created entry")
	return nil
}
