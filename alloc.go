package gofat32

import (
	"encoding/binary"
	"errors"

	"github.com/aligator/gofat32/checkpoint"
	"github.com/sirupsen/logrus"
)

// noFreeCluster marks that the allocator knows no free cluster.
const noFreeCluster = 0xFFFFFFFF

// allocator is the free cluster bookkeeping of a volume.
// The FAT stays authoritative, the cache only speeds up the search.
type allocator struct {
	freeCount uint32

	// nextFree is handed out by the next allocation.
	nextFree uint32

	// cacheSector is the FAT sector (relative to the FAT start) described by cache.
	cacheSector uint32
	cacheValid  bool
	// cache has one bit per entry of cacheSector, set if the entry is in use.
	cache [entriesPerFATSector / 8]byte
}

type allocSnapshot struct {
	nextFree    uint32
	cacheSector uint32
	cacheValid  bool
	cache       [entriesPerFATSector / 8]byte
}

func (a *allocator) snapshot() allocSnapshot {
	return allocSnapshot{
		nextFree:    a.nextFree,
		cacheSector: a.cacheSector,
		cacheValid:  a.cacheValid,
		cache:       a.cache,
	}
}

func (a *allocator) restore(s allocSnapshot) {
	a.nextFree = s.nextFree
	a.cacheSector = s.cacheSector
	a.cacheValid = s.cacheValid
	a.cache = s.cache
}

func (a *allocator) inUse(idx int) bool {
	return a.cache[idx/8]&(1<<(idx%8)) != 0
}

// primeAllocator loads the free count and searches the first free cluster.
// Must be called with fatLock held.
func (v *Volume) primeAllocator() error {
	free, ok, err := v.readFSInfo()
	if err != nil {
		return err
	}
	if !ok {
		if free, err = v.countFree(); err != nil {
			return err
		}
	}
	v.alloc.freeCount = free

	first, err := v.firstFree()
	switch {
	case errors.Is(err, ErrNoFreeClusters):
		v.alloc.nextFree = noFreeCluster
		return nil
	case err != nil:
		return err
	}
	v.alloc.nextFree = first
	return v.rebuildCache(first / entriesPerFATSector)
}

// countFree counts all free entries of the FAT.
func (v *Volume) countFree() (uint32, error) {
	max := v.geo.MaxCluster()
	var free uint32
	for rel := uint32(0); rel < v.geo.SectorsPerFAT; rel++ {
		buf, err := v.fetchFAT(v.geo.FATStart + rel)
		if err != nil {
			return 0, err
		}
		for i := 0; i < entriesPerFATSector; i++ {
			c := rel*entriesPerFATSector + uint32(i)
			if c < 2 {
				continue
			}
			if c > max {
				return free, nil
			}
			if fatEntry(binary.LittleEndian.Uint32(buf[i*4:])).IsFree() {
				free++
			}
		}
	}
	return free, nil
}

// rebuildCache reads the FAT sector rel and builds the occupancy cache for it.
// It always reads exactly one sector from the device.
func (v *Volume) rebuildCache(rel uint32) error {
	buf := make([]byte, sectorSize)
	if err := v.readSectors(buf, v.geo.FATStart+rel); err != nil {
		v.alloc.cacheValid = false
		return err
	}

	var cache [entriesPerFATSector / 8]byte
	for i := 0; i < entriesPerFATSector; i++ {
		if !fatEntry(binary.LittleEndian.Uint32(buf[i*4:])).IsFree() {
			cache[i/8] |= 1 << (i % 8)
		}
	}
	v.alloc.cache = cache
	v.alloc.cacheSector = rel
	v.alloc.cacheValid = true
	return nil
}

// firstFree scans the whole FAT from the start and returns the first free cluster.
// Clusters 0 and 1 are never returned.
func (v *Volume) firstFree() (uint32, error) {
	max := v.geo.MaxCluster()
	for rel := uint32(0); rel < v.geo.SectorsPerFAT; rel++ {
		base := rel * entriesPerFATSector
		if base > max {
			break
		}

		buf, err := v.fetchFAT(v.geo.FATStart + rel)
		if err != nil {
			return 0, err
		}
		for i := 0; i < entriesPerFATSector; i++ {
			c := base + uint32(i)
			if c < 2 {
				continue
			}
			if c > max {
				break
			}
			if fatEntry(binary.LittleEndian.Uint32(buf[i*4:])).IsFree() {
				return c, nil
			}
		}
	}
	return 0, checkpoint.From(ErrNoFreeClusters)
}

// nextFreeAfter searches the first free cluster behind current using the occupancy cache.
// The cache is rebuilt for the sector containing current+1 and for every following sector.
// If nothing is free up to the end of the FAT, the search wraps around to the start.
func (v *Volume) nextFreeAfter(current uint32) (uint32, error) {
	max := v.geo.MaxCluster()
	start := current + 1
	for rel := start / entriesPerFATSector; rel < v.geo.SectorsPerFAT; rel++ {
		base := rel * entriesPerFATSector
		if base > max {
			break
		}
		if err := v.rebuildCache(rel); err != nil {
			return 0, err
		}

		i := 0
		if base < start {
			i = int(start - base)
		}
		for ; i < entriesPerFATSector; i++ {
			c := base + uint32(i)
			if c < 2 {
				continue
			}
			if c > max {
				break
			}
			if !v.alloc.inUse(i) {
				return c, nil
			}
		}
	}
	return v.firstFree()
}

// allocate takes the next free cluster, marks it as end of chain and persists the free count.
// Must be called with fatLock held.
func (v *Volume) allocate() (uint32, error) {
	c := v.alloc.nextFree
	if c == noFreeCluster {
		return 0, checkpoint.From(ErrNoFreeClusters)
	}

	// The hint may be outdated, the FAT decides.
	e, err := v.nextLocked(c)
	if err != nil {
		return 0, err
	}
	if !e.IsFree() {
		if c, err = v.nextFreeAfter(c); err != nil {
			if errors.Is(err, ErrNoFreeClusters) {
				v.alloc.nextFree = noFreeCluster
			}
			return 0, err
		}
	}

	if err := v.link(c, fatEOC); err != nil {
		// A copy may already hold the mark.
		if uerr := v.link(c, fatFree); uerr != nil {
			v.log.WithError(uerr).WithField("cluster", c).Warn("could not clear cluster")
		}
		return 0, err
	}
	if v.alloc.freeCount > 0 {
		v.alloc.freeCount--
	}
	if err := v.writeFSInfo(); err != nil {
		if rerr := v.release(c); rerr != nil {
			v.log.WithError(rerr).WithField("cluster", c).Warn("could not release cluster")
		}
		return 0, err
	}

	next, err := v.nextFreeAfter(c)
	switch {
	case errors.Is(err, ErrNoFreeClusters):
		v.alloc.nextFree = noFreeCluster
	case err != nil:
		// Keep the used cluster as hint, the next allocation searches again.
		v.log.WithError(err).Warn("could not search the next free cluster")
		v.alloc.nextFree = c
	default:
		v.alloc.nextFree = next
	}

	v.log.WithFields(logrus.Fields{"cluster": c, "free": v.alloc.freeCount}).Debug("allocated cluster")
	return c, nil
}

// release frees a cluster which was allocated but never became part of a chain.
// Must be called with fatLock held.
func (v *Volume) release(c uint32) error {
	if err := v.link(c, fatFree); err != nil {
		return err
	}
	v.alloc.freeCount++

	if rel := c / entriesPerFATSector; v.alloc.cacheValid && v.alloc.cacheSector == rel {
		idx := c % entriesPerFATSector
		v.alloc.cache[idx/8] &^= 1 << (idx % 8)
	}
	if v.alloc.nextFree == noFreeCluster || c < v.alloc.nextFree {
		v.alloc.nextFree = c
	}

	v.log.WithFields(logrus.Fields{"cluster": c, "free": v.alloc.freeCount}).Debug("released cluster")
	return v.writeFSInfo()
}

// allocClusters allocates count clusters one by one.
// If one allocation fails, all clusters of this call are released again and the
// allocator state is restored before the error is returned.
func (v *Volume) allocClusters(count uint32) ([]uint32, allocSnapshot, error) {
	v.fatLock.Lock()
	defer v.fatLock.Unlock()

	snap := v.alloc.snapshot()
	if count == 0 {
		return nil, snap, nil
	}

	clusters := make([]uint32, 0, count)
	for i := uint32(0); i < count; i++ {
		c, err := v.allocate()
		if err != nil {
			v.rollback(clusters, snap)
			return nil, snap, err
		}
		clusters = append(clusters, c)
	}
	return clusters, snap, nil
}

// freeClusters undoes allocClusters.
func (v *Volume) freeClusters(clusters []uint32, snap allocSnapshot) {
	v.fatLock.Lock()
	defer v.fatLock.Unlock()
	v.rollback(clusters, snap)
}

func (v *Volume) rollback(clusters []uint32, snap allocSnapshot) {
	for i := len(clusters) - 1; i >= 0; i-- {
		if err := v.release(clusters[i]); err != nil {
			v.log.WithError(err).WithField("cluster", clusters[i]).Warn("could not release cluster")
		}
	}
	v.alloc.restore(snap)
}
