package gofat32

import (
	"encoding/binary"
	"fmt"

	"github.com/aligator/gofat32/checkpoint"
)

// fatEntry is the value of a FAT entry. Only the lower 28 bits are used by FAT32.
type fatEntry uint32

const (
	fatMask     fatEntry = 0x0FFFFFFF
	fatFree     fatEntry = 0x00000000
	fatBad      fatEntry = 0x0FFFFFF7
	fatEOC      fatEntry = 0x0FFFFFFF
	fatEOCFirst fatEntry = 0x0FFFFFF8

	entriesPerFATSector = sectorSize / 4
)

// Value returns the entry without the reserved upper bits.
func (e fatEntry) Value() uint32 {
	return uint32(e & fatMask)
}

func (e fatEntry) IsFree() bool {
	return e.Value() == uint32(fatFree)
}

// IsReserved reports the value 1 which must never appear in a chain.
func (e fatEntry) IsReserved() bool {
	return e.Value() == 1
}

func (e fatEntry) IsBad() bool {
	return e.Value() == uint32(fatBad)
}

func (e fatEntry) IsEOF() bool {
	return e.Value() >= uint32(fatEOCFirst)
}

// IsNextCluster reports if the entry links to another cluster.
func (e fatEntry) IsNextCluster() bool {
	return e.Value() >= 2 && e.Value() < uint32(fatBad)
}

// window is a single cached FAT sector.
type window struct {
	sector uint32
	valid  bool
	buf    []byte
}

// fatLocation returns the FAT1 sector containing the entry of the cluster and
// the index of the entry inside of that sector.
func (v *Volume) fatLocation(cluster uint32) (uint32, int) {
	offset := cluster * 4
	return v.geo.FATStart + offset/sectorSize, int(offset%sectorSize) / 4
}

// fetchFAT returns the content of a FAT1 sector. The returned slice is the window buffer,
// so it is only valid until the next call. Must be called with fatLock held.
func (v *Volume) fetchFAT(sector uint32) ([]byte, error) {
	if v.fat.valid && v.fat.sector == sector {
		return v.fat.buf, nil
	}

	v.fat.valid = false
	if err := v.readSectors(v.fat.buf, sector); err != nil {
		return nil, err
	}
	v.fat.sector = sector
	v.fat.valid = true
	return v.fat.buf, nil
}

// storeFAT writes a FAT1 sector and mirrors it into all the other FAT copies.
// Must be called with fatLock held.
func (v *Volume) storeFAT(buf []byte, sector uint32) error {
	if &buf[0] != &v.fat.buf[0] {
		copy(v.fat.buf, buf)
	}
	v.fat.sector = sector
	v.fat.valid = false

	for i := uint32(0); i < uint32(v.geo.NumFATs); i++ {
		if err := v.writeSectors(buf, sector+i*v.geo.SectorsPerFAT); err != nil {
			return err
		}
	}
	v.fat.valid = true
	return nil
}

func (v *Volume) checkCluster(cluster uint32) error {
	if cluster < 2 || cluster > v.geo.MaxCluster() {
		return checkpoint.Wrap(fmt.Errorf("cluster %d, max %d", cluster, v.geo.MaxCluster()), ErrInvalidCluster)
	}
	return nil
}

// next reads the FAT entry of a cluster.
func (v *Volume) next(cluster uint32) (fatEntry, error) {
	v.fatLock.Lock()
	defer v.fatLock.Unlock()
	return v.nextLocked(cluster)
}

func (v *Volume) nextLocked(cluster uint32) (fatEntry, error) {
	if err := v.checkCluster(cluster); err != nil {
		return 0, err
	}

	sector, idx := v.fatLocation(cluster)
	buf, err := v.fetchFAT(sector)
	if err != nil {
		return 0, err
	}
	return fatEntry(binary.LittleEndian.Uint32(buf[idx*4:])) & fatMask, nil
}

// putEntry sets an entry inside of a FAT sector and keeps its reserved upper bits.
func putEntry(buf []byte, idx int, value fatEntry) {
	old := binary.LittleEndian.Uint32(buf[idx*4:])
	binary.LittleEndian.PutUint32(buf[idx*4:], old&^uint32(fatMask)|uint32(value&fatMask))
}

// link sets the FAT entry of a cluster. Must be called with fatLock held.
// This is a single sector read-modify-write.
func (v *Volume) link(cluster uint32, value fatEntry) error {
	if err := v.checkCluster(cluster); err != nil {
		return err
	}

	sector, idx := v.fatLocation(cluster)
	buf, err := v.fetchFAT(sector)
	if err != nil {
		return err
	}
	putEntry(buf, idx, value)
	return v.storeFAT(buf, sector)
}

// linkRun chains the clusters start..end (inclusive) to each other and sets the entry of end to tail.
// Each FAT sector spanned by the run is written once. Must be called with fatLock held.
func (v *Volume) linkRun(start, end uint32, tail fatEntry) error {
	if err := v.checkCluster(start); err != nil {
		return err
	}
	if err := v.checkCluster(end); err != nil {
		return err
	}

	for c := start; c <= end; {
		sector, _ := v.fatLocation(c)
		buf, err := v.fetchFAT(sector)
		if err != nil {
			return err
		}

		for ; c <= end; c++ {
			s, idx := v.fatLocation(c)
			if s != sector {
				break
			}

			value := fatEntry(c + 1)
			if c == end {
				value = tail
			}
			putEntry(buf, idx, value)
		}

		if err := v.storeFAT(buf, sector); err != nil {
			return err
		}
	}
	return nil
}

// clusterToSector returns the first sector of a data cluster.
func (v *Volume) clusterToSector(cluster uint32) (uint32, error) {
	if err := v.checkCluster(cluster); err != nil {
		return 0, err
	}
	return (cluster-2)*uint32(v.geo.SectorsPerCluster) + v.geo.FirstDataSector, nil
}

// walkChain follows a chain to its end and returns the last cluster and the chain length.
// An empty chain (first == 0) has length 0.
func (v *Volume) walkChain(first uint32) (uint32, uint32, error) {
	if first == 0 {
		return 0, 0, nil
	}

	v.fatLock.Lock()
	defer v.fatLock.Unlock()

	limit := v.geo.ClusterCount()
	cluster, length := first, uint32(1)
	for {
		e, err := v.nextLocked(cluster)
		if err != nil {
			return 0, 0, err
		}
		if e.IsEOF() {
			return cluster, length, nil
		}
		if !e.IsNextCluster() {
			return 0, 0, checkpoint.Wrap(fmt.Errorf("cluster %d links to %#x", cluster, e.Value()), ErrCorruptChain)
		}

		cluster = e.Value()
		length++
		if length > limit {
			return 0, 0, checkpoint.Wrap(fmt.Errorf("chain from %d loops", first), ErrCorruptChain)
		}
	}
}
