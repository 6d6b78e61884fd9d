package gofat32

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/aligator/gofat32/blockdev"
	"github.com/aligator/gofat32/internal/mbr"
	"github.com/go-restruct/restruct"
	"github.com/stretchr/testify/require"
)

// layout describes a test image created by format.
type layout struct {
	sectorsPerCluster uint8
	reserved          uint16
	fats              uint8
	fatSize           uint32
	// sectors is the size of the volume without the MBR area.
	sectors uint32
	// partitionStart > 0 puts an MBR in front of the volume.
	partitionStart uint32
	// brokenFSInfo leaves the FSINFO sector empty.
	brokenFSInfo bool
}

// smallLayout has 126 data clusters of one sector each.
func smallLayout() layout {
	return layout{
		sectorsPerCluster: 1,
		reserved:          32,
		fats:              2,
		fatSize:           1,
		sectors:           160,
	}
}

var testTime = time.Date(2021, time.March, 14, 15, 9, 26, 0, time.UTC)

func testNow() time.Time {
	return testTime
}

// format creates a freshly formatted volume with an empty root directory in cluster 2.
func format(t *testing.T, l layout) *blockdev.Memory {
	t.Helper()

	dev := blockdev.NewMemory(l.partitionStart + l.sectors)
	data := dev.Bytes()
	start := int(l.partitionStart) * sectorSize

	if l.partitionStart > 0 {
		require.NoError(t, mbr.Put(data[:sectorSize], 0, mbr.Entry{
			Type:     0x0C,
			StartLBA: l.partitionStart,
			Sectors:  l.sectors,
		}))
	}

	bpb := BPB{
		JumpBoot:          [3]byte{0xEB, 0x58, 0x90},
		BytesPerSector:    sectorSize,
		SectorsPerCluster: l.sectorsPerCluster,
		ReservedSectors:   l.reserved,
		NumFATs:           l.fats,
		Media:             0xF8,
		TotalSectors32:    l.sectors,
		FATSize32:         l.fatSize,
		RootCluster:       rootCluster,
		FSInfo:            1,
		BootSignature:     0x29,
	}
	copy(bpb.OEMName[:], "GOFAT32 ")
	copy(bpb.VolumeLabel[:], "TESTVOLUME ")
	copy(bpb.FileSystemType[:], "FAT32   ")

	raw, err := restruct.Pack(binary.LittleEndian, &bpb)
	require.NoError(t, err)
	require.Len(t, raw, bpbSize)
	copy(data[start:], raw)
	binary.LittleEndian.PutUint16(data[start+510:], 0xAA55)

	g := Geometry{
		SectorsPerCluster: l.sectorsPerCluster,
		SectorsPerFAT:     l.fatSize,
		TotalSectors:      l.sectors,
		PartitionStart:    l.partitionStart,
		FirstDataSector:   l.partitionStart + uint32(l.reserved) + uint32(l.fats)*l.fatSize,
	}

	if !l.brokenFSInfo {
		info := data[start+sectorSize : start+2*sectorSize]
		binary.LittleEndian.PutUint32(info[fsInfoLeadOffset:], fsInfoLeadSignature)
		binary.LittleEndian.PutUint32(info[fsInfoStructOffset:], fsInfoStructSignature)
		binary.LittleEndian.PutUint32(info[fsInfoFreeOffset:], g.ClusterCount()-1)
		binary.LittleEndian.PutUint32(info[fsInfoFreeOffset+4:], 3)
		binary.LittleEndian.PutUint32(info[fsInfoTrailOffset:], fsInfoTrailSignature)
	}

	for i := uint32(0); i < uint32(l.fats); i++ {
		fat := start + int(uint32(l.reserved)+i*l.fatSize)*sectorSize
		binary.LittleEndian.PutUint32(data[fat:], 0x0FFFFFF8)
		binary.LittleEndian.PutUint32(data[fat+4:], 0x0FFFFFFF)
		binary.LittleEndian.PutUint32(data[fat+8:], uint32(fatEOC))
	}

	return dev
}

// mount mounts dev with fixed timestamps.
func mount(t *testing.T, dev blockdev.Device) *Volume {
	t.Helper()
	v, err := MountWithConfig(dev, Config{Now: testNow})
	require.NoError(t, err)
	return v
}

// fatValue reads an entry of the given FAT copy directly from the device content.
func fatValue(dev *blockdev.Memory, v *Volume, copyIdx int, cluster uint32) uint32 {
	fat := v.geo.FATStart + uint32(copyIdx)*v.geo.SectorsPerFAT
	off := int(fat)*sectorSize + int(cluster)*4
	return binary.LittleEndian.Uint32(dev.Bytes()[off:]) & uint32(fatMask)
}

// setFAT changes an entry in all FAT copies directly on the device content.
func setFAT(dev *blockdev.Memory, v *Volume, cluster uint32, value uint32) {
	for i := uint32(0); i < uint32(v.geo.NumFATs); i++ {
		fat := v.geo.FATStart + i*v.geo.SectorsPerFAT
		off := int(fat)*sectorSize + int(cluster)*4
		binary.LittleEndian.PutUint32(dev.Bytes()[off:], value)
	}
	v.fat.valid = false
}

// clusterBytes returns the content of a data cluster.
func clusterBytes(t *testing.T, dev *blockdev.Memory, v *Volume, cluster uint32) []byte {
	t.Helper()
	sector, err := v.clusterToSector(cluster)
	require.NoError(t, err)
	off := int(sector) * sectorSize
	return dev.Bytes()[off : off+int(v.geo.ClusterSize())]
}

// rootEntry decodes the entry in the given slot of the first root directory sector.
func rootEntry(t *testing.T, dev *blockdev.Memory, v *Volume, idx int) EntryHeader {
	t.Helper()
	raw := clusterBytes(t, dev, v, rootCluster)[idx*entrySize:]
	h, err := decodeEntry(raw)
	require.NoError(t, err)
	return h
}

var errInjected = errors.New("injected write failure")

// failingDevice fails a single write and passes everything else to the memory device.
type failingDevice struct {
	*blockdev.Memory
	writes int
	failAt int
}

func (d *failingDevice) WriteSectors(src []byte, start uint32) (int, error) {
	d.writes++
	if d.writes == d.failAt {
		return 0, errInjected
	}
	return d.Memory.WriteSectors(src, start)
}

// failWrite makes the n-th write from now fail.
func (d *failingDevice) failWrite(n int) {
	d.failAt = d.writes + n
}

// requireConsistent checks that all FAT copies are equal, that the free count matches the FAT
// and that every cluster in use is reachable from the root directory.
func requireConsistent(t *testing.T, dev *blockdev.Memory, v *Volume) {
	t.Helper()

	data := dev.Bytes()
	size := int(v.geo.SectorsPerFAT) * sectorSize
	first := int(v.geo.FATStart) * sectorSize
	for i := 1; i < int(v.geo.NumFATs); i++ {
		off := first + i*size
		require.Equal(t, data[first:first+size], data[off:off+size], "FAT copy %d", i)
	}

	free, err := v.countFree()
	require.NoError(t, err)
	require.Equal(t, free, v.FreeClusters(), "free clusters")

	reachable := map[uint32]bool{}
	chain := func(c uint32) {
		for c != 0 && !reachable[c] {
			reachable[c] = true
			e, err := v.next(c)
			require.NoError(t, err)
			if !e.IsNextCluster() {
				return
			}
			c = e.Value()
		}
	}
	var visit func(dir uint32)
	visit = func(dir uint32) {
		chain(dir)
		entries, err := v.readDir(dir, v.newSteps())
		require.NoError(t, err)
		for _, h := range entries {
			if h.IsDir() {
				visit(h.Cluster())
			} else {
				chain(h.Cluster())
			}
		}
	}
	visit(rootCluster)

	require.Equal(t, int(v.geo.ClusterCount()-free), len(reachable), "clusters in use")
}
