package gofat32

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/aligator/gofat32/blockdev"
	"github.com/aligator/gofat32/checkpoint"
	"github.com/aligator/gofat32/internal/mbr"
	"github.com/go-restruct/restruct"
	"github.com/sirupsen/logrus"
)

const (
	sectorSize = blockdev.SectorSize

	// rootCluster is the first cluster of the root directory.
	rootCluster = 2

	// DefaultMaxPathSteps bounds path resolution if Config.MaxPathSteps is not set.
	DefaultMaxPathSteps = 4096

	bpbSize = 90
)

// Geometry describes the layout of a mounted volume. It never changes after Mount.
type Geometry struct {
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	SectorsPerFAT     uint32
	TotalSectors      uint32
	RootCluster       uint32

	// PartitionStart is 0 if the device has no partition table.
	PartitionStart  uint32
	FATStart        uint32
	FirstDataSector uint32
}

// ClusterSize is the size of a cluster in bytes.
func (g Geometry) ClusterSize() uint32 {
	return uint32(g.SectorsPerCluster) * sectorSize
}

// ClusterCount is the number of data clusters which can be addressed.
// It is limited by the data area and by the size of the FAT.
func (g Geometry) ClusterCount() uint32 {
	entries := g.SectorsPerFAT * (sectorSize / 4)
	if entries < 2 {
		return 0
	}
	count := entries - 2

	overhead := g.FirstDataSector - g.PartitionStart
	if g.TotalSectors != 0 && g.SectorsPerCluster != 0 {
		if g.TotalSectors <= overhead {
			return 0
		}
		if data := (g.TotalSectors - overhead) / uint32(g.SectorsPerCluster); data < count {
			count = data
		}
	}
	return count
}

// MaxCluster is the highest valid cluster number.
func (g Geometry) MaxCluster() uint32 {
	return g.ClusterCount() + 1
}

// Config contains the optional settings of a volume. The zero value is usable.
type Config struct {
	// Partition selects the partition of an MBR formatted device.
	Partition int

	// MaxPathSteps bounds the work of a single path resolution.
	// Each component and each directory cluster visited counts as a step.
	MaxPathSteps int

	// StrictNames disables the tolerance for a differing last byte when comparing names.
	// Without it all names of a single character are equal, so a directory can hold
	// only one of them, and "A.TXT" also finds "A.TXX".
	StrictNames bool

	// Now provides timestamps for new and modified entries. Timestamps stay zero if it is nil.
	Now func() time.Time

	Logger logrus.FieldLogger
}

// Volume is a mounted FAT32 volume.
type Volume struct {
	dev        blockdev.Device
	geo        Geometry
	label      string
	partitions []uint32
	cfg        Config
	log        logrus.FieldLogger

	// fatLock guards the allocator and every read-modify-write of the FAT.
	fatLock sync.Mutex
	fat     window
	alloc   allocator

	// dirLock guards the creation and update of directory entries.
	dirLock sync.Mutex

	drivesLock sync.Mutex
	drives     [Drives]workdir
}

// Mount mounts the first partition of the device using the default configuration.
func Mount(dev blockdev.Device) (*Volume, error) {
	return MountWithConfig(dev, Config{})
}

// MountWithConfig reads the boot sector, derives the geometry and primes the allocator.
// It returns ErrNoFilesystem if no usable FAT32 volume is found.
func MountWithConfig(dev blockdev.Device, cfg Config) (*Volume, error) {
	if cfg.MaxPathSteps <= 0 {
		cfg.MaxPathSteps = DefaultMaxPathSteps
	}

	v := &Volume{
		dev: dev,
		cfg: cfg,
		log: cfg.Logger,
		fat: window{buf: make([]byte, sectorSize)},
	}
	if v.log == nil {
		logger := logrus.New()
		logger.SetOutput(io.Discard)
		v.log = logger
	}

	if err := v.readBoot(); err != nil {
		return nil, err
	}

	v.log.WithFields(logrus.Fields{
		"partition":         v.geo.PartitionStart,
		"sectorsPerCluster": v.geo.SectorsPerCluster,
		"fatStart":          v.geo.FATStart,
		"firstDataSector":   v.geo.FirstDataSector,
		"clusters":          v.geo.ClusterCount(),
	}).Debug("mounted volume")

	v.fatLock.Lock()
	err := v.primeAllocator()
	v.fatLock.Unlock()
	if err != nil {
		return nil, err
	}

	for i := range v.drives {
		v.drives[i] = workdir{path: "/", cluster: rootCluster}
	}

	return v, nil
}

// readBoot analyses sector 0 and fills the geometry.
func (v *Volume) readBoot() error {
	sector := make([]byte, sectorSize)
	if err := v.readSectors(sector, 0); err != nil {
		return err
	}

	// A bare boot sector is accepted only if it also has a sane BPB,
	// as MBR boot code may start with a jump instruction as well.
	if hasJump(sector) {
		bpb, err := decodeBPB(sector)
		if err == nil {
			if err = v.setGeometry(bpb, 0); err == nil {
				return nil
			}
		}
	}

	table, err := mbr.Parse(sector)
	if err != nil {
		return checkpoint.Wrap(err, ErrNoFilesystem)
	}
	v.partitions = table.Partitions()

	if v.cfg.Partition < 0 || v.cfg.Partition >= len(v.partitions) {
		return checkpoint.Wrap(fmt.Errorf("partition %d of %d", v.cfg.Partition, len(v.partitions)), ErrNoFilesystem)
	}
	start := v.partitions[v.cfg.Partition]

	if err := v.readSectors(sector, start); err != nil {
		return err
	}
	bpb, err := decodeBPB(sector)
	if err != nil {
		return checkpoint.Wrap(err, ErrNoFilesystem)
	}
	return v.setGeometry(bpb, start)
}

func hasJump(sector []byte) bool {
	return (sector[0] == 0xEB && sector[2] == 0x90) || sector[0] == 0xE9
}

func decodeBPB(sector []byte) (BPB, error) {
	var bpb BPB
	if err := restruct.Unpack(sector[:bpbSize], binary.LittleEndian, &bpb); err != nil {
		return BPB{}, err
	}
	return bpb, nil
}

func (v *Volume) setGeometry(bpb BPB, partitionStart uint32) error {
	switch {
	case bpb.BytesPerSector != sectorSize:
		return checkpoint.Wrap(fmt.Errorf("unsupported sector size %d", bpb.BytesPerSector), ErrNoFilesystem)
	case bpb.SectorsPerCluster == 0 || bpb.SectorsPerCluster&(bpb.SectorsPerCluster-1) != 0:
		return checkpoint.Wrap(fmt.Errorf("invalid sectors per cluster %d", bpb.SectorsPerCluster), ErrNoFilesystem)
	case bpb.ReservedSectors == 0:
		return checkpoint.Wrap(errors.New("invalid reserved sector count"), ErrNoFilesystem)
	case bpb.NumFATs == 0:
		return checkpoint.Wrap(errors.New("no FAT copies"), ErrNoFilesystem)
	case bpb.FATSize32 == 0:
		return checkpoint.Wrap(errors.New("not a FAT32 boot sector"), ErrNoFilesystem)
	}

	g := Geometry{
		BytesPerSector:    bpb.BytesPerSector,
		SectorsPerCluster: bpb.SectorsPerCluster,
		ReservedSectors:   bpb.ReservedSectors,
		NumFATs:           bpb.NumFATs,
		SectorsPerFAT:     bpb.FATSize32,
		TotalSectors:      bpb.TotalSectors32,
		RootCluster:       rootCluster,
		PartitionStart:    partitionStart,
	}
	g.FATStart = partitionStart + uint32(bpb.ReservedSectors)
	g.FirstDataSector = g.FATStart + uint32(bpb.NumFATs)*bpb.FATSize32

	if g.ClusterCount() == 0 {
		return checkpoint.Wrap(errors.New("volume has no data clusters"), ErrNoFilesystem)
	}

	v.geo = g
	v.label = strings.TrimRight(string(bpb.VolumeLabel[:]), " \x00")
	return nil
}

// Geometry returns the layout of the volume.
func (v *Volume) Geometry() Geometry {
	return v.geo
}

// Label returns the volume label stored in the boot sector.
func (v *Volume) Label() string {
	return v.label
}

// Partitions returns the start sectors of the partitions found in the MBR.
// It is empty for a device without partition table.
func (v *Volume) Partitions() []uint32 {
	return append([]uint32(nil), v.partitions...)
}

// FreeClusters returns the tracked amount of free clusters.
func (v *Volume) FreeClusters() uint32 {
	v.fatLock.Lock()
	defer v.fatLock.Unlock()
	return v.alloc.freeCount
}

func (v *Volume) fsInfoSector() uint32 {
	return v.geo.PartitionStart + 1
}

// readFSInfo returns the stored free cluster count and whether it can be trusted.
func (v *Volume) readFSInfo() (uint32, bool, error) {
	sector := make([]byte, sectorSize)
	if err := v.readSectors(sector, v.fsInfoSector()); err != nil {
		return 0, false, err
	}

	valid := binary.LittleEndian.Uint32(sector[fsInfoLeadOffset:]) == fsInfoLeadSignature &&
		binary.LittleEndian.Uint32(sector[fsInfoStructOffset:]) == fsInfoStructSignature &&
		binary.LittleEndian.Uint32(sector[fsInfoTrailOffset:]) == fsInfoTrailSignature

	free := binary.LittleEndian.Uint32(sector[fsInfoFreeOffset:])
	if !valid {
		v.log.WithField("sector", v.fsInfoSector()).Warn("FSINFO signatures do not match")
		return free, false, nil
	}
	if free == fsInfoUnknown || free > v.geo.ClusterCount() {
		v.log.WithField("free", free).Warn("FSINFO free cluster count is unknown")
		return free, false, nil
	}
	return free, true, nil
}

// writeFSInfo stores the free cluster count and leaves the rest of the sector untouched.
// Must be called with fatLock held.
func (v *Volume) writeFSInfo() error {
	sector := make([]byte, sectorSize)
	if err := v.readSectors(sector, v.fsInfoSector()); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(sector[fsInfoFreeOffset:], v.alloc.freeCount)
	return v.writeSectors(sector, v.fsInfoSector())
}

// readSectors fills dst starting at the given sector.
// Any failure or short transfer of the device is reported as ErrIO.
func (v *Volume) readSectors(dst []byte, start uint32) error {
	n, err := v.dev.ReadSectors(dst, start)
	return transferError("read", n, len(dst), start, err)
}

func (v *Volume) writeSectors(src []byte, start uint32) error {
	n, err := v.dev.WriteSectors(src, start)
	return transferError("write", n, len(src), start, err)
}

func transferError(op string, n, want int, start uint32, err error) error {
	if err == io.EOF && n == want {
		err = nil
	}
	if err == nil && n != want {
		err = fmt.Errorf("short transfer of %d/%d bytes", n, want)
	}
	if err != nil {
		return checkpoint.Wrap(fmt.Errorf("%s sector %d: %w", op, start, err), ErrIO)
	}
	return nil
}

// stamp sets the timestamps of a new entry.
func (v *Volume) stamp(h *EntryHeader) {
	if v.cfg.Now == nil {
		return
	}
	now := v.cfg.Now()
	date, clock, tenth := packDateTime(now)
	h.CreateDate, h.CreateTime, h.CreateTimeTenth = date, clock, tenth
	h.WriteDate, h.WriteTime = date, clock
	h.LastAccessDate = date
}

// touch sets the modification timestamps of an entry.
func (v *Volume) touch(h *EntryHeader) {
	if v.cfg.Now == nil {
		return
	}
	date, clock, _ := packDateTime(v.cfg.Now())
	h.WriteDate, h.WriteTime = date, clock
	h.LastAccessDate = date
}
