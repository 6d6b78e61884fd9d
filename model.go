// File model contains the structs which match the direct structures of the FAT32 filesystem.

package gofat32

// BPB is the boot parameter block including the FAT32 extension.
// It is decoded from the first sector of a volume.
type BPB struct {
	JumpBoot          [3]byte
	OEMName           [8]byte
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	RootEntryCount    uint16
	TotalSectors16    uint16
	Media             uint8
	FATSize16         uint16
	SectorsPerTrack   uint16
	NumberOfHeads     uint16
	HiddenSectors     uint32
	TotalSectors32    uint32

	FATSize32      uint32
	ExtFlags       uint16
	FSVersion      uint16
	RootCluster    uint32
	FSInfo         uint16
	BkBootSector   uint16
	Reserved       [12]byte
	DriveNumber    uint8
	Reserved1      uint8
	BootSignature  uint8
	VolumeID       uint32
	VolumeLabel    [11]byte
	FileSystemType [8]byte
}

// EntryHeader is a single 32 byte short name directory entry.
type EntryHeader struct {
	Name            [11]byte
	Attribute       Attr
	CaseFlags       byte
	CreateTimeTenth byte
	CreateTime      uint16
	CreateDate      uint16
	LastAccessDate  uint16
	FirstClusterHI  uint16
	WriteTime       uint16
	WriteDate       uint16
	FirstClusterLO  uint16
	FileSize        uint32
}

// Attr is the attribute bitset of a directory entry.
type Attr byte

const (
	AttrReadOnly  Attr = 0x01
	AttrHidden    Attr = 0x02
	AttrSystem    Attr = 0x04
	AttrVolumeID  Attr = 0x08
	AttrDirectory Attr = 0x10
	AttrArchive   Attr = 0x20
	// AttrLongName marks a long file name slot. These are skipped.
	AttrLongName = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeID
)

// Case flags of the NT reserved byte.
const (
	caseLowerBase byte = 0x08
	caseLowerExt  byte = 0x10
)

// Markers in the first name byte.
const (
	entryEnd     byte = 0x00
	entryDeleted byte = 0xE5
	// entryKanji is stored instead of a leading 0xE5 of a real name.
	entryKanji byte = 0x05
)

const (
	entrySize        = 32
	entriesPerSector = 512 / entrySize

	fsInfoLeadSignature   = 0x41615252
	fsInfoStructSignature = 0x61417272
	fsInfoTrailSignature  = 0xAA550000
	fsInfoUnknown         = 0xFFFFFFFF

	fsInfoLeadOffset   = 0
	fsInfoStructOffset = 0x1E4
	fsInfoFreeOffset   = 0x1E8
	fsInfoTrailOffset  = 0x1FC
)
