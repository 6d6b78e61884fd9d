// Package mbr decodes the partition table of a master boot record.
package mbr

import (
	"encoding/binary"
	"errors"

	"github.com/go-restruct/restruct"
)

const (
	tableOffset      = 446
	entryLen         = 16
	bootSignatureOff = 510

	// BootSignature is the magic number at the end of every valid MBR.
	BootSignature = 0xAA55
	// Entries is the number of primary partition slots.
	Entries = 4
)

var ErrShortSector = errors.New("boot sector too short")

// Entry is one 16 byte slot of the partition table.
type Entry struct {
	Status   uint8
	FirstCHS [3]byte
	Type     uint8
	LastCHS  [3]byte
	StartLBA uint32
	Sectors  uint32
}

// Used reports if the slot points to a partition.
func (e Entry) Used() bool {
	return e.StartLBA != 0
}

// Table is a decoded master boot record.
type Table struct {
	Entries   [Entries]Entry
	Signature uint16
}

// Parse decodes the partition table of the given sector.
func Parse(sector []byte) (Table, error) {
	var t Table
	if len(sector) < 512 {
		return t, ErrShortSector
	}

	for i := range t.Entries {
		off := tableOffset + i*entryLen
		if err := restruct.Unpack(sector[off:off+entryLen], binary.LittleEndian, &t.Entries[i]); err != nil {
			return t, err
		}
	}
	t.Signature = binary.LittleEndian.Uint16(sector[bootSignatureOff:])
	return t, nil
}

// Partitions returns the start sectors of all used slots in table order.
func (t Table) Partitions() []uint32 {
	var starts []uint32
	for _, e := range t.Entries {
		if e.Used() {
			starts = append(starts, e.StartLBA)
		}
	}
	return starts
}

// Put writes the entry into slot idx of sector. It is used to build images.
func Put(sector []byte, idx int, e Entry) error {
	if len(sector) < 512 {
		return ErrShortSector
	}
	raw, err := restruct.Pack(binary.LittleEndian, &e)
	if err != nil {
		return err
	}
	copy(sector[tableOffset+idx*entryLen:], raw)
	binary.LittleEndian.PutUint16(sector[bootSignatureOff:], BootSignature)
	return nil
}
