// Package blockdev contains the sector level collaborator of the volume driver
// and some implementations of it.
//
// Generated mock using mockgen:
//  mockgen -source=blockdev.go -destination=device_mock.go -package blockdev
package blockdev

import (
	"errors"
)

// SectorSize is the only sector size the volume driver supports.
const SectorSize = 512

// These errors may be returned by the devices of this package.
var (
	ErrUnaligned  = errors.New("buffer is not a multiple of the sector size")
	ErrOutOfRange = errors.New("sector range is outside of the device")
	ErrReadOnly   = errors.New("device is read only")
)

// Device reads and writes whole sectors.
// The number of sectors transferred is len(buf) / SectorSize, starting at the given sector.
// Both methods return the amount of bytes actually transferred.
type Device interface {
	ReadSectors(dst []byte, start uint32) (int, error)
	WriteSectors(src []byte, start uint32) (int, error)
}

// span validates a transfer and returns its byte range.
func span(length int, start uint32, sectors uint32) (int64, int64, error) {
	if length%SectorSize != 0 {
		return 0, 0, ErrUnaligned
	}
	count := uint64(length / SectorSize)
	if uint64(start)+count > uint64(sectors) {
		return 0, 0, ErrOutOfRange
	}
	off := int64(start) * SectorSize
	return off, off + int64(length), nil
}
