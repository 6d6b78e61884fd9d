package blockdev

// Memory is a Device backed by a byte slice.
// It is mainly used for tests and for images which fit into memory.
type Memory struct {
	data []byte
}

// NewMemory creates a zeroed device of the given amount of sectors.
func NewMemory(sectors uint32) *Memory {
	return &Memory{data: make([]byte, int(sectors)*SectorSize)}
}

// NewMemoryFrom uses data directly as device content. Trailing bytes which do not
// fill a whole sector are not addressable.
func NewMemoryFrom(data []byte) *Memory {
	return &Memory{data: data}
}

func (m *Memory) Sectors() uint32 {
	return uint32(len(m.data) / SectorSize)
}

// Bytes returns the underlying buffer without copying it.
func (m *Memory) Bytes() []byte {
	return m.data
}

func (m *Memory) ReadSectors(dst []byte, start uint32) (int, error) {
	from, to, err := span(len(dst), start, m.Sectors())
	if err != nil {
		return 0, err
	}
	return copy(dst, m.data[from:to]), nil
}

func (m *Memory) WriteSectors(src []byte, start uint32) (int, error) {
	from, to, err := span(len(src), start, m.Sectors())
	if err != nil {
		return 0, err
	}
	return copy(m.data[from:to], src), nil
}
