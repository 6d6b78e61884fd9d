package gofat32

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/aligator/gofat32/checkpoint"
	"golang.org/x/text/encoding/charmap"
)

// decodeEntry reads a directory entry from the first 32 bytes of b.
func decodeEntry(b []byte) (EntryHeader, error) {
	var h EntryHeader
	if len(b) < entrySize {
		return h, checkpoint.Wrap(fmt.Errorf("directory entry of %d bytes", len(b)), ErrCorruptChain)
	}

	err := binary.Read(bytes.NewReader(b[:entrySize]), binary.LittleEndian, &h)
	return h, checkpoint.From(err)
}

// put encodes the entry into the first 32 bytes of b.
func (h *EntryHeader) put(b []byte) error {
	if len(b) < entrySize {
		return checkpoint.Wrap(fmt.Errorf("directory entry of %d bytes", len(b)), ErrCorruptChain)
	}

	var buf bytes.Buffer
	buf.Grow(entrySize)
	if err := binary.Write(&buf, binary.LittleEndian, h); err != nil {
		return checkpoint.From(err)
	}
	copy(b, buf.Bytes())
	return nil
}

// Cluster joins the two halves of the first cluster.
func (h *EntryHeader) Cluster() uint32 {
	return uint32(h.FirstClusterHI)<<16 | uint32(h.FirstClusterLO)
}

func (h *EntryHeader) SetCluster(cluster uint32) {
	h.FirstClusterHI = uint16(cluster >> 16)
	h.FirstClusterLO = uint16(cluster)
}

func (h *EntryHeader) IsDir() bool {
	return h.Attribute&AttrDirectory != 0
}

func (h *EntryHeader) IsLongName() bool {
	return h.Attribute&AttrLongName == AttrLongName
}

func (h *EntryHeader) IsVolumeLabel() bool {
	return !h.IsLongName() && h.Attribute&AttrVolumeID != 0
}

// IsDot reports the "." and ".." entries of a directory.
func (h *EntryHeader) IsDot() bool {
	return h.Name[0] == '.'
}

// DisplayName returns the name as it is shown to users, e.g. "REPORT.TXT" or "report.txt"
// if the case flags ask for lower case. The dot is only added for a non blank extension.
func (h *EntryHeader) DisplayName() string {
	raw := h.Name
	if raw[0] == entryKanji {
		raw[0] = entryDeleted
	}

	base := strings.TrimRight(decodeOEM(raw[:8]), " ")
	ext := strings.TrimRight(decodeOEM(raw[8:]), " ")

	if h.CaseFlags&caseLowerBase != 0 {
		base = strings.ToLower(base)
	}
	if h.CaseFlags&caseLowerExt != 0 {
		ext = strings.ToLower(ext)
	}

	if ext == "" {
		return base
	}
	return base + "." + ext
}

func decodeOEM(b []byte) string {
	var sb strings.Builder
	for _, c := range b {
		sb.WriteRune(charmap.CodePage437.DecodeByte(c))
	}
	return sb.String()
}

// dotEntry creates the "." or ".." entry of a new directory.
func dotEntry(name string, cluster uint32) EntryHeader {
	h := EntryHeader{Attribute: AttrDirectory}
	copy(h.Name[:], "           ")
	copy(h.Name[:], name)
	h.SetCluster(cluster)
	return h
}
