/*
 * Ever-Block - Cell Graphs and Bag of Cells for TVM Blockchains
 *
 * Copyright EverX
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *   http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package everblock

import (
	"encoding/binary"
	"hash/crc32"
)

// Bag of Cells: the canonical serialization of a cell DAG. Identical graphs
// written with identical options produce byte-identical bags.

const (
	// BOCMagicGeneric is the standard envelope; index and checksum
	// presence is carried in the flags byte.
	BOCMagicGeneric = uint32(0xb5ee9c72)

	// BOCMagicIndexed and BOCMagicIndexedCRC are legacy single-root
	// envelopes with a mandatory index. Read-only.
	BOCMagicIndexed    = uint32(0x68ff65f3)
	BOCMagicIndexedCRC = uint32(0xacc3a728)

	// BOCMagicBig is the generic envelope extended with big-cell bodies.
	BOCMagicBig = uint32(0xb6ff9a73)
)

const (
	flagHasIndex     = 0x80
	flagHasCRC       = 0x40
	flagHasCacheBits = 0x20
	maskRefSize      = 0x07

	// big cell body marker in the first descriptor byte
	bigCellDescriptor = 0x40

	bocCRCSize = 4

	// smallest possible cell body: two descriptor bytes
	minCellBodySize = 2
)

// crcTable is the Castagnoli polynomial the envelope checksum is defined
// over.
var crcTable = crc32.MakeTable(crc32.Castagnoli)

// WriteBOCOptions controls the envelope produced by WriteBOC.
type WriteBOCOptions struct {
	// WithIndex includes per-cell byte offsets for random access.
	WithIndex bool

	// WithCRC appends a CRC32-C checksum over the whole envelope.
	WithCRC bool

	// AllowBigCells permits big cells in the graph and switches the
	// envelope to the big-cell-capable magic.
	AllowBigCells bool
}

// ReadBOCOptions controls validation performed by ReadBOC.
type ReadBOCOptions struct {
	// AllowBigCells permits decoding big-cell-capable bags. Without it,
	// such bags fail with BigCellsDisallowedError.
	AllowBigCells bool

	// ExpectedRootHashes, when non-empty, must match the reconstructed
	// roots position by position.
	ExpectedRootHashes []Hash

	// Hasher used to recompute hashes. Nil means DefaultHasher.
	Hasher Hasher
}

// BOCHeader is the parsed envelope header. Offsets locate the optional
// index and the cell-body section inside the original buffer.
type BOCHeader struct {
	Magic         uint32
	CellCount     uint64
	RootCount     uint64
	AbsentCount   uint64
	TotalCellSize uint64
	RefSize       int
	OffsetSize    int
	HasIndex      bool
	HasCRC        bool
	RootIndices   []uint64

	indexOffset int
	bodyOffset  int
}

func readBEUint(data []byte, width int) uint64 {
	var v uint64
	for _, b := range data[:width] {
		v = v<<8 | uint64(b)
	}
	return v
}

func appendBEUint(out []byte, v uint64, width int) []byte {
	for i := width - 1; i >= 0; i-- {
		out = append(out, byte(v>>(8*i)))
	}
	return out
}

// minWidth returns the smallest byte width that represents v.
func minWidth(v uint64) int {
	w := 1
	for v > 0xff {
		v >>= 8
		w++
	}
	return w
}

// parseBOCHeader validates the fixed header and its bounds against the
// buffer length. It allocates nothing proportional to declared counts
// before checking that the buffer could actually hold them.
func parseBOCHeader(data []byte) (*BOCHeader, error) {
	if len(data) < 4+2 {
		return nil, NewMalformedEncodingErrorf("buffer of %d bytes is too short for a header", len(data))
	}
	h := &BOCHeader{Magic: binary.BigEndian.Uint32(data)}

	pos := 4
	switch h.Magic {
	case BOCMagicGeneric, BOCMagicBig:
		flags := data[pos]
		if flags&flagHasCacheBits != 0 {
			return nil, NewMalformedEncodingErrorf("cache bits are not supported")
		}
		if flags&0x18 != 0 {
			return nil, NewMalformedEncodingErrorf("reserved flag bits %02x are set", flags&0x18)
		}
		h.HasIndex = flags&flagHasIndex != 0
		h.HasCRC = flags&flagHasCRC != 0
		h.RefSize = int(flags & maskRefSize)
	case BOCMagicIndexed, BOCMagicIndexedCRC:
		h.HasIndex = true
		h.HasCRC = h.Magic == BOCMagicIndexedCRC
		h.RefSize = int(data[pos])
	default:
		return nil, NewMalformedEncodingErrorf("unknown magic %08x", h.Magic)
	}
	h.OffsetSize = int(data[pos+1])
	pos += 2

	if h.RefSize < 1 || h.RefSize > 4 {
		return nil, NewMalformedEncodingErrorf("reference width %d is out of range 1..4", h.RefSize)
	}
	if h.OffsetSize < 1 || h.OffsetSize > 8 {
		return nil, NewMalformedEncodingErrorf("offset width %d is out of range 1..8", h.OffsetSize)
	}

	if len(data) < pos+3*h.RefSize+h.OffsetSize {
		return nil, NewMalformedEncodingErrorf("truncated header")
	}
	h.CellCount = readBEUint(data[pos:], h.RefSize)
	pos += h.RefSize
	h.RootCount = readBEUint(data[pos:], h.RefSize)
	pos += h.RefSize
	h.AbsentCount = readBEUint(data[pos:], h.RefSize)
	pos += h.RefSize
	h.TotalCellSize = readBEUint(data[pos:], h.OffsetSize)
	pos += h.OffsetSize

	if h.RootCount == 0 {
		return nil, NewMalformedEncodingErrorf("bag declares no roots")
	}
	if h.AbsentCount != 0 {
		return nil, NewMalformedEncodingErrorf("absent cells are not supported")
	}
	if h.RootCount > h.CellCount {
		return nil, NewMalformedEncodingErrorf("bag declares %d roots for %d cells", h.RootCount, h.CellCount)
	}

	// precheck: the buffer must be able to hold everything the header
	// declares before any per-cell allocation happens
	remaining := uint64(len(data) - pos)
	var declared uint64
	switch h.Magic {
	case BOCMagicGeneric, BOCMagicBig:
		declared = h.RootCount * uint64(h.RefSize)
	}
	if h.HasIndex {
		declared += h.CellCount * uint64(h.OffsetSize)
	}
	declared += h.TotalCellSize
	if h.HasCRC {
		declared += bocCRCSize
	}
	if declared > remaining || declared < h.TotalCellSize {
		return nil, NewMalformedEncodingErrorf("header declares %d bytes but only %d remain", declared, remaining)
	}
	if h.CellCount*minCellBodySize > h.TotalCellSize {
		return nil, NewMalformedEncodingErrorf("%d cells cannot fit into %d body bytes", h.CellCount, h.TotalCellSize)
	}

	switch h.Magic {
	case BOCMagicGeneric, BOCMagicBig:
		h.RootIndices = make([]uint64, h.RootCount)
		for i := range h.RootIndices {
			h.RootIndices[i] = readBEUint(data[pos:], h.RefSize)
			pos += h.RefSize
			if h.RootIndices[i] >= h.CellCount {
				return nil, NewInvalidReferenceError(0, h.RootIndices[i], "root index out of range")
			}
		}
	default:
		if h.RootCount != 1 {
			return nil, NewMalformedEncodingErrorf("legacy bag must declare exactly one root")
		}
		h.RootIndices = []uint64{0}
	}

	h.indexOffset = pos
	if h.HasIndex {
		pos += int(h.CellCount) * h.OffsetSize
	}
	h.bodyOffset = pos
	return h, nil
}

// verifyCRC checks the trailing checksum when the header declares one.
func verifyCRC(data []byte, h *BOCHeader) error {
	if !h.HasCRC {
		return nil
	}
	end := h.bodyOffset + int(h.TotalCellSize)
	if len(data) < end+bocCRCSize {
		return NewMalformedEncodingErrorf("truncated checksum")
	}
	want := binary.LittleEndian.Uint32(data[end:])
	got := crc32.Checksum(data[:end], crcTable)
	if want != got {
		return NewMalformedEncodingErrorf("checksum mismatch: stored %08x, computed %08x", want, got)
	}
	return nil
}
