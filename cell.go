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

import "fmt"

// CellType distinguishes the closed set of cell kinds. Exotic cells store
// their type as the first byte of their data.
type CellType uint8

const (
	CellTypePrunedBranch     CellType = 0x01
	CellTypeLibraryReference CellType = 0x02
	CellTypeMerkleProof      CellType = 0x03
	CellTypeMerkleUpdate     CellType = 0x04
	CellTypeBig              CellType = 0x05
	CellTypeOrdinary         CellType = 0xff
)

func (t CellType) String() string {
	switch t {
	case CellTypeOrdinary:
		return "Ordinary"
	case CellTypePrunedBranch:
		return "PrunedBranch"
	case CellTypeLibraryReference:
		return "LibraryReference"
	case CellTypeMerkleProof:
		return "MerkleProof"
	case CellTypeMerkleUpdate:
		return "MerkleUpdate"
	case CellTypeBig:
		return "Big"
	default:
		return fmt.Sprintf("CellType(%d)", uint8(t))
	}
}

// IsMerkle reports whether cells of this type shift hash levels of their
// children.
func (t CellType) IsMerkle() bool {
	return t == CellTypeMerkleProof || t == CellTypeMerkleUpdate
}

// IsExotic reports whether the type carries a type byte in its data.
func (t CellType) IsExotic() bool {
	switch t {
	case CellTypePrunedBranch, CellTypeLibraryReference, CellTypeMerkleProof, CellTypeMerkleUpdate:
		return true
	}
	return false
}

// Cell is an immutable node of a content-addressed DAG. A finalized cell
// never changes: its data, references, and memoized hashes are fixed, so
// cells are safe to share across goroutines without locking.
//
// Cells are created by Builder.Finalize, by ReadBOC, or by NewBigCell.
type Cell struct {
	data      []byte // packed bits; raw bytes for big cells
	bitLen    int
	refs      []*Cell
	cellType  CellType
	levelMask LevelMask
	hashes    []Hash
	depths    []uint16
}

// BitLen returns the number of data bits.
func (c *Cell) BitLen() int {
	return c.bitLen
}

// Data returns the packed data bits as a fresh slice.
func (c *Cell) Data() []byte {
	b := make([]byte, len(c.data))
	copy(b, c.data)
	return b
}

// RefCount returns the number of references.
func (c *Cell) RefCount() int {
	return len(c.refs)
}

// Ref returns reference i.
func (c *Cell) Ref(i int) (*Cell, error) {
	if i < 0 || i >= len(c.refs) {
		return nil, NewOutOfBoundsError(i+1, len(c.refs), "references")
	}
	return c.refs[i], nil
}

func (c *Cell) CellType() CellType {
	return c.cellType
}

func (c *Cell) LevelMask() LevelMask {
	return c.levelMask
}

// Level is the number of extra hash levels this cell carries.
func (c *Cell) Level() int {
	return c.levelMask.Level()
}

func (c *Cell) IsExotic() bool {
	return c.cellType.IsExotic()
}

func (c *Cell) IsMerkle() bool {
	return c.cellType.IsMerkle()
}

// IsBig reports whether the cell is a big cell, exempt from the ordinary
// 1023-bit ceiling.
func (c *Cell) IsBig() bool {
	return c.cellType == CellTypeBig
}

// Hash returns the representation hash at the given level index (clamped to
// the cell's own level). For pruned branches, hashes below the pruned level
// are read from the stored body.
func (c *Cell) Hash(level int) Hash {
	if level > MaxLevel {
		level = MaxLevel
	}
	hashIndex := c.levelMask.Apply(level).HashIndex()
	if c.cellType == CellTypePrunedBranch {
		prunedIndex := c.levelMask.HashIndex()
		if hashIndex != prunedIndex {
			// stored in the body: type byte, mask byte, then hashes
			var h Hash
			copy(h[:], c.data[2+hashIndex*HashSize:])
			return h
		}
		return c.hashes[0]
	}
	return c.hashes[hashIndex]
}

// Depth returns the tree depth at the given level index.
func (c *Cell) Depth(level int) uint16 {
	if level > MaxLevel {
		level = MaxLevel
	}
	hashIndex := c.levelMask.Apply(level).HashIndex()
	if c.cellType == CellTypePrunedBranch {
		prunedIndex := c.levelMask.HashIndex()
		if hashIndex != prunedIndex {
			off := 2 + prunedIndex*HashSize + hashIndex*depthSize
			return uint16(c.data[off])<<8 | uint16(c.data[off+1])
		}
		return c.depths[0]
	}
	return c.depths[hashIndex]
}

// ReprHash is the highest-level hash: the identity of the cell.
func (c *Cell) ReprHash() Hash {
	return c.Hash(MaxLevel)
}

// ReprDepth is the highest-level depth.
func (c *Cell) ReprDepth() uint16 {
	return c.Depth(MaxLevel)
}

// Equal compares by representation hash.
func (c *Cell) Equal(other *Cell) bool {
	if c == other {
		return true
	}
	if c == nil || other == nil {
		return false
	}
	return c.ReprHash() == other.ReprHash()
}

// Slice returns a read cursor positioned at the start of the cell.
func (c *Cell) Slice() *Slice {
	return newSlice(c, nil)
}

func (c *Cell) String() string {
	return fmt.Sprintf("%s cell %s, %d bits, %d refs", c.cellType, c.ReprHash(), c.bitLen, len(c.refs))
}

// NewBigCell builds a big cell holding data as an opaque byte payload. Big
// cells carry no references, always sit at level 0, and are only
// serializable in a big-cell-capable bag.
func NewBigCell(data []byte) (*Cell, error) {
	payload := make([]byte, len(data))
	copy(payload, data)
	c := &Cell{
		data:     payload,
		bitLen:   len(payload) * 8,
		cellType: CellTypeBig,
	}
	c.hashes = []Hash{bigCellHash(DefaultHasher(), payload)}
	c.depths = []uint16{0}
	return c, nil
}
