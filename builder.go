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

// Builder accumulates bits and references and finalizes them into an
// immutable Cell. A Builder belongs to the goroutine that created it; a cell
// graph is acyclic by construction because a Builder can only reference
// cells that are already finalized.
type Builder struct {
	bits     BitString
	refs     []*Cell
	cellType CellType
}

// NewBuilder returns an empty builder for an ordinary cell.
func NewBuilder() *Builder {
	return &Builder{cellType: CellTypeOrdinary}
}

// NewBuilderFromCell returns a builder preloaded with the cell's data,
// references, and type.
func NewBuilderFromCell(c *Cell) (*Builder, error) {
	if c.IsBig() {
		return nil, NewCapacityExceededErrorf("big cells cannot be rebuilt through a Builder")
	}
	b := &Builder{cellType: c.cellType}
	bs, err := BitStringFromBits(c.data, c.bitLen)
	if err != nil {
		return nil, err
	}
	b.bits = *bs
	b.refs = append(b.refs, c.refs...)
	return b, nil
}

// SetType marks the builder as producing an exotic cell. The data must
// start with the matching type byte; Finalize validates the body layout.
func (b *Builder) SetType(t CellType) {
	b.cellType = t
}

// BitLen returns the number of bits accumulated so far.
func (b *Builder) BitLen() int {
	return b.bits.BitLen()
}

// RefCount returns the number of references accumulated so far.
func (b *Builder) RefCount() int {
	return len(b.refs)
}

func (b *Builder) checkBits(n int) error {
	if b.bits.BitLen()+n > MaxDataBits {
		return NewCapacityExceededErrorf("appending %d bits to %d exceeds the %d-bit cell limit",
			n, b.bits.BitLen(), MaxDataBits)
	}
	return nil
}

// AppendBit appends a single bit.
func (b *Builder) AppendBit(bit bool) error {
	if err := b.checkBits(1); err != nil {
		return err
	}
	b.bits.AppendBit(bit)
	return nil
}

// AppendBits appends the low n bits of v, most significant first.
func (b *Builder) AppendBits(v uint64, n int) error {
	if n < 0 || n > 64 {
		return NewOutOfBoundsError(n, 64, "bits")
	}
	if err := b.checkBits(n); err != nil {
		return err
	}
	return b.bits.AppendBits(v, n)
}

// AppendByte appends one byte.
func (b *Builder) AppendByte(v byte) error {
	return b.AppendBits(uint64(v), 8)
}

// AppendUint16 appends a big-endian 16-bit integer.
func (b *Builder) AppendUint16(v uint16) error {
	return b.AppendBits(uint64(v), 16)
}

// AppendUint32 appends a big-endian 32-bit integer.
func (b *Builder) AppendUint32(v uint32) error {
	return b.AppendBits(uint64(v), 32)
}

// AppendBytes appends whole bytes.
func (b *Builder) AppendBytes(p []byte) error {
	if err := b.checkBits(len(p) * 8); err != nil {
		return err
	}
	b.bits.AppendBytes(p)
	return nil
}

// AppendHash appends a representation hash.
func (b *Builder) AppendHash(h Hash) error {
	return b.AppendBytes(h[:])
}

// AppendBitString appends all bits of bs.
func (b *Builder) AppendBitString(bs *BitString) error {
	if err := b.checkBits(bs.BitLen()); err != nil {
		return err
	}
	b.bits.AppendBitString(bs)
	return nil
}

// AppendRef appends a reference to a finalized cell.
func (b *Builder) AppendRef(c *Cell) error {
	if len(b.refs) >= MaxRefs {
		return NewCapacityExceededErrorf("appending a reference exceeds the %d-reference cell limit", MaxRefs)
	}
	if c.IsBig() {
		return NewCapacityExceededErrorf("big cells cannot be referenced")
	}
	b.refs = append(b.refs, c)
	return nil
}

// AppendSlice appends the remaining bits and references of s.
func (b *Builder) AppendSlice(s *Slice) error {
	rest, err := s.remainingBitString()
	if err != nil {
		return err
	}
	if err = b.AppendBitString(rest); err != nil {
		return err
	}
	for s.RemainingRefs() > 0 {
		ref, err := s.ReadRef()
		if err != nil {
			return err
		}
		if err = b.AppendRef(ref); err != nil {
			return err
		}
	}
	return nil
}

// AppendBuilder appends the accumulated bits and references of other.
func (b *Builder) AppendBuilder(other *Builder) error {
	if err := b.AppendBitString(&other.bits); err != nil {
		return err
	}
	for _, ref := range other.refs {
		if err := b.AppendRef(ref); err != nil {
			return err
		}
	}
	return nil
}

// Finalize validates the builder contents, computes the level mask and the
// memoized hash/depth arrays, and returns the immutable cell. The builder
// must not be used afterwards.
func (b *Builder) Finalize() (*Cell, error) {
	return b.FinalizeWith(DefaultHasher())
}

// FinalizeWith finalizes with an explicit hasher. Cells hashed with
// anything but the default hasher are not wire-compatible with on-chain
// data.
func (b *Builder) FinalizeWith(hasher Hasher) (*Cell, error) {
	c := &Cell{
		data:     b.bits.Bytes(),
		bitLen:   b.bits.BitLen(),
		refs:     b.refs,
		cellType: b.cellType,
	}

	mask, err := b.deriveLevelMask()
	if err != nil {
		return nil, err
	}
	c.levelMask = mask

	if err = b.validateBody(mask); err != nil {
		return nil, err
	}
	if err = computeHashes(c, hasher); err != nil {
		return nil, err
	}
	b.refs = nil
	return c, nil
}

func (b *Builder) deriveLevelMask() (LevelMask, error) {
	var children LevelMask
	for _, ref := range b.refs {
		children = children.Or(ref.levelMask)
	}
	switch b.cellType {
	case CellTypeOrdinary, CellTypeLibraryReference:
		return children, nil
	case CellTypeMerkleProof, CellTypeMerkleUpdate:
		return forMerkleCell(children), nil
	case CellTypePrunedBranch:
		// the mask is part of the pruned body
		if b.bits.BitLen() < 16 {
			return 0, NewMalformedEncodingErrorf("pruned branch body is too short")
		}
		return NewLevelMask(b.bits.Bytes()[1]), nil
	default:
		return 0, NewMalformedEncodingErrorf("cannot finalize a cell of type %s", b.cellType)
	}
}

// validateBody checks the fixed layouts of exotic cells.
func (b *Builder) validateBody(mask LevelMask) error {
	bitLen := b.bits.BitLen()
	refs := len(b.refs)

	if b.cellType.IsExotic() {
		if bitLen < 8 {
			return NewMalformedEncodingErrorf("%s cell has no type byte", b.cellType)
		}
		if t := CellType(b.bits.Bytes()[0]); t != b.cellType {
			return NewMalformedEncodingErrorf("%s cell stores type byte %d", b.cellType, t)
		}
	}

	switch b.cellType {
	case CellTypeOrdinary:
		return nil
	case CellTypePrunedBranch:
		if mask == 0 {
			return NewMalformedEncodingErrorf("pruned branch with empty level mask")
		}
		n := mask.HashIndex()
		if want := 16 + n*(HashBits+depthSize*8); bitLen != want {
			return NewMalformedEncodingErrorf("pruned branch body must be %d bits, got %d", want, bitLen)
		}
		if refs != 0 {
			return NewMalformedEncodingErrorf("pruned branch cannot have references")
		}
	case CellTypeLibraryReference:
		if want := 8 + HashBits; bitLen != want {
			return NewMalformedEncodingErrorf("library reference body must be %d bits, got %d", want, bitLen)
		}
		if refs != 0 {
			return NewMalformedEncodingErrorf("library reference cannot have references")
		}
	case CellTypeMerkleProof:
		if want := 8 + HashBits + depthSize*8; bitLen != want {
			return NewMalformedEncodingErrorf("merkle proof body must be %d bits, got %d", want, bitLen)
		}
		if refs != 1 {
			return NewMalformedEncodingErrorf("merkle proof must have exactly 1 reference, got %d", refs)
		}
	case CellTypeMerkleUpdate:
		if want := 8 + 2*(HashBits+depthSize*8); bitLen != want {
			return NewMalformedEncodingErrorf("merkle update body must be %d bits, got %d", want, bitLen)
		}
		if refs != 2 {
			return NewMalformedEncodingErrorf("merkle update must have exactly 2 references, got %d", refs)
		}
	}
	return nil
}
