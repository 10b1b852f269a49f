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

// Slice is a read cursor over a finalized cell: a bit position into the data
// and a position into the reference list. Reading never mutates the
// underlying cell. A Slice created through a UsageTracker touches every cell
// whose references it loads.
type Slice struct {
	cell    *Cell
	bitPos  int
	refPos  int
	tracker *UsageTracker
}

func newSlice(c *Cell, tracker *UsageTracker) *Slice {
	if tracker != nil {
		tracker.Touch(c)
	}
	return &Slice{cell: c, tracker: tracker}
}

// Cell returns the underlying cell.
func (s *Slice) Cell() *Cell {
	return s.cell
}

// BitPos returns the cursor position in bits.
func (s *Slice) BitPos() int {
	return s.bitPos
}

// RemainingBits returns the number of unread bits.
func (s *Slice) RemainingBits() int {
	return s.cell.bitLen - s.bitPos
}

// RemainingRefs returns the number of unread references.
func (s *Slice) RemainingRefs() int {
	return len(s.cell.refs) - s.refPos
}

// Clone returns an independent cursor at the same position.
func (s *Slice) Clone() *Slice {
	clone := *s
	return &clone
}

func (s *Slice) bitAt(pos int) bool {
	return s.cell.data[pos/8]&(0x80>>(pos%8)) != 0
}

// PeekBit returns the next bit without consuming it.
func (s *Slice) PeekBit() (bool, error) {
	if s.RemainingBits() < 1 {
		return false, NewOutOfBoundsError(1, 0, "bits")
	}
	return s.bitAt(s.bitPos), nil
}

// PeekUint returns the next n bits as a big-endian integer without
// consuming them.
func (s *Slice) PeekUint(n int) (uint64, error) {
	if n < 0 || n > 64 {
		return 0, NewOutOfBoundsError(n, 64, "bits")
	}
	if s.RemainingBits() < n {
		return 0, NewOutOfBoundsError(n, s.RemainingBits(), "bits")
	}
	var v uint64
	for i := 0; i < n; i++ {
		v <<= 1
		if s.bitAt(s.bitPos + i) {
			v |= 1
		}
	}
	return v, nil
}

// ReadBit consumes and returns one bit.
func (s *Slice) ReadBit() (bool, error) {
	bit, err := s.PeekBit()
	if err != nil {
		return false, err
	}
	s.bitPos++
	return bit, nil
}

// ReadUint consumes n bits and returns them as a big-endian integer.
func (s *Slice) ReadUint(n int) (uint64, error) {
	v, err := s.PeekUint(n)
	if err != nil {
		return 0, err
	}
	s.bitPos += n
	return v, nil
}

// ReadByte consumes 8 bits.
func (s *Slice) ReadByte() (byte, error) {
	v, err := s.ReadUint(8)
	return byte(v), err
}

// ReadUint16 consumes a big-endian 16-bit integer.
func (s *Slice) ReadUint16() (uint16, error) {
	v, err := s.ReadUint(16)
	return uint16(v), err
}

// ReadUint32 consumes a big-endian 32-bit integer.
func (s *Slice) ReadUint32() (uint32, error) {
	v, err := s.ReadUint(32)
	return uint32(v), err
}

// Skip advances the cursor by n bits.
func (s *Slice) Skip(n int) error {
	if n < 0 || s.RemainingBits() < n {
		return NewOutOfBoundsError(n, s.RemainingBits(), "bits")
	}
	s.bitPos += n
	return nil
}

// ReadBits consumes n bits into a BitString.
func (s *Slice) ReadBits(n int) (*BitString, error) {
	if n < 0 || s.RemainingBits() < n {
		return nil, NewOutOfBoundsError(n, s.RemainingBits(), "bits")
	}
	bs := NewBitString()
	for i := 0; i < n; i++ {
		bs.AppendBit(s.bitAt(s.bitPos + i))
	}
	s.bitPos += n
	return bs, nil
}

// ReadBytes consumes n whole bytes.
func (s *Slice) ReadBytes(n int) ([]byte, error) {
	bs, err := s.ReadBits(n * 8)
	if err != nil {
		return nil, err
	}
	return bs.Bytes(), nil
}

// ReadHash consumes a representation hash.
func (s *Slice) ReadHash() (Hash, error) {
	var h Hash
	b, err := s.ReadBytes(HashSize)
	if err != nil {
		return h, err
	}
	copy(h[:], b)
	return h, nil
}

// ReadRef consumes the next reference.
func (s *Slice) ReadRef() (*Cell, error) {
	if s.RemainingRefs() < 1 {
		return nil, NewOutOfBoundsError(1, 0, "references")
	}
	ref := s.cell.refs[s.refPos]
	s.refPos++
	if s.tracker != nil {
		s.tracker.Touch(ref)
	}
	return ref, nil
}

// ReadRefSlice consumes the next reference and opens a cursor over it,
// inheriting the tracker.
func (s *Slice) ReadRefSlice() (*Slice, error) {
	ref, err := s.ReadRef()
	if err != nil {
		return nil, err
	}
	return newSlice(ref, s.tracker), nil
}

// remainingBitString copies the unread bits without consuming them.
func (s *Slice) remainingBitString() (*BitString, error) {
	clone := s.Clone()
	return clone.ReadBits(clone.RemainingBits())
}
