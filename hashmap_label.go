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

import "math/bits"

// Prefix labels of dictionary edges come in three encodings and the writer
// must pick the shortest for the given label and key space:
//
//	short: '0',  unary length (n ones, one zero), n label bits
//	long:  '10', length as a lenBits(max)-wide integer, n label bits
//	same:  '11', one bit, length as a lenBits(max)-wide integer
//
// same only applies when every label bit is equal. max is the number of
// key bits still undecided at this edge.

// labelLenBits is the width of the length field for long and same labels.
func labelLenBits(max int) int {
	return bits.Len(uint(max))
}

// writeLabel appends the shortest encoding of label to b.
func writeLabel(b *Builder, label *BitString, max int) error {
	n := label.BitLen()
	if n > max {
		return NewCapacityExceededErrorf("label of %d bits does not fit %d remaining key bits", n, max)
	}
	lenBits := labelLenBits(max)

	shortLen := 2*n + 2
	longLen := 2 + lenBits + n
	sameLen := 3 + lenBits

	if n > 1 && sameLen < shortLen && sameLen < longLen {
		if v, uniform := labelUniformBit(label); uniform {
			if err := b.AppendBits(0b11, 2); err != nil {
				return err
			}
			if err := b.AppendBit(v); err != nil {
				return err
			}
			return b.AppendBits(uint64(n), lenBits)
		}
	}
	if shortLen <= longLen {
		if err := b.AppendBit(false); err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			if err := b.AppendBit(true); err != nil {
				return err
			}
		}
		if err := b.AppendBit(false); err != nil {
			return err
		}
		return b.AppendBitString(label)
	}
	if err := b.AppendBits(0b10, 2); err != nil {
		return err
	}
	if err := b.AppendBits(uint64(n), lenBits); err != nil {
		return err
	}
	return b.AppendBitString(label)
}

// readLabel consumes one label from s.
func readLabel(s *Slice, max int) (*BitString, error) {
	kind, err := s.ReadBit()
	if err != nil {
		return nil, err
	}
	if !kind {
		// short: unary length then the bits
		n := 0
		for {
			bit, err := s.ReadBit()
			if err != nil {
				return nil, err
			}
			if !bit {
				break
			}
			n++
			if n > max {
				return nil, NewMalformedEncodingErrorf("short label longer than %d remaining key bits", max)
			}
		}
		return s.ReadBits(n)
	}

	lenBits := labelLenBits(max)
	same, err := s.ReadBit()
	if err != nil {
		return nil, err
	}
	if !same {
		// long
		n, err := s.ReadUint(lenBits)
		if err != nil {
			return nil, err
		}
		if int(n) > max {
			return nil, NewMalformedEncodingErrorf("long label of %d bits exceeds %d remaining key bits", n, max)
		}
		return s.ReadBits(int(n))
	}

	// same: one repeated bit
	v, err := s.ReadBit()
	if err != nil {
		return nil, err
	}
	n, err := s.ReadUint(lenBits)
	if err != nil {
		return nil, err
	}
	if int(n) > max {
		return nil, NewMalformedEncodingErrorf("same label of %d bits exceeds %d remaining key bits", n, max)
	}
	label := NewBitString()
	for i := 0; i < int(n); i++ {
		label.AppendBit(v)
	}
	return label, nil
}

// labelUniformBit returns the repeated bit value and whether every label
// bit indeed equals it.
func labelUniformBit(label *BitString) (bool, bool) {
	if label.BitLen() == 0 {
		return false, false
	}
	first, _ := label.Bit(0)
	for i := 1; i < label.BitLen(); i++ {
		b, _ := label.Bit(i)
		if b != first {
			return false, false
		}
	}
	return first, true
}

// commonPrefixLen is the length of the longest common prefix of a and b.
func commonPrefixLen(a, b *BitString) int {
	n := a.BitLen()
	if m := b.BitLen(); m < n {
		n = m
	}
	for i := 0; i < n; i++ {
		ab, _ := a.Bit(i)
		bb, _ := b.Bit(i)
		if ab != bb {
			return i
		}
	}
	return n
}

// bitSubstring copies bits [from, from+n) of bs.
func bitSubstring(bs *BitString, from, n int) (*BitString, error) {
	if from < 0 || n < 0 || from+n > bs.BitLen() {
		return nil, NewOutOfBoundsError(from+n, bs.BitLen(), "bits")
	}
	out := NewBitString()
	for i := 0; i < n; i++ {
		b, _ := bs.Bit(from + i)
		out.AppendBit(b)
	}
	return out, nil
}
