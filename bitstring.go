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
	"bytes"
	"encoding/hex"
	"fmt"
)

// BitString is a growable sequence of bits packed big-endian into bytes:
// bit 0 is the most significant bit of byte 0. It has no capacity limit of
// its own; cell capacity is enforced by Builder.
type BitString struct {
	data   []byte
	bitLen int
}

// NewBitString returns an empty BitString.
func NewBitString() *BitString {
	return &BitString{}
}

// BitStringFromBits wraps the first bitLen bits of data. Unused bits of the
// last byte are cleared so that equal bit content compares equal.
func BitStringFromBits(data []byte, bitLen int) (*BitString, error) {
	if bitLen < 0 || bitLen > len(data)*8 {
		return nil, NewOutOfBoundsError(bitLen, len(data)*8, "bits")
	}
	bs := &BitString{
		data:   make([]byte, (bitLen+7)/8),
		bitLen: bitLen,
	}
	copy(bs.data, data[:(bitLen+7)/8])
	bs.maskTail()
	return bs, nil
}

// BitStringFromBytes wraps whole bytes.
func BitStringFromBytes(data []byte) *BitString {
	bs := &BitString{
		data:   make([]byte, len(data)),
		bitLen: len(data) * 8,
	}
	copy(bs.data, data)
	return bs
}

func (bs *BitString) maskTail() {
	if rem := bs.bitLen % 8; rem != 0 {
		bs.data[len(bs.data)-1] &= byte(0xff) << (8 - rem)
	}
}

// BitLen returns the number of bits.
func (bs *BitString) BitLen() int {
	return bs.bitLen
}

// Bytes returns the packed bits as a fresh slice of ceil(BitLen/8) bytes.
func (bs *BitString) Bytes() []byte {
	b := make([]byte, len(bs.data))
	copy(b, bs.data)
	return b
}

// Bit returns bit i.
func (bs *BitString) Bit(i int) (bool, error) {
	if i < 0 || i >= bs.bitLen {
		return false, NewOutOfBoundsError(i+1, bs.bitLen, "bits")
	}
	return bs.data[i/8]&(0x80>>(i%8)) != 0, nil
}

// AppendBit appends a single bit.
func (bs *BitString) AppendBit(bit bool) {
	if bs.bitLen%8 == 0 {
		bs.data = append(bs.data, 0)
	}
	if bit {
		bs.data[bs.bitLen/8] |= 0x80 >> (bs.bitLen % 8)
	}
	bs.bitLen++
}

// AppendBits appends the low n bits of v, most significant first.
func (bs *BitString) AppendBits(v uint64, n int) error {
	if n < 0 || n > 64 {
		return NewOutOfBoundsError(n, 64, "bits")
	}
	for i := n - 1; i >= 0; i-- {
		bs.AppendBit(v&(1<<i) != 0)
	}
	return nil
}

// AppendBytes appends whole bytes.
func (bs *BitString) AppendBytes(p []byte) {
	if bs.bitLen%8 == 0 {
		bs.data = append(bs.data, p...)
		bs.bitLen += len(p) * 8
		return
	}
	for _, b := range p {
		// unaligned append, one byte at a time
		_ = bs.AppendBits(uint64(b), 8)
	}
}

// AppendBitString appends all bits of other.
func (bs *BitString) AppendBitString(other *BitString) {
	if bs.bitLen%8 == 0 {
		bs.data = append(bs.data, other.data...)
		bs.bitLen += other.bitLen
		bs.maskTail()
		return
	}
	for i := 0; i < other.bitLen; i++ {
		bit, _ := other.Bit(i)
		bs.AppendBit(bit)
	}
}

// Equal reports bit-exact equality.
func (bs *BitString) Equal(other *BitString) bool {
	return bs.bitLen == other.bitLen && bytes.Equal(bs.data, other.data)
}

// String renders the bits as hex; a trailing underscore marks content that
// does not end on a nibble boundary.
func (bs *BitString) String() string {
	if bs.bitLen%4 == 0 {
		return hex.EncodeToString(bs.data)[:bs.bitLen/4]
	}
	tagged := bitsWithCompletionTag(bs.data, bs.bitLen)
	s := hex.EncodeToString(tagged)
	// trim nibbles that carry only the completion tag
	n := (bs.bitLen + 4) / 4
	return fmt.Sprintf("%s_", s[:n])
}

// bitsWithCompletionTag packs bitLen bits into bytes, appending the TVM
// completion tag (a set bit followed by zeros) when bitLen is unaligned.
func bitsWithCompletionTag(data []byte, bitLen int) []byte {
	n := (bitLen + 7) / 8
	out := make([]byte, n)
	copy(out, data[:n])
	if rem := bitLen % 8; rem != 0 {
		out[n-1] &= byte(0xff) << (8 - rem)
		out[n-1] |= 0x80 >> rem
	}
	return out
}

// bitLenFromCompletionTag recovers the bit length encoded by a completion
// tag in the final byte.
func bitLenFromCompletionTag(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}
	last := data[len(data)-1]
	if last == 0 {
		return 0, NewMalformedEncodingErrorf("missing completion tag in cell data")
	}
	trailing := 0
	for last&1 == 0 {
		last >>= 1
		trailing++
	}
	return len(data)*8 - trailing - 1, nil
}
