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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBitStringAppendAndRead(t *testing.T) {
	t.Parallel()

	bs := NewBitString()
	bs.AppendBit(true)
	bs.AppendBit(false)
	require.NoError(t, bs.AppendBits(0b1011, 4))
	bs.AppendBytes([]byte{0xA5})

	require.Equal(t, 14, bs.BitLen())

	want := []bool{true, false, true, false, true, true, true, false, true, false, false, true, false, true}
	for i, w := range want {
		bit, err := bs.Bit(i)
		require.NoError(t, err)
		require.Equal(t, w, bit, "bit %d", i)
	}

	_, err := bs.Bit(14)
	var oobError *OutOfBoundsError
	require.Equal(t, 1, errorCategorizationCount(err))
	require.ErrorAs(t, err, &oobError)
}

func TestBitStringEqual(t *testing.T) {
	t.Parallel()

	a := NewBitString()
	require.NoError(t, a.AppendBits(0b1010, 4))

	b := NewBitString()
	require.NoError(t, b.AppendBits(0b1010, 4))
	require.True(t, a.Equal(b))

	// Same bytes, different lengths.
	c := NewBitString()
	require.NoError(t, c.AppendBits(0b10100, 5))
	require.False(t, a.Equal(c))

	// Same length, different bits.
	d := NewBitString()
	require.NoError(t, d.AppendBits(0b1011, 4))
	require.False(t, a.Equal(d))
}

func TestCompletionTag(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		data   []byte
		bitLen int
		tagged []byte
	}{
		{name: "empty", data: nil, bitLen: 0, tagged: []byte{}},
		{name: "whole byte", data: []byte{0xFF}, bitLen: 8, tagged: []byte{0xFF}},
		{name: "4 bits", data: []byte{0xA0}, bitLen: 4, tagged: []byte{0xA8}},
		{name: "7 bits", data: []byte{0xFE}, bitLen: 7, tagged: []byte{0xFF}},
		{name: "1 bit", data: []byte{0x80}, bitLen: 1, tagged: []byte{0xC0}},
		{name: "9 bits", data: []byte{0xFF, 0x80}, bitLen: 9, tagged: []byte{0xFF, 0xC0}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tagged := bitsWithCompletionTag(tc.data, tc.bitLen)
			require.Equal(t, tc.tagged, tagged)

			if tc.bitLen%8 != 0 {
				got, err := bitLenFromCompletionTag(tagged)
				require.NoError(t, err)
				require.Equal(t, tc.bitLen, got)
			}
		})
	}

	t.Run("all-zero tail is malformed", func(t *testing.T) {
		var fatalError *FatalError
		var malformedError *MalformedEncodingError

		_, err := bitLenFromCompletionTag([]byte{0xFF, 0x00})
		require.Equal(t, 1, errorCategorizationCount(err))
		require.ErrorAs(t, err, &fatalError)
		require.ErrorAs(t, err, &malformedError)
	})
}

func TestBitStringFromBits(t *testing.T) {
	t.Parallel()

	bs, err := BitStringFromBits([]byte{0xAB, 0xCD}, 12)
	require.NoError(t, err)
	require.Equal(t, 12, bs.BitLen())
	// Tail bits past the length are cleared.
	require.Equal(t, []byte{0xAB, 0xC0}, bs.Bytes())

	_, err = BitStringFromBits([]byte{0xAB}, 12)
	var oobError *OutOfBoundsError
	require.Equal(t, 1, errorCategorizationCount(err))
	require.ErrorAs(t, err, &oobError)
}
