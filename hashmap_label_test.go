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

func roundTripLabel(t *testing.T, label *BitString, max int) {
	t.Helper()

	b := NewBuilder()
	require.NoError(t, writeLabel(b, label, max))
	c, err := b.Finalize()
	require.NoError(t, err)

	got, err := readLabel(c.Slice(), max)
	require.NoError(t, err)
	require.True(t, label.Equal(got), "label %s, max %d", label, max)
}

func TestLabelRoundTrip(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		bits  uint64
		width int
		max   int
	}{
		{name: "empty", bits: 0, width: 0, max: 7},
		{name: "single bit", bits: 1, width: 1, max: 7},
		{name: "mixed bits", bits: 0b1011001, width: 7, max: 7},
		{name: "uniform zeros", bits: 0, width: 7, max: 7},
		{name: "uniform ones", bits: 0b1111111, width: 7, max: 7},
		{name: "short run", bits: 0b00, width: 2, max: 64},
		{name: "long uniform", bits: 0, width: 40, max: 64},
		{name: "full width", bits: ^uint64(0) >> 8, width: 56, max: 56},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			label := NewBitString()
			require.NoError(t, label.AppendBits(tc.bits, tc.width))
			roundTripLabel(t, label, tc.max)
		})
	}
}

func TestLabelRoundTripExhaustiveSmall(t *testing.T) {
	t.Parallel()

	// Every label of up to 6 bits in a 6-bit key space.
	for width := 0; width <= 6; width++ {
		for bits := uint64(0); bits < 1<<width; bits++ {
			label := NewBitString()
			require.NoError(t, label.AppendBits(bits, width))
			roundTripLabel(t, label, 6)
		}
	}
}

func TestLabelUniformPicksSameEncoding(t *testing.T) {
	t.Parallel()

	// A long uniform label takes the counted form: '11' + bit + length.
	label := NewBitString()
	for i := 0; i < 100; i++ {
		label.AppendBit(false)
	}

	b := NewBuilder()
	require.NoError(t, writeLabel(b, label, 1023))
	require.Equal(t, 3+labelLenBits(1023), b.BitLen())

	roundTripLabel(t, label, 1023)
}

func TestLabelOverlongRejected(t *testing.T) {
	t.Parallel()

	// A stored length larger than the remaining key width is malformed.
	b := NewBuilder()
	require.NoError(t, b.AppendBits(0b10, 2))   // long form
	require.NoError(t, b.AppendBits(7, 3))      // claims 7 bits
	require.NoError(t, b.AppendBits(0b1111111, 7))
	c, err := b.Finalize()
	require.NoError(t, err)

	_, err = readLabel(c.Slice(), 5)
	var malformedError *MalformedEncodingError
	require.Equal(t, 1, errorCategorizationCount(err))
	require.ErrorAs(t, err, &malformedError)
}

func TestCommonPrefixLen(t *testing.T) {
	t.Parallel()

	a := NewBitString()
	require.NoError(t, a.AppendBits(0b10110, 5))
	b := NewBitString()
	require.NoError(t, b.AppendBits(0b10100, 5))
	require.Equal(t, 3, commonPrefixLen(a, b))

	require.Equal(t, 5, commonPrefixLen(a, a))

	empty := NewBitString()
	require.Equal(t, 0, commonPrefixLen(a, empty))
}
