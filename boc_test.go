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

func TestBOCGoldenSingleCell(t *testing.T) {
	t.Parallel()

	c := mustCellFromBytes(t, 0xFF)

	data, err := WriteBOC([]*Cell{c}, WriteBOCOptions{})
	require.NoError(t, err)

	// magic(4) + flags(1) + offsetSize(1) + cells/roots/absent(3) +
	// totalSize(1) + root index(1) + one body of d1+d2+data(3).
	require.Len(t, data, 14)

	got, err := ReadSingleRootBOC(data, ReadBOCOptions{})
	require.NoError(t, err)
	require.Equal(t, goldenFFCellHash, got.ReprHash().String())
	require.True(t, c.Equal(got))
}

func TestBOCTwoCellGraph(t *testing.T) {
	t.Parallel()

	childBits := NewBitString()
	require.NoError(t, childBits.AppendBits(0b1010, 4))
	cb := NewBuilder()
	require.NoError(t, cb.AppendBitString(childBits))
	child, err := cb.Finalize()
	require.NoError(t, err)

	root := mustCellWithRefs(t, []byte{0x01}, child)

	data, err := WriteBOC([]*Cell{root}, WriteBOCOptions{})
	require.NoError(t, err)

	got, err := ReadSingleRootBOC(data, ReadBOCOptions{})
	require.NoError(t, err)
	require.Equal(t, root.ReprHash(), got.ReprHash())
	require.Equal(t, 1, got.RefCount())

	gotChild, err := got.Ref(0)
	require.NoError(t, err)
	require.Equal(t, child.ReprHash(), gotChild.ReprHash())
	require.Equal(t, 4, gotChild.BitLen())
}

func TestBOCMaxDataBitsRoundTrip(t *testing.T) {
	t.Parallel()

	// 1023 bits stores descriptor2 = 255, the largest value it can take.
	b := NewBuilder()
	for i := 0; i < MaxDataBits/8; i++ {
		require.NoError(t, b.AppendByte(0xA5))
	}
	require.NoError(t, b.AppendBits(0b1011010, 7))
	full, err := b.Finalize()
	require.NoError(t, err)
	require.Equal(t, MaxDataBits, full.BitLen())

	data, err := WriteBOC([]*Cell{full}, WriteBOCOptions{})
	require.NoError(t, err)

	got, err := ReadSingleRootBOC(data, ReadBOCOptions{})
	require.NoError(t, err)
	require.Equal(t, MaxDataBits, got.BitLen())
	require.Equal(t, full.ReprHash(), got.ReprHash())
}

func TestBOCRoundTripOptions(t *testing.T) {
	t.Parallel()

	shared := mustCellFromBytes(t, 0x55)
	left := mustCellWithRefs(t, []byte{0x01}, shared)
	right := mustCellWithRefs(t, []byte{0x02}, shared)
	root := mustCellWithRefs(t, []byte{0x00}, left, right)

	testCases := []struct {
		name string
		opts WriteBOCOptions
	}{
		{name: "bare", opts: WriteBOCOptions{}},
		{name: "index", opts: WriteBOCOptions{WithIndex: true}},
		{name: "crc", opts: WriteBOCOptions{WithCRC: true}},
		{name: "index and crc", opts: WriteBOCOptions{WithIndex: true, WithCRC: true}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := WriteBOC([]*Cell{root}, tc.opts)
			require.NoError(t, err)

			got, err := ReadSingleRootBOC(data, ReadBOCOptions{})
			require.NoError(t, err)
			require.Equal(t, root.ReprHash(), got.ReprHash())

			// The shared subtree is stored once and comes back as one cell.
			l, err := got.Ref(0)
			require.NoError(t, err)
			r, err := got.Ref(1)
			require.NoError(t, err)
			ls, err := l.Ref(0)
			require.NoError(t, err)
			rs, err := r.Ref(0)
			require.NoError(t, err)
			require.Same(t, ls, rs)
		})
	}
}

func TestBOCDeterminism(t *testing.T) {
	t.Parallel()

	root := mustChain(t, 20)

	first, err := WriteBOC([]*Cell{root}, WriteBOCOptions{WithIndex: true, WithCRC: true})
	require.NoError(t, err)
	second, err := WriteBOC([]*Cell{root}, WriteBOCOptions{WithIndex: true, WithCRC: true})
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestBOCMultiRoot(t *testing.T) {
	t.Parallel()

	shared := mustCellFromBytes(t, 0x99)
	r1 := mustCellWithRefs(t, []byte{0x01}, shared)
	r2 := mustCellWithRefs(t, []byte{0x02}, shared)

	data, err := WriteBOC([]*Cell{r1, r2}, WriteBOCOptions{})
	require.NoError(t, err)

	roots, err := ReadBOC(data, ReadBOCOptions{})
	require.NoError(t, err)
	require.Len(t, roots, 2)
	require.Equal(t, r1.ReprHash(), roots[0].ReprHash())
	require.Equal(t, r2.ReprHash(), roots[1].ReprHash())

	// ReadSingleRootBOC rejects multi-root bags.
	_, err = ReadSingleRootBOC(data, ReadBOCOptions{})
	var malformedError *MalformedEncodingError
	require.Equal(t, 1, errorCategorizationCount(err))
	require.ErrorAs(t, err, &malformedError)
}

func TestBOCExpectedRootHashes(t *testing.T) {
	t.Parallel()

	c := mustCellFromBytes(t, 0x42)
	data, err := WriteBOC([]*Cell{c}, WriteBOCOptions{})
	require.NoError(t, err)

	_, err = ReadBOC(data, ReadBOCOptions{ExpectedRootHashes: []Hash{c.ReprHash()}})
	require.NoError(t, err)

	_, err = ReadBOC(data, ReadBOCOptions{ExpectedRootHashes: []Hash{{0x01}}})
	var hashError *HashMismatchError
	require.Equal(t, 1, errorCategorizationCount(err))
	require.ErrorAs(t, err, &hashError)
}

func TestBOCCorruption(t *testing.T) {
	t.Parallel()

	root := mustChain(t, 5)

	t.Run("bad magic", func(t *testing.T) {
		data, err := WriteBOC([]*Cell{root}, WriteBOCOptions{})
		require.NoError(t, err)
		data[0] ^= 0xFF

		_, err = ReadBOC(data, ReadBOCOptions{})
		var malformedError *MalformedEncodingError
		require.Equal(t, 1, errorCategorizationCount(err))
		require.ErrorAs(t, err, &malformedError)
	})

	t.Run("truncated", func(t *testing.T) {
		data, err := WriteBOC([]*Cell{root}, WriteBOCOptions{})
		require.NoError(t, err)

		for n := 1; n < len(data); n++ {
			_, err = ReadBOC(data[:n], ReadBOCOptions{})
			require.Error(t, err, "prefix of %d bytes", n)
			require.Equal(t, 1, errorCategorizationCount(err))
		}
	})

	t.Run("flipped body byte fails CRC", func(t *testing.T) {
		data, err := WriteBOC([]*Cell{root}, WriteBOCOptions{WithCRC: true})
		require.NoError(t, err)
		data[len(data)-6] ^= 0x01

		_, err = ReadBOC(data, ReadBOCOptions{})
		var malformedError *MalformedEncodingError
		require.Equal(t, 1, errorCategorizationCount(err))
		require.ErrorAs(t, err, &malformedError)
	})

	t.Run("oversized cell count fails before allocation", func(t *testing.T) {
		data, err := WriteBOC([]*Cell{root}, WriteBOCOptions{})
		require.NoError(t, err)
		// Cell count is the first refSize byte after magic+flags+offsetSize.
		data[6] = 0xFF

		_, err = ReadBOC(data, ReadBOCOptions{})
		require.Error(t, err)
		require.Equal(t, 1, errorCategorizationCount(err))
	})
}

func TestBOCBigCells(t *testing.T) {
	t.Parallel()

	big, err := NewBigCell(make([]byte, 2000))
	require.NoError(t, err)

	// Writing requires explicit opt-in.
	_, err = WriteBOC([]*Cell{big}, WriteBOCOptions{})
	var disallowedError *BigCellsDisallowedError
	require.Equal(t, 1, errorCategorizationCount(err))
	require.ErrorAs(t, err, &disallowedError)

	data, err := WriteBOC([]*Cell{big}, WriteBOCOptions{AllowBigCells: true})
	require.NoError(t, err)

	// Reading requires explicit opt-in too.
	_, err = ReadBOC(data, ReadBOCOptions{})
	require.Equal(t, 1, errorCategorizationCount(err))
	require.ErrorAs(t, err, &disallowedError)

	got, err := ReadSingleRootBOC(data, ReadBOCOptions{AllowBigCells: true})
	require.NoError(t, err)
	require.True(t, got.IsBig())
	require.Equal(t, big.ReprHash(), got.ReprHash())
}

func TestInspectBOC(t *testing.T) {
	t.Parallel()

	root := mustChain(t, 3)
	data, err := WriteBOC([]*Cell{root}, WriteBOCOptions{WithIndex: true, WithCRC: true})
	require.NoError(t, err)

	h, err := InspectBOC(data)
	require.NoError(t, err)
	require.Equal(t, uint64(3), h.CellCount)
	require.Equal(t, uint64(1), h.RootCount)
	require.True(t, h.HasIndex)
	require.True(t, h.HasCRC)

	// Random access to each stored body.
	for i := uint64(0); i < h.CellCount; i++ {
		body, err := CellBody(data, h, i)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(body), 2)
	}

	_, err = CellBody(data, h, h.CellCount)
	var oobError *OutOfBoundsError
	require.Equal(t, 1, errorCategorizationCount(err))
	require.ErrorAs(t, err, &oobError)
}

func TestBOCRootHashes(t *testing.T) {
	t.Parallel()

	c := mustCellFromBytes(t, 0x33)
	data, err := WriteBOC([]*Cell{c}, WriteBOCOptions{})
	require.NoError(t, err)

	hashes, err := BOCRootHashes(data, ReadBOCOptions{})
	require.NoError(t, err)
	require.Equal(t, []Hash{c.ReprHash()}, hashes)
}
