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

func TestBuilderBitCapacity(t *testing.T) {
	t.Parallel()

	b := NewBuilder()
	for i := 0; i < MaxDataBits; i++ {
		require.NoError(t, b.AppendBit(i%2 == 0))
	}
	require.Equal(t, MaxDataBits, b.BitLen())

	err := b.AppendBit(true)
	var userError *UserError
	var capacityError *CapacityExceededError
	require.Equal(t, 1, errorCategorizationCount(err))
	require.ErrorAs(t, err, &userError)
	require.ErrorAs(t, err, &capacityError)

	// A full builder still finalizes.
	_, err = b.Finalize()
	require.NoError(t, err)
}

func TestBuilderRefCapacity(t *testing.T) {
	t.Parallel()

	child := mustCellFromBytes(t, 0x01)

	b := NewBuilder()
	for i := 0; i < MaxRefs; i++ {
		require.NoError(t, b.AppendRef(child))
	}

	err := b.AppendRef(child)
	var userError *UserError
	var capacityError *CapacityExceededError
	require.Equal(t, 1, errorCategorizationCount(err))
	require.ErrorAs(t, err, &userError)
	require.ErrorAs(t, err, &capacityError)
}

func TestBuilderAppendOverflow(t *testing.T) {
	t.Parallel()

	b := NewBuilder()
	require.NoError(t, b.AppendBytes(make([]byte, 127))) // 1016 bits

	// 8 more bits would exceed 1023.
	err := b.AppendByte(0xFF)
	var capacityError *CapacityExceededError
	require.Equal(t, 1, errorCategorizationCount(err))
	require.ErrorAs(t, err, &capacityError)

	// 7 more still fit.
	require.NoError(t, b.AppendBits(0x7F, 7))
	require.Equal(t, MaxDataBits, b.BitLen())
}

func TestBuilderExoticBodyValidation(t *testing.T) {
	t.Parallel()

	t.Run("library reference needs exact body", func(t *testing.T) {
		b := NewBuilder()
		b.SetType(CellTypeLibraryReference)
		require.NoError(t, b.AppendByte(byte(CellTypeLibraryReference)))
		// Body is short of the 32-byte hash.
		_, err := b.Finalize()
		var malformedError *MalformedEncodingError
		require.Equal(t, 1, errorCategorizationCount(err))
		require.ErrorAs(t, err, &malformedError)
	})

	t.Run("merkle proof needs a reference", func(t *testing.T) {
		b := NewBuilder()
		b.SetType(CellTypeMerkleProof)
		require.NoError(t, b.AppendByte(byte(CellTypeMerkleProof)))
		require.NoError(t, b.AppendHash(Hash{}))
		require.NoError(t, b.AppendUint16(0))
		_, err := b.Finalize()
		var malformedError *MalformedEncodingError
		require.Equal(t, 1, errorCategorizationCount(err))
		require.ErrorAs(t, err, &malformedError)
	})

	t.Run("pruned branch with empty mask", func(t *testing.T) {
		b := NewBuilder()
		b.SetType(CellTypePrunedBranch)
		require.NoError(t, b.AppendByte(byte(CellTypePrunedBranch)))
		require.NoError(t, b.AppendByte(0x00))
		require.NoError(t, b.AppendHash(Hash{}))
		require.NoError(t, b.AppendUint16(0))
		_, err := b.Finalize()
		var malformedError *MalformedEncodingError
		require.Equal(t, 1, errorCategorizationCount(err))
		require.ErrorAs(t, err, &malformedError)
	})
}

func TestBuilderFromCell(t *testing.T) {
	t.Parallel()

	child := mustCellFromBytes(t, 0x02)
	orig := mustCellWithRefs(t, []byte{0xAB, 0xCD}, child)

	b, err := NewBuilderFromCell(orig)
	require.NoError(t, err)

	rebuilt, err := b.Finalize()
	require.NoError(t, err)
	require.True(t, orig.Equal(rebuilt))
	require.Equal(t, orig.ReprHash(), rebuilt.ReprHash())
}
