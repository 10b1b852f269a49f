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

// sumAugmentation aggregates fixed-width 32-bit amounts, the shape used by
// balance dictionaries.
type sumAugmentation struct{}

func (sumAugmentation) SkipExtra(s *Slice) error {
	return s.Skip(32)
}

func (sumAugmentation) CombineExtra(left, right *Slice) (*Builder, error) {
	l, err := left.ReadUint32()
	if err != nil {
		return nil, err
	}
	r, err := right.ReadUint32()
	if err != nil {
		return nil, err
	}
	b := NewBuilder()
	if err := b.AppendUint32(l + r); err != nil {
		return nil, err
	}
	return b, nil
}

func mustExtra(t *testing.T, amount uint32) *Builder {
	t.Helper()
	b := NewBuilder()
	require.NoError(t, b.AppendUint32(amount))
	return b
}

func augRootSum(t *testing.T, m *HashmapAug) uint32 {
	t.Helper()
	s, err := m.RootExtra()
	require.NoError(t, err)
	v, err := s.ReadUint32()
	require.NoError(t, err)
	return v
}

func TestHashmapAugSetGet(t *testing.T) {
	t.Parallel()

	m := NewHashmapAug(8, sumAugmentation{})

	depth, err := m.Set(mustKey(t, 0x01, 8), mustValue(t, 0xA1), mustExtra(t, 100))
	require.NoError(t, err)
	require.Equal(t, 1, depth)

	_, err = m.Set(mustKey(t, 0x81, 8), mustValue(t, 0xA2), mustExtra(t, 200))
	require.NoError(t, err)

	extra, value, err := m.GetWithExtra(mustKey(t, 0x01, 8))
	require.NoError(t, err)
	amount, err := extra.ReadUint32()
	require.NoError(t, err)
	require.Equal(t, uint32(100), amount)
	v, err := value.ReadByte()
	require.NoError(t, err)
	require.Equal(t, byte(0xA1), v)

	_, err = m.Get(mustKey(t, 0x02, 8))
	var notFoundError *KeyNotFoundError
	require.Equal(t, 1, errorCategorizationCount(err))
	require.ErrorAs(t, err, &notFoundError)
}

func TestHashmapAugAggregates(t *testing.T) {
	t.Parallel()

	m := NewHashmapAug(8, sumAugmentation{})
	amounts := map[uint64]uint32{0x01: 5, 0x13: 10, 0x80: 20, 0xF0: 40}
	total := uint32(0)
	for k, a := range amounts {
		_, err := m.Set(mustKey(t, k, 8), mustValue(t, byte(k)), mustExtra(t, a))
		require.NoError(t, err)
		total += a
	}

	require.Equal(t, total, augRootSum(t, m))

	// Overwriting a leaf recomputes every aggregate on its path.
	_, err := m.Set(mustKey(t, 0x13, 8), mustValue(t, 0x13), mustExtra(t, 11))
	require.NoError(t, err)
	require.Equal(t, total+1, augRootSum(t, m))

	// Removing a leaf does too.
	require.NoError(t, m.Remove(mustKey(t, 0x80, 8)))
	require.Equal(t, total+1-20, augRootSum(t, m))
}

func TestHashmapAugSetReportsPathDepth(t *testing.T) {
	t.Parallel()

	m := NewHashmapAug(8, sumAugmentation{})

	depth, err := m.Set(mustKey(t, 0x00, 8), mustValue(t, 0x01), mustExtra(t, 1))
	require.NoError(t, err)
	require.Equal(t, 1, depth)

	// Splitting the root edge creates a fork over two leaves.
	depth, err = m.Set(mustKey(t, 0xFF, 8), mustValue(t, 0x02), mustExtra(t, 1))
	require.NoError(t, err)
	require.Equal(t, 2, depth)

	// A deeper divergence runs through the existing fork.
	depth, err = m.Set(mustKey(t, 0x80, 8), mustValue(t, 0x03), mustExtra(t, 1))
	require.NoError(t, err)
	require.Equal(t, 3, depth)
}

func TestHashmapAugIterate(t *testing.T) {
	t.Parallel()

	m := NewHashmapAug(8, sumAugmentation{})
	for _, k := range []uint64{0x30, 0x01, 0xCF} {
		_, err := m.Set(mustKey(t, k, 8), mustValue(t, byte(k)), mustExtra(t, uint32(k)))
		require.NoError(t, err)
	}

	var keys []byte
	var extras []uint32
	done, err := m.Iterate(func(key *BitString, extra, value *Slice) (bool, error) {
		v, err := value.ReadByte()
		require.NoError(t, err)
		keys = append(keys, v)
		a, err := extra.ReadUint32()
		require.NoError(t, err)
		extras = append(extras, a)
		return true, nil
	})
	require.NoError(t, err)
	require.True(t, done)
	require.Equal(t, []byte{0x01, 0x30, 0xCF}, keys)
	require.Equal(t, []uint32{0x01, 0x30, 0xCF}, extras)
}

func TestHashmapAugSerializationRoundTrip(t *testing.T) {
	t.Parallel()

	m := NewHashmapAug(8, sumAugmentation{})
	for _, k := range []uint64{0x21, 0x84} {
		_, err := m.Set(mustKey(t, k, 8), mustValue(t, byte(k)), mustExtra(t, uint32(k)))
		require.NoError(t, err)
	}

	b := NewBuilder()
	require.NoError(t, m.WriteTo(b, mustExtra(t, 0)))
	c, err := b.Finalize()
	require.NoError(t, err)

	got, err := ReadHashmapAug(c.Slice(), 8, sumAugmentation{})
	require.NoError(t, err)
	require.Equal(t, m.Root().ReprHash(), got.Root().ReprHash())
	require.Equal(t, uint32(0x21+0x84), augRootSum(t, got))

	// Empty dictionaries persist the neutral aggregate.
	empty := NewHashmapAug(8, sumAugmentation{})
	be := NewBuilder()
	require.NoError(t, empty.WriteTo(be, mustExtra(t, 0)))
	require.Equal(t, 1+32, be.BitLen())
}

func TestHashmapAugSplitMerge(t *testing.T) {
	t.Parallel()

	m := NewHashmapAug(8, sumAugmentation{})
	for _, k := range []uint64{0x11, 0x44, 0x99, 0xEE} {
		_, err := m.Set(mustKey(t, k, 8), mustValue(t, byte(k)), mustExtra(t, uint32(k)))
		require.NoError(t, err)
	}

	prefix := NewBitString()
	left, right, err := m.Split(prefix)
	require.NoError(t, err)
	require.Equal(t, uint32(0x11+0x44), augRootSum(t, left))
	require.Equal(t, uint32(0x99+0xEE), augRootSum(t, right))

	require.NoError(t, left.Merge(right, prefix))
	require.Equal(t, m.Root().ReprHash(), left.Root().ReprHash())
	require.Equal(t, uint32(0x11+0x44+0x99+0xEE), augRootSum(t, left))
}

func TestHashmapAugMergeKeyWidthMismatch(t *testing.T) {
	t.Parallel()

	wide := NewHashmapAug(16, sumAugmentation{})
	_, err := wide.Set(mustKey(t, 0x8001, 16), mustValue(t, 0x01), mustExtra(t, 1))
	require.NoError(t, err)

	empty := NewHashmapAug(8, sumAugmentation{})
	err = empty.Merge(wide, NewBitString())
	var malformedError *MalformedEncodingError
	require.ErrorAs(t, err, &malformedError)
	require.Nil(t, empty.Root())
}
