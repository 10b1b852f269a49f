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

// Cell representation hashing. The hash at each significant level covers a
// two-byte descriptor, the completion-tagged data (or the previous level's
// hash above level zero for non-pruned cells), each reference's depth, and
// each reference's hash at the corresponding level. Hashes and depths are
// memoized at finalization and never recomputed.

const (
	// descriptor byte 1 flags
	flagExotic     = 0x08
	flagWithHashes = 0x10

	levelShift = 5
)

// descriptor1 packs reference count, the exotic flag, and the level mask.
func descriptor1(refCount int, exotic bool, mask LevelMask) byte {
	d1 := byte(refCount)
	if exotic {
		d1 |= flagExotic
	}
	d1 |= mask.Mask() << levelShift
	return d1
}

// descriptor2 encodes the data length: floor(bits/8) + ceil(bits/8). An odd
// value means the final byte carries a completion tag.
func descriptor2(bitLen int) byte {
	return byte(bitLen/8 + (bitLen+7)/8)
}

// computeHashes fills in c.hashes and c.depths bottom-up. References must
// already be finalized. Depth never recurses: each cell's depth derives from
// its children's memoized depths.
func computeHashes(c *Cell, hasher Hasher) error {
	totalHashCount := c.levelMask.HashCount()
	hashCount := totalHashCount
	if c.cellType == CellTypePrunedBranch {
		// lower-level hashes live in the pruned body; only the top
		// one is computed over the body itself
		hashCount = 1
	}
	hashIndexOffset := totalHashCount - hashCount

	c.hashes = make([]Hash, hashCount)
	c.depths = make([]uint16, hashCount)

	hashIndex := 0
	level := c.levelMask.Level()
	for li := 0; li <= level; li++ {
		if !c.levelMask.IsSignificant(li) {
			continue
		}
		if hashIndex < hashIndexOffset {
			hashIndex++
			continue
		}

		var repr []byte
		var dataBits []byte
		var dataBitLen int
		if hashIndex == hashIndexOffset {
			dataBits = c.data
			dataBitLen = c.bitLen
		} else {
			prev := c.hashes[hashIndex-hashIndexOffset-1]
			dataBits = prev[:]
			dataBitLen = HashBits
		}

		repr = append(repr,
			descriptor1(len(c.refs), c.cellType.IsExotic(), c.levelMask.Apply(li)),
			descriptor2(dataBitLen),
		)
		repr = append(repr, bitsWithCompletionTag(dataBits, dataBitLen)...)

		childLevel := li
		if c.cellType.IsMerkle() {
			childLevel = li + 1
		}

		depth := uint16(0)
		for _, ref := range c.refs {
			childDepth := ref.Depth(childLevel)
			if childDepth >= depth {
				depth = childDepth + 1
			}
			repr = append(repr, byte(childDepth>>8), byte(childDepth))
		}
		if len(c.refs) > 0 {
			if depth > maxCellDepth {
				return NewCapacityExceededErrorf("cell depth %d exceeds the limit %d", depth, maxCellDepth)
			}
		}
		for _, ref := range c.refs {
			h := ref.Hash(childLevel)
			repr = append(repr, h[:]...)
		}

		idx := hashIndex - hashIndexOffset
		c.hashes[idx] = hasher.Sum(repr)
		c.depths[idx] = depth
		hashIndex++
	}
	return nil
}

// bigCellHash hashes a big cell over its descriptor and raw payload.
func bigCellHash(hasher Hasher, payload []byte) Hash {
	repr := make([]byte, 0, 9+len(payload))
	repr = append(repr, bigCellDescriptor)
	n := uint64(len(payload))
	repr = append(repr,
		byte(n>>56), byte(n>>48), byte(n>>40), byte(n>>32),
		byte(n>>24), byte(n>>16), byte(n>>8), byte(n),
	)
	repr = append(repr, payload...)
	return hasher.Sum(repr)
}
