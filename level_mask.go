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

// LevelMask records which hash levels a cell carries. Bit i-1 set means
// level i is significant; level 0 always is. Only the low 3 bits are used.
type LevelMask uint8

// NewLevelMask returns mask truncated to the valid bit range.
func NewLevelMask(mask uint8) LevelMask {
	return LevelMask(mask & 0b111)
}

func (m LevelMask) Mask() uint8 {
	return uint8(m)
}

// Level is the position of the highest significant bit, 0..MaxLevel.
func (m LevelMask) Level() int {
	return bits.Len8(uint8(m))
}

// HashCount is the number of hashes a cell with this mask carries.
func (m LevelMask) HashCount() int {
	return m.HashIndex() + 1
}

// HashIndex is the index of the mask's own level among significant levels.
func (m LevelMask) HashIndex() int {
	return bits.OnesCount8(uint8(m))
}

// Apply keeps only the bits relevant to levels at or below level.
func (m LevelMask) Apply(level int) LevelMask {
	return m & LevelMask((1<<level)-1)
}

// IsSignificant reports whether the cell carries a distinct hash at level.
func (m LevelMask) IsSignificant(level int) bool {
	return level == 0 || (m>>(level-1))&1 != 0
}

func (m LevelMask) Or(other LevelMask) LevelMask {
	return m | other
}

// forMerkleCell derives a Merkle cell's mask from the combined mask of its
// children: the Merkle cell consumes one level.
func forMerkleCell(children LevelMask) LevelMask {
	return children >> 1
}

// withLevel returns m with the bit for an additional hash at the given
// merkle depth set, failing if it is already present.
func (m LevelMask) withLevel(depth int) (LevelMask, error) {
	if depth > 2 {
		return 0, NewProofInvalidErrorf("merkle depth %d exceeds the maximum nesting", depth)
	}
	if m&(1<<depth) != 0 {
		return 0, NewProofInvalidErrorf("level %d already present in mask %03b", depth, m)
	}
	return m | (1 << depth), nil
}
