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

const (
	// MaxDataBits is the data capacity of an ordinary cell.
	MaxDataBits = 1023

	// MaxDataBytes is the packed byte capacity of an ordinary cell.
	MaxDataBytes = (MaxDataBits + 7) / 8

	// MaxRefs is the reference capacity of an ordinary cell.
	MaxRefs = 4

	// MaxLevel is the highest hash level a cell can carry.
	MaxLevel = 3

	depthSize = 2
)

var (
	// Finalizing a cell deeper than this fails with CapacityExceededError.
	maxCellDepth = uint16(1024)
)

// SetMaxCellDepth replaces the cell depth ceiling and returns the previous
// value. Intended for tests; the default matches the TVM limit.
func SetMaxCellDepth(depth uint16) uint16 {
	prev := maxCellDepth
	maxCellDepth = depth
	return prev
}
