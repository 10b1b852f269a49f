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

// UsageTracker records which cells a logical read operation visited. The
// visited set is the basis for building a minimal Merkle proof: visited
// cells are kept verbatim, everything else is pruned.
//
// A tracker is scoped to one traversal and must not be shared between
// concurrent operations.
type UsageTracker struct {
	visited map[Hash]struct{}
}

// NewUsageTracker returns an empty tracker.
func NewUsageTracker() *UsageTracker {
	return &UsageTracker{visited: make(map[Hash]struct{})}
}

// Touch marks the cell visited. Idempotent.
func (t *UsageTracker) Touch(c *Cell) {
	t.visited[c.ReprHash()] = struct{}{}
}

// Contains reports whether a cell with the given representation hash was
// visited.
func (t *UsageTracker) Contains(h Hash) bool {
	_, ok := t.visited[h]
	return ok
}

// Count returns the number of distinct visited cells.
func (t *UsageTracker) Count() int {
	return len(t.visited)
}

// VisitedSet returns a copy of the visited hashes.
func (t *UsageTracker) VisitedSet() map[Hash]struct{} {
	set := make(map[Hash]struct{}, len(t.visited))
	for h := range t.visited {
		set[h] = struct{}{}
	}
	return set
}

// Slice opens a tracked cursor: the cell itself and every reference loaded
// through the cursor (and cursors derived from it) are touched.
func (t *UsageTracker) Slice(c *Cell) *Slice {
	return newSlice(c, t)
}
