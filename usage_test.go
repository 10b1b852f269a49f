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

func TestUsageTrackerTouch(t *testing.T) {
	t.Parallel()

	a := mustCellFromBytes(t, 0x0A)
	b := mustCellFromBytes(t, 0x0B)

	tracker := NewUsageTracker()
	require.Equal(t, 0, tracker.Count())
	require.False(t, tracker.Contains(a.ReprHash()))

	tracker.Touch(a)
	require.Equal(t, 1, tracker.Count())
	require.True(t, tracker.Contains(a.ReprHash()))
	require.False(t, tracker.Contains(b.ReprHash()))

	// Idempotent.
	tracker.Touch(a)
	require.Equal(t, 1, tracker.Count())
}

func TestUsageTrackerFollowsReads(t *testing.T) {
	t.Parallel()

	leaf := mustCellFromBytes(t, 0x01)
	mid := mustCellWithRefs(t, []byte{0x02}, leaf)
	unread := mustCellFromBytes(t, 0x03)
	root := mustCellWithRefs(t, []byte{0x04}, mid, unread)

	tracker := NewUsageTracker()
	s := tracker.Slice(root)
	require.True(t, tracker.Contains(root.ReprHash()))

	// Descend into the first subtree only.
	ms, err := s.ReadRefSlice()
	require.NoError(t, err)
	_, err = ms.ReadRefSlice()
	require.NoError(t, err)

	require.Equal(t, 3, tracker.Count())
	require.True(t, tracker.Contains(mid.ReprHash()))
	require.True(t, tracker.Contains(leaf.ReprHash()))
	require.False(t, tracker.Contains(unread.ReprHash()))
}

func TestUsageTrackerVisitedSetIsACopy(t *testing.T) {
	t.Parallel()

	a := mustCellFromBytes(t, 0x0A)
	tracker := NewUsageTracker()
	tracker.Touch(a)

	set := tracker.VisitedSet()
	require.Len(t, set, 1)

	delete(set, a.ReprHash())
	require.True(t, tracker.Contains(a.ReprHash()))
}
