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
	"flag"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var seed = flag.Int64("seed", 0, "seed for pseudo-random source")

func newRand(tb testing.TB) *rand.Rand {
	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	if t, ok := tb.(*testing.T); ok {
		t.Logf("seed: %d\n", *seed)
	}

	return rand.New(rand.NewSource(*seed))
}

// errorCategorizationCount returns the number of error categorizations
// (UserError, FatalError, ExternalError) in the error chain. Every error
// escaping the package must carry exactly one.
func errorCategorizationCount(err error) int {
	count := 0
	for err != nil {
		switch e := err.(type) {
		case *UserError:
			count++
			err = e.Unwrap()
		case *FatalError:
			count++
			err = e.Unwrap()
		case *ExternalError:
			count++
			err = e.Unwrap()
		default:
			type unwrapper interface {
				Unwrap() error
			}
			if u, ok := err.(unwrapper); ok {
				err = u.Unwrap()
			} else {
				err = nil
			}
		}
	}
	return count
}

// mustCellFromBytes finalizes an ordinary cell over whole bytes.
func mustCellFromBytes(t *testing.T, data ...byte) *Cell {
	t.Helper()
	b := NewBuilder()
	require.NoError(t, b.AppendBytes(data))
	c, err := b.Finalize()
	require.NoError(t, err)
	return c
}

// mustCellWithRefs finalizes an ordinary cell over whole bytes with the
// given references.
func mustCellWithRefs(t *testing.T, data []byte, refs ...*Cell) *Cell {
	t.Helper()
	b := NewBuilder()
	require.NoError(t, b.AppendBytes(data))
	for _, r := range refs {
		require.NoError(t, b.AppendRef(r))
	}
	c, err := b.Finalize()
	require.NoError(t, err)
	return c
}

// mustChain builds a linked list of cells of the given depth, each node
// holding its depth index as a byte and referencing the previous node.
func mustChain(t *testing.T, depth int) *Cell {
	t.Helper()
	c := mustCellFromBytes(t, 0x00)
	for i := 1; i < depth; i++ {
		c = mustCellWithRefs(t, []byte{byte(i)}, c)
	}
	return c
}

// mustKey builds an exact-width dictionary key from the low bits of v.
func mustKey(t *testing.T, v uint64, width int) *BitString {
	t.Helper()
	bs := NewBitString()
	require.NoError(t, bs.AppendBits(v, width))
	return bs
}

// mustValue builds a one-byte leaf value payload.
func mustValue(t *testing.T, v byte) *Builder {
	t.Helper()
	b := NewBuilder()
	require.NoError(t, b.AppendByte(v))
	return b
}
