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
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// PrintCell prints the cell graph under root to stdout.
func PrintCell(root *Cell) {
	dumps, err := DumpCells(root)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(strings.Join(dumps, "\n"))
}

// DumpCells renders one line per distinct cell reachable from root,
// level by level. Shared subtrees are printed once, at the shallowest
// level they appear on.
func DumpCells(root *Cell) ([]string, error) {
	var dumps []string

	seen := make(map[Hash]struct{})
	nextLevel := []*Cell{root}

	level := 0
	for len(nextLevel) > 0 {

		cells := nextLevel
		nextLevel = []*Cell(nil)

		for _, c := range cells {

			h := c.Hash(0)
			if _, ok := seen[h]; ok {
				continue
			}
			seen[h] = struct{}{}

			dumps = append(dumps, fmt.Sprintf("level %d, %s", level+1, c))

			for i := 0; i < c.RefCount(); i++ {
				child, err := c.Ref(i)
				if err != nil {
					return nil, err
				}
				nextLevel = append(nextLevel, child)
			}
		}

		level++
	}

	return dumps, nil
}

// cellDiagnostic is the per-cell entry of a diagnostic encoding.
// References are recorded as hashes so the whole graph flattens into a
// list regardless of sharing.
type cellDiagnostic struct {
	Hash     string   `cbor:"1,keyasint"`
	Type     string   `cbor:"2,keyasint"`
	BitLen   int      `cbor:"3,keyasint"`
	Data     string   `cbor:"4,keyasint"`
	RefCount int      `cbor:"5,keyasint"`
	Refs     []string `cbor:"6,keyasint,omitempty"`
}

// EncodeCellDiagnostic encodes the graph under root as a CBOR list of
// per-cell records for offline inspection. It is a debugging aid, not a
// wire format; use WriteBOC for interchange.
func EncodeCellDiagnostic(root *Cell) ([]byte, error) {
	var records []cellDiagnostic

	seen := make(map[Hash]struct{})
	stack := []*Cell{root}

	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		h := c.Hash(0)
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}

		rec := cellDiagnostic{
			Hash:     h.String(),
			Type:     c.CellType().String(),
			BitLen:   c.BitLen(),
			Data:     hex.EncodeToString(c.Data()),
			RefCount: c.RefCount(),
		}
		for i := c.RefCount() - 1; i >= 0; i-- {
			child, err := c.Ref(i)
			if err != nil {
				return nil, err
			}
			stack = append(stack, child)
		}
		for i := 0; i < c.RefCount(); i++ {
			child, err := c.Ref(i)
			if err != nil {
				return nil, err
			}
			rec.Refs = append(rec.Refs, child.Hash(0).String())
		}
		records = append(records, rec)
	}

	b, err := cbor.Marshal(records)
	if err != nil {
		return nil, wrapErrorfAsExternalErrorIfNeeded(err, "failed to encode cell diagnostic")
	}
	return b, nil
}
