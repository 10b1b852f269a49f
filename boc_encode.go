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
	"encoding/binary"
	"hash/crc32"
)

// WriteBOC serializes the DAG reachable from roots. Identical subtrees are
// written once (deduplicated by representation hash); cells are ordered so
// that every reference points strictly forward, matching the ordering of
// existing on-chain bags.
func WriteBOC(roots []*Cell, opts WriteBOCOptions) ([]byte, error) {
	if len(roots) == 0 {
		return nil, NewMalformedEncodingErrorf("a bag needs at least one root")
	}

	order, position, err := orderCells(roots)
	if err != nil {
		return nil, err
	}

	hasBig := false
	for _, c := range order {
		if c.IsBig() {
			hasBig = true
			break
		}
	}
	if hasBig && !opts.AllowBigCells {
		return nil, NewBigCellsDisallowedError()
	}

	refSize := minWidth(uint64(len(order)))

	bodies := make([][]byte, len(order))
	totalSize := uint64(0)
	for i, c := range order {
		bodies[i] = encodeCellBody(c, position, refSize)
		totalSize += uint64(len(bodies[i]))
	}
	offsetSize := minWidth(totalSize)

	magic := BOCMagicGeneric
	if hasBig {
		magic = BOCMagicBig
	}

	out := make([]byte, 0, 16+len(roots)*refSize+int(totalSize))
	out = binary.BigEndian.AppendUint32(out, magic)

	flags := byte(refSize)
	if opts.WithIndex {
		flags |= flagHasIndex
	}
	if opts.WithCRC {
		flags |= flagHasCRC
	}
	out = append(out, flags, byte(offsetSize))
	out = appendBEUint(out, uint64(len(order)), refSize)
	out = appendBEUint(out, uint64(len(roots)), refSize)
	out = appendBEUint(out, 0, refSize) // absent cells
	out = appendBEUint(out, totalSize, offsetSize)
	for _, root := range roots {
		out = appendBEUint(out, uint64(position[root.ReprHash()]), refSize)
	}
	if opts.WithIndex {
		offset := uint64(0)
		for _, body := range bodies {
			offset += uint64(len(body))
			out = appendBEUint(out, offset, offsetSize)
		}
	}
	for _, body := range bodies {
		out = append(out, body...)
	}
	if opts.WithCRC {
		out = binary.LittleEndian.AppendUint32(out, crc32.Checksum(out, crcTable))
	}
	return out, nil
}

// orderCells walks the graph iteratively (explicit stack, graphs can be
// arbitrarily deep) and returns the unique cells in an order where parents
// precede their children.
func orderCells(roots []*Cell) ([]*Cell, map[Hash]int, error) {
	type frame struct {
		cell *Cell
		next int
	}

	seen := make(map[Hash]struct{})
	var postorder []*Cell

	for _, root := range roots {
		if root == nil {
			return nil, nil, NewMalformedEncodingErrorf("nil root cell")
		}
		h := root.ReprHash()
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		stack := []frame{{cell: root}}
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next < top.cell.RefCount() {
				child := top.cell.refs[top.next]
				top.next++
				ch := child.ReprHash()
				if _, ok := seen[ch]; !ok {
					seen[ch] = struct{}{}
					stack = append(stack, frame{cell: child})
				}
				continue
			}
			postorder = append(postorder, top.cell)
			stack = stack[:len(stack)-1]
		}
	}

	order := make([]*Cell, len(postorder))
	position := make(map[Hash]int, len(postorder))
	for i, c := range postorder {
		j := len(postorder) - 1 - i
		order[j] = c
		position[c.ReprHash()] = j
	}
	return order, position, nil
}

// encodeCellBody serializes one cell: descriptor pair, completion-tagged
// data, then reference indices. Big cells use their own fixed layout.
func encodeCellBody(c *Cell, position map[Hash]int, refSize int) []byte {
	if c.IsBig() {
		body := make([]byte, 0, 9+len(c.data))
		body = append(body, bigCellDescriptor)
		body = appendBEUint(body, uint64(len(c.data)), 8)
		return append(body, c.data...)
	}

	data := bitsWithCompletionTag(c.data, c.bitLen)
	body := make([]byte, 0, 2+len(data)+len(c.refs)*refSize)
	body = append(body,
		descriptor1(len(c.refs), c.IsExotic(), c.levelMask),
		descriptor2(c.bitLen),
	)
	body = append(body, data...)
	for _, ref := range c.refs {
		body = appendBEUint(body, uint64(position[ref.ReprHash()]), refSize)
	}
	return body
}
