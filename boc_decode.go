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

// rawCellBody is one parsed but not yet reconstructed cell body.
type rawCellBody struct {
	data   []byte // packed data bits, completion tag stripped
	bitLen int
	refs   []uint64
	exotic bool
	big    bool
}

// ReadBOC parses a bag and reconstructs its cell graph, returning the roots
// in declaration order. Header bounds are validated before any per-cell
// allocation, the optional checksum before any body parsing, and the graph
// is rebuilt bottom-up so every hash is recomputed from already verified
// children. Either the whole bag decodes and validates or an error is
// returned and no graph is produced.
func ReadBOC(data []byte, opts ReadBOCOptions) ([]*Cell, error) {
	h, err := parseBOCHeader(data)
	if err != nil {
		return nil, err
	}
	if h.Magic == BOCMagicBig && !opts.AllowBigCells {
		return nil, NewBigCellsDisallowedError()
	}
	if err = verifyCRC(data, h); err != nil {
		return nil, err
	}
	if h.HasIndex {
		if err = validateIndex(data, h); err != nil {
			return nil, err
		}
	}

	bodies, err := parseCellBodies(data, h)
	if err != nil {
		return nil, err
	}

	cells, err := rebuildCells(bodies, h, opts.Hasher)
	if err != nil {
		return nil, err
	}

	roots := make([]*Cell, h.RootCount)
	for i, idx := range h.RootIndices {
		roots[i] = cells[idx]
	}
	if len(opts.ExpectedRootHashes) > 0 {
		if len(opts.ExpectedRootHashes) != len(roots) {
			return nil, NewMalformedEncodingErrorf("expected %d roots, bag declares %d",
				len(opts.ExpectedRootHashes), len(roots))
		}
		for i, root := range roots {
			if got := root.ReprHash(); got != opts.ExpectedRootHashes[i] {
				return nil, NewHashMismatchError(opts.ExpectedRootHashes[i], got)
			}
		}
	}
	return roots, nil
}

// ReadSingleRootBOC is ReadBOC for the common single-root case.
func ReadSingleRootBOC(data []byte, opts ReadBOCOptions) (*Cell, error) {
	roots, err := ReadBOC(data, opts)
	if err != nil {
		return nil, err
	}
	if len(roots) != 1 {
		return nil, NewMalformedEncodingErrorf("expected a single root, bag declares %d", len(roots))
	}
	return roots[0], nil
}

func validateIndex(data []byte, h *BOCHeader) error {
	pos := h.indexOffset
	prev := uint64(0)
	for i := uint64(0); i < h.CellCount; i++ {
		offset := readBEUint(data[pos:], h.OffsetSize)
		pos += h.OffsetSize
		if offset <= prev {
			return NewMalformedEncodingErrorf("index offset %d of cell %d does not increase", offset, i)
		}
		if offset > h.TotalCellSize {
			return NewMalformedEncodingErrorf("index offset %d of cell %d exceeds body size %d",
				offset, i, h.TotalCellSize)
		}
		prev = offset
	}
	if prev != h.TotalCellSize {
		return NewMalformedEncodingErrorf("index end %d does not match body size %d", prev, h.TotalCellSize)
	}
	return nil
}

// parseCellBodies walks the body section sequentially, validating every
// descriptor and reference index.
func parseCellBodies(data []byte, h *BOCHeader) ([]rawCellBody, error) {
	bodies := make([]rawCellBody, h.CellCount)
	body := data[h.bodyOffset : h.bodyOffset+int(h.TotalCellSize)]
	pos := 0

	for i := uint64(0); i < h.CellCount; i++ {
		if pos+1 > len(body) {
			return nil, NewMalformedEncodingErrorf("truncated body of cell %d", i)
		}
		d1 := body[pos]

		if h.Magic == BOCMagicBig && d1 == bigCellDescriptor {
			if pos+9 > len(body) {
				return nil, NewMalformedEncodingErrorf("truncated big cell %d", i)
			}
			n := readBEUint(body[pos+1:], 8)
			pos += 9
			if uint64(pos)+n > uint64(len(body)) {
				return nil, NewMalformedEncodingErrorf("big cell %d declares %d bytes beyond the body", i, n)
			}
			bodies[i] = rawCellBody{
				data:   body[pos : pos+int(n)],
				bitLen: int(n) * 8,
				big:    true,
			}
			pos += int(n)
			continue
		}

		if pos+2 > len(body) {
			return nil, NewMalformedEncodingErrorf("truncated body of cell %d", i)
		}
		d2 := body[pos+1]
		pos += 2

		refCount := int(d1 & maskRefSize)
		if refCount > MaxRefs {
			return nil, NewMalformedEncodingErrorf("cell %d declares %d references", i, refCount)
		}
		mask := NewLevelMask(d1 >> levelShift)

		if d1&flagWithHashes != 0 {
			// stored hashes are skipped and recomputed instead
			skip := mask.HashCount() * (HashSize + depthSize)
			if pos+skip > len(body) {
				return nil, NewMalformedEncodingErrorf("truncated stored hashes of cell %d", i)
			}
			pos += skip
		}

		byteLen := (int(d2) + 1) / 2
		if pos+byteLen > len(body) {
			return nil, NewMalformedEncodingErrorf("truncated data of cell %d", i)
		}
		raw := body[pos : pos+byteLen]
		pos += byteLen

		bitLen := int(d2/2) * 8
		if d2%2 != 0 {
			var err error
			if bitLen, err = bitLenFromCompletionTag(raw); err != nil {
				return nil, err
			}
		}

		refs := make([]uint64, refCount)
		for r := 0; r < refCount; r++ {
			if pos+h.RefSize > len(body) {
				return nil, NewMalformedEncodingErrorf("truncated references of cell %d", i)
			}
			ref := readBEUint(body[pos:], h.RefSize)
			pos += h.RefSize
			if ref >= h.CellCount {
				return nil, NewInvalidReferenceError(i, ref, "reference out of range")
			}
			if ref == i {
				return nil, NewInvalidReferenceError(i, ref, "cell references itself")
			}
			if ref < i {
				// the ordering convention forbids backward references,
				// which is also what rules out cycles
				return nil, NewInvalidReferenceError(i, ref, "reference points backward")
			}
			refs[r] = ref
		}
		bodies[i] = rawCellBody{
			data:   raw,
			bitLen: bitLen,
			refs:   refs,
			exotic: d1&flagExotic != 0,
		}
	}
	if pos != len(body) {
		return nil, NewMalformedEncodingErrorf("%d trailing bytes after the last cell body", len(body)-pos)
	}
	return bodies, nil
}

// rebuildCells finalizes cells from the last to the first so that every
// reference resolves to an already reconstructed cell. The loop is the
// iterative replacement for a depth-first rebuild: no recursion, whatever
// the graph depth.
func rebuildCells(bodies []rawCellBody, h *BOCHeader, hasher Hasher) ([]*Cell, error) {
	if hasher == nil {
		hasher = DefaultHasher()
	}
	cells := make([]*Cell, len(bodies))
	for i := len(bodies) - 1; i >= 0; i-- {
		raw := &bodies[i]
		if raw.big {
			payload := make([]byte, len(raw.data))
			copy(payload, raw.data)
			c := &Cell{
				data:     payload,
				bitLen:   raw.bitLen,
				cellType: CellTypeBig,
			}
			c.hashes = []Hash{bigCellHash(hasher, payload)}
			c.depths = []uint16{0}
			cells[i] = c
			continue
		}

		bs, err := BitStringFromBits(raw.data, raw.bitLen)
		if err != nil {
			return nil, err
		}
		b := &Builder{bits: *bs, cellType: CellTypeOrdinary}
		if raw.exotic {
			if raw.bitLen < 8 {
				return nil, NewMalformedEncodingErrorf("exotic cell %d has no type byte", i)
			}
			b.cellType = CellType(raw.data[0])
			if !b.cellType.IsExotic() {
				return nil, NewMalformedEncodingErrorf("cell %d has unknown exotic type %d", i, raw.data[0])
			}
		}
		for _, ref := range raw.refs {
			b.refs = append(b.refs, cells[ref])
		}
		if cells[i], err = b.FinalizeWith(hasher); err != nil {
			return nil, err
		}
	}
	return cells, nil
}
