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

// InspectBOC validates and returns the header of a serialized bag without
// decoding any cell body. The checksum, when present, is verified.
func InspectBOC(data []byte) (*BOCHeader, error) {
	h, err := parseBOCHeader(data)
	if err != nil {
		return nil, err
	}
	if err = verifyCRC(data, h); err != nil {
		return nil, err
	}
	return h, nil
}

// CellBody returns the raw serialized body of cell i (descriptors included)
// without decoding the rest of the bag. It requires a bag written with an
// index section.
func CellBody(data []byte, h *BOCHeader, i uint64) ([]byte, error) {
	if i >= h.CellCount {
		return nil, NewOutOfBoundsError(int(i), int(h.CellCount), "cell index")
	}
	if !h.HasIndex {
		return nil, NewMalformedEncodingErrorf("bag has no index section")
	}
	start := uint64(0)
	if i > 0 {
		start = readBEUint(data[h.indexOffset+int(i-1)*h.OffsetSize:], h.OffsetSize)
	}
	end := readBEUint(data[h.indexOffset+int(i)*h.OffsetSize:], h.OffsetSize)
	if start >= end || end > h.TotalCellSize {
		return nil, NewMalformedEncodingErrorf("index entries %d..%d of cell %d are inconsistent", start, end, i)
	}
	return data[uint64(h.bodyOffset)+start : uint64(h.bodyOffset)+end], nil
}

// BOCRootHashes decodes a bag, discards the graph and returns the
// representation hashes of its roots in declaration order.
func BOCRootHashes(data []byte, opts ReadBOCOptions) ([]Hash, error) {
	roots, err := ReadBOC(data, opts)
	if err != nil {
		return nil, err
	}
	hashes := make([]Hash, len(roots))
	for i, root := range roots {
		hashes[i] = root.ReprHash()
	}
	return hashes, nil
}
