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
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// CellStorage keeps finalized cells addressable by their zero-level
// representation hash. Implementations must tolerate storing the same
// cell twice: content addressing makes the second store a no-op.
type CellStorage interface {

	// Store persists c under c.Hash(0).
	Store(c *Cell) error

	// Retrieve returns the cell stored under hash, or a
	// CellNotFoundError when no such cell exists.
	Retrieve(hash Hash) (*Cell, error)

	// Contains reports whether a cell is stored under hash.
	Contains(hash Hash) (bool, error)

	// Remove deletes the cell stored under hash. Removing an absent
	// hash is not an error.
	Remove(hash Hash) error

	// Count returns the number of stored cells.
	Count() (int, error)
}

// cellRecord is the persisted envelope of a single cell. The cell itself
// travels as a single-root bag so a record is self-contained: decoding it
// recomputes and verifies all hashes.
type cellRecord struct {
	Hash []byte `cbor:"1,keyasint"`
	BOC  []byte `cbor:"2,keyasint"`
}

// encodeCellRecord serializes c into its storage envelope.
func encodeCellRecord(c *Cell, encMode cbor.EncMode) ([]byte, error) {
	boc, err := WriteBOC([]*Cell{c}, WriteBOCOptions{AllowBigCells: c.IsBig()})
	if err != nil {
		return nil, err
	}
	h := c.Hash(0)
	b, err := encMode.Marshal(cellRecord{Hash: h[:], BOC: boc})
	if err != nil {
		return nil, wrapErrorfAsExternalErrorIfNeeded(err, "failed to encode cell record")
	}
	return b, nil
}

// decodeCellRecord reconstructs the cell held by a storage envelope,
// verifying that the rebuilt cell still carries the recorded hash.
func decodeCellRecord(data []byte, decMode cbor.DecMode) (*Cell, error) {
	var rec cellRecord
	if err := decMode.Unmarshal(data, &rec); err != nil {
		return nil, wrapErrorfAsExternalErrorIfNeeded(err, "failed to decode cell record")
	}
	want, err := HashFromBytes(rec.Hash)
	if err != nil {
		return nil, err
	}
	c, err := ReadSingleRootBOC(rec.BOC, ReadBOCOptions{
		AllowBigCells:      true,
		ExpectedRootHashes: []Hash{want},
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// BasicCellStorage is an in-memory CellStorage backed by a map. It is
// safe for concurrent use.
type BasicCellStorage struct {
	mu    sync.RWMutex
	cells map[Hash]*Cell
}

var _ CellStorage = &BasicCellStorage{}

// NewBasicCellStorage creates an empty in-memory cell storage.
func NewBasicCellStorage() *BasicCellStorage {
	return &BasicCellStorage{
		cells: make(map[Hash]*Cell),
	}
}

func (s *BasicCellStorage) Store(c *Cell) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cells[c.Hash(0)] = c
	return nil
}

func (s *BasicCellStorage) Retrieve(hash Hash) (*Cell, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cells[hash]
	if !ok {
		return nil, NewCellNotFoundError(hash)
	}
	return c, nil
}

func (s *BasicCellStorage) Contains(hash Hash) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.cells[hash]
	return ok, nil
}

func (s *BasicCellStorage) Remove(hash Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cells, hash)
	return nil
}

func (s *BasicCellStorage) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cells), nil
}

// Hashes returns the hashes of all stored cells in unspecified order.
func (s *BasicCellStorage) Hashes() []Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hashes := make([]Hash, 0, len(s.cells))
	for h := range s.cells {
		hashes = append(hashes, h)
	}
	return hashes
}

// StoreTree stores root and every cell reachable from it. Shared
// subtrees are stored once.
func StoreTree(storage CellStorage, root *Cell) error {
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

		if err := storage.Store(c); err != nil {
			return err
		}
		for i := c.RefCount() - 1; i >= 0; i-- {
			child, err := c.Ref(i)
			if err != nil {
				return err
			}
			stack = append(stack, child)
		}
	}
	return nil
}

// NewLibraryReferenceCell builds a library reference pointing at the
// library cell with the given representation hash.
func NewLibraryReferenceCell(libHash Hash) (*Cell, error) {
	b := NewBuilder()
	b.SetType(CellTypeLibraryReference)
	if err := b.AppendByte(byte(CellTypeLibraryReference)); err != nil {
		return nil, err
	}
	if err := b.AppendHash(libHash); err != nil {
		return nil, err
	}
	return b.Finalize()
}

// ResolveLibrary follows a library reference cell to the library cell it
// names. The referenced cell is looked up in storage by the 32-byte hash
// carried in the reference body. Cells that are not library references
// are returned unchanged.
func ResolveLibrary(c *Cell, storage CellStorage) (*Cell, error) {
	if c.CellType() != CellTypeLibraryReference {
		return c, nil
	}
	s := c.Slice()
	if _, err := s.ReadByte(); err != nil {
		return nil, err
	}
	hash, err := s.ReadHash()
	if err != nil {
		return nil, err
	}
	return storage.Retrieve(hash)
}
