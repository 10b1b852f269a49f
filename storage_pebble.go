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
	"errors"

	"github.com/cockroachdb/pebble"
	"github.com/fxamacker/cbor/v2"
)

// PebbleCellStorage is a persistent CellStorage backed by a Pebble
// key-value store. Cells are keyed by their representation hash and
// stored as CBOR records. Pebble handles its own locking, so the store
// is safe for concurrent use.
type PebbleCellStorage struct {
	db      *pebble.DB
	encMode cbor.EncMode
	decMode cbor.DecMode
}

var _ CellStorage = &PebbleCellStorage{}

// OpenPebbleCellStorage opens (creating if needed) a Pebble-backed cell
// storage at path.
func OpenPebbleCellStorage(
	path string,
	encMode cbor.EncMode,
	decMode cbor.DecMode,
) (*PebbleCellStorage, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, wrapErrorfAsExternalErrorIfNeeded(err, "failed to open pebble store")
	}
	return &PebbleCellStorage{
		db:      db,
		encMode: encMode,
		decMode: decMode,
	}, nil
}

// Close flushes and closes the underlying store.
func (s *PebbleCellStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return wrapErrorfAsExternalErrorIfNeeded(err, "failed to close pebble store")
	}
	return nil
}

func (s *PebbleCellStorage) Store(c *Cell) error {
	rec, err := encodeCellRecord(c, s.encMode)
	if err != nil {
		return err
	}
	h := c.Hash(0)
	if err := s.db.Set(h[:], rec, pebble.Sync); err != nil {
		return wrapErrorfAsExternalErrorIfNeeded(err, "failed to store cell record")
	}
	return nil
}

func (s *PebbleCellStorage) Retrieve(hash Hash) (*Cell, error) {
	// Pebble's value is only valid until the closer is released, so the
	// record is decoded before closing.
	val, closer, err := s.db.Get(hash[:])
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, NewCellNotFoundError(hash)
		}
		return nil, wrapErrorfAsExternalErrorIfNeeded(err, "failed to read cell record")
	}
	c, err := decodeCellRecord(val, s.decMode)
	closeErr := closer.Close()
	if err != nil {
		return nil, err
	}
	if closeErr != nil {
		return nil, wrapErrorfAsExternalErrorIfNeeded(closeErr, "failed to release cell record")
	}
	return c, nil
}

func (s *PebbleCellStorage) Contains(hash Hash) (bool, error) {
	_, closer, err := s.db.Get(hash[:])
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return false, nil
		}
		return false, wrapErrorfAsExternalErrorIfNeeded(err, "failed to read cell record")
	}
	if err := closer.Close(); err != nil {
		return false, wrapErrorfAsExternalErrorIfNeeded(err, "failed to release cell record")
	}
	return true, nil
}

func (s *PebbleCellStorage) Remove(hash Hash) error {
	if err := s.db.Delete(hash[:], pebble.Sync); err != nil {
		return wrapErrorfAsExternalErrorIfNeeded(err, "failed to delete cell record")
	}
	return nil
}

func (s *PebbleCellStorage) Count() (int, error) {
	iter, err := s.db.NewIter(nil)
	if err != nil {
		return 0, wrapErrorfAsExternalErrorIfNeeded(err, "failed to iterate pebble store")
	}
	count := 0
	for valid := iter.First(); valid; valid = iter.Next() {
		count++
	}
	if err := iter.Close(); err != nil {
		return 0, wrapErrorfAsExternalErrorIfNeeded(err, "failed to close pebble iterator")
	}
	return count, nil
}
