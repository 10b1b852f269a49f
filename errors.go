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
	"fmt"
)

// UserError is returned when an operation fails because of its inputs:
// capacity violations, dictionary mode violations, reads past the end of a
// slice. The enclosing program can recover by fixing the call.
type UserError struct {
	err error
}

// NewUserError constructs a UserError
func NewUserError(err error) *UserError {
	return &UserError{err: err}
}

func (e *UserError) Error() string {
	return e.err.Error()
}

// Unwrap returns the wrapped err
func (e *UserError) Unwrap() error {
	return e.err
}

// FatalError is returned when a bag, proof, or update is internally
// inconsistent: corrupt encodings, unresolvable references, hash mismatches.
// The data that produced it cannot be trusted.
type FatalError struct {
	err error
}

// NewFatalError constructs a FatalError
func NewFatalError(err error) *FatalError {
	return &FatalError{err: err}
}

func (e *FatalError) Error() string {
	return e.err.Error()
}

// Unwrap returns the wrapped err
func (e *FatalError) Unwrap() error {
	return e.err
}

// ExternalError is returned when an error originated outside this package,
// e.g. from a CellStorage backend.
type ExternalError struct {
	msg string
	err error
}

// NewExternalError constructs an ExternalError
func NewExternalError(err error, msg string) *ExternalError {
	return &ExternalError{msg: msg, err: err}
}

func (e *ExternalError) Error() string {
	if e.msg == "" {
		return e.err.Error()
	}
	return fmt.Sprintf("%s: %s", e.msg, e.err.Error())
}

// Unwrap returns the wrapped err
func (e *ExternalError) Unwrap() error {
	return e.err
}

// wrapErrorfAsExternalErrorIfNeeded categorizes errors returned by caller
// supplied interfaces unless they already carry a category.
func wrapErrorfAsExternalErrorIfNeeded(err error, msg string) error {
	if err == nil {
		return nil
	}
	var userError *UserError
	var fatalError *FatalError
	var externalError *ExternalError
	if errors.As(err, &userError) ||
		errors.As(err, &fatalError) ||
		errors.As(err, &externalError) {
		return err
	}
	return NewExternalError(err, msg)
}

// CapacityExceededError is returned when a cell would exceed its data,
// reference, or depth limit.
type CapacityExceededError struct {
	msg string
}

// NewCapacityExceededErrorf constructs a CapacityExceededError
func NewCapacityExceededErrorf(msg string, args ...interface{}) error {
	return NewUserError(&CapacityExceededError{msg: fmt.Sprintf(msg, args...)})
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("capacity exceeded: %s", e.msg)
}

// OutOfBoundsError is returned when a slice read consumes more bits or
// references than remain.
type OutOfBoundsError struct {
	requested int
	remaining int
	what      string
}

// NewOutOfBoundsError constructs an OutOfBoundsError
func NewOutOfBoundsError(requested, remaining int, what string) error {
	return NewUserError(&OutOfBoundsError{requested: requested, remaining: remaining, what: what})
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("out of bounds: requested %d %s with %d remaining", e.requested, e.what, e.remaining)
}

// MalformedEncodingError is returned when serialized data violates the wire
// format: bad magic, inconsistent header widths, truncated buffer.
type MalformedEncodingError struct {
	msg string
}

// NewMalformedEncodingErrorf constructs a MalformedEncodingError
func NewMalformedEncodingErrorf(msg string, args ...interface{}) error {
	return NewFatalError(&MalformedEncodingError{msg: fmt.Sprintf(msg, args...)})
}

func (e *MalformedEncodingError) Error() string {
	return fmt.Sprintf("malformed encoding: %s", e.msg)
}

// InvalidReferenceError is returned when a serialized reference index is out
// of range, refers to the cell itself, or points backward against the
// declared ordering.
type InvalidReferenceError struct {
	cellIndex uint64
	refIndex  uint64
	msg       string
}

// NewInvalidReferenceError constructs an InvalidReferenceError
func NewInvalidReferenceError(cellIndex, refIndex uint64, msg string) error {
	return NewFatalError(&InvalidReferenceError{cellIndex: cellIndex, refIndex: refIndex, msg: msg})
}

func (e *InvalidReferenceError) Error() string {
	return fmt.Sprintf("invalid reference %d from cell %d: %s", e.refIndex, e.cellIndex, e.msg)
}

// HashMismatchError is returned when a loaded root does not match the hash
// the caller expected.
type HashMismatchError struct {
	expected Hash
	actual   Hash
}

// NewHashMismatchError constructs a HashMismatchError
func NewHashMismatchError(expected, actual Hash) error {
	return NewFatalError(&HashMismatchError{expected: expected, actual: actual})
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("hash mismatch: expected %s, got %s", e.expected, e.actual)
}

// BigCellsDisallowedError is returned when a bag contains big cells and the
// caller did not opt in to them.
type BigCellsDisallowedError struct {
}

// NewBigCellsDisallowedError constructs a BigCellsDisallowedError
func NewBigCellsDisallowedError() error {
	return NewUserError(&BigCellsDisallowedError{})
}

func (e *BigCellsDisallowedError) Error() string {
	return "big cells disallowed: enable AllowBigCells to process this bag"
}

// KeyExistsError is returned by add-only dictionary writes when the key is
// already present.
type KeyExistsError struct {
	key string
}

// NewKeyExistsError constructs a KeyExistsError
func NewKeyExistsError(key *BitString) error {
	return NewUserError(&KeyExistsError{key: key.String()})
}

func (e *KeyExistsError) Error() string {
	return fmt.Sprintf("key %s already exists", e.key)
}

// KeyNotFoundError is returned by lookups, removals, and replace-only writes
// when the key is absent.
type KeyNotFoundError struct {
	key string
}

// NewKeyNotFoundError constructs a KeyNotFoundError
func NewKeyNotFoundError(key *BitString) error {
	return NewUserError(&KeyNotFoundError{key: key.String()})
}

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("key %s not found", e.key)
}

// ProofInvalidError is returned when a Merkle proof fails verification or
// cannot be constructed for the requested cells.
type ProofInvalidError struct {
	msg string
}

// NewProofInvalidErrorf constructs a ProofInvalidError
func NewProofInvalidErrorf(msg string, args ...interface{}) error {
	return NewFatalError(&ProofInvalidError{msg: fmt.Sprintf(msg, args...)})
}

func (e *ProofInvalidError) Error() string {
	return fmt.Sprintf("invalid proof: %s", e.msg)
}

// UpdateMismatchError is returned when a Merkle update does not correspond
// to the tree it is applied to.
type UpdateMismatchError struct {
	msg string
}

// NewUpdateMismatchErrorf constructs an UpdateMismatchError
func NewUpdateMismatchErrorf(msg string, args ...interface{}) error {
	return NewFatalError(&UpdateMismatchError{msg: fmt.Sprintf(msg, args...)})
}

func (e *UpdateMismatchError) Error() string {
	return fmt.Sprintf("update mismatch: %s", e.msg)
}

// CellNotFoundError is returned when a cell storage has no cell with the
// requested hash.
type CellNotFoundError struct {
	hash Hash
}

// NewCellNotFoundError constructs a CellNotFoundError
func NewCellNotFoundError(hash Hash) error {
	return NewUserError(&CellNotFoundError{hash: hash})
}

func (e *CellNotFoundError) Error() string {
	return fmt.Sprintf("cell %s not found", e.hash)
}
