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
	"crypto/sha256"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// HashSize is the byte width of a cell representation hash.
const HashSize = sha256.Size

// HashBits is the bit width of a cell representation hash.
const HashBits = HashSize * 8

// Hash is a cell representation digest. Cells compare equal exactly when
// their level-0 hashes compare equal.
type Hash [HashSize]byte

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns the digest as a fresh slice.
func (h Hash) Bytes() []byte {
	b := make([]byte, HashSize)
	copy(b, h[:])
	return b
}

// HashFromBytes copies b into a Hash. b must be exactly HashSize bytes.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, NewMalformedEncodingErrorf("hash must be %d bytes, got %d", HashSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Hasher computes cell representation digests. Implementations must be pure
// functions of their input and safe for concurrent use.
type Hasher interface {
	Sum(data []byte) Hash
}

// SHA256Hasher is the wire-format digest. All on-chain data is hashed with
// it; use anything else only for bags that never leave this process.
type SHA256Hasher struct{}

var _ Hasher = SHA256Hasher{}

func (SHA256Hasher) Sum(data []byte) Hash {
	return sha256.Sum256(data)
}

// Blake3Hasher is an alternative digest for private bags.
type Blake3Hasher struct{}

var _ Hasher = Blake3Hasher{}

func (Blake3Hasher) Sum(data []byte) Hash {
	return blake3.Sum256(data)
}

// DefaultHasher returns the digest used when no explicit hasher is supplied.
func DefaultHasher() Hasher {
	return SHA256Hasher{}
}
