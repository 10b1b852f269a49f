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

import "errors"

// Hashmap is a dictionary with fixed-length bit-string keys, encoded as a
// patricia trie of cells. Every edge carries a prefix-compressed label; a
// node is a leaf when its label consumes all remaining key bits, otherwise
// it is a fork with exactly two references for the next key bit. An empty
// dictionary has no root cell at all.
//
// Mutations rebind the root: cells reachable from an older root are never
// modified, so snapshots taken before a mutation stay valid.
type Hashmap struct {
	keyBits int
	root    *Cell
}

// SetMode selects how Set treats present and absent keys.
type SetMode uint8

const (
	// ModeAdd only inserts; a present key fails with a KeyExistsError.
	ModeAdd SetMode = 1 << iota
	// ModeReplace only overwrites; an absent key fails with a KeyNotFoundError.
	ModeReplace
	// ModeAddOrReplace inserts or overwrites unconditionally.
	ModeAddOrReplace = ModeAdd | ModeReplace
)

// NewHashmap returns an empty dictionary with the given key width in bits.
func NewHashmap(keyBits int) *Hashmap {
	return &Hashmap{keyBits: keyBits}
}

// HashmapWithRoot wraps an existing root cell. A nil root is the empty
// dictionary.
func HashmapWithRoot(keyBits int, root *Cell) *Hashmap {
	return &Hashmap{keyBits: keyBits, root: root}
}

func (m *Hashmap) KeyBits() int {
	return m.keyBits
}

// Root returns the root cell, nil when empty.
func (m *Hashmap) Root() *Cell {
	return m.root
}

func (m *Hashmap) IsEmpty() bool {
	return m.root == nil
}

func (m *Hashmap) checkKey(key *BitString) error {
	if key.BitLen() != m.keyBits {
		return NewMalformedEncodingErrorf("key of %d bits in a dictionary keyed by %d bits", key.BitLen(), m.keyBits)
	}
	return nil
}

// Get returns a cursor over the value stored under key, or a
// KeyNotFoundError.
func (m *Hashmap) Get(key *BitString) (*Slice, error) {
	if err := m.checkKey(key); err != nil {
		return nil, err
	}
	node := m.root
	pos, max := 0, m.keyBits
	for node != nil {
		s := node.Slice()
		label, err := readLabel(s, max)
		if err != nil {
			return nil, err
		}
		if !labelMatchesKey(label, key, pos) {
			break
		}
		pos += label.BitLen()
		max -= label.BitLen()
		if max == 0 {
			return s, nil
		}
		bit, _ := key.Bit(pos)
		pos++
		max--
		if node, err = forkChild(s, bit); err != nil {
			return nil, err
		}
	}
	return nil, NewKeyNotFoundError(key)
}

// Contains reports whether key is present.
func (m *Hashmap) Contains(key *BitString) (bool, error) {
	_, err := m.Get(key)
	if err == nil {
		return true, nil
	}
	var notFound *KeyNotFoundError
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, err
}

// Set stores value under key, inserting or overwriting.
func (m *Hashmap) Set(key *BitString, value *Builder) error {
	return m.SetWithMode(key, value, ModeAddOrReplace)
}

// Add stores value under an absent key; a present key fails with a
// KeyExistsError.
func (m *Hashmap) Add(key *BitString, value *Builder) error {
	return m.SetWithMode(key, value, ModeAdd)
}

// Replace overwrites the value of a present key; an absent key fails with
// a KeyNotFoundError.
func (m *Hashmap) Replace(key *BitString, value *Builder) error {
	return m.SetWithMode(key, value, ModeReplace)
}

// SetWithMode stores value under key per the given mode.
func (m *Hashmap) SetWithMode(key *BitString, value *Builder, mode SetMode) error {
	if err := m.checkKey(key); err != nil {
		return err
	}
	if m.root == nil {
		if mode&ModeAdd == 0 {
			return NewKeyNotFoundError(key)
		}
		leaf, err := makeLeaf(key, m.keyBits, value)
		if err != nil {
			return err
		}
		m.root = leaf
		return nil
	}
	root, err := setNode(m.root, key, 0, m.keyBits, value, mode)
	if err != nil {
		return err
	}
	m.root = root
	return nil
}

// Remove deletes key; an absent key fails with a KeyNotFoundError.
func (m *Hashmap) Remove(key *BitString) error {
	if err := m.checkKey(key); err != nil {
		return err
	}
	if m.root == nil {
		return NewKeyNotFoundError(key)
	}
	root, err := removeNode(m.root, key, 0, m.keyBits)
	if err != nil {
		return err
	}
	m.root = root
	return nil
}

// Len counts the stored entries.
func (m *Hashmap) Len() (int, error) {
	n := 0
	_, err := m.Iterate(func(*BitString, *Slice) (bool, error) {
		n++
		return true, nil
	})
	return n, err
}

// Iterate visits every entry in ascending key order until fn returns false
// or an error. It reports whether the iteration ran to completion.
func (m *Hashmap) Iterate(fn func(key *BitString, value *Slice) (bool, error)) (bool, error) {
	if m.root == nil {
		return true, nil
	}
	return iterateNode(m.root, NewBitString(), m.keyBits, fn)
}

// MinKey returns the smallest key and its value; nil key when empty.
func (m *Hashmap) MinKey() (*BitString, *Slice, error) {
	return m.edgeKey(false)
}

// MaxKey returns the largest key and its value; nil key when empty.
func (m *Hashmap) MaxKey() (*BitString, *Slice, error) {
	return m.edgeKey(true)
}

func (m *Hashmap) edgeKey(max bool) (*BitString, *Slice, error) {
	if m.root == nil {
		return nil, nil, nil
	}
	key := NewBitString()
	node := m.root
	remaining := m.keyBits
	for {
		s := node.Slice()
		label, err := readLabel(s, remaining)
		if err != nil {
			return nil, nil, err
		}
		key.AppendBitString(label)
		remaining -= label.BitLen()
		if remaining == 0 {
			return key, s, nil
		}
		key.AppendBit(max)
		remaining--
		if node, err = forkChild(s, max); err != nil {
			return nil, nil, err
		}
	}
}

// Filter returns a new dictionary holding exactly the entries the
// predicate accepts. Subtrees with no rejected entry are shared with the
// receiver, not copied.
func (m *Hashmap) Filter(pred func(key *BitString, value *Slice) (bool, error)) (*Hashmap, error) {
	if m.root == nil {
		return NewHashmap(m.keyBits), nil
	}
	root, _, err := filterNode(m.root, NewBitString(), m.keyBits, pred)
	if err != nil {
		return nil, err
	}
	return HashmapWithRoot(m.keyBits, root), nil
}

// Split partitions the entries under prefix into two dictionaries by the
// key bit right after the prefix. Every stored key must start with the
// prefix; both result dictionaries keep the receiver's key width.
func (m *Hashmap) Split(prefix *BitString) (*Hashmap, *Hashmap, error) {
	left := NewHashmap(m.keyBits)
	right := NewHashmap(m.keyBits)
	if m.root == nil {
		return left, right, nil
	}
	if prefix.BitLen() >= m.keyBits {
		return nil, nil, NewMalformedEncodingErrorf("split prefix of %d bits leaves no key bit to split on", prefix.BitLen())
	}

	s := m.root.Slice()
	label, err := readLabel(s, m.keyBits)
	if err != nil {
		return nil, nil, err
	}
	l := commonPrefixLen(label, prefix)
	switch {
	case l < prefix.BitLen() && l < label.BitLen():
		return nil, nil, NewMalformedEncodingErrorf("the dictionary holds keys outside the split prefix")
	case l < prefix.BitLen():
		// the label ends inside the prefix: a fork there has keys on
		// both sides of the prefix path
		return nil, nil, NewMalformedEncodingErrorf("the dictionary holds keys outside the split prefix")
	case label.BitLen() > l:
		// the whole tree lies on one side of the split bit
		bit, _ := label.Bit(l)
		if bit {
			right.root = m.root
		} else {
			left.root = m.root
		}
		return left, right, nil
	}

	// the root label equals the prefix: the fork right here is the split
	for _, bit := range []bool{false, true} {
		child, err := forkChild(s, bit)
		if err != nil {
			return nil, nil, err
		}
		childLabel, childRest, err := openNode(child, m.keyBits-l-1)
		if err != nil {
			return nil, nil, err
		}
		full := NewBitString()
		full.AppendBitString(prefix)
		full.AppendBit(bit)
		full.AppendBitString(childLabel)
		rebuilt, err := makeNodeFromSlice(full, m.keyBits, childRest)
		if err != nil {
			return nil, nil, err
		}
		if bit {
			right.root = rebuilt
		} else {
			left.root = rebuilt
		}
	}
	return left, right, nil
}

// Merge combines the receiver with a dictionary of disjoint keys: both key
// sets must lie under prefix and differ in the bit right after it.
func (m *Hashmap) Merge(other *Hashmap, prefix *BitString) error {
	if m.keyBits != other.keyBits {
		return NewMalformedEncodingErrorf("merging dictionaries keyed by %d and %d bits", m.keyBits, other.keyBits)
	}
	if other.root == nil {
		return nil
	}
	if m.root == nil {
		m.root = other.root
		return nil
	}

	type side struct {
		node  *Cell
		bit   bool
		label *BitString
		rest  *Slice
	}
	sides := [2]side{{node: m.root}, {node: other.root}}
	for i := range sides {
		label, rest, err := openNode(sides[i].node, m.keyBits)
		if err != nil {
			return err
		}
		if commonPrefixLen(label, prefix) != prefix.BitLen() || label.BitLen() <= prefix.BitLen() {
			return NewMalformedEncodingErrorf("a merged dictionary holds keys not split by the prefix")
		}
		sides[i].bit, _ = label.Bit(prefix.BitLen())
		sides[i].label = label
		sides[i].rest = rest
	}
	if sides[0].bit == sides[1].bit {
		return NewMalformedEncodingErrorf("merged dictionaries overlap on the bit after the prefix")
	}

	childMax := m.keyBits - prefix.BitLen() - 1
	children := [2]*Cell{}
	for _, sd := range sides {
		shortLabel, err := bitSubstring(sd.label, prefix.BitLen()+1, sd.label.BitLen()-prefix.BitLen()-1)
		if err != nil {
			return err
		}
		child, err := makeNodeFromSlice(shortLabel, childMax, sd.rest)
		if err != nil {
			return err
		}
		idx := 0
		if sd.bit {
			idx = 1
		}
		children[idx] = child
	}

	b := NewBuilder()
	if err := writeLabel(b, prefix, m.keyBits); err != nil {
		return err
	}
	if err := b.AppendRef(children[0]); err != nil {
		return err
	}
	if err := b.AppendRef(children[1]); err != nil {
		return err
	}
	root, err := b.Finalize()
	if err != nil {
		return err
	}
	m.root = root
	return nil
}

// WriteTo serializes the dictionary as one presence bit plus, when not
// empty, the root as a reference.
func (m *Hashmap) WriteTo(b *Builder) error {
	if m.root == nil {
		return b.AppendBit(false)
	}
	if err := b.AppendBit(true); err != nil {
		return err
	}
	return b.AppendRef(m.root)
}

// ReadHashmap reads the presence-bit form written by WriteTo.
func ReadHashmap(s *Slice, keyBits int) (*Hashmap, error) {
	present, err := s.ReadBit()
	if err != nil {
		return nil, err
	}
	if !present {
		return NewHashmap(keyBits), nil
	}
	root, err := s.ReadRef()
	if err != nil {
		return nil, err
	}
	return HashmapWithRoot(keyBits, root), nil
}

// WriteRootTo inlines a non-empty dictionary's root node into the builder,
// for record formats that store the root without the presence bit.
func (m *Hashmap) WriteRootTo(b *Builder) error {
	if m.root == nil {
		return NewMalformedEncodingErrorf("an empty dictionary has no root to inline")
	}
	return b.AppendSlice(m.root.Slice())
}

// ReadHashmapRoot reads an inlined root node: a fork occupies the label
// bits plus two references, a leaf occupies the whole remainder of the
// cursor.
func ReadHashmapRoot(s *Slice, keyBits int) (*Hashmap, error) {
	start := s.BitPos()
	label, err := readLabel(s, keyBits)
	if err != nil {
		return nil, err
	}
	cellBits, err := BitStringFromBits(s.Cell().Data(), s.Cell().BitLen())
	if err != nil {
		return nil, err
	}
	labelEnc, err := bitSubstring(cellBits, start, s.BitPos()-start)
	if err != nil {
		return nil, err
	}

	b := NewBuilder()
	if err = b.AppendBitString(labelEnc); err != nil {
		return nil, err
	}
	if label.BitLen() != keyBits {
		// fork: exactly two references, no further data
		for i := 0; i < 2; i++ {
			ref, err := s.ReadRef()
			if err != nil {
				return nil, err
			}
			if err = b.AppendRef(ref); err != nil {
				return nil, err
			}
		}
	} else if err = b.AppendSlice(s); err != nil {
		return nil, err
	}
	root, err := b.Finalize()
	if err != nil {
		return nil, err
	}
	return HashmapWithRoot(keyBits, root), nil
}

// labelMatchesKey reports whether label equals key[pos : pos+len(label)].
func labelMatchesKey(label, key *BitString, pos int) bool {
	if pos+label.BitLen() > key.BitLen() {
		return false
	}
	for i := 0; i < label.BitLen(); i++ {
		lb, _ := label.Bit(i)
		kb, _ := key.Bit(pos + i)
		if lb != kb {
			return false
		}
	}
	return true
}

// forkChild picks the subtree for the given key bit from a cursor
// positioned after a fork's label.
func forkChild(s *Slice, bit bool) (*Cell, error) {
	idx := 0
	if bit {
		idx = 1
	}
	return s.Cell().Ref(idx)
}

// openNode parses a node's label and returns it with a cursor over the
// node's remainder.
func openNode(node *Cell, max int) (*BitString, *Slice, error) {
	s := node.Slice()
	label, err := readLabel(s, max)
	if err != nil {
		return nil, nil, err
	}
	return label, s, nil
}

// makeLeaf builds a leaf cell: label over the remaining key bits, then the
// value.
func makeLeaf(label *BitString, max int, value *Builder) (*Cell, error) {
	b := NewBuilder()
	if err := writeLabel(b, label, max); err != nil {
		return nil, err
	}
	if err := b.AppendBuilder(value); err != nil {
		return nil, err
	}
	return b.Finalize()
}

// makeNodeFromSlice rebuilds a node with a new label and the body taken
// from a cursor positioned after the old label.
func makeNodeFromSlice(label *BitString, max int, body *Slice) (*Cell, error) {
	b := NewBuilder()
	if err := writeLabel(b, label, max); err != nil {
		return nil, err
	}
	if err := b.AppendSlice(body.Clone()); err != nil {
		return nil, err
	}
	return b.Finalize()
}

// setNode inserts or overwrites key below node. pos is the number of key
// bits already decided, max the number still undecided. Recursion depth is
// bounded by the key width.
func setNode(node *Cell, key *BitString, pos, max int, value *Builder, mode SetMode) (*Cell, error) {
	label, s, err := openNode(node, max)
	if err != nil {
		return nil, err
	}
	keyRest, err := bitSubstring(key, pos, max)
	if err != nil {
		return nil, err
	}
	l := commonPrefixLen(label, keyRest)

	if l == label.BitLen() {
		if max == l {
			// the leaf for this exact key
			if mode&ModeReplace == 0 {
				return nil, NewKeyExistsError(key)
			}
			return makeLeaf(label, max, value)
		}
		// fork on the way down
		bit, _ := key.Bit(pos + l)
		child, err := forkChild(s, bit)
		if err != nil {
			return nil, err
		}
		newChild, err := setNode(child, key, pos+l+1, max-l-1, value, mode)
		if err != nil {
			return nil, err
		}
		left, right := newChild, newChild
		if other, err := forkChild(s, !bit); err != nil {
			return nil, err
		} else if bit {
			left = other
		} else {
			right = other
		}
		return makeFork(label, max, left, right)
	}

	// the label diverges from the key: split the edge
	if mode&ModeAdd == 0 {
		return nil, NewKeyNotFoundError(key)
	}
	commonLabel, err := bitSubstring(label, 0, l)
	if err != nil {
		return nil, err
	}
	oldBit, _ := label.Bit(l)
	oldLabel, err := bitSubstring(label, l+1, label.BitLen()-l-1)
	if err != nil {
		return nil, err
	}
	oldChild, err := makeNodeFromSlice(oldLabel, max-l-1, s)
	if err != nil {
		return nil, err
	}
	newLabel, err := bitSubstring(key, pos+l+1, max-l-1)
	if err != nil {
		return nil, err
	}
	newChild, err := makeLeaf(newLabel, max-l-1, value)
	if err != nil {
		return nil, err
	}
	left, right := newChild, oldChild
	if !oldBit {
		left, right = oldChild, newChild
	}
	return makeFork(commonLabel, max, left, right)
}

func makeFork(label *BitString, max int, left, right *Cell) (*Cell, error) {
	b := NewBuilder()
	if err := writeLabel(b, label, max); err != nil {
		return nil, err
	}
	if err := b.AppendRef(left); err != nil {
		return nil, err
	}
	if err := b.AppendRef(right); err != nil {
		return nil, err
	}
	return b.Finalize()
}

// removeNode deletes key below node, returning the replacement subtree or
// nil when the subtree becomes empty. A fork losing one side collapses
// into its surviving child with the labels joined.
func removeNode(node *Cell, key *BitString, pos, max int) (*Cell, error) {
	label, s, err := openNode(node, max)
	if err != nil {
		return nil, err
	}
	if !labelMatchesKey(label, key, pos) {
		return nil, NewKeyNotFoundError(key)
	}
	if max == label.BitLen() {
		return nil, nil
	}

	bit, _ := key.Bit(pos + label.BitLen())
	child, err := forkChild(s, bit)
	if err != nil {
		return nil, err
	}
	newChild, err := removeNode(child, key, pos+label.BitLen()+1, max-label.BitLen()-1)
	if err != nil {
		return nil, err
	}

	sibling, err := forkChild(s, !bit)
	if err != nil {
		return nil, err
	}
	if newChild == nil {
		return collapseFork(label, max, sibling, !bit)
	}
	left, right := newChild, sibling
	if bit {
		left, right = sibling, newChild
	}
	return makeFork(label, max, left, right)
}

// collapseFork joins a fork's label, the surviving side's bit, and the
// surviving child's label into one edge.
func collapseFork(label *BitString, max int, child *Cell, childBit bool) (*Cell, error) {
	childLabel, childRest, err := openNode(child, max-label.BitLen()-1)
	if err != nil {
		return nil, err
	}
	joined := NewBitString()
	joined.AppendBitString(label)
	joined.AppendBit(childBit)
	joined.AppendBitString(childLabel)
	return makeNodeFromSlice(joined, max, childRest)
}

func iterateNode(node *Cell, prefix *BitString, max int, fn func(*BitString, *Slice) (bool, error)) (bool, error) {
	label, s, err := openNode(node, max)
	if err != nil {
		return false, err
	}
	key := NewBitString()
	key.AppendBitString(prefix)
	key.AppendBitString(label)
	if max == label.BitLen() {
		return fn(key, s)
	}
	for _, bit := range []bool{false, true} {
		child, err := forkChild(s, bit)
		if err != nil {
			return false, err
		}
		childPrefix := NewBitString()
		childPrefix.AppendBitString(key)
		childPrefix.AppendBit(bit)
		ok, err := iterateNode(child, childPrefix, max-label.BitLen()-1, fn)
		if err != nil || !ok {
			return ok, err
		}
	}
	return true, nil
}

// filterNode returns the filtered subtree and whether anything changed;
// an unchanged subtree is returned as-is so the result shares it.
func filterNode(node *Cell, prefix *BitString, max int, pred func(*BitString, *Slice) (bool, error)) (*Cell, bool, error) {
	label, s, err := openNode(node, max)
	if err != nil {
		return nil, false, err
	}
	key := NewBitString()
	key.AppendBitString(prefix)
	key.AppendBitString(label)

	if max == label.BitLen() {
		keep, err := pred(key, s.Clone())
		if err != nil {
			return nil, false, err
		}
		if keep {
			return node, false, nil
		}
		return nil, true, nil
	}

	var results [2]*Cell
	changed := false
	for i, bit := range []bool{false, true} {
		child, err := forkChild(s, bit)
		if err != nil {
			return nil, false, err
		}
		childPrefix := NewBitString()
		childPrefix.AppendBitString(key)
		childPrefix.AppendBit(bit)
		res, childChanged, err := filterNode(child, childPrefix, max-label.BitLen()-1, pred)
		if err != nil {
			return nil, false, err
		}
		results[i] = res
		changed = changed || childChanged
	}
	if !changed {
		return node, false, nil
	}
	switch {
	case results[0] == nil && results[1] == nil:
		return nil, true, nil
	case results[1] == nil:
		c, err := collapseFork(label, max, results[0], false)
		return c, true, err
	case results[0] == nil:
		c, err := collapseFork(label, max, results[1], true)
		return c, true, err
	}
	c, err := makeFork(label, max, results[0], results[1])
	return c, true, err
}
