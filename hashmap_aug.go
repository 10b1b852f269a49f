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

// Augmentation defines the aggregate a HashmapAug stores at every node.
// The combiner must be associative: the aggregate of a fork is the
// combination of its two children's aggregates, whatever order the tree
// was built in.
type Augmentation interface {
	// SkipExtra advances the cursor past one serialized aggregate.
	SkipExtra(s *Slice) error
	// CombineExtra combines the aggregates of two sibling subtrees, each
	// cursor positioned at the start of one serialized aggregate.
	CombineExtra(left, right *Slice) (*Builder, error)
}

// HashmapAug is a Hashmap that additionally stores an aggregate at every
// node: leaves carry the aggregate supplied with the value, forks carry
// the combination of their children's aggregates. Every mutation
// recomputes the aggregates along the touched path.
//
// Node layout: a leaf's data is label, aggregate, value; a fork's data is
// label, aggregate, with the two subtrees as references.
type HashmapAug struct {
	keyBits int
	root    *Cell
	aug     Augmentation
}

// NewHashmapAug returns an empty augmented dictionary.
func NewHashmapAug(keyBits int, aug Augmentation) *HashmapAug {
	return &HashmapAug{keyBits: keyBits, aug: aug}
}

// HashmapAugWithRoot wraps an existing root cell.
func HashmapAugWithRoot(keyBits int, aug Augmentation, root *Cell) *HashmapAug {
	return &HashmapAug{keyBits: keyBits, root: root, aug: aug}
}

func (m *HashmapAug) KeyBits() int {
	return m.keyBits
}

func (m *HashmapAug) Root() *Cell {
	return m.root
}

func (m *HashmapAug) IsEmpty() bool {
	return m.root == nil
}

func (m *HashmapAug) checkKey(key *BitString) error {
	if key.BitLen() != m.keyBits {
		return NewMalformedEncodingErrorf("key of %d bits in a dictionary keyed by %d bits", key.BitLen(), m.keyBits)
	}
	return nil
}

// Get returns a cursor over the value stored under key, positioned after
// the leaf's aggregate.
func (m *HashmapAug) Get(key *BitString) (*Slice, error) {
	_, value, err := m.GetWithExtra(key)
	return value, err
}

// GetWithExtra returns cursors over the leaf's aggregate and value.
func (m *HashmapAug) GetWithExtra(key *BitString) (extra, value *Slice, err error) {
	if err = m.checkKey(key); err != nil {
		return nil, nil, err
	}
	node := m.root
	pos, max := 0, m.keyBits
	for node != nil {
		label, s, err := openNode(node, max)
		if err != nil {
			return nil, nil, err
		}
		if !labelMatchesKey(label, key, pos) {
			break
		}
		pos += label.BitLen()
		max -= label.BitLen()
		if max == 0 {
			extra = s.Clone()
			if err = m.aug.SkipExtra(s); err != nil {
				return nil, nil, err
			}
			return extra, s, nil
		}
		bit, _ := key.Bit(pos)
		pos++
		max--
		if node, err = forkChild(s, bit); err != nil {
			return nil, nil, err
		}
	}
	return nil, nil, NewKeyNotFoundError(key)
}

// RootExtra returns a cursor over the aggregate of the whole dictionary,
// nil when empty.
func (m *HashmapAug) RootExtra() (*Slice, error) {
	if m.root == nil {
		return nil, nil
	}
	_, s, err := openNode(m.root, m.keyBits)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Set stores value with its aggregate under key, inserting or overwriting,
// and returns the number of cells on the path from the root to the leaf.
func (m *HashmapAug) Set(key *BitString, value, extra *Builder) (int, error) {
	return m.SetWithMode(key, value, extra, ModeAddOrReplace)
}

// SetWithMode stores value with its aggregate under key per the given
// mode and returns the mutated path's depth in cells.
func (m *HashmapAug) SetWithMode(key *BitString, value, extra *Builder, mode SetMode) (int, error) {
	if err := m.checkKey(key); err != nil {
		return 0, err
	}
	if m.root == nil {
		if mode&ModeAdd == 0 {
			return 0, NewKeyNotFoundError(key)
		}
		leaf, err := m.makeAugLeaf(key, m.keyBits, value, extra)
		if err != nil {
			return 0, err
		}
		m.root = leaf
		return 1, nil
	}
	root, depth, err := m.setAugNode(m.root, key, 0, m.keyBits, value, extra, mode)
	if err != nil {
		return 0, err
	}
	m.root = root
	return depth, nil
}

// Remove deletes key and recomputes the aggregates along the path.
func (m *HashmapAug) Remove(key *BitString) error {
	if err := m.checkKey(key); err != nil {
		return err
	}
	if m.root == nil {
		return NewKeyNotFoundError(key)
	}
	root, err := m.removeAugNode(m.root, key, 0, m.keyBits)
	if err != nil {
		return err
	}
	m.root = root
	return nil
}

// Len counts the stored entries.
func (m *HashmapAug) Len() (int, error) {
	n := 0
	_, err := m.Iterate(func(*BitString, *Slice, *Slice) (bool, error) {
		n++
		return true, nil
	})
	return n, err
}

// Iterate visits every entry in ascending key order with its aggregate
// until fn returns false or an error.
func (m *HashmapAug) Iterate(fn func(key *BitString, extra, value *Slice) (bool, error)) (bool, error) {
	if m.root == nil {
		return true, nil
	}
	return m.iterateAugNode(m.root, NewBitString(), m.keyBits, fn)
}

// WriteTo serializes the dictionary as a presence bit, the root as a
// reference when not empty, and the root aggregate inline. emptyExtra
// supplies the aggregate of an empty dictionary.
func (m *HashmapAug) WriteTo(b *Builder, emptyExtra *Builder) error {
	if m.root == nil {
		if err := b.AppendBit(false); err != nil {
			return err
		}
		return b.AppendBuilder(emptyExtra)
	}
	if err := b.AppendBit(true); err != nil {
		return err
	}
	if err := b.AppendRef(m.root); err != nil {
		return err
	}
	extra, err := m.RootExtra()
	if err != nil {
		return err
	}
	extraEnd := extra.Clone()
	if err = m.aug.SkipExtra(extraEnd); err != nil {
		return err
	}
	enc, err := extra.ReadBits(extraEnd.BitPos() - extra.BitPos())
	if err != nil {
		return err
	}
	return b.AppendBitString(enc)
}

// ReadHashmapAug reads the form written by WriteTo, consuming the inline
// aggregate.
func ReadHashmapAug(s *Slice, keyBits int, aug Augmentation) (*HashmapAug, error) {
	present, err := s.ReadBit()
	if err != nil {
		return nil, err
	}
	m := NewHashmapAug(keyBits, aug)
	if present {
		if m.root, err = s.ReadRef(); err != nil {
			return nil, err
		}
	}
	if err = aug.SkipExtra(s); err != nil {
		return nil, err
	}
	return m, nil
}

// Split partitions the entries under prefix by the key bit after it, like
// Hashmap.Split; both sides keep their node aggregates.
func (m *HashmapAug) Split(prefix *BitString) (*HashmapAug, *HashmapAug, error) {
	plain := HashmapWithRoot(m.keyBits, m.root)
	left, right, err := plain.Split(prefix)
	if err != nil {
		return nil, nil, err
	}
	return HashmapAugWithRoot(m.keyBits, m.aug, left.root),
		HashmapAugWithRoot(m.keyBits, m.aug, right.root), nil
}

// Merge combines the receiver with a dictionary of disjoint keys under
// prefix, computing the new fork's aggregate from the two sides.
func (m *HashmapAug) Merge(other *HashmapAug, prefix *BitString) error {
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
	plain := HashmapWithRoot(m.keyBits, m.root)
	if err := plain.Merge(HashmapWithRoot(other.keyBits, other.root), prefix); err != nil {
		return err
	}
	// Hashmap.Merge built the fork without an aggregate; recompute it
	label, s, err := openNode(plain.root, m.keyBits)
	if err != nil {
		return err
	}
	left, err := forkChild(s, false)
	if err != nil {
		return err
	}
	right, err := forkChild(s, true)
	if err != nil {
		return err
	}
	root, err := m.makeAugFork(label, m.keyBits, left, right)
	if err != nil {
		return err
	}
	m.root = root
	return nil
}

// nodeExtra positions a cursor at a node's aggregate.
func (m *HashmapAug) nodeExtra(node *Cell, max int) (*Slice, error) {
	_, s, err := openNode(node, max)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (m *HashmapAug) makeAugLeaf(label *BitString, max int, value, extra *Builder) (*Cell, error) {
	b := NewBuilder()
	if err := writeLabel(b, label, max); err != nil {
		return nil, err
	}
	if err := b.AppendBuilder(extra); err != nil {
		return nil, err
	}
	if err := b.AppendBuilder(value); err != nil {
		return nil, err
	}
	return b.Finalize()
}

// makeAugFork builds a fork whose aggregate is the combination of the two
// children's aggregates.
func (m *HashmapAug) makeAugFork(label *BitString, max int, left, right *Cell) (*Cell, error) {
	childMax := max - label.BitLen() - 1
	leftExtra, err := m.nodeExtra(left, childMax)
	if err != nil {
		return nil, err
	}
	rightExtra, err := m.nodeExtra(right, childMax)
	if err != nil {
		return nil, err
	}
	extra, err := m.aug.CombineExtra(leftExtra, rightExtra)
	if err != nil {
		return nil, err
	}
	b := NewBuilder()
	if err = writeLabel(b, label, max); err != nil {
		return nil, err
	}
	if err = b.AppendRef(left); err != nil {
		return nil, err
	}
	if err = b.AppendRef(right); err != nil {
		return nil, err
	}
	if err = b.AppendBuilder(extra); err != nil {
		return nil, err
	}
	return b.Finalize()
}

func (m *HashmapAug) setAugNode(node *Cell, key *BitString, pos, max int, value, extra *Builder, mode SetMode) (*Cell, int, error) {
	label, s, err := openNode(node, max)
	if err != nil {
		return nil, 0, err
	}
	keyRest, err := bitSubstring(key, pos, max)
	if err != nil {
		return nil, 0, err
	}
	l := commonPrefixLen(label, keyRest)

	if l == label.BitLen() {
		if max == l {
			if mode&ModeReplace == 0 {
				return nil, 0, NewKeyExistsError(key)
			}
			leaf, err := m.makeAugLeaf(label, max, value, extra)
			return leaf, 1, err
		}
		bit, _ := key.Bit(pos + l)
		child, err := forkChild(s, bit)
		if err != nil {
			return nil, 0, err
		}
		newChild, childDepth, err := m.setAugNode(child, key, pos+l+1, max-l-1, value, extra, mode)
		if err != nil {
			return nil, 0, err
		}
		other, err := forkChild(s, !bit)
		if err != nil {
			return nil, 0, err
		}
		left, right := newChild, other
		if bit {
			left, right = other, newChild
		}
		fork, err := m.makeAugFork(label, max, left, right)
		return fork, childDepth + 1, err
	}

	if mode&ModeAdd == 0 {
		return nil, 0, NewKeyNotFoundError(key)
	}
	commonLabel, err := bitSubstring(label, 0, l)
	if err != nil {
		return nil, 0, err
	}
	oldBit, _ := label.Bit(l)
	oldLabel, err := bitSubstring(label, l+1, label.BitLen()-l-1)
	if err != nil {
		return nil, 0, err
	}
	oldChild, err := makeNodeFromSlice(oldLabel, max-l-1, s)
	if err != nil {
		return nil, 0, err
	}
	newLabel, err := bitSubstring(key, pos+l+1, max-l-1)
	if err != nil {
		return nil, 0, err
	}
	newChild, err := m.makeAugLeaf(newLabel, max-l-1, value, extra)
	if err != nil {
		return nil, 0, err
	}
	left, right := newChild, oldChild
	if !oldBit {
		left, right = oldChild, newChild
	}
	fork, err := m.makeAugFork(commonLabel, max, left, right)
	return fork, 2, err
}

func (m *HashmapAug) removeAugNode(node *Cell, key *BitString, pos, max int) (*Cell, error) {
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
	newChild, err := m.removeAugNode(child, key, pos+label.BitLen()+1, max-label.BitLen()-1)
	if err != nil {
		return nil, err
	}
	sibling, err := forkChild(s, !bit)
	if err != nil {
		return nil, err
	}
	if newChild == nil {
		// the surviving child keeps its aggregate through the collapse
		return collapseFork(label, max, sibling, !bit)
	}
	left, right := newChild, sibling
	if bit {
		left, right = sibling, newChild
	}
	return m.makeAugFork(label, max, left, right)
}

func (m *HashmapAug) iterateAugNode(node *Cell, prefix *BitString, max int, fn func(*BitString, *Slice, *Slice) (bool, error)) (bool, error) {
	label, s, err := openNode(node, max)
	if err != nil {
		return false, err
	}
	key := NewBitString()
	key.AppendBitString(prefix)
	key.AppendBitString(label)
	if max == label.BitLen() {
		extra := s.Clone()
		if err = m.aug.SkipExtra(s); err != nil {
			return false, err
		}
		return fn(key, extra, s)
	}
	for _, bit := range []bool{false, true} {
		child, err := forkChild(s, bit)
		if err != nil {
			return false, err
		}
		childPrefix := NewBitString()
		childPrefix.AppendBitString(key)
		childPrefix.AppendBit(bit)
		ok, err := m.iterateAugNode(child, childPrefix, max-label.BitLen()-1, fn)
		if err != nil || !ok {
			return ok, err
		}
	}
	return true, nil
}
