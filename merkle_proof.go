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

// MerkleProof is a pruned copy of a cell tree. Every cell the prover wants
// to reveal is kept verbatim; every other subtree is replaced by a pruned
// branch carrying the subtree's hash and depth. The proof root's level-0
// hash always equals the original root's representation hash, which is what
// a verifier checks against a trusted value.
type MerkleProof struct {
	Hash  Hash   // representation hash of the proven root
	Depth uint16 // representation depth of the proven root
	Root  *Cell  // pruned copy of the proven tree
}

// CreateMerkleProof keeps exactly the cells for which include returns true.
// The root itself must be included.
func CreateMerkleProof(root *Cell, include func(Hash) bool) (*MerkleProof, error) {
	return CreateMerkleProofWithSubtrees(root, include, nil)
}

// CreateMerkleProofForUsage keeps the cells touched through the tracker.
func CreateMerkleProofForUsage(root *Cell, tracker *UsageTracker) (*MerkleProof, error) {
	return CreateMerkleProof(root, tracker.Contains)
}

// CreateMerkleProofWithSubtrees additionally keeps whole subtrees:
// when includeSubtree returns true for a cell, that cell and everything
// below it is kept without consulting include. includeSubtree may be nil.
func CreateMerkleProofWithSubtrees(root *Cell, include, includeSubtree func(Hash) bool) (*MerkleProof, error) {
	rootHash := root.ReprHash()
	if !include(rootHash) && (includeSubtree == nil || !includeSubtree(rootHash)) {
		return nil, NewProofInvalidErrorf("the root is not in the included set, nothing to prove")
	}
	done := make(map[Hash]*Cell)
	proof, err := createProofCell(root, include, includeSubtree, 0, nil, done, DefaultHasher())
	if err != nil {
		return nil, err
	}
	return &MerkleProof{
		Hash:  rootHash,
		Depth: root.ReprDepth(),
		Root:  proof,
	}, nil
}

// proofFrame is one pending cell of the iterative pruning walk.
type proofFrame struct {
	cell        *Cell
	merkleDepth int
	children    []*Cell
	next        int
}

// createProofCell copies cell with unincluded subtrees replaced by pruned
// branches. Leaf children are always kept: pruning them would not save
// anything over their 36-byte stand-in. done memoizes shared subtrees so a
// diamond-shaped graph is pruned once per distinct cell; prunedBranches,
// when non-nil, collects the original hashes of everything pruned. The walk
// uses an explicit frame stack so graph depth never translates into call
// stack depth.
func createProofCell(
	root *Cell,
	include, includeSubtree func(Hash) bool,
	merkleDepth int,
	prunedBranches map[Hash]struct{},
	done map[Hash]*Cell,
	hasher Hasher,
) (*Cell, error) {
	stack := []*proofFrame{{cell: root, merkleDepth: merkleDepth}}
	var result *Cell
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		childDepth := f.merkleDepth
		if f.cell.IsMerkle() {
			childDepth++
		}

		if f.next < len(f.cell.refs) {
			child := f.cell.refs[f.next]
			f.next++
			childHash := child.ReprHash()
			switch {
			case done[childHash] != nil:
				f.children = append(f.children, done[childHash])
			case includeSubtree != nil && includeSubtree(childHash):
				f.children = append(f.children, child)
			case len(child.refs) == 0 || include(childHash):
				stack = append(stack, &proofFrame{cell: child, merkleDepth: childDepth})
			default:
				pbc, err := makePrunedBranchCell(child, childDepth, hasher)
				if err != nil {
					return nil, err
				}
				if prunedBranches != nil {
					prunedBranches[childHash] = struct{}{}
				}
				f.children = append(f.children, pbc)
			}
			continue
		}

		built, err := rebuildWithRefs(f.cell, f.children, hasher)
		if err != nil {
			return nil, err
		}
		done[f.cell.ReprHash()] = built
		stack = stack[:len(stack)-1]
		if len(stack) > 0 {
			parent := stack[len(stack)-1]
			parent.children = append(parent.children, built)
		} else {
			result = built
		}
	}
	return result, nil
}

// rebuildWithRefs finalizes a copy of c with a substituted reference list.
func rebuildWithRefs(c *Cell, refs []*Cell, hasher Hasher) (*Cell, error) {
	bs, err := BitStringFromBits(c.data, c.bitLen)
	if err != nil {
		return nil, err
	}
	b := &Builder{bits: *bs, refs: refs, cellType: c.cellType}
	return b.FinalizeWith(hasher)
}

// makePrunedBranchCell builds the stand-in for cell pruned at the given
// merkle depth: the stand-in's level mask gains one bit at that depth and
// its body stores the cell's type byte, mask byte, hashes, and depths.
func makePrunedBranchCell(c *Cell, merkleDepth int, hasher Hasher) (*Cell, error) {
	mask, err := c.levelMask.withLevel(merkleDepth)
	if err != nil {
		return nil, err
	}
	b := NewBuilder()
	b.SetType(CellTypePrunedBranch)
	if err = b.AppendByte(byte(CellTypePrunedBranch)); err != nil {
		return nil, err
	}
	if err = b.AppendByte(mask.Mask()); err != nil {
		return nil, err
	}
	level := c.levelMask.Level()
	for li := 0; li <= level; li++ {
		if c.levelMask.IsSignificant(li) {
			if err = b.AppendHash(c.Hash(li)); err != nil {
				return nil, err
			}
		}
	}
	for li := 0; li <= level; li++ {
		if c.levelMask.IsSignificant(li) {
			if err = b.AppendUint16(c.Depth(li)); err != nil {
				return nil, err
			}
		}
	}
	return b.FinalizeWith(hasher)
}

// WriteTo serializes the proof into an empty builder as an exotic
// MerkleProof cell: type byte, hash, depth, and the pruned root as the
// single reference.
func (p *MerkleProof) WriteTo(b *Builder) error {
	if b.BitLen() != 0 || b.RefCount() != 0 {
		return NewProofInvalidErrorf("a proof must fill its cell from the first bit")
	}
	b.SetType(CellTypeMerkleProof)
	if err := b.AppendByte(byte(CellTypeMerkleProof)); err != nil {
		return err
	}
	if err := b.AppendHash(p.Hash); err != nil {
		return err
	}
	if err := b.AppendUint16(p.Depth); err != nil {
		return err
	}
	return b.AppendRef(p.Root)
}

// Cell wraps the proof into its exotic cell form.
func (p *MerkleProof) Cell() (*Cell, error) {
	b := NewBuilder()
	if err := p.WriteTo(b); err != nil {
		return nil, err
	}
	return b.Finalize()
}

// MerkleProofFromSlice reads a proof from the start of a MerkleProof cell
// and validates the stored hash and depth against the pruned root.
func MerkleProofFromSlice(s *Slice) (*MerkleProof, error) {
	if s.BitPos() != 0 {
		return nil, NewProofInvalidErrorf("a proof must fill its cell from the first bit")
	}
	t, err := s.ReadByte()
	if err != nil {
		return nil, err
	}
	if CellType(t) != CellTypeMerkleProof {
		return nil, NewProofInvalidErrorf("cell type %s is not a merkle proof", CellType(t))
	}
	p := &MerkleProof{}
	if p.Hash, err = s.ReadHash(); err != nil {
		return nil, err
	}
	if p.Depth, err = s.ReadUint16(); err != nil {
		return nil, err
	}
	if p.Root, err = s.ReadRef(); err != nil {
		return nil, err
	}
	if got := p.Root.Hash(0); got != p.Hash {
		return nil, NewProofInvalidErrorf("stored hash %s differs from the pruned root's hash %s", p.Hash, got)
	}
	if got := p.Root.Depth(0); got != p.Depth {
		return nil, NewProofInvalidErrorf("stored depth %d differs from the pruned root's depth %d", p.Depth, got)
	}
	return p, nil
}

// MerkleProofFromCell reads a proof from an exotic MerkleProof cell.
func MerkleProofFromCell(c *Cell) (*MerkleProof, error) {
	if c.CellType() != CellTypeMerkleProof {
		return nil, NewProofInvalidErrorf("cell type %s is not a merkle proof", c.CellType())
	}
	return MerkleProofFromSlice(c.Slice())
}

// Verify checks the proof against a trusted root hash. The pruned root's
// level-0 hash is recomputed at cell construction, so any altered revealed
// byte surfaces here as a mismatch.
func (p *MerkleProof) Verify(trusted Hash) error {
	if p.Hash != trusted {
		return NewProofInvalidErrorf("proof is for root %s, not %s", p.Hash, trusted)
	}
	if got := p.Root.Hash(0); got != trusted {
		return NewProofInvalidErrorf("pruned root's hash %s differs from the trusted root %s", got, trusted)
	}
	if got := p.Root.Depth(0); got != p.Depth {
		return NewProofInvalidErrorf("stored depth %d differs from the pruned root's depth %d", p.Depth, got)
	}
	return nil
}

// VirtualRoot returns a tracked read cursor over the pruned root.
func (p *MerkleProof) VirtualRoot() *Slice {
	return p.Root.Slice()
}
