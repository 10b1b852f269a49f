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

// MerkleUpdate is a structural diff between two cell trees: a pruned copy
// of the old tree and a pruned copy of the new tree, covering exactly the
// cells that differ. Applying the update to the full old tree reconstructs
// the full new tree; subtrees shared between the two versions are carried
// as pruned branches and resolved from the old tree during apply.
type MerkleUpdate struct {
	OldHash  Hash
	NewHash  Hash
	OldDepth uint16
	NewDepth uint16
	Old      *Cell // pruned old tree
	New      *Cell // pruned new tree
}

// CreateMerkleUpdate diffs two trees exhaustively: it walks the whole new
// tree once to learn which subtrees both versions share, then prunes the
// shared parts out of both sides.
func CreateMerkleUpdate(oldRoot, newRoot *Cell) (*MerkleUpdate, error) {
	hasher := DefaultHasher()
	if oldRoot.ReprHash() == newRoot.ReprHash() {
		return trivialUpdate(oldRoot, hasher)
	}

	newCells := collectCells(newRoot)
	commonPruned := make(map[Hash]*Cell)
	oldUpdate, err := traverseOldOnCreate(oldRoot, newCells, commonPruned, hasher)
	if err != nil {
		return nil, err
	}
	if oldUpdate == nil {
		// nothing of the old tree survives in the new one
		if oldUpdate, err = makePrunedBranchCell(oldRoot, 0, hasher); err != nil {
			return nil, err
		}
	}
	newUpdate, err := traverseNewOnCreate(newRoot, commonPruned, hasher)
	if err != nil {
		return nil, err
	}

	return &MerkleUpdate{
		OldHash:  oldRoot.ReprHash(),
		NewHash:  newRoot.ReprHash(),
		OldDepth: oldRoot.ReprDepth(),
		NewDepth: newRoot.ReprDepth(),
		Old:      oldUpdate,
		New:      newUpdate,
	}, nil
}

// CreateMerkleUpdateFast diffs two trees using a visited set recorded while
// the new tree was derived from the old one: only old cells the derivation
// actually read can differ, so the walk is proportional to the touched
// region instead of the whole old tree.
func CreateMerkleUpdateFast(oldRoot, newRoot *Cell, visitedOld func(Hash) bool) (*MerkleUpdate, error) {
	hasher := DefaultHasher()
	if oldRoot.ReprHash() == newRoot.ReprHash() {
		return trivialUpdate(oldRoot, hasher)
	}

	// new cells whose hash was read from the old tree are by definition
	// unchanged, so they get pruned out of the new side
	prunedBranches := make(map[Hash]struct{})
	newUpdate, err := createProofCell(newRoot,
		func(h Hash) bool { return !visitedOld(h) }, nil,
		0, prunedBranches, make(map[Hash]*Cell), hasher)
	if err != nil {
		return nil, err
	}

	usedPaths := make(map[Hash]struct{})
	if collectUsedPathsCells(oldRoot, visitedOld, prunedBranches, usedPaths) {
		usedPaths[oldRoot.ReprHash()] = struct{}{}
	}
	oldUpdate, err := createProofCell(oldRoot,
		func(h Hash) bool { _, ok := usedPaths[h]; return ok }, nil,
		0, nil, make(map[Hash]*Cell), hasher)
	if err != nil {
		return nil, err
	}

	return &MerkleUpdate{
		OldHash:  oldRoot.ReprHash(),
		NewHash:  newRoot.ReprHash(),
		OldDepth: oldRoot.ReprDepth(),
		NewDepth: newRoot.ReprDepth(),
		Old:      oldUpdate,
		New:      newUpdate,
	}, nil
}

// trivialUpdate covers identical before and after trees: both sides are a
// single pruned branch.
func trivialUpdate(root *Cell, hasher Hasher) (*MerkleUpdate, error) {
	pbc, err := makePrunedBranchCell(root, 0, hasher)
	if err != nil {
		return nil, err
	}
	h := root.ReprHash()
	return &MerkleUpdate{
		OldHash:  h,
		NewHash:  h,
		OldDepth: root.ReprDepth(),
		NewDepth: root.ReprDepth(),
		Old:      pbc,
		New:      pbc,
	}, nil
}

// Apply reconstructs the full new tree from the full old tree and the
// update. It fails with an UpdateMismatchError when the old tree is not
// the one the update was derived from, or when a pruned branch of the new
// side cannot be resolved, or when the reconstructed root's hash differs
// from the recorded one.
func (u *MerkleUpdate) Apply(oldRoot *Cell) (*Cell, error) {
	oldCells, err := u.Check(oldRoot)
	if err != nil {
		return nil, err
	}
	if u.NewHash == u.OldHash {
		return oldRoot, nil
	}
	newRoot, err := traverseOnApply(u.New, oldCells, DefaultHasher())
	if err != nil {
		return nil, err
	}
	if got := newRoot.ReprHash(); got != u.NewHash {
		return nil, NewUpdateMismatchErrorf("reconstructed tree's hash %s differs from the recorded %s", got, u.NewHash)
	}
	return newRoot, nil
}

// Check verifies that the update is applicable to the given old tree and
// returns the old cells that pruned branches of the new side resolve to.
func (u *MerkleUpdate) Check(oldRoot *Cell) (map[Hash]*Cell, error) {
	if got := oldRoot.ReprHash(); got != u.OldHash {
		return nil, NewUpdateMismatchErrorf("old tree's hash %s differs from the recorded %s", got, u.OldHash)
	}

	// every pruned branch of the new side must resolve within the old side
	known := make(map[Hash]struct{})
	traverseOldOnCheck(u.Old, known)
	if err := traverseNewOnCheck(u.New, known); err != nil {
		return nil, err
	}
	return collateOldCells(oldRoot, known), nil
}

// WriteTo serializes the update into an empty builder as an exotic
// MerkleUpdate cell.
func (u *MerkleUpdate) WriteTo(b *Builder) error {
	if b.BitLen() != 0 || b.RefCount() != 0 {
		return NewUpdateMismatchErrorf("an update must fill its cell from the first bit")
	}
	b.SetType(CellTypeMerkleUpdate)
	if err := b.AppendByte(byte(CellTypeMerkleUpdate)); err != nil {
		return err
	}
	if err := b.AppendHash(u.OldHash); err != nil {
		return err
	}
	if err := b.AppendHash(u.NewHash); err != nil {
		return err
	}
	if err := b.AppendUint16(u.OldDepth); err != nil {
		return err
	}
	if err := b.AppendUint16(u.NewDepth); err != nil {
		return err
	}
	if err := b.AppendRef(u.Old); err != nil {
		return err
	}
	return b.AppendRef(u.New)
}

// Cell wraps the update into its exotic cell form.
func (u *MerkleUpdate) Cell() (*Cell, error) {
	b := NewBuilder()
	if err := u.WriteTo(b); err != nil {
		return nil, err
	}
	return b.Finalize()
}

// MerkleUpdateFromSlice reads an update from the start of a MerkleUpdate
// cell and validates the stored hashes and depths against the pruned sides.
func MerkleUpdateFromSlice(s *Slice) (*MerkleUpdate, error) {
	if s.BitPos() != 0 {
		return nil, NewUpdateMismatchErrorf("an update must fill its cell from the first bit")
	}
	t, err := s.ReadByte()
	if err != nil {
		return nil, err
	}
	if CellType(t) != CellTypeMerkleUpdate {
		return nil, NewUpdateMismatchErrorf("cell type %s is not a merkle update", CellType(t))
	}
	u := &MerkleUpdate{}
	if u.OldHash, err = s.ReadHash(); err != nil {
		return nil, err
	}
	if u.NewHash, err = s.ReadHash(); err != nil {
		return nil, err
	}
	if u.OldDepth, err = s.ReadUint16(); err != nil {
		return nil, err
	}
	if u.NewDepth, err = s.ReadUint16(); err != nil {
		return nil, err
	}
	if u.Old, err = s.ReadRef(); err != nil {
		return nil, err
	}
	if u.New, err = s.ReadRef(); err != nil {
		return nil, err
	}
	if got := u.Old.Hash(0); got != u.OldHash {
		return nil, NewUpdateMismatchErrorf("stored old hash %s differs from the pruned side's hash %s", u.OldHash, got)
	}
	if got := u.New.Hash(0); got != u.NewHash {
		return nil, NewUpdateMismatchErrorf("stored new hash %s differs from the pruned side's hash %s", u.NewHash, got)
	}
	if got := u.Old.Depth(0); got != u.OldDepth {
		return nil, NewUpdateMismatchErrorf("stored old depth %d differs from the pruned side's depth %d", u.OldDepth, got)
	}
	if got := u.New.Depth(0); got != u.NewDepth {
		return nil, NewUpdateMismatchErrorf("stored new depth %d differs from the pruned side's depth %d", u.NewDepth, got)
	}
	return u, nil
}

// MerkleUpdateFromCell reads an update from an exotic MerkleUpdate cell.
func MerkleUpdateFromCell(c *Cell) (*MerkleUpdate, error) {
	if c.CellType() != CellTypeMerkleUpdate {
		return nil, NewUpdateMismatchErrorf("cell type %s is not a merkle update", c.CellType())
	}
	return MerkleUpdateFromSlice(c.Slice())
}

// collectCells gathers every distinct cell of a tree into a hash-keyed map.
func collectCells(root *Cell) map[Hash]*Cell {
	cells := make(map[Hash]*Cell)
	stack := []*Cell{root}
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		h := c.ReprHash()
		if _, ok := cells[h]; ok {
			continue
		}
		cells[h] = c
		stack = append(stack, c.refs...)
	}
	return cells
}

// oldCreateFrame is one pending old-tree cell of the diffing walk. results
// holds one entry per processed child: the pruned or rebuilt child, or nil
// when the child's subtree has no overlap with the new tree.
type oldCreateFrame struct {
	cell    *Cell
	depth   int // merkle depth applying to this cell's children
	results []*Cell
	next    int
}

// traverseOldOnCreate prunes the old tree against the new one. A child
// whose hash appears in the new tree is the shared boundary: it becomes a
// pruned branch, recorded in commonPruned for the new-side walk. A subtree
// with no shared boundary at all is reported as nil and turned into a
// pruned branch by its parent, so the old side keeps exactly the cells on
// paths to the boundary. Returns nil when the trees share nothing.
func traverseOldOnCreate(oldRoot *Cell, newCells map[Hash]*Cell, commonPruned map[Hash]*Cell, hasher Hasher) (*Cell, error) {
	memo := make(map[Hash]*Cell) // present key, possibly nil value
	rootDepth := 0
	if oldRoot.IsMerkle() {
		rootDepth = 1
	}
	stack := []*oldCreateFrame{{cell: oldRoot, depth: rootDepth}}
	var result *Cell
	for len(stack) > 0 {
		f := stack[len(stack)-1]

		if f.next < len(f.cell.refs) {
			child := f.cell.refs[f.next]
			f.next++
			childHash := child.ReprHash()
			if common, ok := newCells[childHash]; ok {
				pbc, err := makePrunedBranchCell(common, f.depth, hasher)
				if err != nil {
					return nil, err
				}
				commonPruned[childHash] = pbc
				f.results = append(f.results, pbc)
			} else if m, ok := memo[childHash]; ok {
				f.results = append(f.results, m)
			} else {
				childDepth := f.depth
				if child.IsMerkle() {
					childDepth++
				}
				stack = append(stack, &oldCreateFrame{cell: child, depth: childDepth})
			}
			continue
		}

		var built *Cell
		hasPruned := false
		for _, r := range f.results {
			if r != nil {
				hasPruned = true
				break
			}
		}
		if hasPruned {
			children := make([]*Cell, len(f.results))
			for i, r := range f.results {
				if r == nil {
					pbc, err := makePrunedBranchCell(f.cell.refs[i], f.depth, hasher)
					if err != nil {
						return nil, err
					}
					r = pbc
				}
				children[i] = r
			}
			var err error
			if built, err = rebuildWithRefs(f.cell, children, hasher); err != nil {
				return nil, err
			}
		}
		memo[f.cell.ReprHash()] = built
		stack = stack[:len(stack)-1]
		if len(stack) > 0 {
			parent := stack[len(stack)-1]
			parent.results = append(parent.results, built)
		} else {
			result = built
		}
	}
	return result, nil
}

// traverseNewOnCreate copies the new tree with shared subtrees replaced by
// the pruned branches recorded while walking the old side.
func traverseNewOnCreate(newRoot *Cell, commonPruned map[Hash]*Cell, hasher Hasher) (*Cell, error) {
	memo := make(map[Hash]*Cell)
	stack := []*proofFrame{{cell: newRoot}}
	var result *Cell
	for len(stack) > 0 {
		f := stack[len(stack)-1]

		if f.next < len(f.cell.refs) {
			child := f.cell.refs[f.next]
			f.next++
			childHash := child.ReprHash()
			if pbc, ok := commonPruned[childHash]; ok {
				f.children = append(f.children, pbc)
			} else if m, ok := memo[childHash]; ok {
				f.children = append(f.children, m)
			} else {
				stack = append(stack, &proofFrame{cell: child})
			}
			continue
		}

		built, err := rebuildWithRefs(f.cell, f.children, hasher)
		if err != nil {
			return nil, err
		}
		memo[f.cell.ReprHash()] = built
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

// collectUsedPathsCells fills usedPaths with the hashes of old cells lying
// on a path from the root to a cell that was pruned out of the new side:
// those are the cells the old side of a fast update must reveal. Returns
// whether the root itself lies on such a path.
func collectUsedPathsCells(oldRoot *Cell, visitedOld func(Hash) bool, prunedBranches, usedPaths map[Hash]struct{}) bool {
	type frame struct {
		cell     *Cell
		hash     Hash
		isPruned bool
		descend  bool
		collect  bool
		next     int
	}
	visited := make(map[Hash]struct{})

	enter := func(c *Cell) *frame {
		h := c.ReprHash()
		if _, ok := visited[h]; ok {
			return nil
		}
		visited[h] = struct{}{}
		_, isPruned := prunedBranches[h]
		return &frame{cell: c, hash: h, isPruned: isPruned, descend: visitedOld(h)}
	}

	rootCollect := false
	stack := []*frame{enter(oldRoot)}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		if f.descend && f.next < len(f.cell.refs) {
			child := f.cell.refs[f.next]
			f.next++
			if cf := enter(child); cf != nil {
				stack = append(stack, cf)
			}
			continue
		}
		if f.descend && f.collect {
			usedPaths[f.hash] = struct{}{}
		}
		ret := f.collect || f.isPruned
		stack = stack[:len(stack)-1]
		if len(stack) > 0 {
			parent := stack[len(stack)-1]
			parent.collect = parent.collect || ret
		} else {
			rootCollect = ret
		}
	}
	return rootCollect
}

// traverseOldOnCheck records the hashes reachable through the old pruned
// tree, each at its merkle depth; pruned branches contribute their stored
// hash but are not descended into.
func traverseOldOnCheck(cell *Cell, known map[Hash]struct{}) {
	type item struct {
		cell  *Cell
		depth int
	}
	visited := make(map[Hash]struct{})
	stack := []item{{cell, 0}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		h := it.cell.ReprHash()
		if _, ok := visited[h]; ok {
			continue
		}
		visited[h] = struct{}{}
		known[it.cell.Hash(it.depth)] = struct{}{}
		if it.cell.cellType == CellTypePrunedBranch {
			continue
		}
		childDepth := it.depth
		if it.cell.IsMerkle() {
			childDepth++
		}
		for _, child := range it.cell.refs {
			stack = append(stack, item{child, childDepth})
		}
	}
}

// traverseNewOnCheck verifies that every pruned branch of the new side
// resolves within the cells the old side reveals.
func traverseNewOnCheck(cell *Cell, known map[Hash]struct{}) error {
	type item struct {
		cell  *Cell
		depth int
	}
	visited := make(map[Hash]struct{})
	stack := []item{{cell, 0}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		h := it.cell.ReprHash()
		if _, ok := visited[h]; ok {
			continue
		}
		visited[h] = struct{}{}
		if it.cell.cellType == CellTypePrunedBranch {
			if it.cell.Level() == it.depth+1 {
				if _, ok := known[it.cell.Hash(it.depth)]; !ok {
					return NewUpdateMismatchErrorf("the old side does not cover pruned subtree %s", it.cell.Hash(it.depth))
				}
			}
			continue
		}
		childDepth := it.depth
		if it.cell.IsMerkle() {
			childDepth++
		}
		for _, child := range it.cell.refs {
			stack = append(stack, item{child, childDepth})
		}
	}
	return nil
}

// collateOldCells walks the full old tree and picks out the cells whose
// hashes the update may refer to.
func collateOldCells(oldRoot *Cell, known map[Hash]struct{}) map[Hash]*Cell {
	type item struct {
		cell  *Cell
		depth int
	}
	visited := make(map[Hash]struct{})
	oldCells := make(map[Hash]*Cell)
	stack := []item{{oldRoot, 0}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		reprHash := it.cell.ReprHash()
		if _, ok := visited[reprHash]; ok {
			continue
		}
		visited[reprHash] = struct{}{}
		h := it.cell.Hash(it.depth)
		if _, ok := known[h]; !ok {
			continue
		}
		oldCells[h] = it.cell
		childDepth := it.depth
		if it.cell.IsMerkle() {
			childDepth++
		}
		for _, child := range it.cell.refs {
			stack = append(stack, item{child, childDepth})
		}
	}
	return oldCells
}

// applyFrame is one pending new-side cell of the reconstruction walk.
type applyFrame struct {
	cell        *Cell
	merkleDepth int
	children    []*Cell
	next        int
}

// traverseOnApply rebuilds the full new tree from the pruned new side,
// splicing subtrees of the old tree in place of pruned branches that
// belong to this update's merkle depth.
func traverseOnApply(updateRoot *Cell, oldCells map[Hash]*Cell, hasher Hasher) (*Cell, error) {
	newCells := make(map[Hash]*Cell)
	stack := []*applyFrame{{cell: updateRoot}}
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
			switch child.cellType {
			case CellTypePrunedBranch:
				if child.levelMask.Mask()&(1<<childDepth) != 0 {
					// pruned at this update's depth: splice the old subtree
					orig, ok := oldCells[child.Hash(child.Level()-1)]
					if !ok {
						return nil, NewUpdateMismatchErrorf("unresolved pruned subtree %s", child.Hash(child.Level()-1))
					}
					f.children = append(f.children, orig)
				} else {
					f.children = append(f.children, child)
				}
			case CellTypeBig:
				return nil, NewUpdateMismatchErrorf("big cells cannot appear inside an update")
			default:
				key := child.Hash(childDepth)
				if c, ok := newCells[key]; ok {
					f.children = append(f.children, c)
				} else {
					stack = append(stack, &applyFrame{cell: child, merkleDepth: childDepth})
				}
			}
			continue
		}

		built, err := rebuildWithRefs(f.cell, f.children, hasher)
		if err != nil {
			return nil, err
		}
		newCells[f.cell.Hash(f.merkleDepth)] = built
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
