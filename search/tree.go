package search

import (
	"github.com/nullmove/veritas/arena"
	"github.com/nullmove/veritas/rules"
)

// Tree owns the arena-allocated nodes of one search. It does not persist
// across moves; each Go call starts from a fresh root.
type Tree[Move any] struct {
	nodes *arena.Arena[Node[Move]]
	root  arena.Handle
}

// NewTree creates an empty tree. Engine.Go resets it at the start of every
// search.
func NewTree[Move any]() *Tree[Move] {
	return &Tree[Move]{nodes: arena.New[Node[Move]](4096), root: arena.Null()}
}

// Reset clears the arena; the next ensureRoot call re-establishes node 0
// as the root.
func (t *Tree[Move]) Reset() {
	t.nodes.Reset()
	t.root = arena.Null()
}

// Len reports the number of nodes currently in the tree.
func (t *Tree[Move]) Len() int { return t.nodes.Len() }

// Root returns the handle of the root node, or the null handle if the tree
// is empty.
func (t *Tree[Move]) Root() arena.Handle { return t.root }

// Get returns a pointer to the node at h.
func (t *Tree[Move]) Get(h arena.Handle) *Node[Move] { return t.nodes.Get(h) }

// ensureRoot allocates node 0 as the root if the tree is empty. The root
// always has a null parent.
func (t *Tree[Move]) ensureRoot() arena.Handle {
	if t.root.IsNull() {
		h := t.nodes.Alloc()
		*t.nodes.Get(h) = newNode[Move](arena.Null(), 0)
		t.root = h
	}
	return t.root
}

// appendChild allocates a new node as a child of parent, produced by
// edgeIndex, and links it at the tail of parent's sibling list: walk to the
// last instantiated child (or the parent's Child slot if there is none) and
// write the new handle there, asserting the slot was null.
func (t *Tree[Move]) appendChild(parent arena.Handle, edgeIndex int) arena.Handle {
	lastChild := arena.Null()
	{
		cur := t.nodes.Get(parent).Child
		for !cur.IsNull() {
			lastChild = cur
			cur = t.nodes.Get(cur).Sibling
		}
	}

	newHandle := t.nodes.Alloc()
	*t.nodes.Get(newHandle) = newNode[Move](parent, edgeIndex)

	var slot *arena.Handle
	if lastChild.IsNull() {
		slot = &t.nodes.Get(parent).Child
	} else {
		slot = &t.nodes.Get(lastChild).Sibling
	}
	if !slot.IsNull() {
		panic("search: expansion attempted to overwrite a non-null child link")
	}
	*slot = newHandle

	return newHandle
}

// expandNode is the package-visible entry point used by Engine to expand a
// node with a freshly-evaluated policy.
func expandNode[Position any, Move comparable](game rules.Game[Position, Move], t *Tree[Move], h arena.Handle, pos Position, rawPolicy []float32) {
	expand(game, t.nodes.Get(h), pos, rawPolicy)
}
