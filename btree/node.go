package btree

import "bytes"

/*
data item in a node.
key uniquely identifies a data item and is used for sorting them.
val contains the actual data.
*/
type item struct {
	key []byte
	val []byte
}

/*
node is the in-memory form of one slot. Children are referenced by their
byte offset into the storage medium, never by pointer, so there is no
in-memory node graph to manage -- a node is loaded by value, mutated,
written back, and discarded before the traversal moves on.

items and children are allocated at full capacity (2t-1 and 2t) once and
never grow; numItems/numChildren track how much of each is in use.
*/
type node struct {
	offset      uint64
	items       []*item
	children    []uint64
	numItems    int
	numChildren int
}

// nilOffset can never address a node: offset 0 holds the file header.
const nilOffset uint64 = 0

func newNode(degree int) *node {
	return &node{
		items:    make([]*item, maxItems(degree)),
		children: make([]uint64, maxChildren(degree)),
	}
}

// maxChildren is the most child pointers any node may hold; maxItems and
// minItems bound the data items of non-root nodes.
func maxChildren(degree int) int { return 2 * degree }
func maxItems(degree int) int    { return 2*degree - 1 }
func minItems(degree int) int    { return degree - 1 }

func (n *node) isLeaf() bool {
	return n.numChildren == 0
}

func (n *node) isFull(degree int) bool {
	return n.numItems >= maxItems(degree)
}

/*
If a data item with the given key is found in node n, return its index i.
Else, return the index j where the key would have resided if it was present
in the node. That lower bound coincides with the position of the child
pointer to follow, so the traversal can continue down the tree whenever the
returned boolean is false.
*/
func (n *node) search(key []byte) (int, bool) {
	low, high := 0, n.numItems
	var mid int
	for low < high {
		mid = (low + high) / 2
		cmp := bytes.Compare(key, n.items[mid].key)
		switch {
		case cmp > 0:
			low = mid + 1
		case cmp < 0:
			high = mid
		case cmp == 0:
			return mid, true
		}
	}
	return low, false
}

// helper method to insert a data item at an arbitrary position of a node
func (n *node) insertItemAt(pos int, it *item) {
	if pos < n.numItems {
		copy(n.items[pos+1:n.numItems+1], n.items[pos:n.numItems])
	}
	n.items[pos] = it
	n.numItems++
}

// helper method to insert a child offset at an arbitrary position of a node
func (n *node) insertChildAt(pos int, child uint64) {
	if pos < n.numChildren {
		copy(n.children[pos+1:n.numChildren+1], n.children[pos:n.numChildren])
	}
	n.children[pos] = child
	n.numChildren++
}

// helper method to remove and return the data item at an arbitrary position
func (n *node) removeItemAt(pos int) *item {
	removed := n.items[pos]
	copy(n.items[pos:n.numItems-1], n.items[pos+1:n.numItems])
	n.items[n.numItems-1] = nil
	n.numItems--
	return removed
}

// helper method to remove and return the child offset at an arbitrary position
func (n *node) removeChildAt(pos int) uint64 {
	removed := n.children[pos]
	copy(n.children[pos:n.numChildren-1], n.children[pos+1:n.numChildren])
	n.children[n.numChildren-1] = nilOffset
	n.numChildren--
	return removed
}

/*
split a full node into two. The receiver keeps the first minItems data
items, the returned node takes the last minItems, and the middle item is
returned so the caller can link it (and the new node's offset) into the
parent. The new node carries no offset yet; the caller allocates one.
*/
func (n *node) split(degree int) (*item, *node) {
	mid := minItems(degree)
	midItem := n.items[mid]

	right := newNode(degree)
	copy(right.items, n.items[mid+1:n.numItems])
	right.numItems = minItems(degree)

	if !n.isLeaf() {
		copy(right.children, n.children[mid+1:n.numChildren])
		right.numChildren = minItems(degree) + 1
	}

	// Remove data items and child offsets from the current node that
	// were moved to the new node.
	for i := mid; i < n.numItems; i++ {
		n.items[i] = nil
		if !n.isLeaf() {
			n.children[i+1] = nilOffset
		}
	}
	if !n.isLeaf() {
		n.numChildren = mid + 1
	}
	n.numItems = mid

	return midItem, right
}
