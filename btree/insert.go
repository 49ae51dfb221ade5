package btree

import "bytes"

/*
Put stores val under key and returns the previous value if the key already
existed. Duplicate keys overwrite in place; insertion never splits for a
replacement.

The descent is the classic preemptive top-down split: any full child on
the path is split before the traversal enters it, so a node is always
non-full by the time an item lands in it and no split ever propagates back
up. Splitting a full root beforehand is the only way the tree grows in
height.
*/
func (t *Tree) Put(key, val []byte) ([]byte, bool, error) {
	if t.closed {
		return nil, false, ErrClosed
	}
	if err := checkEntry(key, val); err != nil {
		return nil, false, err
	}

	prevRoot, prevFree := t.rootOffset, t.freeListHead

	n, err := t.loadNode(t.rootOffset)
	if err != nil {
		return nil, false, err
	}
	if n.isFull(t.degree) {
		if n, err = t.splitRoot(n); err != nil {
			return nil, false, err
		}
	}

	prev, replaced, err := t.insert(n, &item{key: key, val: val})
	if err != nil {
		return nil, false, err
	}
	if t.rootOffset != prevRoot || t.freeListHead != prevFree {
		if err := t.writeFooter(); err != nil {
			return nil, false, err
		}
	}
	return prev, replaced, nil
}

/*
splitRoot allocates a slot for the right half of the full root and one for
a brand-new root holding just the promoted middle item. The old root keeps
its slot and becomes the left child.
*/
func (t *Tree) splitRoot(root *node) (*node, error) {
	midItem, right := root.split(t.degree)
	rightOffset, err := t.allocate()
	if err != nil {
		return nil, err
	}
	right.offset = rightOffset

	newRoot := newNode(t.degree)
	newRootOffset, err := t.allocate()
	if err != nil {
		return nil, err
	}
	newRoot.offset = newRootOffset
	newRoot.insertItemAt(0, midItem)
	newRoot.insertChildAt(0, root.offset)
	newRoot.insertChildAt(1, right.offset)

	for _, n := range []*node{root, right, newRoot} {
		if err := t.writeNode(n); err != nil {
			return nil, err
		}
	}
	t.rootOffset = newRoot.offset
	return newRoot, nil
}

/*
insert walks down from n (known non-full) to the leaf where the item
belongs, splitting any full child just before entering it. Only the nodes
touched by a mutation are written back; a node is discarded the moment its
child is chosen.
*/
func (t *Tree) insert(n *node, it *item) ([]byte, bool, error) {
	for {
		pos, found := n.search(it.key)

		// The data item already exists, so just update its value.
		if found {
			prev := n.items[pos].val
			n.items[pos] = it
			return prev, true, t.writeNode(n)
		}

		// A leaf on the path is guaranteed non-full, so the new item
		// can go straight in.
		if n.isLeaf() {
			n.insertItemAt(pos, it)
			return nil, false, t.writeNode(n)
		}

		child, err := t.loadNode(n.children[pos])
		if err != nil {
			return nil, false, err
		}

		// If the next node on the traversal path is already full,
		// split it before stepping in.
		if child.isFull(t.degree) {
			left := child
			midItem, right := left.split(t.degree)
			rightOffset, err := t.allocate()
			if err != nil {
				return nil, false, err
			}
			right.offset = rightOffset
			n.insertItemAt(pos, midItem)
			n.insertChildAt(pos+1, right.offset)

			// The promoted middle item may change our direction, or
			// turn out to be the very key being put.
			var prev []byte
			replaced := false
			switch cmp := bytes.Compare(it.key, midItem.key); {
			case cmp < 0:
				child = left
			case cmp > 0:
				child = right
			default:
				prev = midItem.val
				replaced = true
				n.items[pos] = it
			}

			for _, m := range []*node{left, right, n} {
				if err := t.writeNode(m); err != nil {
					return nil, false, err
				}
			}
			if replaced {
				return prev, true, nil
			}
		}
		n = child
	}
}
