package btree

/*
Delete removes key and returns the value that was stored under it.
Deleting an absent key is a no-op: the medium is left untouched.

The descent mirrors Put's preemptive split: before stepping into any child
that holds only t-1 items, the child is topped up by borrowing from a
sibling (rotating through the separator in the parent) or, when neither
sibling can lend, by merging with one of them. Every node entered
therefore has at least t items, so removing one never violates the
minimum and nothing propagates back up. A merge that empties the root
makes its single remaining child the new root -- the only way the tree
shrinks in height.
*/
func (t *Tree) Delete(key []byte) ([]byte, bool, error) {
	if t.closed {
		return nil, false, ErrClosed
	}

	// Probe first so an absent key triggers no rebalancing writes at
	// all, keeping the medium byte-for-byte identical.
	if _, found, err := t.Get(key); err != nil || !found {
		return nil, false, err
	}

	prevRoot, prevFree := t.rootOffset, t.freeListHead

	n, err := t.loadNode(t.rootOffset)
	if err != nil {
		return nil, false, err
	}
	removed, err := t.remove(n, key)
	if err != nil {
		return nil, false, err
	}
	if t.rootOffset != prevRoot || t.freeListHead != prevFree {
		if err := t.writeFooter(); err != nil {
			return nil, false, err
		}
	}
	return removed, true, nil
}

/*
remove deletes key from the subtree rooted at n, which is known to either
be the root or hold at least t items. The loop keeps at most a node and
one or two of its relatives in memory at a time; each is written back
before the descent continues.

When the key sits in an internal node it is replaced by its in-order
predecessor when the left child can spare an item (the preferred side),
else by its successor, and the walk continues downward to delete that
stand-in from its leaf. When neither child can spare one, the two children
are merged around the key and the walk continues inside the merged node.
*/
func (t *Tree) remove(n *node, key []byte) ([]byte, error) {
	// Set once the doomed item is replaced by its predecessor or
	// successor; from then on the walk is deleting the stand-in, but the
	// caller still gets the original value.
	var removed []byte

	for {
		pos, found := n.search(key)
		if found {
			if n.isLeaf() {
				it := n.removeItemAt(pos)
				if err := t.writeNode(n); err != nil {
					return nil, err
				}
				if removed == nil {
					removed = it.val
				}
				return removed, nil
			}

			left, err := t.loadNode(n.children[pos])
			if err != nil {
				return nil, err
			}
			if left.numItems >= t.degree {
				pred, err := t.maxItem(left)
				if err != nil {
					return nil, err
				}
				if removed == nil {
					removed = n.items[pos].val
				}
				n.items[pos] = pred
				if err := t.writeNode(n); err != nil {
					return nil, err
				}
				key = pred.key
				n = left
				continue
			}

			right, err := t.loadNode(n.children[pos+1])
			if err != nil {
				return nil, err
			}
			if right.numItems >= t.degree {
				succ, err := t.minItem(right)
				if err != nil {
					return nil, err
				}
				if removed == nil {
					removed = n.items[pos].val
				}
				n.items[pos] = succ
				if err := t.writeNode(n); err != nil {
					return nil, err
				}
				key = succ.key
				n = right
				continue
			}

			// Neither child can spare an item: absorb the separator and
			// the right child into the left child, then keep going
			// inside the merged node -- the key is in there now.
			if removed == nil {
				removed = n.items[pos].val
			}
			sep := n.removeItemAt(pos)
			n.removeChildAt(pos + 1)
			if err := t.mergeInto(left, sep, right); err != nil {
				return nil, err
			}
			if err := t.shrinkOrWrite(n, left); err != nil {
				return nil, err
			}
			n = left
			continue
		}

		if n.isLeaf() {
			// Delete pre-probes for existence, and a replaced
			// predecessor/successor always exists in its leaf.
			return removed, nil
		}

		child, err := t.ensureChild(n, pos)
		if err != nil {
			return nil, err
		}
		n = child
	}
}

/*
ensureChild loads the pos'th child of n and, if it holds only t-1 items,
tops it up before the descent enters it: borrow from a sibling with items
to spare, else merge with one. Returns the node the traversal should
continue in (the merged node when a merge happened).
*/
func (t *Tree) ensureChild(n *node, pos int) (*node, error) {
	child, err := t.loadNode(n.children[pos])
	if err != nil {
		return nil, err
	}
	if child.numItems >= t.degree {
		return child, nil
	}

	var left, right *node
	if pos > 0 {
		if left, err = t.loadNode(n.children[pos-1]); err != nil {
			return nil, err
		}
		if left.numItems >= t.degree {
			// Rotate right: the separator drops into the child and the
			// left sibling's last item takes its place.
			child.insertItemAt(0, n.items[pos-1])
			if !left.isLeaf() {
				child.insertChildAt(0, left.removeChildAt(left.numChildren-1))
			}
			n.items[pos-1] = left.removeItemAt(left.numItems - 1)
			return child, t.writeNodes(left, child, n)
		}
	}
	if pos < n.numChildren-1 {
		if right, err = t.loadNode(n.children[pos+1]); err != nil {
			return nil, err
		}
		if right.numItems >= t.degree {
			// Rotate left, symmetric to the above.
			child.insertItemAt(child.numItems, n.items[pos])
			if !right.isLeaf() {
				child.insertChildAt(child.numChildren, right.removeChildAt(0))
			}
			n.items[pos] = right.removeItemAt(0)
			return child, t.writeNodes(right, child, n)
		}
	}

	// No sibling can lend: merge. Prefer absorbing into the left sibling
	// when there is one.
	var merged *node
	if left != nil {
		sep := n.removeItemAt(pos - 1)
		n.removeChildAt(pos)
		if err := t.mergeInto(left, sep, child); err != nil {
			return nil, err
		}
		merged = left
	} else {
		sep := n.removeItemAt(pos)
		n.removeChildAt(pos + 1)
		if err := t.mergeInto(child, sep, right); err != nil {
			return nil, err
		}
		merged = child
	}
	if err := t.shrinkOrWrite(n, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// mergeInto appends the separator and every item and child of src onto
// dst, writes dst back and recycles src's slot. dst and src each hold t-1
// items, so the result lands exactly at the 2t-1 capacity.
func (t *Tree) mergeInto(dst *node, sep *item, src *node) error {
	dst.insertItemAt(dst.numItems, sep)
	for i := 0; i < src.numItems; i++ {
		dst.insertItemAt(dst.numItems, src.items[i])
	}
	for i := 0; i < src.numChildren; i++ {
		dst.insertChildAt(dst.numChildren, src.children[i])
	}
	if err := t.writeNode(dst); err != nil {
		return err
	}
	return t.free(src.offset)
}

// shrinkOrWrite handles the aftermath of a merge under n: a root left with
// no items hands its slot back and its single remaining child becomes the
// new root; any other node is simply written back.
func (t *Tree) shrinkOrWrite(n, merged *node) error {
	if n.offset == t.rootOffset && n.numItems == 0 {
		if err := t.free(n.offset); err != nil {
			return err
		}
		t.rootOffset = merged.offset
		return nil
	}
	return t.writeNode(n)
}

func (t *Tree) writeNodes(nodes ...*node) error {
	for _, n := range nodes {
		if err := t.writeNode(n); err != nil {
			return err
		}
	}
	return nil
}

// maxItem walks to the rightmost leaf under n and returns its last item.
// Read-only; used to find an in-order predecessor.
func (t *Tree) maxItem(n *node) (*item, error) {
	for !n.isLeaf() {
		next, err := t.loadNode(n.children[n.numChildren-1])
		if err != nil {
			return nil, err
		}
		n = next
	}
	return n.items[n.numItems-1], nil
}

// minItem walks to the leftmost leaf under n and returns its first item.
// Read-only; used to find an in-order successor.
func (t *Tree) minItem(n *node) (*item, error) {
	for !n.isLeaf() {
		next, err := t.loadNode(n.children[0])
		if err != nil {
			return nil, err
		}
		n = next
	}
	return n.items[0], nil
}
