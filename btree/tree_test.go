package btree

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-faker/faker/v4"

	"btreedb/storage"
)

// verifyTree walks the whole tree and fails the test on any violated
// structural invariant: key-count bounds, strictly increasing keys,
// separator bounds, child counts and equal leaf depth.
func verifyTree(t *testing.T, tr *Tree) {
	t.Helper()
	leafDepth := -1

	var walk func(offset uint64, depth int, min, max []byte, isRoot bool)
	walk = func(offset uint64, depth int, min, max []byte, isRoot bool) {
		n, err := tr.loadNode(offset)
		if err != nil {
			t.Fatalf("load node at %d: %v", offset, err)
		}
		if !isRoot && n.numItems < minItems(tr.degree) {
			t.Fatalf("node at %d holds %d items, want at least %d", offset, n.numItems, minItems(tr.degree))
		}
		if n.numItems > maxItems(tr.degree) {
			t.Fatalf("node at %d holds %d items, want at most %d", offset, n.numItems, maxItems(tr.degree))
		}
		for i := 0; i < n.numItems; i++ {
			k := n.items[i].key
			if i > 0 && bytes.Compare(n.items[i-1].key, k) >= 0 {
				t.Fatalf("node at %d: keys not strictly increasing at %d", offset, i)
			}
			if min != nil && bytes.Compare(k, min) <= 0 {
				t.Fatalf("node at %d: key %q at or below subtree bound %q", offset, k, min)
			}
			if max != nil && bytes.Compare(k, max) >= 0 {
				t.Fatalf("node at %d: key %q at or above subtree bound %q", offset, k, max)
			}
		}
		if n.isLeaf() {
			if leafDepth == -1 {
				leafDepth = depth
			} else if leafDepth != depth {
				t.Fatalf("leaf at %d sits at depth %d, others at %d", offset, depth, leafDepth)
			}
			return
		}
		if n.numChildren != n.numItems+1 {
			t.Fatalf("node at %d holds %d items but %d children", offset, n.numItems, n.numChildren)
		}
		for i := 0; i < n.numChildren; i++ {
			lo, hi := min, max
			if i > 0 {
				lo = n.items[i-1].key
			}
			if i < n.numItems {
				hi = n.items[i].key
			}
			walk(n.children[i], depth+1, lo, hi, false)
		}
	}
	walk(tr.rootOffset, 0, nil, nil, true)
}

func mustPut(t *testing.T, tr *Tree, key, val string) {
	t.Helper()
	if _, _, err := tr.Put([]byte(key), []byte(val)); err != nil {
		t.Fatalf("put %q: %v", key, err)
	}
}

func mustGet(t *testing.T, tr *Tree, key, want string) {
	t.Helper()
	val, found, err := tr.Get([]byte(key))
	if err != nil {
		t.Fatalf("get %q: %v", key, err)
	}
	if !found {
		t.Fatalf("get %q: not found, want %q", key, want)
	}
	if string(val) != want {
		t.Fatalf("get %q: got %q, want %q", key, val, want)
	}
}

func mustHeight(t *testing.T, tr *Tree, want int) {
	t.Helper()
	h, err := tr.Height()
	if err != nil {
		t.Fatalf("height: %v", err)
	}
	if h != want {
		t.Fatalf("height is %d, want %d", h, want)
	}
}

func TestCreateThenReopenEmptyTree(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.db")

	tr, err := Create(path, 4)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	mustHeight(t, tr, 1)
	if err := tr.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	tr, err = Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer tr.Close()
	if tr.Degree() != 4 {
		t.Fatalf("degree is %d, want 4", tr.Degree())
	}
	if _, found, err := tr.Get([]byte("anything")); err != nil || found {
		t.Fatalf("get on empty tree: found=%v err=%v", found, err)
	}
}

func TestCreateRefusesExistingTree(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exists.db")
	tr, err := Create(path, 2)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	tr.Close()

	if _, err := Create(path, 2); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("got %v, want ErrAlreadyExists", err)
	}
}

func TestCreateRefusesForeignFile(t *testing.T) {
	// a pre-existing file that is not a tree must be left untouched:
	// initializing over it would append slots off the slot grid and the
	// result could never be reopened
	path := filepath.Join(t.TempDir(), "foreign.db")
	garbage := bytes.Repeat([]byte{0xBA}, 100)
	if err := os.WriteFile(path, garbage, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	if _, err := Create(path, 2); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("got %v, want ErrAlreadyExists", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file back: %v", err)
	}
	if !bytes.Equal(got, garbage) {
		t.Fatal("refused create still modified the file")
	}
}

func TestNewRefusesNonEmptyMedium(t *testing.T) {
	for _, size := range []int{1, headerSize, 100} {
		s := storage.NewBuffer()
		if err := s.Put(bytes.Repeat([]byte{0xBA}, size), 0); err != nil {
			t.Fatalf("put: %v", err)
		}
		if _, err := New(s, 2); !errors.Is(err, ErrAlreadyExists) {
			t.Fatalf("%d-byte medium: got %v, want ErrAlreadyExists", size, err)
		}
	}
}

func TestInvalidDegree(t *testing.T) {
	for _, degree := range []int{-1, 0, 1} {
		if _, err := New(storage.NewBuffer(), degree); !errors.Is(err, ErrInvalidDegree) {
			t.Fatalf("degree %d: got %v, want ErrInvalidDegree", degree, err)
		}
	}
}

func TestLoadRejectsCorruptHeader(t *testing.T) {
	s := storage.NewBuffer()
	if err := s.Put(bytes.Repeat([]byte{0xBA}, 64), 0); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := Load(s); !errors.Is(err, ErrCorruptHeader) {
		t.Fatalf("got %v, want ErrCorruptHeader", err)
	}

	if _, err := Load(storage.NewBuffer()); !errors.Is(err, ErrCorruptHeader) {
		t.Fatalf("empty medium: got %v, want ErrCorruptHeader", err)
	}
}

func TestEntrySizeLimits(t *testing.T) {
	tr, err := New(storage.NewBuffer(), 4)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, _, err := tr.Put(bytes.Repeat([]byte{'k'}, MaxKeySize+1), nil); !errors.Is(err, ErrKeyTooLarge) {
		t.Fatalf("got %v, want ErrKeyTooLarge", err)
	}
	if _, _, err := tr.Put([]byte("k"), bytes.Repeat([]byte{'v'}, MaxValSize+1)); !errors.Is(err, ErrValueTooLarge) {
		t.Fatalf("got %v, want ErrValueTooLarge", err)
	}
	// the caps themselves are storable
	if _, _, err := tr.Put(bytes.Repeat([]byte{'k'}, MaxKeySize), bytes.Repeat([]byte{'v'}, MaxValSize)); err != nil {
		t.Fatalf("put at caps: %v", err)
	}
}

func TestPutReturnsPreviousValue(t *testing.T) {
	tr, err := New(storage.NewBuffer(), 2)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	prev, replaced, err := tr.Put([]byte("k"), []byte("one"))
	if err != nil || replaced || prev != nil {
		t.Fatalf("fresh put: prev=%q replaced=%v err=%v", prev, replaced, err)
	}
	prev, replaced, err = tr.Put([]byte("k"), []byte("two"))
	if err != nil || !replaced || string(prev) != "one" {
		t.Fatalf("overwrite: prev=%q replaced=%v err=%v", prev, replaced, err)
	}
	mustGet(t, tr, "k", "two")
	if n, err := tr.Len(); err != nil || n != 1 {
		t.Fatalf("len=%d err=%v, want 1", n, err)
	}
}

// The degree-2 walkthrough: inserting 10,20,05,06 must split the root
// (height 2, a single separator, correct partitions); the remaining keys
// and a delete keep every invariant intact. Keys are zero-padded so byte
// order matches numeric order.
func TestDegree2SplitScenario(t *testing.T) {
	tr, err := New(storage.NewBuffer(), 2)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	for _, k := range []string{"10", "20", "05"} {
		mustPut(t, tr, k, "v"+k)
	}
	mustHeight(t, tr, 1)

	// fourth insert finds the root full and splits it
	mustPut(t, tr, "06", "v06")
	mustHeight(t, tr, 2)

	root, err := tr.loadNode(tr.rootOffset)
	if err != nil {
		t.Fatalf("load root: %v", err)
	}
	if root.numItems != 1 || string(root.items[0].key) != "10" {
		t.Fatalf("root holds %d items, first %q; want exactly [10]", root.numItems, root.items[0].key)
	}
	left, err := tr.loadNode(root.children[0])
	if err != nil {
		t.Fatalf("load left child: %v", err)
	}
	right, err := tr.loadNode(root.children[1])
	if err != nil {
		t.Fatalf("load right child: %v", err)
	}
	if left.numItems != 2 || string(left.items[0].key) != "05" || string(left.items[1].key) != "06" {
		t.Fatal("left child does not hold [05 06]")
	}
	if right.numItems != 1 || string(right.items[0].key) != "20" {
		t.Fatal("right child does not hold [20]")
	}

	for _, k := range []string{"12", "30", "07", "17"} {
		mustPut(t, tr, k, "v"+k)
		verifyTree(t, tr)
	}
	mustHeight(t, tr, 2)

	if _, deleted, err := tr.Delete([]byte("06")); err != nil || !deleted {
		t.Fatalf("delete 06: deleted=%v err=%v", deleted, err)
	}
	verifyTree(t, tr)

	for _, k := range []string{"05", "07", "10", "12", "17", "20", "30"} {
		mustGet(t, tr, k, "v"+k)
	}
	if _, found, _ := tr.Get([]byte("06")); found {
		t.Fatal("06 still present after delete")
	}
}

// Drains the degree-2 tree key by key, exercising borrows, merges and the
// final root collapse back to height 1.
func TestDeleteRebalancesAndCollapsesRoot(t *testing.T) {
	tr, err := New(storage.NewBuffer(), 2)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	keys := []string{"10", "20", "05", "06", "12", "30", "07", "17"}
	for _, k := range keys {
		mustPut(t, tr, k, "v"+k)
	}
	mustHeight(t, tr, 2)

	for i, k := range keys {
		val, deleted, err := tr.Delete([]byte(k))
		if err != nil {
			t.Fatalf("delete %q: %v", k, err)
		}
		if !deleted || string(val) != "v"+k {
			t.Fatalf("delete %q: got %q deleted=%v", k, val, deleted)
		}
		verifyTree(t, tr)
		for _, rest := range keys[i+1:] {
			mustGet(t, tr, rest, "v"+rest)
		}
	}
	mustHeight(t, tr, 1)
	if n, err := tr.Len(); err != nil || n != 0 {
		t.Fatalf("len=%d err=%v, want 0", n, err)
	}
}

func TestDeleteInternalKeyUsesPredecessorOrSuccessor(t *testing.T) {
	tr, err := New(storage.NewBuffer(), 2)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	// enough keys that separators live in internal nodes
	for i := 0; i < 40; i++ {
		k := fmt.Sprintf("%03d", i)
		mustPut(t, tr, k, "v"+k)
	}
	root, err := tr.loadNode(tr.rootOffset)
	if err != nil {
		t.Fatalf("load root: %v", err)
	}
	if root.isLeaf() {
		t.Fatal("tree too small, root is a leaf")
	}

	// delete every separator currently in the root
	var seps []string
	for i := 0; i < root.numItems; i++ {
		seps = append(seps, string(root.items[i].key))
	}
	for _, k := range seps {
		val, deleted, err := tr.Delete([]byte(k))
		if err != nil || !deleted || string(val) != "v"+k {
			t.Fatalf("delete separator %q: val=%q deleted=%v err=%v", k, val, deleted, err)
		}
		verifyTree(t, tr)
	}
	for i := 0; i < 40; i++ {
		k := fmt.Sprintf("%03d", i)
		wantFound := true
		for _, s := range seps {
			if s == k {
				wantFound = false
			}
		}
		_, found, err := tr.Get([]byte(k))
		if err != nil {
			t.Fatalf("get %q: %v", k, err)
		}
		if found != wantFound {
			t.Fatalf("get %q: found=%v, want %v", k, found, wantFound)
		}
	}
}

func TestDeleteAbsentKeyLeavesMediumUntouched(t *testing.T) {
	s := storage.NewBuffer()
	tr, err := New(s, 2)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for _, k := range []string{"b", "d", "f", "h", "j", "l"} {
		mustPut(t, tr, k, "v"+k)
	}

	before := s.Bytes()
	for _, absent := range []string{"a", "c", "m", ""} {
		val, deleted, err := tr.Delete([]byte(absent))
		if err != nil || deleted || val != nil {
			t.Fatalf("delete absent %q: val=%q deleted=%v err=%v", absent, val, deleted, err)
		}
	}
	if !bytes.Equal(before, s.Bytes()) {
		t.Fatal("deleting absent keys modified the medium")
	}
}

func TestFreeListRecyclesSlots(t *testing.T) {
	s := storage.NewBuffer()
	tr, err := New(s, 2)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	keys := make([]string, 64)
	for i := range keys {
		keys[i] = fmt.Sprintf("%03d", i)
		mustPut(t, tr, keys[i], "v")
	}
	grown := s.Len()

	// drain the tree, then rebuild it with the same insertion order: the
	// rebuild must be fed entirely from recycled slots
	for _, k := range keys {
		if _, deleted, err := tr.Delete([]byte(k)); err != nil || !deleted {
			t.Fatalf("delete %q: deleted=%v err=%v", k, deleted, err)
		}
	}
	if tr.freeListHead == nilOffset {
		t.Fatal("free list is empty after draining the tree")
	}
	for _, k := range keys {
		mustPut(t, tr, k, "v")
	}
	verifyTree(t, tr)
	if s.Len() != grown {
		t.Fatalf("medium grew from %d to %d bytes despite free slots", grown, s.Len())
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roundtrip.db")
	records := fakerRecords(t, 200)

	tr, err := Create(path, 4)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for k, v := range records {
		mustPut(t, tr, k, v)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	tr, err = Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	verifyTree(t, tr)
	for k, v := range records {
		mustGet(t, tr, k, v)
	}

	// delete half, close, reopen: the deleted half stays gone and the
	// rest persists
	deleted := make(map[string]bool)
	i := 0
	for k := range records {
		if i%2 == 0 {
			if _, ok, err := tr.Delete([]byte(k)); err != nil || !ok {
				t.Fatalf("delete %q: ok=%v err=%v", k, ok, err)
			}
			deleted[k] = true
		}
		i++
	}
	verifyTree(t, tr)
	if err := tr.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	tr, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer tr.Close()
	verifyTree(t, tr)
	for k, v := range records {
		_, found, err := tr.Get([]byte(k))
		if err != nil {
			t.Fatalf("get %q: %v", k, err)
		}
		if deleted[k] && found {
			t.Fatalf("key %q still present after delete and reopen", k)
		}
		if !deleted[k] {
			if !found {
				t.Fatalf("key %q lost across reopen", k)
			}
			mustGet(t, tr, k, v)
		}
	}
}

func TestRandomizedWorkloadAgainstModel(t *testing.T) {
	tr, err := New(storage.NewBuffer(), 3)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	model := make(map[string]string)

	for k, v := range fakerRecords(t, 400) {
		mustPut(t, tr, k, v)
		model[k] = v
	}
	verifyTree(t, tr)

	// overwrite a third, delete a third
	i := 0
	for k := range model {
		switch i % 3 {
		case 0:
			mustPut(t, tr, k, "rewritten")
			model[k] = "rewritten"
		case 1:
			if _, ok, err := tr.Delete([]byte(k)); err != nil || !ok {
				t.Fatalf("delete %q: ok=%v err=%v", k, ok, err)
			}
			delete(model, k)
		}
		i++
	}
	verifyTree(t, tr)

	for k, v := range model {
		mustGet(t, tr, k, v)
	}
	n, err := tr.Len()
	if err != nil {
		t.Fatalf("len: %v", err)
	}
	if n != len(model) {
		t.Fatalf("tree holds %d keys, model holds %d", n, len(model))
	}
}

func TestOperationsAfterClose(t *testing.T) {
	tr, err := New(storage.NewBuffer(), 2)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, _, err := tr.Get([]byte("k")); !errors.Is(err, ErrClosed) {
		t.Fatalf("get: got %v, want ErrClosed", err)
	}
	if _, _, err := tr.Put([]byte("k"), []byte("v")); !errors.Is(err, ErrClosed) {
		t.Fatalf("put: got %v, want ErrClosed", err)
	}
	if _, _, err := tr.Delete([]byte("k")); !errors.Is(err, ErrClosed) {
		t.Fatalf("delete: got %v, want ErrClosed", err)
	}
	if err := tr.Close(); !errors.Is(err, ErrClosed) {
		t.Fatalf("double close: got %v, want ErrClosed", err)
	}
}

// fakerRecords builds n distinct key/value pairs from faker words.
func fakerRecords(t *testing.T, n int) map[string]string {
	t.Helper()
	records := make(map[string]string, n)
	for salt := 0; len(records) < n; salt++ {
		k := fmt.Sprintf("%s-%s-%d", faker.Word(), faker.Word(), salt)
		records[k] = faker.Sentence()
	}
	return records
}
