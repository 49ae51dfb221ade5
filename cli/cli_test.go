package cli

import (
	"bufio"
	"errors"
	"strings"
	"testing"

	"btreedb/btree"
	"btreedb/storage"
)

// The session can end two ways: the EXIT command or stdin running out.
// Both must leave the tree closed so the medium gets flushed.
func TestStartClosesTreeWhenInputEnds(t *testing.T) {
	tr, err := btree.New(storage.NewBuffer(), 2)
	if err != nil {
		t.Fatalf("new tree: %v", err)
	}

	input := strings.NewReader("SET a 1\nGET a\n")
	c := NewCli(bufio.NewScanner(input), tr)
	c.Start()

	if _, _, err := tr.Get([]byte("a")); !errors.Is(err, btree.ErrClosed) {
		t.Fatalf("tree still usable after session end: %v", err)
	}
	if err := tr.Close(); !errors.Is(err, btree.ErrClosed) {
		t.Fatalf("double close: got %v, want ErrClosed", err)
	}
}
