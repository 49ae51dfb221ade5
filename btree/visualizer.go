package btree

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

/*
Visualizer renders the on-disk tree level by level, one bracketed node per
slot with its keys and offset. Handy in the CLI for watching splits and
merges happen.
*/
type Visualizer struct {
	Tree *Tree
}

var (
	offsetColor = color.New(color.FgHiBlack)
	keyColor    = color.New(color.FgCyan)
	levelColor  = color.New(color.FgYellow, color.Bold)
)

func (v *Visualizer) Visualize() (string, error) {
	if v.Tree.closed {
		return "", ErrClosed
	}

	var sb strings.Builder
	level := 0
	offsets := []uint64{v.Tree.rootOffset}
	for len(offsets) > 0 {
		levelColor.Fprintf(&sb, "level %d:", level)
		var next []uint64
		for _, offset := range offsets {
			n, err := v.Tree.loadNode(offset)
			if err != nil {
				return "", err
			}
			sb.WriteString(" [")
			for i := 0; i < n.numItems; i++ {
				if i > 0 {
					sb.WriteByte(' ')
				}
				keyColor.Fprintf(&sb, "%s", n.items[i].key)
			}
			sb.WriteString("]")
			offsetColor.Fprintf(&sb, "@%d", offset)
			next = append(next, n.children[:n.numChildren]...)
		}
		sb.WriteByte('\n')
		offsets = next
		level++
	}
	return sb.String(), nil
}

// String summarizes the tree handle for interactive use.
func (t *Tree) String() string {
	height, err := t.Height()
	if err != nil {
		return fmt.Sprintf("btree(degree=%d, unreadable: %v)", t.degree, err)
	}
	count, err := t.Len()
	if err != nil {
		return fmt.Sprintf("btree(degree=%d, unreadable: %v)", t.degree, err)
	}
	return fmt.Sprintf("btree(degree=%d, height=%d, keys=%d)", t.degree, height, count)
}
