package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"btreedb/btree"
)

type Cli struct {
	scanner    *bufio.Scanner
	tree       *btree.Tree
	visualizer *btree.Visualizer
}

func NewCli(s *bufio.Scanner, t *btree.Tree) *Cli {
	v := &btree.Visualizer{
		Tree: t,
	}
	return &Cli{scanner: s, tree: t, visualizer: v}
}

func (c *Cli) Start() {
	c.printHelp()
	c.printPrompt()
	for c.scanner.Scan() {
		c.processInput(c.scanner.Text())
		c.printPrompt()
	}
	// stdin hit EOF; the tree still needs its footer flushed to disk.
	if err := c.tree.Close(); err != nil {
		fmt.Println(err)
	}
}

func (c *Cli) printHelp() {
	fmt.Println(`
Persistent B-Tree CLI

Available Commands:
  SET <key> <val> Insert a key-value pair into the tree
  DEL <key>       Remove a key-value pair from the tree
  GET <key>       Retrieve the value for key from the tree
  DUMP            Print the tree level by level
  EXIT            Close the tree and terminate this session`)
}

func (c *Cli) printPrompt() {
	fmt.Print("> ")
}

func (c *Cli) processInput(line string) {
	fields := strings.Fields(line)
	if len(fields) < 1 {
		return
	}
	command := strings.ToLower(fields[0])
	switch command {
	default:
		fmt.Printf("Unknown command %q\n", command)
	case "set":
		c.processSetCommand(fields[1:])
	case "del":
		c.processDeleteCommand(fields[1:])
	case "get":
		c.processGetCommand(fields[1:])
	case "dump":
		c.processDumpCommand()
	case "exit":
		if err := c.tree.Close(); err != nil {
			fmt.Println(err)
		}
		os.Exit(0)
	}
}

func (c *Cli) processSetCommand(args []string) {
	if len(args) != 2 {
		fmt.Println("Usage: SET <key> <value>")
		return
	}
	prev, replaced, err := c.tree.Put([]byte(args[0]), []byte(args[1]))
	if err != nil {
		fmt.Println(err)
		return
	}
	if replaced {
		fmt.Printf("Replaced previous value %q.\n", prev)
	}
	fmt.Println(c.tree)
}

func (c *Cli) processDeleteCommand(args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: DEL <key>")
		return
	}
	_, deleted, err := c.tree.Delete([]byte(args[0]))
	if err != nil {
		fmt.Println(err)
		return
	}
	if !deleted {
		fmt.Println("Key not found.")
		return
	}
	fmt.Println(c.tree)
}

func (c *Cli) processGetCommand(args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: GET <key>")
		return
	}
	val, found, err := c.tree.Get([]byte(args[0]))
	if err != nil {
		fmt.Println(err)
		return
	}
	if !found {
		fmt.Println("Key not found.")
		return
	}
	fmt.Println(string(val))
}

func (c *Cli) processDumpCommand() {
	out, err := c.visualizer.Visualize()
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Print(out)
}
