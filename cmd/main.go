package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/go-faker/faker/v4"

	"btreedb/btree"
	"btreedb/cli"
)

var (
	dbPath         = flag.String("db", "btree.db", "Path of the tree's backing file.")
	degree         = flag.Int("degree", 4, "Minimum degree used when creating a new tree.")
	shouldReset    = flag.Bool("reset", false, "Reset the database by erasing its file before startup.")
	shouldSeed     = flag.Bool("seed", false, "Seed the database using records created with go-faker.")
	seedNumRecords = flag.Int("records", 1000, "Amount of records to seed the database with upon startup.")
)

func eraseDataFile() {
	if err := os.Remove(*dbPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatal(err)
	}
}

func seedTreeWithTestRecords(t *btree.Tree) {
	for i := 0; i < *seedNumRecords; i++ {
		k := []byte(faker.Word() + faker.Word())
		v := []byte(faker.Word() + faker.Word())
		if _, _, err := t.Put(k, v); err != nil {
			log.Fatal(err)
		}
	}
}

// openOrCreate opens an existing tree at -db, creating a fresh one of
// -degree when the file does not exist yet.
func openOrCreate() (*btree.Tree, error) {
	if _, err := os.Stat(*dbPath); errors.Is(err, os.ErrNotExist) {
		return btree.Create(*dbPath, *degree)
	}
	return btree.Open(*dbPath)
}

func main() {
	setupFlags()

	if *shouldReset {
		eraseDataFile()
	}

	t, err := openOrCreate()
	if err != nil {
		log.Fatal(err)
	}

	if *shouldSeed {
		seedTreeWithTestRecords(t)
		log.Printf("Seeded %d records into %q.", *seedNumRecords, *dbPath)
	}

	scanner := bufio.NewScanner(os.Stdin)
	demo := cli.NewCli(scanner, t)
	demo.Start()
}

func setupFlags() {
	flag.Usage = func() {
		fmt.Println("\nPersistent B-Tree CLI\n\nArguments:")
		flag.PrintDefaults()
	}
	flag.Parse()
}
