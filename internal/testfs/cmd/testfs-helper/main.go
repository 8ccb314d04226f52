//go:build linux

// testfs-helper runs inside the E2E container to sow and reap file trees.
//
//	testfs-helper sow               read a FileTree as JSON from stdin
//	testfs-helper reap <path>...    write the captured state as JSON
package main

import (
	"fmt"
	"os"

	"github.com/ivoronin/dupehound/internal/testfs"
)

func main() {
	if len(os.Args) < 2 {
		fatalf("usage: testfs-helper <sow|reap> [paths...]")
	}

	var err error
	switch os.Args[1] {
	case "sow":
		// Volumes are real tmpfs mounts, so the tree is sown at "/".
		err = testfs.SowFromReader(os.Stdin, "/")
	case "reap":
		if len(os.Args) < 3 {
			fatalf("usage: testfs-helper reap <path> [path...]")
		}
		err = testfs.ReapToWriter(os.Stdout, os.Args[2:])
	default:
		fatalf("unknown command: %s (use 'sow' or 'reap')", os.Args[1])
	}
	if err != nil {
		fatalf("%s: %v", os.Args[1], err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "testfs-helper: "+format+"\n", args...)
	os.Exit(1)
}
