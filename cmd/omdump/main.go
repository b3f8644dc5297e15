// Print the structure of an om file: element type, compression,
// dimensions, chunk shape and chunk grid.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	_ "gocloud.dev/blob/fileblob"

	"github.com/gridpoint/omstore/om"
)

func main() {
	flag.Parse()

	if len(flag.Args()) != 1 {
		log.Fatal("Usage: omdump <om-file>")
	}
	path := flag.Args()[0]

	ctx := context.Background()
	r, err := om.Open(ctx, fileURL(path))
	if err != nil {
		log.Fatal("error opening om file: ", err)
	}
	defer r.Close()

	meta := r.Meta()
	layout := r.Grid()

	fmt.Printf("OM File: %s\n", path)
	fmt.Println("=========================================")
	fmt.Printf("  Type:         %s\n", meta.DType)
	fmt.Printf("  Compression:  %s\n", meta.Compression)
	fmt.Printf("  Scale factor: %g\n", meta.ScaleFactor)
	fmt.Printf("  Add offset:   %g\n", meta.AddOffset)
	fmt.Printf("  Chunks:       %d total\n", layout.TotalChunks())
	fmt.Println("  Dimensions:")
	for i, d := range meta.Dims {
		name := d.Name
		if name == "" {
			name = fmt.Sprintf("dim_%d", i)
		}
		fmt.Printf("    %-12s extent %-8d chunk %-8d grid %d\n",
			name, d.Extent, d.Chunk, layout.Counts()[i])
	}
}

func fileURL(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		log.Fatal(err)
	}
	if _, err := os.Stat(abs); err != nil {
		log.Fatal(err)
	}
	return "file://" + filepath.ToSlash(abs)
}
