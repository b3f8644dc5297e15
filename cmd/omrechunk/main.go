// Convert an om file between chunk layouts, typically from a
// temporal-major [lat, lon, time] layout into a spatial-major
// [time, lat, lon] one with single-timestep chunks.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	_ "gocloud.dev/blob/fileblob"

	"github.com/gridpoint/omstore/om"
	"github.com/gridpoint/omstore/rechunk"
)

var (
	permFlag    = flag.String("perm", "time-to-front", "axis order: time-to-front, time-to-back, keep, or a comma list like 2,0,1")
	chunksFlag  = flag.String("chunks", "", "destination chunk shape, comma separated (default: permuted source chunks)")
	workersFlag = flag.Int("workers", 0, "parallel chunk conversions (default: GOMAXPROCS)")
	windowFlag  = flag.Int("window", rechunk.DefaultWindowElems, "max decoded source elements held in memory")
	verboseFlag = flag.Bool("v", false, "log every converted chunk")
)

func main() {
	flag.Parse()

	if len(flag.Args()) != 2 {
		log.Fatal("Usage: omrechunk [flags] <input.om> <output.om>")
	}
	inPath, outPath := flag.Args()[0], flag.Args()[1]

	level := zerolog.InfoLevel
	if *verboseFlag {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	src, err := om.Open(ctx, fileURL(inPath))
	if err != nil {
		log.Fatal("error opening input: ", err)
	}
	defer src.Close()

	ndims := len(src.Meta().Dims)
	perm, err := parsePerm(*permFlag, ndims)
	if err != nil {
		log.Fatal(err)
	}
	chunks, err := parseShape(*chunksFlag, ndims)
	if err != nil {
		log.Fatal(err)
	}

	err = rechunk.Convert(ctx, src, outPath, rechunk.Options{
		Perm:        perm,
		ChunkShape:  chunks,
		Workers:     *workersFlag,
		WindowElems: *windowFlag,
		Logger:      &logger,
	})
	if err != nil {
		log.Fatal("conversion failed: ", err)
	}
}

func parsePerm(s string, ndims int) ([]int, error) {
	switch s {
	case "time-to-front":
		return rechunk.TimeToFront(ndims), nil
	case "time-to-back":
		return rechunk.TimeToBack(ndims), nil
	case "keep":
		return nil, nil
	default:
		return parseShape(s, ndims)
	}
}

func parseShape(s string, ndims int) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != ndims {
		return nil, fmt.Errorf("%q has %d entries, array has %d dimensions", s, len(parts), ndims)
	}
	out := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid entry %q in %q", p, s)
		}
		out[i] = v
	}
	return out, nil
}

func fileURL(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		log.Fatal(err)
	}
	return "file://" + filepath.ToSlash(abs)
}
