package interval

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/klauspost/compress/gzip"
)

// PosType is the coordinate type used for reference positions.
type PosType int32

// PosTypeMax is the maximum value that can be represented by a PosType.
const PosTypeMax = math.MaxInt32

// Entry is a region on one chromosome, covering the 0-based half-open
// interval [Start0, End).
type Entry struct {
	ChrName string
	Start0  PosType
	End     PosType
}

// WholeChromosome returns an Entry covering all of chr.
func WholeChromosome(chr string) Entry {
	return Entry{ChrName: chr, End: PosTypeMax - 1}
}

// String renders e in the 1-based inclusive form ParseRegionString reads.
func (e Entry) String() string {
	if e.Start0 == 0 && e.End == PosTypeMax-1 {
		return e.ChrName
	}
	return fmt.Sprintf("%s:%d-%d", e.ChrName, e.Start0+1, e.End)
}

// parsePos parses a coordinate, allowing ',' digit grouping.
func parsePos(s string) (PosType, error) {
	v, err := strconv.ParseInt(strings.Replace(s, ",", "", -1), 10, 32)
	if err != nil {
		return 0, err
	}
	if v < 0 || v >= PosTypeMax {
		return 0, fmt.Errorf("position %s out of range", s)
	}
	return PosType(v), nil
}

// ScanRegions reads a region list: one "<name> <start> <end>" line per
// region, whitespace-delimited, with a 0-based start and an exclusive end.
// Blank lines and lines starting with '#' or "track" are ignored, as are
// columns after the third.  Regions are returned in file order; overlaps
// are not merged.
func ScanRegions(r io.Reader) (entries []Entry, err error) {
	scanner := bufio.NewScanner(r)
	lineIdx := 0
	for scanner.Scan() {
		lineIdx++
		fields := bytes.Fields(scanner.Bytes())
		if len(fields) == 0 || fields[0][0] == '#' || string(fields[0]) == "track" {
			continue
		}
		if len(fields) < 3 {
			return nil, fmt.Errorf("interval.ScanRegions: line %d has %d fields, want 3: %q", lineIdx, len(fields), scanner.Text())
		}
		e := Entry{ChrName: string(fields[0])}
		if e.Start0, err = parsePos(gunsafe.BytesToString(fields[1])); err != nil {
			return nil, fmt.Errorf("interval.ScanRegions: line %d: %v", lineIdx, err)
		}
		if e.End, err = parsePos(gunsafe.BytesToString(fields[2])); err != nil {
			return nil, fmt.Errorf("interval.ScanRegions: line %d: %v", lineIdx, err)
		}
		if e.End < e.Start0 {
			return nil, fmt.Errorf("interval.ScanRegions: line %d: end %d precedes start %d", lineIdx, e.End, e.Start0)
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}

// ReadRegions is a wrapper for ScanRegions that takes a path instead of an
// io.Reader.  Gzipped files are detected by extension.
func ReadRegions(ctx context.Context, path string) (entries []Entry, err error) {
	var infile file.File
	if infile, err = file.Open(ctx, path); err != nil {
		return
	}
	defer file.CloseAndReport(ctx, infile, &err)
	reader := io.Reader(infile.Reader(ctx))
	if fileio.DetermineType(path) == fileio.Gzip {
		var gz *gzip.Reader
		if gz, err = gzip.NewReader(reader); err != nil {
			return
		}
		defer gz.Close() // nolint: errcheck
		reader = gz
	}
	return ScanRegions(reader)
}

// ParseRegionString parses a region string of one of the forms
//   [contig ID]:[1-based first pos]-[last pos]
//   [contig ID]:[1-based pos]
//   [contig ID]
// Positions may use ',' digit grouping.  A bare contig ID covers the whole
// contig, see WholeChromosome.
func ParseRegionString(region string) (Entry, error) {
	if region == "" {
		return Entry{}, fmt.Errorf("interval.ParseRegionString: empty region string")
	}
	parts := strings.SplitN(region, ":", 2)
	if parts[0] == "" {
		return Entry{}, fmt.Errorf("interval.ParseRegionString: empty contig ID in %q", region)
	}
	if len(parts) == 1 {
		return WholeChromosome(parts[0]), nil
	}
	bounds := strings.SplitN(parts[1], "-", 2)
	first, err := parsePos(bounds[0])
	if err != nil || first == 0 {
		return Entry{}, fmt.Errorf("interval.ParseRegionString: bad start position in %q", region)
	}
	last := first
	if len(bounds) == 2 {
		if last, err = parsePos(bounds[1]); err != nil {
			return Entry{}, fmt.Errorf("interval.ParseRegionString: bad end position in %q", region)
		}
		if last < first {
			return Entry{}, fmt.Errorf("interval.ParseRegionString: end precedes start in %q", region)
		}
	}
	return Entry{ChrName: parts[0], Start0: first - 1, End: last}, nil
}
