package batch

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"
)

// MaxPartSize is the maximum number of files in one part Download.
const MaxPartSize = 10000

// DefaultNameLayout formats the default base name, e.g. "2024-03-01T14:05:09".
const DefaultNameLayout = "2006-01-02T15:04:05"

// maxLineBytes bounds a single path line.
const maxLineBytes = 1024 * 1024

// Chunker reads newline-delimited paths and yields them in parts.
// Surrounding whitespace is trimmed and blank lines are skipped.
type Chunker struct {
	scanner *bufio.Scanner
	size    int
	done    bool
}

// NewChunker creates a chunker yielding parts of at most size paths.
// A size outside (0, MaxPartSize] is replaced by MaxPartSize.
func NewChunker(r io.Reader, size int) *Chunker {
	if size <= 0 || size > MaxPartSize {
		size = MaxPartSize
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	return &Chunker{
		scanner: scanner,
		size:    size,
	}
}

// Next returns the next part. It returns io.EOF once the input is exhausted
// and no paths remain; a final short part is returned before that.
func (c *Chunker) Next() ([]string, error) {
	if c.done {
		return nil, io.EOF
	}

	part := make([]string, 0, c.size)
	for len(part) < c.size && c.scanner.Scan() {
		line := strings.TrimSpace(c.scanner.Text())
		if line == "" {
			continue
		}
		part = append(part, line)
	}

	if len(part) < c.size {
		c.done = true
		if err := c.scanner.Err(); err != nil {
			return nil, fmt.Errorf("read paths: %w", err)
		}
	}

	if len(part) == 0 {
		return nil, io.EOF
	}
	return part, nil
}

// Split partitions paths into parts of at most size entries, preserving order.
// The returned parts share the backing array of paths.
func Split(paths []string, size int) [][]string {
	if size <= 0 || size > MaxPartSize {
		size = MaxPartSize
	}

	parts := make([][]string, 0, (len(paths)+size-1)/size)
	for start := 0; start < len(paths); start += size {
		end := start + size
		if end > len(paths) {
			end = len(paths)
		}
		parts = append(parts, paths[start:end:end])
	}
	return parts
}

// PartName returns the Download name of part n (counting from 1).
func PartName(base string, n int) string {
	return fmt.Sprintf("%s_part_%d", base, n)
}

// DefaultName returns the base name used when none is given.
func DefaultName(now time.Time) string {
	return now.Format(DefaultNameLayout)
}
