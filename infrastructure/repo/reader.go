package repo

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultReaderCacheSize = 256

// Reader reads indexed files as lines. Contents are cached by path, size
// and modification time.
type Reader struct {
	snapshot *Snapshot
	cache    *lru.Cache[string, []string]
}

// NewReader creates a reader over snapshot. size bounds the number of
// cached files.
func NewReader(snapshot *Snapshot, size int) (*Reader, error) {
	if size <= 0 {
		size = defaultReaderCacheSize
	}
	c, err := lru.New[string, []string](size)
	if err != nil {
		return nil, fmt.Errorf("create line cache: %w", err)
	}
	return &Reader{snapshot: snapshot, cache: c}, nil
}

// Index returns the index paths resolve against: the one pinned in ctx,
// or the latest one.
func (r *Reader) Index(ctx context.Context) *Index {
	if idx, ok := IndexFrom(ctx); ok {
		return idx
	}
	return r.snapshot.Current()
}

// Lines returns the file's lines, each keeping its line terminator.
func (r *Reader) Lines(ctx context.Context, p string) ([]string, error) {
	abs, err := r.Index(ctx).Abs(p)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	key := abs + "@" + strconv.FormatInt(info.Size(), 10) + "@" + strconv.FormatInt(info.ModTime().UnixNano(), 10)
	if lines, ok := r.cache.Get(key); ok {
		return lines, nil
	}

	data, err := os.ReadFile(abs) // #nosec G304 -- resolved through the index
	if err != nil {
		return nil, err
	}
	lines := splitLines(data)
	r.cache.Add(key, lines)
	return lines, nil
}

// Source returns the file content.
func (r *Reader) Source(ctx context.Context, p string) ([]byte, error) {
	abs, err := r.Index(ctx).Abs(p)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(abs) // #nosec G304 -- resolved through the index
}

// Window renders lines [start, end] of a file, numbered from 1. At most
// limit lines are shown; limit <= 0 shows them all. end <= 0 reads to the
// end of the file.
func (r *Reader) Window(ctx context.Context, p string, start, end, limit int) (string, error) {
	if end >= 1 && end < start {
		return "", errors.New("`end_line` should be greater than or equal to `start_line`")
	}
	if start < 1 {
		start = 1
	}

	lines, err := r.Lines(ctx, p)
	if err != nil {
		return "", err
	}
	total := len(lines)
	if end <= 0 || end > total {
		end = total
	}
	if start > total {
		return "", fmt.Errorf("The file only contains %d lines", total)
	}
	note := ""
	if limit > 0 && end-start+1 > limit {
		end = start + limit - 1
		note = fmt.Sprintf(" (Code snippet too long; only %d lines shown)", limit)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[File: %s (%d lines total)]%s\n", p, total, note)
	if start > 1 {
		fmt.Fprintf(&b, "(%d line(s) above)\n", start-1)
	}
	for i := start; i <= end; i++ {
		line := lines[i-1]
		fmt.Fprintf(&b, "%d:%s", i, line)
		if !strings.HasSuffix(line, "\n") {
			b.WriteByte('\n')
		}
	}
	if end < total {
		fmt.Fprintf(&b, "(%d lines below)\n", total-end)
	}
	return b.String(), nil
}

func splitLines(data []byte) []string {
	var lines []string
	br := bufio.NewReader(bytes.NewReader(data))
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			lines = append(lines, line)
		}
		if err != nil {
			return lines
		}
	}
}
