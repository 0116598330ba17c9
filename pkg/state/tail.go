package state

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

const (
	defaultTailLines = 20
	defaultTailBytes = 2 << 20
)

// TailLines returns up to n trailing lines of the log at path. Only the last
// maxBytes of the file are scanned; a line cut by that window is skipped.
func TailLines(path string, n int, maxBytes int64) ([]string, error) {
	if path == "" {
		return nil, errors.New("tail: empty log path")
	}
	if n <= 0 {
		n = defaultTailLines
	}
	if maxBytes <= 0 {
		maxBytes = defaultTailBytes
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open log %s", path)
	}
	defer func() { _ = f.Close() }()

	fi, err := f.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "stat log %s", path)
	}
	offset := max(fi.Size()-maxBytes, 0)
	skipFirst := offset > 0 && !atLineStart(f, offset)

	sc := bufio.NewScanner(io.NewSectionReader(f, offset, fi.Size()-offset))
	sc.Buffer(make([]byte, 0, 64<<10), int(maxBytes)+1)

	ring := make([]string, 0, n)
	for sc.Scan() {
		if skipFirst {
			skipFirst = false
			continue
		}
		line := strings.TrimSuffix(sc.Text(), "\r")
		if len(ring) == n {
			ring = append(ring[:0], ring[1:]...)
		}
		ring = append(ring, line)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "scan log %s", path)
	}
	if len(ring) == 0 {
		return nil, nil
	}
	return ring, nil
}

func atLineStart(r io.ReaderAt, offset int64) bool {
	var prev [1]byte
	if _, err := r.ReadAt(prev[:], offset-1); err != nil {
		return false
	}
	return prev[0] == '\n'
}
