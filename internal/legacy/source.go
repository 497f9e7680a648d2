// Package legacy provides read-only access to the legacy hashed key-value
// databases that are upgraded into the relational store.
//
// A Source yields every (key, value) pair exactly once in whatever order the
// underlying store provides. A Ref describes where a source lives and opens
// it on demand, so callers can scope the open/close pair to one family.
package legacy

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/Failure404/xmpp-cloud-auth/pkg/types"
)

// Source iterates the pairs of an opened legacy database.
type Source interface {
	// Each calls fn for every pair. Iteration stops at the first error
	// returned by fn, which Each returns unchanged. key and value are only
	// valid for the duration of the call.
	Each(fn func(key, value []byte) error) error

	// Close releases the source. Close is idempotent.
	Close() error
}

// Ref locates a legacy source. A nil Ref means no source is configured.
type Ref interface {
	Open() (Source, error)
	String() string
}

// Map returns a Ref over an in-memory mapping. The mapping is copied when
// opened, so later changes to m are not observed by open sources.
func Map(m map[string]string) Ref {
	return mapRef(m)
}

type mapRef map[string]string

func (m mapRef) Open() (Source, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([][2][]byte, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, [2][]byte{[]byte(k), []byte(m[k])})
	}
	return &memSource{pairs: pairs}, nil
}

func (m mapRef) String() string {
	return fmt.Sprintf("memory(%d entries)", len(m))
}

// memSource holds decoded pairs in memory. It backs both Map and the
// db_dump text format.
type memSource struct {
	pairs  [][2][]byte
	closed bool
}

func (s *memSource) Each(fn func(key, value []byte) error) error {
	if s.closed {
		return fmt.Errorf("%w: source is closed", types.ErrSourceUnavailable)
	}
	for _, p := range s.pairs {
		if err := fn(p[0], p[1]); err != nil {
			return err
		}
	}
	return nil
}

func (s *memSource) Close() error {
	s.closed = true
	s.pairs = nil
	return nil
}

// Path returns a Ref to a legacy database file. An empty path returns nil.
//
// The file format is detected when the Ref is opened: text produced by
// db_dump (printable or bytevalue), or a bbolt database. Native Berkeley DB
// hash files cannot be read directly and must be converted with db_dump -p
// first.
func Path(path string) Ref {
	if path == "" {
		return nil
	}
	return pathRef(path)
}

type pathRef string

func (p pathRef) String() string { return string(p) }

// ErrUnsupportedFormat is returned, wrapped in types.ErrSourceUnavailable,
// when a file is neither db_dump output nor a bbolt database.
var ErrUnsupportedFormat = errors.New("unsupported legacy database format (convert with db_dump -p)")

func (p pathRef) Open() (Source, error) {
	path := string(p)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrSourceUnavailable, err)
	}

	head := make([]byte, boltHeaderLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		f.Close()
		return nil, fmt.Errorf("%w: reading %s: %w", types.ErrSourceUnavailable, path, err)
	}
	head = head[:n]

	switch {
	case isDumpHeader(head):
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: %w", types.ErrSourceUnavailable, err)
		}
		pairs, err := parseDump(bufio.NewReader(f))
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", types.ErrSourceUnavailable, path, err)
		}
		return &memSource{pairs: pairs}, nil
	case isBoltHeader(head):
		f.Close()
		return openBolt(path)
	default:
		f.Close()
		return nil, fmt.Errorf("%w: %s: %w", types.ErrSourceUnavailable, path, ErrUnsupportedFormat)
	}
}

func isDumpHeader(head []byte) bool {
	return bytes.HasPrefix(head, []byte("VERSION=")) || bytes.HasPrefix(head, []byte("format="))
}
