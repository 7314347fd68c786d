// Package routing implements per-source routing tables and their storage.
package routing

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrMalformedTable is returned when a packed routing table cannot be decoded.
	ErrMalformedTable = errors.New("malformed routing table")
	// ErrMissingEntry is returned when packing a table that lacks an entry for some destination.
	ErrMissingEntry = errors.New("routing table entry missing")
)

// Entry is a single destination of a routing table. Path holds Hops+1 node
// ids, from the table's source to Dst inclusive.
type Entry struct {
	Dst    int
	Path   []int
	Hops   int
	Metric int
	Width  int
}

// NewEntry constructs an Entry from a source-to-destination path.
func NewEntry(dst int, path []int, metric, width int) *Entry {
	p := make([]int, len(path))
	copy(p, path)
	return &Entry{
		Dst:    dst,
		Path:   p,
		Hops:   len(path) - 1,
		Metric: metric,
		Width:  width,
	}
}

// String implements fmt.Stringer for Entry.
func (e *Entry) String() string {
	return e.format(nil)
}

func (e *Entry) format(names []string) string {
	hops := make([]string, len(e.Path))
	for i, pid := range e.Path {
		if names != nil && pid >= 0 && pid < len(names) {
			hops[i] = names[pid]
		} else {
			hops[i] = fmt.Sprint(pid)
		}
	}
	return fmt.Sprintf("entry(%d: %d %d [%s])", e.Dst, e.Metric, e.Width, strings.Join(hops, ", "))
}

// Table is the routing table computed by one source node. Entries is indexed
// by destination pid; the slot of the source itself is nil.
type Table struct {
	Src     int
	Entries []*Entry
}

// NewTable constructs an empty Table for n nodes.
func NewTable(src, n int) *Table {
	return &Table{Src: src, Entries: make([]*Entry, n)}
}

// Size returns the number of nodes the table covers.
func (t *Table) Size() int {
	return len(t.Entries)
}

// AddEntry stores e under its destination. It panics if the slot is taken.
func (t *Table) AddEntry(e *Entry) {
	if t.Entries[e.Dst] != nil {
		panic(fmt.Sprintf("routing: duplicate entry for %d in table of %d", e.Dst, t.Src))
	}
	t.Entries[e.Dst] = e
}

// Entry returns the entry towards dst, or nil.
func (t *Table) Entry(dst int) *Entry {
	if dst < 0 || dst >= len(t.Entries) {
		return nil
	}
	return t.Entries[dst]
}

// NextHop returns the node that follows self on the path from t.Src to dst,
// or -1 if self does not forward traffic for that destination.
func (t *Table) NextHop(self, dst int) int {
	e := t.Entry(dst)
	if e == nil {
		return -1
	}
	for i := 0; i < e.Hops; i++ {
		if e.Path[i] == self {
			return e.Path[i+1]
		}
	}
	return -1
}

// MarshalBinary packs the table: src, entry count, then for every destination
// other than src: dst, hops, metric, width and hops+1 path elements. All
// fields are BigEndian int32.
func (t *Table) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	w := func(v int) {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(int32(v)))
		buf.Write(b[:])
	}
	w(t.Src)
	w(len(t.Entries))
	for pid, e := range t.Entries {
		if pid == t.Src {
			continue
		}
		if e == nil {
			return nil, fmt.Errorf("%s: %d -> %d", ErrMissingEntry, t.Src, pid)
		}
		w(e.Dst)
		w(e.Hops)
		w(e.Metric)
		w(e.Width)
		for i := 0; i <= e.Hops; i++ {
			w(e.Path[i])
		}
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a table packed by MarshalBinary.
func (t *Table) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	rd := func() (int, error) {
		var v int32
		if err := binary.Read(r, binary.BigEndian, &v); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return 0, ErrMalformedTable
			}
			return 0, err
		}
		return int(v), nil
	}

	src, err := rd()
	if err != nil {
		return err
	}
	n, err := rd()
	if err != nil {
		return err
	}
	if n < 0 || src < 0 || src >= n {
		return ErrMalformedTable
	}

	entries := make([]*Entry, n)
	for pid := 0; pid < n; pid++ {
		if pid == src {
			continue
		}
		var f [4]int
		for i := range f {
			if f[i], err = rd(); err != nil {
				return err
			}
		}
		dst, hops := f[0], f[1]
		if dst < 0 || dst >= n || hops < 0 || hops >= n || entries[dst] != nil {
			return ErrMalformedTable
		}
		path := make([]int, hops+1)
		for i := range path {
			if path[i], err = rd(); err != nil {
				return err
			}
		}
		entries[dst] = &Entry{Dst: dst, Path: path, Hops: hops, Metric: f[2], Width: f[3]}
	}

	t.Src = src
	t.Entries = entries
	return nil
}

// String prints the table in the RT(src) BEGIN/END block format.
func (t *Table) String() string {
	return t.Format(nil)
}

// Format prints the table, resolving pids through names when given.
func (t *Table) Format(names []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "RT(%d) BEGIN\n", t.Src)
	for pid, e := range t.Entries {
		if pid == t.Src || e == nil {
			continue
		}
		b.WriteString(e.format(names))
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "RT(%d) END\n", t.Src)
	return b.String()
}
