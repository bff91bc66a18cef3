package engine

import (
	"slices"
	"sort"
)

// Range is a run of deleted clocks [Clock, Clock+Len).
type Range struct {
	Clock uint64
	Len   uint64
}

// DeleteSet records deleted items as per-client clock ranges.
type DeleteSet map[uint64][]Range

// add records a single deleted ID, extending the client's last range when
// the clock is contiguous with it.
func (ds DeleteSet) add(id ID) {
	ds.addRange(id.Client, Range{Clock: id.Clock, Len: 1})
}

func (ds DeleteSet) addRange(client uint64, r Range) {
	ranges := ds[client]
	if n := len(ranges); n > 0 && ranges[n-1].Clock+ranges[n-1].Len == r.Clock {
		ranges[n-1].Len += r.Len
		return
	}
	ds[client] = append(ranges, r)
}

// normalize sorts every client's ranges and merges overlapping or adjacent ones.
func (ds DeleteSet) normalize() {
	for client, ranges := range ds {
		if len(ranges) == 0 {
			delete(ds, client)
			continue
		}
		slices.SortFunc(ranges, func(a, b Range) int {
			switch {
			case a.Clock < b.Clock:
				return -1
			case a.Clock > b.Clock:
				return 1
			}
			return 0
		})
		merged := ranges[:1]
		for _, r := range ranges[1:] {
			last := &merged[len(merged)-1]
			if r.Clock <= last.Clock+last.Len {
				if end := r.Clock + r.Len; end > last.Clock+last.Len {
					last.Len = end - last.Clock
				}
				continue
			}
			merged = append(merged, r)
		}
		ds[client] = merged
	}
}

// Contains reports whether id is covered. The set must be normalized.
func (ds DeleteSet) Contains(id ID) bool {
	ranges := ds[id.Client]
	i := sort.Search(len(ranges), func(i int) bool {
		return ranges[i].Clock+ranges[i].Len > id.Clock
	})
	return i < len(ranges) && ranges[i].Clock <= id.Clock
}

// IsEmpty reports whether nothing was deleted.
func (ds DeleteSet) IsEmpty() bool {
	for _, ranges := range ds {
		if len(ranges) > 0 {
			return false
		}
	}
	return true
}

// merge adds all ranges of other into ds. Call normalize afterwards.
func (ds DeleteSet) merge(other DeleteSet) {
	for client, ranges := range other {
		ds[client] = append(ds[client], ranges...)
	}
}

// Encode serializes the set. The set must be normalized.
func (ds DeleteSet) Encode() []byte {
	e := &encoder{}
	ds.encodeTo(e)
	return e.bytes()
}

func (ds DeleteSet) encodeTo(e *encoder) {
	clients := make([]uint64, 0, len(ds))
	for client, ranges := range ds {
		if len(ranges) > 0 {
			clients = append(clients, client)
		}
	}
	slices.Sort(clients)
	e.writeVarUint(uint64(len(clients)))
	for _, client := range clients {
		ranges := ds[client]
		e.writeVarUint(client)
		e.writeVarUint(uint64(len(ranges)))
		for _, r := range ranges {
			e.writeVarUint(r.Clock)
			e.writeVarUint(r.Len)
		}
	}
}

func decodeDeleteSet(d *decoder) (DeleteSet, error) {
	ds := DeleteSet{}
	n, err := d.readLen()
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		client, err := d.readVarUint()
		if err != nil {
			return nil, err
		}
		count, err := d.readLen()
		if err != nil {
			return nil, err
		}
		for j := 0; j < count; j++ {
			clock, err := d.readVarUint()
			if err != nil {
				return nil, err
			}
			length, err := d.readVarUint()
			if err != nil {
				return nil, err
			}
			if length == 0 {
				return nil, newEncodingError("empty delete range for client %d", client)
			}
			ds[client] = append(ds[client], Range{Clock: clock, Len: length})
		}
	}
	ds.normalize()
	return ds, nil
}
