package engine

import (
	"maps"
	"slices"
)

// StateVector maps each client to the next clock this replica expects from
// it, which is also the number of items it holds from that client.
type StateVector map[uint64]uint64

// Get returns the clock for client, 0 when unknown.
func (sv StateVector) Get(client uint64) uint64 {
	return sv[client]
}

// Clone returns an independent copy.
func (sv StateVector) Clone() StateVector {
	return maps.Clone(sv)
}

// Equal reports whether both vectors describe the same state.
// Clients with clock 0 are treated as absent.
func (sv StateVector) Equal(other StateVector) bool {
	for client, clock := range sv {
		if other[client] != clock {
			return false
		}
	}
	for client, clock := range other {
		if sv[client] != clock {
			return false
		}
	}
	return true
}

// Clients returns the clients with a non-zero clock in ascending order.
func (sv StateVector) Clients() []uint64 {
	clients := make([]uint64, 0, len(sv))
	for client, clock := range sv {
		if clock > 0 {
			clients = append(clients, client)
		}
	}
	slices.Sort(clients)
	return clients
}

// Encode serializes the vector as varuint(#entries) {varuint(client) varuint(clock)}.
// Entries are written in ascending client order so equal vectors encode identically.
func (sv StateVector) Encode() []byte {
	e := &encoder{}
	sv.encodeTo(e)
	return e.bytes()
}

func (sv StateVector) encodeTo(e *encoder) {
	clients := sv.Clients()
	e.writeVarUint(uint64(len(clients)))
	for _, client := range clients {
		e.writeVarUint(client)
		e.writeVarUint(sv[client])
	}
}

// DecodeStateVector parses an encoded state vector.
// An empty input is the empty vector.
func DecodeStateVector(data []byte) (StateVector, error) {
	sv := StateVector{}
	if len(data) == 0 {
		return sv, nil
	}
	d := newDecoder(data)
	n, err := d.readLen()
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		client, err := d.readVarUint()
		if err != nil {
			return nil, err
		}
		clock, err := d.readVarUint()
		if err != nil {
			return nil, err
		}
		sv[client] = clock
	}
	if !d.done() {
		return nil, newEncodingError("state vector has %d trailing bytes", d.remaining())
	}
	return sv, nil
}
