package engine

import "slices"

// blockStore holds every item ever integrated, per client, indexed by clock.
// Every item has length one, so an item's clock is its index.
type blockStore struct {
	clients map[uint64][]*Item
}

func newBlockStore() *blockStore {
	return &blockStore{clients: make(map[uint64][]*Item)}
}

// state returns the next clock expected from client.
func (s *blockStore) state(client uint64) uint64 {
	return uint64(len(s.clients[client]))
}

// contains reports whether the item with id has been integrated.
func (s *blockStore) contains(id ID) bool {
	return id.Clock < s.state(id.Client)
}

// find returns the item with id, nil if unknown.
func (s *blockStore) find(id ID) *Item {
	items := s.clients[id.Client]
	if id.Clock >= uint64(len(items)) {
		return nil
	}
	return items[id.Clock]
}

// add appends an item. Its clock must equal the client's current state.
func (s *blockStore) add(it *Item) {
	items := s.clients[it.ID.Client]
	if it.ID.Clock != uint64(len(items)) {
		panic("engine: block store clock gap")
	}
	s.clients[it.ID.Client] = append(items, it)
}

func (s *blockStore) stateVector() StateVector {
	sv := make(StateVector, len(s.clients))
	for client, items := range s.clients {
		sv[client] = uint64(len(items))
	}
	return sv
}

func (s *blockStore) sortedClients() []uint64 {
	clients := make([]uint64, 0, len(s.clients))
	for client := range s.clients {
		clients = append(clients, client)
	}
	slices.Sort(clients)
	return clients
}

// deleteSet scans the store for deleted items.
func (s *blockStore) deleteSet() DeleteSet {
	ds := DeleteSet{}
	for _, client := range s.sortedClients() {
		for _, it := range s.clients[client] {
			if it.Deleted {
				ds.add(it.ID)
			}
		}
	}
	return ds
}
