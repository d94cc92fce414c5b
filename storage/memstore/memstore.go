// Package memstore provides an in-memory CAS and chain store, primarily for
// tests and short-lived tooling. It is safe for concurrent use.
package memstore

import (
	"sync"

	"github.com/ipfs/go-cid"

	"github.com/animanga/agentchain/hashutil"
	"github.com/animanga/agentchain/storage"
)

// Store implements storage.CAS and storage.ChainStore backed by maps.
type Store struct {
	mu     sync.RWMutex
	blocks map[cid.Cid][]byte
	chains map[string][]cid.Cid
}

var (
	_ storage.CAS        = (*Store)(nil)
	_ storage.ChainStore = (*Store)(nil)
)

func New() *Store {
	return &Store{
		blocks: make(map[cid.Cid][]byte),
		chains: make(map[string][]cid.Cid),
	}
}

func (s *Store) Put(bytes []byte) (cid.Cid, error) {
	id, err := hashutil.Sum(bytes)
	if err != nil {
		return cid.Undef, err
	}
	if !id.Defined() {
		return cid.Undef, storage.ErrInvalidCID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blocks[id]; !ok {
		s.blocks[id] = append([]byte(nil), bytes...)
	}
	return id, nil
}

func (s *Store) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blocks[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (s *Store) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blocks[id]
	return ok
}

func (s *Store) AppendHeader(agent string, expectedTip, header cid.Cid) (int, error) {
	if agent == "" {
		return 0, storage.ErrInvalidCID
	}
	if !header.Defined() {
		return 0, storage.ErrInvalidCID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	chain := s.chains[agent]
	var tip cid.Cid
	if len(chain) > 0 {
		tip = chain[len(chain)-1]
	}
	if tip != expectedTip {
		return 0, storage.ErrTipMoved
	}
	s.chains[agent] = append(chain, header)
	return len(chain) + 1, nil
}

func (s *Store) Tip(agent string) (cid.Cid, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain := s.chains[agent]
	if len(chain) == 0 {
		return cid.Undef, false, nil
	}
	return chain[len(chain)-1], true, nil
}

func (s *Store) Headers(agent string) ([]cid.Cid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]cid.Cid(nil), s.chains[agent]...), nil
}

func (s *Store) Len(agent string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chains[agent]), nil
}
