package server

import (
	"sync"

	"github.com/maswad702/Database-Extraction-Chatbot/internal/pipeline"
)

// Store keeps conversations in memory. Lock serializes the turns of one
// conversation while others proceed.
type Store struct {
	mu    sync.Mutex
	convs map[string]*entry
}

type entry struct {
	turn  sync.Mutex
	state pipeline.State
}

func NewStore() *Store {
	return &Store{convs: make(map[string]*entry)}
}

// Get returns the latest state of a conversation.
func (s *Store) Get(id string) (pipeline.State, bool) {
	s.mu.Lock()
	e, ok := s.convs[id]
	s.mu.Unlock()
	if !ok {
		return pipeline.State{}, false
	}
	e.turn.Lock()
	defer e.turn.Unlock()
	return e.state, true
}

// Lock takes the turn of a conversation, creating it with init when it is
// new. The returned function stores the next state and releases the turn.
func (s *Store) Lock(id string, init func() pipeline.State) (pipeline.State, func(pipeline.State), bool) {
	s.mu.Lock()
	e, ok := s.convs[id]
	if !ok {
		if init == nil {
			s.mu.Unlock()
			return pipeline.State{}, nil, false
		}
		e = &entry{state: init()}
		s.convs[e.state.ID] = e
	}
	s.mu.Unlock()

	e.turn.Lock()
	return e.state, func(next pipeline.State) {
		e.state = next
		e.turn.Unlock()
	}, true
}

// Len is the number of conversations held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.convs)
}
