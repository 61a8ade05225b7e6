package memory

import (
	"sync"

	"quizduel-service/internal/app"
	"quizduel-service/internal/domain"
)

// RoomStore is an in-memory implementation of app.RoomRepository.
// It also indexes rooms by participant so a user is never in two rooms at once.
type RoomStore struct {
	mu     sync.RWMutex
	rooms  map[string]*app.Room
	byUser map[string]*app.Room
}

func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms:  make(map[string]*app.Room),
		byUser: make(map[string]*app.Room),
	}
}

func (s *RoomStore) Add(room *app.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.ID()]; ok {
		return domain.ErrRoomExists
	}
	for _, userID := range room.ParticipantIDs() {
		if _, ok := s.byUser[userID]; ok {
			return domain.ErrPlayerBusy
		}
	}
	s.rooms[room.ID()] = room
	for _, userID := range room.ParticipantIDs() {
		s.byUser[userID] = room
	}
	return nil
}

func (s *RoomStore) Get(roomID string) (*app.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	return room, ok
}

func (s *RoomStore) GetByUser(userID string) (*app.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.byUser[userID]
	return room, ok
}

// Remove drops the room only if the registered instance is the same one.
func (s *RoomStore) Remove(room *app.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.rooms[room.ID()]; !ok || current != room {
		return
	}
	delete(s.rooms, room.ID())
	for _, userID := range room.ParticipantIDs() {
		if s.byUser[userID] == room {
			delete(s.byUser, userID)
		}
	}
}

func (s *RoomStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}
