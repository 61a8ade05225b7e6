package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"quizduel-service/internal/app"
	"quizduel-service/internal/domain"
)

// releaseScript deletes each user marker in KEYS that still names room ARGV[1].
var releaseScript = redis.NewScript(`
local released = 0
for _, key in ipairs(KEYS) do
  if redis.call("GET", key) == ARGV[1] then
    released = released + redis.call("DEL", key)
  end
end
return released
`)

// RoomStore is a Redis-aware implementation of app.RoomRepository.
// Notes:
//   - Room actors are process-local, so the rooms themselves live in a local map.
//   - Each participant is claimed with SETNX on duel:user:{id}:room, so a player
//     busy on one instance cannot start a duel on another. duel:room:{id} lists
//     the participants for operators. Routing a user to the owning instance is
//     left to the load balancer.
//   - When Redis is unreachable the claim is skipped and only the local check applies.
type RoomStore struct {
	client *redis.Client
	ttl    time.Duration

	mu     sync.RWMutex
	rooms  map[string]*app.Room
	byUser map[string]*app.Room
}

func NewRoomStore(client *redis.Client, ttl time.Duration) *RoomStore {
	return &RoomStore{
		client: client,
		ttl:    ttl,
		rooms:  make(map[string]*app.Room),
		byUser: make(map[string]*app.Room),
	}
}

func (s *RoomStore) Add(room *app.Room) error {
	if err := s.reserve(room); err != nil {
		return err
	}

	ctx := context.Background()
	if err := s.claim(ctx, room); err != nil {
		s.release(room)
		return err
	}

	pipe := s.client.Pipeline()
	pipe.SAdd(ctx, s.roomKey(room.ID()), toArgs(room.ParticipantIDs())...)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.roomKey(room.ID()), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warn().Err(err).Str("room_id", room.ID()).Msg("set room marker failed")
	}
	return nil
}

// reserve registers the room locally so concurrent Adds on this instance see it.
func (s *RoomStore) reserve(room *app.Room) error {
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

func (s *RoomStore) release(room *app.Room) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.rooms[room.ID()]; !ok || current != room {
		return false
	}
	delete(s.rooms, room.ID())
	for _, userID := range room.ParticipantIDs() {
		if s.byUser[userID] == room {
			delete(s.byUser, userID)
		}
	}
	return true
}

// claim takes every participant's marker for room. A marker held by another
// room means the player is busy elsewhere; claims already taken are released.
func (s *RoomStore) claim(ctx context.Context, room *app.Room) error {
	var claimed []string
	for _, userID := range room.ParticipantIDs() {
		ok, err := s.client.SetNX(ctx, s.userKey(userID), room.ID(), s.ttl).Result()
		if err != nil {
			log.Warn().Err(err).Str("room_id", room.ID()).Msg("claim player marker failed, using local check only")
			return nil
		}
		if ok {
			claimed = append(claimed, s.userKey(userID))
			continue
		}
		holder, held, err := s.ActiveRoomOf(ctx, userID)
		if err == nil && held && holder == room.ID() {
			continue
		}
		if len(claimed) > 0 {
			s.releaseMarkers(ctx, room.ID(), claimed)
		}
		log.Info().Str("room_id", room.ID()).Str("user_id", userID).Str("held_by", holder).Msg("player busy on another instance")
		return domain.ErrPlayerBusy
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

func (s *RoomStore) Remove(room *app.Room) {
	if !s.release(room) {
		return
	}
	ctx := context.Background()
	if err := s.client.Del(ctx, s.roomKey(room.ID())).Err(); err != nil {
		log.Warn().Err(err).Str("room_id", room.ID()).Msg("clear room marker failed")
	}
	keys := make([]string, 0, 2)
	for _, userID := range room.ParticipantIDs() {
		keys = append(keys, s.userKey(userID))
	}
	s.releaseMarkers(ctx, room.ID(), keys)
}

func (s *RoomStore) releaseMarkers(ctx context.Context, roomID string, keys []string) {
	if err := releaseScript.Run(ctx, s.client, keys, roomID).Err(); err != nil {
		log.Warn().Err(err).Str("room_id", roomID).Msg("release player markers failed")
	}
}

func (s *RoomStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// ActiveRoomOf reads the marker claimed for userID, which may belong to another instance.
func (s *RoomStore) ActiveRoomOf(ctx context.Context, userID string) (string, bool, error) {
	roomID, err := s.client.Get(ctx, s.userKey(userID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return roomID, true, nil
}

func (s *RoomStore) roomKey(roomID string) string {
	return "duel:room:" + roomID
}

func (s *RoomStore) userKey(userID string) string {
	return "duel:user:" + userID + ":room"
}

func toArgs(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
