package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Member is one online participant in a room roster.
type Member struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Name string `json:"name"`
}

// Presence keeps the per-room online roster in a Redis hash keyed by
// participant id, so rosters survive process restarts and are shared by
// every gateway instance.
type Presence struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewPresence builds the roster store. A nil client disables presence.
func NewPresence(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Presence {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Presence{client: client, ttl: ttl, logger: logger}
}

func presenceKey(roomID string) string {
	return fmt.Sprintf("chat:room:%s:online", roomID)
}

// Add records a participant as online in a room.
func (p *Presence) Add(ctx context.Context, roomID string, member Member) {
	if p == nil || p.client == nil {
		return
	}
	data, err := json.Marshal(member)
	if err != nil {
		return
	}
	key := presenceKey(roomID)
	if err := p.client.HSet(ctx, key, member.ID, data).Err(); err != nil {
		p.logger.Warn("presence add failed", zap.String("room", roomID), zap.Error(err))
		return
	}
	p.client.Expire(ctx, key, p.ttl)
}

// Remove drops a participant from a room roster.
func (p *Presence) Remove(ctx context.Context, roomID, memberID string) {
	if p == nil || p.client == nil {
		return
	}
	if err := p.client.HDel(ctx, presenceKey(roomID), memberID).Err(); err != nil {
		p.logger.Warn("presence remove failed", zap.String("room", roomID), zap.Error(err))
	}
}

// List returns the current roster for a room.
func (p *Presence) List(ctx context.Context, roomID string) ([]Member, error) {
	if p == nil || p.client == nil {
		return []Member{}, nil
	}
	result, err := p.client.HGetAll(ctx, presenceKey(roomID)).Result()
	if err != nil {
		return nil, err
	}
	members := make([]Member, 0, len(result))
	for _, data := range result {
		var member Member
		if err := json.Unmarshal([]byte(data), &member); err != nil {
			continue
		}
		members = append(members, member)
	}
	return members, nil
}
