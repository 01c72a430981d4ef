package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// SessionTurn is one question and its answer within a client session.
type SessionTurn struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	AskedAt  time.Time `json:"asked_at"`
}

type list interface {
	AppendCapped(ctx context.Context, key string, value []byte, maxLen int, ttl time.Duration) error
	Range(ctx context.Context, key string) ([][]byte, error)
}

// SessionLog records the turns of a session_id, scoped by namespace.
type SessionLog struct {
	store    list
	maxTurns int
	ttl      time.Duration
}

func NewSessionLog(store list, maxTurns int, ttl time.Duration) *SessionLog {
	return &SessionLog{store: store, maxTurns: maxTurns, ttl: ttl}
}

func sessionKey(namespace, sessionID string) string {
	return fmt.Sprintf("%ssession:%s:%s", KeyPrefix, namespace, sessionID)
}

// Append records a turn, dropping the oldest beyond maxTurns.
func (l *SessionLog) Append(ctx context.Context, namespace, sessionID string, turn SessionTurn) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("marshal session turn: %w", err)
	}
	return l.store.AppendCapped(ctx, sessionKey(namespace, sessionID), data, l.maxTurns, l.ttl)
}

// History returns the recorded turns, oldest first.
func (l *SessionLog) History(ctx context.Context, namespace, sessionID string) ([]SessionTurn, error) {
	raw, err := l.store.Range(ctx, sessionKey(namespace, sessionID))
	if err != nil {
		return nil, err
	}
	turns := make([]SessionTurn, 0, len(raw))
	for _, r := range raw {
		var turn SessionTurn
		if err := json.Unmarshal(r, &turn); err != nil {
			return nil, fmt.Errorf("unmarshal session turn: %w", err)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}
