package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dylanconnolly/segon-client/client"
	"github.com/dylanconnolly/segon-client/trivia"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Session is a stored session as read back from its hash.
type Session struct {
	ID        uuid.UUID    `json:"id"`
	Username  string       `json:"username"`
	Phase     trivia.Phase `json:"phase"`
	Connected bool         `json:"connected"`
	Score     float64      `json:"score"`
	UpdatedAt time.Time    `json:"updated_at"`
}

type Standing struct {
	Username string  `json:"username"`
	Score    float64 `json:"score"`
}

func toRedisHash(snap client.Snapshot) map[string]interface{} {
	h := map[string]interface{}{
		"id":         snap.ID.String(),
		"username":   snap.Username,
		"phase":      string(snap.State.Phase),
		"connected":  snap.Connected,
		"score":      snap.State.Score,
		"updated_at": snap.State.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if snap.State.Question != nil {
		h["question"] = snap.State.Question.Question
	}
	if snap.State.Answered.Valid() {
		h["answered"] = snap.State.Answered.String()
	}

	return h
}

func fromRedisHash(fields map[string]string) (Session, error) {
	id, err := uuid.Parse(fields["id"])
	if err != nil {
		return Session{}, fmt.Errorf("parse session id: %w", err)
	}

	s := Session{
		ID:       id,
		Username: fields["username"],
		Phase:    trivia.Phase(fields["phase"]),
	}
	// go-redis stores bools as "1" and "0"
	s.Connected, _ = strconv.ParseBool(fields["connected"])
	if v := fields["score"]; v != "" {
		if s.Score, err = strconv.ParseFloat(v, 64); err != nil {
			return Session{}, fmt.Errorf("parse score: %w", err)
		}
	}
	if v := fields["updated_at"]; v != "" {
		if s.UpdatedAt, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return Session{}, fmt.Errorf("parse updated_at: %w", err)
		}
	}

	return s, nil
}

// Observe stores snap and, once the session ended, its score on the
// leaderboard. Failures are logged.
func (s *ResultStore) Observe(snap client.Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := s.Save(ctx, snap); err != nil {
		s.log.Error().Err(err).Str("session", snap.ID.String()).Msg("could not store session")
	}
}

func (s *ResultStore) Save(ctx context.Context, snap client.Snapshot) error {
	key := fmt.Sprintf(sessionKey, snap.ID)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, toRedisHash(snap))
		if snap.State.Phase == trivia.PhaseEnded {
			pipe.ZAdd(ctx, leaderboardKey, redis.Z{
				Score:  snap.State.Score,
				Member: snap.Username,
			})
		}
		return nil
	})

	return err
}

func (s *ResultStore) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	fields, err := s.client.HGetAll(ctx, fmt.Sprintf(sessionKey, id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, redis.Nil
	}

	sess, err := fromRedisHash(fields)
	if err != nil {
		return nil, err
	}

	return &sess, nil
}

func (s *ResultStore) GetAllSessions(ctx context.Context) ([]Session, error) {
	var sessions []Session

	iter := s.client.Scan(ctx, 0, sessionPattern, 0).Iterator()
	for iter.Next(ctx) {
		id, err := uuid.Parse(strings.TrimPrefix(iter.Val(), "session:"))
		// not a session hash
		if err != nil {
			continue
		}
		sess, err := s.GetSession(ctx, id)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

// Leaderboard returns the n best final scores, highest first.
func (s *ResultStore) Leaderboard(ctx context.Context, n int64) ([]Standing, error) {
	entries, err := s.client.ZRevRangeWithScores(ctx, leaderboardKey, 0, n-1).Result()
	if err != nil {
		return nil, err
	}

	standings := make([]Standing, 0, len(entries))
	for _, z := range entries {
		name, _ := z.Member.(string)
		standings = append(standings, Standing{Username: name, Score: z.Score})
	}

	return standings, nil
}
