package client

import (
	"context"
	"sort"

	"github.com/google/uuid"
)

type snapshotQuery struct {
	id    uuid.UUID
	all   bool
	reply chan []Snapshot
}

// Hub keeps the latest snapshot of every session. All access goes through
// Run's goroutine.
type Hub struct {
	sessions map[uuid.UUID]Snapshot
	update   chan Snapshot
	remove   chan uuid.UUID
	query    chan snapshotQuery
	done     chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		sessions: make(map[uuid.UUID]Snapshot),
		update:   make(chan Snapshot),
		remove:   make(chan uuid.UUID),
		query:    make(chan snapshotQuery),
		done:     make(chan struct{}),
	}
}

// Run serves the hub until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-h.update:
			h.sessions[snap.ID] = snap
		case id := <-h.remove:
			delete(h.sessions, id)
		case q := <-h.query:
			q.reply <- h.collect(q)
		}
	}
}

func (h *Hub) collect(q snapshotQuery) []Snapshot {
	if !q.all {
		if snap, ok := h.sessions[q.id]; ok {
			return []Snapshot{snap}
		}
		return nil
	}

	out := make([]Snapshot, 0, len(h.sessions))
	for _, snap := range h.sessions {
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Username == out[j].Username {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].Username < out[j].Username
	})
	return out
}

// Observe records snap. It is dropped once the hub has stopped.
func (h *Hub) Observe(snap Snapshot) {
	select {
	case h.update <- snap:
	case <-h.done:
	}
}

func (h *Hub) Remove(id uuid.UUID) {
	select {
	case h.remove <- id:
	case <-h.done:
	}
}

// Sessions returns every known session ordered by username.
func (h *Hub) Sessions(ctx context.Context) ([]Snapshot, error) {
	return h.ask(ctx, snapshotQuery{all: true})
}

// Session returns the snapshot for id.
func (h *Hub) Session(ctx context.Context, id uuid.UUID) (Snapshot, bool, error) {
	snaps, err := h.ask(ctx, snapshotQuery{id: id})
	if err != nil || len(snaps) == 0 {
		return Snapshot{}, false, err
	}
	return snaps[0], true, nil
}

func (h *Hub) ask(ctx context.Context, q snapshotQuery) ([]Snapshot, error) {
	q.reply = make(chan []Snapshot, 1)

	select {
	case h.query <- q:
	case <-h.done:
		return nil, ErrHubStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case snaps := <-q.reply:
		return snaps, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
