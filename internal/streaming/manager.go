package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/chatflow/orchestrator/internal/circuitbreaker"
	"github.com/chatflow/orchestrator/internal/metrics"
)

// Event types published by tools and workflows.
const (
	EventMessageUpdate    = "message_update"
	EventTodo             = "todo"
	EventFollowUps        = "follow_ups"
	EventHandoff          = "handoff"
	EventApprovalRequired = "approval_required"
)

// Event is one notification on a workflow's stream.
type Event struct {
	ID         string                 `json:"id,omitempty"`
	WorkflowID string                 `json:"workflow_id"`
	Type       string                 `json:"type"`
	Message    string                 `json:"message,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Manager publishes workflow events to Redis Streams and fans them out to local subscribers.
// Without a Redis client it keeps a bounded in-memory history per workflow.
type Manager struct {
	client  redis.UniversalClient
	logger  *zap.Logger
	maxLen  int64
	breaker *circuitbreaker.CircuitBreaker

	mu    sync.RWMutex
	subs  map[string]map[chan Event]struct{}
	local map[string][]Event
	seq   uint64
}

// NewManager creates a manager. client may be nil.
func NewManager(client redis.UniversalClient, maxLen int64, logger *zap.Logger) *Manager {
	if maxLen <= 0 {
		maxLen = 1000
	}
	return &Manager{
		client:  client,
		logger:  logger,
		maxLen:  maxLen,
		breaker: circuitbreaker.New("redis-streams", circuitbreaker.DefaultConfig(), logger),
		subs:    make(map[string]map[chan Event]struct{}),
		local:   make(map[string][]Event),
	}
}

// StreamKey is the Redis key holding a workflow's events.
func StreamKey(workflowID string) string {
	return "chatflow:events:" + workflowID
}

// Publish appends evt to its workflow stream and returns the assigned id.
func (m *Manager) Publish(ctx context.Context, evt Event) (string, error) {
	if evt.WorkflowID == "" {
		return "", errors.New("event workflow_id is required")
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	id, err := m.append(ctx, evt)
	if err != nil {
		metrics.NotificationsPublished.WithLabelValues(evt.Type, "error").Inc()
		return "", err
	}
	evt.ID = id
	metrics.NotificationsPublished.WithLabelValues(evt.Type, "ok").Inc()

	m.mu.RLock()
	subs := m.subs[evt.WorkflowID]
	chans := make([]chan Event, 0, len(subs))
	for ch := range subs {
		chans = append(chans, ch)
	}
	m.mu.RUnlock()

	for _, ch := range chans {
		select {
		case ch <- evt:
		default:
			// Drop if subscriber is slow
		}
	}
	return id, nil
}

func (m *Manager) append(ctx context.Context, evt Event) (string, error) {
	if m.client == nil {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.seq++
		evt.ID = fmt.Sprintf("%d-0", m.seq)
		hist := append(m.local[evt.WorkflowID], evt)
		if int64(len(hist)) > m.maxLen {
			hist = hist[int64(len(hist))-m.maxLen:]
		}
		m.local[evt.WorkflowID] = hist
		return evt.ID, nil
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}
	var id string
	err = m.breaker.Execute(ctx, func(ctx context.Context) error {
		var xerr error
		id, xerr = m.client.XAdd(ctx, &redis.XAddArgs{
			Stream: StreamKey(evt.WorkflowID),
			MaxLen: m.maxLen,
			Approx: true,
			Values: map[string]interface{}{"type": evt.Type, "event": string(payload)},
		}).Result()
		return xerr
	})
	if err != nil {
		return "", fmt.Errorf("publish event: %w", err)
	}
	return id, nil
}

// Subscribe registers a local subscriber; the caller must drain and Unsubscribe.
func (m *Manager) Subscribe(workflowID string, buffer int) chan Event {
	ch := make(chan Event, buffer)
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subs[workflowID]
	if subs == nil {
		subs = make(map[chan Event]struct{})
		m.subs[workflowID] = subs
	}
	subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes the subscriber channel and closes it.
func (m *Manager) Unsubscribe(workflowID string, ch chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if subs, ok := m.subs[workflowID]; ok {
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(m.subs, workflowID)
		}
	}
}

// ReplaySince returns events after lastID, oldest first. An empty lastID replays everything retained.
func (m *Manager) ReplaySince(ctx context.Context, workflowID, lastID string) ([]Event, error) {
	if m.client == nil {
		m.mu.RLock()
		defer m.mu.RUnlock()
		var out []Event
		for _, e := range m.local[workflowID] {
			if lastID == "" || idAfter(e.ID, lastID) {
				out = append(out, e)
			}
		}
		return out, nil
	}

	start := "-"
	if lastID != "" {
		start = lastID
	}
	msgs, err := m.client.XRange(ctx, StreamKey(workflowID), start, "+").Result()
	if err != nil {
		return nil, fmt.Errorf("replay events: %w", err)
	}
	out := make([]Event, 0, len(msgs))
	for _, msg := range msgs {
		if msg.ID == lastID {
			continue
		}
		if e, ok := m.decode(msg); ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// Tail delivers events after lastID to out until ctx is done. With Redis it blocks on the
// stream so events published by other processes are seen; otherwise it uses local fan-out.
func (m *Manager) Tail(ctx context.Context, workflowID, lastID string, out chan<- Event) error {
	if m.client == nil {
		ch := m.Subscribe(workflowID, 64)
		defer m.Unsubscribe(workflowID, ch)
		backlog, _ := m.ReplaySince(ctx, workflowID, lastID)
		for _, e := range backlog {
			select {
			case out <- e:
			case <-ctx.Done():
				return nil
			}
		}
		for {
			select {
			case <-ctx.Done():
				return nil
			case e := <-ch:
				select {
				case out <- e:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}

	if lastID == "" {
		lastID = "0"
	}
	key := StreamKey(workflowID)
	for {
		if ctx.Err() != nil {
			return nil
		}
		res, err := m.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{key, lastID},
			Count:   100,
			Block:   time.Second,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("tail events: %w", err)
		}
		for _, stream := range res {
			for _, msg := range stream.Messages {
				lastID = msg.ID
				e, ok := m.decode(msg)
				if !ok {
					continue
				}
				select {
				case out <- e:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

func (m *Manager) decode(msg redis.XMessage) (Event, bool) {
	raw, _ := msg.Values["event"].(string)
	var e Event
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		m.logger.Warn("Skipping malformed stream entry", zap.String("id", msg.ID), zap.Error(err))
		return Event{}, false
	}
	e.ID = msg.ID
	return e, true
}

// idAfter compares "<ms>-<seq>" stream ids.
func idAfter(id, last string) bool {
	a1, a2 := splitID(id)
	b1, b2 := splitID(last)
	if a1 != b1 {
		return a1 > b1
	}
	return a2 > b2
}

func splitID(id string) (uint64, uint64) {
	for i := 0; i < len(id); i++ {
		if id[i] == '-' {
			ms, _ := strconv.ParseUint(id[:i], 10, 64)
			seq, _ := strconv.ParseUint(id[i+1:], 10, 64)
			return ms, seq
		}
	}
	ms, _ := strconv.ParseUint(id, 10, 64)
	return ms, 0
}
