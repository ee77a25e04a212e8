package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/chatflow/orchestrator/internal/circuitbreaker"
	"github.com/chatflow/orchestrator/internal/models"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// Config holds database configuration
type Config struct {
	Driver          string
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	Path            string
	MaxConnections  int
	IdleConnections int
	MaxLifetime     time.Duration
}

// DSN renders the driver-specific connection string.
func (c Config) DSN() string {
	if c.Driver == "sqlite3" {
		if c.Path == "" {
			return "file:chatflow.db?_busy_timeout=5000"
		}
		return c.Path
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslmode)
}

// Conversation is the persisted state of one chat workflow.
type Conversation struct {
	WorkflowID string           `db:"workflow_id"`
	Provider   string           `db:"provider"`
	Model      string           `db:"model"`
	Messages   []models.Message `db:"-"`
	UpdatedAt  time.Time        `db:"updated_at"`
}

// Handoff is a persisted context handoff payload.
type Handoff struct {
	ID         string                 `db:"id"`
	WorkflowID string                 `db:"workflow_id"`
	Reason     string                 `db:"reason"`
	Payload    map[string]interface{} `db:"-"`
	CreatedAt  time.Time              `db:"created_at"`
}

// Store persists conversations and handoffs.
type Store struct {
	db      *sqlx.DB
	logger  *zap.Logger
	breaker *circuitbreaker.CircuitBreaker
}

// Open connects, sizes the pool and pings.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "postgres"
	}
	conn, err := sqlx.Open(driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 25
	}
	if cfg.IdleConnections <= 0 {
		cfg.IdleConnections = 5
	}
	if cfg.MaxLifetime <= 0 {
		cfg.MaxLifetime = 5 * time.Minute
	}
	conn.SetMaxOpenConns(cfg.MaxConnections)
	conn.SetMaxIdleConns(cfg.IdleConnections)
	conn.SetConnMaxLifetime(cfg.MaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database client initialized", zap.String("driver", driver))
	return NewStore(conn, logger), nil
}

// NewStore wraps an existing connection.
func NewStore(conn *sqlx.DB, logger *zap.Logger) *Store {
	return &Store{
		db:      conn,
		logger:  logger,
		breaker: circuitbreaker.New("database", circuitbreaker.Config{IsFailure: isConnectionFailure}, logger),
	}
}

// isConnectionFailure keeps missing rows and cancellations from tripping the breaker.
func isConnectionFailure(err error) bool {
	return !errors.Is(err, sql.ErrNoRows) && !errors.Is(err, context.Canceled)
}

// Close closes the pool.
func (s *Store) Close() error { return s.db.Close() }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	workflow_id TEXT PRIMARY KEY,
	provider    TEXT NOT NULL,
	model       TEXT NOT NULL,
	messages    TEXT NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS handoffs (
	id          TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL,
	reason      TEXT NOT NULL,
	payload     TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_handoffs_workflow ON handoffs (workflow_id);
`

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	return s.breaker.Execute(ctx, func(ctx context.Context) error {
		if _, err := s.db.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		return nil
	})
}

// SaveConversation upserts a conversation. Saving twice with the same content is harmless.
func (s *Store) SaveConversation(ctx context.Context, c Conversation) error {
	msgs, err := json.Marshal(c.Messages)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}
	q := s.db.Rebind(`INSERT INTO conversations (workflow_id, provider, model, messages, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (workflow_id) DO UPDATE SET
	provider = excluded.provider,
	model = excluded.model,
	messages = excluded.messages,
	updated_at = excluded.updated_at`)

	return s.breaker.Execute(ctx, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, q, c.WorkflowID, c.Provider, c.Model, string(msgs), c.UpdatedAt)
		if err != nil {
			return fmt.Errorf("save conversation %s: %w", c.WorkflowID, err)
		}
		return nil
	})
}

type conversationRow struct {
	WorkflowID string    `db:"workflow_id"`
	Provider   string    `db:"provider"`
	Model      string    `db:"model"`
	Messages   string    `db:"messages"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// GetConversation loads a conversation by workflow id.
func (s *Store) GetConversation(ctx context.Context, workflowID string) (*Conversation, error) {
	var row conversationRow
	q := s.db.Rebind(`SELECT workflow_id, provider, model, messages, updated_at FROM conversations WHERE workflow_id = ?`)
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.db.GetContext(ctx, &row, q, workflowID)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation %s: %w", workflowID, err)
	}
	c := &Conversation{
		WorkflowID: row.WorkflowID,
		Provider:   row.Provider,
		Model:      row.Model,
		UpdatedAt:  row.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(row.Messages), &c.Messages); err != nil {
		return nil, fmt.Errorf("decode messages for %s: %w", workflowID, err)
	}
	return c, nil
}

// SaveHandoff inserts a handoff; a retried insert with the same id is ignored.
func (s *Store) SaveHandoff(ctx context.Context, h Handoff) error {
	payload, err := json.Marshal(h.Payload)
	if err != nil {
		return fmt.Errorf("marshal handoff: %w", err)
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}
	q := s.db.Rebind(`INSERT INTO handoffs (id, workflow_id, reason, payload, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING`)
	return s.breaker.Execute(ctx, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, q, h.ID, h.WorkflowID, h.Reason, string(payload), h.CreatedAt)
		if err != nil {
			return fmt.Errorf("save handoff %s: %w", h.ID, err)
		}
		return nil
	})
}

type handoffRow struct {
	ID         string    `db:"id"`
	WorkflowID string    `db:"workflow_id"`
	Reason     string    `db:"reason"`
	Payload    string    `db:"payload"`
	CreatedAt  time.Time `db:"created_at"`
}

// ListHandoffs returns a workflow's handoffs, oldest first.
func (s *Store) ListHandoffs(ctx context.Context, workflowID string) ([]Handoff, error) {
	var rows []handoffRow
	q := s.db.Rebind(`SELECT id, workflow_id, reason, payload, created_at FROM handoffs WHERE workflow_id = ? ORDER BY created_at`)
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.db.SelectContext(ctx, &rows, q, workflowID)
	})
	if err != nil {
		return nil, fmt.Errorf("list handoffs %s: %w", workflowID, err)
	}
	out := make([]Handoff, 0, len(rows))
	for _, r := range rows {
		h := Handoff{ID: r.ID, WorkflowID: r.WorkflowID, Reason: r.Reason, CreatedAt: r.CreatedAt}
		if err := json.Unmarshal([]byte(r.Payload), &h.Payload); err != nil {
			return nil, fmt.Errorf("decode handoff %s: %w", r.ID, err)
		}
		out = append(out, h)
	}
	return out, nil
}
