package thread

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// threadCols is the standard SELECT column list for scanThread.
const threadCols = `id, mode, COALESCE(pinned_text, ''), metadata,
	message_count, created_at, updated_at`

// messageCols is the standard SELECT column list for scanMessages.
const messageCols = `id, thread_id, role, content, context_refs, status,
	sequence_number, created_at`

// Store manages thread persistence with a PostgreSQL backend.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a thread Store.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// validateMode checks a mode/pinned-text pair. Selected-text mode without
// pinned text would make every question unanswerable, so it is rejected
// here and by a database CHECK constraint.
func validateMode(mode Mode, pinnedText string) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	if mode == ModeSelectedText && strings.TrimSpace(pinnedText) == "" {
		return fmt.Errorf("%w: selected_text mode requires pinned text", ErrInvalidMode)
	}
	return nil
}

// Create creates a new thread. An empty mode defaults to full_book.
func (s *Store) Create(ctx context.Context, mode Mode, pinnedText string, metadata map[string]any) (*Thread, error) {
	if mode == "" {
		mode = ModeFullBook
	}
	if err := validateMode(mode, pinnedText); err != nil {
		return nil, err
	}
	if metadata == nil {
		metadata = map[string]any{}
	}

	var pinned *string
	if pinnedText != "" {
		pinned = &pinnedText
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO threads (mode, pinned_text, metadata)
		 VALUES ($1, $2, $3)
		 RETURNING `+threadCols,
		string(mode), pinned, metadata,
	)
	t, err := scanThread(row)
	if err != nil {
		return nil, fmt.Errorf("creating thread: %w", err)
	}

	s.logger.Debug("created thread", "id", t.ID, "mode", t.Mode)
	return t, nil
}

// Get retrieves a thread by ID. Returns ErrNotFound if it does not exist.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Thread, error) {
	t, err := fetchThread(ctx, s.pool, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("thread %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting thread %s: %w", id, err)
	}
	return t, nil
}

// List returns threads ordered by updated_at descending, with pagination.
func (s *Store) List(ctx context.Context, limit, offset int) ([]*Thread, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+threadCols+` FROM threads
		 ORDER BY updated_at DESC
		 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing threads: %w", err)
	}
	defer rows.Close()

	var threads []*Thread
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning thread: %w", err)
		}
		threads = append(threads, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating threads: %w", err)
	}
	return threads, nil
}

// Delete removes a thread and, via ON DELETE CASCADE, its messages.
// Returns ErrNotFound if the thread does not exist.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM threads WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting thread %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("thread %s: %w", id, ErrNotFound)
	}
	return nil
}

// SetMode switches a thread's context-resolution mode. The change is a
// single atomic UPDATE: a concurrent reader sees either the old mode with
// the old pinned text or the new pair, never a mix.
//
// Switching to full_book clears any pinned text.
func (s *Store) SetMode(ctx context.Context, id uuid.UUID, mode Mode, pinnedText string) error {
	if err := validateMode(mode, pinnedText); err != nil {
		return err
	}

	var pinned *string
	if mode == ModeSelectedText {
		pinned = &pinnedText
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE threads
		 SET mode = $1, pinned_text = $2, updated_at = now()
		 WHERE id = $3`,
		string(mode), pinned, id,
	)
	if err != nil {
		return fmt.Errorf("setting mode for thread %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("thread %s: %w", id, ErrNotFound)
	}

	s.logger.Debug("set thread mode", "id", id, "mode", mode)
	return nil
}

// Append writes messages to a thread atomically, assigning consecutive
// sequence numbers. A user question and its assistant answer appended in
// one call are therefore adjacent in the transcript even under concurrent
// writers to other threads.
//
// The thread row is locked with SELECT ... FOR UPDATE so two transactions
// cannot read the same max sequence number and collide.
func (s *Store) Append(ctx context.Context, threadID uuid.UUID, messages []*Message) error {
	if len(messages) == 0 {
		return nil
	}
	for i, m := range messages {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			return fmt.Errorf("message %d: invalid role %q", i, m.Role)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", rbErr)
		}
	}()

	// Serialize appends per thread.
	var lockedID uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT id FROM threads WHERE id = $1 FOR UPDATE`, threadID,
	).Scan(&lockedID)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("thread %s: %w", threadID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("locking thread %s: %w", threadID, err)
	}

	var maxSeq int
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence_number), 0) FROM messages WHERE thread_id = $1`,
		threadID,
	).Scan(&maxSeq); err != nil {
		return fmt.Errorf("reading max sequence number: %w", err)
	}

	for i, m := range messages {
		m.ThreadID = threadID
		m.SequenceNumber = maxSeq + i + 1
		if err := insertMessage(ctx, tx, m); err != nil {
			return fmt.Errorf("inserting message %d: %w", i, err)
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE threads
		 SET message_count = message_count + $1, updated_at = now()
		 WHERE id = $2`,
		len(messages), threadID,
	); err != nil {
		return fmt.Errorf("updating thread metadata: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing message append: %w", err)
	}

	s.logger.Debug("appended messages", "thread_id", threadID, "count", len(messages))
	return nil
}

// Messages returns a thread's transcript in sequence order, with pagination.
func (s *Store) Messages(ctx context.Context, threadID uuid.UUID, limit, offset int) ([]*Message, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	// Existence check so an empty thread and a missing thread differ.
	if _, err := s.Get(ctx, threadID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+messageCols+` FROM messages
		 WHERE thread_id = $1
		 ORDER BY sequence_number ASC
		 LIMIT $2 OFFSET $3`,
		threadID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// Recent returns the last limit messages of a thread in chronological
// order, for building the generation history window.
func (s *Store) Recent(ctx context.Context, threadID uuid.UUID, limit int) ([]*Message, error) {
	if limit <= 0 {
		return []*Message{}, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+messageCols+` FROM (
		   SELECT `+messageCols+` FROM messages
		   WHERE thread_id = $1
		   ORDER BY sequence_number DESC
		   LIMIT $2
		 ) recent
		 ORDER BY sequence_number ASC`,
		threadID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing recent messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// fetchThread reads one thread row through q. Callers map pgx.ErrNoRows
// to ErrNotFound.
func fetchThread(ctx context.Context, q querier, id uuid.UUID) (*Thread, error) {
	return scanThread(q.QueryRow(ctx,
		`SELECT `+threadCols+` FROM threads WHERE id = $1`, id))
}

// insertMessage writes one message through q, the append transaction.
// Fills in the generated ID and timestamp, and defaults status and refs.
func insertMessage(ctx context.Context, q querier, m *Message) error {
	if m.Status == "" {
		m.Status = StatusCompleted
	}
	if m.ContextRefs == nil {
		m.ContextRefs = []string{}
	}

	return q.QueryRow(ctx,
		`INSERT INTO messages (thread_id, role, content, context_refs, status, sequence_number)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		m.ThreadID, string(m.Role), m.Content, m.ContextRefs, string(m.Status), m.SequenceNumber,
	).Scan(&m.ID, &m.CreatedAt)
}

// scanThread reads a Thread from a row (threadCols column set).
func scanThread(row pgx.Row) (*Thread, error) {
	t := &Thread{}
	var mode string
	if err := row.Scan(
		&t.ID, &mode, &t.PinnedText, &t.Metadata,
		&t.MessageCount, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	t.Mode = Mode(mode)
	return t, nil
}

// scanMessages reads Message structs from pgx.Rows (messageCols column set).
func scanMessages(rows pgx.Rows) ([]*Message, error) {
	messages := []*Message{}
	for rows.Next() {
		m := &Message{}
		var role, status string
		if err := rows.Scan(
			&m.ID, &m.ThreadID, &role, &m.Content, &m.ContextRefs,
			&status, &m.SequenceNumber, &m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.Role = Role(role)
		m.Status = Status(status)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return messages, nil
}
