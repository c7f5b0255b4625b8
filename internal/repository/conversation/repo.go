// Package conversation stores conversations and their turn log in SQLite.
package conversation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/kailas-cloud/abai/internal/domain"
	domconv "github.com/kailas-cloud/abai/internal/domain/conversation"
)

// Repo implements the conversation and turn-log contracts of the use cases.
type Repo struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a repository over an opened (and migrated) database.
func New(db *sql.DB) *Repo {
	return &Repo{db: db, now: time.Now}
}

// WithClock overrides the timestamp source.
func (r *Repo) WithClock(now func() time.Time) *Repo {
	r.now = now
	return r
}

// Ping checks database connectivity.
func (r *Repo) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite ping: %w", err)
	}
	return nil
}

// EnsureUser registers a user id; repeated calls are no-ops.
func (r *Repo) EnsureUser(ctx context.Context, userID string) error {
	query, args, err := sq.Insert("users").
		Options("OR IGNORE").
		Columns("id", "created_at").
		Values(userID, toMillis(r.now())).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert user: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// Create inserts a conversation. title must already be normalized.
func (r *Repo) Create(ctx context.Context, userID, title string) (domconv.Conversation, error) {
	now := toMillis(r.now())
	query, args, err := sq.Insert("conversations").
		Columns("user_id", "title", "created_at", "updated_at").
		Values(userID, title, now, now).
		ToSql()
	if err != nil {
		return domconv.Conversation{}, fmt.Errorf("build insert conversation: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return domconv.Conversation{}, fmt.Errorf("insert conversation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domconv.Conversation{}, fmt.Errorf("conversation id: %w", err)
	}
	return domconv.Reconstruct(id, userID, title, fromMillis(now), fromMillis(now)), nil
}

// Get returns a conversation by id.
func (r *Repo) Get(ctx context.Context, id int64) (domconv.Conversation, error) {
	query, args, err := sq.Select(conversationColumns...).
		From("conversations").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return domconv.Conversation{}, fmt.Errorf("build select conversation: %w", err)
	}
	return r.scanOne(ctx, query, args)
}

// Latest returns the most recently updated conversation of a user.
func (r *Repo) Latest(ctx context.Context, userID string) (domconv.Conversation, error) {
	query, args, err := sq.Select(conversationColumns...).
		From("conversations").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("updated_at DESC", "id DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return domconv.Conversation{}, fmt.Errorf("build select latest: %w", err)
	}
	return r.scanOne(ctx, query, args)
}

// ListByUser returns a user's conversations, most recently updated first.
func (r *Repo) ListByUser(ctx context.Context, userID string) ([]domconv.Conversation, error) {
	query, args, err := sq.Select(conversationColumns...).
		From("conversations").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("updated_at DESC", "id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list conversations: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []domconv.Conversation
	for rows.Next() {
		var row conversationRow
		if err := rows.Scan(row.dest()...); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, row.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return out, nil
}

// CountByUser returns how many conversations a user owns.
func (r *Repo) CountByUser(ctx context.Context, userID string) (int, error) {
	query, args, err := sq.Select("COUNT(1)").
		From("conversations").
		Where(sq.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}
	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count conversations: %w", err)
	}
	return n, nil
}

// Rename changes a conversation title. title must already be normalized.
func (r *Repo) Rename(ctx context.Context, id int64, title string) error {
	query, args, err := sq.Update("conversations").
		Set("title", title).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build rename: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("rename conversation: %w", err)
	}
	return requireAffected(res)
}

// DeleteUnlessLast removes a user's conversation with its turns, refusing when it
// is the user's only conversation. Count and delete share one transaction.
func (r *Repo) DeleteUnlessLast(ctx context.Context, userID string, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	countQuery, countArgs, err := sq.Select("COUNT(1)").
		From("conversations").
		Where(sq.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build count: %w", err)
	}
	var n int
	if err := tx.QueryRowContext(ctx, countQuery, countArgs...).Scan(&n); err != nil {
		return fmt.Errorf("count conversations: %w", err)
	}
	if n <= 1 {
		return domain.ErrLastConversation
	}

	turnsQuery, turnsArgs, err := sq.Delete("messages").Where(sq.Eq{"conversation_id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete turns: %w", err)
	}
	convQuery, convArgs, err := sq.Delete("conversations").
		Where(sq.Eq{"id": id, "user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete conversation: %w", err)
	}

	res, err := tx.ExecContext(ctx, convQuery, convArgs...)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, turnsQuery, turnsArgs...); err != nil {
		return fmt.Errorf("delete turns: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// AppendTurn appends a turn, refreshes the conversation's updated_at and
// returns the turn's id. Turn ids grow with insertion order.
func (r *Repo) AppendTurn(ctx context.Context, conversationID int64, turn domconv.Turn) (int64, error) {
	now := toMillis(r.now())

	insertQuery, insertArgs, err := sq.Insert("messages").
		Columns("conversation_id", "role", "content", "created_at").
		Values(conversationID, string(turn.Role()), turn.Content(), now).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert turn: %w", err)
	}
	touchQuery, touchArgs, err := sq.Update("conversations").
		Set("updated_at", now).
		Where(sq.Eq{"id": conversationID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build touch: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, touchQuery, touchArgs...)
	if err != nil {
		return 0, fmt.Errorf("touch conversation: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return 0, err
	}
	res, err = tx.ExecContext(ctx, insertQuery, insertArgs...)
	if err != nil {
		return 0, fmt.Errorf("insert turn: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("turn id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// Turns returns the full turn log of a conversation, oldest first.
func (r *Repo) Turns(ctx context.Context, conversationID int64) ([]domconv.Turn, error) {
	query, args, err := sq.Select(turnColumns...).
		From("messages").
		Where(sq.Eq{"conversation_id": conversationID}).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select turns: %w", err)
	}
	return r.scanTurns(ctx, query, args)
}

// RecentTurns returns at most limit of the newest turns, oldest first.
// A positive beforeID keeps only turns stored before that turn. Failures wrap domain.ErrStorageRead.
func (r *Repo) RecentTurns(
	ctx context.Context, conversationID, beforeID int64, limit int,
) ([]domconv.Turn, error) {
	if limit <= 0 {
		return nil, nil
	}
	where := sq.And{sq.Eq{"conversation_id": conversationID}}
	if beforeID > 0 {
		where = append(where, sq.Lt{"id": beforeID})
	}
	query, args, err := sq.Select(turnColumns...).
		From("messages").
		Where(where).
		OrderBy("id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select recent turns: %w: %w", err, domain.ErrStorageRead)
	}

	turns, err := r.scanTurns(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStorageRead, err)
	}
	slices.Reverse(turns)
	return turns, nil
}

func (r *Repo) scanOne(ctx context.Context, query string, args []any) (domconv.Conversation, error) {
	var row conversationRow
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(row.dest()...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domconv.Conversation{}, domain.ErrConversationNotFound
		}
		return domconv.Conversation{}, fmt.Errorf("select conversation: %w", err)
	}
	return row.toDomain(), nil
}

func (r *Repo) scanTurns(ctx context.Context, query string, args []any) ([]domconv.Turn, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select turns: %w", err)
	}
	defer rows.Close()

	var out []domconv.Turn
	for rows.Next() {
		var row turnRow
		if err := rows.Scan(row.dest()...); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		out = append(out, row.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}
	return out, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrConversationNotFound
	}
	return nil
}
