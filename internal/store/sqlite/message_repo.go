package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"dmchat/internal/domain"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

const messageColumns = `id, conversation_id, sender_id, receiver_id, content, sent_at, status`

func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	query := `
		INSERT INTO messages (conversation_id, sender_id, receiver_id, content, sent_at, status)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if m.SentAt.IsZero() {
		m.SentAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, query,
		m.ConversationID,
		m.SenderID,
		m.ReceiverID,
		m.Content,
		m.SentAt,
		int(m.Status),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	m.ID = id
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = ?`
	m := &domain.Message{}
	var status int64
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&m.ID,
		&m.ConversationID,
		&m.SenderID,
		&m.ReceiverID,
		&m.Content,
		&m.SentAt,
		&status,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	m.Status = domain.MessageStatus(status)
	return m, nil
}

func (r *MessageRepo) ListForConversation(ctx context.Context, conversationID int64) ([]*domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = ?
		ORDER BY sent_at ASC, id ASC
	`
	return r.queryMessages(ctx, query, conversationID)
}

func (r *MessageRepo) UpdateContent(ctx context.Context, id int64, content string, sentAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET content = ?, sent_at = ? WHERE id = ?
	`, content, sentAt, id)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *MessageRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *MessageRepo) ListUndeliveredTo(ctx context.Context, receiverID int64) ([]*domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE receiver_id = ? AND status = ?
		ORDER BY sent_at ASC, id ASC
	`
	return r.queryMessages(ctx, query, receiverID, int(domain.StatusSent))
}

func (r *MessageRepo) ListUnseenIn(ctx context.Context, conversationID, receiverID int64) ([]*domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = ? AND receiver_id = ? AND status < ?
		ORDER BY sent_at ASC, id ASC
	`
	return r.queryMessages(ctx, query, conversationID, receiverID, int(domain.StatusSeen))
}

// AdvanceStatus is the compare-and-set that keeps the state machine
// monotonic: the WHERE clause refuses to overwrite an equal or higher status,
// so racing catch-up and seen-marking handlers cannot regress a message.
func (r *MessageRepo) AdvanceStatus(ctx context.Context, id int64, target domain.MessageStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET status = ? WHERE id = ? AND status < ?
	`, int(target), id, int(target))
	if err != nil {
		return false, fmt.Errorf("advance status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *MessageRepo) AdvanceStatusBatch(ctx context.Context, ids []int64, target domain.MessageStatus) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+2)
	args = append(args, int(target))
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, int(target))

	query := fmt.Sprintf(
		`UPDATE messages SET status = ? WHERE id IN (%s) AND status < ?`,
		placeholders,
	)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("advance status batch: %w", err)
	}
	return nil
}

// Search matches case-insensitively; SQLite LIKE is case-insensitive for
// ASCII by default.
func (r *MessageRepo) Search(ctx context.Context, userID int64, query string) ([]*domain.Message, error) {
	q := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE (sender_id = ? OR receiver_id = ?) AND content LIKE ? ESCAPE '\'
		ORDER BY sent_at DESC, id DESC
	`
	pattern := "%" + escapeLike(query) + "%"
	return r.queryMessages(ctx, q, userID, userID, pattern)
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

func (r *MessageRepo) queryMessages(ctx context.Context, query string, args ...any) ([]*domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var res []*domain.Message
	for rows.Next() {
		m := &domain.Message{}
		var status int64
		if err := rows.Scan(
			&m.ID,
			&m.ConversationID,
			&m.SenderID,
			&m.ReceiverID,
			&m.Content,
			&m.SentAt,
			&status,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Status = domain.MessageStatus(status)
		res = append(res, m)
	}
	return res, rows.Err()
}
