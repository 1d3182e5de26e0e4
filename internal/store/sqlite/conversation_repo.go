package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"dmchat/internal/domain"
)

type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

var _ domain.ConversationRepository = (*ConversationRepo)(nil)

const conversationColumns = `id, user_lo_id, user_hi_id, created_at, deleted_for_lo, deleted_for_hi`

func (r *ConversationRepo) Insert(ctx context.Context, c *domain.Conversation) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO conversations (user_lo_id, user_hi_id, created_at, deleted_for_lo, deleted_for_hi)
		VALUES (?, ?, CURRENT_TIMESTAMP, 0, 0)
	`, c.UserLoID, c.UserHiID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("insert conversation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	c.ID = id
	return nil
}

func (r *ConversationRepo) GetByID(ctx context.Context, id int64) (*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = ?`
	return r.scanConversation(r.db.QueryRowContext(ctx, query, id))
}

func (r *ConversationRepo) FindByPair(ctx context.Context, lo, hi int64) (*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE user_lo_id = ? AND user_hi_id = ?`
	return r.scanConversation(r.db.QueryRowContext(ctx, query, lo, hi))
}

// SetDeleteFlag flips only the column belonging to userID, so concurrent
// flag writes by the two participants cannot lose each other's update. The
// returned row reflects both columns after the write.
func (r *ConversationRepo) SetDeleteFlag(ctx context.Context, id, userID int64, deleted bool) (*domain.Conversation, error) {
	_, err := r.db.ExecContext(ctx, `
		UPDATE conversations
		SET deleted_for_lo = CASE WHEN user_lo_id = ? THEN ? ELSE deleted_for_lo END,
		    deleted_for_hi = CASE WHEN user_hi_id = ? THEN ? ELSE deleted_for_hi END
		WHERE id = ?
	`, userID, deleted, userID, deleted, id)
	if err != nil {
		return nil, fmt.Errorf("set delete flag: %w", err)
	}
	return r.GetByID(ctx, id)
}

// PurgeWithMessages hard-deletes the conversation and all of its messages in
// one transaction. The messages delete is explicit even though the schema
// cascades, so the operation does not depend on driver pragma state.
func (r *ConversationRepo) PurgeWithMessages(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *ConversationRepo) ListForUser(ctx context.Context, userID int64) ([]*domain.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE user_lo_id = ? OR user_hi_id = ?
	`
	rows, err := r.db.QueryContext(ctx, query, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var res []*domain.Conversation
	for rows.Next() {
		c := &domain.Conversation{}
		if err := rows.Scan(
			&c.ID,
			&c.UserLoID,
			&c.UserHiID,
			&c.CreatedAt,
			&c.DeletedForLo,
			&c.DeletedForHi,
		); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r *ConversationRepo) ListPreviews(ctx context.Context, userID int64) ([]*domain.ConversationPreview, error) {
	query := `
		SELECT
			c.id,
			CASE WHEN c.user_lo_id = ? THEN c.user_hi_id ELSE c.user_lo_id END AS peer_id,
			p.username,
			p.avatar_url,
			lm.content,
			lm.sent_at,
			lm.status,
			(SELECT COUNT(*) FROM messages m
			 WHERE m.conversation_id = c.id AND m.receiver_id = ? AND m.status < ?) AS unread
		FROM conversations c
		JOIN users p ON p.id = CASE WHEN c.user_lo_id = ? THEN c.user_hi_id ELSE c.user_lo_id END
		LEFT JOIN messages lm ON lm.id = (
			SELECT id FROM messages
			WHERE conversation_id = c.id
			ORDER BY sent_at DESC, id DESC
			LIMIT 1
		)
		WHERE (c.user_lo_id = ? AND c.deleted_for_lo = 0)
		   OR (c.user_hi_id = ? AND c.deleted_for_hi = 0)
		ORDER BY COALESCE(lm.sent_at, c.created_at) DESC, c.id ASC
	`
	rows, err := r.db.QueryContext(ctx, query,
		userID, userID, int(domain.StatusSeen), userID, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list previews: %w", err)
	}
	defer rows.Close()

	var res []*domain.ConversationPreview
	for rows.Next() {
		p := &domain.ConversationPreview{}
		var (
			lastContent sql.NullString
			lastSentAt  sql.NullTime
			lastStatus  sql.NullInt64
		)
		if err := rows.Scan(
			&p.ConversationID,
			&p.PeerID,
			&p.PeerName,
			&p.PeerAvatarURL,
			&lastContent,
			&lastSentAt,
			&lastStatus,
			&p.UnreadCount,
		); err != nil {
			return nil, fmt.Errorf("scan preview: %w", err)
		}
		if lastContent.Valid {
			p.LastContent = &lastContent.String
		}
		if lastSentAt.Valid {
			t := lastSentAt.Time
			p.LastSentAt = &t
		}
		if lastStatus.Valid {
			s := domain.MessageStatus(lastStatus.Int64).String()
			p.LastStatus = &s
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r *ConversationRepo) scanConversation(row *sql.Row) (*domain.Conversation, error) {
	c := &domain.Conversation{}
	err := row.Scan(
		&c.ID,
		&c.UserLoID,
		&c.UserHiID,
		&c.CreatedAt,
		&c.DeletedForLo,
		&c.DeletedForHi,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}
