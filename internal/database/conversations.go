package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"wachat/internal/models"
)

// CreateConversation stores a conversation and adds the creator as a member.
func (d *Database) CreateConversation(ctx context.Context, conv *models.Conversation) (int64, error) {
	encryptedPhone, err := d.encryptor.EncryptIfEnabled(conv.CounterpartyPhone)
	if err != nil {
		return 0, fmt.Errorf("failed to encrypt counterparty phone: %w", err)
	}
	phoneHash, err := d.encryptor.EncryptForLookupIfEnabled(conv.CounterpartyPhone)
	if err != nil {
		return 0, fmt.Errorf("failed to encrypt counterparty phone for lookup: %w", err)
	}

	var id int64
	err = d.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, insertConversationQuery,
			conv.Name, conv.CounterpartyName, encryptedPhone, phoneHash, conv.CreatedBy)
		if err != nil {
			return fmt.Errorf("failed to create conversation: %w", err)
		}

		id, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get conversation id: %w", err)
		}

		if _, err := tx.ExecContext(ctx, upsertMembershipQuery, id, conv.CreatedBy); err != nil {
			return fmt.Errorf("failed to add creator membership: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return id, nil
}

// GetConversation retrieves a conversation by id, or nil when not found.
func (d *Database) GetConversation(ctx context.Context, id int64) (*models.Conversation, error) {
	return d.scanConversation(d.db.QueryRowContext(ctx, selectConversationByIDQuery, id))
}

// GetConversationByPhone retrieves the conversation for a normalized
// counterparty phone number, or nil when none exists.
func (d *Database) GetConversationByPhone(ctx context.Context, normalizedPhone string) (*models.Conversation, error) {
	phoneHash, err := d.encryptor.EncryptForLookupIfEnabled(normalizedPhone)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt phone for lookup: %w", err)
	}
	return d.scanConversation(d.db.QueryRowContext(ctx, selectConversationByPhoneHashQuery, phoneHash))
}

func (d *Database) scanConversation(row *sql.Row) (*models.Conversation, error) {
	conv := &models.Conversation{}
	var counterpartyName sql.NullString
	var encryptedPhone string

	err := row.Scan(
		&conv.ID,
		&conv.Name,
		&counterpartyName,
		&encryptedPhone,
		&conv.CreatedBy,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	conv.CounterpartyName = counterpartyName.String
	conv.CounterpartyPhone, err = d.encryptor.DecryptIfEnabled(encryptedPhone)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt counterparty phone: %w", err)
	}

	return conv, nil
}

// TouchConversation bumps the conversation's updated_at so it sorts to the
// top of the conversation list.
func (d *Database) TouchConversation(ctx context.Context, id int64) error {
	if _, err := d.db.ExecContext(ctx, touchConversationQuery, id); err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	return nil
}

// EnsureMembership adds a user to a conversation if not already a member.
func (d *Database) EnsureMembership(ctx context.Context, conversationID, userID int64) error {
	if _, err := d.db.ExecContext(ctx, upsertMembershipQuery, conversationID, userID); err != nil {
		return fmt.Errorf("failed to ensure membership: %w", err)
	}
	return nil
}

// IncrementUnreadCounts bumps the unread counter of every member except the
// author of the triggering message.
func (d *Database) IncrementUnreadCounts(ctx context.Context, conversationID, exceptUserID int64) error {
	if _, err := d.db.ExecContext(ctx, incrementUnreadQuery, conversationID, exceptUserID); err != nil {
		return fmt.Errorf("failed to increment unread counts: %w", err)
	}
	return nil
}

// ListConversations returns one page of the caller's conversation list,
// most-recently-updated first (ties broken by higher id). The optional search
// term matches case-insensitively against the conversation name, the
// counterparty name, or any contained message body.
func (d *Database) ListConversations(ctx context.Context, userID int64, offset, limit int, searchTerm string) (*models.ConversationPage, error) {
	visibility := `(c.created_by = ? OR EXISTS (
			SELECT 1 FROM conversation_members v
			WHERE v.conversation_id = c.id AND v.user_id = ?))`

	args := []interface{}{userID, userID}
	where := visibility

	searchTerm = strings.TrimSpace(searchTerm)
	if searchTerm != "" {
		pattern := "%" + strings.ToLower(searchTerm) + "%"
		where += ` AND (LOWER(c.name) LIKE ? OR LOWER(IFNULL(c.counterparty_name, '')) LIKE ?
			OR EXISTS (SELECT 1 FROM thread_messages sm
				WHERE sm.conversation_id = c.id AND LOWER(sm.body) LIKE ?))`
		args = append(args, pattern, pattern, pattern)
	}

	countQuery := `SELECT COUNT(*) FROM conversations c WHERE ` + where

	var total int
	if err := d.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count conversations: %w", err)
	}

	// m.created_at and c.created_at stay separate columns: wrapping them in
	// IFNULL drops the TIMESTAMP decltype and the driver hands back a string.
	pageQuery := `
		SELECT c.id, c.name, IFNULL(c.counterparty_name, ''),
		       IFNULL(m.body, ''), m.created_at, c.created_at,
		       IFNULL(m.delivery_status, ''), IFNULL(m.direction, ''),
		       IFNULL(cm.unread_count, 0)
		FROM conversations c
		LEFT JOIN conversation_members cm
			ON cm.conversation_id = c.id AND cm.user_id = ?
		LEFT JOIN thread_messages m ON m.id = (
			SELECT id FROM thread_messages
			WHERE conversation_id = c.id
			ORDER BY id DESC LIMIT 1)
		WHERE ` + where + `
		ORDER BY c.updated_at DESC, c.id DESC
		LIMIT ? OFFSET ?`

	pageArgs := append([]interface{}{userID}, args...)
	pageArgs = append(pageArgs, limit, offset)

	rows, err := d.db.QueryContext(ctx, pageQuery, pageArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	page := &models.ConversationPage{
		Items:      []models.ConversationSummary{},
		TotalCount: total,
		Offset:     offset,
		Limit:      limit,
	}

	for rows.Next() {
		var item models.ConversationSummary
		var status, direction string
		var lastMessageAt sql.NullTime
		var conversationCreatedAt time.Time

		if err := rows.Scan(
			&item.ID,
			&item.Phone,
			&item.CounterpartyName,
			&item.LastMessage,
			&lastMessageAt,
			&conversationCreatedAt,
			&status,
			&direction,
			&item.UnreadCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan conversation summary: %w", err)
		}

		item.LastMessageAt = conversationCreatedAt
		if lastMessageAt.Valid {
			item.LastMessageAt = lastMessageAt.Time
		}
		item.LastMessageStatus = models.DeliveryStatus(status)
		item.Direction = models.Direction(direction)
		if item.CounterpartyName == "" {
			item.CounterpartyName = item.Phone
		}
		page.Items = append(page.Items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}

	return page, nil
}
