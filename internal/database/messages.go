package database

import (
	"context"
	"database/sql"
	"fmt"

	"wachat/internal/models"
)

// CreateThreadMessage stores a thread message and links its attachments.
// The parent conversation's updated_at is bumped in the same transaction so
// the conversation list stays ordered by activity.
func (d *Database) CreateThreadMessage(ctx context.Context, msg *models.ThreadMessage) (int64, error) {
	encryptedPhone, err := d.encryptPhonePtr(msg.CounterpartyPhone)
	if err != nil {
		return 0, err
	}

	var id int64
	err = d.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, insertThreadMessageQuery,
			msg.ConversationID,
			msg.AuthorID,
			nullableString(msg.AuthorName),
			msg.Body,
			msg.Direction,
			msg.ExternalChannel,
			msg.DeliveryStatus,
			msg.ExternalMessageID,
			encryptedPhone,
			msg.ErrorMessage,
		)
		if err != nil {
			return fmt.Errorf("failed to create thread message: %w", err)
		}

		id, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get thread message id: %w", err)
		}

		for _, att := range msg.Attachments {
			if _, err := tx.ExecContext(ctx, linkMessageAttachmentQuery, id, att.ID); err != nil {
				return fmt.Errorf("failed to link attachment %d: %w", att.ID, err)
			}
		}

		if _, err := tx.ExecContext(ctx, touchConversationQuery, msg.ConversationID); err != nil {
			return fmt.Errorf("failed to touch conversation: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return id, nil
}

// GetThreadMessage retrieves a thread message with its attachments, or nil
// when not found.
func (d *Database) GetThreadMessage(ctx context.Context, id int64) (*models.ThreadMessage, error) {
	msg, err := d.scanThreadMessage(d.db.QueryRowContext(ctx, selectThreadMessageQuery, id))
	if err != nil || msg == nil {
		return msg, err
	}

	msg.Attachments, err = d.getMessageAttachments(ctx, msg.ID)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// UpdateThreadDeliveryStatus writes the user-visible delivery status and
// error detail of a thread message. Writing the same status twice is a no-op
// by construction (last-write-wins on independent fields).
func (d *Database) UpdateThreadDeliveryStatus(ctx context.Context, id int64, status models.DeliveryStatus, errorMessage *string) error {
	return retryableDBOperation(ctx, func() error {
		result, err := d.db.ExecContext(ctx, updateThreadDeliveryStatusQuery, status, errorMessage, id)
		if err != nil {
			return fmt.Errorf("failed to update delivery status: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("no thread message found with id %d", id)
		}
		return nil
	}, "update thread delivery status")
}

// LinkDeliveryRecord sets the weak back-reference from a thread message to
// its delivery record.
func (d *Database) LinkDeliveryRecord(ctx context.Context, messageID, deliveryRecordID int64) error {
	if _, err := d.db.ExecContext(ctx, linkDeliveryRecordQuery, deliveryRecordID, messageID); err != nil {
		return fmt.Errorf("failed to link delivery record: %w", err)
	}
	return nil
}

// SetExternalMessageID records the provider-assigned message id on the
// thread message.
func (d *Database) SetExternalMessageID(ctx context.Context, messageID int64, externalID string) error {
	if _, err := d.db.ExecContext(ctx, setExternalMessageIDQuery, externalID, messageID); err != nil {
		return fmt.Errorf("failed to set external message id: %w", err)
	}
	return nil
}

// GetLatestInboundMessage returns the most recent inbound message of a
// conversation, or nil when the counterparty has never written. It anchors
// the 24-hour session window check.
func (d *Database) GetLatestInboundMessage(ctx context.Context, conversationID int64) (*models.ThreadMessage, error) {
	return d.scanThreadMessage(d.db.QueryRowContext(ctx, selectLatestInboundQuery, conversationID))
}

// ListMessages returns one page of a conversation's messages, newest first.
// Fetching the first page advances the caller's read cursor to the newest
// returned message and zeroes the unread counter, inside the same
// transaction as the read. No other page mutates anything.
func (d *Database) ListMessages(ctx context.Context, conversationID, userID int64, offset, limit int) (*models.MessagePage, error) {
	page := &models.MessagePage{
		Items:  []models.ThreadMessage{},
		Offset: offset,
		Limit:  limit,
	}

	err := d.withTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, countMessagesQuery, conversationID).Scan(&page.TotalCount); err != nil {
			return fmt.Errorf("failed to count messages: %w", err)
		}

		rows, err := tx.QueryContext(ctx, selectMessagesPageQuery, conversationID, limit, offset)
		if err != nil {
			return fmt.Errorf("failed to list messages: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			msg, err := d.scanThreadMessageRow(rows)
			if err != nil {
				return err
			}
			page.Items = append(page.Items, *msg)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("failed to iterate messages: %w", err)
		}

		if offset == 0 && len(page.Items) > 0 {
			newest := page.Items[0].ID
			if _, err := tx.ExecContext(ctx, advanceReadCursorQuery, newest, conversationID, userID); err != nil {
				return fmt.Errorf("failed to advance read cursor: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i := range page.Items {
		page.Items[i].Attachments, err = d.getMessageAttachments(ctx, page.Items[i].ID)
		if err != nil {
			return nil, err
		}
	}

	return page, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (d *Database) scanThreadMessage(row *sql.Row) (*models.ThreadMessage, error) {
	msg, err := d.scanThreadMessageRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return msg, err
}

func (d *Database) scanThreadMessageRow(row rowScanner) (*models.ThreadMessage, error) {
	msg := &models.ThreadMessage{}
	var authorName sql.NullString
	var encryptedPhone sql.NullString

	err := row.Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.AuthorID,
		&authorName,
		&msg.Body,
		&msg.Direction,
		&msg.ExternalChannel,
		&msg.DeliveryStatus,
		&msg.ExternalMessageID,
		&encryptedPhone,
		&msg.ErrorMessage,
		&msg.DeliveryRecordID,
		&msg.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan thread message: %w", err)
	}

	msg.AuthorName = authorName.String

	if encryptedPhone.Valid && encryptedPhone.String != "" {
		phone, err := d.encryptor.DecryptIfEnabled(encryptedPhone.String)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt counterparty phone: %w", err)
		}
		msg.CounterpartyPhone = &phone
	}

	return msg, nil
}

func (d *Database) getMessageAttachments(ctx context.Context, messageID int64) ([]models.Attachment, error) {
	return d.queryAttachments(ctx, selectMessageAttachmentsQuery, messageID)
}

func (d *Database) encryptPhonePtr(phone *string) (*string, error) {
	if phone == nil {
		return nil, nil
	}
	encrypted, err := d.encryptor.EncryptIfEnabled(*phone)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt counterparty phone: %w", err)
	}
	return &encrypted, nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
