package database

import (
	"context"
	"database/sql"
	"fmt"

	"wachat/internal/models"
)

// CreateAttachment stores an uploaded blob and returns its id. Callers treat
// attachments as opaque references; the served URL is derived from the id.
func (d *Database) CreateAttachment(ctx context.Context, conversationID int64, fileName, mimeType string, data []byte) (int64, error) {
	result, err := d.db.ExecContext(ctx, insertAttachmentQuery, conversationID, fileName, mimeType, data)
	if err != nil {
		return 0, fmt.Errorf("failed to create attachment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get attachment id: %w", err)
	}
	return id, nil
}

// GetAttachment retrieves attachment metadata, or nil when not found.
func (d *Database) GetAttachment(ctx context.Context, id int64) (*models.Attachment, error) {
	att := &models.Attachment{}

	err := d.db.QueryRowContext(ctx, selectAttachmentQuery, id).Scan(&att.ID, &att.FileName, &att.MimeType)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}

	att.URL = attachmentURL(att.ID)
	return att, nil
}

// GetAttachmentData retrieves the raw blob for a stored attachment.
func (d *Database) GetAttachmentData(ctx context.Context, id int64) (*models.Attachment, []byte, error) {
	att := &models.Attachment{ID: id}
	var data []byte

	err := d.db.QueryRowContext(ctx, selectAttachmentDataQuery, id).Scan(&att.FileName, &att.MimeType, &data)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get attachment data: %w", err)
	}

	att.URL = attachmentURL(att.ID)
	return att, data, nil
}

// ClearOldAttachmentData drops blob payloads older than the retention
// window. Metadata rows are kept so message history still renders.
func (d *Database) ClearOldAttachmentData(ctx context.Context, retentionDays int) error {
	if _, err := d.db.ExecContext(ctx, clearOldAttachmentDataQuery, retentionDays); err != nil {
		return fmt.Errorf("failed to clear old attachment data: %w", err)
	}
	return nil
}

func (d *Database) queryAttachments(ctx context.Context, query string, id int64) ([]models.Attachment, error) {
	rows, err := d.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query attachments: %w", err)
	}
	defer rows.Close()

	var attachments []models.Attachment
	for rows.Next() {
		var att models.Attachment
		if err := rows.Scan(&att.ID, &att.FileName, &att.MimeType); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		att.URL = attachmentURL(att.ID)
		attachments = append(attachments, att)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attachments: %w", err)
	}

	return attachments, nil
}

func attachmentURL(id int64) string {
	return fmt.Sprintf("/api/v1/attachments/%d", id)
}
