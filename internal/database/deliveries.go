package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"wachat/internal/models"
)

// CreateDeliveryRecord stores a delivery record together with its template
// components and attachment links, in one transaction.
func (d *Database) CreateDeliveryRecord(ctx context.Context, rec *models.DeliveryRecord) (int64, error) {
	encryptedRaw, err := d.encryptor.EncryptIfEnabled(rec.PhoneRaw)
	if err != nil {
		return 0, fmt.Errorf("failed to encrypt raw phone: %w", err)
	}
	encryptedNormalized, err := d.encryptor.EncryptIfEnabled(rec.PhoneNormalized)
	if err != nil {
		return 0, fmt.Errorf("failed to encrypt normalized phone: %w", err)
	}
	phoneHash, err := d.encryptor.EncryptForLookupIfEnabled(rec.PhoneNormalized)
	if err != nil {
		return 0, fmt.Errorf("failed to encrypt phone for lookup: %w", err)
	}

	var id int64
	err = d.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, insertDeliveryRecordQuery,
			encryptedRaw,
			encryptedNormalized,
			phoneHash,
			rec.Direction,
			rec.State,
			nullableID(rec.AccountID),
			rec.ThreadMessageID,
			rec.TemplateID,
			rec.TemplateLangCode,
			rec.BodyText,
			rec.ProviderMessageID,
		)
		if err != nil {
			return fmt.Errorf("failed to create delivery record: %w", err)
		}

		id, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get delivery record id: %w", err)
		}

		for _, comp := range rec.Components {
			variables, err := json.Marshal(comp.Variables)
			if err != nil {
				return fmt.Errorf("failed to marshal component variables: %w", err)
			}
			if _, err := tx.ExecContext(ctx, insertDeliveryComponentQuery, id, comp.Type, string(variables)); err != nil {
				return fmt.Errorf("failed to create template component: %w", err)
			}
		}

		for _, att := range rec.Attachments {
			if _, err := tx.ExecContext(ctx, linkDeliveryAttachmentQuery, id, att.ID); err != nil {
				return fmt.Errorf("failed to link delivery attachment %d: %w", att.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return id, nil
}

// GetDeliveryRecord retrieves a delivery record with components and
// attachments, or nil when not found.
func (d *Database) GetDeliveryRecord(ctx context.Context, id int64) (*models.DeliveryRecord, error) {
	rec, err := d.scanDeliveryRecord(d.db.QueryRowContext(ctx, selectDeliveryRecordQuery, id))
	if err != nil || rec == nil {
		return rec, err
	}
	return d.loadDeliveryRelations(ctx, rec)
}

// GetDeliveryRecordByProviderID resolves a delivery record from the
// provider-assigned message id carried by status callbacks.
func (d *Database) GetDeliveryRecordByProviderID(ctx context.Context, providerMessageID string) (*models.DeliveryRecord, error) {
	rec, err := d.scanDeliveryRecord(d.db.QueryRowContext(ctx, selectDeliveryRecordByProviderIDQuery, providerMessageID))
	if err != nil || rec == nil {
		return rec, err
	}
	return d.loadDeliveryRelations(ctx, rec)
}

// UpdateDeliveryState writes a new lifecycle state and clears any previous
// failure classification. Transition legality is the reconciliation engine's
// concern; the store only persists.
func (d *Database) UpdateDeliveryState(ctx context.Context, id int64, state models.DeliveryState, errorMessage *string) error {
	return retryableDBOperation(ctx, func() error {
		result, err := d.db.ExecContext(ctx, updateDeliveryStateQuery, state, errorMessage, id)
		if err != nil {
			return fmt.Errorf("failed to update delivery state: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("no delivery record found with id %d", id)
		}
		return nil
	}, "update delivery state")
}

// SetDeliveryFailure moves a record to the error state with failure
// classification. The record stays retryable.
func (d *Database) SetDeliveryFailure(ctx context.Context, id int64, failureType models.FailureType, errorMessage string) error {
	if _, err := d.db.ExecContext(ctx, setDeliveryFailureQuery, failureType, errorMessage, id); err != nil {
		return fmt.Errorf("failed to set delivery failure: %w", err)
	}
	return nil
}

// SetProviderMessageID records the id assigned by the provider on a
// successful send.
func (d *Database) SetProviderMessageID(ctx context.Context, id int64, providerMessageID string) error {
	if _, err := d.db.ExecContext(ctx, setProviderMessageIDQuery, providerMessageID, id); err != nil {
		return fmt.Errorf("failed to set provider message id: %w", err)
	}
	return nil
}

// IncrementDeliveryRetry bumps the retry bookkeeping of a record.
func (d *Database) IncrementDeliveryRetry(ctx context.Context, id int64) error {
	if _, err := d.db.ExecContext(ctx, incrementDeliveryRetryQuery, id); err != nil {
		return fmt.Errorf("failed to increment retry count: %w", err)
	}
	return nil
}

// ListRetryableDeliveries returns outbound records still awaiting a
// successful send (outgoing or error) that have retry budget left, oldest
// first.
func (d *Database) ListRetryableDeliveries(ctx context.Context, maxAttempts, limit int) ([]*models.DeliveryRecord, error) {
	rows, err := d.db.QueryContext(ctx, selectRetryableDeliveriesQuery, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list retryable deliveries: %w", err)
	}
	defer rows.Close()

	var records []*models.DeliveryRecord
	for rows.Next() {
		rec, err := d.scanDeliveryRecordRow(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate retryable deliveries: %w", err)
	}

	for i, rec := range records {
		records[i], err = d.loadDeliveryRelations(ctx, rec)
		if err != nil {
			return nil, err
		}
	}

	return records, nil
}

func (d *Database) scanDeliveryRecord(row *sql.Row) (*models.DeliveryRecord, error) {
	rec, err := d.scanDeliveryRecordRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

func (d *Database) scanDeliveryRecordRow(row rowScanner) (*models.DeliveryRecord, error) {
	rec := &models.DeliveryRecord{}
	var encryptedRaw, encryptedNormalized string
	var failureType sql.NullString
	var accountID sql.NullInt64

	err := row.Scan(
		&rec.ID,
		&encryptedRaw,
		&encryptedNormalized,
		&rec.Direction,
		&rec.State,
		&accountID,
		&rec.ThreadMessageID,
		&rec.TemplateID,
		&rec.TemplateLangCode,
		&rec.BodyText,
		&rec.ProviderMessageID,
		&failureType,
		&rec.ErrorMessage,
		&rec.RetryCount,
		&rec.LastRetryAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan delivery record: %w", err)
	}

	rec.PhoneRaw, err = d.encryptor.DecryptIfEnabled(encryptedRaw)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt raw phone: %w", err)
	}
	rec.PhoneNormalized, err = d.encryptor.DecryptIfEnabled(encryptedNormalized)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt normalized phone: %w", err)
	}

	if failureType.Valid {
		ft := models.FailureType(failureType.String)
		rec.FailureType = &ft
	}
	rec.AccountID = accountID.Int64

	return rec, nil
}

// nullableID maps the zero id onto NULL so inbound records without an
// account satisfy the foreign key.
func nullableID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

func (d *Database) loadDeliveryRelations(ctx context.Context, rec *models.DeliveryRecord) (*models.DeliveryRecord, error) {
	rows, err := d.db.QueryContext(ctx, selectDeliveryComponentsQuery, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query template components: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var comp models.TemplateComponent
		var variables string
		if err := rows.Scan(&comp.ID, &comp.DeliveryRecordID, &comp.Type, &variables); err != nil {
			return nil, fmt.Errorf("failed to scan template component: %w", err)
		}
		if err := json.Unmarshal([]byte(variables), &comp.Variables); err != nil {
			return nil, fmt.Errorf("failed to unmarshal component variables: %w", err)
		}
		rec.Components = append(rec.Components, comp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate template components: %w", err)
	}

	rec.Attachments, err = d.queryAttachments(ctx, selectDeliveryAttachmentsQuery, rec.ID)
	if err != nil {
		return nil, err
	}

	return rec, nil
}
