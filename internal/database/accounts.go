package database

import (
	"context"
	"database/sql"
	"fmt"

	"wachat/internal/models"
)

// CreateAccount stores a new set of provider credentials.
func (d *Database) CreateAccount(ctx context.Context, account *models.Account) (int64, error) {
	result, err := d.db.ExecContext(ctx, insertAccountQuery,
		account.Name, account.BaseURL, account.AccessToken, account.Active)
	if err != nil {
		return 0, fmt.Errorf("failed to create account: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get account id: %w", err)
	}
	return id, nil
}

// GetActiveAccount returns the first active account by creation order, or
// nil when none is configured. This is the single account-selection rule;
// there is no load balancing.
func (d *Database) GetActiveAccount(ctx context.Context) (*models.Account, error) {
	account := &models.Account{}

	err := d.db.QueryRowContext(ctx, selectActiveAccountQuery).Scan(
		&account.ID,
		&account.Name,
		&account.BaseURL,
		&account.AccessToken,
		&account.Active,
		&account.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active account: %w", err)
	}

	return account, nil
}

// CreateTemplate stores a provider message template.
func (d *Database) CreateTemplate(ctx context.Context, template *models.Template) (int64, error) {
	result, err := d.db.ExecContext(ctx, insertTemplateQuery,
		template.AccountID, template.Name, template.Category, template.Status, template.LangCode)
	if err != nil {
		return 0, fmt.Errorf("failed to create template: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get template id: %w", err)
	}
	return id, nil
}

// FindApprovedTemplateByName returns the approved template with the given
// name for an account, or nil when absent.
func (d *Database) FindApprovedTemplateByName(ctx context.Context, accountID int64, name string) (*models.Template, error) {
	return d.scanTemplate(d.db.QueryRowContext(ctx, selectApprovedTemplateByNameQuery, accountID, name))
}

// FindApprovedTemplateByCategory returns any approved template of the given
// category for an account, or nil when absent.
func (d *Database) FindApprovedTemplateByCategory(ctx context.Context, accountID int64, category string) (*models.Template, error) {
	return d.scanTemplate(d.db.QueryRowContext(ctx, selectApprovedTemplateByCategoryQuery, accountID, category))
}

func (d *Database) scanTemplate(row *sql.Row) (*models.Template, error) {
	template := &models.Template{}

	err := row.Scan(
		&template.ID,
		&template.AccountID,
		&template.Name,
		&template.Category,
		&template.Status,
		&template.LangCode,
		&template.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	return template, nil
}
