package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	rows "github.com/gartstein/solarcrm/internal/crm/db/models"
	e "github.com/gartstein/solarcrm/internal/crm/errors"
	"github.com/gartstein/solarcrm/internal/crm/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LeadFilter struct {
	ListOptions
	Status     models.LeadStatus
	Source     models.LeadSource
	AssignedTo string
	Country    string
	CustomerID *uuid.UUID
}

// CreateLead inserts l and assigns its lead number.
func (r *Repository) CreateLead(ctx context.Context, l *models.Lead) error {
	row := leadRow(l)
	if err := r.createNumbered(ctx, LeadNumbers, row, func(n string) { row.LeadNumber = n }); err != nil {
		return err
	}
	*l = *leadModel(row)
	return nil
}

func (r *Repository) GetLead(ctx context.Context, id uuid.UUID) (*models.Lead, error) {
	var row rows.Lead
	if err := r.first(ctx, &row, id); err != nil {
		return nil, err
	}
	return leadModel(&row), nil
}

// LockLead loads a lead and locks its row until the transaction ends.
func (r *Repository) LockLead(ctx context.Context, id uuid.UUID) (*models.Lead, error) {
	db := r.db.WithContext(ctx)
	if db.Dialector.Name() != DriverSQLite {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row rows.Lead
	if err := db.First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, e.ErrNotFound
		}
		return nil, err
	}
	return leadModel(&row), nil
}

// UpdateLead stores every mutable field of l. The lead number and the
// converted customer are kept; MarkLeadConverted and
// DetachLeadsFromCustomer own customer_id.
func (r *Repository) UpdateLead(ctx context.Context, l *models.Lead) error {
	row := leadRow(l)
	if err := r.update(ctx, row, "lead_number", "customer_id"); err != nil {
		return err
	}
	l.UpdatedAt = row.UpdatedAt
	return nil
}

// MarkLeadConverted links an unconverted lead to customerID and sets it
// won. It fails with ErrConflict when the lead was converted already.
func (r *Repository) MarkLeadConverted(ctx context.Context, id, customerID uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&rows.Lead{}).
		Where("id = ?", id).
		Where("customer_id IS NULL").
		UpdateColumns(map[string]interface{}{
			"customer_id": customerID,
			"status":      string(models.LeadWon),
			"updated_at":  time.Now(),
		})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: lead %s is already converted", e.ErrConflict, id)
	}
	return nil
}

func (r *Repository) SetLeadActive(ctx context.Context, id uuid.UUID, active bool) error {
	return r.setActive(ctx, &rows.Lead{}, id, active)
}

func (r *Repository) ListLeads(ctx context.Context, f LeadFilter) ([]models.Lead, int64, error) {
	var found []rows.Lead
	total, err := list(r.db.WithContext(ctx), &rows.Lead{}, &found, f.ListOptions, "created_at DESC",
		func(db *gorm.DB) *gorm.DB {
			if f.Status != "" {
				db = db.Where("status = ?", f.Status)
			}
			if f.Source != "" {
				db = db.Where("lead_source = ?", f.Source)
			}
			if f.AssignedTo != "" {
				db = db.Where("assigned_to = ?", f.AssignedTo)
			}
			if f.Country != "" {
				db = db.Where("country = ?", f.Country)
			}
			if f.CustomerID != nil {
				db = db.Where("customer_id = ?", *f.CustomerID)
			}
			return db
		},
		"lead_number", "contact_name", "email", "phone", "city")
	if err != nil {
		return nil, 0, err
	}
	out := make([]models.Lead, 0, len(found))
	for i := range found {
		out = append(out, *leadModel(&found[i]))
	}
	return out, total, nil
}

// SetLeadsStatus moves the given leads to status. Converted leads are
// left untouched. It returns the IDs that changed.
func (r *Repository) SetLeadsStatus(ctx context.Context, ids []uuid.UUID, status models.LeadStatus) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var changed []uuid.UUID
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Model(&rows.Lead{})
		if tx.Dialector.Name() != DriverSQLite {
			query = query.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		err := query.
			Where("id IN ?", ids).
			Where("customer_id IS NULL").
			Where("status <> ?", status).
			Pluck("id", &changed).Error
		if err != nil {
			return fmt.Errorf("failed to select leads: %w", err)
		}
		if len(changed) == 0 {
			return nil
		}

		result := tx.Model(&rows.Lead{}).
			Where("id IN ?", changed).
			Where("customer_id IS NULL").
			UpdateColumns(map[string]interface{}{"status": string(status), "updated_at": time.Now()})
		if result.Error != nil {
			return fmt.Errorf("failed to set lead status: %w", result.Error)
		}
		if result.RowsAffected == int64(len(changed)) {
			return nil
		}
		// A lead was converted after it was selected.
		var updated []uuid.UUID
		if err := tx.Model(&rows.Lead{}).
			Where("id IN ?", changed).
			Where("customer_id IS NULL").
			Pluck("id", &updated).Error; err != nil {
			return fmt.Errorf("failed to select leads: %w", err)
		}
		changed = updated
		return nil
	})
	if err != nil || len(changed) == 0 {
		return nil, err
	}
	return changed, nil
}

// DetachLeadsFromCustomer clears the customer of every lead converted into
// customerID.
func (r *Repository) DetachLeadsFromCustomer(ctx context.Context, customerID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).Model(&rows.Lead{}).
		Where("customer_id = ?", customerID).
		UpdateColumns(map[string]interface{}{"customer_id": nil, "updated_at": time.Now()})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to detach leads of customer %s: %w", customerID, result.Error)
	}
	return result.RowsAffected, nil
}

// UnassignLeads clears the assignee of every lead owned by user.
func (r *Repository) UnassignLeads(ctx context.Context, user string) (int64, error) {
	result := r.db.WithContext(ctx).Model(&rows.Lead{}).
		Where("assigned_to = ?", user).
		UpdateColumns(map[string]interface{}{"assigned_to": nil, "updated_at": time.Now()})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to unassign leads of %s: %w", user, result.Error)
	}
	return result.RowsAffected, nil
}
