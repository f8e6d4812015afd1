package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	rows "github.com/gartstein/solarcrm/internal/crm/db/models"
	e "github.com/gartstein/solarcrm/internal/crm/errors"
	"github.com/gartstein/solarcrm/internal/crm/numbering"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// maxNumberRetries bounds the retries after a number collided with a row
// written outside the sequence.
const maxNumberRetries = 3

// NumberTarget names the prefix of a number and the table and column it
// is issued into.
type NumberTarget struct {
	Prefix string
	Table  string
	Column string
}

var (
	CustomerNumbers = NumberTarget{numbering.CustomerPrefix, "customers", "customer_number"}
	LeadNumbers     = NumberTarget{numbering.LeadPrefix, "leads", "lead_number"}
	ContractNumbers = NumberTarget{numbering.ContractPrefix, "contracts", "contract_number"}
)

// NextNumber increments the counter of prefix and returns the formatted
// number. Run it inside the transaction that inserts the record: the
// counter row stays locked until commit, so concurrent allocations for the
// same prefix are serialized. A missing counter is seeded from the highest
// number already stored in the target table.
func (r *Repository) NextNumber(ctx context.Context, t NumberTarget) (string, error) {
	db := r.db.WithContext(ctx)

	var count int64
	if err := db.Model(&rows.NumberSequence{}).Where("prefix = ?", t.Prefix).Count(&count).Error; err != nil {
		return "", fmt.Errorf("failed to read sequence %s: %w", t.Prefix, err)
	}
	if count == 0 {
		last, err := r.lastIssued(ctx, t)
		if err != nil {
			return "", err
		}
		seed := rows.NumberSequence{Prefix: t.Prefix, Value: last}
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
			return "", fmt.Errorf("failed to seed sequence %s: %w", t.Prefix, err)
		}
	}

	result := db.Model(&rows.NumberSequence{}).
		Where("prefix = ?", t.Prefix).
		UpdateColumns(map[string]interface{}{
			"value":      gorm.Expr("value + ?", 1),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return "", fmt.Errorf("failed to advance sequence %s: %w", t.Prefix, result.Error)
	}

	var seq rows.NumberSequence
	if err := db.First(&seq, "prefix = ?", t.Prefix).Error; err != nil {
		return "", fmt.Errorf("failed to read sequence %s: %w", t.Prefix, err)
	}
	return numbering.Format(t.Prefix, seq.Value), nil
}

// lastIssued returns the numeric part of the greatest number stored for
// the target, or 0 when there is none. Numbers are zero padded, so ordering
// by length first keeps the comparison numeric past six digits.
func (r *Repository) lastIssued(ctx context.Context, t NumberTarget) (int64, error) {
	var numbers []string
	err := r.db.WithContext(ctx).Table(t.Table).
		Where(t.Column+" LIKE ?", numbering.Pattern(t.Prefix)).
		Order("LENGTH(" + t.Column + ") DESC, " + t.Column + " DESC").
		Limit(1).
		Pluck(t.Column, &numbers).Error
	if err != nil {
		return 0, fmt.Errorf("failed to find last %s number: %w", t.Prefix, err)
	}
	if len(numbers) == 0 {
		return 0, nil
	}
	return numbering.Parse(t.Prefix, numbers[0])
}

// syncSequence moves the counter of the target past any number stored
// by other writers.
func (r *Repository) syncSequence(ctx context.Context, t NumberTarget) error {
	last, err := r.lastIssued(ctx, t)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&rows.NumberSequence{}).
		Where("prefix = ? AND value < ?", t.Prefix, last).
		UpdateColumn("value", last).Error
}

// createNumbered inserts row with a freshly allocated number. assign stores
// the number on the row before the insert.
func (r *Repository) createNumbered(ctx context.Context, t NumberTarget, row interface{}, assign func(number string)) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 10 * time.Millisecond
	policy.MaxInterval = 200 * time.Millisecond

	op := func() error {
		err := r.WithTransaction(ctx, func(tx *Repository) error {
			number, err := tx.NextNumber(ctx, t)
			if err != nil {
				return err
			}
			assign(number)
			return tx.db.WithContext(ctx).Omit(clause.Associations).Create(row).Error
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			if syncErr := r.syncSequence(ctx, t); syncErr != nil {
				return backoff.Permanent(syncErr)
			}
			return err
		}
		return backoff.Permanent(translate(err))
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, maxNumberRetries), ctx))
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %s numbers exhausted retries", e.ErrDuplicateNumber, t.Prefix)
	}
	return err
}
