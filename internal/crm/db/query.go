package db

import (
	"strings"

	"gorm.io/gorm"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
	// MaxPage keeps the row offset of a page within int32.
	MaxPage = 1_000_000
)

// ListOptions are the paging, search and visibility options shared by
// every list query.
type ListOptions struct {
	// ActiveOnly hides soft-deleted rows.
	ActiveOnly bool
	// Search is matched case-insensitively against the entity's search columns.
	Search   string
	Page     int
	PageSize int
}

// Active restricts a query to rows that have not been soft deleted.
func Active(db *gorm.DB) *gorm.DB {
	return db.Where("is_active = ?", true)
}

func (o ListOptions) scope(searchColumns ...string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if o.ActiveOnly {
			db = db.Scopes(Active)
		}
		if term := strings.TrimSpace(o.Search); term != "" && len(searchColumns) > 0 {
			pattern := "%" + strings.ToLower(escapeLike(term)) + "%"
			clauses := make([]string, 0, len(searchColumns))
			args := make([]interface{}, 0, len(searchColumns))
			for _, col := range searchColumns {
				clauses = append(clauses, "LOWER("+col+") LIKE ? ESCAPE '\\'")
				args = append(args, pattern)
			}
			db = db.Where("("+strings.Join(clauses, " OR ")+")", args...)
		}
		return db
	}
}

func (o ListOptions) paginate(db *gorm.DB) *gorm.DB {
	size := o.PageSize
	switch {
	case size <= 0:
		size = DefaultPageSize
	case size > MaxPageSize:
		size = MaxPageSize
	}
	page := o.Page
	switch {
	case page < 1:
		page = 1
	case page > MaxPage:
		page = MaxPage
	}
	return db.Offset((page - 1) * size).Limit(size)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// list counts the rows matching base and loads the requested page into dst.
func list(db *gorm.DB, model interface{}, dst interface{}, opts ListOptions, order string, filters func(*gorm.DB) *gorm.DB, searchColumns ...string) (int64, error) {
	query := db.Model(model).Scopes(opts.scope(searchColumns...), filters)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return 0, err
	}
	err := query.Scopes(opts.paginate).Order(order).Find(dst).Error
	return total, err
}
