package models

import (
	"gorm.io/gorm"
)

// Pagination carries the start/count/sort listing parameters. The zero
// value is valid and yields the first page in creation order.
type Pagination struct {
	Start int    `schema:"start"`
	Count int    `schema:"count"`
	Sort  string `schema:"sort"`
}

// Scope returns a gorm scope applying the pagination to a relationship
// query. Count is clamped to keep a single request from walking the whole
// table.
func (p *Pagination) Scope() func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		count := p.Count
		switch {
		case count <= 0:
			count = 20
		case count > 100:
			count = 100
		}
		db = db.Limit(count).Offset(p.Start)

		switch p.Sort {
		case "-createdAt":
			db = db.Order("created_at desc")
		default:
			db = db.Order("created_at asc")
		}
		return db
	}
}
