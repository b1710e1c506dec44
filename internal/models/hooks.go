package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// IDs are assigned application-side; the schema carries no database-side
// default, so the DDL needs no uuid extension on Postgres and stays valid on
// the SQLite test dialect.

func (u *User) BeforeCreate(*gorm.DB) error             { ensureID(&u.ID); return nil }
func (c *Category) BeforeCreate(*gorm.DB) error         { ensureID(&c.ID); return nil }
func (e *Equipment) BeforeCreate(*gorm.DB) error        { ensureID(&e.ID); return nil }
func (b *BorrowingRequest) BeforeCreate(*gorm.DB) error { ensureID(&b.ID); return nil }
func (q *QueueEntry) BeforeCreate(*gorm.DB) error       { ensureID(&q.ID); return nil }
func (r *ReturnRecord) BeforeCreate(*gorm.DB) error     { ensureID(&r.ID); return nil }
func (p *PenaltyRecord) BeforeCreate(*gorm.DB) error    { ensureID(&p.ID); return nil }

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
