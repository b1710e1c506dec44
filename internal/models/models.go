package models

import (
	"time"

	"github.com/google/uuid"
)

type UserRole string

const (
	UserRoleAdmin   UserRole = "ADMIN"
	UserRoleFaculty UserRole = "FACULTY"
	UserRoleStudent UserRole = "STUDENT"
)

// CategoryKind governs how equipment in a category circulates: whether it must
// come back, whether it is consumed, and whether it is a single scarce copy
// subject to queueing.
type CategoryKind string

const (
	CategoryKindMustReturn CategoryKind = "MUST_RETURN"
	CategoryKindConsumable CategoryKind = "CONSUMABLE"
	CategoryKindSingleCopy CategoryKind = "SINGLE_COPY"
)

// EquipmentStatus is a cached projection for catalog display. The authority on
// availability is stock minus the sum of APPROVED/ACTIVE allocations.
type EquipmentStatus string

const (
	EquipmentStatusAvailable   EquipmentStatus = "AVAILABLE"
	EquipmentStatusBorrowed    EquipmentStatus = "BORROWED"
	EquipmentStatusMaintenance EquipmentStatus = "MAINTENANCE"
	EquipmentStatusDamaged     EquipmentStatus = "DAMAGED"
)

type BorrowingStatus string

const (
	BorrowingStatusPending  BorrowingStatus = "PENDING"
	BorrowingStatusApproved BorrowingStatus = "APPROVED"
	BorrowingStatusActive   BorrowingStatus = "ACTIVE"
	BorrowingStatusRejected BorrowingStatus = "REJECTED"
	BorrowingStatusReturned BorrowingStatus = "RETURNED"
	BorrowingStatusOverdue  BorrowingStatus = "OVERDUE"
)

type QueueStatus string

const (
	QueueStatusWaiting  QueueStatus = "WAITING"
	QueueStatusPromoted QueueStatus = "PROMOTED"
	QueueStatusExpired  QueueStatus = "EXPIRED"
)

type ReturnStatus string

const (
	ReturnStatusInitial   ReturnStatus = "INITIAL"
	ReturnStatusFinal     ReturnStatus = "FINAL"
	ReturnStatusCompleted ReturnStatus = "COMPLETED"
)

type PenaltyStatus string

const (
	PenaltyStatusPending PenaltyStatus = "PENDING"
	PenaltyStatusPaid    PenaltyStatus = "PAID"
	PenaltyStatusWaived  PenaltyStatus = "WAIVED"
)

type User struct {
	ID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name string    `gorm:"size:255;not null" json:"name"`
	Role UserRole  `gorm:"size:20;not null" json:"role"`
}

type Category struct {
	ID   uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	Name string       `gorm:"size:255;not null;uniqueIndex" json:"name"`
	Kind CategoryKind `gorm:"size:20;not null" json:"kind"`
}

type Equipment struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	CategoryID uuid.UUID       `gorm:"type:uuid;not null;index" json:"category_id"`
	Category   Category        `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
	Name       string          `gorm:"size:255;not null" json:"name"`
	Stock      int             `gorm:"not null" json:"stock"`
	Condition  string          `gorm:"size:50;not null;default:'good'" json:"condition"`
	Status     EquipmentStatus `gorm:"size:20;not null;index" json:"status"`
}

type BorrowingRequest struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	EquipmentID  uuid.UUID       `gorm:"type:uuid;not null;index" json:"equipment_id"`
	Equipment    Equipment       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
	RequesterID  uuid.UUID       `gorm:"type:uuid;not null;index" json:"requester_id"`
	Requester    User            `gorm:"foreignKey:RequesterID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
	Quantity     int             `gorm:"not null" json:"quantity"`
	StartDate    time.Time       `gorm:"not null" json:"start_date"`
	EndDate      time.Time       `gorm:"not null" json:"end_date"`
	Purpose      string          `gorm:"size:500" json:"purpose"`
	Status       BorrowingStatus `gorm:"size:20;not null;index" json:"status"`
	ApproverID   *string         `gorm:"size:64" json:"approver_id,omitempty"`
	RejectReason string          `gorm:"size:500" json:"reject_reason,omitempty"`
	CreatedAt    time.Time       `gorm:"not null" json:"created_at"`
	ApprovedAt   *time.Time      `json:"approved_at,omitempty"`
	ResolvedAt   *time.Time      `json:"resolved_at,omitempty"`
}

type QueueEntry struct {
	ID          uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	EquipmentID uuid.UUID   `gorm:"type:uuid;not null;index" json:"equipment_id"`
	Equipment   Equipment   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	RequesterID uuid.UUID   `gorm:"type:uuid;not null;index" json:"requester_id"`
	Requester   User        `gorm:"foreignKey:RequesterID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	StartDate   time.Time   `gorm:"not null" json:"start_date"`
	EndDate     time.Time   `gorm:"not null" json:"end_date"`
	Status      QueueStatus `gorm:"size:20;not null;index" json:"status"`
	CreatedAt   time.Time   `gorm:"not null;index" json:"created_at"`
}

type ReturnRecord struct {
	ID                uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	BorrowingID       uuid.UUID        `gorm:"type:uuid;not null;index" json:"borrowing_id"`
	Borrowing         BorrowingRequest `gorm:"foreignKey:BorrowingID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
	ReportedCondition string           `gorm:"size:50;not null" json:"reported_condition"`
	InitialNotes      string           `gorm:"size:500" json:"initial_notes"`
	FinalNotes        string           `gorm:"size:500" json:"final_notes,omitempty"`
	AdminNotes        string           `gorm:"size:500" json:"admin_notes,omitempty"`
	Status            ReturnStatus     `gorm:"size:20;not null;index" json:"status"`
	ProcessedBy       *string          `gorm:"size:64" json:"processed_by,omitempty"`
	ProcessedAt       *time.Time       `json:"processed_at,omitempty"`
	CreatedAt         time.Time        `gorm:"not null" json:"created_at"`
}

type PenaltyRecord struct {
	ID          uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	BorrowingID uuid.UUID        `gorm:"type:uuid;not null;index" json:"borrowing_id"`
	Borrowing   BorrowingRequest `gorm:"foreignKey:BorrowingID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
	Amount      int              `gorm:"not null" json:"amount"`
	Reason      string           `gorm:"size:500;not null" json:"reason"`
	Status      PenaltyStatus    `gorm:"size:20;not null;index" json:"status"`
	ResolvedBy  *string          `gorm:"size:64" json:"resolved_by,omitempty"`
	ResolvedAt  *time.Time       `json:"resolved_at,omitempty"`
	CreatedAt   time.Time        `gorm:"not null" json:"created_at"`
}
