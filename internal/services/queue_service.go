package services

import (
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"labloan/internal/models"
	"labloan/internal/repositories"
)

// QueueManager holds the waiting line for scarce equipment. Ordering is
// strictly FIFO by creation time; roles carry no priority.
type QueueManager struct {
	availability *AvailabilityCalculator
	validator    *BorrowingValidator

	queueRepo     repositories.QueueRepository
	borrowingRepo repositories.BorrowingRepository

	now func() time.Time
}

func NewQueueManager(
	availability *AvailabilityCalculator,
	validator *BorrowingValidator,
	queueRepo repositories.QueueRepository,
	borrowingRepo repositories.BorrowingRepository,
) *QueueManager {
	return &QueueManager{
		availability:  availability,
		validator:     validator,
		queueRepo:     queueRepo,
		borrowingRepo: borrowingRepo,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue appends a WAITING entry for the requester. A requester already
// waiting on the same equipment is not enqueued twice.
func (m *QueueManager) Enqueue(tx *gorm.DB, equipmentID, requesterID uuid.UUID, start, end time.Time) error {
	waiting, err := m.queueRepo.HasWaiting(tx, equipmentID, requesterID)
	if err != nil {
		return err
	}
	if waiting {
		log.Printf("[WARN] Enqueue: requester %s already waiting for equipment %s", requesterID, equipmentID)
		return nil
	}
	entry := &models.QueueEntry{
		EquipmentID: equipmentID,
		RequesterID: requesterID,
		StartDate:   start,
		EndDate:     end,
		Status:      models.QueueStatusWaiting,
		CreatedAt:   m.now(),
	}
	if err := m.queueRepo.Create(tx, entry); err != nil {
		return err
	}
	log.Printf("[INFO] Enqueue: requester %s queued for equipment %s (entry=%s)", requesterID, equipmentID, entry.ID)
	return nil
}

// PromoteNext is invoked inside the transaction of a completed return, with
// the equipment row already locked. It pops the oldest WAITING entry and
// tries to turn it into a quantity-1 APPROVED borrowing on the requester's
// behalf. Exactly one entry is promoted per freed unit: entries whose window
// has already closed are expired and skipped, and the loop stops as soon as
// one promotion succeeds or the capacity re-check fails.
func (m *QueueManager) PromoteNext(tx *gorm.DB, eq *models.Equipment) (*models.BorrowingRequest, error) {
	for {
		entry, err := m.queueRepo.NextWaiting(tx, eq.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil
			}
			return nil, err
		}

		today := dateOnly(m.now())
		if dateOnly(entry.EndDate).Before(today) {
			log.Printf("[INFO] PromoteNext: entry %s window closed, expiring", entry.ID)
			if err := m.queueRepo.UpdateStatus(tx, entry.ID, models.QueueStatusExpired); err != nil {
				return nil, err
			}
			continue
		}

		draft := promotionDraft(entry, today)
		res, err := m.validator.Validate(tx, draft)
		if err != nil {
			return nil, err
		}
		if res.QueueEligible {
			// The unit we thought was freed is gone again (duplicate
			// promotion event, or a competing allocation). Leave the entry
			// waiting for the next freed unit.
			log.Printf("[WARN] PromoteNext: no free unit for entry %s, leaving in queue", entry.ID)
			return nil, nil
		}
		if !res.Accepted {
			// The requester can no longer be satisfied (cap reached, role
			// change, equipment pulled for maintenance). Expire the entry so
			// it does not block the line forever.
			log.Printf("[WARN] PromoteNext: entry %s no longer valid (%v), expiring", entry.ID, res.Errors)
			if err := m.queueRepo.UpdateStatus(tx, entry.ID, models.QueueStatusExpired); err != nil {
				return nil, err
			}
			continue
		}

		now := m.now()
		approver := SystemApprover
		request := &models.BorrowingRequest{
			EquipmentID: entry.EquipmentID,
			RequesterID: entry.RequesterID,
			Quantity:    1,
			StartDate:   draft.StartDate,
			EndDate:     draft.EndDate,
			Purpose:     "promoted from waiting queue",
			Status:      models.BorrowingStatusApproved,
			ApproverID:  &approver,
			CreatedAt:   now,
			ApprovedAt:  &now,
		}
		if err := m.borrowingRepo.Create(tx, request); err != nil {
			return nil, err
		}
		if err := m.queueRepo.UpdateStatus(tx, entry.ID, models.QueueStatusPromoted); err != nil {
			return nil, err
		}
		log.Printf("[INFO] PromoteNext: entry %s promoted to borrowing %s", entry.ID, request.ID)
		return request, nil
	}
}

// ListByEquipment returns the queue for display, oldest first.
func (m *QueueManager) ListByEquipment(equipmentID uuid.UUID) ([]models.QueueEntry, error) {
	return m.queueRepo.ListByEquipment(nil, equipmentID)
}

// promotionDraft shifts the desired window forward when its start has already
// passed, keeping the originally requested length.
func promotionDraft(entry *models.QueueEntry, today time.Time) BorrowingDraft {
	start := entry.StartDate
	end := entry.EndDate
	if dateOnly(start).Before(today) {
		length := end.Sub(start)
		start = today
		end = today.Add(length)
	}
	return BorrowingDraft{
		EquipmentID: entry.EquipmentID,
		RequesterID: entry.RequesterID,
		Quantity:    1,
		StartDate:   start,
		EndDate:     end,
	}
}
