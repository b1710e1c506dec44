package services

import (
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"labloan/internal/config"
	"labloan/internal/models"
	"labloan/internal/notify"
	"labloan/internal/repositories"
)

// ReturnService drives the two-stage return workflow:
// INITIAL → FINAL → COMPLETED, with a rejection loop that bounces a record
// back to INITIAL. Completion is the only transition with equipment side
// effects: it closes the parent borrowing, re-derives the availability
// projection, and promotes the waiting queue.
type ReturnService interface {
	Submit(borrowingID uuid.UUID, condition, notes string) (*models.ReturnRecord, *PenaltyCalculation, error)
	ApproveStage1(returnID uuid.UUID, adminID, notes string) (*models.ReturnRecord, error)
	Complete(returnID uuid.UUID, adminID, finalCondition, finalNotes string) (*models.ReturnRecord, error)
	Reject(returnID uuid.UUID, adminID, reason string) (*models.ReturnRecord, error)

	GetByID(returnID uuid.UUID) (*models.ReturnRecord, error)
}

type returnService struct {
	db           *gorm.DB
	rules        config.Rules
	availability *AvailabilityCalculator
	queue        *QueueManager
	notifier     notify.Notifier

	equipmentRepo repositories.EquipmentRepository
	borrowingRepo repositories.BorrowingRepository
	returnRepo    repositories.ReturnRepository
	penaltyRepo   repositories.PenaltyRepository

	now func() time.Time
}

func NewReturnService(
	db *gorm.DB,
	rules config.Rules,
	availability *AvailabilityCalculator,
	queue *QueueManager,
	notifier notify.Notifier,
	equipmentRepo repositories.EquipmentRepository,
	borrowingRepo repositories.BorrowingRepository,
	returnRepo repositories.ReturnRepository,
	penaltyRepo repositories.PenaltyRepository,
) ReturnService {
	return &returnService{
		db:            db,
		rules:         rules,
		availability:  availability,
		queue:         queue,
		notifier:      notifier,
		equipmentRepo: equipmentRepo,
		borrowingRepo: borrowingRepo,
		returnRepo:    returnRepo,
		penaltyRepo:   penaltyRepo,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Submit opens a return for an ACTIVE or OVERDUE borrowing and charges the
// provisional penalty. The penalty is computed against the condition the
// requester reports, not a verified one; the amount is fixed at creation and
// never recomputed.
//
// When the overdue sweep already charged a late penalty for this borrowing,
// only the damage component is charged here, so the borrowing is never billed
// twice for the same late days.
func (s *returnService) Submit(borrowingID uuid.UUID, condition, notes string) (*models.ReturnRecord, *PenaltyCalculation, error) {
	var record *models.ReturnRecord
	var calc PenaltyCalculation

	err := s.db.Transaction(func(tx *gorm.DB) error {
		borrowing, err := s.borrowingRepo.GetByIDForUpdate(tx, borrowingID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBorrowingNotFound
			}
			return err
		}
		if borrowing.Status != models.BorrowingStatusActive && borrowing.Status != models.BorrowingStatusOverdue {
			return ErrBorrowingNotActive
		}

		if _, err := s.returnRepo.GetByBorrowing(tx, borrowingID); err == nil {
			return ErrDuplicateReturn
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		eq, err := s.equipmentRepo.GetByID(tx, borrowing.EquipmentID)
		if err != nil {
			return err
		}

		now := s.now()
		calc = CalculatePenalty(s.rules, borrowing.EndDate, now, eq.Category.Kind, condition)

		record = &models.ReturnRecord{
			BorrowingID:       borrowingID,
			ReportedCondition: condition,
			InitialNotes:      notes,
			Status:            models.ReturnStatusInitial,
			CreatedAt:         now,
		}
		if err := s.returnRepo.Create(tx, record); err != nil {
			return err
		}

		amount := calc.Total
		reason := calc.Reason
		alreadyCharged, err := s.penaltyRepo.ExistsForBorrowing(tx, borrowingID)
		if err != nil {
			return err
		}
		if alreadyCharged {
			amount = calc.DamagePenalty
			reason = "equipment reported " + string(config.NormalizeCondition(condition))
		}
		if amount > 0 {
			if err := s.penaltyRepo.Create(tx, &models.PenaltyRecord{
				BorrowingID: borrowingID,
				Amount:      amount,
				Reason:      reason,
				Status:      models.PenaltyStatusPending,
				CreatedAt:   now,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	log.Printf("[INFO] SubmitReturn: record %s created for borrowing %s (condition=%q, provisional=%d)",
		record.ID, borrowingID, condition, calc.Total)
	return record, &calc, nil
}

// ApproveStage1 moves an INITIAL record to FINAL. No equipment side effects
// yet; stock is only released at completion.
func (s *returnService) ApproveStage1(returnID uuid.UUID, adminID, notes string) (*models.ReturnRecord, error) {
	var record *models.ReturnRecord

	err := s.db.Transaction(func(tx *gorm.DB) error {
		rec, err := s.returnRepo.GetByIDForUpdate(tx, returnID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrReturnNotFound
			}
			return err
		}
		if rec.Status != models.ReturnStatusInitial {
			return ErrInvalidTransition
		}

		now := s.now()
		rec.Status = models.ReturnStatusFinal
		rec.AdminNotes = notes
		rec.ProcessedBy = &adminID
		rec.ProcessedAt = &now
		if err := s.returnRepo.Update(tx, rec); err != nil {
			return err
		}
		record = rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[INFO] ApproveReturnStage1: record %s moved to FINAL by %s", returnID, adminID)
	return record, nil
}

// Complete closes the workflow: FINAL → COMPLETED, parent borrowing →
// RETURNED, equipment projection re-derived, and one queue promotion for the
// freed capacity — all in a single transaction, so a failure anywhere leaves
// every record in its prior state.
func (s *returnService) Complete(returnID uuid.UUID, adminID, finalCondition, finalNotes string) (*models.ReturnRecord, error) {
	var record *models.ReturnRecord
	var borrowing *models.BorrowingRequest
	var promoted *models.BorrowingRequest

	err := s.db.Transaction(func(tx *gorm.DB) error {
		rec, err := s.returnRepo.GetByIDForUpdate(tx, returnID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrReturnNotFound
			}
			return err
		}
		if rec.Status != models.ReturnStatusFinal {
			return ErrInvalidTransition
		}

		borrowing, err = s.borrowingRepo.GetByIDForUpdate(tx, rec.BorrowingID)
		if err != nil {
			return err
		}
		eq, err := s.equipmentRepo.GetByIDForUpdate(tx, borrowing.EquipmentID)
		if err != nil {
			return err
		}

		now := s.now()
		if err := s.borrowingRepo.MarkReturned(tx, borrowing.ID, now); err != nil {
			return err
		}

		rec.Status = models.ReturnStatusCompleted
		if finalCondition != "" {
			rec.ReportedCondition = finalCondition
		}
		rec.FinalNotes = finalNotes
		rec.ProcessedBy = &adminID
		rec.ProcessedAt = &now
		if err := s.returnRepo.Update(tx, rec); err != nil {
			return err
		}

		promoted, err = s.queue.PromoteNext(tx, eq)
		if err != nil {
			return err
		}
		if err := s.availability.RefreshStatus(tx, eq); err != nil {
			return err
		}
		record = rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[INFO] CompleteReturn: record %s completed by %s (borrowing=%s)", returnID, adminID, borrowing.ID)

	s.notifier.Publish(notify.Event{
		Type:        notify.EventReturnCompleted,
		BorrowingID: borrowing.ID,
		EquipmentID: borrowing.EquipmentID,
		To:          string(models.BorrowingStatusReturned),
		At:          s.now(),
	})
	if promoted != nil {
		s.notifier.Publish(notify.Event{
			Type:        notify.EventBorrowingCreated,
			BorrowingID: promoted.ID,
			EquipmentID: promoted.EquipmentID,
			To:          string(promoted.Status),
			At:          s.now(),
		})
	}
	return record, nil
}

// Reject bounces an INITIAL record back to INITIAL with an admin note. The
// provisional penalty is deliberately left in place: the record stays live
// and can still proceed to completion, so its penalty remains valid.
func (s *returnService) Reject(returnID uuid.UUID, adminID, reason string) (*models.ReturnRecord, error) {
	var record *models.ReturnRecord

	err := s.db.Transaction(func(tx *gorm.DB) error {
		rec, err := s.returnRepo.GetByIDForUpdate(tx, returnID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrReturnNotFound
			}
			return err
		}
		if rec.Status != models.ReturnStatusInitial {
			return ErrInvalidTransition
		}

		now := s.now()
		rec.AdminNotes = reason
		rec.ProcessedBy = &adminID
		rec.ProcessedAt = &now
		if err := s.returnRepo.Update(tx, rec); err != nil {
			return err
		}
		record = rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[INFO] RejectReturn: record %s bounced back to INITIAL by %s: %s", returnID, adminID, reason)
	return record, nil
}

func (s *returnService) GetByID(returnID uuid.UUID) (*models.ReturnRecord, error) {
	rec, err := s.returnRepo.GetByID(nil, returnID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrReturnNotFound
	}
	return rec, err
}
