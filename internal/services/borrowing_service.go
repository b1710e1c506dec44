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

// SystemApprover is stamped on transitions performed by the engine itself
// (auto-approval, queue promotion) rather than by an admin.
const SystemApprover = "system"

// BorrowingService is the reservation allocator: it owns the borrowing
// request lifecycle and is the only writer of APPROVED/ACTIVE allocations,
// so the capacity invariant (Σ allocated quantity ≤ stock) is enforced here,
// always under the equipment row lock.
type BorrowingService interface {
	Validate(draft BorrowingDraft) (ValidationResult, error)
	Create(draft BorrowingDraft) (*models.BorrowingRequest, ValidationResult, error)
	Approve(id uuid.UUID, adminID string) (*models.BorrowingRequest, error)
	Reject(id uuid.UUID, reason string) (*models.BorrowingRequest, error)
	ProcessOverdue() (OverdueReport, error)

	GetByID(id uuid.UUID) (*models.BorrowingRequest, error)
	ListByRequester(requesterID uuid.UUID) ([]models.BorrowingRequest, error)
	FreeUnits(equipmentID uuid.UUID) (int, error)
}

// OverdueReport summarizes one sweep run.
type OverdueReport struct {
	Activated        int `json:"activated"`
	MarkedOverdue    int `json:"marked_overdue"`
	PenaltiesCreated int `json:"penalties_created"`
}

type borrowingService struct {
	db           *gorm.DB
	rules        config.Rules
	availability *AvailabilityCalculator
	validator    *BorrowingValidator
	queue        *QueueManager
	notifier     notify.Notifier

	equipmentRepo repositories.EquipmentRepository
	borrowingRepo repositories.BorrowingRepository
	penaltyRepo   repositories.PenaltyRepository

	now func() time.Time
}

func NewBorrowingService(
	db *gorm.DB,
	rules config.Rules,
	availability *AvailabilityCalculator,
	validator *BorrowingValidator,
	queue *QueueManager,
	notifier notify.Notifier,
	equipmentRepo repositories.EquipmentRepository,
	borrowingRepo repositories.BorrowingRepository,
	penaltyRepo repositories.PenaltyRepository,
) BorrowingService {
	return &borrowingService{
		db:            db,
		rules:         rules,
		availability:  availability,
		validator:     validator,
		queue:         queue,
		notifier:      notifier,
		equipmentRepo: equipmentRepo,
		borrowingRepo: borrowingRepo,
		penaltyRepo:   penaltyRepo,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Validate runs the validator without persisting anything. Advisory only:
// the answer may be stale by the time Create runs, which re-validates under
// the equipment row lock.
func (s *borrowingService) Validate(draft BorrowingDraft) (ValidationResult, error) {
	var res ValidationResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		res, txErr = s.validator.Validate(tx, draft)
		return txErr
	})
	return res, err
}

// Create implements the transactional borrowing flow.
//
// Happy path: equipment row is locked, the draft re-validated against the
// locked snapshot, and the request persisted — APPROVED immediately when the
// requester's risk signals are clean and capacity is free, PENDING otherwise.
//
// Scarcity path: the validator downgraded the capacity shortfall to a
// queue-eligible warning → the request is persisted as PENDING and a queue
// entry is appended; the creation call still succeeds.
func (s *borrowingService) Create(draft BorrowingDraft) (*models.BorrowingRequest, ValidationResult, error) {
	var request *models.BorrowingRequest
	var res ValidationResult

	err := s.db.Transaction(func(tx *gorm.DB) error {
		eq, err := s.equipmentRepo.GetByIDForUpdate(tx, draft.EquipmentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrEquipmentNotFound
			}
			return err
		}

		res, err = s.validator.Validate(tx, draft)
		if err != nil {
			return err
		}
		if !res.Accepted {
			return &ValidationError{Errors: res.Errors}
		}

		now := s.now()
		request = &models.BorrowingRequest{
			EquipmentID: draft.EquipmentID,
			RequesterID: draft.RequesterID,
			Quantity:    draft.Quantity,
			StartDate:   draft.StartDate,
			EndDate:     draft.EndDate,
			Purpose:     draft.Purpose,
			Status:      models.BorrowingStatusPending,
			CreatedAt:   now,
		}

		if !res.QueueEligible {
			eligible, err := s.autoApprovable(tx, draft.RequesterID)
			if err != nil {
				return err
			}
			if eligible {
				approver := SystemApprover
				request.Status = models.BorrowingStatusApproved
				request.ApproverID = &approver
				request.ApprovedAt = &now
			}
		}

		if err := s.borrowingRepo.Create(tx, request); err != nil {
			log.Printf("[ERROR] CreateBorrowing: failed to create request for equipment %s: %v", draft.EquipmentID, err)
			return err
		}

		if res.QueueEligible {
			if err := s.queue.Enqueue(tx, eq.ID, draft.RequesterID, draft.StartDate, draft.EndDate); err != nil {
				return err
			}
		}

		if request.Status == models.BorrowingStatusApproved {
			if err := s.availability.RefreshStatus(tx, eq); err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		var vErr *ValidationError
		if errors.As(err, &vErr) {
			return nil, res, err
		}
		log.Printf("[ERROR] CreateBorrowing: transaction failed for equipment %s / requester %s: %v", draft.EquipmentID, draft.RequesterID, err)
		return nil, res, err
	}

	log.Printf("[INFO] CreateBorrowing: request %s created with status %s (equipment=%s, qty=%d)",
		request.ID, request.Status, request.EquipmentID, request.Quantity)

	s.notifier.Publish(notify.Event{
		Type:        notify.EventBorrowingCreated,
		BorrowingID: request.ID,
		EquipmentID: request.EquipmentID,
		To:          string(request.Status),
		At:          s.now(),
	})
	return request, res, nil
}

// Approve moves a PENDING request to APPROVED. Capacity is re-checked under
// the equipment row lock: PENDING requests never held capacity, so several of
// them may be competing for the same free units and only the winners pass.
func (s *borrowingService) Approve(id uuid.UUID, adminID string) (*models.BorrowingRequest, error) {
	var request *models.BorrowingRequest

	err := s.db.Transaction(func(tx *gorm.DB) error {
		req, err := s.borrowingRepo.GetByIDForUpdate(tx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBorrowingNotFound
			}
			return err
		}
		if req.Status != models.BorrowingStatusPending {
			return ErrInvalidTransition
		}

		eq, err := s.equipmentRepo.GetByIDForUpdate(tx, req.EquipmentID)
		if err != nil {
			return err
		}
		free, err := s.availability.FreeUnitsOf(tx, eq)
		if err != nil {
			return err
		}
		if req.Quantity > free {
			log.Printf("[WARN] ApproveBorrowing: request %s lost the capacity race (qty=%d, free=%d)", id, req.Quantity, free)
			return ErrCapacityConflict
		}

		if err := s.borrowingRepo.MarkApproved(tx, id, adminID, s.now()); err != nil {
			return err
		}
		if err := s.availability.RefreshStatus(tx, eq); err != nil {
			return err
		}

		request, err = s.borrowingRepo.GetByID(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[INFO] ApproveBorrowing: request %s approved by %s", id, adminID)
	s.notifier.Publish(notify.Event{
		Type:        notify.EventStatusChanged,
		BorrowingID: request.ID,
		EquipmentID: request.EquipmentID,
		From:        string(models.BorrowingStatusPending),
		To:          string(models.BorrowingStatusApproved),
		At:          s.now(),
	})
	return request, nil
}

// Reject moves a PENDING request to the terminal REJECTED state. No stock is
// released because PENDING never consumed any.
func (s *borrowingService) Reject(id uuid.UUID, reason string) (*models.BorrowingRequest, error) {
	var request *models.BorrowingRequest

	err := s.db.Transaction(func(tx *gorm.DB) error {
		req, err := s.borrowingRepo.GetByIDForUpdate(tx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBorrowingNotFound
			}
			return err
		}
		if req.Status != models.BorrowingStatusPending {
			return ErrInvalidTransition
		}
		if err := s.borrowingRepo.MarkRejected(tx, id, reason, s.now()); err != nil {
			return err
		}
		request, err = s.borrowingRepo.GetByID(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[INFO] RejectBorrowing: request %s rejected: %s", id, reason)
	s.notifier.Publish(notify.Event{
		Type:        notify.EventStatusChanged,
		BorrowingID: request.ID,
		EquipmentID: request.EquipmentID,
		From:        string(models.BorrowingStatusPending),
		To:          string(models.BorrowingStatusRejected),
		At:          s.now(),
	})
	return request, nil
}

// ProcessOverdue is the periodic sweep, invoked by an external scheduler.
// It activates APPROVED requests whose window has opened and flags ACTIVE
// requests past their end date, charging at most one late penalty per
// borrowing so re-runs after a crash are safe.
func (s *borrowingService) ProcessOverdue() (OverdueReport, error) {
	report := OverdueReport{}
	today := dateOnly(s.now())

	due, err := s.borrowingRepo.ListApprovedDueToStart(nil, s.now())
	if err != nil {
		return report, err
	}
	for _, req := range due {
		if err := s.activate(req.ID); err != nil {
			log.Printf("[ERROR] ProcessOverdue: activating request %s: %v", req.ID, err)
			continue
		}
		report.Activated++
	}

	late, err := s.borrowingRepo.ListActivePastDue(nil, today)
	if err != nil {
		return report, err
	}
	for _, req := range late {
		created, err := s.markOverdue(req.ID)
		if err != nil {
			log.Printf("[ERROR] ProcessOverdue: marking request %s overdue: %v", req.ID, err)
			continue
		}
		report.MarkedOverdue++
		if created {
			report.PenaltiesCreated++
		}
	}

	log.Printf("[INFO] ProcessOverdue: activated=%d overdue=%d penalties=%d",
		report.Activated, report.MarkedOverdue, report.PenaltiesCreated)
	return report, nil
}

func (s *borrowingService) activate(id uuid.UUID) error {
	var request *models.BorrowingRequest
	err := s.db.Transaction(func(tx *gorm.DB) error {
		req, err := s.borrowingRepo.GetByIDForUpdate(tx, id)
		if err != nil {
			return err
		}
		// Another sweep may have raced us here.
		if req.Status != models.BorrowingStatusApproved {
			return nil
		}
		request = req
		return s.borrowingRepo.UpdateStatus(tx, id, models.BorrowingStatusActive)
	})
	if err != nil || request == nil {
		return err
	}
	s.notifier.Publish(notify.Event{
		Type:        notify.EventStatusChanged,
		BorrowingID: request.ID,
		EquipmentID: request.EquipmentID,
		From:        string(models.BorrowingStatusApproved),
		To:          string(models.BorrowingStatusActive),
		At:          s.now(),
	})
	return nil
}

func (s *borrowingService) markOverdue(id uuid.UUID) (penaltyCreated bool, err error) {
	var request *models.BorrowingRequest
	err = s.db.Transaction(func(tx *gorm.DB) error {
		req, err := s.borrowingRepo.GetByIDForUpdate(tx, id)
		if err != nil {
			return err
		}
		if req.Status != models.BorrowingStatusActive {
			return nil
		}
		request = req

		if err := s.borrowingRepo.UpdateStatus(tx, id, models.BorrowingStatusOverdue); err != nil {
			return err
		}

		exists, err := s.penaltyRepo.ExistsForBorrowing(tx, id)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}

		eq, err := s.equipmentRepo.GetByID(tx, req.EquipmentID)
		if err != nil {
			return err
		}
		calc := CalculatePenalty(s.rules, req.EndDate, s.now(), eq.Category.Kind, string(config.ConditionGood))
		if calc.Total <= 0 {
			return nil
		}
		penaltyCreated = true
		return s.penaltyRepo.Create(tx, &models.PenaltyRecord{
			BorrowingID: id,
			Amount:      calc.Total,
			Reason:      calc.Reason,
			Status:      models.PenaltyStatusPending,
			CreatedAt:   s.now(),
		})
	})
	if err != nil || request == nil {
		return false, err
	}
	s.notifier.Publish(notify.Event{
		Type:        notify.EventStatusChanged,
		BorrowingID: request.ID,
		EquipmentID: request.EquipmentID,
		From:        string(models.BorrowingStatusActive),
		To:          string(models.BorrowingStatusOverdue),
		At:          s.now(),
	})
	return penaltyCreated, nil
}

func (s *borrowingService) GetByID(id uuid.UUID) (*models.BorrowingRequest, error) {
	req, err := s.borrowingRepo.GetByID(nil, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBorrowingNotFound
	}
	return req, err
}

func (s *borrowingService) ListByRequester(requesterID uuid.UUID) ([]models.BorrowingRequest, error) {
	return s.borrowingRepo.ListByRequester(nil, requesterID)
}

// FreeUnits is the browsing-side availability query. The answer may be stale;
// staleness is corrected at allocation time, not at display time.
func (s *borrowingService) FreeUnits(equipmentID uuid.UUID) (int, error) {
	free, err := s.availability.FreeUnits(nil, equipmentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrEquipmentNotFound
	}
	return free, err
}

// autoApprovable checks the auto-approval risk signals: no unpaid penalties
// and headroom under the auto-approval active-borrowing threshold.
func (s *borrowingService) autoApprovable(tx *gorm.DB, requesterID uuid.UUID) (bool, error) {
	pending, err := s.penaltyRepo.CountPendingByRequester(tx, requesterID)
	if err != nil {
		return false, err
	}
	if pending > 0 {
		return false, nil
	}
	active, err := s.borrowingRepo.CountAllocatedByRequester(tx, requesterID)
	if err != nil {
		return false, err
	}
	return active < int64(s.rules.AutoApproveMaxActive), nil
}
