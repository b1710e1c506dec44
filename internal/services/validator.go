package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"labloan/internal/config"
	"labloan/internal/models"
	"labloan/internal/repositories"
)

// BorrowingDraft is an unsaved borrowing request handed to the validator.
type BorrowingDraft struct {
	EquipmentID uuid.UUID `json:"equipment_id"`
	RequesterID uuid.UUID `json:"requester_id"`
	Quantity    int       `json:"quantity"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	Purpose     string    `json:"purpose"`
}

// ValidationResult is the validator's pure decision. Error and warning
// strings are presentation-only; structured outcomes (acceptance, queue
// eligibility) are carried as fields so callers never parse text.
type ValidationResult struct {
	Accepted      bool     `json:"accepted"`
	Errors        []string `json:"errors"`
	Warnings      []string `json:"warnings"`
	QueueEligible bool     `json:"queue_eligible"`
}

// BorrowingValidator applies the rule table and the availability calculator
// to a draft without persisting anything.
type BorrowingValidator struct {
	rules         config.Rules
	availability  *AvailabilityCalculator
	userRepo      repositories.UserRepository
	equipmentRepo repositories.EquipmentRepository
	borrowingRepo repositories.BorrowingRepository
	penaltyRepo   repositories.PenaltyRepository

	now func() time.Time
}

func NewBorrowingValidator(
	rules config.Rules,
	availability *AvailabilityCalculator,
	userRepo repositories.UserRepository,
	equipmentRepo repositories.EquipmentRepository,
	borrowingRepo repositories.BorrowingRepository,
	penaltyRepo repositories.PenaltyRepository,
) *BorrowingValidator {
	return &BorrowingValidator{
		rules:         rules,
		availability:  availability,
		userRepo:      userRepo,
		equipmentRepo: equipmentRepo,
		borrowingRepo: borrowingRepo,
		penaltyRepo:   penaltyRepo,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Validate runs the full check list against a draft. All reads go through db
// so a caller holding a transaction (and the equipment row lock) gets a
// consistent snapshot; a nil db validates against live data, which is fine
// for advisory pre-checks.
//
// A capacity shortfall on scarce equipment (single-copy category, or stock
// momentarily exhausted) downgrades to a queue-eligible warning so the caller
// can offer queueing instead of a rejection.
func (v *BorrowingValidator) Validate(db *gorm.DB, draft BorrowingDraft) (ValidationResult, error) {
	res := ValidationResult{}

	eq, err := v.equipmentRepo.GetByID(db, draft.EquipmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			res.Errors = append(res.Errors, "equipment does not exist")
			return res, nil
		}
		return res, err
	}

	switch eq.Status {
	case models.EquipmentStatusMaintenance:
		res.Errors = append(res.Errors, "equipment is under maintenance")
	case models.EquipmentStatusDamaged:
		res.Errors = append(res.Errors, "equipment is marked damaged")
	}

	if draft.Quantity < 1 {
		res.Errors = append(res.Errors, "quantity must be at least 1")
	} else if draft.Quantity > eq.Stock {
		res.Errors = append(res.Errors, fmt.Sprintf("quantity %d exceeds total stock %d", draft.Quantity, eq.Stock))
	} else {
		free, err := v.availability.FreeUnitsOf(db, eq)
		if err != nil {
			return res, err
		}
		if draft.Quantity > free {
			if eq.Category.Kind == models.CategoryKindSingleCopy || free == 0 {
				res.Warnings = append(res.Warnings, "no free units; queue-eligible")
				res.QueueEligible = true
			} else {
				res.Errors = append(res.Errors, fmt.Sprintf("only %d unit(s) free", free))
			}
		}
	}

	user, err := v.userRepo.GetByID(db, draft.RequesterID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			res.Errors = append(res.Errors, "requester does not exist")
			return res, nil
		}
		return res, err
	}

	active, err := v.borrowingRepo.CountAllocatedByRequester(db, draft.RequesterID)
	if err != nil {
		return res, err
	}
	if limit := v.rules.BorrowCapFor(user.Role); active >= int64(limit) {
		res.Errors = append(res.Errors, fmt.Sprintf("borrowing limit reached (%d concurrent)", limit))
	}

	if draft.EndDate.Before(draft.StartDate) {
		res.Errors = append(res.Errors, "end date is before start date")
	} else {
		maxDays := v.rules.MaxDurationFor(eq.Category.Kind)
		if days := durationDays(draft.StartDate, draft.EndDate); days > maxDays {
			res.Errors = append(res.Errors, fmt.Sprintf("duration %d day(s) exceeds maximum %d for this category", days, maxDays))
		}
	}

	if dateOnly(draft.StartDate).Before(dateOnly(v.now())) {
		res.Errors = append(res.Errors, "start date is in the past")
	}

	// Non-blocking: unpaid penalties are flagged but never block creation.
	pending, err := v.penaltyRepo.CountPendingByRequester(db, draft.RequesterID)
	if err != nil {
		return res, err
	}
	if pending > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("requester has %d unpaid penalty record(s)", pending))
	}

	res.Accepted = len(res.Errors) == 0
	return res, nil
}

// durationDays is the borrow window length in whole days, rounding partial
// days up.
func durationDays(start, end time.Time) int {
	hours := end.Sub(start).Hours()
	days := int(hours / 24)
	if float64(days*24) < hours {
		days++
	}
	return days
}

func dateOnly(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}
