package services

import (
	"errors"
	"strings"
)

// ─── Sentinel Errors ──────────────────────────────────────────────────────────

var (
	// ErrEquipmentNotFound is returned when the referenced equipment does not exist.
	ErrEquipmentNotFound = errors.New("equipment not found")

	// ErrBorrowingNotFound is returned when the referenced borrowing request does not exist.
	ErrBorrowingNotFound = errors.New("borrowing not found")

	// ErrReturnNotFound is returned when the referenced return record does not exist.
	ErrReturnNotFound = errors.New("return record not found")

	// ErrPenaltyNotFound is returned when the referenced penalty record does not exist.
	ErrPenaltyNotFound = errors.New("penalty not found")

	// ErrCategoryNotFound is returned when the referenced category does not exist.
	ErrCategoryNotFound = errors.New("category not found")

	// ErrCapacityConflict is returned when an approval loses the capacity race:
	// the free count observed at creation time is gone by approval time.
	ErrCapacityConflict = errors.New("insufficient free units")

	// ErrInvalidTransition is returned for any state-machine move the
	// lifecycle does not allow (approve a non-pending borrowing, complete a
	// return that is not in the final stage, and so on).
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrDuplicateReturn is returned when a borrowing already has a return record.
	ErrDuplicateReturn = errors.New("return record already exists for this borrowing")

	// ErrBorrowingNotActive is returned when a return is submitted for a
	// borrowing that is not ACTIVE or OVERDUE.
	ErrBorrowingNotActive = errors.New("borrowing not active")

	// ErrPenaltyResolved is returned when paying or waiving a penalty that is
	// no longer pending.
	ErrPenaltyResolved = errors.New("penalty already resolved")
)

// ─── Validation ───────────────────────────────────────────────────────────────

// ValidationError carries the validator's error list. The strings are
// presentation-only; callers must not parse them.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Errors, "; ")
}

// IsConflict reports whether err belongs to the conflict family: the caller
// raced another actor and should re-query before retrying.
func IsConflict(err error) bool {
	return errors.Is(err, ErrCapacityConflict) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrDuplicateReturn) ||
		errors.Is(err, ErrPenaltyResolved)
}

// IsNotFound reports whether err belongs to the not-found family.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEquipmentNotFound) ||
		errors.Is(err, ErrBorrowingNotFound) ||
		errors.Is(err, ErrReturnNotFound) ||
		errors.Is(err, ErrPenaltyNotFound) ||
		errors.Is(err, ErrCategoryNotFound)
}
