package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"labloan/internal/models"
)

// activeBorrowing creates an auto-approved borrowing and runs the sweep so it
// becomes ACTIVE.
func activeBorrowing(t *testing.T, e *engine, eq *models.Equipment, user *models.User, days int) *models.BorrowingRequest {
	t.Helper()
	req := e.mustApproved(t, eq, user, 1, days)
	e.sweep(t)
	got, err := e.borrowing.GetByID(req.ID)
	require.NoError(t, err)
	require.Equal(t, models.BorrowingStatusActive, got.Status)
	return got
}

func TestSubmit_RequiresActiveBorrowing(t *testing.T) {
	e := newEngine(t)
	eq := e.addEquipment(t, models.CategoryKindMustReturn, 2)
	user := e.addUser(t, models.UserRoleFaculty)

	req := e.mustBorrow(t, eq, user, 1, 2) // APPROVED, not yet ACTIVE

	_, _, err := e.returns.Submit(req.ID, "good", "")
	assert.ErrorIs(t, err, ErrBorrowingNotActive)
}

func TestSubmit_CreatesRecordAndProvisionalPenalty(t *testing.T) {
	e := newEngine(t)
	eq := e.addEquipment(t, models.CategoryKindMustReturn, 2)
	user := e.addUser(t, models.UserRoleFaculty)

	req := activeBorrowing(t, e, eq, user, 3)

	// Two days past due, minor damage reported.
	e.setNow(e.clock.AddDate(0, 0, 5))
	record, calc, err := e.returns.Submit(req.ID, "minor", "handle cracked")
	require.NoError(t, err)
	assert.Equal(t, models.ReturnStatusInitial, record.Status)
	assert.Equal(t, 2, calc.LateDays)
	assert.Equal(t, 2*5000+25000, calc.Total)

	penalties, err := e.penalties.ListByRequester(user.ID)
	require.NoError(t, err)
	require.Len(t, penalties, 1)
	assert.Equal(t, calc.Total, penalties[0].Amount)
	assert.Equal(t, models.PenaltyStatusPending, penalties[0].Status)
}

func TestSubmit_OnTimeGoodConditionChargesNothing(t *testing.T) {
	e := newEngine(t)
	eq := e.addEquipment(t, models.CategoryKindMustReturn, 2)
	user := e.addUser(t, models.UserRoleFaculty)

	req := activeBorrowing(t, e, eq, user, 3)

	_, calc, err := e.returns.Submit(req.ID, "baik", "")
	require.NoError(t, err)
	assert.Equal(t, 0, calc.Total)

	penalties, err := e.penalties.ListByRequester(user.ID)
	require.NoError(t, err)
	assert.Empty(t, penalties)
}

func TestSubmit_DuplicateIsConflict(t *testing.T) {
	e := newEngine(t)
	eq := e.addEquipment(t, models.CategoryKindMustReturn, 2)
	user := e.addUser(t, models.UserRoleFaculty)

	req := activeBorrowing(t, e, eq, user, 3)

	_, _, err := e.returns.Submit(req.ID, "good", "")
	require.NoError(t, err)

	_, _, err = e.returns.Submit(req.ID, "good", "")
	assert.ErrorIs(t, err, ErrDuplicateReturn)
}

func TestSubmit_AfterSweepChargesOnlyDamage(t *testing.T) {
	e := newEngine(t)
	eq := e.addEquipment(t, models.CategoryKindMustReturn, 2)
	user := e.addUser(t, models.UserRoleFaculty)

	req := activeBorrowing(t, e, eq, user, 3)

	// Sweep flags the borrowing overdue and charges the late fee.
	e.setNow(e.clock.AddDate(0, 0, 8))
	report := e.sweep(t)
	require.Equal(t, 1, report.PenaltiesCreated)

	_, _, err := e.returns.Submit(req.ID, "minor", "")
	require.NoError(t, err)

	penalties, err := e.penalties.ListByRequester(user.ID)
	require.NoError(t, err)
	require.Len(t, penalties, 2)

	// The sweep billed the 5 late days (25000); the submit-time penalty
	// covers the minor damage only (25000), not late days again.
	total := penalties[0].Amount + penalties[1].Amount
	assert.Equal(t, 5*5000+25000, total)
	for _, p := range penalties {
		assert.Equal(t, 25000, p.Amount)
	}
}

func TestReturnLifecycle_FullFlow(t *testing.T) {
	e := newEngine(t)
	eq := e.addEquipment(t, models.CategoryKindMustReturn, 1)
	user := e.addUser(t, models.UserRoleFaculty)

	req := activeBorrowing(t, e, eq, user, 3)

	got, err := e.catalog.GetEquipment(eq.ID)
	require.NoError(t, err)
	require.Equal(t, models.EquipmentStatusBorrowed, got.Status)

	record, _, err := e.returns.Submit(req.ID, "good", "all fine")
	require.NoError(t, err)

	// Completing from INITIAL skips a stage and must be refused.
	_, err = e.returns.Complete(record.ID, "admin", "", "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	record, err = e.returns.ApproveStage1(record.ID, "admin", "checked in")
	require.NoError(t, err)
	assert.Equal(t, models.ReturnStatusFinal, record.Status)

	// Stage 1 has no equipment side effects.
	got, err = e.catalog.GetEquipment(eq.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EquipmentStatusBorrowed, got.Status)

	record, err = e.returns.Complete(record.ID, "admin", "good", "verified")
	require.NoError(t, err)
	assert.Equal(t, models.ReturnStatusCompleted, record.Status)

	borrowing, err := e.borrowing.GetByID(req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BorrowingStatusReturned, borrowing.Status)
	assert.NotNil(t, borrowing.ResolvedAt)

	got, err = e.catalog.GetEquipment(eq.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EquipmentStatusAvailable, got.Status)

	// Completed is terminal.
	_, err = e.returns.Complete(record.ID, "admin", "", "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestReject_BouncesBackToInitialAndKeepsPenalty(t *testing.T) {
	e := newEngine(t)
	eq := e.addEquipment(t, models.CategoryKindMustReturn, 2)
	user := e.addUser(t, models.UserRoleFaculty)

	req := activeBorrowing(t, e, eq, user, 3)

	e.setNow(e.clock.AddDate(0, 0, 5))
	record, _, err := e.returns.Submit(req.ID, "good", "")
	require.NoError(t, err)

	record, err = e.returns.Reject(record.ID, "admin", "photos missing")
	require.NoError(t, err)
	assert.Equal(t, models.ReturnStatusInitial, record.Status)
	assert.Equal(t, "photos missing", record.AdminNotes)

	// The provisional penalty survives the bounce.
	penalties, err := e.penalties.ListByRequester(user.ID)
	require.NoError(t, err)
	require.Len(t, penalties, 1)
	assert.Equal(t, models.PenaltyStatusPending, penalties[0].Status)

	// The record can still proceed through both stages afterwards.
	record, err = e.returns.ApproveStage1(record.ID, "admin", "resubmitted")
	require.NoError(t, err)
	_, err = e.returns.Complete(record.ID, "admin", "", "")
	require.NoError(t, err)

	// Rejecting a record past INITIAL is refused.
	_, err = e.returns.Reject(record.ID, "admin", "too late")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestComplete_PromotesOldestQueueEntryOnce(t *testing.T) {
	e := newEngine(t)
	eq := e.addEquipment(t, models.CategoryKindSingleCopy, 1)
	alice := e.addUser(t, models.UserRoleStudent)
	bob := e.addUser(t, models.UserRoleStudent)

	req := activeBorrowing(t, e, eq, alice, 3)

	// Bob queues behind alice.
	_, res, err := e.borrowing.Create(e.draft(eq, bob, 1, 2))
	require.NoError(t, err)
	require.True(t, res.QueueEligible)

	record, _, err := e.returns.Submit(req.ID, "good", "")
	require.NoError(t, err)
	_, err = e.returns.ApproveStage1(record.ID, "admin", "")
	require.NoError(t, err)
	_, err = e.returns.Complete(record.ID, "admin", "", "")
	require.NoError(t, err)

	entries, err := e.queue.ListByEquipment(eq.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.QueueStatusPromoted, entries[0].Status)

	// Bob now holds the unit through a system-approved borrowing.
	borrowings, err := e.borrowing.ListByRequester(bob.ID)
	require.NoError(t, err)

	var promoted *models.BorrowingRequest
	for i := range borrowings {
		if borrowings[i].Status == models.BorrowingStatusApproved {
			promoted = &borrowings[i]
		}
	}
	require.NotNil(t, promoted)
	assert.Equal(t, 1, promoted.Quantity)
	require.NotNil(t, promoted.ApproverID)
	assert.Equal(t, SystemApprover, *promoted.ApproverID)

	free, err := e.borrowing.FreeUnits(eq.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, free)
}

func TestPromoteNext_DuplicateEventDoesNotDoublePromote(t *testing.T) {
	e := newEngine(t)
	eq := e.addEquipment(t, models.CategoryKindSingleCopy, 1)
	alice := e.addUser(t, models.UserRoleStudent)
	bob := e.addUser(t, models.UserRoleStudent)
	carol := e.addUser(t, models.UserRoleStudent)

	req := activeBorrowing(t, e, eq, alice, 3)

	// Bob queues strictly before carol.
	_, _, err := e.borrowing.Create(e.draft(eq, bob, 1, 2))
	require.NoError(t, err)
	e.setNow(e.clock.Add(time.Minute))
	_, _, err = e.borrowing.Create(e.draft(eq, carol, 1, 2))
	require.NoError(t, err)

	record, _, err := e.returns.Submit(req.ID, "good", "")
	require.NoError(t, err)
	_, err = e.returns.ApproveStage1(record.ID, "admin", "")
	require.NoError(t, err)
	_, err = e.returns.Complete(record.ID, "admin", "", "")
	require.NoError(t, err)

	// One freed unit, one promotion: bob got it, carol still waits.
	assert.Equal(t, models.QueueStatusPromoted, e.queueStatusOf(t, eq, bob))
	assert.Equal(t, models.QueueStatusWaiting, e.queueStatusOf(t, eq, carol))

	// A duplicate promotion event for the same freed unit finds no capacity
	// and leaves carol in the queue.
	err = e.db.Transaction(func(tx *gorm.DB) error {
		locked, err := e.equipmentRepo.GetByIDForUpdate(tx, eq.ID)
		if err != nil {
			return err
		}
		promoted, err := e.queue.PromoteNext(tx, locked)
		require.NoError(t, err)
		assert.Nil(t, promoted)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, models.QueueStatusWaiting, e.queueStatusOf(t, eq, carol))

	allocated, err := e.borrowingRepo.SumAllocated(nil, eq.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, allocated, 1)
}

func TestPenaltyResolution(t *testing.T) {
	e := newEngine(t)
	eq := e.addEquipment(t, models.CategoryKindMustReturn, 2)
	user := e.addUser(t, models.UserRoleFaculty)

	req := activeBorrowing(t, e, eq, user, 3)

	e.setNow(e.clock.AddDate(0, 0, 5))
	_, _, err := e.returns.Submit(req.ID, "good", "")
	require.NoError(t, err)

	penalties, err := e.penalties.ListByRequester(user.ID)
	require.NoError(t, err)
	require.Len(t, penalties, 1)

	paid, err := e.penalties.Pay(penalties[0].ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, models.PenaltyStatusPaid, paid.Status)
	require.NotNil(t, paid.ResolvedBy)
	assert.Equal(t, "admin", *paid.ResolvedBy)

	// A resolved penalty cannot be resolved again.
	_, err = e.penalties.Waive(penalties[0].ID, "admin")
	assert.ErrorIs(t, err, ErrPenaltyResolved)
}
