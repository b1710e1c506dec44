package services

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"labloan/internal/config"
	"labloan/internal/models"
	"labloan/internal/notify"
	"labloan/internal/repositories"
)

var dbSeq int64

// newTestDB opens a fresh shared in-memory SQLite database per test. The
// busy-timeout pragma keeps concurrent writer tests from failing fast on the
// database-level write lock.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc%d?mode=memory&cache=shared&_pragma=busy_timeout(10000)",
		atomic.AddInt64(&dbSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, repositories.Migrate(db))
	return db
}

// engine wires the full service graph over a test database with a frozen,
// settable clock.
type engine struct {
	db    *gorm.DB
	rules config.Rules

	availability *AvailabilityCalculator
	validator    *BorrowingValidator
	queue        *QueueManager
	borrowing    BorrowingService
	returns      ReturnService
	penalties    PenaltyService
	catalog      CatalogService

	borrowingRepo repositories.BorrowingRepository
	queueRepo     repositories.QueueRepository
	returnRepo    repositories.ReturnRepository
	penaltyRepo   repositories.PenaltyRepository
	equipmentRepo repositories.EquipmentRepository

	clock time.Time
}

var baseClock = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newEngine(t *testing.T) *engine {
	t.Helper()
	db := newTestDB(t)

	e := &engine{db: db, rules: config.DefaultRules(), clock: baseClock}
	now := func() time.Time { return e.clock }

	userRepo := repositories.NewUserRepository(db)
	categoryRepo := repositories.NewCategoryRepository(db)
	e.equipmentRepo = repositories.NewEquipmentRepository(db)
	e.borrowingRepo = repositories.NewBorrowingRepository(db)
	e.queueRepo = repositories.NewQueueRepository(db)
	e.returnRepo = repositories.NewReturnRepository(db)
	e.penaltyRepo = repositories.NewPenaltyRepository(db)

	e.availability = NewAvailabilityCalculator(db, e.equipmentRepo, e.borrowingRepo)
	e.validator = NewBorrowingValidator(e.rules, e.availability, userRepo, e.equipmentRepo, e.borrowingRepo, e.penaltyRepo)
	e.validator.now = now
	e.queue = NewQueueManager(e.availability, e.validator, e.queueRepo, e.borrowingRepo)
	e.queue.now = now

	e.borrowing = NewBorrowingService(db, e.rules, e.availability, e.validator, e.queue, notify.NopNotifier{},
		e.equipmentRepo, e.borrowingRepo, e.penaltyRepo)
	e.borrowing.(*borrowingService).now = now

	e.returns = NewReturnService(db, e.rules, e.availability, e.queue, notify.NopNotifier{},
		e.equipmentRepo, e.borrowingRepo, e.returnRepo, e.penaltyRepo)
	e.returns.(*returnService).now = now

	e.penalties = NewPenaltyService(db, e.penaltyRepo)
	e.penalties.(*penaltyService).now = now

	e.catalog = NewCatalogService(db, categoryRepo, e.equipmentRepo, userRepo)
	return e
}

func (e *engine) setNow(t time.Time) { e.clock = t }

func (e *engine) today() time.Time { return dateOnly(e.clock) }

func (e *engine) addUser(t *testing.T, role models.UserRole) *models.User {
	t.Helper()
	user, err := e.catalog.CreateUser("user-"+string(role), role)
	require.NoError(t, err)
	return user
}

func (e *engine) addEquipment(t *testing.T, kind models.CategoryKind, stock int) *models.Equipment {
	t.Helper()
	cat, err := e.catalog.CreateCategory(fmt.Sprintf("cat-%s-%d", kind, atomic.AddInt64(&dbSeq, 1)), kind)
	require.NoError(t, err)
	eq, err := e.catalog.CreateEquipment(cat.ID, "equipment", stock, "good")
	require.NoError(t, err)
	eq.Category = *cat
	return eq
}

// draft builds a request starting today and running the given number of days.
func (e *engine) draft(eq *models.Equipment, user *models.User, qty, days int) BorrowingDraft {
	start := e.today()
	return BorrowingDraft{
		EquipmentID: eq.ID,
		RequesterID: user.ID,
		Quantity:    qty,
		StartDate:   start,
		EndDate:     start.AddDate(0, 0, days),
		Purpose:     "lab session",
	}
}

// mustBorrow creates a request and asserts it was accepted.
func (e *engine) mustBorrow(t *testing.T, eq *models.Equipment, user *models.User, qty, days int) *models.BorrowingRequest {
	t.Helper()
	req, _, err := e.borrowing.Create(e.draft(eq, user, qty, days))
	require.NoError(t, err)
	return req
}

// mustApproved creates a request and, when it lands PENDING (auto-approval
// headroom used up), approves it as an admin.
func (e *engine) mustApproved(t *testing.T, eq *models.Equipment, user *models.User, qty, days int) *models.BorrowingRequest {
	t.Helper()
	req := e.mustBorrow(t, eq, user, qty, days)
	if req.Status == models.BorrowingStatusPending {
		var err error
		req, err = e.borrowing.Approve(req.ID, "admin")
		require.NoError(t, err)
	}
	return req
}

// queueStatusOf returns the queue entry status a requester holds for the
// equipment, failing the test when no entry exists.
func (e *engine) queueStatusOf(t *testing.T, eq *models.Equipment, user *models.User) models.QueueStatus {
	t.Helper()
	entries, err := e.queue.ListByEquipment(eq.ID)
	require.NoError(t, err)
	for _, entry := range entries {
		if entry.RequesterID == user.ID {
			return entry.Status
		}
	}
	t.Fatalf("no queue entry for requester %s", user.ID)
	return ""
}

// sweep runs the overdue sweep, which also activates APPROVED requests whose
// start date has arrived.
func (e *engine) sweep(t *testing.T) OverdueReport {
	t.Helper()
	report, err := e.borrowing.ProcessOverdue()
	require.NoError(t, err)
	return report
}
