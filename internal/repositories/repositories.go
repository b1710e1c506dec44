package repositories

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"labloan/internal/models"
)

// Every repository method takes the transaction handle as its first argument;
// passing nil falls back to the repository's own connection. Services open
// the transaction and thread tx through so multi-step flows stay atomic.

type UserRepository interface {
	GetByID(db *gorm.DB, id uuid.UUID) (*models.User, error)
	Create(db *gorm.DB, user *models.User) error
}

type CategoryRepository interface {
	Create(db *gorm.DB, cat *models.Category) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Category, error)
	GetByName(db *gorm.DB, name string) (*models.Category, error)
	List(db *gorm.DB) ([]models.Category, error)
}

type EquipmentRepository interface {
	Create(db *gorm.DB, eq *models.Equipment) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Equipment, error)
	// GetByIDForUpdate locks the equipment row for the rest of the enclosing
	// transaction. All capacity-changing flows go through this lock.
	GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Equipment, error)
	List(db *gorm.DB) ([]models.Equipment, error)
	UpdateStatus(db *gorm.DB, id uuid.UUID, status models.EquipmentStatus) error
}

type BorrowingRepository interface {
	Create(db *gorm.DB, req *models.BorrowingRequest) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.BorrowingRequest, error)
	GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.BorrowingRequest, error)
	// SumAllocated returns the total quantity committed to APPROVED/ACTIVE
	// requests for one equipment, read in the caller's snapshot.
	SumAllocated(db *gorm.DB, equipmentID uuid.UUID) (int, error)
	CountAllocatedByRequester(db *gorm.DB, requesterID uuid.UUID) (int64, error)
	UpdateStatus(db *gorm.DB, id uuid.UUID, status models.BorrowingStatus) error
	MarkApproved(db *gorm.DB, id uuid.UUID, approver string, at time.Time) error
	MarkRejected(db *gorm.DB, id uuid.UUID, reason string, at time.Time) error
	MarkReturned(db *gorm.DB, id uuid.UUID, at time.Time) error
	ListByRequester(db *gorm.DB, requesterID uuid.UUID) ([]models.BorrowingRequest, error)
	// ListApprovedDueToStart finds APPROVED requests whose window has opened.
	ListApprovedDueToStart(db *gorm.DB, today time.Time) ([]models.BorrowingRequest, error)
	// ListActivePastDue finds ACTIVE requests whose window has closed.
	ListActivePastDue(db *gorm.DB, today time.Time) ([]models.BorrowingRequest, error)
}

type QueueRepository interface {
	Create(db *gorm.DB, entry *models.QueueEntry) error
	// NextWaiting returns the oldest WAITING entry for the equipment, locked.
	NextWaiting(db *gorm.DB, equipmentID uuid.UUID) (*models.QueueEntry, error)
	UpdateStatus(db *gorm.DB, id uuid.UUID, status models.QueueStatus) error
	ListByEquipment(db *gorm.DB, equipmentID uuid.UUID) ([]models.QueueEntry, error)
	HasWaiting(db *gorm.DB, equipmentID, requesterID uuid.UUID) (bool, error)
}

type ReturnRepository interface {
	Create(db *gorm.DB, rec *models.ReturnRecord) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.ReturnRecord, error)
	GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.ReturnRecord, error)
	GetByBorrowing(db *gorm.DB, borrowingID uuid.UUID) (*models.ReturnRecord, error)
	Update(db *gorm.DB, rec *models.ReturnRecord) error
}

type PenaltyRepository interface {
	Create(db *gorm.DB, rec *models.PenaltyRecord) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.PenaltyRecord, error)
	ExistsForBorrowing(db *gorm.DB, borrowingID uuid.UUID) (bool, error)
	CountPendingByRequester(db *gorm.DB, requesterID uuid.UUID) (int64, error)
	ListByRequester(db *gorm.DB, requesterID uuid.UUID) ([]models.PenaltyRecord, error)
	Resolve(db *gorm.DB, id uuid.UUID, status models.PenaltyStatus, actor string, at time.Time) error
}

// forUpdate adds a row lock on dialects that support it. SQLite, used by the
// test suite, serializes writers at the database level and rejects FOR UPDATE.
func forUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() == "sqlite" {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

// concrete implementations

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.User, error) {
	if db == nil {
		db = r.db
	}
	var user models.User
	if err := db.First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) Create(db *gorm.DB, user *models.User) error {
	if db == nil {
		db = r.db
	}
	return db.Create(user).Error
}

type categoryRepository struct {
	db *gorm.DB
}

func NewCategoryRepository(db *gorm.DB) CategoryRepository {
	return &categoryRepository{db: db}
}

func (r *categoryRepository) Create(db *gorm.DB, cat *models.Category) error {
	if db == nil {
		db = r.db
	}
	return db.Create(cat).Error
}

func (r *categoryRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Category, error) {
	if db == nil {
		db = r.db
	}
	var cat models.Category
	if err := db.First(&cat, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &cat, nil
}

func (r *categoryRepository) GetByName(db *gorm.DB, name string) (*models.Category, error) {
	if db == nil {
		db = r.db
	}
	var cat models.Category
	if err := db.First(&cat, "name = ?", name).Error; err != nil {
		return nil, err
	}
	return &cat, nil
}

func (r *categoryRepository) List(db *gorm.DB) ([]models.Category, error) {
	if db == nil {
		db = r.db
	}
	var cats []models.Category
	if err := db.Order("name").Find(&cats).Error; err != nil {
		return nil, err
	}
	return cats, nil
}

type equipmentRepository struct {
	db *gorm.DB
}

func NewEquipmentRepository(db *gorm.DB) EquipmentRepository {
	return &equipmentRepository{db: db}
}

func (r *equipmentRepository) Create(db *gorm.DB, eq *models.Equipment) error {
	if db == nil {
		db = r.db
	}
	return db.Create(eq).Error
}

func (r *equipmentRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Equipment, error) {
	if db == nil {
		db = r.db
	}
	var eq models.Equipment
	if err := db.Preload("Category").First(&eq, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &eq, nil
}

func (r *equipmentRepository) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Equipment, error) {
	if db == nil {
		db = r.db
	}
	var eq models.Equipment
	if err := forUpdate(db).First(&eq, "id = ?", id).Error; err != nil {
		return nil, err
	}
	// Category is loaded separately: Preload combined with FOR UPDATE would
	// lock the category row too.
	if err := db.First(&eq.Category, "id = ?", eq.CategoryID).Error; err != nil {
		return nil, err
	}
	return &eq, nil
}

func (r *equipmentRepository) List(db *gorm.DB) ([]models.Equipment, error) {
	if db == nil {
		db = r.db
	}
	var eqs []models.Equipment
	if err := db.Preload("Category").Order("name").Find(&eqs).Error; err != nil {
		return nil, err
	}
	return eqs, nil
}

func (r *equipmentRepository) UpdateStatus(db *gorm.DB, id uuid.UUID, status models.EquipmentStatus) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Equipment{}).
		Where("id = ?", id).
		Update("status", status).
		Error
}

type borrowingRepository struct {
	db *gorm.DB
}

func NewBorrowingRepository(db *gorm.DB) BorrowingRepository {
	return &borrowingRepository{db: db}
}

func (r *borrowingRepository) Create(db *gorm.DB, req *models.BorrowingRequest) error {
	if db == nil {
		db = r.db
	}
	return db.Create(req).Error
}

func (r *borrowingRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.BorrowingRequest, error) {
	if db == nil {
		db = r.db
	}
	var req models.BorrowingRequest
	if err := db.First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *borrowingRepository) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.BorrowingRequest, error) {
	if db == nil {
		db = r.db
	}
	var req models.BorrowingRequest
	if err := forUpdate(db).First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *borrowingRepository) SumAllocated(db *gorm.DB, equipmentID uuid.UUID) (int, error) {
	if db == nil {
		db = r.db
	}
	var total int
	err := db.Model(&models.BorrowingRequest{}).
		Where("equipment_id = ? AND status IN ?", equipmentID,
			[]models.BorrowingStatus{models.BorrowingStatusApproved, models.BorrowingStatusActive}).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error
	return total, err
}

func (r *borrowingRepository) CountAllocatedByRequester(db *gorm.DB, requesterID uuid.UUID) (int64, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.Model(&models.BorrowingRequest{}).
		Where("requester_id = ? AND status IN ?", requesterID,
			[]models.BorrowingStatus{models.BorrowingStatusApproved, models.BorrowingStatusActive}).
		Count(&n).Error
	return n, err
}

func (r *borrowingRepository) UpdateStatus(db *gorm.DB, id uuid.UUID, status models.BorrowingStatus) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.BorrowingRequest{}).
		Where("id = ?", id).
		Update("status", status).
		Error
}

func (r *borrowingRepository) MarkApproved(db *gorm.DB, id uuid.UUID, approver string, at time.Time) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.BorrowingRequest{}).
		Where("id = ? AND status = ?", id, models.BorrowingStatusPending).
		Updates(map[string]interface{}{
			"status":      models.BorrowingStatusApproved,
			"approver_id": approver,
			"approved_at": at,
		}).Error
}

func (r *borrowingRepository) MarkRejected(db *gorm.DB, id uuid.UUID, reason string, at time.Time) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.BorrowingRequest{}).
		Where("id = ? AND status = ?", id, models.BorrowingStatusPending).
		Updates(map[string]interface{}{
			"status":        models.BorrowingStatusRejected,
			"reject_reason": reason,
			"resolved_at":   at,
		}).Error
}

func (r *borrowingRepository) MarkReturned(db *gorm.DB, id uuid.UUID, at time.Time) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.BorrowingRequest{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      models.BorrowingStatusReturned,
			"resolved_at": at,
		}).Error
}

func (r *borrowingRepository) ListByRequester(db *gorm.DB, requesterID uuid.UUID) ([]models.BorrowingRequest, error) {
	if db == nil {
		db = r.db
	}
	var reqs []models.BorrowingRequest
	if err := db.Where("requester_id = ?", requesterID).
		Order("created_at DESC").
		Find(&reqs).Error; err != nil {
		return nil, err
	}
	return reqs, nil
}

func (r *borrowingRepository) ListApprovedDueToStart(db *gorm.DB, today time.Time) ([]models.BorrowingRequest, error) {
	if db == nil {
		db = r.db
	}
	var reqs []models.BorrowingRequest
	if err := db.Where("status = ? AND start_date <= ?", models.BorrowingStatusApproved, today).
		Find(&reqs).Error; err != nil {
		return nil, err
	}
	return reqs, nil
}

func (r *borrowingRepository) ListActivePastDue(db *gorm.DB, today time.Time) ([]models.BorrowingRequest, error) {
	if db == nil {
		db = r.db
	}
	var reqs []models.BorrowingRequest
	if err := db.Where("status = ? AND end_date < ?", models.BorrowingStatusActive, today).
		Find(&reqs).Error; err != nil {
		return nil, err
	}
	return reqs, nil
}

type queueRepository struct {
	db *gorm.DB
}

func NewQueueRepository(db *gorm.DB) QueueRepository {
	return &queueRepository{db: db}
}

func (r *queueRepository) Create(db *gorm.DB, entry *models.QueueEntry) error {
	if db == nil {
		db = r.db
	}
	return db.Create(entry).Error
}

func (r *queueRepository) NextWaiting(db *gorm.DB, equipmentID uuid.UUID) (*models.QueueEntry, error) {
	if db == nil {
		db = r.db
	}
	var entry models.QueueEntry
	err := forUpdate(db).
		Where("equipment_id = ? AND status = ?", equipmentID, models.QueueStatusWaiting).
		Order("created_at ASC, id ASC").
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *queueRepository) UpdateStatus(db *gorm.DB, id uuid.UUID, status models.QueueStatus) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.QueueEntry{}).
		Where("id = ?", id).
		Update("status", status).
		Error
}

func (r *queueRepository) ListByEquipment(db *gorm.DB, equipmentID uuid.UUID) ([]models.QueueEntry, error) {
	if db == nil {
		db = r.db
	}
	// Same ordering as NextWaiting, so a listing reflects promotion order.
	var entries []models.QueueEntry
	if err := db.Where("equipment_id = ?", equipmentID).
		Order("created_at ASC, id ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *queueRepository) HasWaiting(db *gorm.DB, equipmentID, requesterID uuid.UUID) (bool, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.Model(&models.QueueEntry{}).
		Where("equipment_id = ? AND requester_id = ? AND status = ?",
			equipmentID, requesterID, models.QueueStatusWaiting).
		Count(&n).Error
	return n > 0, err
}

type returnRepository struct {
	db *gorm.DB
}

func NewReturnRepository(db *gorm.DB) ReturnRepository {
	return &returnRepository{db: db}
}

func (r *returnRepository) Create(db *gorm.DB, rec *models.ReturnRecord) error {
	if db == nil {
		db = r.db
	}
	return db.Create(rec).Error
}

func (r *returnRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.ReturnRecord, error) {
	if db == nil {
		db = r.db
	}
	var rec models.ReturnRecord
	if err := db.First(&rec, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *returnRepository) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.ReturnRecord, error) {
	if db == nil {
		db = r.db
	}
	var rec models.ReturnRecord
	if err := forUpdate(db).First(&rec, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *returnRepository) GetByBorrowing(db *gorm.DB, borrowingID uuid.UUID) (*models.ReturnRecord, error) {
	if db == nil {
		db = r.db
	}
	var rec models.ReturnRecord
	if err := db.First(&rec, "borrowing_id = ?", borrowingID).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *returnRepository) Update(db *gorm.DB, rec *models.ReturnRecord) error {
	if db == nil {
		db = r.db
	}
	return db.Save(rec).Error
}

type penaltyRepository struct {
	db *gorm.DB
}

func NewPenaltyRepository(db *gorm.DB) PenaltyRepository {
	return &penaltyRepository{db: db}
}

func (r *penaltyRepository) Create(db *gorm.DB, rec *models.PenaltyRecord) error {
	if db == nil {
		db = r.db
	}
	return db.Create(rec).Error
}

func (r *penaltyRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.PenaltyRecord, error) {
	if db == nil {
		db = r.db
	}
	var rec models.PenaltyRecord
	if err := db.First(&rec, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *penaltyRepository) ExistsForBorrowing(db *gorm.DB, borrowingID uuid.UUID) (bool, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.Model(&models.PenaltyRecord{}).
		Where("borrowing_id = ?", borrowingID).
		Count(&n).Error
	return n > 0, err
}

func (r *penaltyRepository) CountPendingByRequester(db *gorm.DB, requesterID uuid.UUID) (int64, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.Model(&models.PenaltyRecord{}).
		Joins("JOIN borrowing_requests ON borrowing_requests.id = penalty_records.borrowing_id").
		Where("borrowing_requests.requester_id = ? AND penalty_records.status = ?",
			requesterID, models.PenaltyStatusPending).
		Count(&n).Error
	return n, err
}

func (r *penaltyRepository) ListByRequester(db *gorm.DB, requesterID uuid.UUID) ([]models.PenaltyRecord, error) {
	if db == nil {
		db = r.db
	}
	var recs []models.PenaltyRecord
	if err := db.
		Joins("JOIN borrowing_requests ON borrowing_requests.id = penalty_records.borrowing_id").
		Where("borrowing_requests.requester_id = ?", requesterID).
		Order("penalty_records.created_at DESC").
		Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

func (r *penaltyRepository) Resolve(db *gorm.DB, id uuid.UUID, status models.PenaltyStatus, actor string, at time.Time) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.PenaltyRecord{}).
		Where("id = ? AND status = ?", id, models.PenaltyStatusPending).
		Updates(map[string]interface{}{
			"status":      status,
			"resolved_by": actor,
			"resolved_at": at,
		}).Error
}
