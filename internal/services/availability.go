package services

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"labloan/internal/models"
	"labloan/internal/repositories"
)

// AvailabilityCalculator computes free units of an equipment item:
// stock minus everything committed to APPROVED/ACTIVE borrowings.
type AvailabilityCalculator struct {
	db            *gorm.DB
	equipmentRepo repositories.EquipmentRepository
	borrowingRepo repositories.BorrowingRepository
}

func NewAvailabilityCalculator(db *gorm.DB, equipmentRepo repositories.EquipmentRepository, borrowingRepo repositories.BorrowingRepository) *AvailabilityCalculator {
	return &AvailabilityCalculator{db: db, equipmentRepo: equipmentRepo, borrowingRepo: borrowingRepo}
}

// FreeUnits reads the stock figure and the allocation sum in one snapshot.
// Callers holding a transaction (and typically the equipment row lock) pass
// it in; with a nil handle a read-only transaction is opened so the two reads
// still see a single consistent state.
func (a *AvailabilityCalculator) FreeUnits(db *gorm.DB, equipmentID uuid.UUID) (int, error) {
	if db == nil {
		var free int
		err := a.db.Transaction(func(tx *gorm.DB) error {
			var txErr error
			free, txErr = a.freeUnits(tx, equipmentID)
			return txErr
		})
		return free, err
	}
	return a.freeUnits(db, equipmentID)
}

// FreeUnitsOf is the variant for callers that already loaded (and locked) the
// equipment row inside db.
func (a *AvailabilityCalculator) FreeUnitsOf(db *gorm.DB, eq *models.Equipment) (int, error) {
	allocated, err := a.borrowingRepo.SumAllocated(db, eq.ID)
	if err != nil {
		return 0, err
	}
	return eq.Stock - allocated, nil
}

func (a *AvailabilityCalculator) freeUnits(db *gorm.DB, equipmentID uuid.UUID) (int, error) {
	eq, err := a.equipmentRepo.GetByID(db, equipmentID)
	if err != nil {
		return 0, err
	}
	return a.FreeUnitsOf(db, eq)
}

// RefreshStatus re-derives and stores the cached availability projection for
// an equipment row, inside the caller's transaction.
func (a *AvailabilityCalculator) RefreshStatus(db *gorm.DB, eq *models.Equipment) error {
	free, err := a.FreeUnitsOf(db, eq)
	if err != nil {
		return err
	}
	status := DeriveStatus(eq, free)
	if status == eq.Status {
		return nil
	}
	eq.Status = status
	return a.equipmentRepo.UpdateStatus(db, eq.ID, status)
}

// DeriveStatus recomputes the cached availability projection from the free
// count. Maintenance and damaged markers are set by hand and stick until an
// admin clears them.
func DeriveStatus(eq *models.Equipment, free int) models.EquipmentStatus {
	if eq.Status == models.EquipmentStatusMaintenance || eq.Status == models.EquipmentStatusDamaged {
		return eq.Status
	}
	if free <= 0 && eq.Stock > 0 {
		return models.EquipmentStatusBorrowed
	}
	return models.EquipmentStatusAvailable
}
