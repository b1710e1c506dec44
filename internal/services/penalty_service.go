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

// PenaltyService resolves penalty records. Amounts are fixed at creation;
// only the status moves, and only once: PENDING → {PAID | WAIVED}.
type PenaltyService interface {
	Pay(id uuid.UUID, actor string) (*models.PenaltyRecord, error)
	Waive(id uuid.UUID, actor string) (*models.PenaltyRecord, error)
	ListByRequester(requesterID uuid.UUID) ([]models.PenaltyRecord, error)
}

type penaltyService struct {
	db          *gorm.DB
	penaltyRepo repositories.PenaltyRepository

	now func() time.Time
}

func NewPenaltyService(db *gorm.DB, penaltyRepo repositories.PenaltyRepository) PenaltyService {
	return &penaltyService{
		db:          db,
		penaltyRepo: penaltyRepo,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *penaltyService) Pay(id uuid.UUID, actor string) (*models.PenaltyRecord, error) {
	return s.resolve(id, models.PenaltyStatusPaid, actor)
}

func (s *penaltyService) Waive(id uuid.UUID, actor string) (*models.PenaltyRecord, error) {
	return s.resolve(id, models.PenaltyStatusWaived, actor)
}

func (s *penaltyService) resolve(id uuid.UUID, status models.PenaltyStatus, actor string) (*models.PenaltyRecord, error) {
	var record *models.PenaltyRecord

	err := s.db.Transaction(func(tx *gorm.DB) error {
		rec, err := s.penaltyRepo.GetByID(tx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPenaltyNotFound
			}
			return err
		}
		if rec.Status != models.PenaltyStatusPending {
			return ErrPenaltyResolved
		}
		if err := s.penaltyRepo.Resolve(tx, id, status, actor, s.now()); err != nil {
			return err
		}
		record, err = s.penaltyRepo.GetByID(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[INFO] ResolvePenalty: record %s marked %s by %s", id, status, actor)
	return record, nil
}

func (s *penaltyService) ListByRequester(requesterID uuid.UUID) ([]models.PenaltyRecord, error) {
	return s.penaltyRepo.ListByRequester(nil, requesterID)
}
