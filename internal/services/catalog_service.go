package services

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"labloan/internal/models"
	"labloan/internal/repositories"
)

// CatalogService is the thin seeding/browsing surface over the catalog
// store. It exists so the engine can be exercised end-to-end; the real CRUD
// screens live outside the engine.
type CatalogService interface {
	CreateCategory(name string, kind models.CategoryKind) (*models.Category, error)
	ListCategories() ([]models.Category, error)
	CreateEquipment(categoryID uuid.UUID, name string, stock int, condition string) (*models.Equipment, error)
	GetEquipment(id uuid.UUID) (*models.Equipment, error)
	ListEquipment() ([]models.Equipment, error)
	SetEquipmentStatus(id uuid.UUID, status models.EquipmentStatus) error
	CreateUser(name string, role models.UserRole) (*models.User, error)
}

type catalogService struct {
	db            *gorm.DB
	categoryRepo  repositories.CategoryRepository
	equipmentRepo repositories.EquipmentRepository
	userRepo      repositories.UserRepository
}

func NewCatalogService(
	db *gorm.DB,
	categoryRepo repositories.CategoryRepository,
	equipmentRepo repositories.EquipmentRepository,
	userRepo repositories.UserRepository,
) CatalogService {
	return &catalogService{
		db:            db,
		categoryRepo:  categoryRepo,
		equipmentRepo: equipmentRepo,
		userRepo:      userRepo,
	}
}

func (s *catalogService) CreateCategory(name string, kind models.CategoryKind) (*models.Category, error) {
	cat := &models.Category{Name: name, Kind: kind}
	if err := s.categoryRepo.Create(nil, cat); err != nil {
		return nil, err
	}
	return cat, nil
}

func (s *catalogService) ListCategories() ([]models.Category, error) {
	return s.categoryRepo.List(nil)
}

func (s *catalogService) CreateEquipment(categoryID uuid.UUID, name string, stock int, condition string) (*models.Equipment, error) {
	if _, err := s.categoryRepo.GetByID(nil, categoryID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCategoryNotFound
		}
		return nil, err
	}
	if condition == "" {
		condition = "good"
	}
	eq := &models.Equipment{
		CategoryID: categoryID,
		Name:       name,
		Stock:      stock,
		Condition:  condition,
		Status:     models.EquipmentStatusAvailable,
	}
	if err := s.equipmentRepo.Create(nil, eq); err != nil {
		return nil, err
	}
	return eq, nil
}

func (s *catalogService) GetEquipment(id uuid.UUID) (*models.Equipment, error) {
	eq, err := s.equipmentRepo.GetByID(nil, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEquipmentNotFound
	}
	return eq, err
}

func (s *catalogService) ListEquipment() ([]models.Equipment, error) {
	return s.equipmentRepo.List(nil)
}

func (s *catalogService) SetEquipmentStatus(id uuid.UUID, status models.EquipmentStatus) error {
	if _, err := s.equipmentRepo.GetByID(nil, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrEquipmentNotFound
		}
		return err
	}
	return s.equipmentRepo.UpdateStatus(nil, id, status)
}

func (s *catalogService) CreateUser(name string, role models.UserRole) (*models.User, error) {
	user := &models.User{Name: name, Role: role}
	if err := s.userRepo.Create(nil, user); err != nil {
		return nil, err
	}
	return user, nil
}
