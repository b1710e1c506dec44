package repositories

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"labloan/internal/models"
)

func openMigrated(t *testing.T, name string) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	return db
}

// The schema must migrate cleanly on the SQLite test dialect: a column
// default leaning on a Postgres extension would be emitted verbatim into the
// DDL and rejected there.
func TestMigrate_SQLiteDialect(t *testing.T) {
	db := openMigrated(t, "migrate_ddl")

	// IDs come from the BeforeCreate hooks, not a database default.
	user := &models.User{Name: "pat", Role: models.UserRoleStudent}
	require.NoError(t, db.Create(user).Error)
	assert.NotEqual(t, uuid.Nil, user.ID)
}

func TestMigrate_UniqueReturnPerBorrowing(t *testing.T) {
	db := openMigrated(t, "migrate_uniq")

	user := &models.User{Name: "pat", Role: models.UserRoleStudent}
	require.NoError(t, db.Create(user).Error)
	cat := &models.Category{Name: "cat", Kind: models.CategoryKindMustReturn}
	require.NoError(t, db.Create(cat).Error)
	eq := &models.Equipment{CategoryID: cat.ID, Name: "eq", Stock: 1, Condition: "good", Status: models.EquipmentStatusAvailable}
	require.NoError(t, db.Create(eq).Error)

	now := time.Now().UTC()
	req := &models.BorrowingRequest{
		EquipmentID: eq.ID,
		RequesterID: user.ID,
		Quantity:    1,
		StartDate:   now,
		EndDate:     now.AddDate(0, 0, 2),
		Status:      models.BorrowingStatusActive,
		CreatedAt:   now,
	}
	require.NoError(t, db.Create(req).Error)

	first := &models.ReturnRecord{BorrowingID: req.ID, ReportedCondition: "good", Status: models.ReturnStatusInitial, CreatedAt: now}
	require.NoError(t, db.Create(first).Error)

	// The raw index backs the one-return-per-borrowing rule in the database.
	second := &models.ReturnRecord{BorrowingID: req.ID, ReportedCondition: "good", Status: models.ReturnStatusInitial, CreatedAt: now}
	assert.Error(t, db.Create(second).Error)
}
