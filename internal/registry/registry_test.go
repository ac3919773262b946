package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/chainweave/supply-api/pkg/apperr"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// Use a unique in-memory database per test to avoid cross-test collisions.
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Company{}))
	return db
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	var mu sync.Mutex
	return NewService(setupTestDB(t), &mu)
}

func TestRegisterAndGet(t *testing.T) {
	svc := newTestService(t)

	company, err := svc.Register("Supplier Inc", "0xS")
	require.NoError(t, err)
	require.Equal(t, "Supplier Inc", company.Name)
	require.Equal(t, "0xS", company.Address)
	require.NotEmpty(t, company.CompanyID)
	require.Zero(t, company.Balance)

	got, err := svc.Get("0xS")
	require.NoError(t, err)
	require.Equal(t, company.CompanyID, got.CompanyID)

	registered, err := svc.IsRegistered("0xS")
	require.NoError(t, err)
	require.True(t, registered)

	registered, err = svc.IsRegistered("0xUNKNOWN")
	require.NoError(t, err)
	require.False(t, registered)
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Register("", "0xS")
	require.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = svc.Register("Supplier Inc", "")
	require.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestRegisterDuplicateAddress(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Register("Supplier Inc", "0xS")
	require.NoError(t, err)

	_, err = svc.Register("Impostor Inc", "0xS")
	require.True(t, apperr.IsKind(err, apperr.KindState))
}

func TestUpdate(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Register("Supplier Inc", "0xS")
	require.NoError(t, err)

	updated, err := svc.Update("Supplier International", "0xS")
	require.NoError(t, err)
	require.Equal(t, "Supplier International", updated.Name)

	got, err := svc.Get("0xS")
	require.NoError(t, err)
	require.Equal(t, "Supplier International", got.Name)

	_, err = svc.Update("Ghost Corp", "0xGHOST")
	require.True(t, apperr.IsKind(err, apperr.KindAuthorization))
}

func TestGetNotFound(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Get("0xNOBODY")
	require.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestListAll(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Register("First", "0xA")
	require.NoError(t, err)
	_, err = svc.Register("Second", "0xB")
	require.NoError(t, err)

	addresses, err := svc.ListAll()
	require.NoError(t, err)
	require.Equal(t, []string{"0xA", "0xB"}, addresses)
}

func TestCreditInTx(t *testing.T) {
	db := setupTestDB(t)
	var mu sync.Mutex
	svc := NewService(db, &mu)

	_, err := svc.Register("Supplier Inc", "0xS")
	require.NoError(t, err)

	require.NoError(t, CreditInTx(db, "0xS", 2200))
	require.NoError(t, CreditInTx(db, "0xS", 800))

	company, err := svc.Get("0xS")
	require.NoError(t, err)
	require.Equal(t, int64(3000), company.Balance)

	err = CreditInTx(db, "0xNOBODY", 100)
	require.True(t, apperr.IsKind(err, apperr.KindNotFound))
}
