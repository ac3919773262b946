package ledger

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/chainweave/supply-api/internal/registry"
	"github.com/chainweave/supply-api/pkg/apperr"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&registry.Company{}, &Product{}, &Component{}))
	return db
}

func newTestService(t *testing.T, addresses ...string) (*Service, *gorm.DB) {
	t.Helper()
	db := setupTestDB(t)
	var mu sync.Mutex
	reg := registry.NewService(db, &mu)
	for _, address := range addresses {
		_, err := reg.Register("Company "+address, address)
		require.NoError(t, err)
	}
	return NewService(db, &mu), db
}

func TestCreateProduct(t *testing.T) {
	svc, _ := newTestService(t, "0xS")

	product, err := svc.Create("0xS", "Laptop", "13in ultrabook", "bafyhash", 100, 100)
	require.NoError(t, err)
	require.Equal(t, "0xS", product.OwnerAddress)
	require.Equal(t, int64(100), product.Quantity)
	require.Equal(t, []string{"0xS"}, product.OwnerChain())
	require.Empty(t, product.ParentChain())
	require.False(t, product.IsManufactured)
	require.Equal(t, "0xS", product.OriginalCreator)
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService(t, "0xS")

	_, err := svc.Create("0xS", "", "", "", 10, 100)
	require.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = svc.Create("0xS", "Laptop", "", "", 0, 100)
	require.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = svc.Create("0xS", "Laptop", "", "", 10, 0)
	require.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = svc.Create("0xUNREGISTERED", "Laptop", "", "", 10, 100)
	require.True(t, apperr.IsKind(err, apperr.KindAuthorization))
}

func TestPartialTransferSplitsChild(t *testing.T) {
	svc, _ := newTestService(t, "0xS", "0xB")

	parent, err := svc.Create("0xS", "Laptop", "", "", 100, 100)
	require.NoError(t, err)

	child, err := svc.Transfer("0xS", parent.ProductID, "0xB", 30)
	require.NoError(t, err)
	require.NotEqual(t, parent.ProductID, child.ProductID)
	require.Equal(t, "0xB", child.OwnerAddress)
	require.Equal(t, int64(30), child.Quantity)
	require.Equal(t, []string{"0xB"}, child.OwnerChain())
	require.Equal(t, []string{parent.ProductID}, child.ParentChain())
	require.Equal(t, parent.UnitPrice, child.UnitPrice)

	// Conservation: parent quantity after + child quantity == quantity before.
	reloaded, err := svc.Get(parent.ProductID)
	require.NoError(t, err)
	require.Equal(t, int64(70), reloaded.Quantity)
	require.Equal(t, "0xS", reloaded.OwnerAddress)
	require.Equal(t, int64(100), reloaded.Quantity+child.Quantity)

	chain, err := svc.Traceability(child.ProductID)
	require.NoError(t, err)
	require.Equal(t, []string{"0xS", "0xB"}, chain)
}

func TestFullTransferKeepsIdentity(t *testing.T) {
	svc, _ := newTestService(t, "0xS", "0xB")

	product, err := svc.Create("0xS", "Laptop", "", "", 100, 100)
	require.NoError(t, err)

	moved, err := svc.Transfer("0xS", product.ProductID, "0xB", 100)
	require.NoError(t, err)
	require.Equal(t, product.ProductID, moved.ProductID)
	require.Equal(t, "0xB", moved.OwnerAddress)
	require.Equal(t, []string{"0xS", "0xB"}, moved.OwnerChain())
	require.Empty(t, moved.ParentChain())

	chain, err := svc.Traceability(product.ProductID)
	require.NoError(t, err)
	require.Equal(t, []string{"0xS", "0xB"}, chain)
}

func TestTransferErrors(t *testing.T) {
	svc, _ := newTestService(t, "0xS", "0xB")

	product, err := svc.Create("0xS", "Laptop", "", "", 100, 100)
	require.NoError(t, err)

	_, err = svc.Transfer("0xB", product.ProductID, "0xS", 10)
	require.True(t, apperr.IsKind(err, apperr.KindAuthorization))

	_, err = svc.Transfer("0xS", product.ProductID, "0xUNREGISTERED", 10)
	require.True(t, apperr.IsKind(err, apperr.KindAuthorization))

	_, err = svc.Transfer("0xS", product.ProductID, "0xB", 101)
	require.True(t, apperr.IsKind(err, apperr.KindInsufficientInventory))

	_, err = svc.Transfer("0xS", "PRD_missing", "0xB", 10)
	require.True(t, apperr.IsKind(err, apperr.KindNotFound))

	// Failed transfers must leave the source untouched.
	reloaded, err := svc.Get(product.ProductID)
	require.NoError(t, err)
	require.Equal(t, int64(100), reloaded.Quantity)
	require.Equal(t, "0xS", reloaded.OwnerAddress)
}

func TestTraceabilityAcrossChainedSplits(t *testing.T) {
	svc, _ := newTestService(t, "0xS", "0xB", "0xC")

	parent, err := svc.Create("0xS", "Laptop", "", "", 100, 100)
	require.NoError(t, err)

	child, err := svc.Transfer("0xS", parent.ProductID, "0xB", 40)
	require.NoError(t, err)

	grandchild, err := svc.Transfer("0xB", child.ProductID, "0xC", 10)
	require.NoError(t, err)
	require.Equal(t, []string{parent.ProductID, child.ProductID}, grandchild.ParentChain())

	chain, err := svc.Traceability(grandchild.ProductID)
	require.NoError(t, err)
	require.Equal(t, []string{"0xS", "0xB", "0xC"}, chain)
}

func TestManufacture(t *testing.T) {
	svc, _ := newTestService(t, "0xS")

	chassis, err := svc.Create("0xS", "Chassis", "", "", 100, 10)
	require.NoError(t, err)
	panel, err := svc.Create("0xS", "Panel", "", "", 50, 20)
	require.NoError(t, err)

	laptop, err := svc.Manufacture("0xS", "Laptop", "assembled", "", 10, []Ingredient{
		{IngredientID: chassis.ProductID, QtyNeeded: 5},
		{IngredientID: panel.ProductID, QtyNeeded: 3},
	}, 500)
	require.NoError(t, err)
	require.True(t, laptop.IsManufactured)
	require.Equal(t, "0xS", laptop.OriginalCreator)
	require.Equal(t, int64(10), laptop.Quantity)

	require.Len(t, laptop.Components, 2)
	require.Equal(t, chassis.ProductID, laptop.Components[0].IngredientID)
	require.Equal(t, int64(50), laptop.Components[0].QuantityUsed)
	require.Equal(t, panel.ProductID, laptop.Components[1].IngredientID)
	require.Equal(t, int64(30), laptop.Components[1].QuantityUsed)
	require.Equal(t, "0xS", laptop.Components[0].Supplier)

	// Ingredients decremented by qty_needed * qty_to_produce.
	reloaded, err := svc.Get(chassis.ProductID)
	require.NoError(t, err)
	require.Equal(t, int64(50), reloaded.Quantity)
	reloaded, err = svc.Get(panel.ProductID)
	require.NoError(t, err)
	require.Equal(t, int64(20), reloaded.Quantity)
}

func TestManufactureRollsBackOnFailure(t *testing.T) {
	svc, _ := newTestService(t, "0xS", "0xB")

	chassis, err := svc.Create("0xS", "Chassis", "", "", 100, 10)
	require.NoError(t, err)
	scarce, err := svc.Create("0xS", "Rare Metal", "", "", 5, 20)
	require.NoError(t, err)

	// The second ingredient cannot cover the request: nothing may change.
	_, err = svc.Manufacture("0xS", "Laptop", "", "", 10, []Ingredient{
		{IngredientID: chassis.ProductID, QtyNeeded: 5},
		{IngredientID: scarce.ProductID, QtyNeeded: 3},
	}, 500)
	require.True(t, apperr.IsKind(err, apperr.KindInsufficientInventory))

	reloaded, err := svc.Get(chassis.ProductID)
	require.NoError(t, err)
	require.Equal(t, int64(100), reloaded.Quantity)
	reloaded, err = svc.Get(scarce.ProductID)
	require.NoError(t, err)
	require.Equal(t, int64(5), reloaded.Quantity)
}

func TestManufactureOwnershipCheck(t *testing.T) {
	svc, _ := newTestService(t, "0xS", "0xB")

	theirs, err := svc.Create("0xB", "Panel", "", "", 50, 20)
	require.NoError(t, err)

	_, err = svc.Manufacture("0xS", "Laptop", "", "", 1, []Ingredient{
		{IngredientID: theirs.ProductID, QtyNeeded: 1},
	}, 500)
	require.True(t, apperr.IsKind(err, apperr.KindAuthorization))
}

func TestByOwner(t *testing.T) {
	svc, _ := newTestService(t, "0xS", "0xB")

	first, err := svc.Create("0xS", "Laptop", "", "", 100, 100)
	require.NoError(t, err)
	_, err = svc.Create("0xB", "Panel", "", "", 50, 20)
	require.NoError(t, err)

	products, err := svc.ByOwner("0xS")
	require.NoError(t, err)
	require.Len(t, products, 1)
	require.Equal(t, first.ProductID, products[0].ProductID)
}

func TestTraceabilityNotFound(t *testing.T) {
	svc, _ := newTestService(t, "0xS")

	_, err := svc.Traceability("PRD_missing")
	require.True(t, apperr.IsKind(err, apperr.KindNotFound))
}
