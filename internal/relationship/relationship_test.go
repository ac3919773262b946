package relationship

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/chainweave/supply-api/internal/ledger"
	"github.com/chainweave/supply-api/internal/registry"
	"github.com/chainweave/supply-api/pkg/apperr"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&registry.Company{}, &ledger.Product{}, &ledger.Component{},
		&Relationship{}, &NegotiationStep{},
	))
	return db
}

type fixture struct {
	svc       *Service
	productID string
	start     int64
	end       int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupTestDB(t)
	var mu sync.Mutex

	reg := registry.NewService(db, &mu)
	_, err := reg.Register("Acme Supply", "0xS")
	require.NoError(t, err)
	_, err = reg.Register("Bolt Retail", "0xB")
	require.NoError(t, err)

	products := ledger.NewService(db, &mu)
	product, err := products.Create("0xS", "Laptop", "", "", 100, 100000)
	require.NoError(t, err)

	now := time.Now().Unix()
	return &fixture{
		svc:       NewService(db, &mu),
		productID: product.ProductID,
		start:     now,
		end:       now + 90*24*3600,
	}
}

func TestRequestCreatesFirstStep(t *testing.T) {
	f := newFixture(t)

	rel, err := f.svc.Request("0xS", "0xS", "0xB", f.productID, 100000, f.start, f.end)
	require.NoError(t, err)
	require.Equal(t, StatusPending, rel.Status)
	require.Len(t, rel.Steps, 1)
	require.Equal(t, 1, rel.Steps[0].StepNumber)
	require.Equal(t, "0xS", rel.Steps[0].Proposer)
	require.Equal(t, int64(100000), rel.Steps[0].UnitPrice)
	require.Zero(t, rel.AgreedPrice)
}

func TestRequestValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Request("0xS", "0xS", "0xB", f.productID, 0, f.start, f.end)
	require.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = f.svc.Request("0xS", "0xS", "0xB", f.productID, 100000, f.end, f.start)
	require.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = f.svc.Request("0xS", "0xS", "0xS", f.productID, 100000, f.start, f.end)
	require.True(t, apperr.IsKind(err, apperr.KindValidation))

	// The caller must be one of the two parties.
	_, err = f.svc.Request("0xB", "0xS", "0xOTHER", f.productID, 100000, f.start, f.end)
	require.True(t, apperr.IsKind(err, apperr.KindAuthorization))

	_, err = f.svc.Request("0xS", "0xS", "0xB", "PRD_missing", 100000, f.start, f.end)
	require.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestNegotiateAlternatesTurns(t *testing.T) {
	f := newFixture(t)

	rel, err := f.svc.Request("0xS", "0xS", "0xB", f.productID, 100000, f.start, f.end)
	require.NoError(t, err)

	// The last proposer may not move twice in a row.
	_, err = f.svc.Negotiate("0xS", rel.RelationshipID, 99000, f.end)
	require.True(t, apperr.IsKind(err, apperr.KindAuthorization))

	rel, err = f.svc.Negotiate("0xB", rel.RelationshipID, 90000, f.end)
	require.NoError(t, err)
	require.Len(t, rel.Steps, 2)
	require.Equal(t, 2, rel.Steps[1].StepNumber)
	require.Equal(t, "0xB", rel.Steps[1].Proposer)

	rel, err = f.svc.Negotiate("0xS", rel.RelationshipID, 95000, f.end)
	require.NoError(t, err)
	require.Len(t, rel.Steps, 3)
	require.Equal(t, 3, rel.Steps[2].StepNumber)
}

func TestAcceptFreezesLatestStep(t *testing.T) {
	f := newFixture(t)

	rel, err := f.svc.Request("0xS", "0xS", "0xB", f.productID, 100000, f.start, f.end)
	require.NoError(t, err)
	_, err = f.svc.Negotiate("0xB", rel.RelationshipID, 91000, f.end)
	require.NoError(t, err)

	// Only the counterparty of the latest step may accept.
	_, err = f.svc.Accept("0xB", rel.RelationshipID)
	require.True(t, apperr.IsKind(err, apperr.KindAuthorization))

	accepted, err := f.svc.Accept("0xS", rel.RelationshipID)
	require.NoError(t, err)
	require.Equal(t, StatusAccepted, accepted.Status)
	require.Equal(t, int64(91000), accepted.AgreedPrice)
}

func TestTerminalStatesAreFinal(t *testing.T) {
	f := newFixture(t)

	rel, err := f.svc.Request("0xS", "0xS", "0xB", f.productID, 100000, f.start, f.end)
	require.NoError(t, err)
	_, err = f.svc.Reject("0xB", rel.RelationshipID)
	require.NoError(t, err)

	_, err = f.svc.Negotiate("0xB", rel.RelationshipID, 90000, f.end)
	require.True(t, apperr.IsKind(err, apperr.KindState))
	_, err = f.svc.Accept("0xB", rel.RelationshipID)
	require.True(t, apperr.IsKind(err, apperr.KindState))
}

func TestNonPartyCannotAct(t *testing.T) {
	f := newFixture(t)

	rel, err := f.svc.Request("0xS", "0xS", "0xB", f.productID, 100000, f.start, f.end)
	require.NoError(t, err)

	_, err = f.svc.Negotiate("0xOTHER", rel.RelationshipID, 90000, f.end)
	require.True(t, apperr.IsKind(err, apperr.KindAuthorization))
	_, err = f.svc.Accept("0xOTHER", rel.RelationshipID)
	require.True(t, apperr.IsKind(err, apperr.KindAuthorization))
}

func TestHistoryAndQueries(t *testing.T) {
	f := newFixture(t)

	rel, err := f.svc.Request("0xS", "0xS", "0xB", f.productID, 100000, f.start, f.end)
	require.NoError(t, err)
	_, err = f.svc.Negotiate("0xB", rel.RelationshipID, 91000, f.end)
	require.NoError(t, err)

	steps, err := f.svc.History(rel.RelationshipID)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	require.Equal(t, 1, steps[0].StepNumber)
	require.Equal(t, 2, steps[1].StepNumber)

	pending, err := f.svc.PendingFor("0xB")
	require.NoError(t, err)
	require.Len(t, pending, 1)

	active, err := f.svc.ActiveFor("0xB")
	require.NoError(t, err)
	require.Empty(t, active)

	_, err = f.svc.Accept("0xS", rel.RelationshipID)
	require.NoError(t, err)

	active, err = f.svc.ActiveFor("0xB")
	require.NoError(t, err)
	require.Len(t, active, 1)

	_, err = f.svc.Get("REL_missing")
	require.True(t, apperr.IsKind(err, apperr.KindNotFound))
}
