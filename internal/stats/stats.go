package stats

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/chainweave/supply-api/internal/ledger"
	"github.com/chainweave/supply-api/internal/marketplace"
	"github.com/chainweave/supply-api/internal/orders"
	"github.com/chainweave/supply-api/internal/registry"
	"github.com/chainweave/supply-api/internal/relationship"
	"github.com/chainweave/supply-api/internal/transactions"
	"github.com/chainweave/supply-api/pkg/response"
)

// Stats is a read-only aggregate snapshot of the ledger.
type Stats struct {
	Companies      int64 `json:"companies"`
	Products       int64 `json:"products"`
	Relationships  int64 `json:"relationships"`
	Orders         int64 `json:"orders"`
	ActiveListings int64 `json:"active_listings"`
	Transactions   int64 `json:"transactions"`
	TradedVolume   int64 `json:"traded_volume"` // smallest currency unit
}

// Service serves aggregate counts over the shared database handle.
type Service struct {
	db *gorm.DB
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{db: gormDB}
}

// Snapshot collects the current aggregate counts.
func (s *Service) Snapshot() (*Stats, error) {
	var out Stats

	counts := []struct {
		model interface{}
		dest  *int64
		where []interface{}
	}{
		{model: &registry.Company{}, dest: &out.Companies},
		{model: &ledger.Product{}, dest: &out.Products},
		{model: &relationship.Relationship{}, dest: &out.Relationships},
		{model: &orders.Order{}, dest: &out.Orders},
		{model: &marketplace.Listing{}, dest: &out.ActiveListings, where: []interface{}{"is_active = ?", true}},
	}
	for _, c := range counts {
		q := s.db.Model(c.model)
		if len(c.where) > 0 {
			q = q.Where(c.where[0], c.where[1:]...)
		}
		if err := q.Count(c.dest).Error; err != nil {
			return nil, err
		}
	}

	if err := s.db.Model(&transactions.Transaction{}).Count(&out.Transactions).Error; err != nil {
		return nil, err
	}
	var sum struct {
		Total int64
	}
	err := s.db.Model(&transactions.Transaction{}).
		Select("COALESCE(SUM(total_price), 0) AS total").
		Scan(&sum).Error
	if err != nil {
		return nil, err
	}
	out.TradedVolume = sum.Total

	return &out, nil
}

// GinHandlers contains the stats endpoint handler
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// StatsHandler handles GET requests for the aggregate snapshot
func (h *GinHandlers) StatsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		snapshot, err := h.service.Snapshot()
		response.Handle(c, snapshot, err)
	}
}
