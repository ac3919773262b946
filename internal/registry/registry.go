package registry

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/chainweave/supply-api/internal/auth"
	"github.com/chainweave/supply-api/pkg/apperr"
	"github.com/chainweave/supply-api/pkg/response"
)

// Service handles company registration and identity lookups
type Service struct {
	db *Database
	mu *sync.Mutex
}

// NewService creates a new registry service. The mutex is the process-wide
// write lock shared by every service; mutating operations hold it for their
// whole duration so writes are globally serialized.
func NewService(gormDB *gorm.DB, mu *sync.Mutex) *Service {
	return &Service{
		db: NewDatabase(gormDB),
		mu: mu,
	}
}

// Register creates a company for an address that does not yet have one.
func (s *Service) Register(name, address string) (*Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name == "" {
		return nil, apperr.Validation("company name must not be empty")
	}
	if address == "" {
		return nil, apperr.Validation("company address must not be empty")
	}

	existing, err := s.db.GetCompanyByAddress(address)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.State("address %s is already registered", address)
	}

	company := &Company{
		CompanyID:    "CMP_" + uuid.New().String(),
		Address:      address,
		Name:         name,
		RegisteredAt: time.Now().Unix(),
	}

	if err := s.db.CreateCompany(company); err != nil {
		return nil, err
	}

	log.Info().
		Str("service", "registry").
		Str("company_id", company.CompanyID).
		Str("address", address).
		Str("name", name).
		Msg("company registered")

	return company, nil
}

// Update renames the company owned by the caller's address.
func (s *Service) Update(name, address string) (*Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name == "" {
		return nil, apperr.Validation("company name must not be empty")
	}

	company, err := s.db.GetCompanyByAddress(address)
	if err != nil {
		return nil, err
	}
	if company == nil {
		return nil, apperr.Authorization("address %s is not registered", address)
	}

	company.Name = name
	if err := s.db.UpdateCompany(company); err != nil {
		return nil, err
	}
	return company, nil
}

// Get retrieves a company by address.
func (s *Service) Get(address string) (*Company, error) {
	company, err := s.db.GetCompanyByAddress(address)
	if err != nil {
		return nil, err
	}
	if company == nil {
		return nil, apperr.NotFound("no company registered at address %s", address)
	}
	return company, nil
}

// IsRegistered reports whether an address has a company.
func (s *Service) IsRegistered(address string) (bool, error) {
	company, err := s.db.GetCompanyByAddress(address)
	if err != nil {
		return false, err
	}
	return company != nil, nil
}

// ListAll returns every registered address in registration order.
func (s *Service) ListAll() ([]string, error) {
	return s.db.ListAddresses()
}

// RequireRegisteredInTx fails with an authorization error when the address
// has no company. Used by other services inside their own transactions.
func RequireRegisteredInTx(tx *gorm.DB, address string) error {
	var count int64
	if err := tx.Model(&Company{}).Where("address = ?", address).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return apperr.Authorization("address %s is not registered", address)
	}
	return nil
}

// CreditInTx adds amount to the balance of the company at address, inside an
// already-open settlement transaction. Callers hold the global write lock.
func CreditInTx(tx *gorm.DB, address string, amount int64) error {
	result := tx.Model(&Company{}).
		Where("address = ?", address).
		Update("balance", gorm.Expr("balance + ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("no company registered at address %s", address)
	}
	return nil
}

// GinHandlers contains HTTP handlers for company endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// RegisterHandler handles POST requests to register the caller's company.
// The company address is the authenticated caller address.
func (h *GinHandlers) RegisterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request struct {
			Name string `json:"name" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		company, err := h.service.Register(request.Name, auth.CallerAddress(c))
		response.Handle(c, company, err)
	}
}

// UpdateHandler handles PUT requests to rename the caller's company
func (h *GinHandlers) UpdateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request struct {
			Name string `json:"name" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		company, err := h.service.Update(request.Name, auth.CallerAddress(c))
		response.Handle(c, company, err)
	}
}

// GetHandler handles GET requests for a company by address
func (h *GinHandlers) GetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		company, err := h.service.Get(c.Param("address"))
		response.Handle(c, company, err)
	}
}

// IsRegisteredHandler reports whether an address has a company
func (h *GinHandlers) IsRegisteredHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		registered, err := h.service.IsRegistered(c.Param("address"))
		response.Handle(c, gin.H{"registered": registered}, err)
	}
}

// ListHandler returns all registered addresses
func (h *GinHandlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		addresses, err := h.service.ListAll()
		response.Handle(c, addresses, err)
	}
}
