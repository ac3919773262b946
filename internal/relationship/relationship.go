package relationship

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/chainweave/supply-api/internal/auth"
	"github.com/chainweave/supply-api/internal/ledger"
	"github.com/chainweave/supply-api/internal/registry"
	"github.com/chainweave/supply-api/pkg/apperr"
	"github.com/chainweave/supply-api/pkg/response"
)

// Service handles relationship negotiation between trading parties
type Service struct {
	db *Database
	mu *sync.Mutex
}

// NewService creates a new relationship service sharing the global write lock.
func NewService(gormDB *gorm.DB, mu *sync.Mutex) *Service {
	return &Service{
		db: NewDatabase(gormDB),
		mu: mu,
	}
}

// Request opens a pending relationship between a supplier and a buyer over a
// product. The caller must be one of the two parties and authors step 1.
func (s *Service) Request(caller, supplier, buyer, productID string, price, start, end int64) (*Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if price <= 0 {
		return nil, apperr.Validation("relationship price must be positive")
	}
	if end <= start {
		return nil, apperr.Validation("relationship end date must be after its start date")
	}
	if supplier == buyer {
		return nil, apperr.Validation("supplier and buyer must be distinct")
	}
	if caller != supplier && caller != buyer {
		return nil, apperr.Authorization("%s is not a party to the requested relationship", caller)
	}

	tx := s.db.Handle().Begin()
	if err := tx.Error; err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	for _, address := range []string{supplier, buyer} {
		if err := registry.RequireRegisteredInTx(tx, address); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	var productCount int64
	if err := tx.Model(&ledger.Product{}).Where("product_id = ?", productID).Count(&productCount).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if productCount == 0 {
		tx.Rollback()
		return nil, apperr.NotFound("product %s does not exist", productID)
	}

	relationshipID := "REL_" + uuid.New().String()
	relationship := &Relationship{
		RelationshipID: relationshipID,
		Supplier:       supplier,
		Buyer:          buyer,
		ProductID:      productID,
		StartDate:      start,
		EndDate:        end,
		Status:         StatusPending,
		Steps: []NegotiationStep{{
			RelationshipID: relationshipID,
			StepNumber:     1,
			UnitPrice:      price,
			Proposer:       caller,
			Timestamp:      time.Now().Unix(),
			EndDate:        end,
		}},
	}

	if err := tx.Create(relationship).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	log.Info().
		Str("service", "relationship").
		Str("relationship_id", relationship.RelationshipID).
		Str("supplier", supplier).
		Str("buyer", buyer).
		Str("product_id", productID).
		Int64("price", price).
		Msg("relationship requested")

	return relationship, nil
}

// Negotiate appends a counter-proposal. Only the counter-party of the latest
// step may respond, so the proposer alternates every step.
func (s *Service) Negotiate(caller, relationshipID string, price, end int64) (*Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if price <= 0 {
		return nil, apperr.Validation("relationship price must be positive")
	}

	relationship, latest, err := s.pendingTurn(caller, relationshipID)
	if err != nil {
		return nil, err
	}
	if end <= relationship.StartDate {
		return nil, apperr.Validation("relationship end date must be after its start date")
	}

	step := &NegotiationStep{
		RelationshipID: relationship.RelationshipID,
		StepNumber:     latest.StepNumber + 1,
		UnitPrice:      price,
		Proposer:       caller,
		Timestamp:      time.Now().Unix(),
		EndDate:        end,
	}

	if err := s.db.Handle().Create(step).Error; err != nil {
		return nil, err
	}

	relationship.Steps = append(relationship.Steps, *step)
	return relationship, nil
}

// Accept freezes the latest step's price and end date as the binding terms
// and moves the relationship to its accepted terminal state.
func (s *Service) Accept(caller, relationshipID string) (*Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	relationship, latest, err := s.pendingTurn(caller, relationshipID)
	if err != nil {
		return nil, err
	}

	relationship.Status = StatusAccepted
	relationship.AgreedPrice = latest.UnitPrice
	relationship.EndDate = latest.EndDate

	if err := s.db.Handle().Save(relationship).Error; err != nil {
		return nil, err
	}

	log.Info().
		Str("service", "relationship").
		Str("relationship_id", relationship.RelationshipID).
		Int64("agreed_price", relationship.AgreedPrice).
		Msg("relationship accepted")

	return relationship, nil
}

// Reject moves the relationship to its rejected terminal state.
func (s *Service) Reject(caller, relationshipID string) (*Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	relationship, _, err := s.pendingTurn(caller, relationshipID)
	if err != nil {
		return nil, err
	}

	relationship.Status = StatusRejected
	if err := s.db.Handle().Save(relationship).Error; err != nil {
		return nil, err
	}
	return relationship, nil
}

// pendingTurn loads a pending relationship and checks that the caller is a
// party whose turn it is: only the non-proposer of the latest step may act.
func (s *Service) pendingTurn(caller, relationshipID string) (*Relationship, *NegotiationStep, error) {
	relationship, err := s.db.GetRelationship(relationshipID)
	if err != nil {
		return nil, nil, err
	}
	if relationship == nil {
		return nil, nil, apperr.NotFound("relationship %s does not exist", relationshipID)
	}
	if !relationship.IsParty(caller) {
		return nil, nil, apperr.Authorization("%s is not a party to relationship %s", caller, relationshipID)
	}
	if relationship.Status != StatusPending {
		return nil, nil, apperr.State("relationship %s is %s, not pending", relationshipID, relationship.Status)
	}
	latest := relationship.LatestStep()
	if latest == nil {
		return nil, nil, apperr.State("relationship %s has no negotiation steps", relationshipID)
	}
	if latest.Proposer == caller {
		return nil, nil, apperr.Authorization("it is not %s's turn: awaiting a response from %s", caller, relationship.Counterparty(caller))
	}
	return relationship, latest, nil
}

// Get retrieves a relationship by id.
func (s *Service) Get(relationshipID string) (*Relationship, error) {
	relationship, err := s.db.GetRelationship(relationshipID)
	if err != nil {
		return nil, err
	}
	if relationship == nil {
		return nil, apperr.NotFound("relationship %s does not exist", relationshipID)
	}
	return relationship, nil
}

// History returns the ordered negotiation steps of a relationship.
func (s *Service) History(relationshipID string) ([]NegotiationStep, error) {
	relationship, err := s.Get(relationshipID)
	if err != nil {
		return nil, err
	}
	return relationship.Steps, nil
}

// ActiveFor lists accepted relationships involving an address.
func (s *Service) ActiveFor(address string) ([]Relationship, error) {
	return s.db.GetByParticipantAndStatus(address, StatusAccepted)
}

// PendingFor lists pending relationships involving an address.
func (s *Service) PendingFor(address string) ([]Relationship, error) {
	return s.db.GetByParticipantAndStatus(address, StatusPending)
}

// GinHandlers contains HTTP handlers for relationship endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// RequestHandler handles POST requests to open a relationship
func (h *GinHandlers) RequestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request struct {
			Supplier  string `json:"supplier" binding:"required"`
			Buyer     string `json:"buyer" binding:"required"`
			ProductID string `json:"product_id" binding:"required"`
			UnitPrice int64  `json:"unit_price" binding:"required"`
			StartDate int64  `json:"start_date" binding:"required"`
			EndDate   int64  `json:"end_date" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		relationship, err := h.service.Request(
			auth.CallerAddress(c),
			request.Supplier, request.Buyer, request.ProductID,
			request.UnitPrice, request.StartDate, request.EndDate,
		)
		response.Handle(c, relationship, err)
	}
}

// NegotiateHandler handles POST requests to counter-propose terms
func (h *GinHandlers) NegotiateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request struct {
			UnitPrice int64 `json:"unit_price" binding:"required"`
			EndDate   int64 `json:"end_date" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		relationship, err := h.service.Negotiate(
			auth.CallerAddress(c), c.Param("relationship_id"),
			request.UnitPrice, request.EndDate,
		)
		response.Handle(c, relationship, err)
	}
}

// AcceptHandler handles POST requests to accept the latest proposal
func (h *GinHandlers) AcceptHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		relationship, err := h.service.Accept(auth.CallerAddress(c), c.Param("relationship_id"))
		response.Handle(c, relationship, err)
	}
}

// RejectHandler handles POST requests to reject the relationship
func (h *GinHandlers) RejectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		relationship, err := h.service.Reject(auth.CallerAddress(c), c.Param("relationship_id"))
		response.Handle(c, relationship, err)
	}
}

// GetHandler handles GET requests for a relationship by id
func (h *GinHandlers) GetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		relationship, err := h.service.Get(c.Param("relationship_id"))
		response.Handle(c, relationship, err)
	}
}

// HistoryHandler handles GET requests for the negotiation history
func (h *GinHandlers) HistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		steps, err := h.service.History(c.Param("relationship_id"))
		response.Handle(c, steps, err)
	}
}

// ActiveForHandler lists accepted relationships for an address
func (h *GinHandlers) ActiveForHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		relationships, err := h.service.ActiveFor(c.Param("address"))
		response.Handle(c, relationships, err)
	}
}

// PendingForHandler lists pending relationships for an address
func (h *GinHandlers) PendingForHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		relationships, err := h.service.PendingFor(c.Param("address"))
		response.Handle(c, relationships, err)
	}
}
