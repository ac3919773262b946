package orders

import (
	"errors"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/chainweave/supply-api/internal/auth"
	"github.com/chainweave/supply-api/internal/ledger"
	"github.com/chainweave/supply-api/internal/marketplace"
	"github.com/chainweave/supply-api/internal/registry"
	"github.com/chainweave/supply-api/internal/relationship"
	"github.com/chainweave/supply-api/internal/transactions"
	"github.com/chainweave/supply-api/pkg/apperr"
	"github.com/chainweave/supply-api/pkg/response"
)

const (
	// ApprovalWindow is how long a seller has to approve a pending order.
	ApprovalWindow = 7 * 24 * time.Hour
	// PaymentWindow is how long a buyer has to settle an approved order.
	PaymentWindow = 14 * 24 * time.Hour
)

// Service drives orders from placement through delivery milestones to
// settlement. Deadlines have no active timer: an order past its deadline is
// moved to expired whenever it is next read or mutated (the background
// Processor sweeps the same transition as an optimization).
type Service struct {
	db *Database
	mu *sync.Mutex
}

// NewService creates a new order pipeline service sharing the global write lock.
func NewService(gormDB *gorm.DB, mu *sync.Mutex) *Service {
	return &Service{
		db: NewDatabase(gormDB),
		mu: mu,
	}
}

// PlaceRelationshipOrder places an order against an accepted relationship at
// its bound price. Only the relationship's buyer may place it.
func (s *Service) PlaceRelationshipOrder(buyer, relationshipID string, qty int64, notes string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if qty <= 0 {
		return nil, apperr.Validation("order quantity must be positive")
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

	order, err := s.placeRelationshipInTx(tx, buyer, relationshipID, qty, notes)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	log.Info().
		Str("service", "orders").
		Str("order_id", order.OrderID).
		Str("relationship_id", relationshipID).
		Str("buyer", buyer).
		Int64("quantity", qty).
		Int64("total_price", order.TotalPrice).
		Msg("relationship order placed")

	return order, nil
}

func (s *Service) placeRelationshipInTx(tx *gorm.DB, buyer, relationshipID string, qty int64, notes string) (*Order, error) {
	var rel relationship.Relationship
	if err := tx.Where("relationship_id = ?", relationshipID).First(&rel).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("relationship %s does not exist", relationshipID)
		}
		return nil, err
	}
	if buyer != rel.Buyer {
		return nil, apperr.Authorization("only the relationship buyer may place orders against it")
	}
	if rel.Status != relationship.StatusAccepted {
		return nil, apperr.State("relationship %s is %s, not accepted", relationshipID, rel.Status)
	}
	now := time.Now()
	if rel.EndDate > 0 && now.Unix() > rel.EndDate {
		return nil, apperr.State("relationship %s has ended", relationshipID)
	}

	product, err := getProductInTx(tx, rel.ProductID)
	if err != nil {
		return nil, err
	}
	if product.OwnerAddress != rel.Supplier {
		return nil, apperr.State("supplier no longer owns product %s", rel.ProductID)
	}
	if qty > product.Quantity {
		return nil, apperr.InsufficientInventory("order of %d exceeds available quantity %d", qty, product.Quantity)
	}

	order := &Order{
		OrderID:          "ORD_" + uuid.New().String(),
		Buyer:            buyer,
		Seller:           rel.Supplier,
		ProductID:        rel.ProductID,
		Quantity:         qty,
		UnitPrice:        rel.AgreedPrice,
		TotalPrice:       qty * rel.AgreedPrice,
		OrderType:        TypeRelationship,
		Status:           StatusPending,
		ApprovalDeadline: now.Add(ApprovalWindow).Unix(),
		Notes:            notes,
		RelationshipID:   relationshipID,
	}
	if err := tx.Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

// PlaceMarketplaceOrder places an order against an active spot listing at the
// listing price. The listed quantity is reserved (decremented) at placement,
// not at payment, so two orders cannot claim the same allotment.
func (s *Service) PlaceMarketplaceOrder(buyer, listingID string, qty int64, notes string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if qty <= 0 {
		return nil, apperr.Validation("order quantity must be positive")
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

	order, err := s.placeMarketplaceInTx(tx, buyer, listingID, qty, notes)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	log.Info().
		Str("service", "orders").
		Str("order_id", order.OrderID).
		Str("listing_id", listingID).
		Str("buyer", buyer).
		Int64("quantity", qty).
		Int64("total_price", order.TotalPrice).
		Msg("marketplace order placed")

	return order, nil
}

func (s *Service) placeMarketplaceInTx(tx *gorm.DB, buyer, listingID string, qty int64, notes string) (*Order, error) {
	listing, err := marketplace.GetListingInTx(tx, listingID)
	if err != nil {
		return nil, err
	}
	if listing == nil {
		return nil, apperr.NotFound("listing %s does not exist", listingID)
	}
	if !listing.IsActive {
		return nil, apperr.State("listing %s is no longer active", listingID)
	}
	if buyer == listing.Seller {
		return nil, apperr.Validation("cannot order from your own listing")
	}
	if qty > listing.QuantityAvailable {
		return nil, apperr.InsufficientInventory("order of %d exceeds listed quantity %d", qty, listing.QuantityAvailable)
	}
	if err := registry.RequireRegisteredInTx(tx, buyer); err != nil {
		return nil, err
	}

	listing.QuantityAvailable -= qty
	if listing.QuantityAvailable == 0 {
		listing.IsActive = false
	}
	if err := tx.Save(listing).Error; err != nil {
		return nil, err
	}

	order := &Order{
		OrderID:          "ORD_" + uuid.New().String(),
		Buyer:            buyer,
		Seller:           listing.Seller,
		ProductID:        listing.ProductID,
		Quantity:         qty,
		UnitPrice:        listing.UnitPrice,
		TotalPrice:       qty * listing.UnitPrice,
		OrderType:        TypeSpot,
		Status:           StatusPending,
		ApprovalDeadline: time.Now().Add(ApprovalWindow).Unix(),
		Notes:            notes,
		ListingID:        listingID,
	}
	if err := tx.Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

// Approve moves a pending order to approved, starts the payment window and
// records the first delivery event. Seller only.
func (s *Service) Approve(caller, orderID string) (*Order, error) {
	return s.mutate(orderID, func(tx *gorm.DB, order *Order) error {
		if caller != order.Seller {
			return apperr.Authorization("only the seller may approve order %s", orderID)
		}
		if order.Status != StatusPending {
			return apperr.State("order %s is %s, not pending", orderID, order.Status)
		}

		order.Status = StatusApproved
		order.PaymentDeadline = time.Now().Add(PaymentWindow).Unix()
		if err := tx.Save(order).Error; err != nil {
			return err
		}
		return appendEventInTx(tx, order, EventApproved, "order approved by seller", caller)
	})
}

// Reject moves a pending order to its rejected terminal state. Seller only.
func (s *Service) Reject(caller, orderID, reason string) (*Order, error) {
	return s.mutate(orderID, func(tx *gorm.DB, order *Order) error {
		if caller != order.Seller {
			return apperr.Authorization("only the seller may reject order %s", orderID)
		}
		if order.Status != StatusPending {
			return apperr.State("order %s is %s, not pending", orderID, order.Status)
		}

		order.Status = StatusRejected
		order.RejectionReason = reason
		return tx.Save(order).Error
	})
}

// AddDeliveryEvent appends a fulfillment milestone. The tag must be the
// immediate successor of the last recorded event and the caller must hold
// the role the tag belongs to.
func (s *Service) AddDeliveryEvent(caller, orderID, tag, description string) (*Order, error) {
	return s.mutate(orderID, func(tx *gorm.DB, order *Order) error {
		if order.Status != StatusApproved {
			return apperr.State("order %s is %s, not approved", orderID, order.Status)
		}

		idx := sequenceIndex(tag)
		if idx < 0 {
			return apperr.Validation("unknown delivery status %q", tag)
		}
		if tag == EventApproved || tag == EventPaymentSent {
			return apperr.Validation("delivery status %q is recorded by the pipeline itself", tag)
		}

		if err := requireRole(order, caller, tag); err != nil {
			return err
		}

		latest := order.LatestEvent()
		if latest == nil || sequenceIndex(latest.Status)+1 != idx {
			last := "none"
			if latest != nil {
				last = latest.Status
			}
			return apperr.State("delivery status %q is out of sequence (last recorded: %s)", tag, last)
		}

		return appendEventInTx(tx, order, tag, description, caller)
	})
}

// Pay settles an approved order with native value. The order must have
// reached quality_checked; the required total moves to the seller, any excess
// is reported back as a refund, ownership transfers, and the trade is logged.
func (s *Service) Pay(caller, orderID string, amount int64) (*PaymentReceipt, error) {
	var receipt *PaymentReceipt
	_, err := s.mutate(orderID, func(tx *gorm.DB, order *Order) error {
		if caller != order.Buyer {
			return apperr.Authorization("only the buyer may pay for order %s", orderID)
		}
		if order.Status != StatusApproved {
			return apperr.State("order %s is %s, not approved", orderID, order.Status)
		}
		latest := order.LatestEvent()
		if latest == nil || latest.Status != EventQualityChecked {
			return apperr.State("order %s has not reached quality_checked", orderID)
		}
		if amount < order.TotalPrice {
			return apperr.InsufficientFunds("payment %d is below the required total %d", amount, order.TotalPrice)
		}

		txn, product, err := settleInTx(tx, order, caller)
		if err != nil {
			return err
		}
		if err := registry.CreditInTx(tx, order.Seller, order.TotalPrice); err != nil {
			return err
		}

		receipt = &PaymentReceipt{
			OrderID:        order.OrderID,
			TransactionID:  txn.TransactionID,
			ProductID:      product.ProductID,
			Quantity:       order.Quantity,
			SellerCredited: order.TotalPrice,
			Refund:         amount - order.TotalPrice,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("service", "orders").
		Str("order_id", orderID).
		Int64("seller_credited", receipt.SellerCredited).
		Int64("refund", receipt.Refund).
		Msg("order paid and settled")

	return receipt, nil
}

// CompleteWithExternalPayment settles an order confirmed by the external
// payment gateway. Each payment id is consumed at most once; retries of the
// same confirmation fail with a state error and have no further effect.
func (s *Service) CompleteWithExternalPayment(orderID, method, paymentID string) (*Order, error) {
	if paymentID == "" {
		return nil, apperr.Validation("an external payment id is required")
	}
	if method == "" {
		return nil, apperr.Validation("a payment method is required")
	}

	order, err := s.mutate(orderID, func(tx *gorm.DB, order *Order) error {
		consumed, err := externalPaymentExists(tx, paymentID)
		if err != nil {
			return err
		}
		if consumed {
			return apperr.State("external payment %s has already been consumed", paymentID)
		}
		if order.Status != StatusApproved {
			return apperr.State("order %s is %s, not approved", orderID, order.Status)
		}
		latest := order.LatestEvent()
		if latest == nil || latest.Status != EventQualityChecked {
			return apperr.State("order %s has not reached quality_checked", orderID)
		}

		payment := &ExternalPayment{
			PaymentID:  paymentID,
			OrderID:    order.OrderID,
			Method:     method,
			ReceivedAt: time.Now().Unix(),
		}
		if err := tx.Create(payment).Error; err != nil {
			return err
		}

		// Settled off-ledger: ownership moves and the trade is logged, but no
		// native balance is credited.
		_, _, err = settleInTx(tx, order, order.Buyer)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("service", "orders").
		Str("order_id", orderID).
		Str("method", method).
		Str("payment_id", paymentID).
		Msg("order completed via external payment")

	return order, nil
}

// settleInTx performs the completion steps shared by both payment paths:
// ownership transfer, the payment_sent event, the completed status and the
// transaction record.
func settleInTx(tx *gorm.DB, order *Order, actor string) (*transactions.Transaction, *ledger.Product, error) {
	product, err := ledger.TransferInTx(tx, order.Seller, order.Buyer, order.ProductID, order.Quantity)
	if err != nil {
		return nil, nil, err
	}

	if err := appendEventInTx(tx, order, EventPaymentSent, "payment settled", actor); err != nil {
		return nil, nil, err
	}

	order.Status = StatusCompleted
	if err := tx.Save(order).Error; err != nil {
		return nil, nil, err
	}

	txn, err := transactions.RecordInTx(tx, order.Buyer, order.Seller, order.ProductID, order.Quantity, order.TotalPrice, order.OrderType)
	if err != nil {
		return nil, nil, err
	}
	return txn, product, nil
}

// Get retrieves an order, reconciling its status against the clock first.
func (s *Service) Get(orderID string) (*Order, error) {
	order, err := s.db.GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, apperr.NotFound("order %s does not exist", orderID)
	}
	if expiryDue(order, time.Now()) {
		return s.expire(orderID)
	}
	return order, nil
}

// ByBuyer lists orders placed by an address. Statuses are overlaid with lazy
// expiry for reporting; persistence happens on the next direct access or
// sweeper pass.
func (s *Service) ByBuyer(address string) ([]Order, error) {
	orders, err := s.db.GetOrdersByBuyer(address)
	if err != nil {
		return nil, err
	}
	overlayExpiry(orders)
	return orders, nil
}

// BySeller lists orders received by an address.
func (s *Service) BySeller(address string) ([]Order, error) {
	orders, err := s.db.GetOrdersBySeller(address)
	if err != nil {
		return nil, err
	}
	overlayExpiry(orders)
	return orders, nil
}

// DeliveryHistory returns the ordered delivery events of an order.
func (s *Service) DeliveryHistory(orderID string) ([]DeliveryEvent, error) {
	order, err := s.Get(orderID)
	if err != nil {
		return nil, err
	}
	return order.Events, nil
}

// mutate runs one pipeline mutation as a single serialized transaction:
// global write lock, load with lazy expiry, the mutation itself, commit.
func (s *Service) mutate(orderID string, fn func(tx *gorm.DB, order *Order) error) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.db.Handle().Begin()
	if err := tx.Error; err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	order, err := loadForUpdate(tx, orderID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := fn(tx, order); err != nil {
		// Roll back everything, including any expiry applied during load; the
		// lazy check simply re-applies it on the next access.
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Service) expire(orderID string) (*Order, error) {
	return s.mutate(orderID, func(tx *gorm.DB, order *Order) error {
		return nil // loadForUpdate already applied the transition
	})
}

// loadForUpdate loads an order inside the transaction and applies lazy
// deadline expiry before the caller's checks run.
func loadForUpdate(tx *gorm.DB, orderID string) (*Order, error) {
	order, err := getOrder(tx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, apperr.NotFound("order %s does not exist", orderID)
	}

	if expiryDue(order, time.Now()) {
		order.Status = StatusExpired
		if err := tx.Save(order).Error; err != nil {
			return nil, err
		}
		log.Info().
			Str("service", "orders").
			Str("order_id", order.OrderID).
			Msg("order expired past its deadline")
	}
	return order, nil
}

func expiryDue(order *Order, now time.Time) bool {
	switch order.Status {
	case StatusPending:
		return now.Unix() > order.ApprovalDeadline
	case StatusApproved:
		return order.PaymentDeadline > 0 && now.Unix() > order.PaymentDeadline
	default:
		return false
	}
}

func overlayExpiry(orders []Order) {
	now := time.Now()
	for i := range orders {
		if expiryDue(&orders[i], now) {
			orders[i].Status = StatusExpired
		}
	}
}

func requireRole(order *Order, caller, tag string) error {
	switch eventRole[tag] {
	case roleSeller:
		if caller != order.Seller {
			return apperr.Authorization("delivery status %q may only be recorded by the seller", tag)
		}
	case roleBuyer:
		if caller != order.Buyer {
			return apperr.Authorization("delivery status %q may only be recorded by the buyer", tag)
		}
	}
	return nil
}

func appendEventInTx(tx *gorm.DB, order *Order, tag, description, actor string) error {
	event := DeliveryEvent{
		OrderID:     order.OrderID,
		Timestamp:   time.Now().Unix(),
		Status:      tag,
		Description: description,
		Actor:       actor,
	}
	if err := tx.Create(&event).Error; err != nil {
		return err
	}
	order.Events = append(order.Events, event)
	return nil
}

func getProductInTx(tx *gorm.DB, productID string) (*ledger.Product, error) {
	var product ledger.Product
	if err := tx.Where("product_id = ?", productID).First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("product %s does not exist", productID)
		}
		return nil, err
	}
	return &product, nil
}

// GinHandlers contains HTTP handlers for order endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// PlaceRelationshipOrderHandler handles POST requests for relationship orders
func (h *GinHandlers) PlaceRelationshipOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request struct {
			RelationshipID string `json:"relationship_id" binding:"required"`
			Quantity       int64  `json:"quantity" binding:"required"`
			Notes          string `json:"notes"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		order, err := h.service.PlaceRelationshipOrder(auth.CallerAddress(c), request.RelationshipID, request.Quantity, request.Notes)
		response.Handle(c, order, err)
	}
}

// PlaceMarketplaceOrderHandler handles POST requests for spot-listing orders
func (h *GinHandlers) PlaceMarketplaceOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request struct {
			ListingID string `json:"listing_id" binding:"required"`
			Quantity  int64  `json:"quantity" binding:"required"`
			Notes     string `json:"notes"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		order, err := h.service.PlaceMarketplaceOrder(auth.CallerAddress(c), request.ListingID, request.Quantity, request.Notes)
		response.Handle(c, order, err)
	}
}

// ApproveHandler handles POST requests to approve a pending order
func (h *GinHandlers) ApproveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		order, err := h.service.Approve(auth.CallerAddress(c), c.Param("order_id"))
		response.Handle(c, order, err)
	}
}

// RejectHandler handles POST requests to reject a pending order
func (h *GinHandlers) RejectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request struct {
			Reason string `json:"reason"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		order, err := h.service.Reject(auth.CallerAddress(c), c.Param("order_id"), request.Reason)
		response.Handle(c, order, err)
	}
}

// AddDeliveryEventHandler handles POST requests to record a delivery milestone
func (h *GinHandlers) AddDeliveryEventHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request struct {
			Status      string `json:"status" binding:"required"`
			Description string `json:"description"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		order, err := h.service.AddDeliveryEvent(auth.CallerAddress(c), c.Param("order_id"), request.Status, request.Description)
		response.Handle(c, order, err)
	}
}

// PayHandler handles POST requests to settle an order with native value
func (h *GinHandlers) PayHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request struct {
			Amount int64 `json:"amount" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		receipt, err := h.service.Pay(auth.CallerAddress(c), c.Param("order_id"), request.Amount)
		response.Handle(c, receipt, err)
	}
}

// ExternalPaymentHandler handles the payment gateway's confirmation callback
func (h *GinHandlers) ExternalPaymentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request struct {
			Method    string `json:"method" binding:"required"`
			PaymentID string `json:"payment_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		order, err := h.service.CompleteWithExternalPayment(c.Param("order_id"), request.Method, request.PaymentID)
		response.Handle(c, order, err)
	}
}

// GetOrderHandler handles GET requests for an order by id
func (h *GinHandlers) GetOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		order, err := h.service.Get(c.Param("order_id"))
		response.Handle(c, order, err)
	}
}

// OrdersByBuyerHandler lists orders placed by an address
func (h *GinHandlers) OrdersByBuyerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orders, err := h.service.ByBuyer(c.Param("address"))
		response.Handle(c, orders, err)
	}
}

// OrdersBySellerHandler lists orders received by an address
func (h *GinHandlers) OrdersBySellerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orders, err := h.service.BySeller(c.Param("address"))
		response.Handle(c, orders, err)
	}
}

// DeliveryHistoryHandler lists an order's delivery events
func (h *GinHandlers) DeliveryHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		events, err := h.service.DeliveryHistory(c.Param("order_id"))
		response.Handle(c, events, err)
	}
}
