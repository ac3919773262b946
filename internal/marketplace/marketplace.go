package marketplace

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
	"github.com/chainweave/supply-api/internal/transactions"
	"github.com/chainweave/supply-api/pkg/apperr"
	"github.com/chainweave/supply-api/pkg/response"
)

// Service handles spot listings and instant purchases
type Service struct {
	db *Database
	mu *sync.Mutex
}

// NewService creates a new marketplace service sharing the global write lock.
func NewService(gormDB *gorm.DB, mu *sync.Mutex) *Service {
	return &Service{
		db: NewDatabase(gormDB),
		mu: mu,
	}
}

// List puts qty units of the caller's product up for spot sale. Listing does
// not reserve product quantity: the listed amount is a sale cap, and real
// availability is re-checked when each purchase settles.
func (s *Service) List(seller, productID string, qty, price int64) (*Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if qty <= 0 {
		return nil, apperr.Validation("listing quantity must be positive")
	}
	if price <= 0 {
		return nil, apperr.Validation("listing unit price must be positive")
	}

	product, err := getOwnedProduct(s.db.Handle(), seller, productID)
	if err != nil {
		return nil, err
	}
	if qty > product.Quantity {
		return nil, apperr.InsufficientInventory("listing of %d exceeds available quantity %d", qty, product.Quantity)
	}

	listing := &Listing{
		ListingID:         "LST_" + uuid.New().String(),
		ProductID:         productID,
		Seller:            seller,
		QuantityAvailable: qty,
		UnitPrice:         price,
		ListedDate:        time.Now().Unix(),
		IsActive:          true,
	}

	if err := s.db.Handle().Create(listing).Error; err != nil {
		return nil, err
	}

	log.Info().
		Str("service", "marketplace").
		Str("listing_id", listing.ListingID).
		Str("product_id", productID).
		Str("seller", seller).
		Int64("quantity", qty).
		Int64("unit_price", price).
		Msg("product listed for sale")

	return listing, nil
}

// Buy settles an instant purchase: product split-transfers to the buyer, the
// seller is credited exactly qty * price, any excess payment is reported back
// as a refund, and the purchase lands in the transaction log. One transaction,
// all-or-nothing.
func (s *Service) Buy(buyer, listingID string, qty, payment int64) (*PurchaseReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if qty <= 0 {
		return nil, apperr.Validation("purchase quantity must be positive")
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

	receipt, err := s.buyInTx(tx, buyer, listingID, qty, payment)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	log.Info().
		Str("service", "marketplace").
		Str("listing_id", listingID).
		Str("buyer", buyer).
		Int64("quantity", qty).
		Int64("seller_credited", receipt.SellerCredited).
		Int64("refund", receipt.Refund).
		Msg("spot purchase settled")

	return receipt, nil
}

func (s *Service) buyInTx(tx *gorm.DB, buyer, listingID string, qty, payment int64) (*PurchaseReceipt, error) {
	listing, err := GetListingInTx(tx, listingID)
	if err != nil {
		return nil, err
	}
	if listing == nil {
		return nil, apperr.NotFound("listing %s does not exist", listingID)
	}
	if !listing.IsActive {
		return nil, apperr.State("listing %s is no longer active", listingID)
	}
	if qty > listing.QuantityAvailable {
		return nil, apperr.InsufficientInventory("purchase of %d exceeds listed quantity %d", qty, listing.QuantityAvailable)
	}

	cost := qty * listing.UnitPrice
	if payment < cost {
		return nil, apperr.InsufficientFunds("payment %d is below the required total %d", payment, cost)
	}

	product, err := ledger.TransferInTx(tx, listing.Seller, buyer, listing.ProductID, qty)
	if err != nil {
		return nil, err
	}

	if err := registry.CreditInTx(tx, listing.Seller, cost); err != nil {
		return nil, err
	}

	listing.QuantityAvailable -= qty
	if listing.QuantityAvailable == 0 {
		listing.IsActive = false
	}
	if err := tx.Save(listing).Error; err != nil {
		return nil, err
	}

	txn, err := transactions.RecordInTx(tx, buyer, listing.Seller, listing.ProductID, qty, cost, transactions.TypeSpot)
	if err != nil {
		return nil, err
	}

	return &PurchaseReceipt{
		ListingID:        listing.ListingID,
		TransactionID:    txn.TransactionID,
		ProductID:        product.ProductID,
		Quantity:         qty,
		SellerCredited:   cost,
		Refund:           payment - cost,
		RemainingOnOffer: listing.QuantityAvailable,
	}, nil
}

// Remove deactivates a listing. Seller only.
func (s *Service) Remove(caller, listingID string) (*Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	listing, err := s.db.GetListing(listingID)
	if err != nil {
		return nil, err
	}
	if listing == nil {
		return nil, apperr.NotFound("listing %s does not exist", listingID)
	}
	if listing.Seller != caller {
		return nil, apperr.Authorization("%s is not the seller of listing %s", caller, listingID)
	}
	if !listing.IsActive {
		return nil, apperr.State("listing %s is already inactive", listingID)
	}

	listing.IsActive = false
	if err := s.db.Handle().Save(listing).Error; err != nil {
		return nil, err
	}
	return listing, nil
}

// Get retrieves a listing by id.
func (s *Service) Get(listingID string) (*Listing, error) {
	listing, err := s.db.GetListing(listingID)
	if err != nil {
		return nil, err
	}
	if listing == nil {
		return nil, apperr.NotFound("listing %s does not exist", listingID)
	}
	return listing, nil
}

// ActiveListings returns all currently active listings.
func (s *Service) ActiveListings() ([]Listing, error) {
	return s.db.GetActiveListings()
}

func getOwnedProduct(tx *gorm.DB, owner, productID string) (*ledger.Product, error) {
	var product ledger.Product
	err := tx.Where("product_id = ?", productID).First(&product).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.NotFound("product %s does not exist", productID)
		}
		return nil, err
	}
	if product.OwnerAddress != owner {
		return nil, apperr.Authorization("%s is not the owner of product %s", owner, productID)
	}
	return &product, nil
}

// GinHandlers contains HTTP handlers for marketplace endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// ListHandler handles POST requests to list a product for sale
func (h *GinHandlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request struct {
			ProductID string `json:"product_id" binding:"required"`
			Quantity  int64  `json:"quantity" binding:"required"`
			UnitPrice int64  `json:"unit_price" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		listing, err := h.service.List(auth.CallerAddress(c), request.ProductID, request.Quantity, request.UnitPrice)
		response.Handle(c, listing, err)
	}
}

// BuyHandler handles POST requests for instant spot purchases
func (h *GinHandlers) BuyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request struct {
			Quantity int64 `json:"quantity" binding:"required"`
			Payment  int64 `json:"payment" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		receipt, err := h.service.Buy(auth.CallerAddress(c), c.Param("listing_id"), request.Quantity, request.Payment)
		response.Handle(c, receipt, err)
	}
}

// RemoveHandler handles DELETE requests to withdraw a listing
func (h *GinHandlers) RemoveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		listing, err := h.service.Remove(auth.CallerAddress(c), c.Param("listing_id"))
		response.Handle(c, listing, err)
	}
}

// GetHandler handles GET requests for a listing by id
func (h *GinHandlers) GetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		listing, err := h.service.Get(c.Param("listing_id"))
		response.Handle(c, listing, err)
	}
}

// ActiveListingsHandler handles GET requests for all active listings
func (h *GinHandlers) ActiveListingsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		listings, err := h.service.ActiveListings()
		response.Handle(c, listings, err)
	}
}
