package transactions

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chainweave/supply-api/pkg/apperr"
	"github.com/chainweave/supply-api/pkg/response"
)

// Service reads the append-only trade log. Writes happen only through
// RecordInTx inside marketplace and order settlement transactions.
type Service struct {
	db *gorm.DB
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{db: gormDB}
}

// RecordInTx appends a completed trade inside an already-open settlement
// transaction and returns the new record.
func RecordInTx(tx *gorm.DB, buyer, seller, productID string, qty, totalPrice int64, tradeType string) (*Transaction, error) {
	txn := &Transaction{
		TransactionID: "TXN_" + uuid.New().String(),
		Buyer:         buyer,
		Seller:        seller,
		ProductID:     productID,
		Quantity:      qty,
		TotalPrice:    totalPrice,
		TradeType:     tradeType,
		Timestamp:     time.Now().Unix(),
		Status:        "completed",
	}
	if err := tx.Create(txn).Error; err != nil {
		return nil, err
	}
	return txn, nil
}

// Get retrieves a transaction by id.
func (s *Service) Get(transactionID string) (*Transaction, error) {
	var txn Transaction
	if err := s.db.Where("transaction_id = ?", transactionID).First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("transaction %s does not exist", transactionID)
		}
		return nil, err
	}
	return &txn, nil
}

// ByParticipant lists trades in which the address was buyer or seller,
// in insertion order.
func (s *Service) ByParticipant(address string) ([]Transaction, error) {
	var txns []Transaction
	err := s.db.Where("buyer = ? OR seller = ?", address, address).
		Order("id asc").
		Find(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}

// Totals returns the number of completed trades and their summed value.
func (s *Service) Totals() (count int64, volume int64, err error) {
	if err = s.db.Model(&Transaction{}).Count(&count).Error; err != nil {
		return 0, 0, err
	}
	var sum struct {
		Total int64
	}
	err = s.db.Model(&Transaction{}).
		Select("COALESCE(SUM(total_price), 0) AS total").
		Scan(&sum).Error
	if err != nil {
		return 0, 0, err
	}
	return count, sum.Total, nil
}

// GinHandlers contains HTTP handlers for transaction endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// GetHandler handles GET requests for a transaction by id
func (h *GinHandlers) GetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		txn, err := h.service.Get(c.Param("transaction_id"))
		response.Handle(c, txn, err)
	}
}

// ByParticipantHandler handles GET requests for an address's trade history
func (h *GinHandlers) ByParticipantHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		txns, err := h.service.ByParticipant(c.Param("address"))
		response.Handle(c, txns, err)
	}
}
