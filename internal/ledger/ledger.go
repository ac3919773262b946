package ledger

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/chainweave/supply-api/internal/auth"
	"github.com/chainweave/supply-api/internal/registry"
	"github.com/chainweave/supply-api/pkg/apperr"
	"github.com/chainweave/supply-api/pkg/response"
)

// Service handles product inventory, provenance and manufacturing
type Service struct {
	db *Database
	mu *sync.Mutex
}

// NewService creates a new product ledger service sharing the global write lock.
func NewService(gormDB *gorm.DB, mu *sync.Mutex) *Service {
	return &Service{
		db: NewDatabase(gormDB),
		mu: mu,
	}
}

// Create registers a new product owned by the caller.
func (s *Service) Create(owner, name, description, imageRef string, qty, price int64) (*Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name == "" {
		return nil, apperr.Validation("product name must not be empty")
	}
	if qty <= 0 {
		return nil, apperr.Validation("product quantity must be positive")
	}
	if price <= 0 {
		return nil, apperr.Validation("product unit price must be positive")
	}
	if err := registry.RequireRegisteredInTx(s.db.Handle(), owner); err != nil {
		return nil, err
	}

	product := &Product{
		ProductID:       "PRD_" + uuid.New().String(),
		Name:            name,
		Description:     description,
		ImageRef:        imageRef,
		Quantity:        qty,
		UnitPrice:       price,
		OwnerAddress:    owner,
		CreatedTime:     time.Now().Unix(),
		OriginalCreator: owner,
	}
	if err := product.setOwnerChain([]string{owner}); err != nil {
		return nil, err
	}
	if err := product.setParentChain(nil); err != nil {
		return nil, err
	}

	if err := s.db.Handle().Create(product).Error; err != nil {
		return nil, err
	}

	log.Info().
		Str("service", "ledger").
		Str("product_id", product.ProductID).
		Str("owner", owner).
		Int64("quantity", qty).
		Msg("product created")

	return product, nil
}

// Transfer moves qty units of a product from the caller to another company.
// The caller must be the current owner.
func (s *Service) Transfer(caller, productID, to string, qty int64) (*Product, error) {
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

	result, err := TransferInTx(tx, caller, to, productID, qty)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return result, nil
}

// TransferInTx moves qty units of a product from one owner to another inside
// an already-open transaction. It is the settlement hook used by the
// marketplace and the order pipeline; callers hold the global write lock.
//
// A transfer of the full remaining quantity mutates the record in place so
// the product id stays stable; a partial transfer splits off a child product
// carrying the parent's lineage. Returns the product now owned by `to`.
func TransferInTx(tx *gorm.DB, from, to, productID string, qty int64) (*Product, error) {
	product, err := getProduct(tx, productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, apperr.NotFound("product %s does not exist", productID)
	}
	if product.OwnerAddress != from {
		return nil, apperr.Authorization("%s is not the owner of product %s", from, productID)
	}
	if from == to {
		return nil, apperr.Validation("cannot transfer a product to its current owner")
	}
	if err := registry.RequireRegisteredInTx(tx, to); err != nil {
		return nil, err
	}
	if qty <= 0 {
		return nil, apperr.Validation("transfer quantity must be positive")
	}
	if qty > product.Quantity {
		return nil, apperr.InsufficientInventory("transfer of %d exceeds available quantity %d", qty, product.Quantity)
	}

	if qty == product.Quantity {
		// Full transfer: same record, new owner, history grows.
		product.OwnerAddress = to
		if err := product.setOwnerChain(append(product.OwnerChain(), to)); err != nil {
			return nil, err
		}
		if err := tx.Save(product).Error; err != nil {
			return nil, err
		}
		return product, nil
	}

	// Partial transfer: split off a child product.
	product.Quantity -= qty
	if err := tx.Save(product).Error; err != nil {
		return nil, err
	}

	child := &Product{
		ProductID:       "PRD_" + uuid.New().String(),
		Name:            product.Name,
		Description:     product.Description,
		ImageRef:        product.ImageRef,
		Quantity:        qty,
		UnitPrice:       product.UnitPrice,
		OwnerAddress:    to,
		CreatedTime:     time.Now().Unix(),
		IsManufactured:  product.IsManufactured,
		OriginalCreator: product.OriginalCreator,
	}
	if err := child.setOwnerChain([]string{to}); err != nil {
		return nil, err
	}
	if err := child.setParentChain(append(product.ParentChain(), product.ProductID)); err != nil {
		return nil, err
	}
	if err := tx.Create(child).Error; err != nil {
		return nil, err
	}
	return child, nil
}

// Manufacture consumes ingredient inventory and creates a new product with a
// bill-of-materials. All ingredient decrements and the new product are one
// transaction; the first failing ingredient rolls back everything.
func (s *Service) Manufacture(owner, name, description, imageRef string, qtyToProduce int64, ingredients []Ingredient, price int64) (*Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name == "" {
		return nil, apperr.Validation("product name must not be empty")
	}
	if qtyToProduce <= 0 {
		return nil, apperr.Validation("quantity to produce must be positive")
	}
	if price <= 0 {
		return nil, apperr.Validation("product unit price must be positive")
	}
	if len(ingredients) == 0 {
		return nil, apperr.Validation("manufacturing requires at least one ingredient")
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

	if err := registry.RequireRegisteredInTx(tx, owner); err != nil {
		tx.Rollback()
		return nil, err
	}

	now := time.Now().Unix()
	productID := "PRD_" + uuid.New().String()
	components := make([]Component, 0, len(ingredients))

	for _, ing := range ingredients {
		ingredient, err := getProduct(tx, ing.IngredientID)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if ingredient == nil {
			tx.Rollback()
			return nil, apperr.NotFound("ingredient %s does not exist", ing.IngredientID)
		}
		if ingredient.OwnerAddress != owner {
			tx.Rollback()
			return nil, apperr.Authorization("%s is not the owner of ingredient %s", owner, ing.IngredientID)
		}
		if ing.QtyNeeded <= 0 {
			tx.Rollback()
			return nil, apperr.Validation("ingredient quantity must be positive")
		}

		consumed := ing.QtyNeeded * qtyToProduce
		if consumed > ingredient.Quantity {
			tx.Rollback()
			return nil, apperr.InsufficientInventory(
				"ingredient %s requires %d units but only %d available",
				ing.IngredientID, consumed, ingredient.Quantity)
		}

		ingredient.Quantity -= consumed
		if err := tx.Save(ingredient).Error; err != nil {
			tx.Rollback()
			return nil, err
		}

		components = append(components, Component{
			ProductID:    productID,
			IngredientID: ing.IngredientID,
			QuantityUsed: consumed,
			Supplier:     owner,
			Timestamp:    now,
		})
	}

	product := &Product{
		ProductID:       productID,
		Name:            name,
		Description:     description,
		ImageRef:        imageRef,
		Quantity:        qtyToProduce,
		UnitPrice:       price,
		OwnerAddress:    owner,
		CreatedTime:     now,
		IsManufactured:  true,
		OriginalCreator: owner,
		Components:      components,
	}
	if err := product.setOwnerChain([]string{owner}); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := product.setParentChain(nil); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Create(product).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	log.Info().
		Str("service", "ledger").
		Str("product_id", product.ProductID).
		Str("owner", owner).
		Int64("quantity", qtyToProduce).
		Int("ingredients", len(ingredients)).
		Msg("product manufactured")

	return product, nil
}

// Get retrieves a product by id.
func (s *Service) Get(productID string) (*Product, error) {
	product, err := s.db.GetProduct(productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, apperr.NotFound("product %s does not exist", productID)
	}
	return product, nil
}

// Traceability returns the full provenance chain of a product: the final
// owners of its split ancestors, oldest first, followed by the product's own
// ownership history.
func (s *Service) Traceability(productID string) ([]string, error) {
	product, err := s.Get(productID)
	if err != nil {
		return nil, err
	}

	chain := make([]string, 0)
	for _, parentID := range product.ParentChain() {
		parent, err := s.db.GetProduct(parentID)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			continue
		}
		owners := parent.OwnerChain()
		if len(owners) > 0 {
			chain = append(chain, owners[len(owners)-1])
		} else {
			chain = append(chain, parent.OwnerAddress)
		}
	}
	return append(chain, product.OwnerChain()...), nil
}

// ByOwner lists the products currently owned by an address.
func (s *Service) ByOwner(address string) ([]Product, error) {
	return s.db.GetProductsByOwner(address)
}

// GinHandlers contains HTTP handlers for product endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// CreateProductHandler handles POST requests to create products
func (h *GinHandlers) CreateProductHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request struct {
			Name        string `json:"name" binding:"required"`
			Description string `json:"description"`
			ImageRef    string `json:"image_ref"`
			Quantity    int64  `json:"quantity" binding:"required"`
			UnitPrice   int64  `json:"unit_price" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		product, err := h.service.Create(
			auth.CallerAddress(c),
			request.Name, request.Description, request.ImageRef,
			request.Quantity, request.UnitPrice,
		)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, product.Response())
	}
}

// TransferHandler handles POST requests to transfer product ownership
func (h *GinHandlers) TransferHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request struct {
			To       string `json:"to" binding:"required"`
			Quantity int64  `json:"quantity" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		product, err := h.service.Transfer(auth.CallerAddress(c), c.Param("product_id"), request.To, request.Quantity)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, product.Response())
	}
}

// ManufactureHandler handles POST requests to manufacture products
func (h *GinHandlers) ManufactureHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request struct {
			Name        string       `json:"name" binding:"required"`
			Description string       `json:"description"`
			ImageRef    string       `json:"image_ref"`
			Quantity    int64        `json:"quantity" binding:"required"`
			Ingredients []Ingredient `json:"ingredients" binding:"required"`
			UnitPrice   int64        `json:"unit_price" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		product, err := h.service.Manufacture(
			auth.CallerAddress(c),
			request.Name, request.Description, request.ImageRef,
			request.Quantity, request.Ingredients, request.UnitPrice,
		)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, product.Response())
	}
}

// GetProductHandler handles GET requests for a product by id
func (h *GinHandlers) GetProductHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		product, err := h.service.Get(c.Param("product_id"))
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, product.Response())
	}
}

// TraceabilityHandler handles GET requests for a product's provenance chain
func (h *GinHandlers) TraceabilityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		chain, err := h.service.Traceability(c.Param("product_id"))
		response.Handle(c, chain, err)
	}
}

// ProductsByOwnerHandler handles GET requests for a company's products
func (h *GinHandlers) ProductsByOwnerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		products, err := h.service.ByOwner(c.Param("address"))
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		out := make([]*ProductResponse, 0, len(products))
		for i := range products {
			out = append(out, products[i].Response())
		}
		response.Success(c, out)
	}
}
