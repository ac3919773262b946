package auth

import (
	"errors"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/chainweave/supply-api/pkg/response"
)

var (
	ErrInvalidAddress  = errors.New("a company address is required")
	ErrTokenGeneration = errors.New("failed to generate token")
)

// DefaultJWTSecret is used when JWT_SECRET is not set in the environment.
const DefaultJWTSecret = "supply-ledger-secret-key"

// JWTSecret returns the signing secret for API tokens.
func JWTSecret() []byte {
	if s := os.Getenv("JWT_SECRET"); s != "" {
		return []byte(s)
	}
	return []byte(DefaultJWTSecret)
}

// Credentials identifies a caller. Identity is address-based: the address is
// the whole credential, there is no password layer in front of it.
type Credentials struct {
	Address string `json:"address"`
}

// TokenResponse represents the JWT token response
type TokenResponse struct {
	Token      string    `json:"jwt_token"`
	Expiration time.Time `json:"expiration"`
}

// Claims represents the JWT claims structure
type Claims struct {
	jwt.RegisteredClaims
	Address string `json:"address"`
}

// Service issues and validates API tokens
type Service struct {
	jwtSecret []byte
}

// NewService creates a new authentication service with the given JWT secret
func NewService(jwtSecret string) *Service {
	return &Service{
		jwtSecret: []byte(jwtSecret),
	}
}

// GenerateToken generates a JWT token bound to a company address.
// The token carries the address claim with 24-hour expiration.
func (s *Service) GenerateToken(creds Credentials) (*TokenResponse, error) {
	if creds.Address == "" {
		return nil, ErrInvalidAddress
	}

	expiration := time.Now().Add(24 * time.Hour)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiration),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
		Address: creds.Address,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, ErrTokenGeneration
	}

	return &TokenResponse{
		Token:      tokenString,
		Expiration: expiration,
	}, nil
}

// ValidateToken validates a JWT token and returns the claims
// Verifies token signature and expiration
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

// GinHandlers contains HTTP handlers for authentication endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for authentication endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// GenerateTokenHandler handles POST requests to generate JWT tokens
// Request body should contain the caller's company address
func (h *GinHandlers) GenerateTokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var creds Credentials
		if err := c.ShouldBindJSON(&creds); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		token, err := h.service.GenerateToken(creds)
		if err == ErrInvalidAddress {
			response.BadRequest(c, err.Error())
			return
		}
		response.Handle(c, token, err)
	}
}

// GetAddress extracts the caller's company address from JWT claims.
// Returns an empty string if the claim is missing or malformed.
func GetAddress(claims interface{}) string {
	if jwtClaims, ok := claims.(jwt.MapClaims); ok {
		if address, ok := jwtClaims["address"].(string); ok {
			return address
		}
	}
	return ""
}

// CallerAddress returns the authenticated address stored on the gin context
// by the JWT middleware.
func CallerAddress(c *gin.Context) string {
	return c.GetString("address")
}
