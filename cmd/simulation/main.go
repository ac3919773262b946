package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/chainweave/supply-api/internal/gateway"
)

const serverAddress = "http://localhost:8080"

// Simulated trading parties
const (
	supplierAddr = "0xACME_SUPPLY"
	buyerAddr    = "0xBOLT_RETAIL"
	gatewayAddr  = "0xPAYMENT_GATEWAY"
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// calculate computes min, max, mean, median and 95th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p95 = rs.durations[p95idx]

	return
}

// simulationClient handles HTTP communication with the supply ledger API
type simulationClient struct {
	baseURL string
	client  *http.Client
	tokens  map[string]string // address -> JWT
	stats   map[string]*routeStats
}

func newSimulationClient() *simulationClient {
	return &simulationClient{
		baseURL: serverAddress,
		client:  &http.Client{Timeout: 10 * time.Second},
		tokens:  make(map[string]string),
		stats: map[string]*routeStats{
			"auth":          {name: "Authentication"},
			"companies":     {name: "Company Registry"},
			"products":      {name: "Product Ledger"},
			"relationships": {name: "Relationship Negotiation"},
			"orders":        {name: "Order Pipeline"},
			"listings":      {name: "Marketplace"},
			"queries":       {name: "Read Queries"},
		},
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// call performs one API request as the given address, recording latency
// under the stats group, and decodes the data payload into out when non-nil.
func (sc *simulationClient) call(group, method, path, address string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, sc.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if address != "" {
		token, err := sc.token(address)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := sc.client.Do(req)
	sc.stats[group].addDuration(time.Since(start))
	if err != nil {
		sc.stats[group].failures++
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		sc.stats[group].failures++
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	if !env.Success {
		sc.stats[group].failures++
		msg := "unknown error"
		if env.Error != nil {
			msg = env.Error.Message
		}
		return fmt.Errorf("%s %s failed: %s", method, path, msg)
	}
	if out != nil {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

// token fetches (and caches) a JWT for an address
func (sc *simulationClient) token(address string) (string, error) {
	if token, ok := sc.tokens[address]; ok {
		return token, nil
	}

	var result struct {
		Token string `json:"jwt_token"`
	}
	err := sc.call("auth", http.MethodPost, "/api/v1/auth/token", "",
		map[string]string{"address": address}, &result)
	if err != nil {
		return "", err
	}
	sc.tokens[address] = result.Token
	return result.Token, nil
}

func main() {
	log.Info().Msg("starting supply ledger simulation")

	sc := newSimulationClient()
	if err := sc.run(); err != nil {
		log.Fatal().Err(err).Msg("simulation failed")
	}

	sc.printStats()
	log.Info().Msg("simulation completed")
}

func (sc *simulationClient) run() error {
	// Register the trading parties
	for _, party := range []struct{ address, name string }{
		{supplierAddr, "ACME Supply Co"},
		{buyerAddr, "Bolt Retail Ltd"},
	} {
		err := sc.call("companies", http.MethodPost, "/api/v1/companies", party.address,
			map[string]string{"name": party.name}, nil)
		if err != nil {
			return err
		}
		log.Info().Str("address", party.address).Str("name", party.name).Msg("company registered")
	}

	// Create raw materials and manufacture a finished product
	var chassis, panel struct {
		ProductID string `json:"product_id"`
	}
	err := sc.call("products", http.MethodPost, "/api/v1/products", supplierAddr, map[string]interface{}{
		"name": "Aluminium Chassis", "description": "CNC-milled chassis", "quantity": 500, "unit_price": 1200,
	}, &chassis)
	if err != nil {
		return err
	}
	err = sc.call("products", http.MethodPost, "/api/v1/products", supplierAddr, map[string]interface{}{
		"name": "Display Panel", "description": "13in IPS panel", "quantity": 300, "unit_price": 4500,
	}, &panel)
	if err != nil {
		return err
	}

	var laptop struct {
		ProductID string `json:"product_id"`
	}
	err = sc.call("products", http.MethodPost, "/api/v1/products/manufacture", supplierAddr, map[string]interface{}{
		"name": "Laptop", "description": "13in ultrabook", "quantity": 100, "unit_price": 95000,
		"ingredients": []map[string]interface{}{
			{"ingredient_id": chassis.ProductID, "qty_needed": 1},
			{"ingredient_id": panel.ProductID, "qty_needed": 1},
		},
	}, &laptop)
	if err != nil {
		return err
	}
	log.Info().Str("product_id", laptop.ProductID).Msg("laptop manufactured")

	// Negotiate a standing relationship over the laptop
	var rel struct {
		RelationshipID string `json:"relationship_id"`
	}
	now := time.Now().Unix()
	err = sc.call("relationships", http.MethodPost, "/api/v1/relationships", buyerAddr, map[string]interface{}{
		"supplier": supplierAddr, "buyer": buyerAddr, "product_id": laptop.ProductID,
		"unit_price": 88000, "start_date": now, "end_date": now + 90*24*3600,
	}, &rel)
	if err != nil {
		return err
	}
	err = sc.call("relationships", http.MethodPost,
		"/api/v1/relationships/"+rel.RelationshipID+"/negotiate", supplierAddr,
		map[string]interface{}{"unit_price": 91000, "end_date": now + 90*24*3600}, nil)
	if err != nil {
		return err
	}
	err = sc.call("relationships", http.MethodPost,
		"/api/v1/relationships/"+rel.RelationshipID+"/accept", buyerAddr, nil, nil)
	if err != nil {
		return err
	}
	log.Info().Str("relationship_id", rel.RelationshipID).Msg("relationship accepted at 91000/unit")

	// Relationship order settled with native payment
	orderID, err := sc.runOrderToQualityCheck("/api/v1/orders/relationship",
		map[string]interface{}{"relationship_id": rel.RelationshipID, "quantity": 10, "notes": "Q3 restock"})
	if err != nil {
		return err
	}
	err = sc.call("orders", http.MethodPost, "/api/v1/orders/"+orderID+"/pay", buyerAddr,
		map[string]interface{}{"amount": 10 * 91000}, nil)
	if err != nil {
		return err
	}
	log.Info().Str("order_id", orderID).Msg("relationship order settled natively")

	// Marketplace order settled through the external payment bridge
	var listing struct {
		ListingID string `json:"listing_id"`
	}
	err = sc.call("listings", http.MethodPost, "/api/v1/listings", supplierAddr, map[string]interface{}{
		"product_id": laptop.ProductID, "quantity": 40, "unit_price": 99000,
	}, &listing)
	if err != nil {
		return err
	}

	spotOrderID, err := sc.runOrderToQualityCheck("/api/v1/orders/marketplace",
		map[string]interface{}{"listing_id": listing.ListingID, "quantity": 5, "notes": "spot top-up"})
	if err != nil {
		return err
	}

	charge, err := gateway.ChargeWithFailover(5 * 99000)
	if err != nil {
		return err
	}
	err = sc.call("orders", http.MethodPost, "/api/v1/internal/payments/"+spotOrderID, gatewayAddr,
		map[string]string{"method": charge.Method, "payment_id": charge.PaymentID}, nil)
	if err != nil {
		return err
	}
	log.Info().
		Str("order_id", spotOrderID).
		Str("payment_id", charge.PaymentID).
		Msg("marketplace order settled via external gateway")

	// A duplicate confirmation must be rejected without further effect
	err = sc.call("orders", http.MethodPost, "/api/v1/internal/payments/"+spotOrderID, gatewayAddr,
		map[string]string{"method": charge.Method, "payment_id": charge.PaymentID}, nil)
	if err == nil {
		return fmt.Errorf("duplicate external payment was accepted")
	}
	log.Info().Msg("duplicate external payment correctly rejected")

	// Instant spot purchase with overpayment
	var receipt struct {
		Refund         int64 `json:"refund"`
		SellerCredited int64 `json:"seller_credited"`
	}
	err = sc.call("listings", http.MethodPost, "/api/v1/listings/"+listing.ListingID+"/buy", buyerAddr,
		map[string]interface{}{"quantity": 3, "payment": 3*99000 + 5000}, &receipt)
	if err != nil {
		return err
	}
	log.Info().
		Int64("seller_credited", receipt.SellerCredited).
		Int64("refund", receipt.Refund).
		Msg("instant spot purchase settled")

	// Read queries: traceability, histories, stats
	for _, path := range []string{
		"/api/v1/products/" + laptop.ProductID + "/traceability",
		"/api/v1/companies/" + buyerAddr + "/transactions",
		"/api/v1/companies/" + supplierAddr + "/transactions",
		"/api/v1/companies/" + supplierAddr + "/products",
		"/api/v1/stats",
	} {
		if err := sc.call("queries", http.MethodGet, path, buyerAddr, nil, nil); err != nil {
			return err
		}
	}
	return nil
}

// runOrderToQualityCheck places an order and walks it through approval and
// the delivery milestones up to quality_checked, ready for settlement.
func (sc *simulationClient) runOrderToQualityCheck(placePath string, placeBody map[string]interface{}) (string, error) {
	var order struct {
		OrderID string `json:"order_id"`
	}
	if err := sc.call("orders", http.MethodPost, placePath, buyerAddr, placeBody, &order); err != nil {
		return "", err
	}

	err := sc.call("orders", http.MethodPost, "/api/v1/orders/"+order.OrderID+"/approve", supplierAddr, nil, nil)
	if err != nil {
		return "", err
	}

	milestones := []struct {
		actor, status, description string
	}{
		{supplierAddr, "packed", "picked and packed"},
		{supplierAddr, "shipped", "handed to carrier"},
		{buyerAddr, "delivered", "received at warehouse"},
		{buyerAddr, "quality_checked", "inbound QA passed"},
	}
	for _, m := range milestones {
		err := sc.call("orders", http.MethodPost, "/api/v1/orders/"+order.OrderID+"/events", m.actor,
			map[string]string{"status": m.status, "description": m.description}, nil)
		if err != nil {
			return "", err
		}
	}
	return order.OrderID, nil
}

// printStats displays latency statistics per route group
func (sc *simulationClient) printStats() {
	fmt.Println("\n=== Route statistics ===")
	for _, rs := range sc.stats {
		if rs.totalCalls == 0 {
			continue
		}
		min, max, mean, median, p95 := rs.calculate()
		fmt.Printf("%-26s calls=%-3d failures=%-2d min=%s max=%s mean=%s median=%s p95=%s\n",
			rs.name, rs.totalCalls, rs.failures, min, max, mean, median, p95)
	}
}
