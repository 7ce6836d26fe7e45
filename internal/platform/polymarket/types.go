package polymarket

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// flexBool unmarshals from a JSON bool or a "true"/"false" string; Gamma
// sends both.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// GammaMarket is a market as returned by the Gamma API. Several list
// fields arrive as JSON-encoded strings.
type GammaMarket struct {
	ID                  string   `json:"id"`
	Question            string   `json:"question"`
	ConditionID         string   `json:"conditionId"`
	Slug                string   `json:"slug"`
	Active              flexBool `json:"active"`
	Closed              flexBool `json:"closed"`
	EndDate             string   `json:"endDate"`
	Outcomes            string   `json:"outcomes"`      // e.g. "[\"Up\",\"Down\"]"
	OutcomePrices       string   `json:"outcomePrices"` // e.g. "[\"0.52\",\"0.48\"]"
	ClobTokenIDs        string   `json:"clobTokenIds"`  // e.g. "[\"123\",\"456\"]"
	UMAResolutionStatus string   `json:"umaResolutionStatus"`
	NegRisk             bool     `json:"negRisk"`
	EnableOrderBook     bool     `json:"enableOrderBook"`
}

// EndTime parses EndDate.
func (m GammaMarket) EndTime() (time.Time, error) {
	return time.Parse(time.RFC3339, m.EndDate)
}

// outcomeIndex returns the position of label ("Up" or "Down") in the
// market's outcome list.
func (m GammaMarket) outcomeIndex(label string) (int, error) {
	var outcomes []string
	if err := json.Unmarshal([]byte(m.Outcomes), &outcomes); err != nil {
		return 0, fmt.Errorf("decode outcomes %q: %w", m.Outcomes, err)
	}
	for i, o := range outcomes {
		if strings.EqualFold(o, label) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("outcome %q not in %v", label, outcomes)
}

// TokenID returns the CLOB token id for the named outcome.
func (m GammaMarket) TokenID(label string) (string, error) {
	i, err := m.outcomeIndex(label)
	if err != nil {
		return "", err
	}
	var ids []string
	if err := json.Unmarshal([]byte(m.ClobTokenIDs), &ids); err != nil {
		return "", fmt.Errorf("decode clobTokenIds: %w", err)
	}
	if i >= len(ids) {
		return "", fmt.Errorf("no token for outcome %q", label)
	}
	return ids[i], nil
}

// OutcomePrice returns the published 0-1 price of the named outcome.
func (m GammaMarket) OutcomePrice(label string) (float64, error) {
	i, err := m.outcomeIndex(label)
	if err != nil {
		return 0, err
	}
	var prices []string
	if err := json.Unmarshal([]byte(m.OutcomePrices), &prices); err != nil {
		return 0, fmt.Errorf("decode outcomePrices: %w", err)
	}
	if i >= len(prices) {
		return 0, fmt.Errorf("no price for outcome %q", label)
	}
	return strconv.ParseFloat(prices[i], 64)
}

// Settling reports whether the market has closed or entered UMA
// resolution.
func (m GammaMarket) Settling() bool {
	return bool(m.Closed) || m.UMAResolutionStatus != ""
}

// Resolved reports whether the market's outcome is final.
func (m GammaMarket) Resolved() bool {
	return bool(m.Closed) && (m.UMAResolutionStatus == "" || m.UMAResolutionStatus == "resolved")
}

// PriceLevel is one order book level; the CLOB sends decimals as strings.
type PriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// Book is the response of GET /book.
type Book struct {
	Market  string       `json:"market"`
	AssetID string       `json:"asset_id"`
	Bids    []PriceLevel `json:"bids"`
	Asks    []PriceLevel `json:"asks"`
}

// BestAsk returns the lowest ask price, or false when the book has none.
func (b Book) BestAsk() (float64, bool) {
	best, found := 0.0, false
	for _, lvl := range b.Asks {
		p, err := strconv.ParseFloat(lvl.Price, 64)
		if err != nil || p <= 0 {
			continue
		}
		if !found || p < best {
			best, found = p, true
		}
	}
	return best, found
}

// SignedOrder is the order object of POST /order.
type SignedOrder struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          string `json:"side"` // "BUY" or "SELL"
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

// PostOrderRequest is the body of POST /order.
type PostOrderRequest struct {
	Order     SignedOrder `json:"order"`
	Owner     string      `json:"owner"`
	OrderType string      `json:"orderType"` // "FOK", "FAK", "GTC", "GTD"
}

// PostOrderResponse is the CLOB's answer to POST /order.
type PostOrderResponse struct {
	Success      bool     `json:"success"`
	ErrorMsg     string   `json:"errorMsg,omitempty"`
	OrderID      string   `json:"orderID,omitempty"`
	Status       string   `json:"status,omitempty"` // "matched", "live", "delayed", "unmatched"
	MakingAmount string   `json:"makingAmount,omitempty"`
	TakingAmount string   `json:"takingAmount,omitempty"`
	TxHashes     []string `json:"transactionsHashes,omitempty"`
}
