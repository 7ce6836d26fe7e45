package domain

// Outcome is the binary outcome a leg buys.
type Outcome string

const (
	OutcomeUp   Outcome = "up"
	OutcomeDown Outcome = "down"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// FillStatus is the normalized fill state an adapter reports.
type FillStatus string

const (
	FillStatusFilled    FillStatus = "filled"
	FillStatusPartial   FillStatus = "partial"
	FillStatusOpen      FillStatus = "open"
	FillStatusCancelled FillStatus = "cancelled"
	FillStatusRejected  FillStatus = "rejected"
)

// OrderRequest is a venue-neutral order. Amount is a contract count where
// each contract pays 1 USD at par, and LimitPrice is on the 0-100 scale;
// adapters clamp it to their tick range.
type OrderRequest struct {
	MarketID   string
	Outcome    Outcome
	Side       OrderSide
	Amount     float64
	LimitPrice float64
}

// OrderResult wraps the venue response after order submission.
// FilledAmount is in contracts.
type OrderResult struct {
	ID           string
	Status       FillStatus
	FilledAmount float64
	TxRef        string
	Message      string
}

// Filled reports whether the order fully executed.
func (r OrderResult) Filled() bool {
	return r.Status == FillStatusFilled
}
