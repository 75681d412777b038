package model

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// LookupTier selects between the free plate lookup and the paid full report.
type LookupTier string

const (
	TierFree LookupTier = "free"
	TierFull LookupTier = "full"
)

// LookupOutcome carries the upstream provider's payload plus what the
// request cost. Balance is nil for anonymous free lookups.
type LookupOutcome struct {
	Plate   string           `json:"plate"`
	Data    json.RawMessage  `json:"data"`
	Charged decimal.Decimal  `json:"charged"`
	Balance *decimal.Decimal `json:"balance,omitempty"`
}
