package mls

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"

	"github.com/yourorg/mls-sync/internal/mlserr"
)

var validate = validator.New()

const (
	DefaultLimit = 50
	MaxLimit     = 1000

	DefaultSortField = "ModificationTimestamp"
)

// ApplyDefaults fills limit and sort. Defaults: limit 50, newest
// modifications first.
func (c *SearchCriteria) ApplyDefaults() {
	if c.Limit <= 0 {
		c.Limit = DefaultLimit
	}
	if c.Limit > MaxLimit {
		c.Limit = MaxLimit
	}
	if c.SortBy == "" {
		c.SortBy = DefaultSortField
		c.SortDesc = true
	}
}

// Validate rejects inconsistent criteria before any network call is
// attempted.
func (c *SearchCriteria) Validate() *mlserr.Error {
	if err := validate.Struct(c); err != nil {
		return mlserr.Validation("INVALID_CRITERIA", err.Error())
	}
	pairs := []struct {
		name     string
		min, max *int
	}{
		{"bedrooms", c.MinBedrooms, c.MaxBedrooms},
		{"bathrooms", c.MinBathrooms, c.MaxBathrooms},
		{"square_feet", c.MinSquareFeet, c.MaxSquareFeet},
		{"lot_size", c.MinLotSize, c.MaxLotSize},
		{"year_built", c.MinYearBuilt, c.MaxYearBuilt},
	}
	for _, p := range pairs {
		if p.min != nil && p.max != nil && *p.min > *p.max {
			return mlserr.Validation("RANGE_INVERTED", fmt.Sprintf("%s: min %d exceeds max %d", p.name, *p.min, *p.max))
		}
	}
	if c.MinListPrice != nil && c.MaxListPrice != nil && *c.MinListPrice > *c.MaxListPrice {
		return mlserr.Validation("RANGE_INVERTED", fmt.Sprintf("list_price: min %.0f exceeds max %.0f", *c.MinListPrice, *c.MaxListPrice))
	}
	if b := c.BoundingBox; b != nil {
		if b.MinLat > b.MaxLat || b.MinLon > b.MaxLon {
			return mlserr.Validation("RANGE_INVERTED", "bounding box min exceeds max")
		}
	}
	for _, s := range c.Statuses {
		if !knownStatus(s) {
			return mlserr.Validation("UNKNOWN_STATUS", "unknown standard status "+string(s))
		}
	}
	return nil
}

// CacheKey is stable across identical criteria: struct fields marshal in
// declaration order, so the digest of the JSON form is canonical.
func (c *SearchCriteria) CacheKey() string {
	b, _ := json.Marshal(c)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:16])
}

func knownStatus(s StandardStatus) bool {
	switch s {
	case StatusActive, StatusActiveUnderContract, StatusPending, StatusClosed,
		StatusExpired, StatusCanceled, StatusWithdrawn, StatusHold, StatusIncomplete:
		return true
	}
	return false
}
