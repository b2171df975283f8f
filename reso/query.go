package reso

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/yourorg/mls-sync/mls"
)

// SearchQuery runs a criteria-driven property search.
func (c *Client) SearchQuery(ctx context.Context, token string, criteria *mls.SearchCriteria) ([]byte, error) {
	return c.Search(ctx, token, BuildQuery(criteria))
}

// RESO Web API field names for the sort keys callers may request.
var sortFields = map[string]string{
	"ModificationTimestamp": "ModificationTimestamp",
	"ListPrice":             "ListPrice",
	"YearBuilt":             "YearBuilt",
	"LivingArea":            "LivingArea",
}

// BuildQuery translates validated criteria into OData query parameters
// ($filter/$orderby/$top/$skip). Criteria are assumed validated; inverted
// ranges never reach here.
func BuildQuery(c *mls.SearchCriteria) url.Values {
	var clauses []string

	if len(c.Cities) > 0 {
		clauses = append(clauses, anyOf("City", c.Cities))
	}
	if len(c.PostalCodes) > 0 {
		clauses = append(clauses, anyOf("PostalCode", c.PostalCodes))
	}
	if b := c.BoundingBox; b != nil {
		clauses = append(clauses,
			fmt.Sprintf("Latitude ge %f and Latitude le %f", b.MinLat, b.MaxLat),
			fmt.Sprintf("Longitude ge %f and Longitude le %f", b.MinLon, b.MaxLon),
		)
	}
	if c.PropertyType != "" {
		clauses = append(clauses, fmt.Sprintf("PropertyType eq '%s'", escape(string(c.PropertyType))))
	}
	clauses = appendIntRange(clauses, "BedroomsTotal", c.MinBedrooms, c.MaxBedrooms)
	clauses = appendIntRange(clauses, "BathroomsFull", c.MinBathrooms, c.MaxBathrooms)
	clauses = appendIntRange(clauses, "LivingArea", c.MinSquareFeet, c.MaxSquareFeet)
	clauses = appendIntRange(clauses, "LotSizeSquareFeet", c.MinLotSize, c.MaxLotSize)
	clauses = appendIntRange(clauses, "YearBuilt", c.MinYearBuilt, c.MaxYearBuilt)
	if c.MinListPrice != nil {
		clauses = append(clauses, fmt.Sprintf("ListPrice ge %.0f", *c.MinListPrice))
	}
	if c.MaxListPrice != nil {
		clauses = append(clauses, fmt.Sprintf("ListPrice le %.0f", *c.MaxListPrice))
	}
	if len(c.Statuses) > 0 {
		vals := make([]string, 0, len(c.Statuses))
		for _, s := range c.Statuses {
			vals = append(vals, string(s))
		}
		clauses = append(clauses, anyOf("StandardStatus", vals))
	}
	if c.ModifiedSince != nil {
		clauses = append(clauses, fmt.Sprintf("ModificationTimestamp ge %s", c.ModifiedSince.UTC().Format(time.RFC3339)))
	}

	q := url.Values{}
	if len(clauses) > 0 {
		q.Set("$filter", strings.Join(clauses, " and "))
	}
	field, ok := sortFields[c.SortBy]
	if !ok {
		field = "ModificationTimestamp"
	}
	dir := "asc"
	if c.SortDesc {
		dir = "desc"
	}
	q.Set("$orderby", field+" "+dir)
	q.Set("$top", fmt.Sprintf("%d", c.Limit))
	if c.Offset > 0 {
		q.Set("$skip", fmt.Sprintf("%d", c.Offset))
	}
	q.Set("$count", "true")
	return q
}

func anyOf(field string, vals []string) string {
	parts := make([]string, 0, len(vals))
	for _, v := range vals {
		parts = append(parts, fmt.Sprintf("%s eq '%s'", field, escape(v)))
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, " or ") + ")"
}

func appendIntRange(clauses []string, field string, min, max *int) []string {
	if min != nil {
		clauses = append(clauses, fmt.Sprintf("%s ge %d", field, *min))
	}
	if max != nil {
		clauses = append(clauses, fmt.Sprintf("%s le %d", field, *max))
	}
	return clauses
}

// escape doubles single quotes per OData literal rules.
func escape(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}
