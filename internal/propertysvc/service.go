// Package propertysvc is the application-facing façade over the integration
// client: free-text query parsing, address-driven listing lookup, address
// suggestions and comparable sales.
package propertysvc

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/yourorg/mls-sync/internal/address"
	"github.com/yourorg/mls-sync/internal/geocode"
	"github.com/yourorg/mls-sync/internal/mlserr"
	"github.com/yourorg/mls-sync/mls"
)

// Searcher is the slice of the integration client this façade needs.
type Searcher interface {
	SearchProperties(ctx context.Context, criteria *mls.SearchCriteria) (*mls.SearchResult, error)
}

type Service struct {
	search Searcher
	addr   *address.Validator
	geo    geocode.Geocoder
	log    zerolog.Logger
}

func New(search Searcher, addr *address.Validator, geo geocode.Geocoder, log zerolog.Logger) *Service {
	return &Service{search: search, addr: addr, geo: geo, log: log}
}

var (
	reBeds    = regexp.MustCompile(`(?i)\b(\d+)\s*\+?\s*(?:bed(?:room)?s?|bd|br)\b`)
	reBaths   = regexp.MustCompile(`(?i)\b(\d+)(?:\.\d+)?\s*\+?\s*(?:bath(?:room)?s?|ba)\b`)
	reUnder   = regexp.MustCompile(`(?i)\b(?:under|below|less than|max|up to)\s*\$?([\d,.]+)\s*([km]?)\b`)
	reOver    = regexp.MustCompile(`(?i)\b(?:over|above|more than|min|at least|from)\s*\$?([\d,.]+)\s*([km]?)\b`)
	reBetween = regexp.MustCompile(`(?i)\bbetween\s*\$?([\d,.]+)\s*([km]?)\s*(?:and|-|to)\s*\$?([\d,.]+)\s*([km]?)\b`)
	reZip5    = regexp.MustCompile(`\b(\d{5})\b`)
	reInCity  = regexp.MustCompile(`(?i)\bin\s+([a-z][a-z .'-]+?)(?:$|,|\bunder\b|\bover\b|\bbetween\b|\bwith\b|\bfor\b|\d)`)
)

var typeKeywords = []struct {
	word string
	t    mls.PropertyType
}{
	{"condo", mls.TypeCondominium},
	{"townhouse", mls.TypeTownhouse},
	{"townhome", mls.TypeTownhouse},
	{"multi-family", mls.TypeMultiFamily},
	{"multifamily", mls.TypeMultiFamily},
	{"duplex", mls.TypeMultiFamily},
	{"land", mls.TypeLand},
	{"lot", mls.TypeLand},
	{"commercial", mls.TypeCommercial},
	{"house", mls.TypeResidential},
	{"home", mls.TypeResidential},
}

// ParseQuery turns a free-text query like "3 bed 2 bath condo in Columbus
// under 400k" into structured criteria. Unrecognized fragments are ignored;
// an empty query yields empty criteria.
func ParseQuery(query string) *mls.SearchCriteria {
	c := &mls.SearchCriteria{}
	q := strings.TrimSpace(query)
	if q == "" {
		return c
	}
	lower := strings.ToLower(q)

	if m := reBeds.FindStringSubmatch(q); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			c.MinBedrooms = &n
		}
	}
	if m := reBaths.FindStringSubmatch(q); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			c.MinBathrooms = &n
		}
	}

	// Price: "between" wins over standalone under/over markers.
	if m := reBetween.FindStringSubmatch(q); m != nil {
		lo := parseMoney(m[1], m[2])
		hi := parseMoney(m[3], m[4])
		if lo > 0 && hi > 0 {
			c.MinListPrice = &lo
			c.MaxListPrice = &hi
		}
	} else {
		if m := reUnder.FindStringSubmatch(q); m != nil {
			if v := parseMoney(m[1], m[2]); v > 0 {
				c.MaxListPrice = &v
			}
		}
		if m := reOver.FindStringSubmatch(q); m != nil {
			if v := parseMoney(m[1], m[2]); v > 0 {
				c.MinListPrice = &v
			}
		}
	}

	for _, z := range reZip5.FindAllStringSubmatch(q, -1) {
		c.PostalCodes = append(c.PostalCodes, z[1])
	}
	if len(c.PostalCodes) == 0 {
		if m := reInCity.FindStringSubmatch(q); m != nil {
			if city := strings.TrimSpace(m[1]); city != "" {
				c.Cities = append(c.Cities, titleWords(city))
			}
		}
	}

	for _, kw := range typeKeywords {
		if strings.Contains(lower, kw.word) {
			c.PropertyType = kw.t
			break
		}
	}

	switch {
	case strings.Contains(lower, "sold"), strings.Contains(lower, "closed"):
		c.Statuses = []mls.StandardStatus{mls.StatusClosed}
	case strings.Contains(lower, "pending"):
		c.Statuses = []mls.StandardStatus{mls.StatusPending}
	case strings.Contains(lower, "for sale"), strings.Contains(lower, "active"):
		c.Statuses = []mls.StandardStatus{mls.StatusActive}
	}
	return c
}

// SearchByQuery parses and runs a free-text search in one step.
func (s *Service) SearchByQuery(ctx context.Context, query string) (*mls.SearchResult, error) {
	return s.search.SearchProperties(ctx, ParseQuery(query))
}

type AutoPopulated struct {
	Validation address.Validation `json:"validation"`
	Match      *mls.Property      `json:"match,omitempty"`
}

// AutoPopulateFromAddress validates a raw address, then looks for the
// matching active or recently closed listing in its ZIP. Matching is by
// canonical property key, so unit suffixes and suffix spelling do not matter.
func (s *Service) AutoPopulateFromAddress(ctx context.Context, raw string) (*AutoPopulated, error) {
	v := s.addr.Validate(raw)
	out := &AutoPopulated{Validation: v}
	if !v.IsValid {
		return out, mlserr.Validation("INVALID_ADDRESS", strings.Join(v.Errors, "; "))
	}

	comp := v.Components
	line1 := strings.TrimSpace(strings.Join([]string{comp.StreetNumber, comp.StreetName, comp.StreetSuffix}, " "))
	_, _, _, _, wantKey := address.Canonicalize(line1, comp.City, comp.State, comp.Zip)

	res, err := s.search.SearchProperties(ctx, &mls.SearchCriteria{
		PostalCodes: []string{zip5(comp.Zip)},
		Statuses: []mls.StandardStatus{
			mls.StatusActive, mls.StatusActiveUnderContract, mls.StatusPending, mls.StatusClosed,
		},
		Limit: mls.MaxLimit,
	})
	if err != nil {
		return out, err
	}
	for _, p := range res.Properties {
		street := strings.TrimSpace(strings.Join([]string{p.Address.StreetNumber, p.Address.StreetName, p.Address.StreetSuffix}, " "))
		_, _, _, _, key := address.Canonicalize(street, p.Address.City, p.Address.State, p.Address.PostalCode)
		if key == wantKey {
			out.Match = p
			return out, nil
		}
	}
	return out, nil
}

// Suggestions returns up to limit one-line addresses of listings whose
// address starts with the partial input. Below three characters it returns
// nothing rather than scanning broadly.
func (s *Service) Suggestions(ctx context.Context, partial string, limit int) ([]string, error) {
	partial = strings.TrimSpace(partial)
	if len(partial) < 3 {
		return nil, nil
	}
	if limit <= 0 || limit > 25 {
		limit = 10
	}

	criteria := &mls.SearchCriteria{
		Statuses: []mls.StandardStatus{mls.StatusActive, mls.StatusActiveUnderContract, mls.StatusPending},
		Limit:    mls.MaxLimit,
	}
	if m := reZip5.FindStringSubmatch(partial); m != nil {
		criteria.PostalCodes = []string{m[1]}
	}
	res, err := s.search.SearchProperties(ctx, criteria)
	if err != nil {
		return nil, err
	}

	want := strings.ToLower(partial)
	seen := make(map[string]bool)
	out := make([]string, 0, limit)
	for _, p := range res.Properties {
		line := p.Address.OneLine()
		lower := strings.ToLower(line)
		if !strings.HasPrefix(lower, want) && !strings.Contains(lower, want) {
			continue
		}
		if seen[lower] {
			continue
		}
		seen[lower] = true
		out = append(out, line)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// RecentComparables geocodes the subject address and returns closed sales
// nearby, nearest first.
func (s *Service) RecentComparables(ctx context.Context, raw string, radiusMiles float64, limit int) ([]mls.Comparable, error) {
	if raw == "" {
		return nil, mlserr.Validation("MISSING_ADDRESS", "address is required")
	}
	if radiusMiles <= 0 {
		radiusMiles = 1.0
	}
	if limit <= 0 {
		limit = 10
	}
	lat, lon, err := s.geo.Geocode(ctx, raw)
	if err != nil {
		return nil, mlserr.New(mlserr.TypeAPI, "GEOCODE_FAILED", err.Error())
	}

	box := mls.BoundingBoxAround(lat, lon, radiusMiles)
	res, err := s.search.SearchProperties(ctx, &mls.SearchCriteria{
		BoundingBox: &box,
		Statuses:    []mls.StandardStatus{mls.StatusClosed},
		Limit:       200,
	})
	if err != nil {
		return nil, err
	}

	comps := make([]mls.Comparable, 0, len(res.Properties))
	for _, p := range res.Properties {
		if p.Latitude == nil || p.Longitude == nil {
			continue
		}
		comps = append(comps, mls.Comparable{
			Property:      p,
			DistanceMiles: mls.Haversine(lat, lon, *p.Latitude, *p.Longitude),
		})
	}
	sort.Slice(comps, func(i, j int) bool { return comps[i].DistanceMiles < comps[j].DistanceMiles })
	if len(comps) > limit {
		comps = comps[:limit]
	}
	return comps, nil
}

func parseMoney(num, suffix string) float64 {
	num = strings.ReplaceAll(num, ",", "")
	v, err := strconv.ParseFloat(strings.TrimSuffix(num, "."), 64)
	if err != nil {
		return 0
	}
	switch strings.ToLower(suffix) {
	case "k":
		v *= 1_000
	case "m":
		v *= 1_000_000
	}
	return v
}

func titleWords(s string) string {
	fields := strings.Fields(strings.ToLower(s))
	for i, f := range fields {
		fields[i] = strings.ToUpper(f[:1]) + f[1:]
	}
	return strings.Join(fields, " ")
}

func zip5(z string) string {
	if len(z) >= 5 {
		return z[:5]
	}
	return z
}
