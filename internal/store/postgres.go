// Package store persists synced listings in Postgres.
package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/yourorg/mls-sync/internal/address"
	"github.com/yourorg/mls-sync/mls"
)

// PropertyStore is what the sync engine writes through. The Postgres
// implementation below is optional wiring; deployments without a DSN run
// cache-only.
type PropertyStore interface {
	Upsert(ctx context.Context, p *mls.Property, isNew bool) error
}

type Store struct {
	DB *sql.DB
}

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Store{DB: db}, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.DB.PingContext(ctx) }

func (s *Store) Close() error { return s.DB.Close() }

func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS listings (
			listing_id        TEXT PRIMARY KEY,
			listing_key       TEXT,
			property_key      TEXT,
			property_type     TEXT,
			property_subtype  TEXT,
			street            TEXT,
			city              TEXT,
			state             TEXT,
			zip               TEXT,
			lat               DOUBLE PRECISION,
			lon               DOUBLE PRECISION,
			beds              SMALLINT,
			baths_full        SMALLINT,
			baths_half        SMALLINT,
			sqft              INTEGER,
			lot_sqft          INTEGER,
			year_built        SMALLINT,
			list_price        NUMERIC,
			original_price    NUMERIC,
			previous_price    NUMERIC,
			price_changed_at  TIMESTAMPTZ,
			status            TEXT NOT NULL,
			remarks           TEXT,
			photos            JSONB,
			list_agent_key    TEXT,
			list_office_key   TEXT,
			modified_at       TIMESTAMPTZ,
			created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_listings_property_key ON listings(property_key);`,
		`CREATE INDEX IF NOT EXISTS idx_listings_status ON listings(status);`,
		`CREATE INDEX IF NOT EXISTS idx_listings_zip ON listings(zip);`,
		`CREATE INDEX IF NOT EXISTS idx_listings_modified ON listings(modified_at DESC);`,
	}
	for _, q := range stmts {
		if _, err := s.DB.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// Upsert writes one normalized listing keyed by listing id. isNew is advisory
// only; ON CONFLICT makes the write idempotent either way.
func (s *Store) Upsert(ctx context.Context, p *mls.Property, isNew bool) error {
	if s.DB == nil {
		return errors.New("nil db")
	}
	if p == nil || p.ListingID == "" {
		return errors.New("listing id is required")
	}

	street := strings.TrimSpace(strings.Join([]string{p.Address.StreetNumber, p.Address.StreetName, p.Address.StreetSuffix}, " "))
	street = strings.Join(strings.Fields(street), " ")
	_, _, _, _, propertyKey := address.Canonicalize(street, p.Address.City, p.Address.State, p.Address.PostalCode)
	photos, err := json.Marshal(p.Photos)
	if err != nil {
		return err
	}

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO listings (
			listing_id, listing_key, property_key, property_type, property_subtype,
			street, city, state, zip, lat, lon,
			beds, baths_full, baths_half, sqft, lot_sqft, year_built,
			list_price, original_price, previous_price, price_changed_at,
			status, remarks, photos, list_agent_key, list_office_key, modified_at
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,
			$18,$19,$20,$21,$22,$23,$24,$25,$26,$27
		)
		ON CONFLICT (listing_id) DO UPDATE SET
			listing_key=EXCLUDED.listing_key,
			property_key=EXCLUDED.property_key,
			property_type=EXCLUDED.property_type,
			property_subtype=EXCLUDED.property_subtype,
			street=EXCLUDED.street, city=EXCLUDED.city, state=EXCLUDED.state, zip=EXCLUDED.zip,
			lat=EXCLUDED.lat, lon=EXCLUDED.lon,
			beds=EXCLUDED.beds, baths_full=EXCLUDED.baths_full, baths_half=EXCLUDED.baths_half,
			sqft=EXCLUDED.sqft, lot_sqft=EXCLUDED.lot_sqft, year_built=EXCLUDED.year_built,
			list_price=EXCLUDED.list_price,
			original_price=EXCLUDED.original_price,
			previous_price=EXCLUDED.previous_price,
			price_changed_at=EXCLUDED.price_changed_at,
			status=EXCLUDED.status, remarks=EXCLUDED.remarks, photos=EXCLUDED.photos,
			list_agent_key=EXCLUDED.list_agent_key, list_office_key=EXCLUDED.list_office_key,
			modified_at=EXCLUDED.modified_at,
			updated_at=now()`,
		p.ListingID, p.ListingKey, propertyKey, string(p.PropertyType), p.PropertySubType,
		street, p.Address.City, p.Address.State, p.Address.PostalCode,
		nullFloat(p.Latitude), nullFloat(p.Longitude),
		p.Bedrooms, p.BathroomsFull, p.BathroomsHalf, p.SquareFeet, p.LotSizeSqFt, p.YearBuilt,
		p.ListPrice, nullPositive(p.OriginalListPrice), nullPositive(p.PreviousListPrice),
		nullTimePtr(p.PriceChangedAt),
		string(p.StandardStatus), p.Remarks, string(photos),
		p.ListAgentKey, p.ListOfficeKey, nullTimeVal(p.ModificationTimestamp),
	)
	return err
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullPositive(f float64) sql.NullFloat64 {
	if f <= 0 {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: f, Valid: true}
}

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimeVal(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
