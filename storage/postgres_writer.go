package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/Teichhofer/Marktview/models"
)

// PostgresStore mirrors listings into PostgreSQL. The unique listing_id
// column makes appends idempotent; rows without an id are stored with a NULL
// id and never collide.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection, waits for the database to come up,
// runs the schema migration, and returns a ready-to-use store.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	ps := &PostgresStore{db: db}
	if err := ps.migrate(); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return ps, nil
}

func (ps *PostgresStore) migrate() error {
	_, err := ps.db.Exec(`
		CREATE TABLE IF NOT EXISTS listings (
			id                 SERIAL PRIMARY KEY,
			title              TEXT NOT NULL,
			url                TEXT NOT NULL,
			postal_code        TEXT NOT NULL DEFAULT '',
			created_at         TEXT NOT NULL DEFAULT '',
			body               TEXT NOT NULL DEFAULT '',
			gender             TEXT NOT NULL DEFAULT '',
			target_audience    TEXT NOT NULL DEFAULT '',
			financial_interest TEXT NOT NULL DEFAULT '',
			listing_id         TEXT UNIQUE,
			username           TEXT NOT NULL DEFAULT '',
			scraped_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_listings_postal_code ON listings(postal_code);
		CREATE INDEX IF NOT EXISTS idx_listings_gender      ON listings(gender);
		CREATE INDEX IF NOT EXISTS idx_listings_audience    ON listings(target_audience);
	`)
	return err
}

// KnownIDs returns every stored listing id.
func (ps *PostgresStore) KnownIDs() (map[string]struct{}, error) {
	rows, err := ps.db.Query(`
		SELECT listing_id FROM listings
		WHERE listing_id IS NOT NULL AND listing_id <> ''
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: known ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan id: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// Append batch-inserts the listings; rows whose listing_id already exists
// are skipped by the database. Returns the number of rows actually inserted.
func (ps *PostgresStore) Append(listings []*models.Listing) (int, error) {
	if len(listings) == 0 {
		return 0, nil
	}

	const batchSize = 50
	written := 0
	for i := 0; i < len(listings); i += batchSize {
		end := i + batchSize
		if end > len(listings) {
			end = len(listings)
		}
		n, err := ps.insertBatch(listings[i:end])
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

func (ps *PostgresStore) insertBatch(batch []*models.Listing) (int, error) {
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]interface{}, 0, len(batch)*10)

	for idx, l := range batch {
		base := idx * 10
		valueStrings = append(valueStrings,
			fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)",
				base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10))

		id := sql.NullString{String: l.ListingID, Valid: l.ListingID != ""}
		valueArgs = append(valueArgs,
			l.Title, l.URL, l.PostalCode, l.CreatedAt, l.Body,
			l.Gender, l.TargetAudience, l.FinancialInterest, id, l.Username)
	}

	query := fmt.Sprintf(`
		INSERT INTO listings (title, url, postal_code, created_at, body,
			gender, target_audience, financial_interest, listing_id, username)
		VALUES %s
		ON CONFLICT (listing_id) DO NOTHING
	`, strings.Join(valueStrings, ","))

	res, err := ps.db.Exec(query, valueArgs...)
	if err != nil {
		return 0, fmt.Errorf("postgres: insert batch: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Clear deletes all stored listings.
func (ps *PostgresStore) Clear() error {
	if _, err := ps.db.Exec("DELETE FROM listings"); err != nil {
		return fmt.Errorf("postgres: clear: %w", err)
	}
	return nil
}

// FetchAll retrieves every stored listing in insertion order.
func (ps *PostgresStore) FetchAll() ([]*models.Listing, error) {
	rows, err := ps.db.Query(`
		SELECT title, url, postal_code, created_at, body,
			gender, target_audience, financial_interest,
			COALESCE(listing_id, ''), username
		FROM listings
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch all: %w", err)
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		l := &models.Listing{}
		if err := rows.Scan(
			&l.Title, &l.URL, &l.PostalCode, &l.CreatedAt, &l.Body,
			&l.Gender, &l.TargetAudience, &l.FinancialInterest, &l.ListingID, &l.Username,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func (ps *PostgresStore) Close() error {
	return ps.db.Close()
}
