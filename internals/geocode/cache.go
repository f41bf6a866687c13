package geocode

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/feastline/livetrack/internals/domain"
)

// Cache is a SQLite-backed cache mapping normalized address strings to
// coordinates, so restarts do not re-spend geocoding quota.
type Cache struct {
	DB *sql.DB
}

func NewCache(db *sql.DB) *Cache {
	return &Cache{DB: db}
}

// Init creates the cache table if it does not exist.
func (c *Cache) Init(ctx context.Context) error {
	if c.DB == nil {
		return errors.New("geocode cache: db is nil")
	}
	_, err := c.DB.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS geocode_cache (
        address TEXT PRIMARY KEY,
        lat     REAL NOT NULL,
        lng     REAL NOT NULL
    );
	`)
	if err != nil {
		return fmt.Errorf("init geocode cache: %w", err)
	}
	return nil
}

// Get fetches cached coordinates for an address.
func (c *Cache) Get(ctx context.Context, address string) (domain.LatLng, bool, error) {
	if c.DB == nil {
		return domain.LatLng{}, false, errors.New("geocode cache: db is nil")
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return domain.LatLng{}, false, nil
	}

	var p domain.LatLng
	err := c.DB.QueryRowContext(ctx, `
	SELECT lat, lng FROM geocode_cache WHERE address = ?;
	`, address).Scan(&p.Lat, &p.Lng)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LatLng{}, false, nil
	}
	if err != nil {
		return domain.LatLng{}, false, fmt.Errorf("get geocode cache: %w", err)
	}
	return p, true, nil
}

// Put stores an address -> coordinate mapping.
func (c *Cache) Put(ctx context.Context, address string, p domain.LatLng) error {
	if c.DB == nil {
		return errors.New("geocode cache: db is nil")
	}
	if strings.TrimSpace(address) == "" {
		return errors.New("geocode cache: empty address key")
	}

	_, err := c.DB.ExecContext(ctx, `
	INSERT OR REPLACE INTO geocode_cache (address, lat, lng)
    VALUES (?, ?, ?);
	`, address, p.Lat, p.Lng)
	if err != nil {
		return fmt.Errorf("insert geocode cache %q: %w", address, err)
	}
	return nil
}
