package hierarchy

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"iot-engine/internal/models"
)

const (
	brandsTableSQL = `
		CREATE TABLE IF NOT EXISTS brands (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			holding_id TEXT NOT NULL
		)
	`

	sitesTableSQL = `
		CREATE TABLE IF NOT EXISTS sites (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			brand_id TEXT NOT NULL REFERENCES brands(id),
			region TEXT NOT NULL DEFAULT '',
			energy_enabled BOOLEAN NOT NULL DEFAULT TRUE,
			air_enabled BOOLEAN NOT NULL DEFAULT FALSE,
			water_enabled BOOLEAN NOT NULL DEFAULT FALSE
		)
	`

	siteSelect = `SELECT s.id, s.name, s.brand_id, b.holding_id, s.region,
		s.energy_enabled, s.air_enabled, s.water_enabled
		FROM sites s JOIN brands b ON b.id = s.brand_id`

	scopeWhere = ` WHERE ($1::text = 'all'
			OR ($1::text = 'brand' AND s.brand_id = $2)
			OR ($1::text = 'holding' AND b.holding_id = $2))
		AND ($3::text = '' OR s.region = $3)
		ORDER BY s.id`
)

// Postgres resolves hierarchy membership from the brands and sites tables
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Resolver = (*Postgres)(nil)

// NewPostgres constructs a Postgres resolver
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// InitSchema creates the hierarchy tables if they don't exist
func (p *Postgres) InitSchema(ctx context.Context) error {
	for _, stmt := range []string{brandsTableSQL, sitesTableSQL} {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create hierarchy table: %w", err)
		}
	}
	return nil
}

// ResolveSites returns the sites of scope ordered by id
func (p *Postgres) ResolveSites(ctx context.Context, scope models.Scope) ([]models.Site, error) {
	if err := ValidateScope(scope); err != nil {
		return nil, err
	}
	rows, err := p.pool.Query(ctx, siteSelect+scopeWhere, string(scope.Kind), scope.ID, scope.Region)
	if err != nil {
		return nil, fmt.Errorf("failed to query sites: %w", err)
	}
	defer rows.Close()

	var out []models.Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, site)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sites: %w", err)
	}
	return out, nil
}

func (p *Postgres) GetSite(ctx context.Context, siteID string) (models.Site, error) {
	site, err := scanSite(p.pool.QueryRow(ctx, siteSelect+` WHERE s.id = $1`, siteID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Site{}, fmt.Errorf("%w: %s", ErrNotFound, siteID)
	}
	return site, err
}

func scanSite(row pgx.Row) (models.Site, error) {
	var site models.Site
	err := row.Scan(
		&site.ID,
		&site.Name,
		&site.BrandID,
		&site.HoldingID,
		&site.Region,
		&site.Modules.Energy,
		&site.Modules.Air,
		&site.Modules.Water,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Site{}, err
		}
		return models.Site{}, fmt.Errorf("failed to scan site: %w", err)
	}
	return site, nil
}
