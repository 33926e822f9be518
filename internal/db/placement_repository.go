package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Placement is one decoded placed object as stored by the export pass.
// Seq is the position of the object in its cell's iteration order.
type Placement struct {
	Region  int
	CellX   int32
	CellZ   int32
	Seq     int
	X, Y, Z int32
	Heading uint8
	Type    uint16
}

// RegionExport is the full set of placements of one region together with
// the fingerprint of the data they were decoded from.
type RegionExport struct {
	Region      int
	Fingerprint []byte
	Placements  []Placement
}

// PlacementRepository stores exported placements.
type PlacementRepository struct {
	pool *pgxpool.Pool
}

// NewPlacementRepository creates a new placement repository.
func NewPlacementRepository(pool *pgxpool.Pool) *PlacementRepository {
	return &PlacementRepository{pool: pool}
}

var placementColumns = []string{
	"level", "region", "cell_x", "cell_z", "seq", "x", "y", "z", "heading", "type_index",
}

// Fingerprint returns the stored fingerprint of a region. ok is false when
// the region was never exported.
func (r *PlacementRepository) Fingerprint(ctx context.Context, level string, region int) (fp []byte, ok bool, err error) {
	err = r.pool.QueryRow(ctx,
		`SELECT fingerprint FROM region_exports WHERE level = $1 AND region = $2`,
		level, region,
	).Scan(&fp)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("querying fingerprint of %s region %d: %w", level, region, err)
	}
	return fp, true, nil
}

// SaveRegions replaces the placements of every given region and records
// its fingerprint, all in one transaction.
func (r *PlacementRepository) SaveRegions(ctx context.Context, level string, exports []RegionExport) error {
	if len(exports) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("rollback failed", "level", level, "error", err)
		}
	}()

	for _, e := range exports {
		if err := r.saveRegionTx(ctx, tx, level, e); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	slog.Debug("saved region placements", "level", level, "regions", len(exports))
	return nil
}

func (r *PlacementRepository) saveRegionTx(ctx context.Context, tx pgx.Tx, level string, e RegionExport) error {
	if _, err := tx.Exec(ctx,
		`DELETE FROM placements WHERE level = $1 AND region = $2`,
		level, e.Region,
	); err != nil {
		return fmt.Errorf("deleting placements of %s region %d: %w", level, e.Region, err)
	}

	if len(e.Placements) > 0 {
		rows := make([][]any, 0, len(e.Placements))
		for _, p := range e.Placements {
			rows = append(rows, []any{
				level, int32(e.Region), p.CellX, p.CellZ, int32(p.Seq),
				p.X, p.Y, p.Z, int16(p.Heading), int32(p.Type),
			})
		}
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"placements"},
			placementColumns,
			pgx.CopyFromRows(rows),
		); err != nil {
			return fmt.Errorf("inserting placements of %s region %d: %w", level, e.Region, err)
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO region_exports (level, region, fingerprint, placements, exported_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (level, region) DO UPDATE
		 SET fingerprint = EXCLUDED.fingerprint,
		     placements = EXCLUDED.placements,
		     exported_at = EXCLUDED.exported_at`,
		level, e.Region, e.Fingerprint, len(e.Placements),
	); err != nil {
		return fmt.Errorf("recording export of %s region %d: %w", level, e.Region, err)
	}
	return nil
}

// LoadRegion returns the stored placements of a region in cell and
// iteration order.
func (r *PlacementRepository) LoadRegion(ctx context.Context, level string, region int) ([]Placement, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT cell_x, cell_z, seq, x, y, z, heading, type_index
		 FROM placements
		 WHERE level = $1 AND region = $2
		 ORDER BY cell_z, cell_x, seq`,
		level, region,
	)
	if err != nil {
		return nil, fmt.Errorf("loading placements of %s region %d: %w", level, region, err)
	}
	defer rows.Close()

	var out []Placement
	for rows.Next() {
		var (
			p       = Placement{Region: region}
			seq     int32
			heading int16
			typ     int32
		)
		if err := rows.Scan(&p.CellX, &p.CellZ, &seq, &p.X, &p.Y, &p.Z, &heading, &typ); err != nil {
			return nil, fmt.Errorf("scanning placement row: %w", err)
		}
		p.Seq = int(seq)
		p.Heading = uint8(heading)
		p.Type = uint16(typ)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating placement rows: %w", err)
	}
	return out, nil
}

// CountPlacements returns how many placements a level has stored.
func (r *PlacementRepository) CountPlacements(ctx context.Context, level string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM placements WHERE level = $1`, level,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting placements of %s: %w", level, err)
	}
	return n, nil
}
