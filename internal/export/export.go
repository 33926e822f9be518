// Package export writes every placed object of a level to a placement
// store. Regions are exported by parallel workers, each paging its own copy
// of the map through its own stream.
package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"

	"github.com/udisondev/levspool/internal/db"
	"github.com/udisondev/levspool/internal/level"
	"github.com/udisondev/levspool/internal/world"
)

// Store receives exported regions.
type Store interface {
	Fingerprint(ctx context.Context, level string, region int) ([]byte, bool, error)
	SaveRegions(ctx context.Context, level string, exports []db.RegionExport) error
}

// Config controls the export pass.
type Config struct {
	Workers      int `yaml:"workers"`
	BatchRegions int `yaml:"batch_regions"` // regions per store transaction
}

// DefaultConfig returns the default export settings.
func DefaultConfig() Config {
	return Config{
		Workers:      4,
		BatchRegions: 16,
	}
}

// Stats summarises an export pass.
type Stats struct {
	Regions    int // regions written
	Unchanged  int // regions skipped because their fingerprint matched
	Placements int
}

// Exporter exports one level container.
type Exporter struct {
	cfg    Config
	name   string
	path   string
	layout level.Layout
	store  Store

	regions    atomic.Int64
	unchanged  atomic.Int64
	placements atomic.Int64
}

// New creates an exporter for the container at path. name keys the level in
// the store.
func New(cfg Config, name, path string, layout level.Layout, store Store) *Exporter {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.BatchRegions < 1 {
		cfg.BatchRegions = 1
	}
	return &Exporter{
		cfg:    cfg,
		name:   name,
		path:   path,
		layout: layout,
		store:  store,
	}
}

// Run exports every region of the level.
func (e *Exporter) Run(ctx context.Context) (Stats, error) {
	numRegions, err := e.countRegions()
	if err != nil {
		return Stats{}, err
	}
	slog.Info("export started", "level", e.name, "regions", numRegions, "workers", e.cfg.Workers)

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan int)

	g.Go(func() error {
		defer close(jobs)
		for i := range numRegions {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for w := range e.cfg.Workers {
		g.Go(func() error {
			return e.work(gctx, w, jobs)
		})
	}

	err = g.Wait()
	stats := Stats{
		Regions:    int(e.regions.Load()),
		Unchanged:  int(e.unchanged.Load()),
		Placements: int(e.placements.Load()),
	}
	if err != nil {
		return stats, fmt.Errorf("exporting %s: %w", e.name, err)
	}
	slog.Info("export finished",
		"level", e.name,
		"regions", stats.Regions,
		"unchanged", stats.Unchanged,
		"placements", stats.Placements)
	return stats, nil
}

func (e *Exporter) countRegions() (int, error) {
	m, closeMap, err := e.openMap()
	if err != nil {
		return 0, err
	}
	defer closeMap()
	return m.NumRegions(), nil
}

func (e *Exporter) openMap() (*world.Map, func(), error) {
	s, err := level.Open(e.path)
	if err != nil {
		return nil, nil, err
	}
	m, err := world.LoadMap(s, e.layout)
	if err != nil {
		s.Close()
		return nil, nil, err
	}
	return m, func() { s.Close() }, nil
}

func (e *Exporter) work(ctx context.Context, worker int, jobs <-chan int) error {
	m, closeMap, err := e.openMap()
	if err != nil {
		return fmt.Errorf("worker %d: %w", worker, err)
	}
	defer closeMap()

	var batch []db.RegionExport
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := e.store.SaveRegions(ctx, e.name, batch); err != nil {
			return fmt.Errorf("worker %d: %w", worker, err)
		}
		for _, b := range batch {
			e.regions.Add(1)
			e.placements.Add(int64(len(b.Placements)))
		}
		slog.Info("export progress", "level", e.name, "worker", worker, "regions", e.regions.Load())
		batch = nil
		return nil
	}

	for index := range jobs {
		exp, changed, err := e.exportRegion(ctx, m, index)
		if err != nil {
			return fmt.Errorf("worker %d: %w", worker, err)
		}
		if !changed {
			e.unchanged.Add(1)
			continue
		}
		batch = append(batch, exp)
		if len(batch) >= e.cfg.BatchRegions {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return flush()
}

// exportRegion decodes every cell of a region. The region is visited one
// quadrant at a time with the streaming window centred on that quadrant, so
// chains that continue into neighbouring regions resolve as they do in game.
func (e *Exporter) exportRegion(ctx context.Context, m *world.Map, index int) (db.RegionExport, bool, error) {
	r, err := m.Region(index)
	if err != nil {
		return db.RegionExport{}, false, err
	}
	g := m.Grid()
	size := g.RegionSize
	half := size / 2
	x0, z0 := r.X()*size, r.Z()*size

	exp := db.RegionExport{Region: index}
	for _, qz := range [2][2]int32{{0, half}, {half, size}} {
		for _, qx := range [2][2]int32{{0, half}, {half, size}} {
			if qx[0] == qx[1] || qz[0] == qz[1] {
				continue
			}
			if err := ctx.Err(); err != nil {
				return db.RegionExport{}, false, err
			}
			if err := m.UpdateWindow(m.CellAnchor(x0+qx[0], z0+qz[0])); err != nil {
				return db.RegionExport{}, false, fmt.Errorf("spooling region %d: %w", index, err)
			}

			if exp.Fingerprint == nil {
				fp, err := e.fingerprint(m, r)
				if err != nil {
					return db.RegionExport{}, false, err
				}
				old, ok, err := e.store.Fingerprint(ctx, e.name, index)
				if err != nil {
					return db.RegionExport{}, false, err
				}
				if ok && bytes.Equal(old, fp) {
					slog.Debug("region unchanged", "level", e.name, "region", index)
					return db.RegionExport{}, false, nil
				}
				exp.Fingerprint = fp
			}

			for cz := z0 + qz[0]; cz < z0+qz[1]; cz++ {
				for cx := x0 + qx[0]; cx < x0+qx[1]; cx++ {
					exp.Placements = appendCell(exp.Placements, m, index, cx, cz)
				}
			}
		}
	}
	return exp, true, nil
}

// fingerprint hashes the straddler list and the loaded region contents.
func (e *Exporter) fingerprint(m *world.Map, r *world.Region) ([]byte, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return nil, fmt.Errorf("creating fingerprint hash: %w", err)
	}
	h.Write([]byte(m.Index().Format.String()))
	h.Write(m.Index().StraddlerRecords())
	if _, err := r.WriteTo(h); err != nil {
		return nil, fmt.Errorf("fingerprinting region %d: %w", r.Number(), err)
	}
	return h.Sum(nil), nil
}

func appendCell(out []db.Placement, m *world.Map, region int, cellX, cellZ int32) []db.Placement {
	it, ok := world.First(m, cellX, cellZ)
	if !ok {
		return out
	}
	seq := 0
	for obj := it.Object(); ok; obj, ok = it.Next() {
		out = append(out, db.Placement{
			Region:  region,
			CellX:   cellX,
			CellZ:   cellZ,
			Seq:     seq,
			X:       obj.Position.X,
			Y:       obj.Position.Y,
			Z:       obj.Position.Z,
			Heading: obj.Heading,
			Type:    obj.Type,
		})
		seq++
	}
	if err := it.Err(); err != nil {
		slog.Warn("cell chain cut short", "region", region, "cellX", cellX, "cellZ", cellZ, "err", err)
	}
	return out
}
