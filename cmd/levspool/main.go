// Command levspool reads the streamed world database of a level container.
//
// Usage:
//
//	levspool cell <x> <z>      # print the placed objects of one cell
//	levspool region <index>    # print a region summary
//	levspool export            # write every placement to PostgreSQL
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/udisondev/levspool/internal/config"
	"github.com/udisondev/levspool/internal/db"
	"github.com/udisondev/levspool/internal/export"
	"github.com/udisondev/levspool/internal/level"
	"github.com/udisondev/levspool/internal/texture"
	"github.com/udisondev/levspool/internal/world"
)

const ConfigPath = "config/levspool.yaml"

var errUsage = errors.New("usage: levspool cell <x> <z> | region <index> | export")

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx, os.Args[1:]); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	cfgPath := ConfigPath
	if p := os.Getenv("LEVSPOOL_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))

	if len(args) == 0 {
		return errUsage
	}

	layout, err := cfg.Level.Layout()
	if err != nil {
		return fmt.Errorf("level config: %w", err)
	}

	switch args[0] {
	case "cell":
		if len(args) != 3 {
			return errUsage
		}
		x, err := strconv.ParseInt(args[1], 10, 32)
		if err != nil {
			return fmt.Errorf("cell x: %w", err)
		}
		z, err := strconv.ParseInt(args[2], 10, 32)
		if err != nil {
			return fmt.Errorf("cell z: %w", err)
		}
		return withMap(cfg, layout, func(m *world.Map, _ *texture.PageCache, _ *modelIndex) error {
			return printCell(m, int32(x), int32(z))
		})
	case "region":
		if len(args) != 2 {
			return errUsage
		}
		index, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("region index: %w", err)
		}
		return withMap(cfg, layout, func(m *world.Map, pages *texture.PageCache, models *modelIndex) error {
			return printRegion(m, pages, models, index)
		})
	case "export":
		return runExport(ctx, cfg, layout)
	default:
		return errUsage
	}
}

func withMap(cfg config.Config, layout level.Layout, fn func(*world.Map, *texture.PageCache, *modelIndex) error) error {
	s, err := level.Open(cfg.Level.Path)
	if err != nil {
		return err
	}
	defer s.Close()

	m, err := world.LoadMap(s, layout)
	if err != nil {
		return err
	}

	pages, err := texture.NewPageCache(cfg.TextureCache)
	if err != nil {
		return err
	}
	defer pages.Close()

	models := &modelIndex{sizes: make(map[uint16]int)}
	m.SetTextureLoader(pages)
	m.SetModelRegistry(models)
	return fn(m, pages, models)
}

func printCell(m *world.Map, cellX, cellZ int32) error {
	if err := m.SpoolCell(cellX, cellZ); err != nil {
		return err
	}
	anchor := m.CellAnchor(cellX, cellZ)
	fmt.Printf("cell (%d, %d) region %d anchor %d,%d\n", cellX, cellZ, m.CellToRegion(cellX, cellZ), anchor.X, anchor.Z)

	it, ok := world.First(m, cellX, cellZ)
	if !ok {
		fmt.Println("  no objects")
		return nil
	}
	for obj := it.Object(); ok; obj, ok = it.Next() {
		fmt.Printf("  type %4d heading %2d at %d,%d,%d\n",
			obj.Type, obj.Heading, obj.Position.X, obj.Position.Y, obj.Position.Z)
	}
	return it.Err()
}

func printRegion(m *world.Map, pages *texture.PageCache, models *modelIndex, index int) error {
	if err := m.SpoolRegion(index); err != nil {
		return err
	}
	r, err := m.Region(index)
	if err != nil {
		return err
	}

	sp := r.Spool()
	seg := r.Segments()
	fmt.Printf("region %d at (%d, %d) barrel %d\n", r.Number(), r.X(), r.Z(), r.Barrel())
	fmt.Printf("  loaded %t empty %t pointers %d cell entries %d objects %d\n",
		r.IsLoaded(), r.IsEmpty(), r.PointerCount(), r.NumCellEntries(), r.NumObjects())
	if sp.SuperRegion != world.NoSuperRegion {
		fmt.Printf("  super region %d, %d connected areas\n", sp.SuperRegion, sp.NumConnectedAreas)
	}
	fmt.Printf("  pvs %#x+%d road map %#x+%d road heights %#x+%d\n",
		seg.PVS.Offset, seg.PVS.Size, seg.RoadMap.Offset, seg.RoadMap.Size,
		seg.RoadHeights.Offset, seg.RoadHeights.Size)

	loads, hits := pages.Stats()
	fmt.Printf("  texture pages loaded %d cached %d, models %d\n", loads, hits, len(models.sizes))
	return nil
}

func runExport(ctx context.Context, cfg config.Config, layout level.Layout) error {
	if err := db.RunMigrations(ctx, cfg.Database.DSN()); err != nil {
		return err
	}
	database, err := db.New(ctx, cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer database.Close()

	repo := db.NewPlacementRepository(database.Pool())
	name := filepath.Base(cfg.Level.Path)
	_, err = export.New(cfg.Export, name, cfg.Level.Path, layout, repo).Run(ctx)
	return err
}

// modelIndex records the models materialised by area loads.
type modelIndex struct {
	sizes map[uint16]int
}

func (m *modelIndex) RegisterModel(index uint16, data []byte) {
	m.sizes[index] = len(data)
}

// parseLogLevel converts string log level to slog.Level.
// Defaults to Info if invalid or empty.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
