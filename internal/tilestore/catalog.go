package tilestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/Faultbox/falcon-terrain/internal/assets"
	"github.com/Faultbox/falcon-terrain/internal/engine/lattice"
)

const catalogSchema = `
CREATE TABLE IF NOT EXISTS tiles (
	x               INTEGER NOT NULL,
	y               INTEGER NOT NULL,
	elevation_path  TEXT    NOT NULL,
	texture_path    TEXT    NOT NULL DEFAULT '',
	spacing         REAL    NOT NULL DEFAULT 0,
	elevation_scale REAL    NOT NULL DEFAULT 1,
	PRIMARY KEY (x, y)
);`

// Catalog is a SQLite index of tiles. Relative paths resolve against the
// directory holding the database.
type Catalog struct {
	db        *sql.DB
	files     *assets.Manager
	worldSize float32
}

// OpenCatalog opens or creates the catalog at path.
func OpenCatalog(path string, worldSize float32) (*Catalog, error) {
	if path == "" {
		return nil, fmt.Errorf("empty catalog path")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA journal_mode=WAL;", "PRAGMA busy_timeout=5000;", catalogSchema} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("initializing catalog: %w", err)
		}
	}

	files := assets.NewManager(16 << 20)
	if err := files.AddRoot(dir); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Catalog{db: db, files: files, worldSize: worldSize}, nil
}

// Register inserts or replaces a tile entry.
func (c *Catalog) Register(ctx context.Context, e Entry) error {
	if e.ElevationPath == "" {
		return fmt.Errorf("tile %v: empty elevation path", e.Coord)
	}
	if e.ElevationScale == 0 {
		e.ElevationScale = 1
	}
	_, err := c.db.ExecContext(ctx, `
INSERT INTO tiles (x, y, elevation_path, texture_path, spacing, elevation_scale)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (x, y) DO UPDATE SET
	elevation_path = excluded.elevation_path,
	texture_path = excluded.texture_path,
	spacing = excluded.spacing,
	elevation_scale = excluded.elevation_scale`,
		e.Coord.X, e.Coord.Y, e.ElevationPath, e.TexturePath, e.Spacing, e.ElevationScale)
	if err != nil {
		return fmt.Errorf("registering tile %v: %w", e.Coord, err)
	}
	return nil
}

// Lookup returns the entry for coord.
func (c *Catalog) Lookup(ctx context.Context, coord lattice.Coord) (Entry, error) {
	e := Entry{Coord: coord}
	var spacing, scale float64
	err := c.db.QueryRowContext(ctx,
		`SELECT elevation_path, texture_path, spacing, elevation_scale FROM tiles WHERE x = ? AND y = ?`,
		coord.X, coord.Y).Scan(&e.ElevationPath, &e.TexturePath, &spacing, &scale)
	if errors.Is(err, sql.ErrNoRows) {
		return e, fmt.Errorf("%w: %v", ErrTileNotFound, coord)
	}
	if err != nil {
		return e, fmt.Errorf("looking up tile %v: %w", coord, err)
	}
	e.Spacing = float32(spacing)
	e.ElevationScale = float32(scale)
	return e, nil
}

// Count returns the number of registered tiles.
func (c *Catalog) Count(ctx context.Context) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tiles`).Scan(&n)
	return n, err
}

// LoadTile implements lattice.TileLoader.
func (c *Catalog) LoadTile(ctx context.Context, coord lattice.Coord) (*lattice.TileData, error) {
	e, err := c.Lookup(ctx, coord)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := buildTile(c.files, e, c.worldSize)
	if err != nil {
		return nil, err
	}
	log.L().Debug("tile loaded from catalog",
		zap.Stringer("tile", coord),
		zap.String("elevation", e.ElevationPath))
	return data, nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	c.files.Close()
	return c.db.Close()
}
