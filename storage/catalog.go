package storage

import (
	"context"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
	"golang.org/x/xerrors"

	"github.com/subscription-escrow/escrowdex/config"
	"github.com/subscription-escrow/escrowdex/model"
)

// Metadata describes the job that is writing to a storage.
type Metadata struct {
	JobName string
}

// A StorageWithMetadata can be specialized for a particular job.
type StorageWithMetadata interface {
	model.Storage
	WithMetadata(Metadata) model.Storage
}

// NewCatalog validates the storage configuration and returns a catalog that can open the named storage systems.
func NewCatalog(cfg config.StorageConf) (*Catalog, error) {
	c := &Catalog{
		postgresql: map[string]config.PgStorageConf{},
		file:       map[string]config.FileStorageConf{},
	}

	for name, sc := range cfg.Postgresql {
		if _, exists := c.postgresql[name]; exists {
			return nil, xerrors.Errorf("duplicate storage name: %q", name)
		}
		c.postgresql[name] = sc
	}

	for name, sc := range cfg.File {
		if _, exists := c.postgresql[name]; exists {
			return nil, xerrors.Errorf("duplicate storage name: %q", name)
		}
		switch strings.ToUpper(sc.Format) {
		case "CSV":
		default:
			return nil, xerrors.Errorf("unsupported format %q for storage %q", sc.Format, name)
		}
		c.file[name] = sc
	}

	return c, nil
}

// A Catalog holds a list of pre-configured storage systems and can open them when requested.
type Catalog struct {
	postgresql map[string]config.PgStorageConf
	file       map[string]config.FileStorageConf
}

// Database returns an unconnected database for the named postgresql storage.
func (c *Catalog) Database(ctx context.Context, name string) (*Database, error) {
	sc, ok := c.postgresql[name]
	if !ok {
		return nil, xerrors.Errorf("postgresql storage %q not found", name)
	}

	url := sc.URL
	if sc.URLEnv != "" {
		if v, ok := os.LookupEnv(sc.URLEnv); ok && v != "" {
			url = v
		}
	}

	db, err := NewDatabase(ctx, url, sc.PoolSize, sc.ApplicationName, sc.SchemaName, sc.AllowUpsert)
	if err != nil {
		return nil, xerrors.Errorf("new database: %w", err)
	}
	return db, nil
}

// CSV returns the named file storage. The output directory is created if needed.
func (c *Catalog) CSV(name string) (*CSVStorage, error) {
	sc, ok := c.file[name]
	if !ok {
		return nil, xerrors.Errorf("file storage %q not found", name)
	}

	path, err := homedir.Expand(sc.Path)
	if err != nil {
		return nil, xerrors.Errorf("expand path: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, xerrors.Errorf("create output directory: %w", err)
	}

	return NewCSVStorageLatest(path, CSVStorageOptions{
		OmitHeader:  sc.OmitHeader,
		FilePattern: sc.FilePattern,
	})
}
