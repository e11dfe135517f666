// Package store opens inventory ledgers backed by MongoDB, PostgreSQL or memory.
package store

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/anusha9573/SmartRefridgerator/internal/inventory"
	"github.com/anusha9573/SmartRefridgerator/internal/logger"
)

// ErrUnsupportedScheme is returned for a URI whose scheme has no ledger.
var ErrUnsupportedScheme = errors.New("store: unsupported ledger URI scheme")

// Config selects and tunes a ledger.
type Config struct {
	URI            string        `yaml:"uri"`
	Database       string        `yaml:"database"`   // Mongo database; ignored by Postgres (taken from the URI)
	Collection     string        `yaml:"collection"` // Mongo collection or Postgres table
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	MinConns       int32         `yaml:"min_conns"`
	MaxConns       int32         `yaml:"max_conns"`
}

// DefaultConfig matches the stock deployment: database "fridge",
// collection "items" on a local mongod.
func DefaultConfig() Config {
	return Config{
		URI:            "mongodb://localhost:27017",
		Database:       "fridge",
		Collection:     "items",
		ConnectTimeout: 5 * time.Second,
		MinConns:       1,
		MaxConns:       4,
	}
}

// Open connects to the ledger named by cfg.URI and verifies it is reachable.
// It fails fast: no ledger is returned unless the first ping succeeds.
func Open(ctx context.Context, cfg Config) (inventory.Ledger, error) {
	scheme, err := Scheme(cfg.URI)
	if err != nil {
		return nil, err
	}
	if cfg.Collection == "" {
		cfg.Collection = "items"
	}

	switch scheme {
	case "mongodb", "mongodb+srv":
		if cfg.Database == "" {
			cfg.Database = "fridge"
		}
		return OpenMongo(ctx, cfg)
	case "postgres", "postgresql":
		return OpenPostgres(ctx, cfg)
	case "memory":
		logger.Warn("Store", "Using in-memory ledger: quantities are lost on exit")
		return inventory.NewMemoryLedger(), nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedScheme, "%q", scheme)
	}
}

// Scheme returns the lower-cased scheme of a ledger URI.
func Scheme(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", errors.Wrap(err, "store: parse ledger URI")
	}
	if u.Scheme == "" {
		return "", errors.Wrapf(ErrUnsupportedScheme, "missing scheme in %q", Redact(uri))
	}
	return strings.ToLower(u.Scheme), nil
}

// Redact hides the password of a URI for logging.
func Redact(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.User == nil {
		return uri
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
