// Command seed-db loads a product catalog into the database and makes sure
// the default administrator account exists.
package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/cristalhq/aconfig"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/odin-pos/internal/domain/auth"
	"github.com/xenking/odin-pos/internal/domain/product"
	"github.com/xenking/odin-pos/internal/storage/postgres"
)

type config struct {
	DatabaseURL   string `usage:"PostgreSQL connection URL (or DATABASE_URL env)" flag:"database-url"`
	ProductsFile  string `default:"db/seed/products.json" usage:"Products JSON file, optionally .gz" flag:"products-file"`
	AdminEmail    string `default:"admin@odin.com" usage:"Default administrator email" flag:"admin-email"`
	AdminPassword string `default:"admin123" usage:"Default administrator password" flag:"admin-password"`
	Workers       int    `default:"8" usage:"Concurrent product upserts"`
}

// productSeed is one catalog entry. A missing id is derived from the code so
// repeated runs update the same row.
type productSeed struct {
	ID          string          `json:"id"`
	Code        string          `json:"code"`
	Barcode     string          `json:"barcode"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	TaxPercent  decimal.Decimal `json:"taxPercent"`
	Stock       int             `json:"stock"`
	IsActive    *bool           `json:"isActive"`
	ImageURL    string          `json:"imageUrl"`
}

var seedNamespace = uuid.MustParse("6f1c7a52-3a0e-4c55-9a53-0d7b6d0f2c11")

func (s productSeed) product() product.Product {
	id := s.ID
	if id == "" {
		key := s.Code
		if key == "" {
			key = s.Name
		}
		id = uuid.NewSHA1(seedNamespace, []byte(key)).String()
	}
	active := true
	if s.IsActive != nil {
		active = *s.IsActive
	}
	return product.Product{
		ID:          id,
		Code:        s.Code,
		Barcode:     s.Barcode,
		Name:        s.Name,
		Description: s.Description,
		Price:       s.Price,
		TaxPercent:  s.TaxPercent,
		Stock:       s.Stock,
		Active:      active,
		ImageURL:    s.ImageURL,
	}
}

func main() {
	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	var cfg config
	if err := aconfig.LoaderFor(&cfg, aconfig.Config{EnvPrefix: "POS_SEED"}).Load(); err != nil {
		lg.Fatal("Load config", zap.Error(err))
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.DatabaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, cfg); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, cfg config) error {
	lg.Info("Running migrations")
	if err := postgres.RunMigrations(ctx, cfg.DatabaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	products, err := readProducts(cfg.ProductsFile)
	if err != nil {
		return errors.Wrap(err, "read products")
	}
	if err := seedProducts(ctx, lg, postgres.NewProductRepository(pool), products, cfg.Workers); err != nil {
		return errors.Wrap(err, "seed products")
	}

	users := auth.NewService(postgres.NewUserRepository(pool))
	_, created, err := users.EnsureUser(ctx, auth.CreateUserRequest{
		Name:     "Administrador",
		Email:    cfg.AdminEmail,
		Password: cfg.AdminPassword,
		Role:     string(auth.RoleAdmin),
	})
	if err != nil {
		return errors.Wrap(err, "seed admin")
	}
	lg.Info("Administrator account", zap.String("email", cfg.AdminEmail), zap.Bool("created", created))
	return nil
}

// readProducts decodes a JSON array of products, gunzipping files ending in
// .gz.
func readProducts(path string) ([]product.Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		zr, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "gzip")
		}
		defer func() { _ = zr.Close() }()
		r = zr
	}

	var seeds []productSeed
	if err := json.NewDecoder(r).Decode(&seeds); err != nil {
		return nil, errors.Wrap(err, "decode")
	}

	out := make([]product.Product, len(seeds))
	for i, s := range seeds {
		p := s.product()
		if err := p.Validate(); err != nil {
			return nil, errors.Wrapf(err, "product %d (%s)", i, p.Code)
		}
		out[i] = p
	}
	return out, nil
}

func seedProducts(ctx context.Context, lg *zap.Logger, repo product.Repository, products []product.Product, workers int) error {
	lg.Info("Upserting products", zap.Int("count", len(products)))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for _, p := range products {
		g.Go(func() error {
			err := repo.Update(ctx, &p)
			if errors.Is(err, product.ErrNotFound) {
				err = repo.Create(ctx, &p)
			}
			if err != nil {
				return errors.Wrapf(err, "upsert %s", p.Code)
			}
			lg.Debug("Upserted product", zap.String("id", p.ID), zap.String("name", p.Name))
			return nil
		})
	}
	return g.Wait()
}
