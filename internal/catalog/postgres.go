package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Schema creates the trees table used by PostgresCatalog
const Schema = `
CREATE TABLE IF NOT EXISTS trees (
	id       INTEGER PRIMARY KEY,
	name     TEXT NOT NULL,
	price    NUMERIC(10, 2) NOT NULL CHECK (price >= 0),
	co2      TEXT NOT NULL DEFAULT '',
	lifespan TEXT NOT NULL DEFAULT ''
)`

// ConnectPostgres opens a connection pool and verifies it
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// PostgresCatalog reads products from the trees table
type PostgresCatalog struct {
	db *sql.DB
}

func NewPostgresCatalog(db *sql.DB) *PostgresCatalog {
	return &PostgresCatalog{db: db}
}

// Migrate creates the table and seeds it with products that are not there yet
func (c *PostgresCatalog) Migrate(ctx context.Context, seed []Product) error {
	if _, err := c.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create trees table: %w", err)
	}
	for _, p := range seed {
		_, err := c.db.ExecContext(ctx,
			`INSERT INTO trees (id, name, price, co2, lifespan)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (id) DO NOTHING`,
			p.ID, p.Name, p.Price.String(), p.CO2, p.Lifespan,
		)
		if err != nil {
			return fmt.Errorf("failed to seed tree %d: %w", p.ID, err)
		}
	}
	return nil
}

func (c *PostgresCatalog) List(ctx context.Context) ([]Product, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT id, name, price, co2, lifespan FROM trees ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query trees: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trees: %w", err)
	}
	return products, nil
}

func (c *PostgresCatalog) Get(ctx context.Context, id int) (Product, error) {
	row := c.db.QueryRowContext(ctx,
		"SELECT id, name, price, co2, lifespan FROM trees WHERE id = $1", id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	return p, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(s scanner) (Product, error) {
	var (
		p     Product
		price string
	)
	if err := s.Scan(&p.ID, &p.Name, &price, &p.CO2, &p.Lifespan); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Product{}, err
		}
		return Product{}, fmt.Errorf("failed to scan tree: %w", err)
	}
	parsed, err := decimal.NewFromString(price)
	if err != nil {
		return Product{}, fmt.Errorf("invalid price %q for tree %d: %w", price, p.ID, err)
	}
	p.Price = parsed
	return p, nil
}
