// README: Shared Postgres fixture for DB-backed tests (skips when FLASHFOOD_TEST_DSN is unset).
package testdb

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"flashfood/internal/types"
)

const dsnEnv = "FLASHFOOD_TEST_DSN"

var tables = []string{
	"driver_stats_records",
	"driver_progress_orders",
	"driver_progress_stages",
	"driver_current_orders",
	"orders",
	"drivers",
	"customers",
	"restaurants",
	"address_book",
}

// Open connects, applies migrations and truncates every table.
func Open(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		t.Skip(dsnEnv + " not set; skipping DB-backed tests")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := applyMigration(ctx, db); err != nil {
		t.Fatalf("apply migration: %v", err)
	}
	if _, err := db.Exec(ctx, "TRUNCATE TABLE "+strings.Join(tables, ", ")+" CASCADE"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	return db
}

// Fixture describes one order with its restaurant, customer and addresses.
type Fixture struct {
	OrderID      types.ID
	RestaurantID types.ID
	CustomerID   types.ID
	Status       string
	Tracking     string
	Restaurant   types.Point
	Customer     types.Point
}

func SeedDriver(t *testing.T, db *pgxpool.Pool, id types.ID, at types.Point) {
	t.Helper()
	_, err := db.Exec(context.Background(), `
		INSERT INTO drivers (id, first_name, last_name, avatar_url, current_lat, current_lng)
		VALUES ($1, 'Test', 'Driver', 'https://cdn.flashfood.test/d.png', $2, $3)`,
		string(id), at.Lat, at.Lng)
	if err != nil {
		t.Fatalf("seed driver %s: %v", id, err)
	}
}

func SeedOrder(t *testing.T, db *pgxpool.Pool, f Fixture) {
	t.Helper()
	ctx := context.Background()
	if f.Status == "" {
		f.Status, f.Tracking = "PREPARING", "PREPARING"
	}
	restAddr := string(f.OrderID) + "_ra"
	custAddr := string(f.OrderID) + "_ca"
	stmts := []struct {
		sql  string
		args []any
	}{
		{`INSERT INTO address_book (id, street, city, lat, lng) VALUES ($1, '1 Le Loi', 'HCMC', $2, $3)`,
			[]any{restAddr, f.Restaurant.Lat, f.Restaurant.Lng}},
		{`INSERT INTO address_book (id, street, city, lat, lng) VALUES ($1, '9 Hai Ba Trung', 'HCMC', $2, $3)`,
			[]any{custAddr, f.Customer.Lat, f.Customer.Lng}},
		{`INSERT INTO restaurants (id, restaurant_name, contact_phone, avatar_url, address_id)
		  VALUES ($1, 'Pho 24', '+84900000000', 'https://cdn.flashfood.test/r.png', $2) ON CONFLICT DO NOTHING`,
			[]any{string(f.RestaurantID), restAddr}},
		{`INSERT INTO customers (id, first_name, last_name, address_id)
		  VALUES ($1, 'Lan', 'Nguyen', $2) ON CONFLICT DO NOTHING`,
			[]any{string(f.CustomerID), custAddr}},
		{`INSERT INTO orders (id, customer_id, restaurant_id, status, tracking_info, total_amount,
		     customer_location_id, restaurant_location_id, created_at, updated_at)
		  VALUES ($1, $2, $3, $4, $5, 120000, $6, $7, $8, $8)`,
			[]any{string(f.OrderID), string(f.CustomerID), string(f.RestaurantID), f.Status, f.Tracking,
				custAddr, restAddr, time.Now()}},
	}
	for _, st := range stmts {
		if _, err := db.Exec(ctx, st.sql, st.args...); err != nil {
			t.Fatalf("seed order %s: %v", f.OrderID, err)
		}
	}
}

func applyMigration(ctx context.Context, db *pgxpool.Pool) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}
	content, err := os.ReadFile(filepath.Join(root, "migrations", "0001_init.sql"))
	if err != nil {
		return err
	}
	for _, stmt := range SplitSQL(StripSQLComments(string(content))) {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for i := 0; i < 6; i++ {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", os.ErrNotExist
}

func StripSQLComments(input string) string {
	var b strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(input))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		b.WriteString(scanner.Text())
		b.WriteString("\n")
	}
	return b.String()
}

func SplitSQL(input string) []string {
	parts := strings.Split(input, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		stmt := strings.TrimSpace(p)
		if stmt == "" {
			continue
		}
		out = append(out, stmt)
	}
	return out
}
