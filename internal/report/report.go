// Package report queries a loaded warehouse database and renders analysis
// summaries. It expects the conventional clients/sales schema produced by the
// sample pipeline configs but degrades gracefully: sections whose tables are
// absent are skipped.
//
// Queries only interpolate identifiers that pass the storage allow-list;
// every user-supplied value is bound as a parameter.
package report

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"dwetl/internal/storage"
)

// Analyzer runs read-only analysis queries against a warehouse database.
type Analyzer struct {
	db *sql.DB
}

// Open connects to the SQLite database at path.
func Open(ctx context.Context, path string) (*Analyzer, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("report: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("report: ping: %w", err)
	}
	return &Analyzer{db: db}, nil
}

// Close releases the connection.
func (a *Analyzer) Close() error { return a.db.Close() }

// TableInfo is one table with its row count.
type TableInfo struct {
	Name string
	Rows int64
}

// Tables lists every table with its row count.
func (a *Analyzer) Tables(ctx context.Context) ([]TableInfo, error) {
	rows, err := a.db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("report: list tables: %w", err)
	}
	defer rows.Close()

	var out []TableInfo
	for rows.Next() {
		var t TableInfo
		if err := rows.Scan(&t.Name); err != nil {
			return nil, fmt.Errorf("report: scan table name: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("report: list tables: %w", err)
	}
	for i := range out {
		if !storage.ValidIdent(out[i].Name) {
			continue
		}
		err := a.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM "+out[i].Name).Scan(&out[i].Rows)
		if err != nil {
			return nil, fmt.Errorf("report: count %s: %w", out[i].Name, err)
		}
	}
	return out, nil
}

func (a *Analyzer) hasTable(ctx context.Context, name string) (bool, error) {
	var n int
	err := a.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&n)
	return n > 0, err
}

// AgeStats summarizes the client age distribution.
type AgeStats struct {
	Min, Max float64
	Mean     float64
	Total    int64
}

// ClientAgeStats computes age statistics over the clients table.
func (a *Analyzer) ClientAgeStats(ctx context.Context) (AgeStats, error) {
	var s AgeStats
	err := a.db.QueryRowContext(ctx, `
		SELECT COALESCE(MIN(age), 0), COALESCE(MAX(age), 0),
		       COALESCE(AVG(age), 0), COUNT(*)
		FROM clients`).Scan(&s.Min, &s.Max, &s.Mean, &s.Total)
	if err != nil {
		return AgeStats{}, fmt.Errorf("report: age stats: %w", err)
	}
	return s, nil
}

// Client is one row of the top-clients ranking.
type Client struct {
	ID         int64
	FirstName  string
	LastName   string
	Email      string
	City       string
	TotalSpend float64
	Status     string
}

// TopClients returns the highest-spending clients.
func (a *Analyzer) TopClients(ctx context.Context, limit int) ([]Client, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT client_id, first_name, last_name, email, city, total_spend, status
		FROM clients
		ORDER BY total_spend DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("report: top clients: %w", err)
	}
	defer rows.Close()

	var out []Client
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email,
			&c.City, &c.TotalSpend, &c.Status); err != nil {
			return nil, fmt.Errorf("report: scan client: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CityBreakdown is the per-city client census.
type CityBreakdown struct {
	City      string
	Clients   int64
	MeanSpend float64
}

// ClientsByCity counts clients per city with the mean spend.
func (a *Analyzer) ClientsByCity(ctx context.Context) ([]CityBreakdown, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT city, COUNT(*), AVG(total_spend)
		FROM clients
		GROUP BY city
		ORDER BY COUNT(*) DESC`)
	if err != nil {
		return nil, fmt.Errorf("report: clients by city: %w", err)
	}
	defer rows.Close()

	var out []CityBreakdown
	for rows.Next() {
		var b CityBreakdown
		if err := rows.Scan(&b.City, &b.Clients, &b.MeanSpend); err != nil {
			return nil, fmt.Errorf("report: scan city: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// StatusBreakdown is the per-status client census.
type StatusBreakdown struct {
	Status    string
	Clients   int64
	Revenue   float64
	MeanSpend float64
}

// ClientsByStatus splits the client base by status.
func (a *Analyzer) ClientsByStatus(ctx context.Context) ([]StatusBreakdown, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT status, COUNT(*), SUM(total_spend), AVG(total_spend)
		FROM clients
		GROUP BY status
		ORDER BY SUM(total_spend) DESC`)
	if err != nil {
		return nil, fmt.Errorf("report: clients by status: %w", err)
	}
	defer rows.Close()

	var out []StatusBreakdown
	for rows.Next() {
		var b StatusBreakdown
		if err := rows.Scan(&b.Status, &b.Clients, &b.Revenue, &b.MeanSpend); err != nil {
			return nil, fmt.Errorf("report: scan status: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// SalesSummary aggregates the sales table.
type SalesSummary struct {
	Sales         int64
	Revenue       float64
	MeanSale      float64
	TotalQuantity int64
}

// SummarizeSales computes the overall sales summary.
func (a *Analyzer) SummarizeSales(ctx context.Context) (SalesSummary, error) {
	var s SalesSummary
	err := a.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(amount), 0),
		       COALESCE(AVG(amount), 0), COALESCE(SUM(quantity), 0)
		FROM sales`).Scan(&s.Sales, &s.Revenue, &s.MeanSale, &s.TotalQuantity)
	if err != nil {
		return SalesSummary{}, fmt.Errorf("report: sales summary: %w", err)
	}
	return s, nil
}

// ProductRank is one row of the product ranking.
type ProductRank struct {
	Product   string
	Category  string
	Sales     int64
	Quantity  int64
	Revenue   float64
	MeanPrice float64
}

// TopProducts returns the highest-revenue products.
func (a *Analyzer) TopProducts(ctx context.Context, limit int) ([]ProductRank, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT product, category, COUNT(*), SUM(quantity), SUM(amount), AVG(unit_price)
		FROM sales
		GROUP BY product, category
		ORDER BY SUM(amount) DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("report: top products: %w", err)
	}
	defer rows.Close()

	var out []ProductRank
	for rows.Next() {
		var p ProductRank
		if err := rows.Scan(&p.Product, &p.Category, &p.Sales,
			&p.Quantity, &p.Revenue, &p.MeanPrice); err != nil {
			return nil, fmt.Errorf("report: scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CategoryBreakdown is the per-category sales census.
type CategoryBreakdown struct {
	Category string
	Sales    int64
	Revenue  float64
	MeanSale float64
}

// SalesByCategory splits revenue by product category.
func (a *Analyzer) SalesByCategory(ctx context.Context) ([]CategoryBreakdown, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT category, COUNT(*), SUM(amount), AVG(amount)
		FROM sales
		GROUP BY category
		ORDER BY SUM(amount) DESC`)
	if err != nil {
		return nil, fmt.Errorf("report: sales by category: %w", err)
	}
	defer rows.Close()

	var out []CategoryBreakdown
	for rows.Next() {
		var b CategoryBreakdown
		if err := rows.Scan(&b.Category, &b.Sales, &b.Revenue, &b.MeanSale); err != nil {
			return nil, fmt.Errorf("report: scan category: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// MonthlySales is revenue for one calendar month.
type MonthlySales struct {
	Month   string // "2024-03"
	Sales   int64
	Revenue float64
}

// SalesByMonth returns the most recent twelve months of sales, newest first.
func (a *Analyzer) SalesByMonth(ctx context.Context) ([]MonthlySales, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT strftime('%Y-%m', sale_date) AS month, COUNT(*), SUM(amount)
		FROM sales
		GROUP BY month
		ORDER BY month DESC
		LIMIT 12`)
	if err != nil {
		return nil, fmt.Errorf("report: monthly sales: %w", err)
	}
	defer rows.Close()

	var out []MonthlySales
	for rows.Next() {
		var m MonthlySales
		if err := rows.Scan(&m.Month, &m.Sales, &m.Revenue); err != nil {
			return nil, fmt.Errorf("report: scan month: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Purchase is one line of a client's purchase history.
type Purchase struct {
	SaleID    int64
	Product   string
	Category  string
	Quantity  int64
	Amount    float64
	SaleDate  string
	FirstName string
	LastName  string
	Email     string
}

// PurchaseHistory returns a client's purchases, newest first. The client id
// is bound, never interpolated.
func (a *Analyzer) PurchaseHistory(ctx context.Context, clientID int64) ([]Purchase, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT s.sale_id, s.product, s.category, s.quantity, s.amount, s.sale_date,
		       c.first_name, c.last_name, c.email
		FROM sales s
		JOIN clients c ON s.client_id = c.client_id
		WHERE c.client_id = ?
		ORDER BY s.sale_date DESC`, clientID)
	if err != nil {
		return nil, fmt.Errorf("report: purchase history: %w", err)
	}
	defer rows.Close()

	var out []Purchase
	for rows.Next() {
		var p Purchase
		if err := rows.Scan(&p.SaleID, &p.Product, &p.Category, &p.Quantity,
			&p.Amount, &p.SaleDate, &p.FirstName, &p.LastName, &p.Email); err != nil {
			return nil, fmt.Errorf("report: scan purchase: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ClientsWithoutPurchases lists clients with no sale on record.
func (a *Analyzer) ClientsWithoutPurchases(ctx context.Context) ([]Client, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT c.client_id, c.first_name, c.last_name, c.email, c.status
		FROM clients c
		LEFT JOIN sales s ON c.client_id = s.client_id
		WHERE s.sale_id IS NULL
		ORDER BY c.client_id`)
	if err != nil {
		return nil, fmt.Errorf("report: clients without purchases: %w", err)
	}
	defer rows.Close()

	var out []Client
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Status); err != nil {
			return nil, fmt.Errorf("report: scan client: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// FullReport renders the complete text report to w. Independent sections are
// gathered concurrently; rendering stays sequential so the output order is
// stable.
func (a *Analyzer) FullReport(ctx context.Context, w io.Writer) error {
	tables, err := a.Tables(ctx)
	if err != nil {
		return err
	}
	hasClients, err := a.hasTable(ctx, "clients")
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	hasSales, err := a.hasTable(ctx, "sales")
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}

	var (
		ages       AgeStats
		topClients []Client
		byStatus   []StatusBreakdown
		summary    SalesSummary
		products   []ProductRank
		categories []CategoryBreakdown
	)
	g, gctx := errgroup.WithContext(ctx)
	if hasClients {
		g.Go(func() error { var err error; ages, err = a.ClientAgeStats(gctx); return err })
		g.Go(func() error { var err error; topClients, err = a.TopClients(gctx, 5); return err })
		g.Go(func() error { var err error; byStatus, err = a.ClientsByStatus(gctx); return err })
	}
	if hasSales {
		g.Go(func() error { var err error; summary, err = a.SummarizeSales(gctx); return err })
		g.Go(func() error { var err error; products, err = a.TopProducts(gctx, 5); return err })
		g.Go(func() error { var err error; categories, err = a.SalesByCategory(gctx); return err })
	}
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Fprintf(w, "Warehouse report, %s\n\n", time.Now().Format("2006-01-02 15:04:05"))

	fmt.Fprintln(w, "Tables")
	for _, t := range tables {
		fmt.Fprintf(w, "  %-20s %d rows\n", t.Name, t.Rows)
	}

	if hasClients {
		fmt.Fprintln(w, "\nClients")
		fmt.Fprintf(w, "  total %d, mean age %.1f (min %.0f, max %.0f)\n",
			ages.Total, ages.Mean, ages.Min, ages.Max)
		fmt.Fprintln(w, "  top clients:")
		for _, c := range topClients {
			fmt.Fprintf(w, "    %s %s  %.2f (%s)\n", c.FirstName, c.LastName, c.TotalSpend, c.Status)
		}
		fmt.Fprintln(w, "  by status:")
		for _, s := range byStatus {
			fmt.Fprintf(w, "    %-10s %d clients, revenue %.2f\n", s.Status, s.Clients, s.Revenue)
		}
	}

	if hasSales {
		fmt.Fprintln(w, "\nSales")
		fmt.Fprintf(w, "  %d sales, revenue %.2f, mean %.2f\n",
			summary.Sales, summary.Revenue, summary.MeanSale)
		fmt.Fprintln(w, "  top products:")
		for _, p := range products {
			fmt.Fprintf(w, "    %-20s %.2f (%d sales)\n", p.Product, p.Revenue, p.Sales)
		}
		fmt.Fprintln(w, "  by category:")
		for _, c := range categories {
			fmt.Fprintf(w, "    %-15s %.2f (%d sales)\n", c.Category, c.Revenue, c.Sales)
		}
	}

	return nil
}
