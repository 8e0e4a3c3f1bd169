// Package sample generates CSV fixtures for exercising the pipeline. The
// generated clients file intentionally contains flawed rows so cleaning and
// validation have something to remove: malformed emails, out-of-range ages,
// padded city names, duplicates, and nulls. Sales data is clean by
// construction.
package sample

import (
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"
)

// Error-injection ratios for the clients file.
const (
	badEmailRatio  = 0.05
	badAgeRatio    = 0.10
	paddedCity     = 0.20
	duplicateRatio = 0.05
	nullRatio      = 0.02
)

var (
	firstNames = []string{"Jean", "Marie", "Pierre", "Sophie", "Luc", "Anne", "Paul",
		"Claire", "Marc", "Julie", "Thomas", "Emma", "Nicolas", "Laura", "David"}
	lastNames = []string{"Dupont", "Martin", "Bernard", "Dubois", "Thomas", "Robert",
		"Richard", "Petit", "Durand", "Leroy", "Moreau", "Simon", "Laurent", "Lefebvre"}
	cities = []string{"Paris", "Lyon", "Marseille", "Toulouse", "Nice", "Nantes",
		"Bordeaux", "Lille", "Rennes", "Strasbourg"}
	statuses = []string{"active", "inactive", "premium"}

	products = []string{"Laptop", "Phone", "Tablet", "Monitor", "Keyboard",
		"Mouse", "Headset", "Webcam", "Printer", "Hard drive"}
	basePrices = map[string]float64{
		"Laptop": 800, "Phone": 600, "Tablet": 400, "Monitor": 300,
		"Keyboard": 50, "Mouse": 30, "Headset": 80, "Webcam": 100,
		"Printer": 200, "Hard drive": 100,
	}
	categories = []string{"computing", "electronics", "accessories"}
)

// Generator produces deterministic fixtures from a seed.
type Generator struct {
	rng *rand.Rand
	now time.Time
}

// New builds a Generator. The same seed yields the same files.
func New(seed int64) *Generator {
	return &Generator{
		rng: rand.New(rand.NewSource(seed)),
		now: time.Now(),
	}
}

// ClientRows generates n client rows plus injected duplicates, as CSV records
// with a leading header.
func (g *Generator) ClientRows(n int) [][]string {
	records := [][]string{{
		"client_id", "first_name", "last_name", "email", "age",
		"city", "signup_date", "total_spend", "status",
	}}

	for i := 0; i < n; i++ {
		first := pick(g.rng, firstNames)
		last := pick(g.rng, lastNames)

		email := fmt.Sprintf("%s.%s@example.com", strings.ToLower(first), strings.ToLower(last))
		if g.rng.Float64() < badEmailRatio {
			// Drop the @ so the pattern rule has something to reject.
			email = fmt.Sprintf("%s%sexample.com", strings.ToLower(first), strings.ToLower(last))
		}

		age := 18 + g.rng.Intn(63)
		if g.rng.Float64() < badAgeRatio {
			age = 121 + g.rng.Intn(40)
		}

		city := pick(g.rng, cities)
		if g.rng.Float64() < paddedCity {
			city = "  " + city + "  "
		}
		if g.rng.Float64() < nullRatio {
			city = ""
		}
		if g.rng.Float64() < nullRatio {
			email = ""
		}

		signup := g.now.AddDate(0, 0, -g.rng.Intn(730)).Format("2006-01-02")
		spend := 50 + g.rng.Float64()*4950

		records = append(records, []string{
			strconv.Itoa(i + 1),
			first,
			last,
			email,
			strconv.Itoa(age),
			city,
			signup,
			strconv.FormatFloat(spend, 'f', 2, 64),
			pick(g.rng, statuses),
		})
	}

	// Re-append a sample of existing rows so deduplication has work to do.
	dups := int(float64(n) * duplicateRatio)
	for i := 0; i < dups; i++ {
		src := 1 + g.rng.Intn(n)
		records = append(records, records[src])
	}
	return records
}

// SalesRows generates n sales rows referencing client ids in [1, clientCount].
func (g *Generator) SalesRows(n, clientCount int) [][]string {
	records := [][]string{{
		"sale_id", "client_id", "product", "category",
		"quantity", "unit_price", "amount", "sale_date",
	}}

	for i := 0; i < n; i++ {
		product := pick(g.rng, products)
		price := basePrices[product] - 50 + g.rng.Float64()*150
		qty := 1 + g.rng.Intn(10)
		amount := price * float64(qty)
		saleDate := g.now.AddDate(0, 0, -g.rng.Intn(365)).Format("2006-01-02")

		records = append(records, []string{
			strconv.Itoa(i + 1),
			strconv.Itoa(1 + g.rng.Intn(clientCount)),
			product,
			pick(g.rng, categories),
			strconv.Itoa(qty),
			strconv.FormatFloat(price, 'f', 2, 64),
			strconv.FormatFloat(amount, 'f', 2, 64),
			saleDate,
		})
	}
	return records
}

// WriteCSV writes records to path.
func WriteCSV(path string, records [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("sample: create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(records); err != nil {
		return fmt.Errorf("sample: write %s: %w", path, err)
	}
	return nil
}

func pick(rng *rand.Rand, items []string) string {
	return items[rng.Intn(len(items))]
}
