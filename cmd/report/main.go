// Command report prints analysis summaries over a warehouse database
// produced by the etl command.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"dwetl/internal/report"
)

func main() {
	dbPath := flag.String("db", "warehouse.db", "SQLite database path")
	clientID := flag.Int64("client", 0, "print the purchase history for one client id and exit")
	flag.Parse()

	_ = godotenv.Load()

	ctx := context.Background()
	a, err := report.Open(ctx, *dbPath)
	if err != nil {
		fatalf("%v", err)
	}
	defer a.Close()

	if *clientID > 0 {
		history, err := a.PurchaseHistory(ctx, *clientID)
		if err != nil {
			fatalf("%v", err)
		}
		if len(history) == 0 {
			fmt.Printf("no purchases for client %d\n", *clientID)
			return
		}
		fmt.Printf("purchases for %s %s <%s>:\n",
			history[0].FirstName, history[0].LastName, history[0].Email)
		for _, p := range history {
			fmt.Printf("  %s  %-20s %2d x %8.2f  (%s)\n",
				p.SaleDate, p.Product, p.Quantity, p.Amount, p.Category)
		}
		return
	}

	if err := a.FullReport(ctx, os.Stdout); err != nil {
		fatalf("%v", err)
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
