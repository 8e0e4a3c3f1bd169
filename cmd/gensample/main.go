// Command gensample writes CSV fixtures for exercising the pipeline. The
// clients file carries deliberate flaws (bad emails, out-of-range ages,
// padded cities, duplicates, empty cells) so the cleaning and validation
// stages have work to do.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"dwetl/internal/sample"
)

func main() {
	outDir := flag.String("out", "data", "output directory")
	clients := flag.Int("clients", 1000, "number of client rows")
	sales := flag.Int("sales", 500, "number of sales rows")
	seed := flag.Int64("seed", 1, "random seed; the same seed reproduces the same files")
	flag.Parse()

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fatalf("create %s: %v", *outDir, err)
	}

	g := sample.New(*seed)

	clientsPath := filepath.Join(*outDir, "clients.csv")
	clientRows := g.ClientRows(*clients)
	if err := sample.WriteCSV(clientsPath, clientRows); err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("wrote %s (%d rows)\n", clientsPath, len(clientRows)-1)

	salesPath := filepath.Join(*outDir, "sales.csv")
	salesRows := g.SalesRows(*sales, *clients)
	if err := sample.WriteCSV(salesPath, salesRows); err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("wrote %s (%d rows)\n", salesPath, len(salesRows)-1)
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
