package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/subidb/DMS-Dashboard/internal/domain"
)

type party struct {
	client string
	vendor string
}

func main() {
	rng := rand.New(rand.NewSource(42))
	baseDir := findTestdataDir()

	// Documents span 2024; contracts run to dates around the end of 2024.
	start := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)

	parties := []party{
		{"Acme Corp", "Globex Services"},
		{"Initech", "Umbrella Logistics"},
		{"Hooli", "Stark Industries"},
		{"Wayne Enterprises", "Wonka Supplies"},
		{"Soylent Co", "Tyrell Systems"},
	}

	seq := 0
	nextID := func() string {
		seq++
		return fmt.Sprintf("DOC-%04d", seq)
	}

	var docs []domain.Document

	for pi, p := range parties {
		contractStart := start.AddDate(0, 0, rng.Intn(20))
		contractEnd := contractStart.AddDate(0, 10+rng.Intn(4), 0)
		contract := domain.Document{
			ID:         nextID(),
			Title:      fmt.Sprintf("Master Service Agreement - %s", p.client),
			Category:   domain.CategoryServiceAgreement,
			Client:     p.client,
			Vendor:     p.vendor,
			Amount:     roundAmount(50000 + rng.Float64()*150000),
			Currency:   "USD",
			Status:     domain.StatusApproved,
			CreatedAt:  contractStart,
			DueDate:    &contractEnd,
			Confidence: 0.95,
			Processed:  true,
		}
		docs = append(docs, contract)

		poCount := 2 + rng.Intn(3)
		for i := 1; i <= poCount; i++ {
			poNumber := fmt.Sprintf("PO-2024-%d%02d", pi+1, i)
			poDate := contractStart.AddDate(0, 0, 10+rng.Intn(200))
			po := domain.Document{
				ID:         nextID(),
				Title:      poNumber + " " + p.vendor,
				Category:   []domain.Category{domain.CategoryClientPO, domain.CategoryVendorPO}[rng.Intn(2)],
				Client:     p.client,
				Vendor:     p.vendor,
				Amount:     roundAmount(5000 + rng.Float64()*45000),
				Currency:   "USD",
				Status:     domain.StatusApproved,
				CreatedAt:  poDate,
				Confidence: 0.9,
				Processed:  true,
				PONumber:   poNumber,
			}
			docs = append(docs, po)

			// Spend somewhere between 30% and 110% of the PO.
			budget := po.Amount * (0.3 + rng.Float64()*0.8)
			invoiced := 0.0
			for j := 1; invoiced < budget; j++ {
				amount := roundAmount(math.Min(budget-invoiced, po.Amount*(0.15+rng.Float64()*0.35)))
				if amount < 1 {
					break
				}
				invoiced += amount
				inv := domain.Document{
					ID:            nextID(),
					Title:         fmt.Sprintf("Invoice %d for %s", j, poNumber),
					Category:      domain.CategoryClientInvoice,
					Client:        p.client,
					Vendor:        p.vendor,
					Amount:        amount,
					Currency:      "USD",
					Status:        domain.StatusPendingReview,
					CreatedAt:     poDate.AddDate(0, 0, 5+rng.Intn(60)),
					Confidence:    0.85,
					Processed:     true,
					InvoiceNumber: fmt.Sprintf("INV-%d%02d-%02d", pi+1, i, j),
				}
				// Vary how the invoice refers to its PO.
				switch rng.Intn(3) {
				case 0:
					inv.PONumber = poNumber
				case 1:
					inv.Title = fmt.Sprintf("Invoice %s", inv.InvoiceNumber)
				}
				docs = append(docs, inv)
			}
		}
	}

	// Invoices nobody can match.
	for i := 0; i < 3; i++ {
		docs = append(docs, domain.Document{
			ID:         nextID(),
			Title:      fmt.Sprintf("Scanned invoice %d", i+1),
			Category:   domain.CategoryVendorInvoice,
			Client:     "Unknown Client",
			Amount:     roundAmount(100 + rng.Float64()*900),
			Currency:   "EUR",
			Status:     domain.StatusFlagged,
			CreatedAt:  start.AddDate(0, 0, rng.Intn(300)),
			Confidence: 0.4,
		})
	}

	writeJSONFile(filepath.Join(baseDir, "documents.json"), docs)
	fmt.Printf("Generated %d documents -> documents.json\n", len(docs))

	writeUploadCSV(rng, filepath.Join(baseDir, "upload_batch.csv"), parties[0])

	fmt.Println("Test data generation complete.")
}

// writeUploadCSV writes a small batch for the ingest endpoint, including one
// row that duplicates a seeded document.
func writeUploadCSV(rng *rand.Rand, path string, p party) {
	f, err := os.Create(path)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	w.Write([]string{"title", "category", "client", "vendor", "amount", "currency", "created_at", "po_number", "invoice_number", "file_path"})

	rows := [][]string{
		{"PO-2024-901 " + p.vendor, string(domain.CategoryClientPO), p.client, p.vendor,
			strconv.FormatFloat(roundAmount(10000+rng.Float64()*5000), 'f', 2, 64), "USD", "2024-09-01", "PO-2024-901", "", "uploads/po_2024_901.pdf"},
		{"Invoice for PO-2024-901", string(domain.CategoryClientInvoice), p.client, p.vendor,
			"8500.00", "$", "2024-09-15", "", "INV-901-01", "uploads/inv_901_01.pdf"},
		{"Invoice 1 for PO-2024-101", string(domain.CategoryClientInvoice), p.client, p.vendor,
			"100.00", "USD", "2024-03-01", "", "INV-101-01", "uploads/inv_101_01.pdf"},
	}
	for _, r := range rows {
		w.Write(r)
	}
	fmt.Printf("Generated %d upload rows -> upload_batch.csv\n", len(rows))
}

func roundAmount(v float64) float64 {
	return math.Round(v*100) / 100
}

func writeJSONFile(path string, v any) {
	f, err := os.Create(path)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		panic(err)
	}
}

func findTestdataDir() string {
	// Look for the testdata directory relative to common locations.
	candidates := []string{
		"testdata",
		"../../testdata",
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			return c
		}
	}
	// Fallback.
	return "testdata"
}
