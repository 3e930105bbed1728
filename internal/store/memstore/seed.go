package memstore

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/01moynul/netriver-marketplace/internal/models"
)

// Seed loads a JSON array of products, as written by the catalog export.
func (s *MemoryStore) Seed(r io.Reader) (int, error) {
	var products []models.Product
	if err := json.NewDecoder(r).Decode(&products); err != nil {
		return 0, fmt.Errorf("decode seed products: %w", err)
	}
	for i, p := range products {
		if p.Name == "" || p.SellerID <= 0 || !p.Price.IsPositive() || p.StockQuantity < 0 {
			return i, fmt.Errorf("seed product %d (%q) is incomplete", i, p.Name)
		}
		s.PutProduct(p)
	}
	return len(products), nil
}

// SeedFile is Seed for a file path.
func (s *MemoryStore) SeedFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return s.Seed(f)
}
