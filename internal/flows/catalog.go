package flows

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"health-bot/internal/records"
)

// Product is one catalog entry.
type Product struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Price       int64  `yaml:"price"`
	ImgRef      string `yaml:"img_ref"`
}

type catalogFile struct {
	Products []Product `yaml:"products"`
}

// DefaultCatalog is used when no catalog file is configured.
func DefaultCatalog() []Product {
	out := make([]Product, 0, 4)
	for i := 1; i <= 4; i++ {
		out = append(out, Product{
			Title:       fmt.Sprintf("Product %d", i),
			Description: fmt.Sprintf("Product %d description", i),
			Price:       int64(i * 10),
			ImgRef:      fmt.Sprintf("food_img_%d.png", i),
		})
	}
	return out
}

// LoadCatalog reads products from a YAML file with a top-level
// "products" list. An empty path yields the default catalog.
func LoadCatalog(path string) ([]Product, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var cf catalogFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	for i, p := range cf.Products {
		if p.Title == "" {
			return nil, fmt.Errorf("catalog %s: product %d has no title", path, i)
		}
		if p.Price < 0 {
			return nil, fmt.Errorf("catalog %s: product %q has a negative price", path, p.Title)
		}
	}
	if len(cf.Products) == 0 {
		return nil, errors.New("catalog " + path + " lists no products")
	}
	return cf.Products, nil
}

// SeedProducts fills an empty products table and returns how many rows were
// inserted. A table that already has rows is left alone.
func SeedProducts(ctx context.Context, st Records, products []Product) (int, error) {
	n, err := st.RowCount(ctx, TableProducts)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}
	for i, p := range products {
		_, err := st.Insert(ctx, TableProducts, records.NewRecord(
			"title", p.Title,
			"price", p.Price,
			"description", p.Description,
			"img_ref", p.ImgRef,
		))
		if err != nil {
			return i, fmt.Errorf("seed %q: %w", p.Title, err)
		}
	}
	return len(products), nil
}
