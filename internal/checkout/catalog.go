package checkout

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
)

type catalogFile struct {
	Variants []struct {
		Ref               string `yaml:"ref"`
		ProductID         string `yaml:"product_id"`
		Name              string `yaml:"name"`
		Price             int64  `yaml:"price"`
		Stock             int    `yaml:"stock"`
		LowStockThreshold int    `yaml:"low_stock_threshold"`
		PreOrder          bool   `yaml:"pre_order"`
	} `yaml:"variants"`
}

// LoadCatalog reads a variant seed file. An empty path yields no variants.
func LoadCatalog(path string) ([]orders.Variant, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read catalog file %s", path)
	}
	return ParseCatalog(b)
}

func ParseCatalog(b []byte) ([]orders.Variant, error) {
	var f catalogFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, errors.Wrap(err, "decode catalog")
	}
	out := make([]orders.Variant, 0, len(f.Variants))
	seen := make(map[string]bool, len(f.Variants))
	for _, v := range f.Variants {
		ref := strings.TrimSpace(v.Ref)
		switch {
		case ref == "":
			return nil, errors.New("catalog variant without ref")
		case seen[ref]:
			return nil, errors.Errorf("catalog variant %s listed twice", ref)
		case v.Price < 0 || v.Stock < 0:
			return nil, errors.Errorf("catalog variant %s: negative price or stock", ref)
		}
		seen[ref] = true
		productID := v.ProductID
		if productID == "" {
			productID = ref
		}
		out = append(out, orders.Variant{
			Ref:               ref,
			ProductID:         productID,
			Name:              v.Name,
			Price:             v.Price,
			Stock:             v.Stock,
			LowStockThreshold: v.LowStockThreshold,
			PreOrder:          v.PreOrder,
		})
	}
	return out, nil
}
