package checkout

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadZonesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zones.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
zones:
  - code: chattogram
    name: Chattogram City
    fee: 8000
  - code: pickup
    name: Store pickup
    fee: 0
`), 0o600))

	z, err := LoadZones(path)
	require.NoError(t, err)

	fee, ok := z.Fee("chattogram")
	assert.True(t, ok)
	assert.Equal(t, int64(8000), fee)

	fee, ok = z.Fee("pickup")
	assert.True(t, ok)
	assert.Zero(t, fee)

	_, ok = z.Fee("inside_dhaka")
	assert.False(t, ok)
	assert.Len(t, z.List(), 2)
}

func TestParseZonesRejectsBadTables(t *testing.T) {
	for name, doc := range map[string]string{
		"empty":     "zones: []",
		"duplicate": "zones: [{code: a, fee: 1}, {code: a, fee: 2}]",
		"negative":  "zones: [{code: a, fee: -1}]",
		"no code":   "zones: [{name: x, fee: 1}]",
		"not yaml":  "zones: [",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseZones([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestDefaultZonesWhenUnset(t *testing.T) {
	z, err := LoadZones("")
	require.NoError(t, err)
	_, ok := z.Fee("inside_dhaka")
	assert.True(t, ok)
}

func TestParseCatalog(t *testing.T) {
	vs, err := ParseCatalog([]byte(`
variants:
  - ref: tee-m
    product_id: tee
    name: Tee M
    price: 1000
    stock: 10
    low_stock_threshold: 2
  - ref: jacket-l
    price: 2000
    stock: 0
    pre_order: true
`))
	require.NoError(t, err)
	require.Len(t, vs, 2)
	assert.Equal(t, "tee", vs[0].ProductID)
	assert.Equal(t, "jacket-l", vs[1].ProductID)
	assert.True(t, vs[1].PreOrder)

	_, err = ParseCatalog([]byte("variants: [{ref: a}, {ref: a}]"))
	assert.Error(t, err)
}
