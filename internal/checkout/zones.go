package checkout

import (
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Zone is a delivery area with a flat shipping fee in minor units.
type Zone struct {
	Code string `yaml:"code" json:"code"`
	Name string `yaml:"name" json:"name"`
	Fee  int64  `yaml:"fee" json:"fee"`
}

type Zones struct {
	byCode map[string]Zone
}

type zonesFile struct {
	Zones []Zone `yaml:"zones"`
}

// DefaultZones is used when no zones file is configured.
func DefaultZones() *Zones {
	z, _ := NewZones([]Zone{
		{Code: "inside_dhaka", Name: "Inside Dhaka", Fee: 6000},
		{Code: "dhaka_suburbs", Name: "Dhaka Suburbs", Fee: 10000},
		{Code: "outside_dhaka", Name: "Outside Dhaka", Fee: 12000},
	})
	return z
}

func NewZones(list []Zone) (*Zones, error) {
	z := &Zones{byCode: make(map[string]Zone, len(list))}
	for _, zone := range list {
		code := strings.TrimSpace(zone.Code)
		if code == "" {
			return nil, errors.New("zone without code")
		}
		if zone.Fee < 0 {
			return nil, errors.Errorf("zone %s: negative fee %d", code, zone.Fee)
		}
		if _, dup := z.byCode[code]; dup {
			return nil, errors.Errorf("zone %s defined twice", code)
		}
		zone.Code = code
		z.byCode[code] = zone
	}
	return z, nil
}

func ParseZones(b []byte) (*Zones, error) {
	var f zonesFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, errors.Wrap(err, "decode zones")
	}
	if len(f.Zones) == 0 {
		return nil, errors.New("zones file lists no zones")
	}
	return NewZones(f.Zones)
}

// LoadZones reads the delivery fee table; an empty path yields DefaultZones.
func LoadZones(path string) (*Zones, error) {
	if path == "" {
		return DefaultZones(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read zones file %s", path)
	}
	return ParseZones(b)
}

func (z *Zones) Fee(code string) (int64, bool) {
	zone, ok := z.byCode[code]
	return zone.Fee, ok
}

func (z *Zones) List() []Zone {
	out := make([]Zone, 0, len(z.byCode))
	for _, zone := range z.byCode {
		out = append(out, zone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
