package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"ajo_ledger/internal/domain/participation"
)

// tiersFile mirrors the YAML layout:
//
//	tiers:
//	  - name: 20k
//	    monthly_amount: "20000"
//	    total_payout: "200000"
//	    fine_amount: "1000"
type tiersFile struct {
	Tiers []tierEntry `yaml:"tiers"`
}

type tierEntry struct {
	Name          string `yaml:"name"`
	MonthlyAmount string `yaml:"monthly_amount"`
	TotalPayout   string `yaml:"total_payout"`
	FineAmount    string `yaml:"fine_amount"`
}

// LoadTiers reads the tier settings file used to seed the contribution_tiers table.
func LoadTiers(path string) ([]participation.Tier, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tiers file %s: %w", path, err)
	}
	return ParseTiers(raw)
}

// ParseTiers decodes and validates tier settings.
func ParseTiers(raw []byte) ([]participation.Tier, error) {
	var f tiersFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode tiers: %w", err)
	}
	if len(f.Tiers) == 0 {
		return nil, fmt.Errorf("no tiers defined")
	}

	var err error
	seen := make(map[string]bool, len(f.Tiers))
	tiers := make([]participation.Tier, 0, len(f.Tiers))
	for i, e := range f.Tiers {
		t := participation.Tier{Name: e.Name}
		if t.MonthlyAmount, err = decimal.NewFromString(e.MonthlyAmount); err != nil {
			return nil, fmt.Errorf("tier %d (%s): monthly_amount: %w", i, e.Name, err)
		}
		if t.TotalPayout, err = decimal.NewFromString(e.TotalPayout); err != nil {
			return nil, fmt.Errorf("tier %d (%s): total_payout: %w", i, e.Name, err)
		}
		if t.FineAmount, err = decimal.NewFromString(e.FineAmount); err != nil {
			return nil, fmt.Errorf("tier %d (%s): fine_amount: %w", i, e.Name, err)
		}
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if seen[t.Name] {
			return nil, fmt.Errorf("duplicate tier %q", t.Name)
		}
		seen[t.Name] = true
		tiers = append(tiers, t)
	}
	return tiers, nil
}
