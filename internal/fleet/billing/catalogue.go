package billing

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	e "github.com/gartstein/fleet/internal/fleet/errors"
	"github.com/gartstein/fleet/internal/fleet/models"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type catalogueFile struct {
	Plans []catalogueEntry `yaml:"plans"`
}

type catalogueEntry struct {
	models.Plan `yaml:",inline"`
	Amount      string `yaml:"amount"`
}

// LoadCatalogue decodes and validates a YAML plan catalogue.
func LoadCatalogue(r io.Reader) ([]models.Plan, error) {
	var file catalogueFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to decode plan catalogue: %w", err)
	}

	plans := make([]models.Plan, 0, len(file.Plans))
	seen := make(map[string]bool, len(file.Plans))
	for i, entry := range file.Plans {
		plan := entry.Plan
		amount, err := decimal.NewFromString(entry.Amount)
		if err != nil {
			return nil, fmt.Errorf("%w: plan %d: amount %q", e.ErrInvalidInput, i, entry.Amount)
		}
		plan.Amount = amount
		plan.Currency = strings.ToUpper(plan.Currency)
		if err := validatePlan(&plan); err != nil {
			return nil, fmt.Errorf("plan %d: %w", i, err)
		}
		if seen[plan.Code] {
			return nil, fmt.Errorf("%w: duplicate plan code %q", e.ErrInvalidInput, plan.Code)
		}
		seen[plan.Code] = true
		plans = append(plans, plan)
	}
	return plans, nil
}

// LoadCatalogueFile reads a catalogue from path.
func LoadCatalogueFile(path string) ([]models.Plan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadCatalogue(f)
}

func validatePlan(p *models.Plan) error {
	verr := &e.ValidationError{}
	if p.Code == "" {
		verr.Add("code", "required")
	}
	if p.Name == "" {
		verr.Add("name", "required")
	}
	switch p.Tier {
	case models.TierTrial, models.TierBasic, models.TierProfessional, models.TierEnterprise:
	default:
		verr.Add("tier", fmt.Sprintf("unknown tier %q", p.Tier))
	}
	if p.Amount.IsNegative() {
		verr.Add("amount", "must not be negative")
	}
	if len(p.Currency) != 3 {
		verr.Add("currency", "must be a 3-letter code")
	}
	if p.Interval != models.IntervalMonth && p.Interval != models.IntervalYear {
		verr.Add("interval", "must be month or year")
	}
	return verr.OrNil()
}

type PlanStore interface {
	UpsertPlan(ctx context.Context, plan *models.Plan) error
}

// SeedPlans writes every plan of the catalogue, updating existing codes.
func SeedPlans(ctx context.Context, store PlanStore, plans []models.Plan) error {
	for i := range plans {
		if err := store.UpsertPlan(ctx, &plans[i]); err != nil {
			return fmt.Errorf("failed to upsert plan %s: %w", plans[i].Code, err)
		}
	}
	return nil
}
