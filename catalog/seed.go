package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/giygas/cleaning-validation-api/catalog/entities"
	"github.com/giygas/cleaning-validation-api/logging"
	"github.com/giygas/cleaning-validation-api/scoring"
	"github.com/giygas/cleaning-validation-api/store"
	"github.com/giygas/cleaning-validation-api/validation"
)

// SeedFile is the layout of a YAML seed file. Absent sections are left alone.
type SeedFile struct {
	Products             []entities.Product             `yaml:"products"`
	Machines             []entities.Machine             `yaml:"machines"`
	DetergentIngredients []entities.DetergentIngredient `yaml:"detergentIngredients"`
	ScoringCriteria      *entities.ScoringCriteria      `yaml:"scoringCriteria"`
	SafetyFactors        *entities.SafetyFactorConfig   `yaml:"safetyFactors"`
	Settings             *entities.Settings             `yaml:"settings"`
}

// SeedStats contains seed operation counters.
type SeedStats struct {
	Inserts int
	Skipped int
}

// LoadSeedFile parses a YAML seed file.
func LoadSeedFile(path string) (SeedFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return SeedFile{}, fmt.Errorf("read seed file: %w", err)
	}

	var seed SeedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return SeedFile{}, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return seed, nil
}

// Seed writes every section of the seed file whose document does not exist
// yet. Running it again is a no-op, so it is safe at every startup. Seeded
// entities go through the same validation and id assignment as the API, and
// any invalid entry aborts the seed before anything is written.
func Seed(ctx context.Context, repo *Repository, path string) (SeedStats, error) {
	seed, err := LoadSeedFile(path)
	if err != nil {
		return SeedStats{}, err
	}

	repo.mu.Lock()
	defer repo.mu.Unlock()

	docs := []struct {
		key   string
		value any
		set   bool
	}{
		{store.KeyMachines, seed.Machines, seed.Machines != nil},
		{store.KeyProducts, seed.Products, seed.Products != nil},
		{store.KeyDetergentIngredients, seed.DetergentIngredients, seed.DetergentIngredients != nil},
		{store.KeyScoringCriteria, seed.ScoringCriteria, seed.ScoringCriteria != nil},
		{store.KeySafetyFactors, seed.SafetyFactors, seed.SafetyFactors != nil},
		{store.KeySettings, seed.Settings, seed.Settings != nil},
	}

	pending := make(map[string]bool, len(docs))
	var stats SeedStats
	for _, doc := range docs {
		if !doc.set {
			continue
		}

		_, err := repo.store.Get(ctx, doc.key)
		switch {
		case err == nil:
			stats.Skipped++
		case errors.Is(err, store.ErrNotFound):
			pending[doc.key] = true
		default:
			return SeedStats{}, fmt.Errorf("check seed document %s: %w", doc.key, err)
		}
	}

	if err := repo.prepareSeed(ctx, &seed, pending); err != nil {
		return SeedStats{}, fmt.Errorf("seed file %s: %w", path, err)
	}

	values := map[string]any{
		store.KeyMachines:             seed.Machines,
		store.KeyProducts:             seed.Products,
		store.KeyDetergentIngredients: seed.DetergentIngredients,
		store.KeyScoringCriteria:      seed.ScoringCriteria,
		store.KeySafetyFactors:        seed.SafetyFactors,
		store.KeySettings:             seed.Settings,
	}
	for _, doc := range docs {
		if !pending[doc.key] {
			continue
		}
		if _, err := repo.store.Put(ctx, doc.key, values[doc.key]); err != nil {
			return stats, fmt.Errorf("seed %s: %w", doc.key, err)
		}
		stats.Inserts++
		logging.Debug("Seeded document", "key", doc.key)
	}

	return stats, nil
}

// prepareSeed validates the pending sections of seed and fills in missing
// ids. Products are checked against the machines that will be current once
// the seed is applied.
func (r *Repository) prepareSeed(ctx context.Context, seed *SeedFile, pending map[string]bool) error {
	var machines []entities.Machine
	if pending[store.KeyMachines] {
		prepared := make([]entities.Machine, 0, len(seed.Machines))
		for _, m := range seed.Machines {
			if err := r.validator.ValidateMachine(&m); err != nil {
				return err
			}
			if m.ID <= 0 {
				m.ID = max(nextMachineID(seed.Machines), nextMachineID(prepared))
			}
			prepared = append(prepared, m)
		}
		seed.Machines, machines = prepared, prepared
	} else {
		stored, err := r.Machines(ctx)
		if err != nil {
			return err
		}
		machines = stored
	}

	var products []entities.Product
	if pending[store.KeyProducts] {
		prepared := make([]entities.Product, 0, len(seed.Products))
		for _, p := range seed.Products {
			if p.ID <= 0 {
				p.ID = max(nextProductID(seed.Products), nextProductID(prepared))
			}
			assignIngredientIDs(&p, append(slices.Clone(prepared), seed.Products...))
			if err := r.checkProduct(&p, prepared); err != nil {
				return fmt.Errorf("product %s: %w", p.ProductCode, err)
			}
			prepared = append(prepared, p)
		}
		seed.Products, products = prepared, prepared
	} else {
		stored, err := r.Products(ctx)
		if err != nil {
			return err
		}
		products = stored
	}

	if pending[store.KeyMachines] || pending[store.KeyProducts] {
		if err := r.validator.ValidateDataIntegrity(products, machines); err != nil {
			return fmt.Errorf("%w: %v", validation.ErrInvalid, err)
		}
	}

	if pending[store.KeyDetergentIngredients] {
		if err := validateDetergents(seed.DetergentIngredients); err != nil {
			return err
		}
		seed.DetergentIngredients = assignDetergentIDs(seed.DetergentIngredients)
	}
	if pending[store.KeyScoringCriteria] {
		if err := scoring.ValidateCriteria(*seed.ScoringCriteria); err != nil {
			return fmt.Errorf("%w: %v", validation.ErrInvalid, err)
		}
	}
	if pending[store.KeySafetyFactors] {
		if err := validateSafetyFactors(*seed.SafetyFactors); err != nil {
			return err
		}
	}
	if pending[store.KeySettings] {
		if err := validateSettings(*seed.Settings); err != nil {
			return err
		}
	}
	return nil
}
