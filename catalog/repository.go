// Package catalog reads and writes the catalog documents (products, machines
// and configuration) through the versioned store and assembles engine snapshots.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/giygas/cleaning-validation-api/catalog/entities"
	"github.com/giygas/cleaning-validation-api/engine"
	"github.com/giygas/cleaning-validation-api/interfaces"
	"github.com/giygas/cleaning-validation-api/scoring"
	"github.com/giygas/cleaning-validation-api/store"
	"github.com/giygas/cleaning-validation-api/validation"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrMachineInUse = errors.New("machine is used by products")
)

// Compile-time check to ensure Repository implements SnapshotSource
var _ interfaces.SnapshotSource = (*Repository)(nil)

// Repository is the typed access layer over the document store. Mutations are
// read-modify-write on whole documents and are serialized by mu.
type Repository struct {
	store     *store.Store
	validator interfaces.DataValidator
	mu        sync.Mutex
}

// NewRepository creates a repository on top of s.
func NewRepository(s *store.Store) *Repository {
	return &Repository{
		store:     s,
		validator: validation.NewDataValidator(),
	}
}

// load decodes the latest version of key into v. A missing document leaves v
// untouched and returns false.
func (r *Repository) load(ctx context.Context, key string, v any) (bool, error) {
	e, err := r.store.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	if err := e.Decode(v); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Repository) Products(ctx context.Context) ([]entities.Product, error) {
	products := []entities.Product{}
	if _, err := r.load(ctx, store.KeyProducts, &products); err != nil {
		return nil, err
	}
	return products, nil
}

func (r *Repository) Machines(ctx context.Context) ([]entities.Machine, error) {
	machines := []entities.Machine{}
	if _, err := r.load(ctx, store.KeyMachines, &machines); err != nil {
		return nil, err
	}
	return machines, nil
}

func (r *Repository) Detergents(ctx context.Context) ([]entities.DetergentIngredient, error) {
	detergents := []entities.DetergentIngredient{}
	if _, err := r.load(ctx, store.KeyDetergentIngredients, &detergents); err != nil {
		return nil, err
	}
	return detergents, nil
}

// ScoringCriteria returns the stored criteria, or the built-in tables when none are stored.
func (r *Repository) ScoringCriteria(ctx context.Context) (entities.ScoringCriteria, error) {
	var criteria entities.ScoringCriteria
	found, err := r.load(ctx, store.KeyScoringCriteria, &criteria)
	if err != nil {
		return entities.ScoringCriteria{}, err
	}
	if !found {
		return scoring.DefaultCriteria(), nil
	}
	return criteria, nil
}

// SafetyFactors returns the stored safety factor table, or the built-in one.
func (r *Repository) SafetyFactors(ctx context.Context) (entities.SafetyFactorConfig, error) {
	var cfg entities.SafetyFactorConfig
	found, err := r.load(ctx, store.KeySafetyFactors, &cfg)
	if err != nil {
		return entities.SafetyFactorConfig{}, err
	}
	if !found {
		return engine.DefaultSafetyFactors(), nil
	}
	return cfg, nil
}

func (r *Repository) Settings(ctx context.Context) (entities.Settings, error) {
	var settings entities.Settings
	if _, err := r.load(ctx, store.KeySettings, &settings); err != nil {
		return entities.Settings{}, err
	}
	return settings, nil
}

// Snapshot assembles everything the engine needs from the latest documents.
func (r *Repository) Snapshot(ctx context.Context) (engine.Snapshot, error) {
	var (
		s   engine.Snapshot
		err error
	)
	if s.Products, err = r.Products(ctx); err != nil {
		return engine.Snapshot{}, err
	}
	if s.Machines, err = r.Machines(ctx); err != nil {
		return engine.Snapshot{}, err
	}
	if s.Criteria, err = r.ScoringCriteria(ctx); err != nil {
		return engine.Snapshot{}, err
	}
	if s.SafetyFactors, err = r.SafetyFactors(ctx); err != nil {
		return engine.Snapshot{}, err
	}
	if s.Settings, err = r.Settings(ctx); err != nil {
		return engine.Snapshot{}, err
	}
	return s, nil
}

// CreateProduct validates p, assigns ids to it and its ingredients and stores it.
func (r *Repository) CreateProduct(ctx context.Context, p entities.Product) (entities.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	products, err := r.Products(ctx)
	if err != nil {
		return entities.Product{}, err
	}

	p.ID = nextProductID(products)
	assignIngredientIDs(&p, products)
	if err := r.checkProduct(&p, products); err != nil {
		return entities.Product{}, err
	}

	products = append(products, p)
	if _, err := r.store.Put(ctx, store.KeyProducts, products); err != nil {
		return entities.Product{}, err
	}
	return p, nil
}

// UpdateProduct replaces the product with the given id.
func (r *Repository) UpdateProduct(ctx context.Context, id int, p entities.Product) (entities.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	products, err := r.Products(ctx)
	if err != nil {
		return entities.Product{}, err
	}
	i := slices.IndexFunc(products, func(x entities.Product) bool { return x.ID == id })
	if i < 0 {
		return entities.Product{}, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}

	p.ID = id
	assignIngredientIDs(&p, products)
	if err := r.checkProduct(&p, products); err != nil {
		return entities.Product{}, err
	}

	products[i] = p
	if _, err := r.store.Put(ctx, store.KeyProducts, products); err != nil {
		return entities.Product{}, err
	}
	return p, nil
}

func (r *Repository) DeleteProduct(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	products, err := r.Products(ctx)
	if err != nil {
		return err
	}
	i := slices.IndexFunc(products, func(x entities.Product) bool { return x.ID == id })
	if i < 0 {
		return fmt.Errorf("product %d: %w", id, ErrNotFound)
	}

	products = slices.Delete(products, i, i+1)
	_, err = r.store.Put(ctx, store.KeyProducts, products)
	return err
}

// DeleteIngredient removes one active ingredient from a product. A product
// always keeps at least one ingredient.
func (r *Repository) DeleteIngredient(ctx context.Context, productID, ingredientID int) (entities.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	products, err := r.Products(ctx)
	if err != nil {
		return entities.Product{}, err
	}
	i := slices.IndexFunc(products, func(x entities.Product) bool { return x.ID == productID })
	if i < 0 {
		return entities.Product{}, fmt.Errorf("product %d: %w", productID, ErrNotFound)
	}

	p := products[i]
	j := slices.IndexFunc(p.ActiveIngredients, func(x entities.Ingredient) bool { return x.ID == ingredientID })
	if j < 0 {
		return entities.Product{}, fmt.Errorf("ingredient %d of product %d: %w", ingredientID, productID, ErrNotFound)
	}
	if len(p.ActiveIngredients) == 1 {
		return entities.Product{}, validation.ErrLastIngredient
	}

	p.ActiveIngredients = slices.Delete(slices.Clone(p.ActiveIngredients), j, j+1)
	products[i] = p
	if _, err := r.store.Put(ctx, store.KeyProducts, products); err != nil {
		return entities.Product{}, err
	}
	return p, nil
}

func (r *Repository) CreateMachine(ctx context.Context, m entities.Machine) (entities.Machine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.validator.ValidateMachine(&m); err != nil {
		return entities.Machine{}, err
	}

	machines, err := r.Machines(ctx)
	if err != nil {
		return entities.Machine{}, err
	}
	m.ID = nextMachineID(machines)

	machines = append(machines, m)
	if _, err := r.store.Put(ctx, store.KeyMachines, machines); err != nil {
		return entities.Machine{}, err
	}
	return m, nil
}

func (r *Repository) UpdateMachine(ctx context.Context, id int, m entities.Machine) (entities.Machine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.validator.ValidateMachine(&m); err != nil {
		return entities.Machine{}, err
	}

	machines, err := r.Machines(ctx)
	if err != nil {
		return entities.Machine{}, err
	}
	i := slices.IndexFunc(machines, func(x entities.Machine) bool { return x.ID == id })
	if i < 0 {
		return entities.Machine{}, fmt.Errorf("machine %d: %w", id, ErrNotFound)
	}

	m.ID = id
	machines[i] = m
	if _, err := r.store.Put(ctx, store.KeyMachines, machines); err != nil {
		return entities.Machine{}, err
	}
	return m, nil
}

// DeleteMachine removes a machine that no product references.
func (r *Repository) DeleteMachine(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	machines, err := r.Machines(ctx)
	if err != nil {
		return err
	}
	i := slices.IndexFunc(machines, func(x entities.Machine) bool { return x.ID == id })
	if i < 0 {
		return fmt.Errorf("machine %d: %w", id, ErrNotFound)
	}

	products, err := r.Products(ctx)
	if err != nil {
		return err
	}
	var users []string
	for _, p := range products {
		if slices.Contains(p.MachineIDs, id) {
			users = append(users, p.ProductCode)
		}
	}
	if len(users) > 0 {
		return fmt.Errorf("machine %d used by %v: %w", id, users, ErrMachineInUse)
	}

	machines = slices.Delete(machines, i, i+1)
	_, err = r.store.Put(ctx, store.KeyMachines, machines)
	return err
}

// ImportStats counts the outcome of a bulk machine import.
type ImportStats struct {
	Inserts int      `json:"inserts"`
	Updates int      `json:"updates"`
	Skipped []string `json:"skipped,omitempty"`
}

// ImportMachines merges machines into the catalog. A machine whose machine
// number already exists updates that machine; others get a new id. Invalid
// machines are skipped and reported.
func (r *Repository) ImportMachines(ctx context.Context, imported []entities.Machine) (ImportStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	machines, err := r.Machines(ctx)
	if err != nil {
		return ImportStats{}, err
	}

	var stats ImportStats
	for _, m := range imported {
		if err := r.validator.ValidateMachine(&m); err != nil {
			stats.Skipped = append(stats.Skipped, fmt.Sprintf("%s: %v", m.MachineNumber, err))
			continue
		}

		i := -1
		if m.MachineNumber != "" {
			i = slices.IndexFunc(machines, func(x entities.Machine) bool { return x.MachineNumber == m.MachineNumber })
		}
		if i >= 0 {
			m.ID = machines[i].ID
			machines[i] = m
			stats.Updates++
			continue
		}
		m.ID = nextMachineID(machines)
		machines = append(machines, m)
		stats.Inserts++
	}

	if stats.Inserts+stats.Updates == 0 {
		return stats, nil
	}
	if _, err := r.store.Put(ctx, store.KeyMachines, machines); err != nil {
		return ImportStats{}, err
	}
	return stats, nil
}

// PutDocument validates and stores a whole configuration document.
func (r *Repository) PutDocument(ctx context.Context, key string, v any) (store.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch doc := v.(type) {
	case entities.ScoringCriteria:
		if err := scoring.ValidateCriteria(doc); err != nil {
			return store.Entry{}, fmt.Errorf("%w: %v", validation.ErrInvalid, err)
		}
	case entities.SafetyFactorConfig:
		if err := validateSafetyFactors(doc); err != nil {
			return store.Entry{}, err
		}
	case entities.Settings:
		if err := validateSettings(doc); err != nil {
			return store.Entry{}, err
		}
	case []entities.DetergentIngredient:
		if err := validateDetergents(doc); err != nil {
			return store.Entry{}, err
		}
		v = assignDetergentIDs(doc)
	}
	return r.store.Put(ctx, key, v)
}

// History returns up to limit stored versions of key, newest first.
func (r *Repository) History(ctx context.Context, key string, limit int) ([]store.Entry, error) {
	return r.store.History(ctx, key, limit)
}

// Revert makes an older version of key current again. The reverted payload
// was validated when it was first written.
func (r *Repository) Revert(ctx context.Context, key string, version int) (store.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.store.Revert(ctx, key, version)
}

func (r *Repository) checkProduct(p *entities.Product, products []entities.Product) error {
	if err := r.validator.ValidateProduct(p); err != nil {
		return err
	}
	if validation.CodeTaken(products, p.ProductCode, p.ID) {
		return fmt.Errorf("%w: %s", validation.ErrDuplicateCode, p.ProductCode)
	}
	return nil
}

func validateSafetyFactors(cfg entities.SafetyFactorConfig) error {
	if len(cfg.Categories) == 0 {
		return fmt.Errorf("%w: no safety factor categories", validation.ErrInvalid)
	}
	for name, rng := range cfg.Categories {
		if rng.Min <= 0 || rng.Max < rng.Min {
			return fmt.Errorf("%w: safety factor category %s has invalid range [%v, %v]", validation.ErrInvalid, name, rng.Min, rng.Max)
		}
	}
	for form, category := range cfg.DosageFormCategories {
		if _, ok := cfg.Categories[category]; !ok {
			return fmt.Errorf("%w: dosage form %s maps to unknown category %s", validation.ErrInvalid, form, category)
		}
	}
	if cfg.DefaultCategory != "" {
		if _, ok := cfg.Categories[cfg.DefaultCategory]; !ok {
			return fmt.Errorf("%w: unknown default category %s", validation.ErrInvalid, cfg.DefaultCategory)
		}
	}
	return nil
}

func validateSettings(s entities.Settings) error {
	for key, v := range s.SafetyFactorOverrides {
		if !(v > 0) {
			return fmt.Errorf("%w: safety factor override for %s must be positive", validation.ErrInvalid, key)
		}
	}
	for key, v := range s.SSAOverrides {
		if !(v > 0) {
			return fmt.Errorf("%w: swab area override for %s must be positive", validation.ErrInvalid, key)
		}
	}
	return nil
}

func validateDetergents(detergents []entities.DetergentIngredient) error {
	for _, d := range detergents {
		if strings.TrimSpace(d.Name) == "" {
			return fmt.Errorf("%w: detergent ingredient without name", validation.ErrInvalid)
		}
		if d.LD50 != nil && !(*d.LD50 > 0) {
			return fmt.Errorf("%w: LD50 of detergent %s must be positive", validation.ErrInvalid, d.Name)
		}
	}
	return nil
}

func assignDetergentIDs(detergents []entities.DetergentIngredient) []entities.DetergentIngredient {
	out := slices.Clone(detergents)
	next := 0
	for _, d := range out {
		next = max(next, d.ID)
	}
	for i := range out {
		if out[i].ID <= 0 {
			next++
			out[i].ID = next
		}
	}
	return out
}

func nextProductID(products []entities.Product) int {
	id := 0
	for _, p := range products {
		id = max(id, p.ID)
	}
	return id + 1
}

func nextMachineID(machines []entities.Machine) int {
	id := 0
	for _, m := range machines {
		id = max(id, m.ID)
	}
	return id + 1
}

// assignIngredientIDs gives ingredients without an id one that is unique
// across the catalog.
func assignIngredientIDs(p *entities.Product, products []entities.Product) {
	next := 0
	for _, other := range products {
		for _, ing := range other.ActiveIngredients {
			next = max(next, ing.ID)
		}
	}
	for _, ing := range p.ActiveIngredients {
		next = max(next, ing.ID)
	}

	p.ActiveIngredients = slices.Clone(p.ActiveIngredients)
	for i := range p.ActiveIngredients {
		if p.ActiveIngredients[i].ID <= 0 {
			next++
			p.ActiveIngredients[i].ID = next
		}
	}
}
