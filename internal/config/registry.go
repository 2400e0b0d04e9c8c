package config

import (
	"sort"
	"strings"

	"postdraft/internal/types"
)

// CustomFrequency labels a window built from an explicit day count alone.
const CustomFrequency = "custom"

// Registry is the immutable product registry: which repositories roll up
// into which product, and how many days each frequency label looks back.
// Build it once with NewRegistry and pass it to whoever needs it.
type Registry struct {
	products         []types.ProductGroup
	frequencies      map[string]int
	defaultFrequency string
}

// NewRegistry validates and freezes the registry data.
func NewRegistry(products []ProductConfig, frequencies map[string]int, defaultFrequency string) (*Registry, error) {
	r := &Registry{
		frequencies:      make(map[string]int, len(frequencies)),
		defaultFrequency: defaultFrequency,
	}

	for label, days := range frequencies {
		if strings.TrimSpace(label) == "" {
			return nil, configErrorf("frequencies", "empty frequency label")
		}
		if days <= 0 {
			return nil, configErrorf("frequencies."+label, "days must be positive, got %d", days)
		}
		r.frequencies[label] = days
	}
	if _, ok := r.frequencies[defaultFrequency]; !ok {
		return nil, configErrorf("default_frequency", "%q is not a known frequency (known: %s)",
			defaultFrequency, strings.Join(r.Frequencies(), ", "))
	}

	seenProducts := make(map[string]bool, len(products))
	for i, p := range products {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return nil, configErrorf("products", "product #%d has no name", i+1)
		}
		if seenProducts[name] {
			return nil, configErrorf("products", "duplicate product %q", name)
		}
		seenProducts[name] = true

		group := types.ProductGroup{Name: name}
		seenRepos := make(map[string]bool, len(p.Repositories))
		for _, slug := range p.Repositories {
			repo, err := types.ParseRepository(slug)
			if err != nil {
				return nil, &ConfigError{Field: "products." + name, Msg: "bad repository", Err: err}
			}
			key := strings.ToLower(repo.String())
			if seenRepos[key] {
				return nil, configErrorf("products."+name, "duplicate repository %q", repo)
			}
			seenRepos[key] = true
			group.Repositories = append(group.Repositories, repo)
		}
		r.products = append(r.products, group)
	}

	return r, nil
}

// LookupWindow resolves a frequency label, or an explicit day override, into
// a lookback window. A positive override always wins; an empty label means
// the default frequency.
func (r *Registry) LookupWindow(label string, overrideDays int) (types.LookbackWindow, error) {
	if overrideDays < 0 {
		return types.LookbackWindow{}, configErrorf("lookback-days", "must be positive, got %d", overrideDays)
	}
	if label == "" && overrideDays == 0 {
		label = r.defaultFrequency
	}

	days, known := r.frequencies[label]
	if overrideDays > 0 {
		if label == "" {
			label = CustomFrequency
		}
		return types.LookbackWindow{Frequency: label, Days: overrideDays}, nil
	}
	if !known {
		return types.LookbackWindow{}, configErrorf("frequency", "unknown frequency %q (known: %s)",
			label, strings.Join(r.Frequencies(), ", "))
	}
	return types.LookbackWindow{Frequency: label, Days: days}, nil
}

// AllProducts returns a copy of every product group in declaration order.
func (r *Registry) AllProducts() []types.ProductGroup {
	out := make([]types.ProductGroup, len(r.products))
	for i, p := range r.products {
		out[i] = p.Clone()
	}
	return out
}

// Frequencies returns the known frequency labels, sorted.
func (r *Registry) Frequencies() []string {
	labels := make([]string, 0, len(r.frequencies))
	for label := range r.frequencies {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// DefaultFrequency returns the label used when none is given.
func (r *Registry) DefaultFrequency() string {
	return r.defaultFrequency
}
