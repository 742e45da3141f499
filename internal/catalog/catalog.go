package catalog

import (
	"context"
	"errors"
	"slices"

	"sidebyside-backend/internal/components/assert"
	"sidebyside-backend/internal/model"
)

var ErrEmptyCatalog = errors.New("no versions known")

// VersionSource lists every version known for a product, in any order.
type VersionSource interface {
	Versions(ctx context.Context, product model.Product) ([]model.Version, error)
}

// Catalog answers ordering questions about the versions of a product.
type Catalog struct {
	src VersionSource
}

func New(src VersionSource) Catalog {
	assert.NotNil(src)
	return Catalog{src: src}
}

// AllVersions returns every known version, oldest first, with
// SequenceIndex assigned.
func (c Catalog) AllVersions(ctx context.Context, product model.Product) ([]model.Version, error) {
	versions, err := c.src.Versions(ctx, product)
	if err != nil {
		return nil, err
	}
	return Order(versions), nil
}

// Order sorts versions oldest first and assigns dense 1-based sequence
// indices. Versions with malformed labels sort first, by raw label.
func Order(versions []model.Version) []model.Version {
	type keyed struct {
		version model.Version
		label   Label
		ok      bool
	}

	items := make([]keyed, len(versions))
	for i, v := range versions {
		label, err := ParseLabel(v.Label)
		items[i] = keyed{version: v, label: label, ok: err == nil}
	}
	slices.SortStableFunc(items, func(a, b keyed) int {
		switch {
		case a.ok && b.ok:
			return CompareLabels(a.label, b.label)
		case !a.ok && !b.ok:
			if a.version.Label < b.version.Label {
				return -1
			}
			if a.version.Label > b.version.Label {
				return 1
			}
			return 0
		case !a.ok:
			return -1
		}
		return 1
	})

	out := make([]model.Version, len(items))
	for i, item := range items {
		out[i] = item.version
		out[i].SequenceIndex = i + 1
	}
	return out
}

// Latest returns the newest version of the product.
func (c Catalog) Latest(ctx context.Context, product model.Product) (model.Version, error) {
	versions, err := c.AllVersions(ctx, product)
	if err != nil {
		return model.Version{}, err
	}
	if len(versions) == 0 {
		return model.Version{}, ErrEmptyCatalog
	}
	return versions[len(versions)-1], nil
}

// Resolve finds a version by its label.
func (c Catalog) Resolve(ctx context.Context, product model.Product, label string) (model.Version, error) {
	versions, err := c.AllVersions(ctx, product)
	if err != nil {
		return model.Version{}, err
	}
	idx, err := Index(versions, product, label)
	if err != nil {
		return model.Version{}, err
	}
	return versions[idx], nil
}

// Compare orders two versions of the product, both must be known.
func (c Catalog) Compare(ctx context.Context, product model.Product, a, b string) (int, error) {
	versions, err := c.AllVersions(ctx, product)
	if err != nil {
		return 0, err
	}
	left, err := Index(versions, product, a)
	if err != nil {
		return 0, err
	}
	right, err := Index(versions, product, b)
	if err != nil {
		return 0, err
	}
	switch {
	case left < right:
		return -1, nil
	case left > right:
		return 1, nil
	}
	return 0, nil
}

// Index finds the position of label in an ordered version list.
func Index(versions []model.Version, product model.Product, label string) (int, error) {
	parsed, err := ParseLabel(label)
	if err != nil {
		return -1, &model.UnknownVersionError{Product: product, Label: label}
	}
	for i, v := range versions {
		if v.Label == parsed.Raw {
			return i, nil
		}
	}
	return -1, &model.UnknownVersionError{Product: product, Label: label}
}
