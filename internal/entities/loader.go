package entities

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Entity kinds the resolver knows how to load. The string value is also the
// entity type recorded on automation runs.
const (
	KindJob        = "job"
	KindMaterial   = "material"
	KindContact    = "contact"
	KindAppraisal  = "appraisal"
	KindListing    = "listing"
	KindReport     = "report"
	KindAssignment = "schedule_assignment"
)

var ErrUnknownKind = errors.New("unknown entity kind")

// Loader fetches one domain aggregate scoped to an org. A missing entity is
// reported as (nil, nil); errors are reserved for store failures.
type Loader interface {
	Load(ctx context.Context, orgID, kind, id string) (map[string]interface{}, error)
}

// Invalidator is implemented by loaders that keep copies of entities.
type Invalidator interface {
	Invalidate(ctx context.Context, orgID, kind, id string) error
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, orgID, kind, id string) (map[string]interface{}, error)

func (f LoaderFunc) Load(ctx context.Context, orgID, kind, id string) (map[string]interface{}, error) {
	return f(ctx, orgID, kind, id)
}

var defaultTables = map[string]string{
	KindJob:        "jobs",
	KindMaterial:   "materials",
	KindContact:    "contacts",
	KindAppraisal:  "appraisals",
	KindListing:    "listings",
	KindReport:     "reports",
	KindAssignment: "schedule_assignments",
}

// Tables maps entity kinds to table (or collection) names, with overrides
// applied on top of the defaults.
type Tables map[string]string

func NewTables(overrides map[string]string) Tables {
	t := make(Tables, len(defaultTables))
	for kind, table := range defaultTables {
		t[kind] = table
	}
	for kind, table := range overrides {
		if _, ok := defaultTables[kind]; ok && table != "" {
			t[kind] = table
		}
	}
	return t
}

// Names returns the distinct table names in sorted order.
func (t Tables) Names() []string {
	seen := make(map[string]bool, len(t))
	names := make([]string, 0, len(t))
	for _, table := range t {
		if !seen[table] {
			seen[table] = true
			names = append(names, table)
		}
	}
	sort.Strings(names)
	return names
}

func (t Tables) For(kind string) (string, error) {
	table, ok := t[kind]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return table, nil
}
