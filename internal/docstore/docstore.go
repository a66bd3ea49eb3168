// Package docstore is the document persistence boundary: schemaless
// JSON documents addressed by (collection, id), with predicate queries
// and guarded partial updates.
package docstore

import (
	"context"
	"errors"
)

type Operator string

const (
	OpEq            Operator = "=="
	OpGt            Operator = ">"
	OpGte           Operator = ">="
	OpLt            Operator = "<"
	OpLte           Operator = "<="
	OpIn            Operator = "in"
	OpArrayContains Operator = "array_contains"
)

// Predicate is a single (field, operator, value) filter. Values must
// be JSON-shaped: string, float64, bool, nil, or []any for OpIn.
type Predicate struct {
	Field string
	Op    Operator
	Value any
}

// Options controls query ordering and size. Results are unordered
// unless OrderBy is set.
type Options struct {
	OrderBy    string
	Descending bool
	Limit      int
}

var (
	ErrNotFound = errors.New("document not found")
	// ErrConflict means a guarded update found the document but one of
	// its guard predicates no longer held.
	ErrConflict = errors.New("document state conflict")
)

// Store is the document store contract. Implementations must make
// UpdateWhere atomic: the guards are evaluated against the stored
// document in the same operation that applies the patch, so two racing
// guarded updates on the same precondition admit exactly one winner.
type Store interface {
	Create(ctx context.Context, collection, id string, data map[string]any) (string, error)
	Get(ctx context.Context, collection, id string) (map[string]any, error)
	Update(ctx context.Context, collection, id string, patch map[string]any) error
	UpdateWhere(ctx context.Context, collection, id string, guards []Predicate, patch map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, collection string, predicates []Predicate, opts Options) ([]map[string]any, error)
	Ping(ctx context.Context) error
}
