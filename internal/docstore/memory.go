package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"facilityfix/api/internal/util"
)

// MemoryStore is an in-process Store used by tests and local
// development. All operations run under a single mutex, which gives
// UpdateWhere its guard-then-write atomicity for free.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]map[string]map[string]any
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]map[string]any)}
}

func (s *MemoryStore) Create(ctx context.Context, collection, id string, data map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		id = util.NewID("")
	}
	docs, ok := s.collections[collection]
	if !ok {
		docs = make(map[string]map[string]any)
		s.collections[collection] = docs
	}
	if _, exists := docs[id]; exists {
		return "", fmt.Errorf("create %s/%s: %w", collection, id, ErrConflict)
	}
	docs[id] = deepCopy(data)
	return id, nil
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return deepCopy(doc), nil
}

func (s *MemoryStore) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	return s.UpdateWhere(ctx, collection, id, nil, patch)
}

func (s *MemoryStore) UpdateWhere(ctx context.Context, collection, id string, guards []Predicate, patch map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return ErrNotFound
	}
	for _, guard := range guards {
		if !matches(doc, guard) {
			return ErrConflict
		}
	}
	for field, value := range deepCopy(patch) {
		doc[field] = value
	}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collection][id]; !ok {
		return ErrNotFound
	}
	delete(s.collections[collection], id)
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, collection string, predicates []Predicate, opts Options) ([]map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var results []map[string]any
	for _, doc := range s.collections[collection] {
		ok := true
		for _, predicate := range predicates {
			if !matches(doc, predicate) {
				ok = false
				break
			}
		}
		if ok {
			results = append(results, deepCopy(doc))
		}
	}

	if opts.OrderBy != "" {
		sort.SliceStable(results, func(i, j int) bool {
			cmp, _ := compare(results[i][opts.OrderBy], results[j][opts.OrderBy])
			if opts.Descending {
				return cmp > 0
			}
			return cmp < 0
		})
	}
	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func matches(doc map[string]any, predicate Predicate) bool {
	value, present := doc[predicate.Field]

	switch predicate.Op {
	case OpEq:
		if predicate.Value == nil {
			return !present || value == nil
		}
		cmp, ok := compare(value, predicate.Value)
		return ok && cmp == 0
	case OpGt, OpGte, OpLt, OpLte:
		cmp, ok := compare(value, predicate.Value)
		if !ok {
			return false
		}
		switch predicate.Op {
		case OpGt:
			return cmp > 0
		case OpGte:
			return cmp >= 0
		case OpLt:
			return cmp < 0
		default:
			return cmp <= 0
		}
	case OpIn:
		candidates, ok := predicate.Value.([]any)
		if !ok {
			return false
		}
		for _, candidate := range candidates {
			if cmp, ok := compare(value, candidate); ok && cmp == 0 {
				return true
			}
		}
		return false
	case OpArrayContains:
		elements, ok := value.([]any)
		if !ok {
			return false
		}
		for _, element := range elements {
			if cmp, ok := compare(element, predicate.Value); ok && cmp == 0 {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// compare orders two JSON-shaped values of the same kind. The second
// return value is false when the kinds differ or are unordered.
func compare(a, b any) (int, bool) {
	switch left := a.(type) {
	case string:
		right, ok := b.(string)
		if !ok {
			return 0, false
		}
		switch {
		case left < right:
			return -1, true
		case left > right:
			return 1, true
		default:
			return 0, true
		}
	case float64:
		right, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case left < right:
			return -1, true
		case left > right:
			return 1, true
		default:
			return 0, true
		}
	case int:
		return compare(float64(left), b)
	case bool:
		right, ok := b.(bool)
		if !ok {
			return 0, false
		}
		if left == right {
			return 0, true
		}
		// booleans are unordered; report inequality for OpEq only
		return 1, true
	case nil:
		if b == nil {
			return 0, true
		}
		return 0, false
	default:
		// Arrays and objects compare by canonical JSON text. Only
		// equality is meaningful; guards use it to detect concurrent
		// writes to composite fields.
		leftJSON, ok := canonicalJSON(a)
		if !ok {
			return 0, false
		}
		rightJSON, ok := canonicalJSON(b)
		if !ok {
			return 0, false
		}
		switch {
		case leftJSON < rightJSON:
			return -1, true
		case leftJSON > rightJSON:
			return 1, true
		default:
			return 0, true
		}
	}
}

// canonicalJSON renders a value as JSON with map keys sorted, so two
// structurally equal values always produce the same text.
func canonicalJSON(v any) (string, bool) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", false
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", false
	}
	out, err := json.Marshal(decoded)
	if err != nil {
		return "", false
	}
	return string(out), true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// deepCopy round-trips through JSON so callers never share references
// with stored documents, and stored values are always JSON-shaped.
func deepCopy(data map[string]any) map[string]any {
	if data == nil {
		return map[string]any{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		copied := make(map[string]any, len(data))
		for k, v := range data {
			copied[k] = v
		}
		return copied
	}
	var copied map[string]any
	if err := json.Unmarshal(raw, &copied); err != nil {
		return data
	}
	return copied
}
