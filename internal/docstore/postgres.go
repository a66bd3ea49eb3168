package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"facilityfix/api/internal/util"
)

// PostgresStore keeps every collection in a single JSONB-backed table.
// Guarded updates compile to a single UPDATE ... WHERE statement, so
// the precondition check and the write are one atomic operation.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, collection, id string, data map[string]any) (string, error) {
	if id == "" {
		id = util.NewID("")
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, id) DO NOTHING
	`, collection, id, payload)
	if err != nil {
		return "", fmt.Errorf("insert document %s/%s: %w", collection, id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("insert document %s/%s: %w", collection, id, err)
	}
	if affected == 0 {
		return "", fmt.Errorf("insert document %s/%s: %w", collection, id, ErrConflict)
	}
	return id, nil
}

func (s *PostgresStore) Get(ctx context.Context, collection, id string) (map[string]any, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM documents WHERE collection=$1 AND id=$2
	`, collection, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s/%s: %w", collection, id, err)
	}
	var data map[string]any
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("decode document %s/%s: %w", collection, id, err)
	}
	return data, nil
}

func (s *PostgresStore) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	return s.UpdateWhere(ctx, collection, id, nil, patch)
}

func (s *PostgresStore) UpdateWhere(ctx context.Context, collection, id string, guards []Predicate, patch map[string]any) error {
	payload, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("marshal patch: %w", err)
	}

	where := []string{"collection=$1", "id=$2"}
	args := []any{collection, id, payload}
	for _, guard := range guards {
		clause, guardArgs, err := compilePredicate(guard, len(args)+1)
		if err != nil {
			return err
		}
		where = append(where, clause)
		args = append(args, guardArgs...)
	}

	query := fmt.Sprintf(`
		UPDATE documents
		SET data = data || $3::jsonb, updated_at = NOW()
		WHERE %s
	`, strings.Join(where, " AND "))

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update document %s/%s: %w", collection, id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document %s/%s: %w", collection, id, err)
	}
	if affected > 0 {
		return nil
	}

	// No row updated: distinguish a missing document from a failed guard.
	var exists bool
	err = s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM documents WHERE collection=$1 AND id=$2)
	`, collection, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check document %s/%s: %w", collection, id, err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM documents WHERE collection=$1 AND id=$2
	`, collection, id)
	if err != nil {
		return fmt.Errorf("delete document %s/%s: %w", collection, id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document %s/%s: %w", collection, id, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Query(ctx context.Context, collection string, predicates []Predicate, opts Options) ([]map[string]any, error) {
	where := []string{"collection=$1"}
	args := []any{collection}
	for _, predicate := range predicates {
		clause, predicateArgs, err := compilePredicate(predicate, len(args)+1)
		if err != nil {
			return nil, err
		}
		where = append(where, clause)
		args = append(args, predicateArgs...)
	}

	query := fmt.Sprintf(`SELECT data FROM documents WHERE %s`, strings.Join(where, " AND "))
	if opts.OrderBy != "" {
		direction := "ASC"
		if opts.Descending {
			direction = "DESC"
		}
		query += fmt.Sprintf(" ORDER BY data->%s %s", quoteLiteral(opts.OrderBy), direction)
	}
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	var results []map[string]any
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan %s document: %w", collection, err)
		}
		var data map[string]any
		if err := json.Unmarshal(payload, &data); err != nil {
			return nil, fmt.Errorf("decode %s document: %w", collection, err)
		}
		results = append(results, data)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s documents: %w", collection, err)
	}
	return results, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// compilePredicate renders one predicate as a WHERE clause. Values are
// bound as JSON text and cast to jsonb so comparisons follow jsonb
// type ordering, matching the in-memory store's semantics.
func compilePredicate(predicate Predicate, argIndex int) (string, []any, error) {
	field := fmt.Sprintf("data->%s", quoteLiteral(predicate.Field))

	switch predicate.Op {
	case OpEq:
		if predicate.Value == nil {
			return fmt.Sprintf("(%s IS NULL OR %s = 'null'::jsonb)", field, field), nil, nil
		}
		arg, err := jsonArg(predicate.Value)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%s = $%d::jsonb", field, argIndex), []any{arg}, nil
	case OpGt, OpGte, OpLt, OpLte:
		arg, err := jsonArg(predicate.Value)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%s %s $%d::jsonb", field, predicate.Op, argIndex), []any{arg}, nil
	case OpIn:
		arg, err := jsonArg(predicate.Value)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("$%d::jsonb @> jsonb_build_array(%s)", argIndex, field), []any{arg}, nil
	case OpArrayContains:
		arg, err := jsonArg([]any{predicate.Value})
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%s @> $%d::jsonb", field, argIndex), []any{arg}, nil
	default:
		return "", nil, fmt.Errorf("unsupported operator %q", predicate.Op)
	}
}

func jsonArg(value any) (string, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("marshal predicate value: %w", err)
	}
	return string(raw), nil
}

// quoteLiteral single-quotes a JSON field name for use as a jsonb key.
// Field names come from code, never from request input.
func quoteLiteral(field string) string {
	return "'" + strings.ReplaceAll(field, "'", "''") + "'"
}
