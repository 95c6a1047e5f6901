package postgres

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pztrick/television/internal/domain"
)

// Store persists one entity type in one table. Columns come from the `db`
// struct tags of T; the pk column is "id" and is assigned by the database.
type Store[T any] struct {
	pool     *pgxpool.Pool
	table    string
	columns  []string
	writable []string
	indexes  map[string][]int
}

var _ domain.EntityStore[struct{}] = (*Store[struct{}])(nil)

// NewStore describes table from T. Columns listed in readOnly (and the pk) are
// never written; the database fills them through defaults.
func NewStore[T any](pool *pgxpool.Pool, table string, readOnly ...string) (*Store[T], error) {
	t := reflect.TypeFor[T]()
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("store %s: %s is not a struct", table, t)
	}

	s := &Store[T]{pool: pool, table: table, indexes: make(map[string][]int)}
	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() || f.Anonymous {
			continue
		}
		col := f.Tag.Get("db")
		if col == "" || col == "-" {
			continue
		}
		s.columns = append(s.columns, col)
		s.indexes[col] = f.Index
		if col != "id" && !slices.Contains(readOnly, col) {
			s.writable = append(s.writable, col)
		}
	}
	if _, ok := s.indexes["id"]; !ok {
		return nil, fmt.Errorf("store %s: %s has no db:\"id\" field", table, t)
	}
	if len(s.writable) == 0 {
		return nil, fmt.Errorf("store %s: %s has no writable columns", table, t)
	}
	return s, nil
}

func (s *Store[T]) ident() string {
	return pgx.Identifier{s.table}.Sanitize()
}

func (s *Store[T]) selectList() string {
	quoted := make([]string, len(s.columns))
	for i, c := range s.columns {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}

func (s *Store[T]) values(entity T) []any {
	v := reflect.ValueOf(entity)
	args := make([]any, len(s.writable))
	for i, c := range s.writable {
		args[i] = v.FieldByIndex(s.indexes[c]).Interface()
	}
	return args
}

func (s *Store[T]) List(ctx context.Context) ([]T, error) {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY id DESC", s.selectList(), s.ident())
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.table, err)
	}
	entities, err := pgx.CollectRows(rows, pgx.RowToStructByName[T])
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", s.table, err)
	}
	return entities, nil
}

func (s *Store[T]) Get(ctx context.Context, pk int64) (T, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", s.selectList(), s.ident())
	return s.one(ctx, "get", pk, query, pk)
}

func (s *Store[T]) Create(ctx context.Context, entity T) (T, error) {
	cols := make([]string, len(s.writable))
	params := make([]string, len(s.writable))
	for i, c := range s.writable {
		cols[i] = pgx.Identifier{c}.Sanitize()
		params[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		s.ident(), strings.Join(cols, ", "), strings.Join(params, ", "), s.selectList())
	return s.one(ctx, "create", 0, query, s.values(entity)...)
}

func (s *Store[T]) Update(ctx context.Context, pk int64, entity T) (T, error) {
	sets := make([]string, len(s.writable))
	for i, c := range s.writable {
		sets[i] = fmt.Sprintf("%s = $%d", pgx.Identifier{c}.Sanitize(), i+1)
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d RETURNING %s",
		s.ident(), strings.Join(sets, ", "), len(s.writable)+1, s.selectList())
	return s.one(ctx, "update", pk, query, append(s.values(entity), pk)...)
}

func (s *Store[T]) Delete(ctx context.Context, pk int64) error {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.ident()), pk)
	if err != nil {
		return fmt.Errorf("failed to delete %s %d: %w", s.table, pk, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %d: %w", s.table, pk, domain.ErrEntityNotFound)
	}
	return nil
}

func (s *Store[T]) one(ctx context.Context, op string, pk int64, query string, args ...any) (T, error) {
	var zero T
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return zero, fmt.Errorf("failed to %s %s: %w", op, s.table, err)
	}
	entity, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[T])
	if errors.Is(err, pgx.ErrNoRows) {
		return zero, fmt.Errorf("%s %d: %w", s.table, pk, domain.ErrEntityNotFound)
	}
	if err != nil {
		return zero, fmt.Errorf("failed to %s %s: %w", op, s.table, err)
	}
	return entity, nil
}
