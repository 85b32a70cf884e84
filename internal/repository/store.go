package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CRUD is the query surface every table exposes.
type CRUD[T any, F Filter, U Update] interface {
	FindUnique(ctx context.Context, id any) (*T, error)
	FindFirst(ctx context.Context, args FindArgs[F]) (*T, error)
	FindMany(ctx context.Context, args FindArgs[F]) ([]T, error)
	Count(ctx context.Context, where F) (int64, error)
	Create(ctx context.Context, entity *T) error
	CreateMany(ctx context.Context, entities []T) (int64, error)
	Update(ctx context.Context, id any, upd U) (*T, error)
	UpdateMany(ctx context.Context, where F, upd U) (int64, error)
	Delete(ctx context.Context, id any) (*T, error)
	DeleteMany(ctx context.Context, where F) (int64, error)
	Aggregate(ctx context.Context, where F, args AggregateArgs) (*AggregateResult, error)
	GroupBy(ctx context.Context, where F, args GroupByArgs) ([]GroupRow, error)
}

// Store implements CRUD for one GORM model.
type Store[T any, F Filter, U Update] struct {
	db      *gorm.DB
	pk      string
	columns columnSet
}

func newStore[T any, F Filter, U Update](db *gorm.DB, pk string, columns columnSet) *Store[T, F, U] {
	return &Store[T, F, U]{db: db, pk: pk, columns: columns}
}

func (s *Store[T, F, U]) query(ctx context.Context, where F) *gorm.DB {
	return where.Apply(s.db.WithContext(ctx).Model(new(T)))
}

func (s *Store[T, F, U]) FindUnique(ctx context.Context, id any) (*T, error) {
	var entity T
	if err := s.db.WithContext(ctx).First(&entity, s.pk+" = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &entity, nil
}

func (s *Store[T, F, U]) FindFirst(ctx context.Context, args FindArgs[F]) (*T, error) {
	args.Take = 1
	items, err := s.FindMany(ctx, args)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}
	return &items[0], nil
}

func (s *Store[T, F, U]) FindMany(ctx context.Context, args FindArgs[F]) ([]T, error) {
	q := s.query(ctx, args.Where)

	for _, ob := range args.OrderBy {
		if err := s.columns.checkSortable(ob.Column); err != nil {
			return nil, err
		}
		dir := " ASC"
		if ob.Desc {
			dir = " DESC"
		}
		q = q.Order(ob.Column + dir)
	}
	if len(args.OrderBy) == 0 {
		q = q.Order(s.pk + " ASC")
	}
	for _, assoc := range args.Preload {
		q = q.Preload(assoc)
	}
	if args.Skip > 0 {
		q = q.Offset(args.Skip)
	}
	if args.Take > 0 {
		q = q.Limit(args.Take)
	}

	items := make([]T, 0)
	if err := q.Find(&items).Error; err != nil {
		return nil, translate(err)
	}
	return items, nil
}

func (s *Store[T, F, U]) Count(ctx context.Context, where F) (int64, error) {
	var total int64
	if err := s.query(ctx, where).Count(&total).Error; err != nil {
		return 0, translate(err)
	}
	return total, nil
}

func (s *Store[T, F, U]) Create(ctx context.Context, entity *T) error {
	return translate(s.db.WithContext(ctx).Create(entity).Error)
}

func (s *Store[T, F, U]) CreateMany(ctx context.Context, entities []T) (int64, error) {
	if len(entities) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).CreateInBatches(&entities, 100)
	return res.RowsAffected, translate(res.Error)
}

// Update writes the non-nil fields of upd and returns the fresh row.
// An empty update returns the current row unchanged.
func (s *Store[T, F, U]) Update(ctx context.Context, id any, upd U) (*T, error) {
	fields := upd.Fields()
	if len(fields) == 0 {
		return s.FindUnique(ctx, id)
	}
	res := s.db.WithContext(ctx).Model(new(T)).Where(s.pk+" = ?", id).Updates(fields)
	if res.Error != nil {
		return nil, translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.FindUnique(ctx, id)
}

func (s *Store[T, F, U]) UpdateMany(ctx context.Context, where F, upd U) (int64, error) {
	fields := upd.Fields()
	if len(fields) == 0 {
		return 0, nil
	}
	res := s.query(ctx, where).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Updates(fields)
	return res.RowsAffected, translate(res.Error)
}

// Delete removes one row and returns it as it was.
func (s *Store[T, F, U]) Delete(ctx context.Context, id any) (*T, error) {
	entity, err := s.FindUnique(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Where(s.pk+" = ?", id).Delete(new(T)).Error; err != nil {
		return nil, translate(err)
	}
	return entity, nil
}

func (s *Store[T, F, U]) DeleteMany(ctx context.Context, where F) (int64, error) {
	res := where.Apply(s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true})).
		Delete(new(T))
	return res.RowsAffected, translate(res.Error)
}

func (s *Store[T, F, U]) Aggregate(ctx context.Context, where F, args AggregateArgs) (*AggregateResult, error) {
	if err := args.check(s.columns); err != nil {
		return nil, err
	}
	targets := args.targets()

	selects := []string{"COUNT(*) AS _count"}
	for _, t := range targets {
		selects = append(selects, t.fn+"("+t.col+") AS "+t.alias)
	}

	rows, err := s.query(ctx, where).Select(strings.Join(selects, ", ")).Rows()
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	res := &AggregateResult{}
	if !rows.Next() {
		return res, translate(rows.Err())
	}
	values := make([]decimal.NullDecimal, len(targets))
	dest := []any{&res.Count}
	for i := range values {
		dest = append(dest, &values[i])
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}
	res.Sum, res.Avg, res.Min, res.Max = spread(targets, values)
	return res, rows.Err()
}

func (s *Store[T, F, U]) GroupBy(ctx context.Context, where F, args GroupByArgs) ([]GroupRow, error) {
	if len(args.By) == 0 {
		return nil, ErrInvalidColumn
	}
	if err := s.columns.checkSortable(args.By...); err != nil {
		return nil, err
	}
	if err := args.check(s.columns); err != nil {
		return nil, err
	}
	targets := args.targets()

	selects := append([]string{}, args.By...)
	selects = append(selects, "COUNT(*) AS _count")
	for _, t := range targets {
		selects = append(selects, t.fn+"("+t.col+") AS "+t.alias)
	}
	groupCols := strings.Join(args.By, ", ")

	rows, err := s.query(ctx, where).
		Select(strings.Join(selects, ", ")).
		Group(groupCols).
		Order(groupCols).
		Rows()
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	out := make([]GroupRow, 0)
	for rows.Next() {
		keys := make([]sql.NullString, len(args.By))
		values := make([]decimal.NullDecimal, len(targets))
		var count int64

		dest := make([]any, 0, len(keys)+1+len(values))
		for i := range keys {
			dest = append(dest, &keys[i])
		}
		dest = append(dest, &count)
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		row := GroupRow{Keys: make(map[string]*string, len(keys)), Count: count}
		for i, col := range args.By {
			if keys[i].Valid {
				v := keys[i].String
				row.Keys[col] = &v
			} else {
				row.Keys[col] = nil
			}
		}
		row.Sum, row.Avg, row.Min, row.Max = spread(targets, values)
		out = append(out, row)
	}
	return out, rows.Err()
}

func spread(targets []aggTarget, values []decimal.NullDecimal) (sums, avgs, mins, maxs map[string]decimal.NullDecimal) {
	sums = map[string]decimal.NullDecimal{}
	avgs = map[string]decimal.NullDecimal{}
	mins = map[string]decimal.NullDecimal{}
	maxs = map[string]decimal.NullDecimal{}
	for i, t := range targets {
		switch t.fn {
		case "SUM":
			sums[t.col] = values[i]
		case "AVG":
			avgs[t.col] = values[i]
		case "MIN":
			mins[t.col] = values[i]
		case "MAX":
			maxs[t.col] = values[i]
		}
	}
	return sums, avgs, mins, maxs
}
