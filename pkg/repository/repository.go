// Package repository provides a typed gorm table accessor shared by the domain repositories.
package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/seometer/pkg/db/option"
	"gorm.io/gorm"
)

// ErrUnfilteredDelete guards against deleting a whole table through a zero filter.
var ErrUnfilteredDelete = errors.New("repository: delete requires a filter")

// Store reads and writes rows of T. Filters are gorm struct conditions, so zero fields
// are ignored.
type Store[T any] struct {
	db *gorm.DB
}

func New[T any](db *gorm.DB) Store[T] {
	return Store[T]{db: db}
}

// On returns a copy bound to tx. A nil tx keeps the current handle.
func (s Store[T]) On(tx *gorm.DB) Store[T] {
	if tx == nil {
		return s
	}
	return Store[T]{db: tx}
}

func (s Store[T]) List(ctx context.Context, filter *T, opts ...option.QueryOption) ([]T, error) {
	var rows []T
	if err := s.query(ctx, filter, opts).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Get returns (nil, nil) when no row matches.
func (s Store[T]) Get(ctx context.Context, filter *T, opts ...option.QueryOption) (*T, error) {
	var row T
	err := s.query(ctx, filter, opts).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Insert writes rows in one statement.
func (s Store[T]) Insert(ctx context.Context, rows ...*T) error {
	switch len(rows) {
	case 0:
		return nil
	case 1:
		return s.db.WithContext(ctx).Create(rows[0]).Error
	default:
		return s.db.WithContext(ctx).Create(rows).Error
	}
}

func (s Store[T]) Delete(ctx context.Context, filter *T) (int64, error) {
	if filter == nil {
		return 0, ErrUnfilteredDelete
	}
	res := s.db.WithContext(ctx).Where(filter).Delete(new(T))
	if errors.Is(res.Error, gorm.ErrMissingWhereClause) {
		return 0, ErrUnfilteredDelete
	}
	return res.RowsAffected, res.Error
}

func (s Store[T]) Count(ctx context.Context, filter *T) (int64, error) {
	var n int64
	q := s.db.WithContext(ctx).Model(new(T))
	if filter != nil {
		q = q.Where(filter)
	}
	err := q.Count(&n).Error
	return n, err
}

func (s Store[T]) query(ctx context.Context, filter *T, opts []option.QueryOption) *gorm.DB {
	q := s.db.WithContext(ctx)
	if filter != nil {
		q = q.Where(filter)
	}
	for _, opt := range opts {
		q = opt.Apply(q)
	}
	return q
}
