package transactions

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	rows       []Row
	deletedIDs []int64
	groups     []DuplicateGroup
}

func (f *fakeRepo) List(_ context.Context, _ int64, filters Filters) ([]Row, int, error) {
	return f.rows, len(f.rows), nil
}

func (f *fakeRepo) Get(_ context.Context, _ int64, id int64) (Row, error) {
	for _, row := range f.rows {
		if row.ID == id {
			return row, nil
		}
	}
	return Row{}, ErrNotFound
}

func (f *fakeRepo) ForEach(_ context.Context, _ int64, _ Filters, fn func(Row) error) error {
	for _, row := range f.rows {
		if err := fn(row); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeRepo) BulkDelete(_ context.Context, _ int64, ids []int64) (int64, error) {
	f.deletedIDs = ids
	return int64(len(ids)), nil
}

func (f *fakeRepo) DuplicateGroups(_ context.Context, _ int64, _ time.Duration, _ int) ([]DuplicateGroup, error) {
	return f.groups, nil
}

func testService(repo *fakeRepo) *Service {
	return NewService(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestServiceBulkDelete(t *testing.T) {
	repo := &fakeRepo{}
	svc := testService(repo)

	deleted, err := svc.BulkDelete(context.Background(), 1, []int64{1, 2, 3})
	require.NoError(t, err)
	require.EqualValues(t, 3, deleted)
	require.Equal(t, []int64{1, 2, 3}, repo.deletedIDs)
}

func TestServiceBulkDeleteValidation(t *testing.T) {
	svc := testService(&fakeRepo{})

	_, err := svc.BulkDelete(context.Background(), 1, nil)
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.BulkDelete(context.Background(), 1, []int64{1, -2})
	require.ErrorIs(t, err, ErrValidation)

	tooMany := make([]int64, maxBulkDeleteIDs+1)
	for i := range tooMany {
		tooMany[i] = int64(i + 1)
	}
	_, err = svc.BulkDelete(context.Background(), 1, tooMany)
	require.ErrorIs(t, err, ErrValidation)
}

func TestServiceFilterValidation(t *testing.T) {
	svc := testService(&fakeRepo{})

	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, _, err := svc.List(context.Background(), 1, Filters{DateFrom: &from, DateTo: &to})
	require.ErrorIs(t, err, ErrValidation)

	low := decimal.RequireFromString("100")
	high := decimal.RequireFromString("10")
	_, _, err = svc.List(context.Background(), 1, Filters{MinAmount: &low, MaxAmount: &high})
	require.ErrorIs(t, err, ErrValidation)
}

func TestServiceGetUnknownID(t *testing.T) {
	svc := testService(&fakeRepo{})
	_, err := svc.Get(context.Background(), 1, 42)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Get(context.Background(), 1, 0)
	require.ErrorIs(t, err, ErrNotFound)
}
