package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	rows []TimelineRow
	last WindowQuery
}

func (s *stubRepo) Window(_ context.Context, q WindowQuery) ([]TimelineRow, error) {
	s.last = q
	end := q.Offset + q.Limit
	if q.Offset > len(s.rows) {
		return nil, nil
	}
	if end > len(s.rows) {
		end = len(s.rows)
	}
	return s.rows[q.Offset:end], nil
}

func rowsN(n int) []TimelineRow {
	out := make([]TimelineRow, n)
	for i := range out {
		out[i] = TimelineRow{ID: int64(n - i), Action: "auth.login", Entity: "session", EntityID: "x"}
	}
	return out
}

func TestTimelinePaging(t *testing.T) {
	repo := &stubRepo{rows: rowsN(5)}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 2)
	assert.True(t, result.Paging.HasNext)
	assert.Equal(t, 2, result.Paging.NextPage)
	assert.Zero(t, result.Paging.PrevPage)
	assert.Equal(t, 3, repo.last.Limit)
	assert.Equal(t, 0, repo.last.Offset)

	result, err = svc.Timeline(context.Background(), TimelineFilters{Page: 3, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 1)
	assert.False(t, result.Paging.HasNext)
	assert.Equal(t, 2, result.Paging.PrevPage)
	assert.Equal(t, 4, repo.last.Offset)
}

func TestTimelineClampsPageSize(t *testing.T) {
	repo := &stubRepo{}
	_, err := NewService(repo).Timeline(context.Background(), TimelineFilters{PageSize: 1000})
	require.NoError(t, err)
	assert.Equal(t, MaxPageSize+1, repo.last.Limit)

	_, err = NewService(repo).Timeline(context.Background(), TimelineFilters{})
	require.NoError(t, err)
	assert.Equal(t, DefaultPageSize+1, repo.last.Limit)
}

func TestServiceWithoutRepository(t *testing.T) {
	_, err := NewService(nil).Timeline(context.Background(), TimelineFilters{})
	require.ErrorIs(t, err, ErrRepositoryMissing)
	_, err = NewService(nil).Export(context.Background(), TimelineFilters{})
	require.ErrorIs(t, err, ErrRepositoryMissing)
}

func TestWriteCSV(t *testing.T) {
	at := time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)
	data, err := WriteCSV([]TimelineRow{
		{ID: 7, At: at, ActorID: 3, ActorEmail: "sam@firm.test", Action: "auth.login", Entity: "session", EntityID: "abc", Meta: map[string]any{"ip": "10.0.0.1"}},
		{ID: 8, At: at, Action: "auth.login_failed", Entity: "session", EntityID: "nobody@firm.test"},
	})
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, []string{"7", "2026-05-04T09:30:00Z", "3", "sam@firm.test", "auth.login", "session", "abc", `{"ip":"10.0.0.1"}`}, records[1])
	assert.Equal(t, "", records[2][2])
}
