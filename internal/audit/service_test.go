package audit

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	rows       []TimelineRow
	lastOffset int
	lastLimit  int
}

func (f *fakeRepo) TimelineWindow(_ context.Context, _ TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	f.lastOffset = offset
	f.lastLimit = limit
	if offset >= len(f.rows) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.rows) {
		end = len(f.rows)
	}
	return f.rows[offset:end], nil
}

func seedRows(n int) []TimelineRow {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := make([]TimelineRow, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, TimelineRow{
			At:            base.Add(-time.Duration(i) * time.Minute),
			ActorUserID:   int64(100 + i),
			Action:        "TRANSFER_SHIP",
			EntityType:    "transfer",
			EntityID:      fmt.Sprintf("%d", i+1),
			CorrelationID: fmt.Sprintf("corr-%d", i+1),
		})
	}
	return rows
}

func TestTimelineDefaultsPageSize(t *testing.T) {
	repo := &fakeRepo{rows: seedRows(30)}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{TenantID: 1})
	require.NoError(t, err)
	require.Len(t, result.Rows, 20)
	require.Equal(t, 1, result.Paging.Page)
	require.Equal(t, 20, result.Paging.PageSize)
	require.True(t, result.Paging.HasNext)
	require.Equal(t, 2, result.Paging.NextPage)
	require.Zero(t, result.Paging.PrevPage)
	require.Equal(t, 21, repo.lastLimit)
}

func TestTimelineClampsPageSize(t *testing.T) {
	repo := &fakeRepo{rows: seedRows(120)}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{TenantID: 1, PageSize: 500})
	require.NoError(t, err)
	require.Len(t, result.Rows, 50)
	require.Equal(t, 50, result.Paging.PageSize)
	require.True(t, result.Paging.HasNext)
}

func TestTimelineSecondPage(t *testing.T) {
	repo := &fakeRepo{rows: seedRows(25)}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{TenantID: 1, Page: 2, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, result.Rows, 10)
	require.Equal(t, 10, repo.lastOffset)
	require.Equal(t, 2, result.Paging.Page)
	require.Equal(t, 1, result.Paging.PrevPage)
	require.True(t, result.Paging.HasNext)
	require.Equal(t, 3, result.Paging.NextPage)
}

func TestTimelineLastPageHasNoNext(t *testing.T) {
	repo := &fakeRepo{rows: seedRows(15)}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{TenantID: 1, Page: 2, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, result.Rows, 5)
	require.False(t, result.Paging.HasNext)
	require.Zero(t, result.Paging.NextPage)
	require.Equal(t, 1, result.Paging.PrevPage)
}

func TestExportTimelineCSV(t *testing.T) {
	repo := &fakeRepo{rows: seedRows(2)}
	svc := NewService(repo)

	data, err := svc.ExportTimeline(context.Background(), TimelineFilters{TenantID: 1})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, "at,actor_user_id,action,entity_type,entity_id,correlation_id", lines[0])
	require.Equal(t, "2026-03-01T12:00:00Z,100,TRANSFER_SHIP,transfer,1,corr-1", lines[1])
	require.Equal(t, "2026-03-01T11:59:00Z,101,TRANSFER_SHIP,transfer,2,corr-2", lines[2])
}
