package audit

import (
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"
)

type stubTimelineRepo struct {
	rows     []TimelineRow
	lastCall Query
}

func (s *stubTimelineRepo) Timeline(ctx context.Context, q Query) ([]TimelineRow, error) {
	s.lastCall = q
	if q.Limit > 0 && len(s.rows) > q.Limit {
		return s.rows[:q.Limit], nil
	}
	return s.rows, nil
}

func mockRow(at, actor, action, entity, id string) TimelineRow {
	ts, _ := time.Parse(time.RFC3339, at)
	return TimelineRow{At: ts, Actor: actor, Action: action, Entity: entity, EntityID: id}
}

func TestServiceTimelinePaging(t *testing.T) {
	repo := &stubTimelineRepo{
		rows: []TimelineRow{
			mockRow("2026-03-10T10:00:00Z", "admin@example.com", "snapshot.update", "snapshot", "1"),
			mockRow("2026-03-09T09:00:00Z", "admin@example.com", "quotation.create", "quotation", "2"),
			mockRow("2026-03-08T08:00:00Z", "admin@example.com", "role.permission.set", "role", "3"),
		},
	}
	svc := NewService(repo)
	result, err := svc.Timeline(context.Background(), TimelineFilters{
		From:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		To:       time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		Page:     1,
		PageSize: 2,
	})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(result.Rows))
	}
	if !result.Paging.HasNext || result.Paging.NextPage != 2 {
		t.Fatalf("expected next page, got %+v", result.Paging)
	}
	if repo.lastCall.Limit != 3 {
		t.Fatalf("expected limit 3, got %d", repo.lastCall.Limit)
	}
	if repo.lastCall.Offset != 0 {
		t.Fatalf("expected offset 0, got %d", repo.lastCall.Offset)
	}
}

func TestServiceTimelineClampsPageSize(t *testing.T) {
	repo := &stubTimelineRepo{}
	svc := NewService(repo)
	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 3, PageSize: 500})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if result.Paging.PageSize != maxPageSize {
		t.Fatalf("expected page size %d, got %d", maxPageSize, result.Paging.PageSize)
	}
	if repo.lastCall.Offset != 2*maxPageSize || repo.lastCall.Limit != maxPageSize+1 {
		t.Fatalf("unexpected window %+v", repo.lastCall)
	}
	if result.Paging.PrevPage != 2 || result.Paging.HasNext {
		t.Fatalf("unexpected paging %+v", result.Paging)
	}
	if result.Rows == nil {
		t.Fatalf("expected empty slice, got nil")
	}

	if _, err := svc.Timeline(context.Background(), TimelineFilters{}); err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if repo.lastCall.Limit != defaultPageSize+1 {
		t.Fatalf("expected default window, got %d", repo.lastCall.Limit)
	}
}

func TestServiceExportIsUnpaged(t *testing.T) {
	repo := &stubTimelineRepo{rows: []TimelineRow{mockRow("2026-03-10T10:00:00Z", "a", "x", "y", "1")}}
	rows, err := NewService(repo).Export(context.Background(), TimelineFilters{Entity: "snapshot", Page: 4, PageSize: 5})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(rows) != 1 || repo.lastCall.Limit != 0 || repo.lastCall.Entity != "snapshot" {
		t.Fatalf("unexpected export call %+v", repo.lastCall)
	}
}

func TestServiceWithoutRepository(t *testing.T) {
	if _, err := NewService(nil).Timeline(context.Background(), TimelineFilters{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestExporterWritesCSV(t *testing.T) {
	row := mockRow("2026-03-10T10:00:00Z", "admin@example.com", "snapshot.update", "snapshot", "1")
	row.ActorID = 7
	row.Meta = map[string]any{"name": "Plan, Web"}
	out, err := NewExporter(nil).WriteCSV([]TimelineRow{row})
	if err != nil {
		t.Fatalf("write csv: %v", err)
	}
	records, err := csv.NewReader(strings.NewReader(string(out))).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected header and one row, got %d", len(records))
	}
	if strings.Join(records[0], ",") != "at,actor_id,actor,action,entity,entity_id,meta" {
		t.Fatalf("unexpected header %v", records[0])
	}
	got := records[1]
	if got[0] != "2026-03-10T10:00:00Z" || got[1] != "7" || got[6] != `{"name":"Plan, Web"}` {
		t.Fatalf("unexpected record %v", got)
	}
}
