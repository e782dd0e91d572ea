package services

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNodeStatisticsHalfOpenWindow(t *testing.T) {
	env := newTestEnv(t)
	root, off := uuid.New(), uuid.New()

	env.mustImport(t, []NodeUpsert{
		category(root, "root", nil),
		offer(off, "offer", parentOf(root), 100),
	}, batchT1)
	env.mustImport(t, []NodeUpsert{
		offer(off, "offer", parentOf(root), 200),
	}, batchT2)
	env.mustImport(t, []NodeUpsert{
		offer(off, "offer", parentOf(root), 300),
	}, batchT3)

	// [t1, t3) keeps the t1 and t2 snapshots and drops t3.
	views, err := env.stats.NodeStatistics(env.dbc, off, &batchT1, &batchT3)
	if err != nil {
		t.Fatalf("NodeStatistics: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("history length = %d, want 2", len(views))
	}
	if views[0].Price == nil || *views[0].Price != 100 {
		t.Fatalf("first snapshot price = %v, want 100", views[0].Price)
	}
	if views[1].Price == nil || *views[1].Price != 200 {
		t.Fatalf("second snapshot price = %v, want 200", views[1].Price)
	}
	if views[0].Date != "2022-02-01T12:00:00.000Z" {
		t.Fatalf("first snapshot date = %q", views[0].Date)
	}
}

func TestNodeStatisticsNoBoundsReturnsAll(t *testing.T) {
	env := newTestEnv(t)
	root, off := uuid.New(), uuid.New()

	env.mustImport(t, []NodeUpsert{
		category(root, "root", nil),
		offer(off, "offer", parentOf(root), 100),
	}, batchT1)
	env.mustImport(t, []NodeUpsert{
		offer(off, "offer", parentOf(root), 200),
	}, batchT2)

	views, err := env.stats.NodeStatistics(env.dbc, off, nil, nil)
	if err != nil {
		t.Fatalf("NodeStatistics: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("history length = %d, want 2", len(views))
	}
}

func TestNodeStatisticsTracksAncestorAggregates(t *testing.T) {
	env := newTestEnv(t)
	root, off := uuid.New(), uuid.New()

	env.mustImport(t, []NodeUpsert{
		category(root, "root", nil),
	}, batchT1)
	env.mustImport(t, []NodeUpsert{
		offer(off, "offer", parentOf(root), 100),
	}, batchT2)

	views, err := env.stats.NodeStatistics(env.dbc, root, nil, nil)
	if err != nil {
		t.Fatalf("NodeStatistics: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("history length = %d, want 2", len(views))
	}
	if views[0].Price != nil {
		t.Fatalf("root price before offer = %v, want nil", views[0].Price)
	}
	if views[1].Price == nil || *views[1].Price != 100 {
		t.Fatalf("root price after offer = %v, want 100", views[1].Price)
	}
}

func TestNodeStatisticsUnknownID(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.stats.NodeStatistics(env.dbc, uuid.New(), nil, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestOffersForDateWindow(t *testing.T) {
	env := newTestEnv(t)
	root, fresh, stale := uuid.New(), uuid.New(), uuid.New()

	env.mustImport(t, []NodeUpsert{
		category(root, "root", nil),
		offer(stale, "stale", parentOf(root), 50),
	}, batchT1.Add(-48*time.Hour))
	env.mustImport(t, []NodeUpsert{
		offer(fresh, "fresh", parentOf(root), 100),
	}, batchT1)

	// Exactly 24h after the fresh import: the window is inclusive of its
	// lower bound, so the fresh offer is still in.
	views, err := env.stats.OffersForDate(env.dbc, batchT1.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("OffersForDate: %v", err)
	}
	if len(views) != 1 || views[0].ID != fresh {
		t.Fatalf("sales = %+v, want just the fresh offer", views)
	}
	if views[0].Type != "OFFER" || views[0].Price == nil || *views[0].Price != 100 {
		t.Fatalf("sales view = %+v", views[0])
	}

	// A second past the window drops it.
	views, err = env.stats.OffersForDate(env.dbc, batchT1.Add(24*time.Hour+time.Second))
	if err != nil {
		t.Fatalf("OffersForDate: %v", err)
	}
	if len(views) != 0 {
		t.Fatalf("sales past window = %+v, want empty", views)
	}
}

func TestOffersForDateExcludesCategories(t *testing.T) {
	env := newTestEnv(t)
	root, off := uuid.New(), uuid.New()

	env.mustImport(t, []NodeUpsert{
		category(root, "root", nil),
		offer(off, "offer", parentOf(root), 100),
	}, batchT1)

	views, err := env.stats.OffersForDate(env.dbc, batchT1)
	if err != nil {
		t.Fatalf("OffersForDate: %v", err)
	}
	if len(views) != 1 || views[0].ID != off {
		t.Fatalf("sales = %+v, want just the offer", views)
	}
}
