package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/treeprice/catalog-backend/internal/data/repos"
	"github.com/treeprice/catalog-backend/internal/data/repos/testutil"
	"github.com/treeprice/catalog-backend/internal/domain"
	"github.com/treeprice/catalog-backend/internal/platform/dbctx"
)

type testEnv struct {
	dbc   dbctx.Context
	db    *gorm.DB
	repos repos.Set
	imp   ImportService
	tree  TreeService
	stats StatisticsService
}

func newTestEnv(tb testing.TB) *testEnv {
	tb.Helper()
	gdb := testutil.DB(tb)
	log := testutil.Logger(tb)
	reposet := repos.Wire(gdb, log)
	return &testEnv{
		dbc:   dbctx.Context{Ctx: context.Background()},
		db:    gdb,
		repos: reposet,
		imp:   NewImportService(gdb, log, reposet.Node, reposet.NodeSnapshot, nil),
		tree:  NewTreeService(gdb, log, reposet.Node, nil),
		stats: NewStatisticsService(gdb, log, reposet.Node, reposet.NodeSnapshot),
	}
}

func (env *testEnv) mustImport(tb testing.TB, items []NodeUpsert, asOf time.Time) {
	tb.Helper()
	if err := env.imp.ImportBatch(env.dbc, items, asOf); err != nil {
		tb.Fatalf("ImportBatch: %v", err)
	}
}

func (env *testEnv) mustNode(tb testing.TB, id uuid.UUID) *domain.Node {
	tb.Helper()
	node, err := env.repos.Node.Get(env.dbc.Ctx, nil, id)
	if err != nil {
		tb.Fatalf("Get %s: %v", id, err)
	}
	if node == nil {
		tb.Fatalf("node %s not found", id)
	}
	return node
}

// aggregateRecorder logs the id sets ApplyAggregate receives, in call order.
type aggregateRecorder struct {
	repos.NodeRepo
	calls [][]uuid.UUID
}

func (r *aggregateRecorder) ApplyAggregate(ctx context.Context, tx *gorm.DB, ids []uuid.UUID, priceDelta, countDelta int64, asOf *time.Time) error {
	r.calls = append(r.calls, append([]uuid.UUID{}, ids...))
	return r.NodeRepo.ApplyAggregate(ctx, tx, ids, priceDelta, countDelta, asOf)
}

func category(id uuid.UUID, name string, parent *uuid.UUID) NodeUpsert {
	return NodeUpsert{ID: id, Name: name, Kind: domain.KindCategory, ParentID: parent}
}

func offer(id uuid.UUID, name string, parent *uuid.UUID, price int64) NodeUpsert {
	return NodeUpsert{ID: id, Name: name, Kind: domain.KindOffer, ParentID: parent, Price: &price}
}

func parentOf(id uuid.UUID) *uuid.UUID { return &id }

func findChild(view *TreeView, id uuid.UUID) *TreeView {
	for _, child := range view.Children {
		if child.ID == id {
			return child
		}
	}
	return nil
}
