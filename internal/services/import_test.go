package services

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/treeprice/catalog-backend/internal/data/repos/testutil"
)

var (
	batchT1 = time.Date(2022, 2, 1, 12, 0, 0, 0, time.UTC)
	batchT2 = time.Date(2022, 2, 2, 12, 0, 0, 0, time.UTC)
	batchT3 = time.Date(2022, 2, 3, 12, 0, 0, 0, time.UTC)
)

func TestImportAggregatesThreeLevelTree(t *testing.T) {
	env := newTestEnv(t)
	root, cat, o1, o2 := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	// Parent appears after its children in the batch on purpose.
	env.mustImport(t, []NodeUpsert{
		offer(o1, "offer-100", parentOf(cat), 100),
		offer(o2, "offer-200", parentOf(cat), 200),
		category(cat, "inner", parentOf(root)),
		category(root, "root", nil),
	}, batchT1)

	catNode := env.mustNode(t, cat)
	if catNode.PriceSum != 300 || catNode.OfferCount != 2 {
		t.Fatalf("category aggregate = (%d, %d), want (300, 2)", catNode.PriceSum, catNode.OfferCount)
	}
	if price := catNode.DisplayPrice(); price == nil || *price != 150 {
		t.Fatalf("category price = %v, want 150", price)
	}

	rootNode := env.mustNode(t, root)
	if rootNode.PriceSum != 300 || rootNode.OfferCount != 2 {
		t.Fatalf("root aggregate = (%d, %d), want (300, 2)", rootNode.PriceSum, rootNode.OfferCount)
	}
	if !rootNode.UpdateDate.Equal(batchT1) {
		t.Fatalf("root update_date = %v, want %v", rootNode.UpdateDate, batchT1)
	}
}

func TestImportEmptyCategoryHasNilPrice(t *testing.T) {
	env := newTestEnv(t)
	cat := uuid.New()

	env.mustImport(t, []NodeUpsert{category(cat, "empty", nil)}, batchT1)

	node := env.mustNode(t, cat)
	if node.OfferCount != 0 {
		t.Fatalf("offer count = %d, want 0", node.OfferCount)
	}
	if price := node.DisplayPrice(); price != nil {
		t.Fatalf("empty category price = %d, want nil", *price)
	}
}

func TestImportOfferPriceUpdate(t *testing.T) {
	env := newTestEnv(t)
	root, off := uuid.New(), uuid.New()

	env.mustImport(t, []NodeUpsert{
		category(root, "root", nil),
		offer(off, "offer", parentOf(root), 100),
	}, batchT1)
	env.mustImport(t, []NodeUpsert{
		offer(off, "offer", parentOf(root), 250),
	}, batchT2)

	offNode := env.mustNode(t, off)
	if offNode.PriceSum != 250 || offNode.OfferCount != 1 {
		t.Fatalf("offer = (%d, %d), want (250, 1)", offNode.PriceSum, offNode.OfferCount)
	}
	rootNode := env.mustNode(t, root)
	if rootNode.PriceSum != 250 || rootNode.OfferCount != 1 {
		t.Fatalf("root aggregate = (%d, %d), want (250, 1)", rootNode.PriceSum, rootNode.OfferCount)
	}
	if !rootNode.UpdateDate.Equal(batchT2) {
		t.Fatalf("root update_date = %v, want %v", rootNode.UpdateDate, batchT2)
	}
}

func TestImportReparentMovesAggregate(t *testing.T) {
	env := newTestEnv(t)
	root, catC, catD, o1, o2 := uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New()

	env.mustImport(t, []NodeUpsert{
		category(root, "root", nil),
		category(catC, "C", parentOf(root)),
		category(catD, "D", parentOf(root)),
		offer(o1, "cheap", parentOf(catC), 100),
		offer(o2, "dear", parentOf(catC), 200),
	}, batchT1)

	// Move the cheap offer from C to D. Both legs are under the same root,
	// so the root's aggregate must come out unchanged.
	env.mustImport(t, []NodeUpsert{
		offer(o1, "cheap", parentOf(catD), 100),
	}, batchT2)

	cNode := env.mustNode(t, catC)
	if cNode.PriceSum != 200 || cNode.OfferCount != 1 {
		t.Fatalf("C aggregate = (%d, %d), want (200, 1)", cNode.PriceSum, cNode.OfferCount)
	}
	dNode := env.mustNode(t, catD)
	if dNode.PriceSum != 100 || dNode.OfferCount != 1 {
		t.Fatalf("D aggregate = (%d, %d), want (100, 1)", dNode.PriceSum, dNode.OfferCount)
	}
	rootNode := env.mustNode(t, root)
	if rootNode.PriceSum != 300 || rootNode.OfferCount != 2 {
		t.Fatalf("root aggregate = (%d, %d), want (300, 2)", rootNode.PriceSum, rootNode.OfferCount)
	}
	if price := rootNode.DisplayPrice(); price == nil || *price != 150 {
		t.Fatalf("root price = %v, want 150", price)
	}
	if !rootNode.UpdateDate.Equal(batchT2) {
		t.Fatalf("root update_date = %v, want %v", rootNode.UpdateDate, batchT2)
	}
}

func TestImportReparentCategoryCarriesSubtree(t *testing.T) {
	env := newTestEnv(t)
	rootA, rootB, cat, off := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	env.mustImport(t, []NodeUpsert{
		category(rootA, "A", nil),
		category(rootB, "B", nil),
		category(cat, "movable", parentOf(rootA)),
		offer(off, "offer", parentOf(cat), 500),
	}, batchT1)

	env.mustImport(t, []NodeUpsert{
		category(cat, "movable", parentOf(rootB)),
	}, batchT2)

	aNode := env.mustNode(t, rootA)
	if aNode.PriceSum != 0 || aNode.OfferCount != 0 {
		t.Fatalf("A aggregate = (%d, %d), want (0, 0)", aNode.PriceSum, aNode.OfferCount)
	}
	bNode := env.mustNode(t, rootB)
	if bNode.PriceSum != 500 || bNode.OfferCount != 1 {
		t.Fatalf("B aggregate = (%d, %d), want (500, 1)", bNode.PriceSum, bNode.OfferCount)
	}
}

func TestImportCategoryRenameStampsAncestors(t *testing.T) {
	env := newTestEnv(t)
	root, cat, off := uuid.New(), uuid.New(), uuid.New()

	env.mustImport(t, []NodeUpsert{
		category(root, "root", nil),
		category(cat, "inner", parentOf(root)),
		offer(off, "offer", parentOf(cat), 100),
	}, batchT1)

	// A pure rename carries no aggregate delta, but the batch date still
	// travels up the whole chain.
	env.mustImport(t, []NodeUpsert{
		category(cat, "renamed", parentOf(root)),
	}, batchT2)

	catNode := env.mustNode(t, cat)
	if catNode.Name != "renamed" || !catNode.UpdateDate.Equal(batchT2) {
		t.Fatalf("category = %q at %v", catNode.Name, catNode.UpdateDate)
	}
	if catNode.PriceSum != 100 || catNode.OfferCount != 1 {
		t.Fatalf("category aggregate = (%d, %d), want (100, 1)", catNode.PriceSum, catNode.OfferCount)
	}
	rootNode := env.mustNode(t, root)
	if !rootNode.UpdateDate.Equal(batchT2) {
		t.Fatalf("root update_date = %v, want %v", rootNode.UpdateDate, batchT2)
	}
	offNode := env.mustNode(t, off)
	if !offNode.UpdateDate.Equal(batchT1) {
		t.Fatalf("offer update_date = %v, want untouched %v", offNode.UpdateDate, batchT1)
	}
}

func TestImportRejectsTypeChange(t *testing.T) {
	env := newTestEnv(t)
	id := uuid.New()

	env.mustImport(t, []NodeUpsert{offer(id, "offer", nil, 100)}, batchT1)

	err := env.imp.ImportBatch(env.dbc, []NodeUpsert{category(id, "now-a-category", nil)}, batchT2)
	if !errors.Is(err, ErrTypeChange) {
		t.Fatalf("err = %v, want ErrTypeChange", err)
	}

	// The rejected batch must leave the node untouched.
	node := env.mustNode(t, id)
	if node.Name != "offer" || !node.UpdateDate.Equal(batchT1) {
		t.Fatalf("node mutated by rejected batch: %+v", node)
	}
}

func TestImportRejectsDuplicateIDs(t *testing.T) {
	env := newTestEnv(t)
	id := uuid.New()

	err := env.imp.ImportBatch(env.dbc, []NodeUpsert{
		offer(id, "first", nil, 100),
		offer(id, "second", nil, 200),
	}, batchT1)
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("err = %v, want ErrDuplicateID", err)
	}

	node, err := env.repos.Node.Get(env.dbc.Ctx, nil, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if node != nil {
		t.Fatalf("rejected batch inserted node %+v", node)
	}
}

func TestImportToleratesUnknownParent(t *testing.T) {
	env := newTestEnv(t)
	off, ghost := uuid.New(), uuid.New()

	env.mustImport(t, []NodeUpsert{offer(off, "orphan", parentOf(ghost), 100)}, batchT1)

	node := env.mustNode(t, off)
	if node.ParentID == nil || *node.ParentID != ghost {
		t.Fatalf("parent = %v, want %s", node.ParentID, ghost)
	}
	if node.PriceSum != 100 || node.OfferCount != 1 {
		t.Fatalf("offer = (%d, %d), want (100, 1)", node.PriceSum, node.OfferCount)
	}
}

func TestImportRejectsOfferAsParent(t *testing.T) {
	env := newTestEnv(t)
	parent, child := uuid.New(), uuid.New()

	env.mustImport(t, []NodeUpsert{offer(parent, "parent-offer", nil, 100)}, batchT1)

	// Parenting under an offer would fold the child's price into the offer's
	// own aggregate and silently change its displayed price.
	err := env.imp.ImportBatch(env.dbc, []NodeUpsert{offer(child, "child", parentOf(parent), 200)}, batchT2)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}

	node := env.mustNode(t, parent)
	if node.PriceSum != 100 || node.OfferCount != 1 {
		t.Fatalf("offer aggregate = (%d, %d), want (100, 1)", node.PriceSum, node.OfferCount)
	}
	if price := node.DisplayPrice(); price == nil || *price != 100 {
		t.Fatalf("offer price = %v, want 100", price)
	}
	if !node.UpdateDate.Equal(batchT1) {
		t.Fatalf("offer update_date = %v, want untouched %v", node.UpdateDate, batchT1)
	}
}

func TestImportRejectsOfferAsParentWithinBatch(t *testing.T) {
	env := newTestEnv(t)
	parent, child := uuid.New(), uuid.New()

	err := env.imp.ImportBatch(env.dbc, []NodeUpsert{
		offer(parent, "parent-offer", nil, 100),
		category(child, "child", parentOf(parent)),
	}, batchT1)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}

	node, err := env.repos.Node.Get(env.dbc.Ctx, nil, parent)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if node != nil {
		t.Fatalf("rejected batch inserted node %+v", node)
	}
}

func TestImportRejectsSelfParent(t *testing.T) {
	env := newTestEnv(t)
	id := uuid.New()

	err := env.imp.ImportBatch(env.dbc, []NodeUpsert{category(id, "loop", parentOf(id))}, batchT1)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestImportRejectsParentLoopInBatch(t *testing.T) {
	env := newTestEnv(t)
	a, b := uuid.New(), uuid.New()

	err := env.imp.ImportBatch(env.dbc, []NodeUpsert{
		category(a, "a", parentOf(b)),
		category(b, "b", parentOf(a)),
	}, batchT1)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestImportRejectsReparentUnderDescendant(t *testing.T) {
	env := newTestEnv(t)
	root, child := uuid.New(), uuid.New()

	env.mustImport(t, []NodeUpsert{
		category(root, "root", nil),
		category(child, "child", parentOf(root)),
	}, batchT1)

	err := env.imp.ImportBatch(env.dbc, []NodeUpsert{category(root, "root", parentOf(child))}, batchT2)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}

	node := env.mustNode(t, root)
	if node.ParentID != nil {
		t.Fatalf("root parent = %v, want nil", node.ParentID)
	}
}

func TestImportRejectsReparentSwapLoop(t *testing.T) {
	env := newTestEnv(t)
	root, x, y := uuid.New(), uuid.New(), uuid.New()

	env.mustImport(t, []NodeUpsert{
		category(root, "root", nil),
		category(x, "x", parentOf(root)),
		category(y, "y", parentOf(root)),
	}, batchT1)

	// Each move is legal against the pre-batch tree; together they close a
	// loop, which the second check catches against the first applied move.
	err := env.imp.ImportBatch(env.dbc, []NodeUpsert{
		category(x, "x", parentOf(y)),
		category(y, "y", parentOf(x)),
	}, batchT2)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}

	// The whole batch rolls back, including the first move.
	for _, id := range []uuid.UUID{x, y} {
		node := env.mustNode(t, id)
		if node.ParentID == nil || *node.ParentID != root {
			t.Fatalf("node %s parent = %v, want %s", id, node.ParentID, root)
		}
	}
}

func TestImportRejectsEmptyName(t *testing.T) {
	env := newTestEnv(t)

	err := env.imp.ImportBatch(env.dbc, []NodeUpsert{category(uuid.New(), "", nil)}, batchT1)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestImportEmptyBatchIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	if err := env.imp.ImportBatch(env.dbc, nil, batchT1); err != nil {
		t.Fatalf("ImportBatch: %v", err)
	}
}

func TestImportAppliesDeltaGroupsInChainOrder(t *testing.T) {
	env := newTestEnv(t)
	recorder := &aggregateRecorder{NodeRepo: env.repos.Node}
	imp := NewImportService(env.db, testutil.Logger(t), recorder, env.repos.NodeSnapshot, nil)

	root, c1, c2, o1, o2 := uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New()
	err := imp.ImportBatch(env.dbc, []NodeUpsert{
		offer(o1, "offer-1", parentOf(c1), 100),
		offer(o2, "offer-2", parentOf(c2), 200),
		category(c1, "c1", parentOf(root)),
		category(c2, "c2", parentOf(root)),
		category(root, "root", nil),
	}, batchT1)
	if err != nil {
		t.Fatalf("ImportBatch: %v", err)
	}

	// Delta groups fire in first-touched chain order, pinning the row lock
	// acquisition order across concurrent batches.
	want := [][]uuid.UUID{{c1}, {root}, {c2}}
	if len(recorder.calls) != len(want) {
		t.Fatalf("aggregate calls = %d, want %d (%v)", len(recorder.calls), len(want), recorder.calls)
	}
	for i, ids := range want {
		if len(recorder.calls[i]) != len(ids) {
			t.Fatalf("call %d = %v, want %v", i, recorder.calls[i], ids)
		}
		for j, id := range ids {
			if recorder.calls[i][j] != id {
				t.Fatalf("call %d = %v, want %v", i, recorder.calls[i], ids)
			}
		}
	}
}

func TestImportWritesSnapshotPerTouchedNode(t *testing.T) {
	env := newTestEnv(t)
	root, cat, off := uuid.New(), uuid.New(), uuid.New()

	env.mustImport(t, []NodeUpsert{
		category(root, "root", nil),
		category(cat, "inner", parentOf(root)),
	}, batchT1)
	env.mustImport(t, []NodeUpsert{
		offer(off, "offer", parentOf(cat), 100),
	}, batchT2)

	// Batch one touches root and cat; batch two touches all three.
	wantRows := map[uuid.UUID]int{root: 2, cat: 2, off: 1}
	for id, want := range wantRows {
		history, err := env.repos.NodeSnapshot.History(env.dbc.Ctx, nil, id, nil, nil)
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		if len(history) != want {
			t.Fatalf("node %s has %d snapshots, want %d", id, len(history), want)
		}
	}

	// The second batch's root snapshot carries the propagated aggregate.
	history, err := env.repos.NodeSnapshot.History(env.dbc.Ctx, nil, root, &batchT2, nil)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 || history[0].PriceSum != 100 || history[0].OfferCount != 1 {
		t.Fatalf("root snapshot at t2 = %+v", history)
	}
}
