package reconcile

import (
	"sort"
	"testing"

	"monbot/internal/entity"
)

func group(id int64, disabledAt *int64) entity.HostGroup {
	return entity.HostGroup{ID: id, Title: "g", DisabledAt: disabledAt}
}

func ptr(v int64) *int64 { return &v }

func sortedIDs(ids []int64) []int64 {
	out := append([]int64(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func TestDiffPartition(t *testing.T) {
	t.Parallel()
	// saved: 1 active, 2 active (vanished), 3 disabled (re-appeared),
	// 4 disabled (still gone). actual: 1, 3, 5.
	saved := []entity.HostGroup{
		group(1, nil),
		group(2, nil),
		group(3, ptr(100)),
		group(4, ptr(100)),
	}
	actual := []entity.HostGroup{group(1, nil), group(3, nil), group(5, nil)}

	d := diffByID(actual, saved)

	if len(d.New) != 1 || d.New[0].ID != 5 {
		t.Fatalf("New = %+v, want [5]", d.New)
	}
	if got := sortedIDs(d.Enable); len(got) != 1 || got[0] != 3 {
		t.Fatalf("Enable = %v, want [3]", got)
	}
	if got := sortedIDs(d.Disable); len(got) != 1 || got[0] != 2 {
		t.Fatalf("Disable = %v, want [2]", got)
	}
	// 1 (untouched active) and 4 (untouched disabled) appear nowhere.
	for _, id := range append(d.Enable, d.Disable...) {
		if id == 1 || id == 4 {
			t.Fatalf("id %d should be untouched", id)
		}
	}
}

func TestDiffNoRedisable(t *testing.T) {
	t.Parallel()
	saved := []entity.HostGroup{group(7, ptr(100))}

	d := diffByID(nil, saved)
	if !d.Empty() {
		t.Fatalf("expected empty diff for already-disabled absent entity, got %+v", d)
	}
}

func TestDiffIdempotent(t *testing.T) {
	t.Parallel()
	actual := []entity.HostGroup{group(1, nil), group(2, nil)}

	first := diffByID(actual, nil)
	if len(first.New) != 2 {
		t.Fatalf("first pass New = %+v", first.New)
	}

	// Saved now matches actual: second pass must be a no-op.
	second := diffByID(actual, actual)
	if !second.Empty() {
		t.Fatalf("second pass not empty: %+v", second)
	}
}

func TestDiffMembershipsScopedPerGroup(t *testing.T) {
	t.Parallel()
	h10 := entity.Host{ID: 10, Title: "web-1"}
	h11 := entity.Host{ID: 11, Title: "web-2"}

	saved := map[int64][]entity.Host{1: {h10}}
	// Host 10 joins group 2 while already known under group 1; host 11 is
	// globally new in group 1.
	actual := map[int64][]entity.Host{
		1: {h10, h11},
		2: {h10},
	}

	ms := diffMemberships(actual, saved)
	if len(ms) != 2 {
		t.Fatalf("got %d memberships, want 2: %+v", len(ms), ms)
	}
	found := map[[2]int64]bool{}
	for _, m := range ms {
		found[[2]int64{m.HostGroupID, m.Host.ID}] = true
	}
	if !found[[2]int64{1, 11}] || !found[[2]int64{2, 10}] {
		t.Fatalf("memberships = %+v", ms)
	}
}

func TestDiffMembershipsDedupWithinGroup(t *testing.T) {
	t.Parallel()
	h := entity.Host{ID: 10, Title: "web-1"}
	actual := map[int64][]entity.Host{1: {h, h}}

	ms := diffMemberships(actual, nil)
	if len(ms) != 1 {
		t.Fatalf("duplicate snapshot rows should insert once, got %+v", ms)
	}
}
