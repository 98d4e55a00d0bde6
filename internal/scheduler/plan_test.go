package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func planKeys(t *testing.T, s *Scheduler) []PlannedTask {
	t.Helper()
	plan, err := s.Plan(context.Background())
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	return plan
}

func TestPlan(t *testing.T) {
	root := t.TempDir()
	g := buildGraph(t, root, twoGroups(), qcRule(), mergeRule())
	r := newFakeRunner(g)
	l := testLedger(t)

	s, err := New(g, r, l, Options{})
	if err != nil {
		t.Fatal(err)
	}
	fresh := planKeys(t, s)
	if len(fresh) != 4 {
		t.Fatalf("fresh plan has %d tasks, want 4: %v", len(fresh), fresh)
	}
	pos := make(map[string]int)
	for i, p := range fresh {
		pos[p.Key] = i
	}
	if pos["qc:A"] > pos["merge:G1"] || pos["qc:B"] > pos["merge:G2"] {
		t.Errorf("plan is not topological: %v", fresh)
	}
	if len(r.Calls()) != 0 {
		t.Fatal("Plan() executed tasks")
	}

	runOnce(t, g, r, l, Options{})
	if plan := planKeys(t, s); len(plan) != 0 {
		t.Errorf("plan after a full run = %v, want empty", plan)
	}

	forced, err := New(g, r, l, Options{Force: []string{"qc:A"}})
	if err != nil {
		t.Fatal(err)
	}
	want := []PlannedTask{
		{Key: "qc:A", Reason: "forced", Command: "touch qc/A.html"},
		{Key: "merge:G1", Reason: "upstream qc:A will run", Command: "sh -c 'cat qc/A.html > merged/G1.txt'"},
	}
	if diff := cmp.Diff(want, planKeys(t, forced)); diff != "" {
		t.Errorf("forced plan mismatch (-want +got):\n%s", diff)
	}
}

func TestPlan_TouchedInput(t *testing.T) {
	root := t.TempDir()
	g := buildGraph(t, root, twoGroups(), qcRule(), mergeRule())
	r := newFakeRunner(g)
	l := testLedger(t)
	runOnce(t, g, r, l, Options{})

	ageAll(t, root, time.Hour)
	touch(t, filepath.Join(root, "reads", "B_1.fq"))

	s, err := New(g, r, l, Options{})
	if err != nil {
		t.Fatal(err)
	}
	var keys []string
	for _, p := range planKeys(t, s) {
		keys = append(keys, p.Key)
	}
	if diff := cmp.Diff([]string{"qc:B", "merge:G2"}, keys); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
}
