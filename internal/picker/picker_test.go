package picker

import (
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/pavelanni/rollcall/internal/model"
)

func roster(ids ...string) []model.Student {
	var out []model.Student
	for _, id := range ids {
		out = append(out, model.Student{ID: id, StudentNumber: "n-" + id})
	}
	return out
}

func TestPickNextUnassessedOnly(t *testing.T) {
	p := New(rand.NewPCG(1, 2))
	students := roster("s1", "s2", "s3", "s4")
	assessed := map[string]bool{"s1": true, "s3": true}

	for i := 0; i < 200; i++ {
		got, err := p.PickNext(students, assessed)
		if err != nil {
			t.Fatalf("PickNext: %v", err)
		}
		if assessed[got.ID] {
			t.Fatalf("picked assessed student %q while unassessed ones remain", got.ID)
		}
	}
}

func TestPickNextFreshRosterIsFair(t *testing.T) {
	p := New(rand.NewPCG(7, 11))
	students := roster("s1", "s2")
	counts := map[string]int{}

	const trials = 4000
	for i := 0; i < trials; i++ {
		got, err := p.PickNext(students, nil)
		if err != nil {
			t.Fatalf("PickNext returned %v on a fresh roster", err)
		}
		counts[got.ID]++
	}
	for _, id := range []string{"s1", "s2"} {
		share := float64(counts[id]) / trials
		if share < 0.45 || share > 0.55 {
			t.Errorf("student %s picked %.3f of the time, want about 0.5", id, share)
		}
	}
}

func TestPickNextCycleComplete(t *testing.T) {
	students := roster("s1", "s2")
	now := time.Now()
	log := []model.Assessment{
		{StudentID: "s1", Score: model.ScoreCorrect, Date: now},
		{StudentID: "s2", Score: model.ScoreWrong, Date: now},
	}

	_, err := PickNext(students, AssessedSet(log, time.Time{}))
	if !errors.Is(err, ErrCycleComplete) {
		t.Fatalf("expected ErrCycleComplete, got %v", err)
	}
}

func TestPickNextEmptyRoster(t *testing.T) {
	tests := []struct {
		name     string
		assessed map[string]bool
	}{
		{"no history", nil},
		{"stale history", map[string]bool{"gone": true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PickNext(nil, tt.assessed)
			if !errors.Is(err, ErrEmptyRoster) {
				t.Fatalf("expected ErrEmptyRoster, got %v", err)
			}
			if errors.Is(err, ErrCycleComplete) {
				t.Fatal("empty roster must not report a complete cycle")
			}
		})
	}
}

func TestDrawCoversWholeRoster(t *testing.T) {
	p := New(rand.NewPCG(3, 5))
	students := roster("s1", "s2", "s3")
	seen := map[string]bool{}
	for i := 0; i < 300; i++ {
		got, err := p.Draw(students)
		if err != nil {
			t.Fatalf("Draw: %v", err)
		}
		seen[got.ID] = true
	}
	if len(seen) != 3 {
		t.Errorf("expected all 3 students drawn, got %v", seen)
	}

	if _, err := p.Draw(nil); !errors.Is(err, ErrEmptyRoster) {
		t.Errorf("Draw(nil) = %v, want ErrEmptyRoster", err)
	}
}

func TestAssessedSetRespectsCycleStart(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	log := []model.Assessment{
		{StudentID: "old", Date: start.Add(-time.Hour)},
		{StudentID: "edge", Date: start},
		{StudentID: "new", Date: start.Add(time.Minute)},
	}

	all := AssessedSet(log, time.Time{})
	if len(all) != 3 {
		t.Errorf("zero since: expected 3 ids, got %v", all)
	}

	current := AssessedSet(log, start)
	if current["old"] {
		t.Error("assessment before cycle start should not count")
	}
	if !current["edge"] || !current["new"] {
		t.Errorf("expected edge and new in set, got %v", current)
	}
}

func TestNextAfterCycleReset(t *testing.T) {
	start := time.Now()
	state := model.ClassState{
		Class:    model.Class{ID: "c1", CycleStartedAt: &start},
		Students: roster("s1", "s2"),
		Assessments: []model.Assessment{
			{StudentID: "s1", Date: start.Add(-time.Minute)},
			{StudentID: "s2", Date: start.Add(-time.Minute)},
			{StudentID: "s2", Date: start.Add(time.Second)},
		},
	}

	for i := 0; i < 50; i++ {
		got, err := Next(state)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if got.ID != "s1" {
			t.Fatalf("expected s1 (only student unassessed since reset), got %s", got.ID)
		}
	}
}

func TestSkipDoesNotChangeEligibility(t *testing.T) {
	students := roster("s1", "s2", "s3")
	var log []model.Assessment

	// Skipping is picking again without recording anything.
	for i := 0; i < 5; i++ {
		if _, err := PickNext(students, AssessedSet(log, time.Time{})); err != nil {
			t.Fatalf("skip %d: %v", i+1, err)
		}
	}
	if len(log) != 0 {
		t.Fatalf("skips created %d assessments", len(log))
	}
	if got := AssessedSet(log, time.Time{}); len(got) != 0 {
		t.Errorf("expected no assessed students after skips, got %v", got)
	}
}
