package store

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestExchangeRepository_CreateAndGet(t *testing.T) {
	repo := newTestStore(t).Exchanges()

	started := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	e := &Exchange{
		Source:     "gesture",
		Gesture:    "hand_raised",
		Prompt:     "The child raised their hand. How should I respond?",
		Response:   "Hi! Do you have a question?",
		Language:   "en",
		Spoken:     true,
		StartedAt:  started,
		DurationMs: 1840,
	}
	if err := repo.Create(e); err != nil {
		t.Fatalf("Create() = %v", err)
	}
	if _, err := uuid.Parse(e.ID); err != nil {
		t.Errorf("ID %q is not a uuid: %v", e.ID, err)
	}

	got, err := repo.GetByID(e.ID)
	if err != nil {
		t.Fatalf("GetByID() = %v", err)
	}
	if got.Source != e.Source || got.Gesture != e.Gesture || got.Prompt != e.Prompt || got.Response != e.Response {
		t.Errorf("got %+v, want %+v", got, e)
	}
	if !got.Spoken || got.DurationMs != 1840 || got.Language != "en" {
		t.Errorf("got %+v", got)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
}

func TestExchangeRepository_GetByID_NotFound(t *testing.T) {
	repo := newTestStore(t).Exchanges()

	if _, err := repo.GetByID("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() = %v, want ErrNotFound", err)
	}
}

func TestExchangeRepository_RejectsUnknownSource(t *testing.T) {
	repo := newTestStore(t).Exchanges()

	if err := repo.Create(&Exchange{Source: "telepathy", Prompt: "hi"}); err == nil {
		t.Error("Create() should reject an unknown source")
	}
}

func TestExchangeRepository_ListNewestFirst(t *testing.T) {
	repo := newTestStore(t).Exchanges()

	base := time.Now().Add(-time.Hour)
	for i, prompt := range []string{"first", "second", "third"} {
		err := repo.Create(&Exchange{
			Source:    "manual",
			Prompt:    prompt,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Create() = %v", err)
		}
	}

	all, err := repo.List(0)
	if err != nil {
		t.Fatalf("List() = %v", err)
	}
	if len(all) != 3 || all[0].Prompt != "third" || all[2].Prompt != "first" {
		t.Errorf("List() order wrong: %v", prompts(all))
	}

	two, err := repo.List(2)
	if err != nil {
		t.Fatalf("List(2) = %v", err)
	}
	if len(two) != 2 {
		t.Errorf("List(2) returned %d", len(two))
	}
}

func TestExchangeRepository_DeleteBefore(t *testing.T) {
	repo := newTestStore(t).Exchanges()

	now := time.Now()
	repo.Create(&Exchange{Source: "manual", Prompt: "old", StartedAt: now.Add(-48 * time.Hour)})
	repo.Create(&Exchange{Source: "manual", Prompt: "new", StartedAt: now})

	n, err := repo.DeleteBefore(now.Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("DeleteBefore() = %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d, want 1", n)
	}

	rest, _ := repo.List(0)
	if len(rest) != 1 || rest[0].Prompt != "new" {
		t.Errorf("remaining = %v", prompts(rest))
	}
}

func TestExchangeRepository_Stats(t *testing.T) {
	repo := newTestStore(t).Exchanges()

	rows := []*Exchange{
		{Source: "gesture", Gesture: "hand_raised", Prompt: "p", Spoken: true},
		{Source: "gesture", Gesture: "hand_raised", Prompt: "p", Spoken: true},
		{Source: "gesture", Gesture: "fist_closed", Prompt: "p", Error: "respond: 500"},
		{Source: "speech", Prompt: "hello", Spoken: true},
	}
	for _, e := range rows {
		if err := repo.Create(e); err != nil {
			t.Fatalf("Create() = %v", err)
		}
	}

	st, err := repo.Stats()
	if err != nil {
		t.Fatalf("Stats() = %v", err)
	}
	if st.Total != 4 || st.Spoken != 3 || st.Failed != 1 {
		t.Errorf("stats = %+v", st)
	}
	if st.BySource["gesture"] != 3 || st.BySource["speech"] != 1 {
		t.Errorf("BySource = %v", st.BySource)
	}
	if st.ByGesture["hand_raised"] != 2 || st.ByGesture["fist_closed"] != 1 {
		t.Errorf("ByGesture = %v", st.ByGesture)
	}
	if _, ok := st.ByGesture[""]; ok {
		t.Error("speech exchanges should not count under an empty gesture")
	}
}

func TestExchangeRepository_StatsEmpty(t *testing.T) {
	st, err := newTestStore(t).Exchanges().Stats()
	if err != nil {
		t.Fatalf("Stats() = %v", err)
	}
	if st.Total != 0 || st.Spoken != 0 || st.Failed != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func prompts(es []*Exchange) []string {
	var out []string
	for _, e := range es {
		out = append(out, e.Prompt)
	}
	return out
}
