package round_test

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"duelpool/internal/round"
)

func TestParseSide(t *testing.T) {
	if s, err := round.ParseSide("red"); err != nil || s != round.SideRed {
		t.Errorf("red: got %v, %v", s, err)
	}
	if s, err := round.ParseSide("black"); err != nil || s != round.SideBlack {
		t.Errorf("black: got %v, %v", s, err)
	}
	if _, err := round.ParseSide("green"); err == nil {
		t.Error("expected error for unknown side")
	}
}

func TestSide_StringRoundTrip(t *testing.T) {
	for _, s := range []round.Side{round.SideRed, round.SideBlack} {
		parsed, err := round.ParseSide(s.String())
		if err != nil || parsed != s {
			t.Errorf("round-trip %v: got %v, %v", s, parsed, err)
		}
	}
}

func TestRegistry_Append_AssignsSequentialIDs(t *testing.T) {
	rg := round.NewRegistry()
	now := time.Now()

	r0 := rg.Append(uuid.New(), round.SideRed, 100, 1, now)
	r1 := rg.Append(uuid.New(), round.SideBlack, 200, 1, now)

	if r0.ID != 0 || r1.ID != 1 {
		t.Errorf("ids: got %d, %d; want 0, 1", r0.ID, r1.ID)
	}
	if rg.Count() != 2 {
		t.Errorf("count: got %d, want 2", rg.Count())
	}
}

func TestRegistry_Append_SideMapping(t *testing.T) {
	rg := round.NewRegistry()
	creator := uuid.New()
	now := time.Now()

	red := rg.Append(creator, round.SideRed, 100, 1, now)
	if red.SideA != creator || red.SideB != uuid.Nil {
		t.Error("red choice should occupy side A")
	}

	black := rg.Append(creator, round.SideBlack, 100, 1, now)
	if black.SideB != creator || black.SideA != uuid.Nil {
		t.Error("black choice should occupy side B")
	}
}

func TestRegistry_Get_StrictBounds(t *testing.T) {
	rg := round.NewRegistry()
	rg.Append(uuid.New(), round.SideRed, 100, 1, time.Now())

	if _, err := rg.Get(0); err != nil {
		t.Errorf("existing id: %v", err)
	}
	if _, err := rg.Get(1); err != round.ErrRoundNotFound {
		t.Errorf("one past end: got %v, want ErrRoundNotFound", err)
	}
	if _, err := rg.Get(-1); err != round.ErrRoundNotFound {
		t.Errorf("negative id: got %v, want ErrRoundNotFound", err)
	}
}

func TestRound_OpenSlot(t *testing.T) {
	rg := round.NewRegistry()
	creator := uuid.New()
	r := rg.Append(creator, round.SideRed, 100, 1, time.Now())

	slot := r.OpenSlot()
	if slot == nil {
		t.Fatal("open round should have a free slot")
	}

	entrant := uuid.New()
	*slot = entrant
	if r.SideB != entrant {
		t.Error("free slot should have been side B")
	}
	if !r.IsFull() {
		t.Error("round should be full after filling the slot")
	}
	if r.OpenSlot() != nil {
		t.Error("full round has no open slot")
	}
}

func TestRound_HasParticipant(t *testing.T) {
	rg := round.NewRegistry()
	creator := uuid.New()
	r := rg.Append(creator, round.SideBlack, 100, 1, time.Now())

	if !r.HasParticipant(creator) {
		t.Error("creator is a participant")
	}
	if r.HasParticipant(uuid.New()) {
		t.Error("stranger is not a participant")
	}
}

func TestRound_IsTerminal(t *testing.T) {
	rg := round.NewRegistry()
	r := rg.Append(uuid.New(), round.SideRed, 100, 1, time.Now())

	if r.IsTerminal() {
		t.Error("open round is not terminal")
	}
	r.Status = round.StatusResolved
	if !r.IsTerminal() {
		t.Error("resolved round is terminal")
	}
	r.Status = round.StatusClosed
	if !r.IsTerminal() {
		t.Error("closed round is terminal")
	}
}

func TestRegistry_Restore_InOrder(t *testing.T) {
	rg := round.NewRegistry()
	now := time.Now()

	rg.Restore(&round.Round{ID: 0, Status: round.StatusResolved, CreatedAt: now})
	rg.Restore(&round.Round{ID: 1, Status: round.StatusOpen, StakeTotal: 100, CreatedAt: now})

	if rg.Count() != 2 {
		t.Fatalf("count after restore: got %d, want 2", rg.Count())
	}
	r, err := rg.Get(1)
	if err != nil {
		t.Fatalf("get restored: %v", err)
	}
	if r.StakeTotal != 100 {
		t.Errorf("restored stake: got %d, want 100", r.StakeTotal)
	}
}
