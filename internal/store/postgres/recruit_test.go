package postgres_test

import (
	"context"
	"errors"
	"testing"

	"github.com/kingsalliance/bidbot/internal/store"
	"github.com/kingsalliance/bidbot/internal/store/postgres"
)

func TestRecruitRepo_GetByID(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewRecruitRepo(db)
	ctx := context.Background()

	seedRecruit(t, db, "r1", "user-1", "#TAG1")

	got, err := repo.GetByID(ctx, "r1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.PlayerTag != "#TAG1" {
		t.Errorf("PlayerTag = %q, want %q", got.PlayerTag, "#TAG1")
	}
	if got.ActiveBid {
		t.Error("new recruit should not have an active bid")
	}
	if !got.TicketOpen {
		t.Error("new recruit should have an open ticket")
	}

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetByID missing = %v, want ErrNotFound", err)
	}
}

func TestRecruitRepo_ClaimActiveBid(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewRecruitRepo(db)
	ctx := context.Background()

	seedRecruit(t, db, "r1", "user-1", "#TAG1")

	ok, err := repo.ClaimActiveBid(ctx, "r1")
	if err != nil {
		t.Fatalf("ClaimActiveBid: %v", err)
	}
	if !ok {
		t.Fatal("first claim should succeed")
	}

	// A second claim must lose while the first is held.
	ok, err = repo.ClaimActiveBid(ctx, "r1")
	if err != nil {
		t.Fatalf("ClaimActiveBid second: %v", err)
	}
	if ok {
		t.Fatal("second claim should fail while the latch is held")
	}

	if err := repo.ReleaseActiveBid(ctx, "r1"); err != nil {
		t.Fatalf("ReleaseActiveBid: %v", err)
	}
	ok, err = repo.ClaimActiveBid(ctx, "r1")
	if err != nil {
		t.Fatalf("ClaimActiveBid after release: %v", err)
	}
	if !ok {
		t.Fatal("claim after release should succeed")
	}
}

func TestRecruitRepo_ListAvailableByUser(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewRecruitRepo(db)
	ctx := context.Background()

	seedRecruit(t, db, "r1", "user-1", "#TAG1")
	seedRecruit(t, db, "r2", "user-1", "#TAG2")
	seedRecruit(t, db, "r3", "user-2", "#TAG3")

	// r1 is mid-session, r2 remains available.
	if _, err := repo.ClaimActiveBid(ctx, "r1"); err != nil {
		t.Fatalf("ClaimActiveBid: %v", err)
	}

	avail, err := repo.ListAvailableByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListAvailableByUser: %v", err)
	}
	if len(avail) != 1 || avail[0].ID != "r2" {
		t.Fatalf("available = %v, want just r2", avail)
	}

	// A closed ticket also drops out of the list.
	if err := repo.CloseTicket(ctx, "r2"); err != nil {
		t.Fatalf("CloseTicket: %v", err)
	}
	avail, _ = repo.ListAvailableByUser(ctx, "user-1")
	if len(avail) != 0 {
		t.Fatalf("available after close = %d, want 0", len(avail))
	}
}

func TestRecruitRepo_CountActiveBids(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewRecruitRepo(db)
	ctx := context.Background()

	seedRecruit(t, db, "r1", "user-1", "#TAG1")
	seedRecruit(t, db, "r2", "user-2", "#TAG2")

	n, err := repo.CountActiveBids(ctx)
	if err != nil {
		t.Fatalf("CountActiveBids: %v", err)
	}
	if n != 0 {
		t.Fatalf("CountActiveBids = %d, want 0", n)
	}

	if _, err := repo.ClaimActiveBid(ctx, "r1"); err != nil {
		t.Fatalf("ClaimActiveBid: %v", err)
	}
	n, _ = repo.CountActiveBids(ctx)
	if n != 1 {
		t.Fatalf("CountActiveBids = %d, want 1", n)
	}
}
