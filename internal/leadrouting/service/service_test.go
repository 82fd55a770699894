package service

import (
	"context"
	"testing"

	"zapflow_backend/internal/leadrouting/repository"
	"zapflow_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type fakeRepo struct {
	enabled    bool
	lastIndex  int
	candidates []repository.Candidate

	assignedUsers []uuid.UUID
	skips         []string
}

func (f *fakeRepo) AssignInTx(ctx context.Context, connectionID uuid.UUID, fn func(tx pgx.Tx, enabled bool, lastIndex int) error) error {
	return fn(nil, f.enabled, f.lastIndex)
}

func (f *fakeRepo) Candidates(ctx context.Context, tx pgx.Tx, connectionID uuid.UUID) ([]repository.Candidate, error) {
	return f.candidates, nil
}

func (f *fakeRepo) RecordAssignment(ctx context.Context, tx pgx.Tx, connectionID, memberID uuid.UUID, userID, contactID uuid.UUID, newIndex int) error {
	f.assignedUsers = append(f.assignedUsers, userID)
	f.lastIndex = newIndex
	return nil
}

func (f *fakeRepo) RecordSkip(ctx context.Context, tx pgx.Tx, connectionID, contactID uuid.UUID, reason string) error {
	f.skips = append(f.skips, reason)
	return nil
}

func newTestService(repo *fakeRepo) *Service {
	return New(repo, logger.New("development"))
}

func TestSelectNext_RoundRobinFairness(t *testing.T) {
	userA, userB, userC := uuid.New(), uuid.New(), uuid.New()
	repo := &fakeRepo{
		enabled:   true,
		lastIndex: -1,
		candidates: []repository.Candidate{
			{ID: uuid.New(), UserID: userA},
			{ID: uuid.New(), UserID: userB},
			{ID: uuid.New(), UserID: userC},
		},
	}
	svc := newTestService(repo)
	connectionID := uuid.New()

	counts := make(map[uuid.UUID]int)
	for i := 0; i < 9; i++ {
		assignment, err := svc.SelectNext(context.Background(), connectionID, uuid.New())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !assignment.Assigned {
			t.Fatalf("expected assignment on lead %d", i)
		}
		counts[assignment.UserID]++
	}

	for _, user := range []uuid.UUID{userA, userB, userC} {
		if counts[user] != 3 {
			t.Fatalf("expected 3 leads per member, got %v", counts)
		}
	}

	// First three assignments walk the roster in order.
	want := []uuid.UUID{userA, userB, userC}
	for i, user := range want {
		if repo.assignedUsers[i] != user {
			t.Fatalf("assignment %d went to the wrong member", i)
		}
	}
}

func TestSelectNext_DistributionDisabled(t *testing.T) {
	repo := &fakeRepo{enabled: false}
	svc := newTestService(repo)

	assignment, err := svc.SelectNext(context.Background(), uuid.New(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if assignment.Assigned {
		t.Fatalf("disabled connection must not assign")
	}
	if assignment.Reason != ReasonDisabled {
		t.Fatalf("expected %q, got %q", ReasonDisabled, assignment.Reason)
	}
	if len(repo.skips) != 1 || repo.skips[0] != ReasonDisabled {
		t.Fatalf("expected skip log, got %v", repo.skips)
	}
}

func TestSelectNext_NoCandidates(t *testing.T) {
	repo := &fakeRepo{enabled: true, lastIndex: 4}
	svc := newTestService(repo)

	assignment, err := svc.SelectNext(context.Background(), uuid.New(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if assignment.Assigned {
		t.Fatalf("empty roster must not assign")
	}
	if assignment.Reason != ReasonNoMembers {
		t.Fatalf("expected %q, got %q", ReasonNoMembers, assignment.Reason)
	}
}

func TestSelectNext_CursorWrapsWhenRosterShrinks(t *testing.T) {
	userA := uuid.New()
	repo := &fakeRepo{
		enabled:   true,
		lastIndex: 7,
		candidates: []repository.Candidate{
			{ID: uuid.New(), UserID: userA},
		},
	}
	svc := newTestService(repo)

	assignment, err := svc.SelectNext(context.Background(), uuid.New(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !assignment.Assigned || assignment.UserID != userA {
		t.Fatalf("expected the only member to be chosen, got %+v", assignment)
	}
	if repo.lastIndex != 0 {
		t.Fatalf("expected cursor to wrap to 0, got %d", repo.lastIndex)
	}
}
