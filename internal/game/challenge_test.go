package game

import (
	"testing"
	"time"
)

func TestChallengeCreate(t *testing.T) {
	r := NewChallengeRegistry()
	now := time.Now()

	ch, err := r.Create(testIdentity(1), testIdentity(2), now)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ch.Status != ChallengePending {
		t.Errorf("status = %s, want %s", ch.Status, ChallengePending)
	}
	if ch.ID == "" {
		t.Error("challenge id should be assigned")
	}
	if !r.HasUser(1) || !r.HasUser(2) {
		t.Error("both parties should be marked as engaged")
	}
}

func TestChallengeCreateRejections(t *testing.T) {
	r := NewChallengeRegistry()
	now := time.Now()
	if _, err := r.Create(testIdentity(1), testIdentity(2), now); err != nil {
		t.Fatalf("seed create: %v", err)
	}

	tests := []struct {
		name       string
		challenger uint
		target     uint
		wantCode   Code
	}{
		{"self challenge", 3, 3, CodeSelfChallenge},
		{"duplicate same direction", 1, 2, CodeDuplicateChallenge},
		{"duplicate reversed direction", 2, 1, CodeDuplicateChallenge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Create(testIdentity(tt.challenger), testIdentity(tt.target), now)
			ge, ok := AsGameError(err)
			if !ok || ge.Code != tt.wantCode {
				t.Errorf("error = %v, want code %s", err, tt.wantCode)
			}
		})
	}
}

func TestChallengeResolutionPermissions(t *testing.T) {
	tests := []struct {
		name     string
		resolve  func(r *ChallengeRegistry, id string, by uint) (*Challenge, error)
		by       uint
		wantCode Code
		wantOK   ChallengeStatus
	}{
		{"target accepts", (*ChallengeRegistry).Accept, 2, "", ChallengeAccepted},
		{"challenger cannot accept", (*ChallengeRegistry).Accept, 1, CodeNotTarget, ""},
		{"target declines", (*ChallengeRegistry).Decline, 2, "", ChallengeDeclined},
		{"challenger cannot decline", (*ChallengeRegistry).Decline, 1, CodeNotTarget, ""},
		{"challenger cancels", (*ChallengeRegistry).Cancel, 1, "", ChallengeCancelled},
		{"target cannot cancel", (*ChallengeRegistry).Cancel, 2, CodeNotChallenger, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewChallengeRegistry()
			ch, err := r.Create(testIdentity(1), testIdentity(2), time.Now())
			if err != nil {
				t.Fatalf("create: %v", err)
			}

			resolved, err := tt.resolve(r, ch.ID, tt.by)
			if tt.wantCode != "" {
				ge, ok := AsGameError(err)
				if !ok || ge.Code != tt.wantCode {
					t.Fatalf("error = %v, want code %s", err, tt.wantCode)
				}
				if r.Len() != 1 {
					t.Error("a rejected resolution must leave the challenge pending")
				}
				return
			}
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if resolved.Status != tt.wantOK {
				t.Errorf("status = %s, want %s", resolved.Status, tt.wantOK)
			}
			if r.Len() != 0 {
				t.Error("a resolved challenge must leave the registry")
			}
		})
	}
}

func TestChallengeResolveUnknownID(t *testing.T) {
	r := NewChallengeRegistry()
	_, err := r.Accept("no-such-id", 1)
	ge, ok := AsGameError(err)
	if !ok || ge.Code != CodeNotFound {
		t.Errorf("error = %v, want code %s", err, CodeNotFound)
	}
}

func TestChallengeResolveTwice(t *testing.T) {
	r := NewChallengeRegistry()
	ch, err := r.Create(testIdentity(1), testIdentity(2), time.Now())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := r.Decline(ch.ID, 2); err != nil {
		t.Fatalf("first decline: %v", err)
	}

	_, err = r.Decline(ch.ID, 2)
	ge, ok := AsGameError(err)
	if !ok || ge.Code != CodeNotFound {
		t.Errorf("second decline error = %v, want code %s", err, CodeNotFound)
	}
}

func TestChallengeRemoveForUser(t *testing.T) {
	r := NewChallengeRegistry()
	now := time.Now()
	r.Create(testIdentity(1), testIdentity(2), now)
	r.Create(testIdentity(3), testIdentity(1), now)
	r.Create(testIdentity(4), testIdentity(5), now)

	removed := r.RemoveForUser(1)
	if len(removed) != 2 {
		t.Fatalf("removed %d challenges, want 2", len(removed))
	}
	for _, ch := range removed {
		if ch.Status != ChallengeCancelled {
			t.Errorf("removed challenge status = %s, want %s", ch.Status, ChallengeCancelled)
		}
	}
	if r.Len() != 1 {
		t.Errorf("registry length = %d after removal, want 1", r.Len())
	}
	if r.HasUser(1) {
		t.Error("user 1 should no longer be engaged")
	}
}

func TestChallengeExpire(t *testing.T) {
	r := NewChallengeRegistry()
	base := time.Now()
	stale, _ := r.Create(testIdentity(1), testIdentity(2), base)
	r.Create(testIdentity(3), testIdentity(4), base.Add(30*time.Second))

	expired := r.Expire(base.Add(time.Minute), time.Minute)
	if len(expired) != 1 || expired[0].ID != stale.ID {
		t.Fatalf("expired %d challenges, want just the stale one", len(expired))
	}
	if expired[0].Status != ChallengeExpired {
		t.Errorf("status = %s, want %s", expired[0].Status, ChallengeExpired)
	}
	if r.Len() != 1 {
		t.Errorf("registry length = %d after expiry, want 1", r.Len())
	}
}
