package memory

import (
	"context"
	"crypto/sha256"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rhuss/ausweis/pkg/tokens"
)

func testRecord(id, family string, secret string) tokens.Record {
	return tokens.Record{
		ID:         id,
		UserID:     "u-1",
		Username:   "alice",
		Family:     family,
		SecretHash: sha256.Sum256([]byte(secret)),
		ExpiresAt:  time.Now().Add(time.Hour),
	}
}

func next(id string, secret string) tokens.Record {
	return tokens.Record{
		ID:         id,
		SecretHash: sha256.Sum256([]byte(secret)),
		ExpiresAt:  time.Now().Add(time.Hour),
	}
}

func TestRotate(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.Save(ctx, testRecord("r1", "fam", "s1")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Rotate(ctx, "r1", sha256.Sum256([]byte("s1")), next("r2", "s2"))
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if got.ID != "r2" {
		t.Errorf("successor id = %s, want r2", got.ID)
	}
	if got.UserID != "u-1" || got.Username != "alice" || got.Family != "fam" {
		t.Errorf("successor did not inherit identity: %+v", got)
	}

	// The successor is live and redeemable.
	if _, err := s.Rotate(ctx, "r2", sha256.Sum256([]byte("s2")), next("r3", "s3")); err != nil {
		t.Fatalf("Rotate successor: %v", err)
	}
}

func TestRotateUnknownID(t *testing.T) {
	s := New()
	_, err := s.Rotate(context.Background(), "missing", sha256.Sum256([]byte("s")), next("n", "ns"))
	if !errors.Is(err, tokens.ErrTokenNotFound) {
		t.Errorf("err = %v, want ErrTokenNotFound", err)
	}
	if !errors.Is(err, tokens.ErrInvalidToken) {
		t.Errorf("err = %v, want it to wrap ErrInvalidToken", err)
	}
}

func TestRotateSecretMismatch(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.Save(ctx, testRecord("r1", "fam", "right")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	_, err := s.Rotate(ctx, "r1", sha256.Sum256([]byte("wrong")), next("r2", "s2"))
	if !errors.Is(err, tokens.ErrSecretMismatch) {
		t.Fatalf("err = %v, want ErrSecretMismatch", err)
	}

	// A mismatch does not consume the record.
	if _, err := s.Rotate(ctx, "r1", sha256.Sum256([]byte("right")), next("r2", "s2")); err != nil {
		t.Errorf("Rotate after mismatch: %v", err)
	}
}

func TestRotateExpired(t *testing.T) {
	ctx := context.Background()
	s := New()
	rec := testRecord("r1", "fam", "s1")
	rec.ExpiresAt = time.Now().Add(time.Minute)
	if err := s.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	s.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	_, err := s.Rotate(ctx, "r1", sha256.Sum256([]byte("s1")), next("r2", "s2"))
	if !errors.Is(err, tokens.ErrTokenExpired) {
		t.Fatalf("err = %v, want ErrTokenExpired", err)
	}

	// Expired records are dropped, not tombstoned.
	_, err = s.Rotate(ctx, "r1", sha256.Sum256([]byte("s1")), next("r2", "s2"))
	if !errors.Is(err, tokens.ErrTokenNotFound) {
		t.Errorf("second attempt err = %v, want ErrTokenNotFound", err)
	}
}

func TestReuseRevokesFamily(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.Save(ctx, testRecord("r1", "fam", "s1")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := s.Rotate(ctx, "r1", sha256.Sum256([]byte("s1")), next("r2", "s2")); err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	// Replaying the consumed token is reported as reuse.
	_, err := s.Rotate(ctx, "r1", sha256.Sum256([]byte("s1")), next("r3", "s3"))
	if !errors.Is(err, tokens.ErrTokenReused) {
		t.Fatalf("replay err = %v, want ErrTokenReused", err)
	}

	// The reuse killed the live successor as well.
	_, err = s.Rotate(ctx, "r2", sha256.Sum256([]byte("s2")), next("r4", "s4"))
	if !errors.Is(err, tokens.ErrTokenReused) {
		t.Errorf("successor err = %v, want ErrTokenReused after family revocation", err)
	}
}

func TestRevokeFamily(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.Save(ctx, testRecord("r1", "fam", "s1")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := s.RevokeFamily(ctx, "fam"); err != nil {
		t.Fatalf("RevokeFamily: %v", err)
	}
	if _, err := s.Rotate(ctx, "r1", sha256.Sum256([]byte("s1")), next("r2", "s2")); !errors.Is(err, tokens.ErrTokenReused) {
		t.Errorf("err = %v, want ErrTokenReused for revoked record", err)
	}

	// Unknown families are a no-op.
	if err := s.RevokeFamily(ctx, "absent"); err != nil {
		t.Errorf("RevokeFamily(absent) = %v, want nil", err)
	}
}

// TestConcurrentRotateSameToken presents one token from many goroutines
// at once. Exactly one presentation may win; everyone else must see a
// reuse failure, never a second success.
func TestConcurrentRotateSameToken(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.Save(ctx, testRecord("r1", "fam", "s1")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	const attempts = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	presented := sha256.Sum256([]byte("s1"))
	start := make(chan struct{})

	for g := 0; g < attempts; g++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			<-start
			_, err := s.Rotate(ctx, "r1", presented, next(newID(n), "ns"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, tokens.ErrTokenReused):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(g)
	}
	close(start)
	wg.Wait()

	if successes != 1 {
		t.Errorf("successes = %d, want exactly 1", successes)
	}
}

func newID(n int) string {
	return string(rune('a'+n%26)) + "-next"
}
