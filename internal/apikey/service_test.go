package apikey

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"sampletrack/internal/store"
)

type fakeKeyStore struct {
	keys    map[string]store.APIKey
	touched map[string]time.Time
}

func newFakeKeyStore() *fakeKeyStore {
	return &fakeKeyStore{
		keys:    map[string]store.APIKey{},
		touched: map[string]time.Time{},
	}
}

func (f *fakeKeyStore) CreateAPIKey(_ context.Context, key store.APIKey) error {
	f.keys[key.ID] = key
	return nil
}

func (f *fakeKeyStore) GetAPIKey(_ context.Context, id string) (store.APIKey, error) {
	key, ok := f.keys[id]
	if !ok {
		return store.APIKey{}, errors.New("no such key")
	}
	return key, nil
}

func (f *fakeKeyStore) TouchAPIKey(_ context.Context, id string, usedAt time.Time) error {
	f.touched[id] = usedAt
	return nil
}

func (f *fakeKeyStore) RevokeAPIKey(_ context.Context, _, id string) error {
	key, ok := f.keys[id]
	if !ok {
		return errors.New("no such key")
	}
	now := time.Now()
	key.RevokedAt = &now
	f.keys[id] = key
	return nil
}

func (f *fakeKeyStore) ListAPIKeys(_ context.Context, member string) ([]store.APIKey, error) {
	var out []store.APIKey
	for _, key := range f.keys {
		if key.Member == member {
			out = append(out, key)
		}
	}
	return out, nil
}

func TestIssueAndVerify(t *testing.T) {
	fake := newFakeKeyStore()
	svc := NewService(fake)
	ctx := context.Background()

	plaintext, key, err := svc.Issue(ctx, "pipeline-loader", "nightly loader")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if !strings.HasPrefix(plaintext, "stk_") {
		t.Fatalf("unexpected key format: %s", plaintext)
	}
	if strings.Contains(key.Hash, plaintext) || key.Hash == "" {
		t.Fatalf("stored hash must not contain the plaintext")
	}

	member, err := svc.Verify(ctx, plaintext)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if member != "pipeline-loader" {
		t.Fatalf("Verify() member = %s", member)
	}
	if _, ok := fake.touched[key.ID]; !ok {
		t.Fatal("expected last-use timestamp to be recorded")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	fake := newFakeKeyStore()
	svc := NewService(fake)
	ctx := context.Background()

	plaintext, key, err := svc.Issue(ctx, "pipeline-loader", "nightly loader")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	forged := "stk_" + key.ID + "." + strings.Repeat("0", 64)
	if forged == plaintext {
		t.Fatal("forged key accidentally matches")
	}
	if _, err := svc.Verify(ctx, forged); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestVerifyRejectsRevoked(t *testing.T) {
	fake := newFakeKeyStore()
	svc := NewService(fake)
	ctx := context.Background()

	plaintext, key, err := svc.Issue(ctx, "pipeline-loader", "nightly loader")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if err := svc.Revoke(ctx, "admin", key.ID); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if _, err := svc.Verify(ctx, plaintext); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey after revoke, got %v", err)
	}
}

func TestVerifyRejectsMalformed(t *testing.T) {
	svc := NewService(newFakeKeyStore())
	ctx := context.Background()

	for _, plaintext := range []string{"", "stk_", "stk_id-only", "wrong_id.secret", "stk_.secret", "stk_id."} {
		if _, err := svc.Verify(ctx, plaintext); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("Verify(%q) = %v, want ErrInvalidKey", plaintext, err)
		}
	}
}

func TestIssueRequiresMemberAndName(t *testing.T) {
	svc := NewService(newFakeKeyStore())
	ctx := context.Background()

	if _, _, err := svc.Issue(ctx, "", "name"); err == nil {
		t.Fatal("expected error for empty member")
	}
	if _, _, err := svc.Issue(ctx, "member", "  "); err == nil {
		t.Fatal("expected error for blank name")
	}
}
