package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/socialhub/internal/model"
)

func newTestManager() *Manager {
	return NewManager(NewMemoryStore(time.Hour), time.Hour)
}

func TestManager_PendingLogin_ReadOnce(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	pending := model.PendingSocialLogin{
		ProviderID:    "twitter",
		OAuthResponse: model.OAuthResponse{AccessToken: "tok", RefreshToken: "ref"},
	}
	if err := m.StashPendingLogin(ctx, "visitor-1", pending); err != nil {
		t.Fatalf("StashPendingLogin failed: %v", err)
	}

	got, err := m.PopPendingLogin(ctx, "visitor-1")
	if err != nil {
		t.Fatalf("PopPendingLogin failed: %v", err)
	}
	if got == nil || got.ProviderID != "twitter" || got.OAuthResponse.AccessToken != "tok" || got.OAuthResponse.RefreshToken != "ref" {
		t.Errorf("PopPendingLogin = %+v", got)
	}

	again, err := m.PopPendingLogin(ctx, "visitor-1")
	if err != nil {
		t.Fatalf("second PopPendingLogin failed: %v", err)
	}
	if again != nil {
		t.Errorf("pending login must be consumed once, got %+v", again)
	}
}

func TestManager_PendingLogin_Overwrite(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	_ = m.StashPendingLogin(ctx, "v", model.PendingSocialLogin{ProviderID: "twitter"})
	_ = m.StashPendingLogin(ctx, "v", model.PendingSocialLogin{ProviderID: "facebook"})

	got, err := m.PopPendingLogin(ctx, "v")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ProviderID != "facebook" {
		t.Errorf("latest stash should win, got %+v", got)
	}
}

func TestManager_PendingLogin_IsolatedPerVisitor(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	_ = m.StashPendingLogin(ctx, "alice", model.PendingSocialLogin{ProviderID: "twitter"})

	got, err := m.PopPendingLogin(ctx, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("other visitor must not see pending login, got %+v", got)
	}
	if got, _ := m.PopPendingLogin(ctx, "alice"); got == nil {
		t.Error("original visitor should still have pending login")
	}
}

func TestManager_PendingLogin_Expires(t *testing.T) {
	m := NewManager(NewMemoryStore(time.Minute), 10*time.Millisecond)
	ctx := context.Background()

	_ = m.StashPendingLogin(ctx, "v", model.PendingSocialLogin{ProviderID: "twitter"})
	time.Sleep(30 * time.Millisecond)

	got, err := m.PopPendingLogin(ctx, "v")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("expired pending login returned: %+v", got)
	}
}

func TestManager_Flashes(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	if err := m.AddFlash(ctx, "v", Flash{Category: "success", Message: "one"}); err != nil {
		t.Fatal(err)
	}
	if err := m.AddFlash(ctx, "v", Flash{Category: "error", Message: "two"}); err != nil {
		t.Fatal(err)
	}

	flashes, err := m.PopFlashes(ctx, "v")
	if err != nil {
		t.Fatalf("PopFlashes failed: %v", err)
	}
	if len(flashes) != 2 || flashes[0].Message != "one" || flashes[1].Category != "error" {
		t.Errorf("flashes = %+v", flashes)
	}

	flashes, err = m.PopFlashes(ctx, "v")
	if err != nil {
		t.Fatal(err)
	}
	if len(flashes) != 0 {
		t.Errorf("flashes should be cleared, got %+v", flashes)
	}
}

func TestManager_Flashes_ConcurrentAdd(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	const n = 30
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := m.AddFlash(ctx, "v", Flash{Category: "info", Message: fmt.Sprintf("msg-%d", i)}); err != nil {
				t.Errorf("AddFlash failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	flashes, err := m.PopFlashes(ctx, "v")
	if err != nil {
		t.Fatal(err)
	}
	if len(flashes) != n {
		t.Errorf("flashes = %d, want %d", len(flashes), n)
	}
}

func TestManager_OAuthState(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	state := OAuthState{State: "s", Verifier: "ver", Purpose: "login"}
	if err := m.SaveOAuthState(ctx, "v", "twitter", state); err != nil {
		t.Fatal(err)
	}

	if got, _ := m.TakeOAuthState(ctx, "v", "facebook"); got != nil {
		t.Errorf("state must be scoped per provider, got %+v", got)
	}

	got, err := m.TakeOAuthState(ctx, "v", "twitter")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || *got != state {
		t.Errorf("TakeOAuthState = %+v, want %+v", got, state)
	}
	if again, _ := m.TakeOAuthState(ctx, "v", "twitter"); again != nil {
		t.Error("state must be single-use")
	}
}

type failingStore struct{ *MemoryStore }

func (f *failingStore) Take(context.Context, string) ([]byte, bool, error) {
	return nil, false, ErrStoreUnavailable
}

func TestManager_StoreError(t *testing.T) {
	m := NewManager(&failingStore{MemoryStore: NewMemoryStore(time.Minute)}, time.Minute)

	_, err := m.PopPendingLogin(context.Background(), "v")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("err = %v, want ErrStoreUnavailable", err)
	}
}
