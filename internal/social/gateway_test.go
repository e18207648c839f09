package social

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/socialhub/internal/model"
	"github.com/hitoshi/socialhub/internal/repository"
	"github.com/hitoshi/socialhub/internal/security"
)

// --- モック定義 ---

type mockConnRepo struct {
	createFn       func(ctx context.Context, conn *model.Connection) error
	findByPUIDFn   func(ctx context.Context, providerID, providerUserID string) (*model.Connection, error)
	findPrimaryFn  func(ctx context.Context, userID int64, providerID string) (*model.Connection, error)
	countFn        func(ctx context.Context, userID int64, providerID string) (int, error)
	updateTokenFn  func(ctx context.Context, id int64, token model.OAuthResponse) error
	createdEntries []*model.Connection
	updatedTokens  map[int64]model.OAuthResponse
}

func (m *mockConnRepo) Create(ctx context.Context, conn *model.Connection) error {
	if m.createFn != nil {
		if err := m.createFn(ctx, conn); err != nil {
			return err
		}
	}
	m.createdEntries = append(m.createdEntries, conn)
	return nil
}

func (m *mockConnRepo) FindByProviderUserID(ctx context.Context, providerID, providerUserID string) (*model.Connection, error) {
	if m.findByPUIDFn != nil {
		return m.findByPUIDFn(ctx, providerID, providerUserID)
	}
	return nil, nil
}

func (m *mockConnRepo) FindPrimary(ctx context.Context, userID int64, providerID string) (*model.Connection, error) {
	if m.findPrimaryFn != nil {
		return m.findPrimaryFn(ctx, userID, providerID)
	}
	return nil, nil
}

func (m *mockConnRepo) CountByUserAndProvider(ctx context.Context, userID int64, providerID string) (int, error) {
	if m.countFn != nil {
		return m.countFn(ctx, userID, providerID)
	}
	return 0, nil
}

func (m *mockConnRepo) UpdateToken(ctx context.Context, id int64, token model.OAuthResponse) error {
	if m.updateTokenFn != nil {
		if err := m.updateTokenFn(ctx, id, token); err != nil {
			return err
		}
	}
	if m.updatedTokens == nil {
		m.updatedTokens = make(map[int64]model.OAuthResponse)
	}
	m.updatedTokens[id] = token
	return nil
}

var _ repository.ConnectionRepository = (*mockConnRepo)(nil)

func newTestGateway(repo *mockConnRepo, providers ...Provider) *Gateway {
	return NewGateway(NewRegistry(providers...), repo, security.NewProfileSanitizer(), "http://localhost:8080/")
}

// --- テスト ---

func TestGateway_CallbackURL(t *testing.T) {
	g := newTestGateway(&mockConnRepo{})

	if got := g.CallbackURL(Twitter, PurposeLogin); got != "http://localhost:8080/login/twitter/callback" {
		t.Errorf("login callback = %q", got)
	}
	if got := g.CallbackURL(Facebook, PurposeConnect); got != "http://localhost:8080/connect/facebook/callback" {
		t.Errorf("connect callback = %q", got)
	}
}

func TestGateway_BeginAuth(t *testing.T) {
	g := newTestGateway(&mockConnRepo{}, &fakeProvider{id: Twitter, name: "Twitter"})

	req, err := g.BeginAuth("twitter", PurposeLogin, "state-xyz")
	if err != nil {
		t.Fatalf("BeginAuth failed: %v", err)
	}
	if req.State != "state-xyz" {
		t.Errorf("State = %q", req.State)
	}
	if len(req.Verifier) < 43 {
		t.Errorf("verifier too short: %q", req.Verifier)
	}
	if !strings.Contains(req.URL, "state=state-xyz") || !strings.Contains(req.URL, "/login/twitter/callback") {
		t.Errorf("URL = %q", req.URL)
	}

	if _, err := g.BeginAuth("myspace", PurposeLogin, "s"); !errors.Is(err, model.ErrUnknownProvider) {
		t.Errorf("unknown provider err = %v", err)
	}
}

func TestGateway_CompleteAuth_UsesPurposeCallback(t *testing.T) {
	var gotRedirect string
	p := &fakeProvider{
		id: Facebook, name: "Facebook",
		exchangeFn: func(ctx context.Context, code, verifier, redirectURL string) (*model.OAuthResponse, error) {
			gotRedirect = redirectURL
			return &model.OAuthResponse{AccessToken: "tok"}, nil
		},
	}
	g := newTestGateway(&mockConnRepo{}, p)

	resp, err := g.CompleteAuth(context.Background(), "facebook", PurposeConnect, "code", "ver")
	if err != nil {
		t.Fatalf("CompleteAuth failed: %v", err)
	}
	if resp.AccessToken != "tok" {
		t.Errorf("AccessToken = %q", resp.AccessToken)
	}
	if gotRedirect != "http://localhost:8080/connect/facebook/callback" {
		t.Errorf("redirect = %q", gotRedirect)
	}
}

func TestGateway_ResolveLogin(t *testing.T) {
	repo := &mockConnRepo{
		findByPUIDFn: func(ctx context.Context, providerID, providerUserID string) (*model.Connection, error) {
			if providerID == "twitter" && providerUserID == "uid-known" {
				return &model.Connection{UserID: 5, ProviderID: providerID, ProviderUserID: providerUserID}, nil
			}
			return nil, nil
		},
	}
	g := newTestGateway(repo, &fakeProvider{id: Twitter, name: "Twitter"})

	found, err := g.ResolveLogin(context.Background(), "twitter", model.OAuthResponse{AccessToken: "known"})
	if err != nil {
		t.Fatalf("ResolveLogin failed: %v", err)
	}
	if found.Connection == nil || found.Connection.UserID != 5 {
		t.Errorf("Connection = %+v, want user 5", found.Connection)
	}

	missing, err := g.ResolveLogin(context.Background(), "twitter", model.OAuthResponse{AccessToken: "stranger"})
	if err != nil {
		t.Fatalf("ResolveLogin failed: %v", err)
	}
	if missing.Connection != nil {
		t.Errorf("expected no connection, got %+v", missing.Connection)
	}
	if missing.Response.AccessToken != "stranger" {
		t.Errorf("response should be carried through, got %+v", missing.Response)
	}
}

func TestGateway_Connect(t *testing.T) {
	repo := &mockConnRepo{
		countFn: func(ctx context.Context, userID int64, providerID string) (int, error) {
			return 1, nil
		},
	}
	p := &fakeProvider{
		id: Twitter, name: "Twitter",
		fetchProfileFn: func(ctx context.Context, token model.OAuthResponse) (*model.SocialProfile, error) {
			return &model.SocialProfile{
				ProviderUserID: "tw-9",
				DisplayName:    "<b>Alice</b>",
				ProfileURL:     "https://twitter.com/alice",
				ImageURL:       "javascript:alert(1)",
			}, nil
		},
	}
	g := newTestGateway(repo, p)

	conn, err := g.Connect(context.Background(), "twitter", model.OAuthResponse{AccessToken: "a", RefreshToken: "r"}, 42)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if len(repo.createdEntries) != 1 {
		t.Fatalf("created = %d, want 1", len(repo.createdEntries))
	}
	want := model.Connection{
		UserID:         42,
		ProviderID:     "twitter",
		ProviderUserID: "tw-9",
		AccessToken:    "a",
		Secret:         "r",
		DisplayName:    "Alice",
		ProfileURL:     "https://twitter.com/alice",
		ImageURL:       "",
		Rank:           2,
	}
	if *conn != want {
		t.Errorf("conn = %+v, want %+v", *conn, want)
	}
}

func TestGateway_Connect_Duplicate(t *testing.T) {
	repo := &mockConnRepo{
		createFn: func(ctx context.Context, conn *model.Connection) error {
			return model.ErrConnectionExists
		},
	}
	g := newTestGateway(repo, &fakeProvider{id: Twitter, name: "Twitter"})

	_, err := g.Connect(context.Background(), "twitter", model.OAuthResponse{AccessToken: "a"}, 1)
	if !errors.Is(err, model.ErrConnectionExists) {
		t.Errorf("err = %v, want ErrConnectionExists", err)
	}
}

func TestGateway_Connect_ProfileError(t *testing.T) {
	repo := &mockConnRepo{}
	p := &fakeProvider{
		id: Twitter, name: "Twitter",
		fetchProfileFn: func(ctx context.Context, token model.OAuthResponse) (*model.SocialProfile, error) {
			return nil, errors.New("api down")
		},
	}
	g := newTestGateway(repo, p)

	if _, err := g.Connect(context.Background(), "twitter", model.OAuthResponse{}, 1); err == nil {
		t.Fatal("expected error")
	}
	if len(repo.createdEntries) != 0 {
		t.Error("no connection should be created")
	}
}

func TestGateway_PostStatus(t *testing.T) {
	var posted string
	p := &fakeProvider{
		id: Facebook, name: "Facebook",
		postStatusFn: func(ctx context.Context, token model.OAuthResponse, message string) (model.OAuthResponse, error) {
			if token.AccessToken != "stored" || token.RefreshToken != "r1" {
				t.Errorf("token = %+v", token)
			}
			posted = message
			return token, nil
		},
	}
	repo := &mockConnRepo{
		findPrimaryFn: func(ctx context.Context, userID int64, providerID string) (*model.Connection, error) {
			if userID == 1 {
				return &model.Connection{ID: 5, UserID: 1, ProviderID: providerID, AccessToken: "stored", Secret: "r1"}, nil
			}
			return nil, nil
		},
	}
	g := newTestGateway(repo, p)

	if err := g.PostStatus(context.Background(), 1, "facebook", "hello"); err != nil {
		t.Fatalf("PostStatus failed: %v", err)
	}
	if posted != "hello" {
		t.Errorf("posted = %q", posted)
	}
	if len(repo.updatedTokens) != 0 {
		t.Errorf("unchanged token must not be saved: %+v", repo.updatedTokens)
	}

	if err := g.PostStatus(context.Background(), 2, "facebook", "hello"); !errors.Is(err, model.ErrConnectionNotFound) {
		t.Errorf("err = %v, want ErrConnectionNotFound", err)
	}
	if err := g.PostStatus(context.Background(), 1, "friendster", "hello"); !errors.Is(err, model.ErrUnknownProvider) {
		t.Errorf("err = %v, want ErrUnknownProvider", err)
	}
}

func TestGateway_PostStatus_SavesRefreshedToken(t *testing.T) {
	expiry := time.Now().Add(2 * time.Hour)
	tests := []struct {
		name    string
		postErr error
	}{
		{name: "投稿成功", postErr: nil},
		{name: "更新後の投稿が失敗しても保存する", postErr: errors.New("unexpected status 500")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProvider{
				id: Twitter, name: "Twitter",
				postStatusFn: func(ctx context.Context, token model.OAuthResponse, message string) (model.OAuthResponse, error) {
					return model.OAuthResponse{AccessToken: "fresh", RefreshToken: "r2", TokenType: "bearer", Expiry: expiry}, tt.postErr
				},
			}
			repo := &mockConnRepo{
				findPrimaryFn: func(ctx context.Context, userID int64, providerID string) (*model.Connection, error) {
					return &model.Connection{ID: 7, UserID: userID, ProviderID: providerID, AccessToken: "expired", Secret: "r1"}, nil
				},
			}
			g := newTestGateway(repo, p)

			err := g.PostStatus(context.Background(), 1, "twitter", "hello")
			if (err != nil) != (tt.postErr != nil) {
				t.Fatalf("err = %v, want error %v", err, tt.postErr)
			}

			saved, ok := repo.updatedTokens[7]
			if !ok {
				t.Fatal("refreshed token was not saved")
			}
			if saved.AccessToken != "fresh" || saved.RefreshToken != "r2" || !saved.Expiry.Equal(expiry) {
				t.Errorf("saved token = %+v", saved)
			}
		})
	}
}

func TestGateway_PostStatus_SaveTokenFailureDoesNotFailPost(t *testing.T) {
	p := &fakeProvider{
		id: Twitter, name: "Twitter",
		postStatusFn: func(ctx context.Context, token model.OAuthResponse, message string) (model.OAuthResponse, error) {
			return model.OAuthResponse{AccessToken: "fresh"}, nil
		},
	}
	repo := &mockConnRepo{
		findPrimaryFn: func(ctx context.Context, userID int64, providerID string) (*model.Connection, error) {
			return &model.Connection{ID: 7, UserID: userID, ProviderID: providerID, AccessToken: "expired"}, nil
		},
		updateTokenFn: func(ctx context.Context, id int64, token model.OAuthResponse) error {
			return errors.New("db down")
		},
	}
	g := newTestGateway(repo, p)

	if err := g.PostStatus(context.Background(), 1, "twitter", "hello"); err != nil {
		t.Errorf("PostStatus failed: %v", err)
	}
}

func TestGateway_GetConnection(t *testing.T) {
	repo := &mockConnRepo{
		findPrimaryFn: func(ctx context.Context, userID int64, providerID string) (*model.Connection, error) {
			if providerID == "twitter" {
				return &model.Connection{ID: 3, ProviderID: providerID}, nil
			}
			return nil, errors.New("db down")
		},
	}
	g := newTestGateway(repo, &fakeProvider{id: Twitter, name: "Twitter"}, &fakeProvider{id: Facebook, name: "Facebook"})

	conn, err := g.GetConnection(context.Background(), 1, "twitter")
	if err != nil || conn == nil || conn.ID != 3 {
		t.Errorf("GetConnection = %+v, %v", conn, err)
	}
	if _, err := g.GetConnection(context.Background(), 1, "facebook"); err == nil {
		t.Error("expected repository error")
	}
	if _, err := g.GetConnection(context.Background(), 1, "myspace"); !errors.Is(err, model.ErrUnknownProvider) {
		t.Errorf("err = %v, want ErrUnknownProvider", err)
	}
}

func TestGateway_ListConnections(t *testing.T) {
	repo := &mockConnRepo{
		findPrimaryFn: func(ctx context.Context, userID int64, providerID string) (*model.Connection, error) {
			if providerID == "twitter" {
				return &model.Connection{ProviderID: "twitter", DisplayName: "alice"}, nil
			}
			return nil, nil
		},
	}
	g := newTestGateway(repo,
		&fakeProvider{id: Facebook, name: "Facebook"},
		&fakeProvider{id: Twitter, name: "Twitter"},
	)

	list, err := g.ListConnections(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListConnections failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].ProviderID != Twitter || list[0].Connection == nil {
		t.Errorf("list[0] = %+v", list[0])
	}
	if list[1].ProviderID != Facebook || list[1].Connection != nil || list[1].DisplayName != "Facebook" {
		t.Errorf("list[1] = %+v", list[1])
	}
}
