package handler

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/socialhub/internal/model"
	"github.com/hitoshi/socialhub/internal/repository"
	"github.com/hitoshi/socialhub/internal/social"
)

// --- インメモリのリポジトリ ---

type memUserRepo struct {
	mu     sync.Mutex
	nextID int64
	users  []*model.User
}

func (m *memUserRepo) Create(ctx context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return model.ErrEmailTaken
		}
	}
	m.nextID++
	u.ID = m.nextID
	u.CreatedAt = time.Now()
	stored := *u
	m.users = append(m.users, &stored)
	return nil
}

func (m *memUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memUserRepo) ListAll(ctx context.Context) ([]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := make([]model.User, 0, len(m.users))
	for _, u := range m.users {
		list = append(list, *u)
	}
	return list, nil
}

func (m *memUserRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

func (m *memUserRepo) deactivate(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			u.Active = false
		}
	}
}

type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: map[string]*model.Session{}}
}

func (m *memSessionRepo) Create(ctx context.Context, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *s
	m.sessions[s.ID] = &c
	return nil
}

func (m *memSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || !s.ExpiresAt.After(time.Now()) {
		return nil, nil
	}
	c := *s
	return &c, nil
}

func (m *memSessionRepo) DeleteByID(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *memSessionRepo) DeleteByUserID(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *memSessionRepo) countFor(userID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.UserID == userID {
			n++
		}
	}
	return n
}

func (m *memSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if !s.ExpiresAt.After(time.Now()) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

type memConnRepo struct {
	mu     sync.Mutex
	nextID int64
	conns  []*model.Connection
}

func (m *memConnRepo) Create(ctx context.Context, c *model.Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.conns {
		if existing.ProviderID == c.ProviderID && existing.ProviderUserID == c.ProviderUserID {
			return model.ErrConnectionExists
		}
	}
	m.nextID++
	c.ID = m.nextID
	stored := *c
	m.conns = append(m.conns, &stored)
	return nil
}

func (m *memConnRepo) FindByProviderUserID(ctx context.Context, providerID, providerUserID string) (*model.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.conns {
		if c.ProviderID == providerID && c.ProviderUserID == providerUserID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memConnRepo) FindPrimary(ctx context.Context, userID int64, providerID string) (*model.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matches []*model.Connection
	for _, c := range m.conns {
		if c.UserID == userID && c.ProviderID == providerID {
			matches = append(matches, c)
		}
	}
	if len(matches) == 0 {
		return nil, nil
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Rank != matches[j].Rank {
			return matches[i].Rank < matches[j].Rank
		}
		return matches[i].ID < matches[j].ID
	})
	cp := *matches[0]
	return &cp, nil
}

func (m *memConnRepo) CountByUserAndProvider(ctx context.Context, userID int64, providerID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.conns {
		if c.UserID == userID && c.ProviderID == providerID {
			n++
		}
	}
	return n, nil
}

func (m *memConnRepo) UpdateToken(ctx context.Context, id int64, token model.OAuthResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.conns {
		if c.ID == id {
			c.AccessToken = token.AccessToken
			c.Secret = token.RefreshToken
			c.TokenExpiry = token.Expiry
			return nil
		}
	}
	return model.ErrConnectionNotFound
}

func (m *memConnRepo) all() []model.Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := make([]model.Connection, 0, len(m.conns))
	for _, c := range m.conns {
		list = append(list, *c)
	}
	return list
}

var (
	_ repository.UserRepository       = (*memUserRepo)(nil)
	_ repository.SessionRepository    = (*memSessionRepo)(nil)
	_ repository.ConnectionRepository = (*memConnRepo)(nil)
)

// --- スタブプロバイダー ---

// stubProvider は認可コード"code"に対してトークン"token-code"を返し、
// そのトークンの持ち主を"uid-token-code"として扱う。
type stubProvider struct {
	id   social.ProviderID
	name string

	// refreshedToken が設定されている場合、投稿時にトークンをこの値へ更新したものとして扱う
	refreshedToken string

	mu    sync.Mutex
	posts []string
}

func (p *stubProvider) ID() social.ProviderID { return p.id }
func (p *stubProvider) DisplayName() string   { return p.name }

func (p *stubProvider) AuthCodeURL(state, verifier, redirectURL string) string {
	return "https://provider.example/auth?" + url.Values{
		"state":        {state},
		"redirect_uri": {redirectURL},
	}.Encode()
}

func (p *stubProvider) Exchange(ctx context.Context, code, verifier, redirectURL string) (*model.OAuthResponse, error) {
	if code == "bad" {
		return nil, errors.New("invalid_grant")
	}
	if verifier == "" {
		return nil, errors.New("missing verifier")
	}
	return &model.OAuthResponse{AccessToken: "token-" + code, TokenType: "bearer"}, nil
}

func (p *stubProvider) FetchProfile(ctx context.Context, token model.OAuthResponse) (*model.SocialProfile, error) {
	return &model.SocialProfile{
		ProviderUserID: "uid-" + token.AccessToken,
		DisplayName:    "<b>Alice</b>",
		ProfileURL:     "https://" + string(p.id) + ".com/alice",
	}, nil
}

func (p *stubProvider) PostStatus(ctx context.Context, token model.OAuthResponse, message string) (model.OAuthResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.posts = append(p.posts, message)
	if p.refreshedToken != "" && token.AccessToken != p.refreshedToken {
		token.AccessToken = p.refreshedToken
		token.RefreshToken = "rotated-" + token.RefreshToken
		token.Expiry = time.Now().Add(2 * time.Hour)
	}
	return token, nil
}

func (p *stubProvider) postCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.posts)
}

var _ social.Provider = (*stubProvider)(nil)

// fakePinger は/healthの疎通結果を切り替えるスタブ。
type fakePinger struct {
	err error
}

func (p *fakePinger) PingContext(ctx context.Context) error { return p.err }
