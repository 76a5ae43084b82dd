package service

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/sumire/studenthub/internal/domain"
	"github.com/sumire/studenthub/internal/repository"
)

type fakeProvider struct {
	name    domain.AuthProvider
	profile *Profile
	err     error
}

func (f *fakeProvider) Name() domain.AuthProvider { return f.name }
func (f *fakeProvider) AuthCodeURL(string) string { return "https://provider.example/authorize" }
func (f *fakeProvider) FetchProfile(context.Context, string) (*Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	p := *f.profile
	return &p, nil
}

func newOAuthFixture(p *fakeProvider) (*OAuthService, *repository.InMemory) {
	store := repository.NewInMemory()
	svc := &OAuthService{
		store:     store,
		providers: map[domain.AuthProvider]Provider{p.name: p},
	}
	return svc, store
}

func TestCompleteLoginCreatesAccount(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{
		name: domain.AuthProviderGitHub,
		profile: &Profile{
			ID:        "42",
			Email:     "Octo@X.com",
			Name:      "octocat",
			AvatarURL: "https://avatars.example/42",
		},
	}
	svc, _ := newOAuthFixture(p)

	acct, err := svc.CompleteLogin(ctx, domain.AuthProviderGitHub, "code")
	require.NoError(t, err)

	assert.Equal(t, "octocat", acct.Username)
	assert.Equal(t, "octo@x.com", acct.Email)
	assert.True(t, acct.EmailVerified)
	assert.Nil(t, acct.PasswordHash)
	require.NotNil(t, acct.OAuthProvider)
	assert.Equal(t, domain.AuthProviderGitHub, *acct.OAuthProvider)
	require.NotNil(t, acct.OAuthID)
	assert.Equal(t, "42", *acct.OAuthID)
	require.NotNil(t, acct.AvatarURL)
	assert.Equal(t, "https://avatars.example/42", *acct.AvatarURL)
}

func TestCompleteLoginExistingAccountUnchanged(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{
		name:    domain.AuthProviderGoogle,
		profile: &Profile{ID: "sub-1", Email: "alice@x.com", Name: "alice_smith"},
	}
	svc, store := newOAuthFixture(p)

	hash := "$2a$10$existinghash"
	seeded, err := store.CreateOAuthAccount(ctx, &domain.Account{
		Username:      "alice",
		Email:         "alice@x.com",
		PasswordHash:  &hash,
		EmailVerified: true,
	})
	require.NoError(t, err)

	acct, err := svc.CompleteLogin(ctx, domain.AuthProviderGoogle, "code")
	require.NoError(t, err)

	// The password account is reused verbatim: no retroactive linkage.
	assert.Equal(t, seeded.ID, acct.ID)
	assert.Equal(t, "alice", acct.Username)
	assert.Nil(t, acct.OAuthProvider)
	require.NotNil(t, acct.PasswordHash)
	assert.Equal(t, hash, *acct.PasswordHash)
}

func TestCompleteLoginResolvesUsernameCollision(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{
		name:    domain.AuthProviderGitHub,
		profile: &Profile{ID: "7", Email: "bob@x.com", Name: "bob"},
	}
	svc, store := newOAuthFixture(p)

	for i, name := range []string{"bob", "bob1", "bob2"} {
		_, err := store.CreateOAuthAccount(ctx, &domain.Account{
			Username:      name,
			Email:         "seed" + name + "@x.com",
			EmailVerified: true,
		})
		require.NoError(t, err, "seed %d", i)
	}

	acct, err := svc.CompleteLogin(ctx, domain.AuthProviderGitHub, "code")
	require.NoError(t, err)
	assert.Equal(t, "bob3", acct.Username)
}

func TestCompleteLoginFallsBackToEmailLocalPart(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{
		name:    domain.AuthProviderGoogle,
		profile: &Profile{ID: "sub-2", Email: "carol@x.com"},
	}
	svc, _ := newOAuthFixture(p)

	acct, err := svc.CompleteLogin(ctx, domain.AuthProviderGoogle, "code")
	require.NoError(t, err)
	assert.Equal(t, "carol", acct.Username)
}

func TestCompleteLoginNoEmail(t *testing.T) {
	ctx := context.Background()

	t.Run("provider reports no email", func(t *testing.T) {
		p := &fakeProvider{name: domain.AuthProviderGitHub, err: domain.ErrNoEmail}
		svc, _ := newOAuthFixture(p)

		_, err := svc.CompleteLogin(ctx, domain.AuthProviderGitHub, "code")
		require.ErrorIs(t, err, domain.ErrNoEmail)
	})

	t.Run("profile carries empty email", func(t *testing.T) {
		p := &fakeProvider{
			name:    domain.AuthProviderGitHub,
			profile: &Profile{ID: "9", Name: "noemail"},
		}
		svc, _ := newOAuthFixture(p)

		_, err := svc.CompleteLogin(ctx, domain.AuthProviderGitHub, "code")
		require.ErrorIs(t, err, domain.ErrNoEmail)
	})
}

func TestCompleteLoginTokenExchangeFailed(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{name: domain.AuthProviderGoogle, err: domain.ErrTokenExchange}
	svc, _ := newOAuthFixture(p)

	_, err := svc.CompleteLogin(ctx, domain.AuthProviderGoogle, "code")
	require.ErrorIs(t, err, domain.ErrTokenExchange)
}

func TestCompleteLoginUnknownProvider(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{name: domain.AuthProviderGitHub}
	svc, _ := newOAuthFixture(p)

	_, err := svc.CompleteLogin(ctx, domain.AuthProvider("gitlab"), "code")
	require.Error(t, err)
}

// TestExchangeBoundedByClientTimeout verifies that a hung provider token
// endpoint cannot block the handler: the exchange fails once the bounded
// client times out.
func TestExchangeBoundedByClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		// Drain the body so the server notices the client disconnect and
		// cancels r.Context(); otherwise srv.Close deadlocks on this handler.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	client := &http.Client{Timeout: 200 * time.Millisecond}
	endpoint := oauth2.Endpoint{
		AuthURL:  srv.URL + "/authorize",
		TokenURL: srv.URL + "/token",
	}

	providers := map[string]Provider{
		"github": &githubProvider{cfg: &oauth2.Config{Endpoint: endpoint}, client: client},
		"google": &googleProvider{cfg: &oauth2.Config{Endpoint: endpoint}, client: client},
	}

	for name, p := range providers {
		t.Run(name, func(t *testing.T) {
			start := time.Now()
			_, err := p.FetchProfile(context.Background(), "code")
			require.ErrorIs(t, err, domain.ErrTokenExchange)
			assert.Less(t, time.Since(start), 5*time.Second)
		})
	}
}

func TestCompleteLoginConcurrentCallbacks(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{
		name:    domain.AuthProviderGitHub,
		profile: &Profile{ID: "13", Email: "race@x.com", Name: "racer"},
	}
	svc, store := newOAuthFixture(p)

	const callers = 8
	accounts := make([]*domain.Account, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			accounts[i], errs[i] = svc.CompleteLogin(ctx, domain.AuthProviderGitHub, "code")
		}(i)
	}
	wg.Wait()

	winner, err := store.FindAccountByEmail(ctx, "race@x.com")
	require.NoError(t, err)

	// Exactly one account exists; every caller got it.
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i], "caller %d", i)
		assert.Equal(t, winner.ID, accounts[i].ID, "caller %d", i)
		assert.Equal(t, "racer", accounts[i].Username, "caller %d", i)
	}
}
