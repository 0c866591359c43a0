package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"cryptex/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const identityKey = "session.identity"

// ErrNoIdentity is returned by a Fetcher when the URL names no user.
var ErrNoIdentity = errors.New("no identity at url")

// Fetcher fetches the user behind an identity URL.
type Fetcher interface {
	GetUser(ctx context.Context, url string) (*models.UserProjection, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url string) (*models.UserProjection, error)

// GetUser calls f.
func (f FetcherFunc) GetUser(ctx context.Context, url string) (*models.UserProjection, error) {
	return f(ctx, url)
}

// IdentityLoader rebuilds identities from identity URLs and caches them for a
// short time so that most page views do not cost a round trip.
type IdentityLoader struct {
	fetcher Fetcher
	cache   *cache.Cache
	logger  *zap.Logger
}

// NewIdentityLoader creates a loader whose entries live for ttl.
func NewIdentityLoader(fetcher Fetcher, ttl time.Duration, logger *zap.Logger) *IdentityLoader {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &IdentityLoader{
		fetcher: fetcher,
		cache:   cache.New(ttl, 2*ttl),
		logger:  logger.Named("identity"),
	}
}

// Load returns the identity at url.
func (l *IdentityLoader) Load(ctx context.Context, url string) (*models.UserProjection, error) {
	if v, found := l.cache.Get(url); found {
		u := v.(models.UserProjection)
		return &u, nil
	}

	u, err := l.fetcher.GetUser(ctx, url)
	if err != nil {
		return nil, err
	}
	l.cache.SetDefault(url, *u)
	return u, nil
}

// Forget drops the cached identity at url.
func (l *IdentityLoader) Forget(url string) {
	l.cache.Delete(url)
}

// Load attaches the identity of the session, if any, to the request. A session
// whose user no longer exists is logged out.
func (m *Manager) Load(loader *IdentityLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		url := m.IdentityURL(c)
		if url == "" {
			c.Next()
			return
		}

		u, err := loader.Load(c.Request.Context(), url)
		switch {
		case err == nil:
			c.Set(identityKey, u)
		case errors.Is(err, ErrNoIdentity):
			m.logger.Info("Session user is gone, logging out", zap.String("identity", url))
			if err := m.Logout(c); err != nil {
				m.logger.Error("Failed to reset session", zap.Error(err))
			}
		default:
			m.logger.Warn("Failed to load session identity", zap.String("identity", url), zap.Error(err))
		}
		c.Next()
	}
}

// RequireLogin redirects anonymous visitors to loginPath.
func RequireLogin(loginPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if User(c) == nil {
			c.Redirect(http.StatusFound, loginPath)
			c.Abort()
			return
		}
		c.Next()
	}
}

// User returns the identity attached by Load, or nil for anonymous visitors.
func User(c *gin.Context) *models.UserProjection {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	u, _ := v.(*models.UserProjection)
	return u
}
