// Package session keeps browser sessions for the web pages.
//
// The cookie only carries a signed, opaque session id. Everything else (the
// identity URL of the logged in user and pending flash messages) lives in an
// in-process store that expires idle sessions.
package session

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"cryptex/internal/config"

	jwt "github.com/dgrijalva/jwt-go"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const sessionIDKey = "session.id"

var errInvalidToken = errors.New("invalid session token")

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Category string
	Message  string
}

type record struct {
	identityURL string
	flashes     []Flash
}

// Manager issues session cookies and keeps the server side session records.
type Manager struct {
	mu         sync.Mutex
	records    *cache.Cache
	secret     []byte
	cookieName string
	ttl        time.Duration
	logger     *zap.Logger
}

// NewManager creates a session manager. Records not touched for cfg.TTL are
// dropped.
func NewManager(cfg config.Session, logger *zap.Logger) *Manager {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	name := cfg.CookieName
	if name == "" {
		name = "cryptex_session"
	}
	return &Manager{
		records:    cache.New(ttl, 10*time.Minute),
		secret:     []byte(cfg.Secret),
		cookieName: name,
		ttl:        ttl,
		logger:     logger.Named("session"),
	}
}

// IdentityURL returns the identity URL of the current session, or "" for an
// anonymous visitor.
func (m *Manager) IdentityURL(c *gin.Context) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, _, ok := m.current(c)
	if !ok {
		return ""
	}
	return rec.identityURL
}

// Login starts an authenticated session for identityURL. The session id is
// rotated; flashes queued before login are carried over.
func (m *Manager) Login(c *gin.Context, identityURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var flashes []Flash
	if rec, id, ok := m.current(c); ok {
		flashes = rec.flashes
		m.records.Delete(id)
	}
	return m.start(c, &record{identityURL: identityURL, flashes: flashes})
}

// Logout ends the current session and starts a fresh anonymous one.
func (m *Manager) Logout(c *gin.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, id, ok := m.current(c); ok {
		m.records.Delete(id)
	}
	return m.start(c, &record{})
}

// AddFlash queues a message for the next rendered page.
func (m *Manager) AddFlash(c *gin.Context, category, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, id, ok := m.current(c)
	if !ok {
		rec = &record{}
		if err := m.start(c, rec); err != nil {
			m.logger.Error("Failed to start session for flash", zap.Error(err))
			return
		}
		id = c.GetString(sessionIDKey)
	}
	rec.flashes = append(rec.flashes, Flash{Category: category, Message: message})
	m.records.Set(id, rec, cache.DefaultExpiration)
}

// Flashes returns and clears the queued messages.
func (m *Manager) Flashes(c *gin.Context) []Flash {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, id, ok := m.current(c)
	if !ok || len(rec.flashes) == 0 {
		return nil
	}
	flashes := rec.flashes
	rec.flashes = nil
	m.records.Set(id, rec, cache.DefaultExpiration)
	return flashes
}

// current resolves the session of the request. A session started earlier in
// the same request wins over the request cookie. Callers hold m.mu.
func (m *Manager) current(c *gin.Context) (*record, string, bool) {
	id := c.GetString(sessionIDKey)
	if id == "" {
		token, err := c.Cookie(m.cookieName)
		if err != nil || token == "" {
			return nil, "", false
		}
		if id, err = m.parseToken(token); err != nil {
			m.logger.Debug("Ignoring session cookie", zap.Error(err))
			return nil, "", false
		}
	}

	v, found := m.records.Get(id)
	if !found {
		return nil, "", false
	}
	c.Set(sessionIDKey, id)
	return v.(*record), id, true
}

func (m *Manager) start(c *gin.Context, rec *record) error {
	id := uuid.NewString()
	token, err := m.issueToken(id)
	if err != nil {
		return err
	}

	m.records.Set(id, rec, cache.DefaultExpiration)
	c.Set(sessionIDKey, id)
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(m.cookieName, token, int(m.ttl.Seconds()), "/", "", c.Request.TLS != nil, true)
	return nil
}

func (m *Manager) issueToken(id string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.StandardClaims{
		Id:        id,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(m.ttl).Unix(),
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

func (m *Manager) parseToken(tokenStr string) (string, error) {
	claims := &jwt.StandardClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.Id == "" {
		return "", errInvalidToken
	}
	return claims.Id, nil
}
