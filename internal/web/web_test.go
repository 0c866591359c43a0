package web

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"cryptex/internal/accounts"
	"cryptex/internal/api"
	"cryptex/internal/apiclient"
	"cryptex/internal/config"
	"cryptex/internal/database"
	"cryptex/internal/models"
	"cryptex/internal/session"
	"cryptex/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// MockPriceSource is a mock implementation of binance.PriceSource.
type MockPriceSource struct {
	mock.Mock
}

func (m *MockPriceSource) GetTickerPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	args := m.Called(symbols)
	return args.Get(0).(map[string]decimal.Decimal), args.Error(1)
}

type testEnv struct {
	server *httptest.Server
	db     *gorm.DB
	prices *MockPriceSource
}

// setupTest serves the REST layer and the pages from one test server, the way
// the real binary does.
func setupTest(t *testing.T) *testEnv {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "web.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	require.NoError(t, database.SeedCoins(db, []config.CoinConfig{
		{Index: "BTCUSDT", Abbreviation: "BTC"},
		{Index: "DOGEUSDT", Abbreviation: "DOGE"},
	}))

	st := store.New(db)
	acc := accounts.NewService(st, zap.NewNop(), accounts.WithCost(bcrypt.MinCost))
	prices := new(MockPriceSource)

	tmpl, err := Templates()
	require.NoError(t, err)

	router := gin.New()
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	router.SetHTMLTemplate(tmpl)
	api.NewHandler(st, acc, prices, nil, zap.NewNop(), "").Register(router.Group("/api/v1"))
	newPages(t, server.URL).Register(router)

	return &testEnv{server: server, db: db, prices: prices}
}

// newPages builds a page handler whose REST calls go to apiBase.
func newPages(t *testing.T, apiBase string) *Handler {
	sessions := session.NewManager(config.Session{Secret: "test_secret", CookieName: "sid", TTL: time.Hour}, zap.NewNop())
	h, err := NewHandler(sessions, apiclient.New(apiBase, 5*time.Second, zap.NewNop()), time.Minute, zap.NewNop())
	require.NoError(t, err)
	return h
}

// browser is an HTTP client with a cookie jar that follows redirects.
func (e *testEnv) browser(t *testing.T) *http.Client {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar, Timeout: 10 * time.Second}
}

func get(t *testing.T, b *http.Client, u string) (*http.Response, string) {
	resp, err := b.Get(u)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func post(t *testing.T, b *http.Client, u string, form url.Values) (*http.Response, string) {
	resp, err := b.PostForm(u, form)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func (e *testEnv) register(t *testing.T, b *http.Client, email, password string) string {
	_, body := post(t, b, e.server.URL+"/register", url.Values{
		"email":            {email},
		"password":         {password},
		"confirm_password": {password},
	})
	return body
}

func (e *testEnv) coinID(t *testing.T, abbreviation string) uint {
	var coin models.Coin
	require.NoError(t, e.db.Where("abbreviation = ?", abbreviation).First(&coin).Error)
	return coin.ID
}

func (e *testEnv) balances(t *testing.T) []models.Balance {
	var balances []models.Balance
	require.NoError(t, e.db.Order("id").Find(&balances).Error)
	return balances
}

func TestHome_Anonymous(t *testing.T) {
	e := setupTest(t)

	resp, body := get(t, e.browser(t), e.server.URL+"/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Please <a href=\"/login\">log in</a>")
}

func TestPrivatePagesRedirectToLogin(t *testing.T) {
	e := setupTest(t)
	b := e.browser(t)

	for _, path := range []string{"/add-balance", "/edit-balance/1", "/delete-balance/1", "/logout"} {
		resp, _ := get(t, b, e.server.URL+path)
		assert.Equal(t, "/login", resp.Request.URL.Path, path)
	}
}

func TestRegisterLoginLogout(t *testing.T) {
	e := setupTest(t)
	b := e.browser(t)

	body := e.register(t, b, "a@x.com", "pw1")
	assert.Contains(t, body, "User Registered Successfully!")
	assert.Contains(t, body, "a@x.com")
	assert.Contains(t, body, "No balances yet.")

	_, body = get(t, b, e.server.URL+"/logout")
	assert.Contains(t, body, "You have been logout successfully!")
	assert.Contains(t, body, "Please <a href=\"/login\">log in</a>")

	// Flashes are shown once.
	_, body = get(t, b, e.server.URL+"/")
	assert.NotContains(t, body, "You have been logout successfully!")

	_, body = post(t, b, e.server.URL+"/login", url.Values{"email": {"a@x.com"}, "password": {"wrong"}})
	assert.Contains(t, body, "Sorry, Wrong Credentials! Try Again...")

	resp, body := post(t, b, e.server.URL+"/login", url.Values{"email": {"a@x.com"}, "password": {"pw1"}})
	assert.Equal(t, "/", resp.Request.URL.Path)
	assert.Contains(t, body, "User Logged Successfully!")
}

func TestRegister_FormErrors(t *testing.T) {
	e := setupTest(t)
	b := e.browser(t)

	_, body := post(t, b, e.server.URL+"/register", url.Values{
		"email":            {"not-an-email"},
		"password":         {"pw1"},
		"confirm_password": {"pw2"},
	})
	assert.Contains(t, body, "Invalid email address.")
	assert.Contains(t, body, "Field must be equal to password.")

	_, body = post(t, b, e.server.URL+"/register", url.Values{"email": {"a@x.com"}})
	assert.Contains(t, body, "This field is required.")

	var n int64
	require.NoError(t, e.db.Model(&models.User{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestRegister_ExistingEmailWrongPassword(t *testing.T) {
	e := setupTest(t)

	e.register(t, e.browser(t), "a@x.com", "pw1")
	body := e.register(t, e.browser(t), "a@x.com", "pw2")
	assert.Contains(t, body, "Something went wrong!")
}

func TestBalanceLifecycle(t *testing.T) {
	e := setupTest(t)
	b := e.browser(t)
	e.register(t, b, "a@x.com", "pw1")
	btc := e.coinID(t, "BTC")
	doge := e.coinID(t, "DOGE")

	_, body := get(t, b, e.server.URL+"/add-balance")
	assert.Contains(t, body, ">BTC</option>")
	assert.Contains(t, body, ">DOGE</option>")

	e.prices.On("GetTickerPrices", []string{"BTCUSDT"}).
		Return(map[string]decimal.Decimal{"BTCUSDT": decimal.NewFromInt(20000)}, nil)

	resp, body := post(t, b, e.server.URL+"/add-balance", url.Values{"coin": {itoa(btc)}, "amount": {"0.50"}})
	assert.Equal(t, "/", resp.Request.URL.Path)
	assert.Contains(t, body, "Coin Added Successfully!")
	assert.Contains(t, body, "10,000.00")

	balances := e.balances(t)
	require.Len(t, balances, 1)
	id := balances[0].ID
	assert.True(t, decimal.RequireFromString("0.5").Equal(balances[0].Amount))

	_, body = get(t, b, e.server.URL+"/edit-balance/"+itoa(id))
	assert.Contains(t, body, `value="0.5"`)
	assert.Contains(t, body, `selected>BTC</option>`)

	e.prices.On("GetTickerPrices", []string{"DOGEUSDT"}).
		Return(map[string]decimal.Decimal{}, nil)

	_, body = post(t, b, e.server.URL+"/edit-balance/"+itoa(id), url.Values{"coin": {itoa(doge)}, "amount": {"1000"}})
	assert.Contains(t, body, "Balance updated")
	assert.Contains(t, body, "price unavailable")

	balances = e.balances(t)
	require.Len(t, balances, 1)
	assert.Equal(t, doge, balances[0].CoinID)

	_, body = get(t, b, e.server.URL+"/delete-balance/"+itoa(id))
	assert.Contains(t, body, "Balance deleted")
	assert.Empty(t, e.balances(t))
}

func TestAddBalance_FormErrors(t *testing.T) {
	e := setupTest(t)
	b := e.browser(t)
	e.register(t, b, "a@x.com", "pw1")
	btc := itoa(e.coinID(t, "BTC"))

	cases := map[string]url.Values{
		"Sadly we only support up to 7 digits after the decimal point": {"coin": {btc}, "amount": {"0.00000001"}},
		"Sadly we only support values from range 0.0000001 to 100000": {"coin": {btc}, "amount": {"100001"}},
		"Not a valid decimal value.":                                   {"coin": {btc}, "amount": {"abc"}},
		"This field is required.":                                      {"coin": {btc}},
		"Not a valid choice.":                                          {"coin": {"999"}, "amount": {"1"}},
	}
	for msg, form := range cases {
		_, body := post(t, b, e.server.URL+"/add-balance", form)
		assert.Contains(t, body, msg)
	}
	assert.Empty(t, e.balances(t))
}

func TestOtherUsersBalancesAreOffLimits(t *testing.T) {
	e := setupTest(t)
	e.prices.On("GetTickerPrices", mock.Anything).
		Return(map[string]decimal.Decimal{}, errors.New("exchange down"))

	owner := e.browser(t)
	e.register(t, owner, "owner@x.com", "pw1")
	post(t, owner, e.server.URL+"/add-balance", url.Values{"coin": {itoa(e.coinID(t, "BTC"))}, "amount": {"1"}})
	balances := e.balances(t)
	require.Len(t, balances, 1)
	id := itoa(balances[0].ID)

	intruder := e.browser(t)
	e.register(t, intruder, "intruder@x.com", "pw1")

	_, body := get(t, intruder, e.server.URL+"/delete-balance/"+id)
	assert.Contains(t, body, "Balance not found")
	_, body = post(t, intruder, e.server.URL+"/edit-balance/"+id, url.Values{"coin": {itoa(e.coinID(t, "DOGE"))}, "amount": {"5"}})
	assert.Contains(t, body, "Balance not found")

	balances = e.balances(t)
	require.Len(t, balances, 1)
	assert.True(t, decimal.NewFromInt(1).Equal(balances[0].Amount))

	// The owner still sees the balance, unvalued while the exchange is down.
	_, body = get(t, owner, e.server.URL+"/")
	assert.True(t, strings.Contains(body, "price unavailable"), body)
}

func TestLogin_IgnoresForgedHost(t *testing.T) {
	e := setupTest(t)
	e.register(t, e.browser(t), "a@x.com", "pw1")

	var forwarded int32
	outside := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&forwarded, 1)
		w.Header().Set("Location", "http://"+r.Host+"/api/v1/users/1")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"email":"a@x.com"}`))
	}))
	defer outside.Close()

	b := e.browser(t)
	req, err := http.NewRequest(http.MethodPost, e.server.URL+"/login",
		strings.NewReader(url.Values{"email": {"a@x.com"}, "password": {"pw1"}}.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Host = strings.TrimPrefix(outside.URL, "http://")

	resp, err := b.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Zero(t, atomic.LoadInt32(&forwarded))

	// The credentials went to the real REST layer, so the login is genuine.
	assert.Contains(t, string(body), "User Logged Successfully!")
	assert.Contains(t, string(body), "a@x.com")
}

func TestLogin_RefusesForeignLocation(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// A REST layer that names a user on another host.
	rest := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "http://evil.example/api/v1/users/1")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"email":"a@x.com"}`))
	}))
	defer rest.Close()

	tmpl, err := Templates()
	require.NoError(t, err)
	router := gin.New()
	router.SetHTMLTemplate(tmpl)
	newPages(t, rest.URL).Register(router)
	server := httptest.NewServer(router)
	defer server.Close()

	b := (&testEnv{server: server}).browser(t)
	_, body := post(t, b, server.URL+"/login", url.Values{"email": {"a@x.com"}, "password": {"pw1"}})
	assert.Contains(t, body, "Sorry, Wrong Credentials! Try Again...")

	resp, _ := get(t, b, server.URL+"/add-balance")
	assert.Equal(t, "/login", resp.Request.URL.Path)
}

func TestNewHandler_RequiresAbsoluteBase(t *testing.T) {
	sessions := session.NewManager(config.Session{Secret: "test_secret"}, zap.NewNop())
	_, err := NewHandler(sessions, apiclient.New("", time.Second, zap.NewNop()), time.Minute, zap.NewNop())
	assert.Error(t, err)
}
