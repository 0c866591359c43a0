// Package web serves the browser pages. Every change goes through the REST
// layer over HTTP; the pages never touch the database.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cryptex/internal/apiclient"
	"cryptex/internal/models"
	"cryptex/internal/session"
	"cryptex/internal/valuation"

	"github.com/gin-gonic/gin"
	ut "github.com/go-playground/universal-translator"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	flashSuccess = "success"
	flashDanger  = "danger"
)

// Templates parses the page templates.
func Templates() (*template.Template, error) {
	return template.New("").ParseFS(templateFS, "templates/*.html")
}

// Handler serves the pages.
type Handler struct {
	sessions   *session.Manager
	identities *session.IdentityLoader
	client     *apiclient.Client
	apiHost    string
	trans      ut.Translator
	logger     *zap.Logger
}

// NewHandler creates the page handler. client must point at a fixed, trusted
// address of the REST layer; identity URLs on any other host are refused.
func NewHandler(sessions *session.Manager, client *apiclient.Client, identityTTL time.Duration, logger *zap.Logger) (*Handler, error) {
	trans, err := setupValidator()
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(client.BaseURL())
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid REST base url %q", client.BaseURL())
	}
	h := &Handler{
		sessions: sessions,
		client:   client,
		apiHost:  base.Host,
		trans:    trans,
		logger:   logger.Named("web"),
	}
	h.identities = session.NewIdentityLoader(session.FetcherFunc(h.fetchIdentity), identityTTL, logger)
	return h, nil
}

// Register mounts the pages on router.
func (h *Handler) Register(router gin.IRouter) {
	pages := router.Group("/", h.sessions.Load(h.identities))
	pages.GET("/", h.Home)
	pages.GET("/register", h.SignUpPage)
	pages.POST("/register", h.SignUp)
	pages.GET("/login", h.LoginPage)
	pages.POST("/login", h.Login)

	private := pages.Group("/", session.RequireLogin("/login"))
	private.Any("/logout", h.Logout)
	private.GET("/add-balance", h.AddBalancePage)
	private.POST("/add-balance", h.AddBalance)
	private.GET("/edit-balance/:id", h.EditBalancePage)
	private.POST("/edit-balance/:id", h.EditBalance)
	private.Any("/delete-balance/:id", h.DeleteBalance)
}

type page struct {
	Title    string
	User     *models.UserProjection
	Flashes  []session.Flash
	Errors   FormErrors
	Email    string
	Balances []valuation.Valued
	Coins    []models.CoinProjection
	Selected uint
	Amount   string
	Action   string
	Submit   string
}

func (h *Handler) render(c *gin.Context, name string, p page) {
	p.User = session.User(c)
	p.Flashes = h.sessions.Flashes(c)
	c.HTML(http.StatusOK, name, p)
}

func (h *Handler) redirectHome(c *gin.Context) {
	c.Redirect(http.StatusFound, "/")
}

func (h *Handler) fetchIdentity(ctx context.Context, url string) (*models.UserProjection, error) {
	u, err := h.client.GetUser(ctx, url)
	if errors.Is(err, apiclient.ErrUserNotFound) {
		return nil, session.ErrNoIdentity
	}
	return u, err
}

// logIn binds the session to the user at location, which must be on the REST
// layer's own host.
func (h *Handler) logIn(c *gin.Context, location string) error {
	if location == "" {
		return errors.New("sign in answered without a location")
	}
	u, err := url.Parse(location)
	if err != nil || u.Host != h.apiHost {
		return fmt.Errorf("sign in answered with a foreign location %q", location)
	}
	h.identities.Forget(location)
	return h.sessions.Login(c, location)
}

// Home lists the balances of the logged in user.
func (h *Handler) Home(c *gin.Context) {
	p := page{Title: "Home"}
	if u := session.User(c); u != nil {
		balances, err := h.client.ListBalances(c.Request.Context(), u.ID)
		if err != nil {
			h.logger.Error("Failed to list balances", zap.Uint("user_id", u.ID), zap.Error(err))
		}
		p.Balances = balances
	}
	h.render(c, "home.html", p)
}

// SignUpPage shows the sign up form.
func (h *Handler) SignUpPage(c *gin.Context) {
	h.render(c, "register.html", page{Title: "Register"})
}

// SignUp registers a new user and logs them in.
func (h *Handler) SignUp(c *gin.Context) {
	var form RegistrationForm
	if err := c.ShouldBind(&form); err != nil {
		h.render(c, "register.html", page{Title: "Register", Email: form.Email, Errors: formErrors(err, h.trans)})
		return
	}

	res, err := h.client.SignIn(c.Request.Context(), form.Email, form.Password)
	if err == nil {
		err = h.logIn(c, res.Location)
	}
	if err != nil {
		h.logger.Info("Registration failed", zap.String("email", form.Email), zap.Error(err))
		h.sessions.AddFlash(c, flashDanger, "Something went wrong!")
		h.render(c, "register.html", page{Title: "Register", Email: form.Email})
		return
	}

	h.sessions.AddFlash(c, flashSuccess, "User Registered Successfully!")
	h.redirectHome(c)
}

// LoginPage shows the sign in form.
func (h *Handler) LoginPage(c *gin.Context) {
	h.render(c, "login.html", page{Title: "Login"})
}

// Login authenticates an existing user.
func (h *Handler) Login(c *gin.Context) {
	var form LoginForm
	if err := c.ShouldBind(&form); err != nil {
		h.render(c, "login.html", page{Title: "Login", Email: form.Email, Errors: formErrors(err, h.trans)})
		return
	}

	res, err := h.client.SignIn(c.Request.Context(), form.Email, form.Password)
	if err == nil && !res.Created {
		if err = h.logIn(c, res.Location); err == nil {
			h.sessions.AddFlash(c, flashSuccess, "User Logged Successfully!")
			h.redirectHome(c)
			return
		}
	}
	if err != nil && !errors.Is(err, apiclient.ErrUnauthorized) {
		h.logger.Error("Login failed", zap.String("email", form.Email), zap.Error(err))
	}

	h.sessions.AddFlash(c, flashDanger, "Sorry, Wrong Credentials! Try Again...")
	h.render(c, "login.html", page{Title: "Login", Email: form.Email})
}

// Logout ends the session.
func (h *Handler) Logout(c *gin.Context) {
	h.identities.Forget(h.sessions.IdentityURL(c))
	if err := h.sessions.Logout(c); err != nil {
		h.logger.Error("Failed to log out", zap.Error(err))
	}
	h.sessions.AddFlash(c, flashSuccess, "You have been logout successfully!")
	h.redirectHome(c)
}

// AddBalancePage shows the balance form.
func (h *Handler) AddBalancePage(c *gin.Context) {
	h.render(c, "balance.html", h.addBalancePage(c))
}

func (h *Handler) addBalancePage(c *gin.Context) page {
	return page{
		Title:  "Add balance",
		Coins:  h.coins(c),
		Action: "/add-balance",
		Submit: "Add",
	}
}

// AddBalance creates a balance for the logged in user.
func (h *Handler) AddBalance(c *gin.Context) {
	p := h.addBalancePage(c)
	coinID, amount, errs := h.bindBalance(c, p.Coins)
	if errs != nil {
		p.Errors, p.Selected, p.Amount = errs, coinID, c.PostForm("amount")
		h.render(c, "balance.html", p)
		return
	}

	u := session.User(c)
	if err := h.client.CreateBalance(c.Request.Context(), u.ID, coinID, amount); err != nil {
		h.logger.Error("Failed to create balance", zap.Uint("user_id", u.ID), zap.Error(err))
		h.sessions.AddFlash(c, flashDanger, "Something went wrong, please try again!")
		p.Selected, p.Amount = coinID, amount
		h.render(c, "balance.html", p)
		return
	}

	h.sessions.AddFlash(c, flashSuccess, "Coin Added Successfully!")
	h.redirectHome(c)
}

// EditBalancePage shows the balance form filled with the current values.
func (h *Handler) EditBalancePage(c *gin.Context) {
	b, ok := h.ownedBalance(c)
	if !ok {
		return
	}
	p := h.editBalancePage(c, b.ID)
	p.Amount = b.Amount
	for _, coin := range p.Coins {
		if coin.Abbreviation == b.Coin {
			p.Selected = coin.ID
		}
	}
	h.render(c, "balance.html", p)
}

func (h *Handler) editBalancePage(c *gin.Context, id uint) page {
	return page{
		Title:  "Edit balance",
		Coins:  h.coins(c),
		Action: fmt.Sprintf("/edit-balance/%d", id),
		Submit: "Save",
	}
}

// EditBalance changes one of the logged in user's balances.
func (h *Handler) EditBalance(c *gin.Context) {
	b, ok := h.ownedBalance(c)
	if !ok {
		return
	}
	p := h.editBalancePage(c, b.ID)
	coinID, amount, errs := h.bindBalance(c, p.Coins)
	if errs != nil {
		p.Errors, p.Selected, p.Amount = errs, coinID, c.PostForm("amount")
		h.render(c, "balance.html", p)
		return
	}

	err := h.client.UpdateBalance(c.Request.Context(), b.ID, coinID, amount)
	switch {
	case errors.Is(err, apiclient.ErrNotFound):
		h.sessions.AddFlash(c, flashDanger, "Balance not found")
	case err != nil:
		h.logger.Error("Failed to update balance", zap.Uint("balance_id", b.ID), zap.Error(err))
		h.sessions.AddFlash(c, flashDanger, "Something went wrong, please try again!")
		p.Selected, p.Amount = coinID, amount
		h.render(c, "balance.html", p)
		return
	default:
		h.sessions.AddFlash(c, flashSuccess, "Balance updated")
	}
	h.redirectHome(c)
}

// DeleteBalance removes one of the logged in user's balances.
func (h *Handler) DeleteBalance(c *gin.Context) {
	b, ok := h.ownedBalance(c)
	if !ok {
		return
	}
	if err := h.client.DeleteBalance(c.Request.Context(), b.ID); err != nil {
		h.logger.Error("Failed to delete balance", zap.Uint("balance_id", b.ID), zap.Error(err))
		h.sessions.AddFlash(c, flashDanger, "Something went wrong!")
	} else {
		h.sessions.AddFlash(c, flashSuccess, "Balance deleted")
	}
	h.redirectHome(c)
}

// ownedBalance finds the :id balance among the logged in user's balances. When
// it is not there the visitor is sent home and false is returned.
func (h *Handler) ownedBalance(c *gin.Context) (valuation.Valued, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err == nil {
		u := session.User(c)
		balances, lerr := h.client.ListBalances(c.Request.Context(), u.ID)
		if lerr != nil {
			h.logger.Error("Failed to list balances", zap.Uint("user_id", u.ID), zap.Error(lerr))
		}
		for _, b := range balances {
			if b.ID == uint(id) {
				return b, true
			}
		}
	}
	h.sessions.AddFlash(c, flashDanger, "Balance not found")
	h.redirectHome(c)
	return valuation.Valued{}, false
}

func (h *Handler) coins(c *gin.Context) []models.CoinProjection {
	coins, err := h.client.ListCoins(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list coins", zap.Error(err))
	}
	return coins
}

// bindBalance validates the balance form. The returned amount is normalized.
func (h *Handler) bindBalance(c *gin.Context, coins []models.CoinProjection) (uint, string, FormErrors) {
	var form BalanceForm
	err := c.ShouldBind(&form)
	coinID, _ := strconv.ParseUint(form.Coin, 10, 64)
	if err != nil {
		return uint(coinID), "", formErrors(err, h.trans)
	}

	for _, coin := range coins {
		if coin.ID == uint(coinID) {
			amount, _ := decimal.NewFromString(strings.TrimSpace(form.Amount))
			return coin.ID, models.FormatAmount(amount), nil
		}
	}
	return uint(coinID), "", FormErrors{"coin": "Not a valid choice."}
}
