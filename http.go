package proposta

import (
	"net/http"
	"time"

	"github.com/agencykit/proposta/middleware/jwtware"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// TokenValidator resolves a raw bearer token into a session. The identity
// provider implements it.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Session, error)
}

// LoginPayload is the credential shape the route authenticator consumes
type LoginPayload interface {
	GetIdentifier() string
	GetPassword() string
	GetExtendedSession() bool
}

// HTTPConfig carries the cookie and token-extraction settings for the web
// surface. Zero values fall back to sane defaults.
type HTTPConfig struct {
	CookieName           string
	TokenLookup          string
	AuthScheme           string
	RejectedRouteKey     string
	RejectedRouteDefault string
	TokenExpiration      int // hours
	ExtendedTokenTTL     int // hours, remember-me sessions
}

func (c *HTTPConfig) setDefaults() {
	if c.CookieName == "" {
		c.CookieName = "session"
	}
	if c.TokenLookup == "" {
		c.TokenLookup = "cookie:" + c.CookieName + ",header:" + router.HeaderAuthorization
	}
	if c.AuthScheme == "" {
		c.AuthScheme = "Bearer"
	}
	if c.RejectedRouteKey == "" {
		c.RejectedRouteKey = "rejected_route"
	}
	if c.RejectedRouteDefault == "" {
		c.RejectedRouteDefault = "/"
	}
}

// RouteAuthenticator glues the orchestrator to the HTTP surface: cookie
// lifecycle on login and logout, and the protected-route middleware for
// everything behind the approval gate.
type RouteAuthenticator struct {
	orchestrator           *Orchestrator
	validator              TokenValidator
	cfg                    HTTPConfig
	cookieDuration         time.Duration
	extendedCookieDuration time.Duration
	Logger                 Logger
	AuthErrorHandler       func(c router.Context, err error) error
	ErrorHandler           func(c router.Context, err error) error
}

func NewHTTPAuthenticator(orchestrator *Orchestrator, validator TokenValidator, cfg HTTPConfig) (*RouteAuthenticator, error) {
	if orchestrator == nil {
		return nil, goerrors.New("orchestrator is required", goerrors.CategoryBadInput)
	}
	if validator == nil {
		return nil, goerrors.New("token validator is required", goerrors.CategoryBadInput)
	}

	cfg.setDefaults()

	cookieDuration := 24 * time.Hour
	if cfg.TokenExpiration > 0 {
		cookieDuration = time.Duration(cfg.TokenExpiration) * time.Hour
	}

	extendedCookieDuration := cookieDuration
	if cfg.ExtendedTokenTTL > 0 {
		extendedCookieDuration = time.Duration(cfg.ExtendedTokenTTL) * time.Hour
	}

	a := &RouteAuthenticator{
		orchestrator:           orchestrator,
		validator:              validator,
		cfg:                    cfg,
		cookieDuration:         cookieDuration,
		extendedCookieDuration: extendedCookieDuration,
		Logger:                 defLogger{},
	}

	a.ErrorHandler = a.defaultErrHandler
	a.AuthErrorHandler = a.defaultAuthErrHandler

	return a, nil
}

func (a RouteAuthenticator) GetCookieDuration() time.Duration {
	return a.cookieDuration
}

// ProtectedRoute builds the middleware guarding authenticated routes. Tokens
// are accepted from the session cookie or the Authorization header.
func (a *RouteAuthenticator) ProtectedRoute(errorHandler func(router.Context, error) error, listeners ...jwtware.ValidationListener) router.MiddlewareFunc {
	return jwtware.New(jwtware.Config{
		ErrorHandler: errorHandler,
		ContextKey:   a.cfg.CookieName,
		TokenLookup:  a.cfg.TokenLookup,
		AuthScheme:   a.cfg.AuthScheme,
		TokenValidator: jwtware.TokenValidatorFunc(func(tokenString string) (jwtware.Session, error) {
			return a.validator.ValidateToken(tokenString)
		}),
		ValidationListeners: append([]jwtware.ValidationListener{a.approvalGate()}, listeners...),
	})
}

// AdminGate rejects sessions whose profile is not an approved admin. The
// profile is refetched on every request, role changes apply immediately and
// lookups fail closed.
func (a *RouteAuthenticator) AdminGate() jwtware.ValidationListener {
	return func(ctx router.Context, session jwtware.Session) error {
		id, err := uuid.Parse(session.GetUserID())
		if err != nil {
			return goerrors.New("session subject is not a valid id", goerrors.CategoryAuth).
				WithCode(goerrors.CodeUnauthorized)
		}

		check := a.orchestrator.CheckRole(ctx.Context(), id)
		if !check.IsAdmin || !check.IsApproved {
			return goerrors.New("administrator access required", goerrors.CategoryAuth).
				WithCode(goerrors.CodeForbidden)
		}

		return nil
	}
}

// approvalGate rejects sessions whose profile is missing or unapproved
func (a *RouteAuthenticator) approvalGate() jwtware.ValidationListener {
	return func(ctx router.Context, session jwtware.Session) error {
		id, err := uuid.Parse(session.GetUserID())
		if err != nil {
			return goerrors.New("session subject is not a valid id", goerrors.CategoryAuth).
				WithCode(goerrors.CodeUnauthorized)
		}

		check := a.orchestrator.CheckRole(ctx.Context(), id)
		if !check.IsApproved {
			return ErrAccountPendingApproval
		}

		return nil
	}
}

func (a *RouteAuthenticator) Login(ctx router.Context, payload LoginPayload) error {
	result, err := a.orchestrator.SignIn(ctx.Context(), payload.GetIdentifier(), payload.GetPassword())
	if err != nil {
		a.Logger.Error("Login error: %s", err)
		return err
	}

	duration := a.cookieDuration
	if payload.GetExtendedSession() {
		duration = a.extendedCookieDuration
	}

	a.setCookieToken(ctx, result.Session.Token, duration)
	return nil
}

func (a *RouteAuthenticator) Logout(ctx router.Context) {
	if err := a.orchestrator.SignOut(ctx.Context()); err != nil {
		a.Logger.Error("Logout error: %s", err)
	}
	a.cookieDel(ctx, a.cfg.CookieName)
}

func (a *RouteAuthenticator) MakeClientRouteAuthErrorHandler(optional bool) func(router.Context, error) error {
	return func(ctx router.Context, err error) error {
		var richErr *goerrors.Error
		if !goerrors.As(err, &richErr) {
			richErr = goerrors.Wrap(err, goerrors.CategoryAuth, "Invalid authentication token").
				WithCode(goerrors.CodeUnauthorized)
		}

		if optional {
			a.Logger.Info("Optional auth failed, proceeding: %s", richErr.Message)
			return ctx.Next()
		}

		return a.AuthErrorHandler(ctx, richErr)
	}
}

func (a *RouteAuthenticator) GetRedirect(ctx router.Context, def ...string) string {
	rejectedRoute := a.cfg.RejectedRouteKey
	r := ctx.Cookies(rejectedRoute)
	if r == "" {
		if len(def) > 0 {
			return def[0]
		}
		return a.cfg.RejectedRouteDefault
	}
	a.cookieDel(ctx, rejectedRoute)
	return r
}

func (a *RouteAuthenticator) SetRedirect(ctx router.Context) {
	rejectedRoute := a.cfg.RejectedRouteKey

	ctx.Cookie(&router.Cookie{
		Name:     rejectedRoute,
		Value:    ctx.OriginalURL(),
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (a *RouteAuthenticator) setCookieToken(c router.Context, val string, duration time.Duration) {
	c.Cookie(&router.Cookie{
		Name:     a.cfg.CookieName,
		Value:    val,
		Expires:  time.Now().Add(duration),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (a *RouteAuthenticator) cookieDel(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (a *RouteAuthenticator) defaultAuthErrHandler(c router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryAuth, "An unexpected authentication error").
			WithCode(goerrors.CodeUnauthorized)
	}

	a.Logger.Info(
		"Authentication error, redirecting to login: %s path=%s",
		richErr.Message,
		c.OriginalURL(),
	)

	a.SetRedirect(c)

	statusCode := http.StatusSeeOther
	if c.Method() == string(router.GET) {
		statusCode = http.StatusFound
	}
	return c.Redirect("/login", statusCode)
}

func (a *RouteAuthenticator) defaultErrHandler(c router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	a.Logger.Info(
		"Middleware error handler: %s category=%s details=%s",
		richErr.Message,
		richErr.Category,
		print.MaybePrettyJSON(richErr.Metadata),
	)

	switch richErr.Category {
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return a.AuthErrorHandler(c, richErr)
	default:
		return c.Status(richErr.Code).Render("errors/500", router.ViewContext{
			"message": richErr.Message,
			"error":   richErr,
		})
	}
}

// GetRouterSession pulls the validated session the protected-route
// middleware stored in locals.
func GetRouterSession(c router.Context, key string) (*Session, error) {
	val := c.Locals(key)
	if val == nil {
		return nil, ErrNoActiveSession
	}

	session, ok := val.(*Session)
	if session == nil || !ok {
		return nil, goerrors.New("unable to decode session from context", goerrors.CategoryAuth)
	}

	return session, nil
}
