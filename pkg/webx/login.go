package webx

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

// LoginCredentials authenticate against a form-based login page before
// extraction. Login is always best-effort: a failed attempt is logged and
// extraction proceeds with whatever the page shows.
type LoginCredentials struct {
	Username string
	Password string
}

// usernameSelectors are probed in order; the first present field wins.
var usernameSelectors = []string{
	`input[type="email"]`,
	`input[name="email"]`,
	`input[name="username"]`,
	`input[name="login"]`,
	`input[autocomplete="username"]`,
	`input[type="text"]`,
}

const (
	passwordSelector  = `input[type="password"]`
	submitSelector    = `button[type="submit"], input[type="submit"]`
	oauthSelector     = `button[class*="google"], button[class*="github"], a[href*="oauth"], [class*="sso"]`
	dashboardSelector = `[class*="dashboard"], [data-testid*="dashboard"], nav [class*="avatar"]`

	submitButtonRegex  = `/log ?in|sign ?in|continue|submit/i`
	loginSettleTimeout = 10 * time.Second
	loginPollInterval  = 500 * time.Millisecond
	submitFindTimeout  = 2 * time.Second
)

// performLogin fills and submits a login form, then waits for one of the
// success signals: the URL leaving the login path, the password field
// disappearing, or a dashboard marker appearing. Returns whether login
// looked successful.
func performLogin(ctx context.Context, page *rod.Page, creds LoginCredentials, log *slog.Logger) bool {
	hasPass, passEl, err := page.Has(passwordSelector)
	if err != nil || !hasPass {
		if ok, _, _ := page.Has(oauthSelector); ok {
			log.Info("login skipped: page offers oauth sign-in only")
		} else {
			log.Warn("login skipped: no password field found")
		}
		return false
	}

	var userEl *rod.Element
	for _, sel := range usernameSelectors {
		if ok, el, err := page.Has(sel); err == nil && ok {
			userEl = el
			break
		}
	}
	if userEl != nil {
		if err := userEl.Input(creds.Username); err != nil {
			log.Warn("typing username failed", slog.String("error", err.Error()))
			return false
		}
	}
	if err := passEl.Input(creds.Password); err != nil {
		log.Warn("typing password failed", slog.String("error", err.Error()))
		return false
	}

	startURL := ""
	if info, err := page.Info(); err == nil {
		startURL = info.URL
	}
	if err := submitLogin(page); err != nil {
		log.Warn("submitting login form failed", slog.String("error", err.Error()))
		return false
	}

	if waitLoginSettled(ctx, page, startURL) {
		log.Info("login succeeded")
		return true
	}
	log.Warn("login did not settle, continuing unauthenticated")
	return false
}

// submitLogin tries the submit chain: an explicit submit control, then a
// text-matched button, then plain Enter.
func submitLogin(page *rod.Page) error {
	if ok, btn, err := page.Has(submitSelector); err == nil && ok {
		return btn.Click(proto.InputMouseButtonLeft, 1)
	}
	short := page.Timeout(submitFindTimeout)
	defer short.CancelTimeout()
	if btn, err := short.ElementR("button", submitButtonRegex); err == nil {
		return btn.Click(proto.InputMouseButtonLeft, 1)
	}
	return page.Keyboard.Press(input.Enter)
}

// waitLoginSettled polls the success signals. The URL signal depends on
// where the form lived: a login-path URL must leave the login path, any
// other URL just has to change.
func waitLoginSettled(ctx context.Context, page *rod.Page, startURL string) bool {
	fromLoginPath := looksLikeLoginURL(startURL)
	deadline := time.Now().Add(loginSettleTimeout)
	for time.Now().Before(deadline) {
		if ok, _, err := page.Has(passwordSelector); err == nil && !ok {
			return true
		}
		if info, err := page.Info(); err == nil && startURL != "" {
			if fromLoginPath && !looksLikeLoginURL(info.URL) {
				return true
			}
			if !fromLoginPath && info.URL != startURL {
				return true
			}
		}
		if ok, _, err := page.Has(dashboardSelector); err == nil && ok {
			return true
		}
		if sleepCtx(ctx, loginPollInterval) != nil {
			return false
		}
	}
	return false
}

func looksLikeLoginURL(rawURL string) bool {
	low := strings.ToLower(rawURL)
	for _, marker := range []string{"/login", "/signin", "/sign-in", "/auth"} {
		if strings.Contains(low, marker) {
			return true
		}
	}
	return false
}
