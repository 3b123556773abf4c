package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	. "github.com/roelfdiedericks/instasave/internal/logging"
)

// Endpoint describes how to reach the Instagram web API.
type Endpoint struct {
	BaseURL   string
	AppID     string
	UserAgent string
	Client    *http.Client // nil means a client without timeout
}

func (e Endpoint) client() *http.Client {
	if e.Client != nil {
		return e.Client
	}
	return &http.Client{}
}

func (e Endpoint) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(e.BaseURL, "/")+path, body)
	if err != nil {
		return nil, err
	}
	if e.UserAgent != "" {
		req.Header.Set("User-Agent", e.UserAgent)
	}
	if e.AppID != "" {
		req.Header.Set("X-IG-App-ID", e.AppID)
	}
	return req, nil
}

// WebLogin logs in through the same ajax endpoint the Instagram website uses.
type WebLogin struct {
	Endpoint
	now func() time.Time
}

// NewWebLogin returns the production Authenticator.
func NewWebLogin(ep Endpoint) *WebLogin {
	return &WebLogin{Endpoint: ep, now: time.Now}
}

type loginReply struct {
	Authenticated     bool   `json:"authenticated"`
	User              bool   `json:"user"`
	UserID            string `json:"userId"`
	Status            string `json:"status"`
	Message           string `json:"message"`
	TwoFactorRequired bool   `json:"two_factor_required"`
	CheckpointURL     string `json:"checkpoint_url"`
}

// Login implements Authenticator.
func (w *WebLogin) Login(ctx context.Context, username, password string) (*Session, error) {
	base, err := url.Parse(w.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base url: %v", ErrAuth, err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuth, err)
	}
	client := *w.client()
	client.Jar = jar

	// Step 1: the landing page hands out the csrftoken cookie
	req, err := w.newRequest(ctx, http.MethodGet, "/", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuth, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: landing page: %v", ErrAuth, err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	csrf := cookieValue(jar, base, "csrftoken")
	if csrf == "" {
		return nil, fmt.Errorf("%w: no csrftoken issued", ErrAuth)
	}

	// Step 2: credentials
	form := url.Values{
		"username":      {username},
		"enc_password":  {"#PWD_INSTAGRAM_BROWSER:0:" + strconv.FormatInt(w.now().Unix(), 10) + ":" + password},
		"queryParams":   {"{}"},
		"optIntoOneTap": {"false"},
	}
	req, err = w.newRequest(ctx, http.MethodPost, "/api/v1/web/accounts/login/ajax/", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuth, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-CSRFToken", csrf)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Referer", base.String()+"/")

	resp, err = client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: login request: %v", ErrAuth, err)
	}
	defer resp.Body.Close()

	var reply loginReply
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&reply); err != nil {
		return nil, fmt.Errorf("%w: login reply (status %d): %v", ErrAuth, resp.StatusCode, err)
	}

	switch {
	case reply.TwoFactorRequired:
		return nil, fmt.Errorf("%w: two-factor authentication required", ErrAuth)
	case reply.CheckpointURL != "":
		return nil, fmt.Errorf("%w: checkpoint required (%s)", ErrAuth, reply.CheckpointURL)
	case !reply.Authenticated && !reply.User:
		return nil, fmt.Errorf("%w: user %q does not exist", ErrAuth, username)
	case !reply.Authenticated:
		msg := reply.Message
		if msg == "" {
			msg = "wrong password"
		}
		return nil, fmt.Errorf("%w: %s", ErrAuth, msg)
	}

	cookies := make(map[string]string)
	for _, c := range jar.Cookies(base) {
		cookies[c.Name] = c.Value
	}
	if token := cookies["csrftoken"]; token != "" {
		csrf = token
	}

	L_debug("instagram: login accepted", "username", username, "userID", reply.UserID, "cookies", len(cookies))
	return &Session{
		Username:  username,
		UserID:    reply.UserID,
		CSRFToken: csrf,
		Cookies:   cookies,
		CreatedAt: w.now().UTC(),
	}, nil
}

func cookieValue(jar http.CookieJar, u *url.URL, name string) string {
	for _, c := range jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}
