package cei

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"cei-crawler/internal/captcha"
	"cei-crawler/internal/components/assert"
	"cei-crawler/internal/components/telemetry"
	"cei-crawler/internal/scrapers/cei/webforms"
	"cei-crawler/lib/restyutil"
	"cei-crawler/pkg/htmlutil"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

const (
	report_session_login = "session.login"
	report_session_fetch = "session.fetch"
)

var tracer = otel.Tracer("cei-crawler/internal/scrapers/cei")

const (
	DefaultBaseUrl = "https://ceiapp.b3.com.br/CEI_Responsivo"
	LoginPath      = "/login.aspx"

	// the portal only answers requests that look like they came from its
	// own pages.
	portalOrigin = "https://cei.b3.com.br"
	userAgent    = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_6) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/84.0.4147.135 Safari/537.36"

	captchaElementId = "ctl00_ContentPlaceHolder1_dvCaptcha"

	fieldLogin    = "ctl00$ContentPlaceHolder1$txtLogin"
	fieldPassword = "ctl00$ContentPlaceHolder1$txtSenha"
	fieldCaptcha  = "g-recaptcha-response"
)

var loginPostback = webforms.Postback{
	ScriptManager: "ctl00$ContentPlaceHolder1$smLoad",
	UpdatePanel:   "ctl00$ContentPlaceHolder1$UpdatePanel1",
	Trigger:       "ctl00$ContentPlaceHolder1$btnLogar",
	ButtonText:    "Entrar",
}

var (
	ErrLoginPageParse     = errors.New("could not parse login page")
	ErrCaptchaResolution  = errors.New("could not resolve captcha")
	ErrSessionClosed      = errors.New("session closed")
	ErrUnexpectedStatus   = errors.New("unexpected response status")
	ErrUnexpectedRedirect = errors.New("portal redirected the request")
	ErrLoginRejected      = errors.New("portal rejected the credentials")
)

type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type SessionOptions struct {
	Username string
	Password string
	// Pool is shared, the session never closes it.
	Pool *Pool
	// Captcha is optional, without it the login does not look for a
	// challenge.
	Captcha captcha.Resolver
	// BaseUrl defaults to DefaultBaseUrl.
	BaseUrl string
	// Origin is sent as the Origin/Referer host, it defaults to the public
	// portal host.
	Origin string
	// Timeout bounds every single request, it defaults to 30 seconds.
	Timeout time.Duration
	// RequestsPerSecond throttles the session, zero disables throttling.
	RequestsPerSecond float64
	Telemetry         telemetry.API
	// Dump receives every exchange with the password redacted.
	Dump restyutil.Output
}

// Session is one user's authenticated conversation with the portal. It logs
// in lazily before the first data request and stays logged in for its whole
// lifetime.
type Session struct {
	http     *resty.Client
	basePath string
	origin   string
	username string
	password string
	captcha  captcha.Resolver
	tel      telemetry.API

	// loginMutex serializes handshakes, mutex only guards the fields below
	// so State and Close never wait on the network.
	loginMutex sync.Mutex
	mutex      sync.Mutex
	state      State
	closed     bool
}

func NewSession(opts SessionOptions) (*Session, error) {
	assert.NotNil(opts.Pool)
	assert.NotNil(opts.Telemetry)
	assert.NotEmptyStr(opts.Username)

	if opts.BaseUrl == "" {
		opts.BaseUrl = DefaultBaseUrl
	}
	if opts.Origin == "" {
		opts.Origin = portalOrigin
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}

	tel := telemetry.NewScopedAPI("cei_session", opts.Telemetry)

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}

	client := resty.NewWithClient(&http.Client{Transport: opts.Pool, Jar: jar})
	client.SetBaseURL(strings.TrimSuffix(opts.BaseUrl, "/"))
	client.SetTimeout(opts.Timeout)
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
	client.SetHeader("user-agent", userAgent)
	client.SetHeader("origin", opts.Origin)
	if opts.RequestsPerSecond > 0 {
		// burst of 1 keeps the fan-out from hitting the portal all at once
		limiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return limiter.Wait(req.Context())
		})
	}
	telemetry.InstrumentResty(client, tel, telemetry.RestyOptions{
		Output: opts.Dump,
		Redact: []string{fieldPassword},
	})

	return &Session{
		http:     client,
		basePath: strings.TrimSuffix(baseUrl.Path, "/"),
		origin:   strings.TrimSuffix(opts.Origin, "/"),
		username: opts.Username,
		password: opts.Password,
		captcha:  opts.Captcha,
		tel:      tel,
	}, nil
}

func (s *Session) State() State {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state
}

// Login performs the login handshake unless the session already is
// authenticated. Concurrent callers wait for the one handshake in flight.
func (s *Session) Login(ctx context.Context) error {
	s.loginMutex.Lock()
	defer s.loginMutex.Unlock()

	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return ErrSessionClosed
	}
	if s.state == StateAuthenticated {
		s.mutex.Unlock()
		return nil
	}
	s.state = StateAuthenticating
	s.mutex.Unlock()

	err := s.login(ctx)

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		s.state = StateUnauthenticated
		return ErrSessionClosed
	}
	if err != nil {
		s.state = StateUnauthenticated
		return err
	}
	s.state = StateAuthenticated
	return nil
}

func (s *Session) login(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "session:Login")
	defer span.End()

	loginError := func(err error) error {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("cei session: login failed: %w", err)
	}

	s.tel.ReportDebug("login", s.username)

	page, err := s.fetch(ctx, resty.MethodGet, LoginPath, nil)
	if err != nil {
		s.tel.ReportBroken(report_session_login, fmt.Errorf("login page request: %w", err))
		return loginError(err)
	}

	tokens, err := webforms.ExtractTokens(page)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrLoginPageParse, err)
		s.tel.ReportBroken(report_session_login, err)
		return loginError(err)
	}

	form := webforms.NewForm(tokens, loginPostback)
	form.Set(fieldLogin, s.username)
	form.Set(fieldPassword, s.password)

	if s.captcha != nil {
		siteKey := htmlutil.FindById(page.Doc, captchaElementId).AttrOr("data-sitekey", "")
		if siteKey == "" {
			err := fmt.Errorf("%w: captcha site key not found", ErrLoginPageParse)
			s.tel.ReportBroken(report_session_login, err)
			return loginError(err)
		}

		solution, err := s.captcha.Resolve(ctx, siteKey, s.http.BaseURL+LoginPath)
		if err != nil {
			err = fmt.Errorf("%w: %w", ErrCaptchaResolution, err)
			s.tel.ReportWarning(report_session_login, err)
			return loginError(err)
		}
		if solution == "" {
			err := fmt.Errorf("%w: no solution returned", ErrCaptchaResolution)
			s.tel.ReportWarning(report_session_login, err)
			return loginError(err)
		}
		form.Set(fieldCaptcha, solution)
	}

	// solving a captcha can take long enough for the session to be closed
	if s.isClosed() {
		return loginError(ErrSessionClosed)
	}

	page, err = s.fetch(ctx, resty.MethodPost, LoginPath, form)
	if err != nil {
		s.tel.ReportBroken(report_session_login, fmt.Errorf("submit credentials: %w", err))
		return loginError(err)
	}
	// a successful login navigates away, a rejected one re-renders the
	// form or sends the browser back to the login page.
	if page.Redirect == "" || isLoginRedirect(page.Redirect) {
		err := fmt.Errorf("%w: %s", ErrLoginRejected, loginMessage(page))
		s.tel.ReportWarning(report_session_login, err, s.username)
		return loginError(err)
	}

	s.tel.ReportDebug("login done", s.username)
	return nil
}

func isLoginRedirect(target string) bool {
	if unescaped, err := url.PathUnescape(target); err == nil {
		target = unescaped
	}
	if u, err := url.Parse(target); err == nil {
		target = u.Path
	}
	return strings.HasSuffix(strings.ToLower(target), strings.ToLower(LoginPath))
}

func loginMessage(page *webforms.Page) string {
	if page.Redirect != "" {
		return "redirected to " + page.Redirect
	}
	if msg := strings.Join(strings.Fields(page.Doc.Text()), " "); msg != "" {
		return msg
	}
	return "no redirect after submitting credentials"
}

func (s *Session) isClosed() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.closed
}

func (s *Session) fetch(ctx context.Context, method, path string, form url.Values) (*webforms.Page, error) {
	req := s.http.R().
		SetContext(ctx).
		SetHeader("referer", s.origin+s.basePath+path)
	if form != nil {
		req.SetHeader("content-type", "application/x-www-form-urlencoded; charset=UTF-8").
			SetHeader("x-microsoftajax", "Delta=true").
			SetBody(form.Encode())
	}

	res, err := req.Execute(method, path)
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, fmt.Errorf("%w: %s %s: %s", ErrUnexpectedStatus, method, path, res.Status())
	}

	return webforms.ParsePage(res.Body())
}

func (s *Session) request(ctx context.Context, method, path string, form url.Values) (*webforms.Page, error) {
	err := s.Login(ctx)
	if err != nil {
		return nil, err
	}
	if s.isClosed() {
		return nil, ErrSessionClosed
	}

	page, err := s.fetch(ctx, method, path, form)
	if err != nil {
		s.tel.ReportBroken(report_session_fetch, err, method, path)
		return nil, err
	}
	if page.Redirect != "" {
		err := fmt.Errorf("%w: %s", ErrUnexpectedRedirect, page.Redirect)
		s.tel.ReportWarning(report_session_fetch, err, method, path)
		return nil, err
	}
	return page, nil
}

// Get loads a page, logging in first if needed.
func (s *Session) Get(ctx context.Context, path string) (*webforms.Page, error) {
	return s.request(ctx, resty.MethodGet, path, nil)
}

// Postback submits a form to a page, logging in first if needed.
func (s *Session) Postback(ctx context.Context, path string, form url.Values) (*webforms.Page, error) {
	return s.request(ctx, resty.MethodPost, path, form)
}

// Close ends this session only, the shared Pool stays usable by every other
// session. It does not wait for a login in flight, that login fails with
// ErrSessionClosed once it returns.
func (s *Session) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.http.SetCookieJar(nil)
	return nil
}
