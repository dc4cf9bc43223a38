package cei

import (
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"unicode/utf16"

	"cei-crawler/internal/captcha"
	"cei-crawler/internal/components/telemetry"
	"cei-crawler/internal/scrapers/cei/parse"
	"cei-crawler/internal/scrapers/cei/webforms"
)

const (
	testBasePath = "/CEI_Responsivo"
	testUsername = "12345678900"
	testPassword = "hunter2"
	testSiteKey  = "6LdDyRsUAAAAAHpdIpLXtCf4zIwPUa0mZ0K-hFtn"

	loginViewState   = "login-viewstate"
	sectionViewState = "section-viewstate"
)

type fakeBroker struct {
	value    string
	name     string
	accounts []string
}

// fakePortal serves the login page and both statement sections the way
// the portal does: full pages on GET, async postback deltas on POST, and
// empty panels for requests carrying stale tokens.
type fakePortal struct {
	server *httptest.Server

	brokers []fakeBroker
	// captcha adds the reCAPTCHA element to the login page.
	captcha bool
	// noLoginTokens serves a login page without hidden fields.
	noLoginTokens bool
	// failAccountsOf answers the account list of that broker with a 500.
	failAccountsOf string
	// rejectWithRedirect answers bad credentials by sending the browser back
	// to the login page instead of re-rendering the form.
	rejectWithRedirect bool
	// expired makes every section request look unauthenticated.
	expired atomic.Bool

	mutex          sync.Mutex
	logins         []url.Values
	statementForms []url.Values
}

func newFakePortal(t testing.TB, brokers ...fakeBroker) *fakePortal {
	p := &fakePortal{brokers: brokers}

	mux := http.NewServeMux()
	mux.HandleFunc(testBasePath+LoginPath, p.handleLogin)
	mux.HandleFunc(testBasePath+AssetsPath, p.handleSection(assetsBrokersPage, assetsStatement))
	mux.HandleFunc(testBasePath+PassiveIncomesPath, p.handleSection(incomesBrokersPage, incomesStatement))

	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakePortal) loginCount() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.logins)
}

func (p *fakePortal) statements() []url.Values {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return append([]url.Values{}, p.statementForms...)
}

func (p *fakePortal) broker(value string) (fakeBroker, bool) {
	for _, b := range p.brokers {
		if b.value == value {
			return b, true
		}
	}
	return fakeBroker{}, false
}

func hiddenInputs(viewState string) string {
	return fmt.Sprintf(
		`<input type="hidden" name="__VIEWSTATE" id="__VIEWSTATE" value="%s" />
<input type="hidden" name="__VIEWSTATEGENERATOR" id="__VIEWSTATEGENERATOR" value="B345DEBA" />
<input type="hidden" name="__EVENTVALIDATION" id="__EVENTVALIDATION" value="%s-validation" />`,
		viewState, viewState,
	)
}

func deltaBody(records ...[3]string) string {
	var b strings.Builder
	for _, r := range records {
		fmt.Fprintf(&b, "%d|%s|%s|%s|", len(utf16.Encode([]rune(r[2]))), r[0], r[1], r[2])
	}
	return b.String()
}

func deltaWithTokens(panel, viewState string) string {
	return deltaBody(
		[3]string{"updatePanel", "ctl00_ContentPlaceHolder1_updFiltro", panel},
		[3]string{"hiddenField", webforms.FieldViewState, viewState},
		[3]string{"hiddenField", webforms.FieldViewStateGenerator, "B345DEBA"},
		[3]string{"hiddenField", webforms.FieldEventValidation, viewState + "-validation"},
	)
}

func (p *fakePortal) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		var body strings.Builder
		body.WriteString(`<!DOCTYPE html><html><body><form id="aspnetForm">`)
		if !p.noLoginTokens {
			body.WriteString(hiddenInputs(loginViewState))
		}
		if p.captcha {
			fmt.Fprintf(&body, `<div id="ctl00_ContentPlaceHolder1_dvCaptcha" class="g-recaptcha" data-sitekey="%s"></div>`, testSiteKey)
		}
		body.WriteString(`</form></body></html>`)
		fmt.Fprint(w, body.String())
		return
	}

	_ = r.ParseForm()
	p.mutex.Lock()
	p.logins = append(p.logins, r.PostForm)
	p.mutex.Unlock()

	if r.PostForm.Get(webforms.FieldViewState) != loginViewState ||
		r.PostForm.Get(fieldLogin) != testUsername ||
		r.PostForm.Get(fieldPassword) != testPassword {
		if p.rejectWithRedirect {
			fmt.Fprint(w, deltaBody([3]string{"pageRedirect", "", url.PathEscape(testBasePath + LoginPath + "?erro=1")}))
			return
		}
		fmt.Fprint(w, deltaBody([3]string{"updatePanel", "ctl00_ContentPlaceHolder1_UpdatePanel1", "Usuário ou senha inválidos"}))
		return
	}

	http.SetCookie(w, &http.Cookie{Name: "ASP.NET_SessionId", Value: "authenticated", Path: "/"})
	fmt.Fprint(w, deltaBody([3]string{"pageRedirect", "", testBasePath + "/home.aspx"}))
}

func authenticated(r *http.Request) bool {
	cookie, err := r.Cookie("ASP.NET_SessionId")
	return err == nil && cookie.Value == "authenticated"
}

func (p *fakePortal) handleSection(
	brokersPage func(brokers []fakeBroker) string,
	statement func(broker fakeBroker, form url.Values) string,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !authenticated(r) || p.expired.Load() {
			fmt.Fprint(w, deltaBody([3]string{"pageRedirect", "", testBasePath + LoginPath}))
			return
		}

		if r.Method == http.MethodGet {
			fmt.Fprint(w, brokersPage(p.brokers))
			return
		}

		_ = r.ParseForm()
		form := r.PostForm
		broker, ok := p.broker(form.Get(fieldBroker))
		if !ok {
			fmt.Fprint(w, deltaWithTokens("", sectionViewState))
			return
		}

		switch {
		case form.Get(webforms.FieldEventTarget) == fieldBroker:
			if broker.value == p.failAccountsOf {
				http.Error(w, "Erro", http.StatusInternalServerError)
				return
			}
			if form.Get(webforms.FieldViewState) != sectionViewState {
				fmt.Fprint(w, deltaWithTokens("", sectionViewState))
				return
			}
			if len(broker.accounts) == 0 {
				fmt.Fprint(w, deltaWithTokens(`<span>Nenhuma conta encontrada</span>`, sectionViewState))
				return
			}
			var options strings.Builder
			for _, account := range broker.accounts {
				fmt.Fprintf(&options, `<option value="%s">%s</option>`, account, account)
			}
			panel := fmt.Sprintf(
				`<select name="ctl00$ContentPlaceHolder1$ddlContas" id="%s">%s</select>`,
				parse.AccountSelectId, options.String(),
			)
			fmt.Fprint(w, deltaWithTokens(panel, "accounts-"+broker.value))

		case form.Get(fieldQuery) == "Consultar":
			p.mutex.Lock()
			p.statementForms = append(p.statementForms, form)
			p.mutex.Unlock()

			if form.Get(webforms.FieldViewState) != "accounts-"+broker.value {
				fmt.Fprint(w, deltaWithTokens("", "accounts-"+broker.value))
				return
			}
			fmt.Fprint(w, deltaWithTokens(statement(broker, form), "accounts-"+broker.value))

		default:
			http.Error(w, "unexpected postback", http.StatusBadRequest)
		}
	}
}

func brokerOptions(brokers []fakeBroker) string {
	var b strings.Builder
	b.WriteString(`<option value="-1">Selecione</option>`)
	for _, broker := range brokers {
		fmt.Fprintf(&b, `<option value="%s">%s</option>`, broker.value, html.EscapeString(broker.name))
	}
	return b.String()
}

func assetsBrokersPage(brokers []fakeBroker) string {
	return fmt.Sprintf(`<!DOCTYPE html><html><body><form id="aspnetForm">%s
<select name="ctl00$ContentPlaceHolder1$ddlAgentes" id="%s">%s</select>
<input name="ctl00$ContentPlaceHolder1$txtDataDeBolsa" type="text" value="15/03/2019" id="ctl00_ContentPlaceHolder1_txtDataDeBolsa" />
<input name="ctl00$ContentPlaceHolder1$txtDataAteBolsa" type="text" value="04/09/2020" id="ctl00_ContentPlaceHolder1_txtDataAteBolsa" />
</form></body></html>`, hiddenInputs(sectionViewState), parse.BrokerSelectId, brokerOptions(brokers))
}

// assetsStatement lists one trade per broker, its code carries the broker
// value so flattened results can be traced back.
func assetsStatement(broker fakeBroker, form url.Values) string {
	return fmt.Sprintf(`<table id="%s"><tbody><tr>
<td>05/06/2020</td><td>C</td><td>Merc. Fracionário</td><td></td><td>B%sF</td>
<td>AZUL        PN      N2</td><td>2</td><td>21,09</td><td>42,18</td><td>1</td>
</tr></tbody></table>`, parse.AssetsTableId, broker.value)
}

func incomesBrokersPage(brokers []fakeBroker) string {
	return fmt.Sprintf(`<!DOCTYPE html><html><body><form id="aspnetForm">%s
<select name="ctl00$ContentPlaceHolder1$ddlAgentes" id="%s">%s</select>
<span id="ctl00_ContentPlaceHolder1_lblPeriodoInicial">01/06/2021</span>
<span id="ctl00_ContentPlaceHolder1_lblPeriodoFinal">30/06/2021</span>
<input name="ctl00$ContentPlaceHolder1$txtData" type="text" value="30/06/2021" id="ctl00_ContentPlaceHolder1_txtData" />
</form></body></html>`, hiddenInputs(sectionViewState), parse.BrokerSelectId, brokerOptions(brokers))
}

func incomesStatement(broker fakeBroker, form url.Values) string {
	return fmt.Sprintf(`<h4 class="title">%s</h4>
<p class="subtitle">Proventos Creditados</p>
<table><tbody><tr>
<td>FII MAXI REN</td><td>CI        </td><td>MXRF11      </td><td>%s</td>
<td>RENDIMENTO</td><td>1.165,000</td><td>1</td><td>111,55</td><td>111,55</td>
</tr></tbody></table>`, html.EscapeString(broker.name), form.Get(fieldIncomesDate))
}

type sessionOption func(*SessionOptions)

func withCaptcha(resolver captcha.Resolver) sessionOption {
	return func(o *SessionOptions) { o.Captcha = resolver }
}

func withPassword(password string) sessionOption {
	return func(o *SessionOptions) { o.Password = password }
}

func withPool(pool *Pool) sessionOption {
	return func(o *SessionOptions) { o.Pool = pool }
}

func (p *fakePortal) session(t testing.TB, tel telemetry.API, opts ...sessionOption) *Session {
	sessionOpts := SessionOptions{
		Username:  testUsername,
		Password:  testPassword,
		BaseUrl:   p.server.URL + testBasePath,
		Origin:    p.server.URL,
		Telemetry: tel,
	}
	for _, opt := range opts {
		opt(&sessionOpts)
	}
	if sessionOpts.Pool == nil {
		pool := NewPool(PoolOptions{Size: 4})
		t.Cleanup(func() { _ = pool.Close() })
		sessionOpts.Pool = pool
	}

	session, err := NewSession(sessionOpts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = session.Close() })
	return session
}

var defaultBrokers = []fakeBroker{
	{value: "90", name: "90 - EASYNVEST - TITULO CV S.A.", accounts: []string{"0", "11111"}},
	{value: "3", name: "3 - XP INVESTIMENTOS CCTVM S/A", accounts: nil},
	{value: "386", name: "386 - RICO INVESTIMENTOS - GRUPO XP", accounts: []string{"0"}},
}
