package echo

import (
	"html/template"
	"net/http"

	"github.com/labstack/echo/v4"
)

// ConsentPage is the data behind the consent prompt.
type ConsentPage struct {
	ClientName  string
	Description string
	Scopes      []string
	Code        string
	State       string
	ActionURL   string
}

// LoginPage is the data behind the login form.
type LoginPage struct {
	ActionURL string
	ReturnTo  string
}

// ConsentRenderer renders the user-facing pages of the flow. Deployments
// with their own UI provide an implementation; the template renderer below
// is the default.
type ConsentRenderer interface {
	RenderConsent(c echo.Context, page ConsentPage) error
	RenderLogin(c echo.Context, page LoginPage) error
}

var consentTmpl = template.Must(template.New("consent").Parse(`<!DOCTYPE html>
<html>
<head><title>Authorize {{.ClientName}}</title></head>
<body>
<h1>{{.ClientName}}</h1>
{{if .Description}}<p>{{.Description}}</p>{{end}}
<p>The application requests access to:</p>
<form method="POST" action="{{.ActionURL}}">
<ul>
{{range .Scopes}}
<li><label><input type="checkbox" name="scope" value="{{.}}" checked> {{.}}</label></li>
{{end}}
</ul>
<input type="hidden" name="code" value="{{.Code}}">
<input type="hidden" name="state" value="{{.State}}">
<button type="submit">Permit</button>
</form>
</body>
</html>
`))

var loginTmpl = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html>
<head><title>Sign in</title></head>
<body>
<h1>Sign in</h1>
<form method="POST" action="{{.ActionURL}}">
<label>Email <input type="email" name="email"></label>
<label>Password <input type="password" name="password"></label>
<input type="hidden" name="return_to" value="{{.ReturnTo}}">
<button type="submit">Sign in</button>
</form>
</body>
</html>
`))

// TemplateRenderer is the built-in html/template ConsentRenderer.
type TemplateRenderer struct{}

func NewTemplateRenderer() *TemplateRenderer {
	return &TemplateRenderer{}
}

// RenderConsent implements ConsentRenderer.
func (t *TemplateRenderer) RenderConsent(c echo.Context, page ConsentPage) error {
	return renderHTML(c, consentTmpl, page)
}

// RenderLogin implements ConsentRenderer.
func (t *TemplateRenderer) RenderLogin(c echo.Context, page LoginPage) error {
	return renderHTML(c, loginTmpl, page)
}

func renderHTML(c echo.Context, tmpl *template.Template, data any) error {
	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	resp.WriteHeader(http.StatusOK)
	return tmpl.Execute(resp, data)
}
