package mail

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"net/url"
	"strings"
	texttemplate "text/template"

	"github.com/giall/hecate/notify"
)

// Site describes the web client that receives token links.
type Site struct {
	AppName string
	Host    string

	VerifyPath     string
	ResetPath      string
	MagicLoginPath string
}

// DefaultSite matches the bundled web client.
func DefaultSite() Site {
	return Site{
		AppName:        "Hecate",
		Host:           "http://localhost:4200",
		VerifyPath:     "verify",
		ResetPath:      "password-reset",
		MagicLoginPath: "token-login",
	}
}

// Rendered is a message ready for a transport.
type Rendered struct {
	Subject string
	Text    string
	HTML    string
	Link    string
}

type templateData struct {
	App      string
	Username string
	Link     string
}

type template struct {
	subject string
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

func newTemplate(name, subject, text, html string) template {
	return template{
		subject: subject,
		text:    texttemplate.Must(texttemplate.New(name).Parse(text)),
		html:    htmltemplate.Must(htmltemplate.New(name).Parse(html)),
	}
}

var templates = map[notify.Kind]template{
	notify.KindEmailVerification: newTemplate("verify",
		"Please verify your email",
		"Welcome to {{.App}}, {{.Username}}!\n\n"+
			"Please verify your email by following this link: {{.Link}}\n\n"+
			"Thank you,\nThe {{.App}} Team",
		`Welcome to {{.App}}, {{.Username}}!<br/><br/>`+
			`Please verify your email by <a href="{{.Link}}">following this link</a>.<br/><br/>`+
			`Thank you,<br/>The {{.App}} Team`,
	),
	notify.KindPasswordReset: newTemplate("reset",
		"Password reset",
		"Hi {{.Username}},\n\n"+
			"You have requested to reset your password.\n\n"+
			"You can do so by following this link: {{.Link}}\n\n"+
			"If this wasn't you, you can ignore this email.\n\n"+
			"Thank you,\nThe {{.App}} Team",
		`Hi {{.Username}},<br/><br/>`+
			`You have requested to reset your password.<br/><br/>`+
			`You can do so by <a href="{{.Link}}">following this link</a>.<br/><br/>`+
			`If this wasn't you, you can ignore this email.<br/><br/>`+
			`Thank you,<br/>The {{.App}} Team`,
	),
	notify.KindMagicLogin: newTemplate("magic",
		"Sign in to {{.App}}",
		"Hi {{.Username}},\n\n"+
			"You can sign in to your account by following this link: {{.Link}}\n\n"+
			"The link can only be used once and will expire in 5 minutes.\n\n"+
			"Thank you,\nThe {{.App}} Team",
		`Hi {{.Username}},<br/><br/>`+
			`You can sign in to your account by <a href="{{.Link}}">following this link</a>.<br/><br/>`+
			`The link can only be used once and will expire in 5 minutes.<br/><br/>`+
			`Thank you,<br/>The {{.App}} Team`,
	),
}

// Link builds the web client URL that carries token.
func (s Site) Link(kind notify.Kind, token string) (string, error) {
	var path string
	switch kind {
	case notify.KindEmailVerification:
		path = s.VerifyPath
	case notify.KindPasswordReset:
		path = s.ResetPath
	case notify.KindMagicLogin:
		path = s.MagicLoginPath
	default:
		return "", fmt.Errorf("mail: unknown message kind %q", kind)
	}
	return strings.TrimRight(s.Host, "/") + "/" + strings.TrimLeft(path, "/") + "?token=" + url.QueryEscape(token), nil
}

// Render produces the subject and bodies for msg.
func (s Site) Render(msg notify.Message) (Rendered, error) {
	tpl, ok := templates[msg.Kind]
	if !ok {
		return Rendered{}, fmt.Errorf("mail: unknown message kind %q", msg.Kind)
	}
	link, err := s.Link(msg.Kind, msg.Token)
	if err != nil {
		return Rendered{}, err
	}

	data := templateData{App: s.AppName, Username: msg.Username, Link: link}

	var text, html bytes.Buffer
	if err := tpl.text.Execute(&text, data); err != nil {
		return Rendered{}, fmt.Errorf("mail: render text: %w", err)
	}
	if err := tpl.html.Execute(&html, data); err != nil {
		return Rendered{}, fmt.Errorf("mail: render html: %w", err)
	}

	return Rendered{
		Subject: strings.ReplaceAll(tpl.subject, "{{.App}}", s.AppName),
		Text:    text.String(),
		HTML:    html.String(),
		Link:    link,
	}, nil
}
