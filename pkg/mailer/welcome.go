package mailer

import (
	"bytes"
	htmpl "html/template"
	texttpl "text/template"
)

// Message is a rendered email ready to be sent.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// WelcomeData feeds the welcome templates.
type WelcomeData struct {
	AppName string
	Name    string
	Email   string
}

var (
	welcomeText = texttpl.Must(texttpl.New("welcome_text").Parse(
		`Hi {{.Name}},

Your {{.AppName}} account for {{.Email}} is ready.

Thanks,
The {{.AppName}} team
`))

	welcomeHTML = htmpl.Must(htmpl.New("welcome_html").Parse(
		`<!doctype html>
<html>
  <body style="font-family:Arial,sans-serif;color:#222">
    <h2>Welcome, {{.Name}}!</h2>
    <p>Your {{.AppName}} account for <strong>{{.Email}}</strong> is ready.</p>
    <p>Thanks,<br>The {{.AppName}} team</p>
  </body>
</html>
`))
)

// RenderWelcome renders the welcome email sent after sign-up.
func RenderWelcome(d WelcomeData) (Message, error) {
	if d.AppName == "" {
		d.AppName = "User Service"
	}
	var text, html bytes.Buffer
	if err := welcomeText.Execute(&text, d); err != nil {
		return Message{}, err
	}
	if err := welcomeHTML.Execute(&html, d); err != nil {
		return Message{}, err
	}
	return Message{
		To:      d.Email,
		Subject: "Welcome to " + d.AppName,
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
