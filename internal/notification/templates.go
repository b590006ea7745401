package notification

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	"text/template"

	"github.com/WailSalutem-Health-Care/user-service/internal/messaging"
)

// Message is a rendered email ready for the gateway.
type Message struct {
	Subject string
	Text    string
	HTML    string
}

// Renderer turns an event into an email.
type Renderer interface {
	Render(eventType messaging.EventType, user messaging.UserData) (Message, error)
}

type emailContent struct {
	Subject    string
	Heading    string
	Color      string
	Greeting   bool
	Paragraphs []string
	Text       string
}

var contents = map[messaging.EventType]emailContent{
	messaging.EventUserCreated: {
		Subject: "Welcome to Our Platform",
		Heading: "Welcome, %s!",
		Color:   "#333",
		Paragraphs: []string{
			"Thank you for creating an account on our platform.",
			"Your account has been successfully set up and is ready to use.",
			"If you have any questions, feel free to contact our support team.",
		},
		Text: "Welcome! Your account has been created successfully.",
	},
	messaging.EventUserUpdated: {
		Subject:  "Account Updated",
		Heading:  "Account Updated",
		Color:    "#333",
		Greeting: true,
		Paragraphs: []string{
			"Your account information has been successfully updated.",
			"If you did not make this change, please contact our support team immediately.",
		},
		Text: "Your account has been updated successfully.",
	},
	messaging.EventUserDeleted: {
		Subject:  "Account Deleted",
		Heading:  "Account Deleted",
		Color:    "#d32f2f",
		Greeting: true,
		Paragraphs: []string{
			"We wanted to confirm that your account has been successfully deleted from our platform.",
			"All your data has been removed from our systems.",
			"If you have any questions or would like to reactivate your account, please contact our support team.",
		},
		Text: "Your account has been deleted. If this was not intentional, please contact support.",
	},
}

var htmlLayout = htmltemplate.Must(htmltemplate.New("email").Parse(`<html>
  <body style="font-family: Arial, sans-serif;">
    <div style="max-width: 600px; margin: 0 auto;">
      <h1 style="color: {{.Color}};">{{.Heading}}</h1>
      {{- if .Greeting}}
      <p>Hello {{.Name}},</p>
      {{- end}}
      {{- range .Paragraphs}}
      <p>{{.}}</p>
      {{- end}}
      <hr style="border: none; border-top: 1px solid #ddd; margin: 20px 0;">
      <p style="color: #666; font-size: 12px;">
        Best regards,<br>
        User Management System Team
      </p>
    </div>
  </body>
</html>
`))

var textLayout = template.Must(template.New("email").Parse("Hello {{.Name}},\n\n{{.Text}}"))

type view struct {
	emailContent
	Name  string
	Color htmltemplate.CSS
}

// TemplateRenderer renders the built-in notification emails.
type TemplateRenderer struct{}

var _ Renderer = TemplateRenderer{}

func (TemplateRenderer) Render(eventType messaging.EventType, user messaging.UserData) (Message, error) {
	content, ok := contents[eventType]
	if !ok {
		return Message{}, fmt.Errorf("%w: %s", ErrNoTemplate, eventType)
	}

	v := view{
		emailContent: content,
		Name:         user.Name,
		Color:        htmltemplate.CSS(content.Color),
	}
	if strings.Contains(content.Heading, "%s") {
		v.Heading = fmt.Sprintf(content.Heading, user.Name)
	}

	var html bytes.Buffer
	if err := htmlLayout.Execute(&html, v); err != nil {
		return Message{}, fmt.Errorf("render html body: %w", err)
	}

	var text bytes.Buffer
	if err := textLayout.Execute(&text, v); err != nil {
		return Message{}, fmt.Errorf("render text body: %w", err)
	}

	return Message{
		Subject: content.Subject,
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
