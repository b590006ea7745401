package email

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/mailersend/mailersend-go"
	log "github.com/sirupsen/logrus"

	"github.com/WailSalutem-Health-Care/user-service/internal/config"
)

const defaultBaseURL = "https://api.mailersend.com"

// Sender is the capability the notification consumer depends on.
type Sender interface {
	Send(ctx context.Context, recipient, subject, textBody, htmlBody string) bool
	SendTemplate(ctx context.Context, recipient, templateID string, variables map[string]interface{}) bool
}

var _ Sender = (*Gateway)(nil)

// Gateway delivers transactional email through the MailerSend API. It never
// retries and never returns an error: every failure becomes false plus a log
// line.
type Gateway struct {
	client      *mailersend.Mailersend
	senderEmail string
	senderName  string
	initialized bool
}

// NewGateway creates a gateway. Without an API key the gateway stays
// uninitialized and every send returns false without network I/O.
func NewGateway(cfg config.EmailConfig, httpClient *http.Client) *Gateway {
	g := &Gateway{
		senderEmail: cfg.SenderEmail,
		senderName:  cfg.SenderName,
	}

	if cfg.APIKey == "" {
		log.Warn("MAILERSEND_API_TOKEN not set. Email gateway disabled.")
		return g
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	transport, err := rebase(cfg.BaseURL, httpClient.Transport)
	if err != nil {
		log.Errorf("Invalid MAILERSEND_BASE_URL %q: %v. Email gateway disabled.", cfg.BaseURL, err)
		return g
	}
	if transport != nil {
		copied := *httpClient
		copied.Transport = transport
		httpClient = &copied
	}

	g.client = mailersend.NewMailersend(cfg.APIKey)
	g.client.SetClient(httpClient)
	g.initialized = true
	log.Println("✓ MailerSend client initialized")
	return g
}

// Initialized reports whether credentials were configured.
func (g *Gateway) Initialized() bool {
	return g != nil && g.initialized
}

// Send delivers an inline email. htmlBody may be empty.
func (g *Gateway) Send(ctx context.Context, recipient, subject, textBody, htmlBody string) bool {
	if !g.Initialized() {
		log.Warn("MailerSend not initialized. Email not sent.")
		return false
	}

	msg := g.newMessage(recipient)
	msg.SetSubject(subject)
	msg.SetText(textBody)
	if htmlBody != "" {
		msg.SetHTML(htmlBody)
	}

	if _, err := g.client.Email.Send(ctx, msg); err != nil {
		log.WithField("recipient", recipient).Errorf("Error sending email: %v", err)
		return false
	}

	log.Printf("Email sent successfully to %s", recipient)
	return true
}

// SendTemplate delivers an email rendered by a provider-side template.
func (g *Gateway) SendTemplate(ctx context.Context, recipient, templateID string, variables map[string]interface{}) bool {
	if !g.Initialized() {
		log.Warn("MailerSend not initialized. Email not sent.")
		return false
	}

	msg := g.newMessage(recipient)
	msg.SetTemplateID(templateID)
	if len(variables) > 0 {
		msg.SetPersonalization([]mailersend.Personalization{
			{Email: recipient, Data: variables},
		})
	}

	if _, err := g.client.Email.Send(ctx, msg); err != nil {
		log.WithFields(log.Fields{
			"recipient":   recipient,
			"template_id": templateID,
		}).Errorf("Error sending template email: %v", err)
		return false
	}

	log.Printf("Template email sent successfully to %s", recipient)
	return true
}

func (g *Gateway) newMessage(recipient string) *mailersend.Message {
	msg := g.client.Email.NewMessage()
	msg.SetFrom(mailersend.From{Name: g.senderName, Email: g.senderEmail})
	msg.SetRecipients([]mailersend.Recipient{{Email: recipient}})
	return msg
}

// rebase returns a transport that sends SDK requests to baseURL instead of
// the public API host. It returns nil when baseURL is the public host.
func rebase(baseURL string, next http.RoundTripper) (http.RoundTripper, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" || baseURL == defaultBaseURL {
		return nil, nil
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	if next == nil {
		next = http.DefaultTransport
	}
	return &baseURLTransport{base: u, next: next}, nil
}

type baseURLTransport struct {
	base *url.URL
	next http.RoundTripper
}

func (t *baseURLTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = t.base.Scheme
	out.URL.Host = t.base.Host
	out.URL.Path = t.base.Path + req.URL.Path
	out.Host = ""
	return t.next.RoundTrip(out)
}
