package services

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"log"
	texttemplate "text/template"

	"github.com/resend/resend-go/v2"
	"gopkg.in/yaml.v3"
)

// Template names understood by EmailTemplates.
const (
	TemplateWelcome              = "welcome"
	TemplateInterestReceived     = "interest_received"
	TemplateInterestAccepted     = "interest_accepted"
	TemplateKYCApproved          = "kyc_approved"
	TemplateKYCRejected          = "kyc_rejected"
	TemplateVerificationApproved = "verification_approved"
	TemplateVerificationRejected = "verification_rejected"
	TemplateInvestmentStatus     = "investment_status"
	TemplateDealAlert            = "deal_alert"
	TemplatePaymentReceived      = "payment_received"
)

//go:embed templates/email.yaml
var emailTemplatesYAML []byte

type EmailMessage struct {
	To      string
	Subject string
	HTML    string
}

// Mailer delivers a rendered email and returns the provider message id.
type Mailer interface {
	Send(ctx context.Context, msg EmailMessage) (string, error)
}

type ResendMailer struct {
	client *resend.Client
	from   string
}

func NewResendMailer(apiKey, from string) *ResendMailer {
	log.Printf("📧 Email Service Initialized (Resend)")
	log.Printf("   - From Email: %s", from)
	if apiKey == "" {
		log.Printf("⚠️  WARNING: RESEND_API_KEY is empty!")
	}
	return &ResendMailer{client: resend.NewClient(apiKey), from: from}
}

func (m *ResendMailer) Send(ctx context.Context, msg EmailMessage) (string, error) {
	sent, err := m.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    m.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
	})
	if err != nil {
		return "", fmt.Errorf("resend: %w", err)
	}
	return sent.Id, nil
}

type emailTemplateFile struct {
	Layout    string `yaml:"layout"`
	Templates map[string]struct {
		Subject string `yaml:"subject"`
		Body    string `yaml:"body"`
	} `yaml:"templates"`
}

type compiledTemplate struct {
	subject *texttemplate.Template
	body    *template.Template
}

// EmailTemplates renders the embedded transactional templates.
type EmailTemplates struct {
	appName   string
	appURL    string
	layout    *template.Template
	templates map[string]compiledTemplate
}

func NewEmailTemplates(appName, appURL string) (*EmailTemplates, error) {
	var file emailTemplateFile
	if err := yaml.Unmarshal(emailTemplatesYAML, &file); err != nil {
		return nil, fmt.Errorf("parse email templates: %w", err)
	}
	layout, err := template.New("layout").Parse(file.Layout)
	if err != nil {
		return nil, fmt.Errorf("parse email layout: %w", err)
	}

	t := &EmailTemplates{
		appName:   appName,
		appURL:    appURL,
		layout:    layout,
		templates: make(map[string]compiledTemplate, len(file.Templates)),
	}
	for name, def := range file.Templates {
		subject, err := texttemplate.New(name).Option("missingkey=zero").Parse(def.Subject)
		if err != nil {
			return nil, fmt.Errorf("parse %s subject: %w", name, err)
		}
		body, err := template.New(name).Option("missingkey=zero").Parse(def.Body)
		if err != nil {
			return nil, fmt.Errorf("parse %s body: %w", name, err)
		}
		t.templates[name] = compiledTemplate{subject: subject, body: body}
	}
	return t, nil
}

func (t *EmailTemplates) Has(name string) bool {
	_, ok := t.templates[name]
	return ok
}

// Render produces the subject and HTML for a named template. AppName and
// AppURL are always available to the template.
func (t *EmailTemplates) Render(name, to string, data map[string]any) (EmailMessage, error) {
	tpl, ok := t.templates[name]
	if !ok {
		return EmailMessage{}, fmt.Errorf("unknown email template %q", name)
	}

	vars := map[string]any{"AppName": t.appName, "AppURL": t.appURL}
	for k, v := range data {
		vars[k] = v
	}

	var subject, body, page bytes.Buffer
	if err := tpl.subject.Execute(&subject, vars); err != nil {
		return EmailMessage{}, fmt.Errorf("render %s subject: %w", name, err)
	}
	if err := tpl.body.Execute(&body, vars); err != nil {
		return EmailMessage{}, fmt.Errorf("render %s body: %w", name, err)
	}
	if err := t.layout.Execute(&page, map[string]any{
		"AppName": t.appName,
		"Body":    template.HTML(body.String()),
	}); err != nil {
		return EmailMessage{}, fmt.Errorf("render layout: %w", err)
	}
	return EmailMessage{To: to, Subject: subject.String(), HTML: page.String()}, nil
}
