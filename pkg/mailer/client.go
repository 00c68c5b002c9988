package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/evolv-devices/storefront-backend/pkg/config"
	pkgerrors "github.com/evolv-devices/storefront-backend/pkg/errors"
	"github.com/evolv-devices/storefront-backend/pkg/logger"
)

var errAPIKeyRequired = errors.New("sendgrid api key is required")

// sender is the transport seam so tests can run without the network.
type sender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// Client sends dynamic-template email through SendGrid.
type Client struct {
	sender    sender
	fromEmail string
	fromName  string
	logger    *logger.Logger
}

// Attachment is an optional file included with a message.
type Attachment struct {
	Filename      string
	MIMEType      string
	ContentBase64 string
}

// Message is one templated email to a single recipient.
type Message struct {
	ToEmail    string
	ToName     string
	TemplateID string
	Payload    map[string]any
	Attachment *Attachment
}

// New builds a SendGrid client from configuration.
func New(cfg config.SendgridConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errAPIKeyRequired
	}
	if strings.TrimSpace(cfg.DefaultFrom) == "" {
		return nil, errors.New("sendgrid from email is required")
	}
	return &Client{
		sender:    sendgrid.NewSendClient(cfg.APIKey),
		fromEmail: cfg.DefaultFrom,
		fromName:  cfg.FromName,
		logger:    logg,
	}, nil
}

// Send delivers one templated message. A non-2xx gateway response is
// surfaced as a dependency error so callers can count it as a failure
// without retrying blindly.
func (c *Client) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.ToEmail) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "recipient email is required")
	}
	if strings.TrimSpace(msg.TemplateID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "template id is required")
	}

	email := c.build(msg)

	resp, err := c.sender.SendWithContext(ctx, email)
	if err != nil {
		c.logError(ctx, msg, err)
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sendgrid send failed")
	}
	if resp.StatusCode >= 400 {
		err := fmt.Errorf("sendgrid responded %d: %s", resp.StatusCode, strings.TrimSpace(resp.Body))
		c.logError(ctx, msg, err)
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sendgrid send rejected")
	}

	if c.logger != nil {
		ctx = c.logger.WithField(ctx, "template_id", msg.TemplateID)
		c.logger.Info(ctx, "notification email sent")
	}
	return nil
}

func (c *Client) build(msg Message) *mail.SGMailV3 {
	email := mail.NewV3Mail()
	email.SetFrom(mail.NewEmail(c.fromName, c.fromEmail))
	email.SetTemplateID(msg.TemplateID)

	personalization := mail.NewPersonalization()
	personalization.AddTos(mail.NewEmail(msg.ToName, msg.ToEmail))
	for key, value := range msg.Payload {
		personalization.SetDynamicTemplateData(key, value)
	}
	email.AddPersonalizations(personalization)

	if msg.Attachment != nil {
		att := mail.NewAttachment()
		att.SetFilename(msg.Attachment.Filename)
		att.SetType(msg.Attachment.MIMEType)
		att.SetContent(msg.Attachment.ContentBase64)
		att.SetDisposition("attachment")
		email.AddAttachment(att)
	}
	return email
}

func (c *Client) logError(ctx context.Context, msg Message, err error) {
	if c.logger == nil {
		return
	}
	ctx = c.logger.WithField(ctx, "template_id", msg.TemplateID)
	c.logger.Error(ctx, "notification email failed", err)
}
