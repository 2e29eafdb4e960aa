package notify

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/wolfman30/heitor/pkg/logging"
)

const (
	defaultDigestSubject = "Relatório do Heitor"
	utf8Charset          = "UTF-8"
)

type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender delivers owner digests through SES v2. Plain-text digests also
// get an HTML part so line breaks survive webmail, and each email is tagged
// with its kind for SES event publishing.
type SESSender struct {
	client    sesAPI
	from      string
	replyTo   []string
	configSet string
	logger    *logging.Logger
}

// SESConfig holds the sending identity for digests.
type SESConfig struct {
	FromEmail string
	FromName  string
	// ReplyTo routes owner replies somewhere other than the sending identity.
	ReplyTo string
	// ConfigurationSet enables SES event publishing when set.
	ConfigurationSet string
}

// NewSESSender returns nil without a client so callers can fall back.
func NewSESSender(client sesAPI, cfg SESConfig, logger *logging.Logger) *SESSender {
	if client == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = defaultFromName
	}
	s := &SESSender{
		client:    client,
		from:      (&mail.Address{Name: cfg.FromName, Address: cfg.FromEmail}).String(),
		configSet: strings.TrimSpace(cfg.ConfigurationSet),
		logger:    logger,
	}
	if reply := strings.TrimSpace(cfg.ReplyTo); reply != "" {
		s.replyTo = []string{reply}
	}
	return s
}

// Send delivers msg. A missing subject falls back to the digest subject.
func (s *SESSender) Send(ctx context.Context, msg EmailMessage) error {
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("notify: digest recipient is required")
	}

	subject := msg.Subject
	if strings.TrimSpace(subject) == "" {
		subject = defaultDigestSubject
	}
	htmlBody := msg.HTML
	if htmlBody == "" && msg.Body != "" {
		htmlBody = plainToHTML(msg.Body)
	}

	body := &types.Body{}
	if msg.Body != "" {
		body.Text = utf8Content(msg.Body)
	}
	if htmlBody != "" {
		body.Html = utf8Content(htmlBody)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination: &types.Destination{
			ToAddresses: []string{(&mail.Address{Name: msg.ToName, Address: msg.To}).String()},
		},
		ReplyToAddresses: s.replyTo,
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: utf8Content(subject),
				Body:    body,
			},
		},
	}
	if s.configSet != "" {
		input.ConfigurationSetName = aws.String(s.configSet)
	}
	if msg.Kind != "" {
		input.EmailTags = []types.MessageTag{{Name: aws.String("kind"), Value: aws.String(msg.Kind)}}
	}

	output, err := s.client.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("SES digest send failed", "error", err, "to", msg.To, "kind", msg.Kind)
		return fmt.Errorf("notify: SES send failed: %w", err)
	}

	s.logger.Info("digest sent via SES", "to", msg.To, "kind", msg.Kind, "message_id", aws.ToString(output.MessageId))
	return nil
}

func utf8Content(data string) *types.Content {
	return &types.Content{Data: aws.String(data), Charset: aws.String(utf8Charset)}
}

var _ EmailSender = (*SESSender)(nil)
