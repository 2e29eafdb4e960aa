package bootstrap

import (
	"strings"

	appconfig "github.com/wolfman30/heitor/internal/config"
	"github.com/wolfman30/heitor/internal/notify"
	"github.com/wolfman30/heitor/pkg/logging"
)

// BuildEmailSender picks the digest transport, degrading to the stub sender
// when the selected provider is not configured.
func BuildEmailSender(cfg *appconfig.Config, clients AWSClients, logger *logging.Logger) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil {
		return notify.NewStubEmailSender(logger)
	}

	switch cfg.EmailProvider {
	case "ses":
		if clients.SES != nil && strings.TrimSpace(cfg.SESFromEmail) != "" {
			return notify.NewSESSender(clients.SES, notify.SESConfig{
				FromEmail:        cfg.SESFromEmail,
				FromName:         cfg.AssistantName,
				ReplyTo:          cfg.SESReplyTo,
				ConfigurationSet: cfg.SESConfigSet,
			}, logger)
		}
	case "sendgrid":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); sender != nil {
			return sender
		}
	}
	logger.Warn("email delivery disabled; digests will only be logged", "provider", cfg.EmailProvider)
	return notify.NewStubEmailSender(logger)
}
