// Package sendemail implements the send_email workflow action: it renders a
// stored email template against execution state and hands the result to the
// email sender.
package sendemail

import (
	"github.com/reapflow/reapflow/pkg/models"
	"github.com/reapflow/reapflow/pkg/persistence"
	"github.com/reapflow/reapflow/pkg/protocol"
)

func NewFactory(sender protocol.EmailSender, templates persistence.TemplateRepository) *Factory {
	return &Factory{sender: sender, templates: templates}
}

type Factory struct {
	sender    protocol.EmailSender
	templates persistence.TemplateRepository
}

func (*Factory) ID() string {
	return models.NodeTypeActionSendEmail
}

func (f *Factory) Create(config map[string]any) (protocol.Action, error) {
	if config == nil {
		config = map[string]any{}
	}

	return NewAction(config, f.sender, f.templates)
}
