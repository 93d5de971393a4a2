// Package sendsms implements the send_sms workflow action.
package sendsms

import (
	"github.com/reapflow/reapflow/pkg/models"
	"github.com/reapflow/reapflow/pkg/protocol"
)

func NewFactory(sender protocol.SMSSender) *Factory {
	return &Factory{sender: sender}
}

type Factory struct {
	sender protocol.SMSSender
}

func (*Factory) ID() string {
	return models.NodeTypeActionSendSMS
}

func (f *Factory) Create(config map[string]any) (protocol.Action, error) {
	if config == nil {
		config = map[string]any{}
	}

	return NewAction(config, f.sender)
}
