// Package cmd provides common initialization for the command-line binaries.
package cmd

import (
	"log/slog"

	"github.com/reapflow/reapflow/pkg/actions/addtag"
	"github.com/reapflow/reapflow/pkg/actions/createtask"
	"github.com/reapflow/reapflow/pkg/actions/postad"
	"github.com/reapflow/reapflow/pkg/actions/sendemail"
	"github.com/reapflow/reapflow/pkg/actions/sendsms"
	"github.com/reapflow/reapflow/pkg/persistence"
	"github.com/reapflow/reapflow/pkg/protocol"
	"github.com/reapflow/reapflow/pkg/registry"
)

// NewRegistry builds the node catalog: descriptors for every built-in
// subtype plus the action factories, wired with their collaborators.
func NewRegistry(
	logger *slog.Logger,
	persistence persistence.Persistence,
	emailSender protocol.EmailSender,
	smsSender protocol.SMSSender,
) *registry.Registry {
	reg := registry.NewRegistry(logger)
	reg.RegisterDefaultNodes()

	reg.RegisterAction(sendemail.NewFactory(emailSender, persistence.Templates()))
	reg.RegisterAction(sendsms.NewFactory(smsSender))
	reg.RegisterAction(addtag.NewFactory(persistence.Contacts()))
	reg.RegisterAction(createtask.NewFactory(persistence.Tasks()))
	reg.RegisterAction(postad.NewFactory())

	return reg
}
