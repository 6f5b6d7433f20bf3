package aa

import (
	"context"

	"github.com/erc4337/aakeyring/internal/log"
)

// Prompter is the host's user-confirmation dialog. Confirm gates
// user-operation submission; Alert shows a notification with no answer.
type Prompter interface {
	Confirm(ctx context.Context, heading, message string) (bool, error)
	Alert(ctx context.Context, heading, message string) error
}

// DenyPrompter refuses every confirmation. It is the default when no host
// dialog is attached, so nothing can be submitted on-chain without an
// explicit user gate.
type DenyPrompter struct{}

func (DenyPrompter) Confirm(_ context.Context, heading, _ string) (bool, error) {
	log.AA.Warn().Str("heading", heading).Msg("no dialog attached, confirmation denied")
	return false, nil
}

func (DenyPrompter) Alert(_ context.Context, heading, message string) error {
	log.AA.Info().Str("heading", heading).Str("message", message).Msg("alert")
	return nil
}
