package keyring

import (
	"context"
	"encoding/json"

	"github.com/erc4337/aakeyring/internal/log"
	"github.com/erc4337/aakeyring/internal/state"
)

// AccountNotifier receives account lifecycle notifications. The extension
// host's account-management interface sits behind this; tests substitute a
// recording fake.
type AccountNotifier interface {
	AccountCreated(ctx context.Context, account state.Account) error
	AccountUpdated(ctx context.Context, account state.Account) error
	AccountDeleted(ctx context.Context, id string) error
}

// ResponseSink receives the outcome of an approved or rejected request. A
// rejection delivers a nil result.
type ResponseSink interface {
	SubmitResponse(ctx context.Context, requestID string, result json.RawMessage) error
}

// LogNotifier is the default AccountNotifier when no host is attached: it
// just logs the notification.
type LogNotifier struct{}

func (LogNotifier) AccountCreated(_ context.Context, account state.Account) error {
	log.Keyring.Info().Str("id", account.ID).Str("name", account.Name).Msg("host notified: account created")
	return nil
}

func (LogNotifier) AccountUpdated(_ context.Context, account state.Account) error {
	log.Keyring.Info().Str("id", account.ID).Str("name", account.Name).Msg("host notified: account updated")
	return nil
}

func (LogNotifier) AccountDeleted(_ context.Context, id string) error {
	log.Keyring.Info().Str("id", id).Msg("host notified: account deleted")
	return nil
}

// LogSink is the default ResponseSink when no host is attached.
type LogSink struct{}

func (LogSink) SubmitResponse(_ context.Context, requestID string, result json.RawMessage) error {
	log.Keyring.Info().Str("id", requestID).Bool("approved", result != nil).Msg("host notified: response submitted")
	return nil
}
