package ledger

import (
	"context"
	"fmt"

	"github.com/aviate-labs/agent-go/principal"
)

const (
	MethodGetMinted    = "get_minted_transactions"
	MethodGetFinalized = "get_finalized_transactions"
	MethodPublicKey    = "public_key"
	MethodWithdraw     = "withdraw"
)

// Result is a tagged reply. Exactly one of Ok and Err is set.
type Result[T any] struct {
	Ok  *T      `ic:"Ok,variant" json:"Ok,omitempty"`
	Err *string `ic:"Err,variant" json:"Err,omitempty"`
}

// Unwrap returns the Ok value, or the Err branch as an error wrapping ErrService.
func (r Result[T]) Unwrap() (T, error) {
	var zero T
	switch {
	case r.Err != nil:
		return zero, fmt.Errorf("%w: %s", ErrService, *r.Err)
	case r.Ok == nil:
		return zero, ErrResultMismatch
	}
	return *r.Ok, nil
}

type PublicKeyReply struct {
	PublicKey string `ic:"public_key" json:"public_key"`
}

type WithdrawReply struct {
	TxDigest string `ic:"tx_digest" json:"tx_digest"`
}

type (
	PublicKeyResult = Result[PublicKeyReply]
	WithdrawResult  = Result[WithdrawReply]
)

type Subaccount = []byte

type Account struct {
	Owner      principal.Principal `ic:"owner" json:"owner"`
	Subaccount *Subaccount         `ic:"subaccount,omitempty" json:"subaccount,omitempty"`
}

type TransferArgsWithdraw struct {
	Recipient string  `ic:"recipient" json:"recipient"`
	ToAccount Account `ic:"to_account" json:"to_account"`
	Amount    string  `ic:"amount" json:"amount"`
}

// Minter is the typed client of the bridge minter service.
type Minter struct {
	ch *Channel
}

func NewMinter(ch *Channel) *Minter {
	return &Minter{ch: ch}
}

func (m *Minter) FetchRootKey(ctx context.Context) error {
	return m.ch.FetchRootKey(ctx)
}

func (m *Minter) HasTrustRoot() bool {
	return m.ch.HasTrustRoot()
}

func (m *Minter) Status(ctx context.Context) (*ReplicaStatus, error) {
	return m.ch.Status(ctx)
}

// GetMintedTransactions returns every minted record as a raw JSON string.
func (m *Minter) GetMintedTransactions(ctx context.Context) ([]string, error) {
	return m.texts(ctx, MethodGetMinted)
}

// GetFinalizedTransactions returns every finalized burn as a raw JSON string.
func (m *Minter) GetFinalizedTransactions(ctx context.Context) ([]string, error) {
	return m.texts(ctx, MethodGetFinalized)
}

func (m *Minter) PublicKey(ctx context.Context) (PublicKeyResult, error) {
	var out PublicKeyResult
	err := m.ch.Call(ctx, MethodPublicKey, []any{&out})
	return out, err
}

// Withdraw burns wrapped tokens and releases them to args.Recipient on the source chain.
func (m *Minter) Withdraw(ctx context.Context, args TransferArgsWithdraw) (WithdrawResult, error) {
	var out WithdrawResult
	err := m.ch.Call(ctx, MethodWithdraw, []any{&out}, args)
	return out, err
}

func (m *Minter) texts(ctx context.Context, method string) ([]string, error) {
	var out []string
	if err := m.ch.Call(ctx, method, []any{&out}); err != nil {
		return nil, err
	}
	if out == nil {
		out = make([]string, 0)
	}
	return out, nil
}
