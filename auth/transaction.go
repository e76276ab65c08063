package auth

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/axa-poc/portalauth/browser"
	"github.com/axa-poc/portalauth/oidc"
)

// TransactionKey is the durable storage key of the pending login
// transaction.
const TransactionKey = "auth_transaction"

type transaction struct {
	State     string `json:"state"`
	Nonce     string `json:"nonce"`
	ExpiresAt int64  `json:"expires_at"`
}

// transactionStore persists the state and nonce of a login across the
// full-page redirect to the provider.
type transactionStore struct {
	storage browser.Storage
}

// begin creates and persists a new login transaction.
func (ts *transactionStore) begin(ttl time.Duration, now func() time.Time) (*oidc.St, error) {
	const op = "auth.(transactionStore).begin"
	st, err := oidc.NewState(ttl, oidc.WithNow(now))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	data, err := json.Marshal(transaction{
		State:     st.Id(),
		Nonce:     st.Nonce(),
		ExpiresAt: st.ExpiresAt().UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: unable to encode transaction: %w", op, err)
	}
	if err := ts.storage.SetItem(TransactionKey, string(data)); err != nil {
		return nil, fmt.Errorf("%s: unable to store transaction: %w", op, err)
	}
	return st, nil
}

// consume removes the pending transaction and returns it.  A missing or
// malformed transaction is reported as absent.
func (ts *transactionStore) consume() (*oidc.St, bool, error) {
	const op = "auth.(transactionStore).consume"
	raw, ok := ts.storage.GetItem(TransactionKey)
	if !ok {
		return nil, false, nil
	}
	var rmErr error
	if err := ts.storage.RemoveItem(TransactionKey); err != nil {
		rmErr = fmt.Errorf("%s: unable to remove transaction: %w", op, err)
	}
	var tx transaction
	if err := json.Unmarshal([]byte(raw), &tx); err != nil {
		return nil, false, rmErr
	}
	st, err := oidc.RestoreState(tx.State, tx.Nonce, time.UnixMilli(tx.ExpiresAt))
	if err != nil || tx.ExpiresAt <= 0 {
		return nil, false, rmErr
	}
	return st, true, rmErr
}

func (ts *transactionStore) clear() error {
	const op = "auth.(transactionStore).clear"
	if err := ts.storage.RemoveItem(TransactionKey); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
