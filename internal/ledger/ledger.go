// Package ledger tracks, per airdrop and recipient, how much of the
// committed entitlement has been paid out so far.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/merkle-airdrop/airdrop/internal/store"
)

var (
	// ErrNothingToClaim indicates the releasable amount is already paid.
	ErrNothingToClaim = errors.New("ledger: nothing to claim")

	// ErrUnknownRecipient indicates a total entitlement that disagrees with
	// the one recorded on the recipient's first claim.
	ErrUnknownRecipient = errors.New("ledger: entitlement does not match recorded total")

	// ErrExceedsEntitlement indicates a releasable amount above the total.
	ErrExceedsEntitlement = errors.New("ledger: releasable amount exceeds entitlement")

	// ErrInvalidAmount indicates a missing or negative amount.
	ErrInvalidAmount = errors.New("ledger: invalid amount")
)

// ClaimRecord is the cumulative payout of one recipient in one airdrop.
type ClaimRecord struct {
	Recipient        common.Address
	TotalEntitlement *big.Int
	CumulativePaid   *big.Int
}

type storedRecord struct {
	Recipient        common.Address `json:"recipient"`
	TotalEntitlement *hexutil.Big   `json:"total"`
	CumulativePaid   *hexutil.Big   `json:"paid"`
}

// Update is a prepared, not yet committed, ledger change.
type Update struct {
	Airdrop string
	Record  ClaimRecord // state after the update
	Amount  *big.Int    // paid by this update
}

// Ledger stores claim records. Prepare and Commit are split so that a caller
// can commit other writes in the same batch; callers that do so must
// serialize Prepare..Commit for a given ledger themselves.
type Ledger struct {
	mu    sync.Mutex
	store store.Store
}

func New(s store.Store) *Ledger {
	return &Ledger{store: s}
}

// RecordKey returns the store key of a claim record
func RecordKey(airdropID string, recipient common.Address) []byte {
	return append([]byte("claim:"+airdropID+"/"), recipient.Bytes()...)
}

// Record loads the claim record of recipient. found is false if the
// recipient never claimed.
func (l *Ledger) Record(airdropID string, recipient common.Address) (rec *ClaimRecord, found bool, err error) {
	data, err := l.store.Get(RecordKey(airdropID, recipient))
	if errors.Is(err, store.ErrNotFound) {
		return &ClaimRecord{Recipient: recipient, CumulativePaid: new(big.Int)}, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ledger: load record: %w", err)
	}

	var stored storedRecord
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, false, fmt.Errorf("ledger: decode record: %w", err)
	}
	return &ClaimRecord{
		Recipient:        stored.Recipient,
		TotalEntitlement: stored.TotalEntitlement.ToInt(),
		CumulativePaid:   stored.CumulativePaid.ToInt(),
	}, true, nil
}

// Prepare computes the payout for a recipient whose currently releasable
// amount is releasableNow. Nothing is written.
func (l *Ledger) Prepare(airdropID string, recipient common.Address, total, releasableNow *big.Int) (*Update, error) {
	if total == nil || total.Sign() <= 0 || releasableNow == nil || releasableNow.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	if releasableNow.Cmp(total) > 0 {
		return nil, fmt.Errorf("%w: %s > %s", ErrExceedsEntitlement, releasableNow, total)
	}

	rec, found, err := l.Record(airdropID, recipient)
	if err != nil {
		return nil, err
	}
	if found && rec.TotalEntitlement.Cmp(total) != 0 {
		return nil, fmt.Errorf("%w: recorded %s, claimed %s", ErrUnknownRecipient, rec.TotalEntitlement, total)
	}

	amount := new(big.Int).Sub(releasableNow, rec.CumulativePaid)
	if amount.Sign() <= 0 {
		return nil, ErrNothingToClaim
	}

	return &Update{
		Airdrop: airdropID,
		Record: ClaimRecord{
			Recipient:        recipient,
			TotalEntitlement: new(big.Int).Set(total),
			CumulativePaid:   new(big.Int).Set(releasableNow),
		},
		Amount: amount,
	}, nil
}

// Commit writes the updated record together with extra, atomically.
func (l *Ledger) Commit(u *Update, extra ...store.Write) error {
	data, err := json.Marshal(storedRecord{
		Recipient:        u.Record.Recipient,
		TotalEntitlement: (*hexutil.Big)(u.Record.TotalEntitlement),
		CumulativePaid:   (*hexutil.Big)(u.Record.CumulativePaid),
	})
	if err != nil {
		return fmt.Errorf("ledger: encode record: %w", err)
	}

	writes := append([]store.Write{{Key: RecordKey(u.Airdrop, u.Record.Recipient), Value: data}}, extra...)
	if err := l.store.Apply(writes); err != nil {
		return fmt.Errorf("ledger: commit: %w", err)
	}
	return nil
}

// Claim pays recipient up to releasableNow and returns the amount paid by
// this call.
func (l *Ledger) Claim(airdropID string, recipient common.Address, total, releasableNow *big.Int) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	u, err := l.Prepare(airdropID, recipient, total, releasableNow)
	if err != nil {
		return nil, err
	}
	if err := l.Commit(u); err != nil {
		return nil, err
	}
	return u.Amount, nil
}
