// Package payment turns split allocations into payable Lightning instructions.
package payment

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"v4vfm/core/value"
	"v4vfm/model"
)

var (
	// ErrUnsupportedRecipient 收款方缺少可用的地址或类型不支持
	ErrUnsupportedRecipient = errors.New("unsupported recipient")
	// ErrNoPayableRecipient 没有任何可支付的收款方
	ErrNoPayableRecipient = errors.New("no payable recipient")
)

// BoostagramKey is the keysend TLV record carrying the listener message.
const BoostagramKey = "7629169"

// Dispatcher builds payment instructions. It performs no network I/O.
type Dispatcher struct {
	now   func() time.Time
	newID func() string
}

// NewDispatcher creates a dispatcher using the wall clock and random UUIDs.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
}

// Dispatch builds the instruction paying amountSats to recipient.
func (d *Dispatcher) Dispatch(recipient model.ValueRecipient, amountSats int64, message string) (model.PaymentInstruction, error) {
	if amountSats < 0 {
		return model.PaymentInstruction{}, fmt.Errorf("%w: %d", value.ErrInvalidAmount, amountSats)
	}

	instr := model.PaymentInstruction{
		ID:            d.newID(),
		RecipientName: recipient.Name,
		AmountSats:    amountSats,
		Fee:           recipient.Fee,
		CreatedAt:     d.now(),
	}

	switch recipient.Type {
	case model.RecipientNode:
		if strings.TrimSpace(recipient.Address) == "" {
			return model.PaymentInstruction{}, fmt.Errorf("%w: node %q has no address", ErrUnsupportedRecipient, recipient.Name)
		}
		instr.Kind = model.InstructionKeysend
		instr.Destination = strings.TrimSpace(recipient.Address)
		records := map[string]string{}
		if recipient.CustomKey != "" && recipient.CustomValue != "" {
			records[recipient.CustomKey] = recipient.CustomValue
		}
		if message != "" {
			records[BoostagramKey] = hex.EncodeToString([]byte(message))
		}
		if len(records) > 0 {
			instr.CustomRecords = records
		}
	case model.RecipientLNAddress:
		if !value.ValidLNAddress(recipient.Address) {
			return model.PaymentInstruction{}, fmt.Errorf("%w: invalid lightning address %q", ErrUnsupportedRecipient, recipient.Address)
		}
		instr.Kind = model.InstructionLNURL
		instr.Address = strings.TrimSpace(recipient.Address)
		instr.Comment = message
	default:
		return model.PaymentInstruction{}, fmt.Errorf("%w: type %q", ErrUnsupportedRecipient, recipient.Type)
	}
	return instr, nil
}

// Skipped records an allocation that could not be turned into an instruction.
type Skipped struct {
	Allocation value.Allocation `json:"allocation"`
	Reason     string           `json:"reason"`
}

// Plan is the dispatch result for one payment event.
type Plan struct {
	Instructions   []model.PaymentInstruction `json:"instructions"`
	Skipped        []Skipped                  `json:"skipped,omitempty"`
	TotalSats      int64                      `json:"totalSats"`
	DispatchedSats int64                      `json:"dispatchedSats"`
}

// DispatchAll builds instructions for every allocation with a positive amount.
// Unsupported recipients are reported in Plan.Skipped, never dropped silently.
// When nothing is dispatchable ErrNoPayableRecipient is returned.
func (d *Dispatcher) DispatchAll(allocations []value.Allocation, message string) (*Plan, error) {
	plan := &Plan{}
	var lastErr error
	for _, a := range allocations {
		plan.TotalSats += a.AmountSats
		if a.AmountSats == 0 {
			continue
		}
		instr, err := d.Dispatch(a.Recipient, a.AmountSats, message)
		if err != nil {
			lastErr = err
			plan.Skipped = append(plan.Skipped, Skipped{Allocation: a, Reason: err.Error()})
			continue
		}
		plan.Instructions = append(plan.Instructions, instr)
		plan.DispatchedSats += instr.AmountSats
	}
	if len(plan.Instructions) == 0 {
		if lastErr != nil {
			return plan, fmt.Errorf("%w: %v", ErrNoPayableRecipient, lastErr)
		}
		return plan, ErrNoPayableRecipient
	}
	return plan, nil
}
