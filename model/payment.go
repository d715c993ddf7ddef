package model

import "time"

// InstructionKind 支付指令类型
type InstructionKind string

const (
	InstructionKeysend InstructionKind = "keysend"
	InstructionLNURL   InstructionKind = "lnurl"
)

// PaymentInstruction 交给支付执行方的指令，本身不做网络调用
type PaymentInstruction struct {
	ID            string            `json:"id"`
	Kind          InstructionKind   `json:"kind"`
	RecipientName string            `json:"recipientName,omitempty"`
	Destination   string            `json:"destination,omitempty"` // keysend pubkey
	Address       string            `json:"address,omitempty"`     // lightning address
	AmountSats    int64             `json:"amountSats"`
	CustomRecords map[string]string `json:"customRecords,omitempty"`
	Comment       string            `json:"comment,omitempty"`
	Invoice       string            `json:"invoice,omitempty"` // BOLT11, filled for LNURL when minted
	Fee           bool              `json:"fee,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
}
