package model

// RecipientType 收款方类型
type RecipientType string

const (
	// RecipientNode is a Lightning keysend destination (node pubkey).
	RecipientNode RecipientType = "node"
	// RecipientLNAddress is a Lightning Address / LNURL-pay payee.
	RecipientLNAddress RecipientType = "lnaddress"
)

// ValueMethod 支付方式
type ValueMethod string

const (
	MethodKeysend ValueMethod = "keysend"
	MethodLNURL   ValueMethod = "lnurl"
)

// ValueTypeLightning is the only value type the engine understands.
const ValueTypeLightning = "lightning"

// ValueRecipient 一个可收款的参与方
type ValueRecipient struct {
	Name        string        `json:"name"`
	Type        RecipientType `json:"type"`
	Address     string        `json:"address"`
	Split       uint64        `json:"split"` // 相对权重，总和不要求为100
	Fee         bool          `json:"fee"`
	CustomKey   string        `json:"customKey,omitempty"`
	CustomValue string        `json:"customValue,omitempty"`
}

// ValueBlock 挂在 feed 或 track 上的 V4V 支付配置，构造后不再修改
type ValueBlock struct {
	Type            string           `json:"type"`
	Method          ValueMethod      `json:"method"`
	SuggestedAmount *float64         `json:"suggestedAmount,omitempty"` // sats
	Recipients      []ValueRecipient `json:"recipients"`
}

// Clone returns a deep copy so callers never share the recipient slice.
func (b *ValueBlock) Clone() *ValueBlock {
	if b == nil {
		return nil
	}
	out := *b
	if b.SuggestedAmount != nil {
		v := *b.SuggestedAmount
		out.SuggestedAmount = &v
	}
	out.Recipients = append([]ValueRecipient(nil), b.Recipients...)
	return &out
}

// TotalSplit sums recipient weights.
func (b *ValueBlock) TotalSplit() uint64 {
	if b == nil {
		return 0
	}
	var sum uint64
	for _, r := range b.Recipients {
		sum += r.Split
	}
	return sum
}
