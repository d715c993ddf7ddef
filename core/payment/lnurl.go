package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"v4vfm/logger"
	"v4vfm/model"
)

// ErrInvoice LNURL 发票请求失败
var ErrInvoice = errors.New("lnurl invoice request failed")

// Invoice is a BOLT11 payment request minted by a Lightning Address provider.
type Invoice struct {
	Address        string `json:"address"`
	AmountSats     int64  `json:"amountSats"`
	PaymentRequest string `json:"pr"`
}

type payParams struct {
	Tag            string `json:"tag"`
	Callback       string `json:"callback"`
	MinSendable    int64  `json:"minSendable"` // msat
	MaxSendable    int64  `json:"maxSendable"` // msat
	CommentAllowed int    `json:"commentAllowed"`
	Status         string `json:"status"`
	Reason         string `json:"reason"`
}

type invoiceResponse struct {
	PR     string `json:"pr"`
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// InvoiceClient LNURL-pay 客户端，负责把 Lightning Address 换成发票
type InvoiceClient struct {
	httpClient *http.Client
	// wellKnownURL maps user@domain to the LNURL-pay endpoint.
	wellKnownURL func(user, domain string) string
}

// NewInvoiceClient creates a client whose requests time out after timeout.
func NewInvoiceClient(timeout time.Duration) *InvoiceClient {
	return &InvoiceClient{
		httpClient: &http.Client{Timeout: timeout},
		wellKnownURL: func(user, domain string) string {
			return fmt.Sprintf("https://%s/.well-known/lnurlp/%s", domain, url.PathEscape(user))
		},
	}
}

// SetWellKnownURL overrides how the LNURL-pay endpoint is derived.
func (c *InvoiceClient) SetWellKnownURL(fn func(user, domain string) string) {
	c.wellKnownURL = fn
}

// RequestInvoice mints an invoice for an LNURL instruction.
func (c *InvoiceClient) RequestInvoice(ctx context.Context, instr model.PaymentInstruction) (*Invoice, error) {
	if instr.Kind != model.InstructionLNURL {
		return nil, fmt.Errorf("%w: instruction %s is %s", ErrUnsupportedRecipient, instr.ID, instr.Kind)
	}
	user, domain, ok := strings.Cut(instr.Address, "@")
	if !ok || user == "" || domain == "" {
		return nil, fmt.Errorf("%w: invalid lightning address %q", ErrUnsupportedRecipient, instr.Address)
	}

	var params payParams
	if err := c.getJSON(ctx, c.wellKnownURL(user, domain), &params); err != nil {
		return nil, err
	}
	if strings.EqualFold(params.Status, "ERROR") {
		return nil, fmt.Errorf("%w: %s", ErrInvoice, params.Reason)
	}
	if params.Tag != "payRequest" || params.Callback == "" {
		return nil, fmt.Errorf("%w: unexpected pay params (tag=%q)", ErrInvoice, params.Tag)
	}

	msats := instr.AmountSats * 1000
	if msats < params.MinSendable || (params.MaxSendable > 0 && msats > params.MaxSendable) {
		return nil, fmt.Errorf("%w: amount %d msat outside [%d, %d]", ErrInvoice, msats, params.MinSendable, params.MaxSendable)
	}

	cb, err := url.Parse(params.Callback)
	if err != nil {
		return nil, fmt.Errorf("%w: bad callback: %v", ErrInvoice, err)
	}
	q := cb.Query()
	q.Set("amount", strconv.FormatInt(msats, 10))
	if comment := instr.Comment; comment != "" && params.CommentAllowed > 0 {
		q.Set("comment", truncateComment(comment, params.CommentAllowed))
	}
	cb.RawQuery = q.Encode()

	var inv invoiceResponse
	if err := c.getJSON(ctx, cb.String(), &inv); err != nil {
		return nil, err
	}
	if strings.EqualFold(inv.Status, "ERROR") || inv.PR == "" {
		return nil, fmt.Errorf("%w: %s", ErrInvoice, inv.Reason)
	}

	logger.Info("[RequestInvoice] 获取发票成功", logger.String("address", instr.Address), logger.Int64("amount_sats", instr.AmountSats))
	return &Invoice{Address: instr.Address, AmountSats: instr.AmountSats, PaymentRequest: inv.PR}, nil
}

func (c *InvoiceClient) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvoice, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Warn("[RequestInvoice] 请求失败", logger.String("url", rawURL), logger.ErrorField(err))
		return fmt.Errorf("%w: %v", ErrInvoice, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrInvoice, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrInvoice, resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrInvoice, err)
	}
	return nil
}

// truncateComment cuts s to at most limit bytes without splitting a rune.
func truncateComment(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := 0
	for i := range s {
		if i > limit {
			break
		}
		cut = i
	}
	return s[:cut]
}
