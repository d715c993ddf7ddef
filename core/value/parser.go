// Package value parses Podcasting 2.0 value tags and computes payment splits.
package value

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"

	"v4vfm/logger"
	"v4vfm/model"
)

// Scope selects where a value block is read from.
type Scope int

const (
	ScopeFeed Scope = iota
	ScopeItem
)

const (
	satsPerBTC = 100_000_000
	// maxSplit clamps absurd weights so that split sums cannot overflow.
	maxSplit = 1 << 32
)

var lnAddressPattern = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9\-]+(\.[A-Za-z0-9\-]+)*\.[A-Za-z]{2,}$`)

// ValidLNAddress reports whether addr looks like a Lightning Address (user@domain.tld).
func ValidLNAddress(addr string) bool {
	return lnAddressPattern.MatchString(strings.TrimSpace(addr))
}

// Payable reports whether r has enough destination data to be paid.
func Payable(r model.ValueRecipient) bool {
	switch r.Type {
	case model.RecipientNode:
		return strings.TrimSpace(r.Address) != ""
	case model.RecipientLNAddress:
		return ValidLNAddress(r.Address)
	default:
		return false
	}
}

// ParseXML reads the value block of the given scope from feed XML. For ScopeItem
// only the item's own block is returned; see ParseEffectiveXML for inheritance.
// Malformed documents yield (nil, false).
func ParseXML(data []byte, scope Scope, itemGUID string) (*model.ValueBlock, bool) {
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		logger.Debug("[ParseXML] XML解析失败", logger.ErrorField(err))
		return nil, false
	}

	switch scope {
	case ScopeFeed:
		return fromValueNode(xmlquery.FindOne(doc, channelValueExpr))
	case ScopeItem:
		item := findItem(doc, itemGUID)
		if item == nil {
			return nil, false
		}
		return fromValueNode(xmlquery.FindOne(item, valueExpr))
	default:
		return nil, false
	}
}

// ParseEffectiveXML returns the item's block when it has one, otherwise the
// channel block. The item block replaces the feed block entirely.
func ParseEffectiveXML(data []byte, itemGUID string) (*model.ValueBlock, bool) {
	if block, ok := ParseXML(data, ScopeItem, itemGUID); ok {
		return block, true
	}
	return ParseXML(data, ScopeFeed, "")
}

// FromNode parses a podcast:value element located by another parser.
func FromNode(n *xmlquery.Node) (*model.ValueBlock, bool) {
	return fromValueNode(n)
}

func findItem(doc *xmlquery.Node, guid string) *xmlquery.Node {
	guid = strings.TrimSpace(guid)
	if guid == "" {
		return nil
	}
	for _, item := range xmlquery.Find(doc, "//channel/item") {
		if g := xmlquery.FindOne(item, "guid"); g != nil && strings.TrimSpace(g.InnerText()) == guid {
			return item
		}
	}
	return nil
}

func fromValueNode(n *xmlquery.Node) (*model.ValueBlock, bool) {
	if n == nil {
		return nil, false
	}
	typ := strings.ToLower(strings.TrimSpace(n.SelectAttr("type")))
	if typ != "" && typ != model.ValueTypeLightning {
		return nil, false
	}

	block := &model.ValueBlock{Type: model.ValueTypeLightning}
	for _, rn := range xmlquery.Find(n, valueRecipientExpr) {
		block.Recipients = append(block.Recipients, normalizeRecipient(model.ValueRecipient{
			Name:        strings.TrimSpace(rn.SelectAttr("name")),
			Type:        model.RecipientType(strings.ToLower(strings.TrimSpace(rn.SelectAttr("type")))),
			Address:     strings.TrimSpace(rn.SelectAttr("address")),
			Split:       coerceSplit(rn.SelectAttr("split")),
			Fee:         strings.EqualFold(strings.TrimSpace(rn.SelectAttr("fee")), "true"),
			CustomKey:   strings.TrimSpace(rn.SelectAttr("customKey")),
			CustomValue: strings.TrimSpace(rn.SelectAttr("customValue")),
		}))
	}

	block.Method = normalizeMethod(n.SelectAttr("method"), block.Recipients)
	// suggested 属性以 BTC 为单位
	if s := strings.TrimSpace(n.SelectAttr("suggested")); s != "" {
		if btc, err := strconv.ParseFloat(s, 64); err == nil && btc > 0 {
			sats := math.Round(btc * satsPerBTC)
			block.SuggestedAmount = &sats
		}
	}
	return finalize(block)
}

type jsonRecipient struct {
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	Address     string          `json:"address"`
	Split       json.RawMessage `json:"split"`
	Fee         json.RawMessage `json:"fee"`
	CustomKey   string          `json:"customKey"`
	CustomValue string          `json:"customValue"`
}

type jsonBlock struct {
	Type            string          `json:"type"`
	Method          string          `json:"method"`
	SuggestedAmount json.RawMessage `json:"suggestedAmount"`
	Suggested       json.RawMessage `json:"suggested"` // BTC, as in the XML attribute
	Recipients      []jsonRecipient `json:"recipients"`
}

// ParseJSON parses a value block stored as a JSON column. Missing required
// fields, an empty recipient list or all-zero splits yield (nil, false).
func ParseJSON(raw []byte) (*model.ValueBlock, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, false
	}
	var in jsonBlock
	if err := json.Unmarshal(raw, &in); err != nil {
		logger.Debug("[ParseJSON] value JSON 解析失败", logger.ErrorField(err))
		return nil, false
	}
	if !strings.EqualFold(strings.TrimSpace(in.Type), model.ValueTypeLightning) {
		return nil, false
	}
	method := strings.ToLower(strings.TrimSpace(in.Method))
	if method == "" || len(in.Recipients) == 0 {
		return nil, false
	}

	block := &model.ValueBlock{Type: model.ValueTypeLightning}
	for _, r := range in.Recipients {
		if len(r.Split) == 0 {
			return nil, false
		}
		if strings.TrimSpace(r.Address) == "" && strings.TrimSpace(r.CustomKey) == "" {
			return nil, false
		}
		block.Recipients = append(block.Recipients, normalizeRecipient(model.ValueRecipient{
			Name:        strings.TrimSpace(r.Name),
			Type:        model.RecipientType(strings.ToLower(strings.TrimSpace(r.Type))),
			Address:     strings.TrimSpace(r.Address),
			Split:       coerceSplit(rawScalar(r.Split)),
			Fee:         strings.EqualFold(rawScalar(r.Fee), "true"),
			CustomKey:   strings.TrimSpace(r.CustomKey),
			CustomValue: strings.TrimSpace(r.CustomValue),
		}))
	}
	switch method {
	case "keysend":
		block.Method = model.MethodKeysend
	case "lnurl", "lnaddress":
		block.Method = model.MethodLNURL
	default:
		return nil, false
	}

	if v, err := strconv.ParseFloat(rawScalar(in.SuggestedAmount), 64); err == nil && v > 0 {
		block.SuggestedAmount = &v
	} else if btc, err := strconv.ParseFloat(rawScalar(in.Suggested), 64); err == nil && btc > 0 {
		sats := math.Round(btc * satsPerBTC)
		block.SuggestedAmount = &sats
	}
	return finalize(block)
}

// rawScalar turns a JSON number, string or bool into its text form.
func rawScalar(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if len(s) >= 2 && s[0] == '"' {
		var str string
		if err := json.Unmarshal(raw, &str); err == nil {
			return strings.TrimSpace(str)
		}
	}
	return s
}

// coerceSplit parses a split weight; anything non-numeric or negative becomes 0.
func coerceSplit(s string) uint64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if v, err := strconv.ParseUint(s, 10, 64); err == nil {
		return min(v, maxSplit)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 || math.IsNaN(f) {
		return 0
	}
	if f >= maxSplit {
		return maxSplit
	}
	return uint64(f)
}

func normalizeRecipient(r model.ValueRecipient) model.ValueRecipient {
	if r.Type == "" {
		if strings.Contains(r.Address, "@") {
			r.Type = model.RecipientLNAddress
		} else {
			r.Type = model.RecipientNode
		}
	}
	// customKey/customValue 必须成对出现
	if r.CustomKey == "" || r.CustomValue == "" {
		r.CustomKey, r.CustomValue = "", ""
	}
	return r
}

func normalizeMethod(method string, recipients []model.ValueRecipient) model.ValueMethod {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case "keysend":
		return model.MethodKeysend
	case "lnurl", "lnaddress":
		return model.MethodLNURL
	}
	for _, r := range recipients {
		if r.Type != model.RecipientLNAddress {
			return model.MethodKeysend
		}
	}
	if len(recipients) > 0 {
		return model.MethodLNURL
	}
	return model.MethodKeysend
}

// finalize rejects blocks with a zero total split or no payable recipient.
func finalize(block *model.ValueBlock) (*model.ValueBlock, bool) {
	if len(block.Recipients) == 0 || block.TotalSplit() == 0 {
		return nil, false
	}
	for _, r := range block.Recipients {
		if Payable(r) {
			return block, true
		}
	}
	return nil, false
}
