package value

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"sort"

	"v4vfm/model"
)

var (
	// ErrInvalidAmount 支付金额为负
	ErrInvalidAmount = errors.New("invalid payment amount")
	// ErrInvalidFee 平台费比例不在 0..100 之间
	ErrInvalidFee = errors.New("invalid platform fee percent")
)

// feeScale multiplies the stored weights before a fee weight is synthesised,
// so small split sums still get a fee weight close to the requested percent.
const feeScale = 100

// PlatformFee describes an optional fee layered on top of a value block.
type PlatformFee struct {
	Percent   float64
	Recipient model.ValueRecipient
}

// Allocation is one recipient's share of a payment.
type Allocation struct {
	Recipient  model.ValueRecipient `json:"recipient"`
	AmountSats int64                `json:"amountSats"`
}

// ComputeSplits divides totalSats among the block's recipients using the
// largest-remainder method. The result keeps the block's recipient order,
// retains zero-amount recipients and always sums to totalSats when any weight
// is positive. The block itself is never modified.
func ComputeSplits(block *model.ValueBlock, totalSats int64, fee PlatformFee) ([]Allocation, error) {
	if totalSats < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAmount, totalSats)
	}
	if fee.Percent < 0 || fee.Percent > 100 || math.IsNaN(fee.Percent) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFee, fee.Percent)
	}
	if block == nil || len(block.Recipients) == 0 {
		return []Allocation{}, nil
	}

	recipients := append([]model.ValueRecipient(nil), block.Recipients...)
	weights := make([]uint64, len(recipients))
	for i, r := range recipients {
		weights[i] = r.Split
	}
	if fee.Percent > 0 {
		recipients, weights = withPlatformFee(recipients, weights, fee)
	}

	var total uint64
	for _, w := range weights {
		total += w
	}
	if total == 0 {
		return []Allocation{}, nil
	}

	amount := uint64(totalSats)
	out := make([]Allocation, len(recipients))
	remainders := make([]uint64, len(recipients))
	var allocated uint64
	for i, r := range recipients {
		// weight <= total 保证 hi < total，Div64 不会溢出
		hi, lo := bits.Mul64(amount, weights[i])
		q, rem := bits.Div64(hi, lo, total)
		out[i] = Allocation{Recipient: r, AmountSats: int64(q)}
		remainders[i] = rem
		allocated += q
	}

	order := make([]int, len(recipients))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]] > remainders[order[b]]
	})
	for shortfall, k := amount-allocated, 0; shortfall > 0; shortfall, k = shortfall-1, k+1 {
		out[order[k%len(order)]].AmountSats++
	}
	return out, nil
}

// withPlatformFee appends a synthesised fee recipient whose weight is
// percent/100 of the new total, to the nearest integer. Weights are scaled by
// feeScale first; every reported split, the fee's included, stays unscaled.
func withPlatformFee(recipients []model.ValueRecipient, weights []uint64, fee PlatformFee) ([]model.ValueRecipient, []uint64) {
	feeRecipient := fee.Recipient
	feeRecipient.Fee = true
	if feeRecipient.Name == "" {
		feeRecipient.Name = "Platform Fee"
	}

	if fee.Percent >= 100 {
		for i := range weights {
			weights[i] = 0
		}
		feeRecipient.Split = 1
		return append(recipients, feeRecipient), append(weights, 1)
	}

	var sum uint64
	for i := range weights {
		weights[i] *= feeScale
		sum += weights[i]
	}
	feeWeight := uint64(math.Round(fee.Percent * float64(sum) / (100 - fee.Percent)))
	// 对外报告的权重与其他收款方同一量纲
	feeRecipient.Split = (feeWeight + feeScale/2) / feeScale
	if feeRecipient.Split == 0 && feeWeight > 0 {
		feeRecipient.Split = 1
	}
	return append(recipients, feeRecipient), append(weights, feeWeight)
}
