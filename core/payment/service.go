package payment

import (
	"context"
	"fmt"

	"v4vfm/core/value"
	"v4vfm/logger"
	"v4vfm/model"
)

// Service runs a payment event: split, dispatch, optionally mint LNURL
// invoices, then hand the instructions to the sink.
type Service struct {
	dispatcher *Dispatcher
	sink       Sink
	invoices   *InvoiceClient
	catalog    value.CatalogSource
	fee        value.PlatformFee
}

// NewService wires a payment service. invoices and catalog may be nil.
func NewService(dispatcher *Dispatcher, sink Sink, invoices *InvoiceClient, catalog value.CatalogSource, fee value.PlatformFee) *Service {
	if sink == nil {
		sink = LogSink{}
	}
	return &Service{dispatcher: dispatcher, sink: sink, invoices: invoices, catalog: catalog, fee: fee}
}

// Fee returns the configured platform fee.
func (s *Service) Fee() value.PlatformFee { return s.fee }

// Pay splits amountSats over block and publishes the resulting instructions.
func (s *Service) Pay(ctx context.Context, block *model.ValueBlock, amountSats int64, message string) (*Plan, error) {
	allocations, err := value.ComputeSplits(block, amountSats, s.fee)
	if err != nil {
		return nil, err
	}
	plan, err := s.dispatcher.DispatchAll(allocations, message)
	if err != nil {
		logger.Warn("[Pay] 没有可支付的收款方", logger.Int64("amount_sats", amountSats), logger.ErrorField(err))
		return plan, err
	}
	for _, sk := range plan.Skipped {
		logger.Warn("[Pay] 跳过收款方",
			logger.String("recipient", sk.Allocation.Recipient.Name),
			logger.Int64("amount_sats", sk.Allocation.AmountSats),
			logger.String("reason", sk.Reason))
	}

	if s.invoices != nil {
		for i := range plan.Instructions {
			in := &plan.Instructions[i]
			if in.Kind != model.InstructionLNURL {
				continue
			}
			inv, err := s.invoices.RequestInvoice(ctx, *in)
			if err != nil {
				// 发票可由下游执行方重试
				logger.Warn("[Pay] 获取发票失败", logger.String("address", in.Address), logger.ErrorField(err))
				continue
			}
			in.Invoice = inv.PaymentRequest
		}
	}

	if err := s.sink.Publish(ctx, plan.Instructions); err != nil {
		return plan, err
	}
	return plan, nil
}

// PayTrack pays the effective value block of a catalog track, falling back to
// the block of its feed.
func (s *Service) PayTrack(ctx context.Context, trackGUID string, amountSats int64, message string) (*Plan, error) {
	if s.catalog == nil {
		return nil, fmt.Errorf("payment service has no catalog")
	}
	block, err := value.LoadEffective(ctx, s.catalog, trackGUID)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, fmt.Errorf("%w: track %s has no value block", ErrNoPayableRecipient, trackGUID)
	}
	return s.Pay(ctx, block, amountSats, message)
}
