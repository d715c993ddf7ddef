package resolver

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"v4vfm/logger"
	"v4vfm/model"
)

// ItemResolver resolves one reference; Resolver is the production implementation.
type ItemResolver interface {
	Resolve(ctx context.Context, ref model.RemoteItemReference) model.ResolvedTrack
	Refresh(ctx context.Context, ref model.RemoteItemReference) model.ResolvedTrack
}

// BatchOptions 批量解析参数
type BatchOptions struct {
	// Concurrency is the chunk size; chunks run one after another.
	Concurrency int
	// InterBatchDelay is slept between chunks, not after the last one.
	InterBatchDelay time.Duration
	// ItemTimeout bounds each item. Zero means no per-item deadline.
	ItemTimeout    time.Duration
	Refresh        bool
	Dedupe         bool
	DropUnresolved bool
	// Progress is called after each chunk with the number of items done.
	Progress func(done, total int)
}

// DefaultBatchOptions 默认批量参数
func DefaultBatchOptions() BatchOptions {
	return BatchOptions{
		Concurrency:     8,
		InterBatchDelay: 500 * time.Millisecond,
		ItemTimeout:     30 * time.Second,
	}
}

// Coordinator fans references out over an ItemResolver in bounded chunks.
type Coordinator struct {
	resolver ItemResolver
	now      func() time.Time
}

func NewCoordinator(resolver ItemResolver) *Coordinator {
	return &Coordinator{resolver: resolver, now: time.Now}
}

// ResolveAll resolves refs and returns one track per reference in input order
// (before optional dedupe and filtering). Item failures never abort the batch;
// only cancellation of ctx is returned, with unfinished slots left unresolved.
func (c *Coordinator) ResolveAll(ctx context.Context, refs []model.RemoteItemReference, opts BatchOptions) ([]model.ResolvedTrack, error) {
	size := opts.Concurrency
	if size <= 0 {
		size = 1
	}
	out := make([]model.ResolvedTrack, len(refs))
	filled := make([]bool, len(refs))

	var runErr error
	for start := 0; start < len(refs); start += size {
		end := min(start+size, len(refs))

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			g.Go(func() error {
				t, err := c.resolveOne(gctx, refs[i], opts)
				if err != nil {
					return err
				}
				out[i] = t
				filled[i] = true
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			runErr = err
			break
		}
		if opts.Progress != nil {
			opts.Progress(end, len(refs))
		}

		if end < len(refs) && opts.InterBatchDelay > 0 {
			if err := sleep(ctx, opts.InterBatchDelay); err != nil {
				runErr = err
				break
			}
		}
	}

	if runErr != nil {
		logger.Warn("[ResolveAll] 批量解析被取消", logger.Int("total", len(refs)), logger.ErrorField(runErr))
		for i := range out {
			if !filled[i] {
				out[i] = model.Unresolved(refs[i], c.now())
			}
		}
	}

	if opts.Dedupe {
		out = Dedupe(out)
	}
	if opts.DropUnresolved {
		out = Playable(out)
	}
	return out, runErr
}

// resolveOne runs one resolution under the item deadline. A resolver that
// overruns the deadline yields an unresolved placeholder for that slot.
func (c *Coordinator) resolveOne(ctx context.Context, ref model.RemoteItemReference, opts BatchOptions) (model.ResolvedTrack, error) {
	itemCtx := ctx
	if opts.ItemTimeout > 0 {
		var cancel context.CancelFunc
		itemCtx, cancel = context.WithTimeout(ctx, opts.ItemTimeout)
		defer cancel()
	}

	done := make(chan model.ResolvedTrack, 1)
	go func() {
		if opts.Refresh {
			done <- c.resolver.Refresh(itemCtx, ref)
			return
		}
		done <- c.resolver.Resolve(itemCtx, ref)
	}()

	select {
	case t := <-done:
		if ctx.Err() != nil {
			return model.ResolvedTrack{}, ctx.Err()
		}
		return t, nil
	case <-itemCtx.Done():
		if ctx.Err() != nil {
			return model.ResolvedTrack{}, ctx.Err()
		}
		logger.Warn("[ResolveAll] 单条解析超时",
			logger.String("feedGuid", ref.FeedGUID),
			logger.String("itemGuid", ref.ItemGUID),
			logger.Duration("timeout", opts.ItemTimeout))
		return model.Unresolved(ref, c.now()), nil
	}
}

type dedupeKey struct {
	audioURL string
	title    string
}

// Dedupe keeps the first playable track per (audioUrl, title). Unresolved
// placeholders are kept as they are.
func Dedupe(tracks []model.ResolvedTrack) []model.ResolvedTrack {
	seen := make(map[dedupeKey]bool, len(tracks))
	out := make([]model.ResolvedTrack, 0, len(tracks))
	for _, t := range tracks {
		if t.Playable() {
			k := dedupeKey{audioURL: t.AudioURL, title: t.Title}
			if seen[k] {
				continue
			}
			seen[k] = true
		}
		out = append(out, t)
	}
	return out
}

// Playable drops unresolved tracks.
func Playable(tracks []model.ResolvedTrack) []model.ResolvedTrack {
	out := make([]model.ResolvedTrack, 0, len(tracks))
	for _, t := range tracks {
		if t.Playable() {
			out = append(out, t)
		}
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
