package server

import (
	"fmt"

	"gorm.io/gorm"

	"v4vfm/cache"
	"v4vfm/config"
	"v4vfm/core/feed"
	"v4vfm/core/payment"
	"v4vfm/core/podcastindex"
	"v4vfm/core/resolver"
	"v4vfm/core/value"
	"v4vfm/db"
	"v4vfm/logger"
	"v4vfm/model"
	"v4vfm/repository"
)

// Dependencies holds the engine components shared by the HTTP server and the CLI.
type Dependencies struct {
	Config      *config.Config
	Cache       *cache.ResolutionCache
	Store       cache.Store
	Catalog     repository.CatalogRepository
	Index       *podcastindex.Client
	Feeds       *feed.Fetcher
	Resolver    *resolver.Resolver
	Coordinator *resolver.Coordinator
	Playlists   *resolver.PlaylistService
	Payments    *payment.Service
	Batch       resolver.BatchOptions

	closers []func() error
}

// BuildDependencies 根据配置组装所有组件。数据库不可用时跳过数据库层，
// 除非缓存后端本身就是数据库。
func BuildDependencies(cfg *config.Config) (*Dependencies, error) {
	d := &Dependencies{Config: cfg}

	gdb, err := db.Connect(cfg)
	if err != nil {
		if cfg.Cache.Backend == "database" {
			return nil, err
		}
		logger.Warn("[BuildDependencies] 数据库不可用，跳过数据库层", logger.ErrorField(err))
	} else {
		if err := db.AutoMigrate(gdb); err != nil {
			_ = db.Close(gdb)
			return nil, err
		}
		d.Catalog = repository.NewGormCatalogRepository(gdb)
		d.closers = append(d.closers, func() error { return db.Close(gdb) })
	}

	store, err := d.buildStore(cfg, gdb)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.Store = store
	d.Cache = cache.NewResolutionCache(store, cache.WithTTL(cfg.Cache.ItemTTL, cfg.Cache.PlaylistTTL))

	// 进程内只创建一个索引客户端，限流器由所有请求共享
	var index resolver.IndexAPI
	d.Index = podcastindex.NewClient(cfg.Index)
	if d.Index.Configured() {
		index = d.Index
	} else {
		logger.Warn("[BuildDependencies] 未配置 Podcast Index 密钥，跳过索引层")
	}

	var catalog resolver.TrackLookup
	var catalogSrc value.CatalogSource
	if d.Catalog != nil {
		catalog = d.Catalog
		catalogSrc = d.Catalog
	}

	d.Feeds = feed.NewFetcher(cfg.Resolver.FeedTimeout, cfg.Index.UserAgent)
	d.Resolver = resolver.NewResolver(d.Cache, catalog, index, d.Feeds,
		resolver.WithFeedURLTemplates(cfg.Resolver.FeedURLTemplates...),
		resolver.WithTimeouts(cfg.Index.Timeout, cfg.Resolver.FeedTimeout))
	d.Coordinator = resolver.NewCoordinator(d.Resolver)
	d.Batch = resolver.BatchOptions{
		Concurrency:     cfg.Resolver.Concurrency,
		InterBatchDelay: cfg.Resolver.InterBatchDelay,
		ItemTimeout:     cfg.Resolver.ItemTimeout,
	}
	d.Playlists = resolver.NewPlaylistService(d.Cache, d.Feeds, d.Coordinator, d.Batch)

	var sink payment.Sink = payment.LogSink{}
	if cfg.Payment.KafkaBrokers != "" {
		ks := payment.NewKafkaSink(cfg.Payment.KafkaBrokers, cfg.Payment.KafkaTopic)
		sink = ks
		d.closers = append(d.closers, ks.Close)
	}
	d.Payments = payment.NewService(payment.NewDispatcher(), sink,
		payment.NewInvoiceClient(cfg.Payment.InvoiceTimeout), catalogSrc, PlatformFee(cfg.Payment))

	return d, nil
}

func (d *Dependencies) buildStore(cfg *config.Config, gdb *gorm.DB) (cache.Store, error) {
	switch cfg.Cache.Backend {
	case "redis":
		client, err := cache.NewRedisClient(cfg)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, client.Close)
		return cache.NewRedisStore(client, "v4vfm:"), nil
	case "database":
		return cache.NewGormStore(gdb), nil
	case "memory", "":
		return cache.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

// PlatformFee builds the configured platform fee.
func PlatformFee(cfg config.PaymentConfig) value.PlatformFee {
	fee := value.PlatformFee{
		Percent: cfg.PlatformFeePercent,
		Recipient: model.ValueRecipient{
			Name:    cfg.PlatformFeeName,
			Type:    model.RecipientType(cfg.PlatformFeeType),
			Address: cfg.PlatformFeeAddress,
		},
	}
	if fee.Percent > 0 && !value.Payable(fee.Recipient) {
		logger.Warn("[PlatformFee] 平台费收款方不可支付，该部分将被跳过",
			logger.String("type", cfg.PlatformFeeType),
			logger.String("address", cfg.PlatformFeeAddress))
	}
	return fee
}

// Close 释放数据库、Redis 和 Kafka 连接
func (d *Dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			logger.Warn("[Dependencies] 关闭资源失败", logger.ErrorField(err))
		}
	}
	d.closers = nil
}
