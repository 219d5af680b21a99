// Package bootstrap wires the question pipeline from environment configuration.
package bootstrap

import (
	"github.com/ManuelReschke/MeliDesk/app/repository"
	"github.com/ManuelReschke/MeliDesk/internal/pkg/automation"
	"github.com/ManuelReschke/MeliDesk/internal/pkg/cache"
	"github.com/ManuelReschke/MeliDesk/internal/pkg/database"
	"github.com/ManuelReschke/MeliDesk/internal/pkg/env"
	"github.com/ManuelReschke/MeliDesk/internal/pkg/mercadolivre"
	"github.com/ManuelReschke/MeliDesk/internal/pkg/metrics"
	"github.com/ManuelReschke/MeliDesk/internal/pkg/mltoken"
	"github.com/ManuelReschke/MeliDesk/internal/pkg/realtime"
	"github.com/ManuelReschke/MeliDesk/internal/pkg/webhooks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Services holds everything the HTTP server and the CLI tools share.
type Services struct {
	Registry     *prometheus.Registry
	Metrics      *metrics.Metrics
	Repositories *repository.Repositories
	Cache        *cache.RedisStore
	Processor    *webhooks.QuestionProcessor
}

// Setup loads the .env file, connects database and cache and builds the question processor.
func Setup() *Services {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg, metrics.DefaultNamespace)

	repos := repository.NewFactory(database.GetDB()).GetRepositories()
	store := cache.NewRedisStore(cache.GetClient(), m)

	tokens := mltoken.NewProvider(repos.Account, mltoken.Config{
		ClientID:     env.GetEnv("ML_CLIENT_ID", ""),
		ClientSecret: env.GetEnv("ML_CLIENT_SECRET", ""),
		TokenURL:     env.GetEnv("ML_TOKEN_URL", mltoken.DefaultTokenURL),
		Timeout:      env.GetDuration("ML_TOKEN_TIMEOUT", mltoken.DefaultTimeout),
	})
	marketplace := mercadolivre.NewClient(
		env.GetEnv("ML_API_BASE_URL", mercadolivre.DefaultBaseURL),
		env.GetDuration("ML_TIMEOUT", mercadolivre.DefaultTimeout),
		m,
	)
	dispatcher := automation.NewClient(
		env.GetEnv("N8N_WEBHOOK_URL", ""),
		env.GetDuration("N8N_TIMEOUT", automation.DefaultTimeout),
		m,
	)

	processor := webhooks.NewQuestionProcessor(webhooks.ProcessorDeps{
		Questions:   repos.Question,
		AuditLogs:   repos.AuditLog,
		Accounts:    repos.Account,
		Tokens:      tokens,
		Marketplace: marketplace,
		Cache:       store,
		Notifier:    realtime.NewRedisNotifier(cache.GetClient(), m),
		Dispatcher:  dispatcher,
		Metrics:     m,
	}, webhooks.DefaultProcessorConfig())

	return &Services{
		Registry:     reg,
		Metrics:      m,
		Repositories: repos,
		Cache:        store,
		Processor:    processor,
	}
}

// BatchConfig reads the BATCH_* keys on top of the defaults.
func BatchConfig() webhooks.BatchConfig {
	cfg := webhooks.DefaultBatchConfig()
	cfg.BatchSize = env.GetInt("BATCH_SIZE", cfg.BatchSize)
	cfg.ItemDelay = env.GetDuration("BATCH_ITEM_DELAY", cfg.ItemDelay)
	cfg.BatchDelay = env.GetDuration("BATCH_DELAY", cfg.BatchDelay)
	return cfg
}

// NewBatchProcessor feeds queued webhooks into the question processor.
func (s *Services) NewBatchProcessor() *webhooks.BatchProcessor {
	return webhooks.NewBatchProcessor(
		s.Processor.ProcessQueued,
		BatchConfig(),
		webhooks.WithCacheStats(s.Cache),
		webhooks.WithMetrics(s.Metrics),
	)
}
