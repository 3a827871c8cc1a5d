package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/Sonrial/family-budget/internal/amqp"
	"github.com/Sonrial/family-budget/internal/cache"
	"github.com/Sonrial/family-budget/internal/log"
	"github.com/Sonrial/family-budget/internal/sheets"
	gsheet "github.com/Sonrial/family-budget/internal/sheets/google"
	"github.com/Sonrial/family-budget/internal/storage"
	"github.com/Sonrial/family-budget/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) *DefaultFactory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentBackend)}
}

var _ Factory = (*DefaultFactory)(nil)

// CreateBackend opens the store, then the balance cache and the event
// publisher. A failing optional publisher is logged and left out.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Backend, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	b := &Backend{Type: config.Type, Sweeper: cache.NewManager()}
	if err := f.openStore(ctx, b, config); err != nil {
		return nil, err
	}
	if err := f.openCache(ctx, b, config); err != nil {
		_ = b.Close()
		return nil, err
	}
	f.openEvents(ctx, b, config)

	f.logger.InfoContext(ctx, "Backend ready",
		log.FieldOperation, log.OpStartup,
		"type", config.Type,
		"redis", config.RedisURL != "",
		"amqp_enabled", b.Events != nil)
	return b, nil
}

func (f *DefaultFactory) openStore(ctx context.Context, b *Backend, config Config) error {
	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		b.Store, b.pinger = repo, repo.Ping
		b.cleanup = append(b.cleanup, repo.Close)
	case PostgresBackend:
		repo, err := storage.NewPostgresRepository(ctx, config.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to initialize Postgres repository: %w", err)
		}
		b.Store, b.pinger = repo, repo.Ping
		b.cleanup = append(b.cleanup, repo.Close)
	case MemoryBackend:
		f.logger.WarnContext(ctx, "Using the in-memory store, data is lost on restart")
		b.Store = memory.New()
	default:
		return fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	return nil
}

func (f *DefaultFactory) openCache(ctx context.Context, b *Backend, config Config) error {
	if strings.TrimSpace(config.RedisURL) != "" {
		client, err := cache.NewRedisClient(ctx, config.RedisURL)
		if err != nil {
			return err
		}
		b.Cache = cache.NewRedisBalanceCache(client, config.BalanceCacheTTL)
		b.cleanup = append(b.cleanup, client.Close)
		return nil
	}
	lru := cache.NewLRUBalanceCache(config.BalanceCacheSize, config.BalanceCacheTTL)
	b.Cache = lru
	b.Sweeper.Register(lru)
	return nil
}

func (f *DefaultFactory) openEvents(ctx context.Context, b *Backend, config Config) {
	if config.AMQPURL == "" {
		return
	}
	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without ledger events",
			log.FieldError, err.Error())
		return
	}
	f.logger.InfoContext(ctx, "Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)
	b.Events = client
	b.cleanup = append(b.cleanup, client.Close)
}

// CreateExporter opens the Google Sheets exporter, or returns nil when no
// spreadsheet is configured.
func (f *DefaultFactory) CreateExporter(ctx context.Context, config Config) (sheets.LedgerExporter, error) {
	if strings.TrimSpace(config.GoogleSpreadsheetID) == "" {
		return nil, nil
	}
	exp, err := gsheet.New(ctx, gsheet.Options{
		SpreadsheetID:   config.GoogleSpreadsheetID,
		SheetName:       config.GoogleSheetName,
		CredentialsJSON: config.GoogleServiceAccountJSON,
		CredentialsFile: config.GoogleServiceAccountFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets exporter: %w", err)
	}
	return exp, nil
}
