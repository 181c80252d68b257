package backend

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"tally/internal/adapters"
	"tally/internal/amqp"
	"tally/internal/log"
	"tally/internal/records/google"
	"tally/internal/records/memory"
	"tally/internal/records/postgres"
	"tally/internal/records/redisstore"
	"tally/internal/services"
	"tally/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentBackend)}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case MemoryBackend:
		return f.createMemoryBackend(config)
	case SQLiteBackend:
		return f.createSQLiteBackend(ctx, config)
	case PostgresBackend:
		return f.createPostgresBackend(ctx, config)
	case RedisBackend:
		return f.createRedisBackend(ctx, config)
	case SheetsBackend:
		return f.createSheetsBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	dataDir := config.DataDirectory
	if dataDir == "" {
		dataDir = "data"
	}
	store, err := memory.NewFromDir(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load memory backend seed: %w", err)
	}

	f.logger.Info("Initialized memory backend", "data_directory", dataDir)
	return &BackendResult{Backend: store}, nil
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	// AMQP is optional; without it line items stay pending until the worker drains them.
	var publisher services.SyncPublisher
	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, f.logger)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without sync", log.FieldError, err.Error())
		} else {
			publisher = client
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	service := services.NewLineItemService(repo, publisher, f.logger)
	adapter := adapters.NewSQLiteAdapter(repo, service)

	f.logger.InfoContext(ctx, "Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"amqp_enabled", publisher != nil)

	return &BackendResult{Backend: adapter, Cleanup: adapter.Close}, nil
}

func (f *DefaultFactory) createPostgresBackend(ctx context.Context, config Config) (*BackendResult, error) {
	store, err := postgres.Open(ctx, config.PostgresDSN, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	f.logger.InfoContext(ctx, "Initialized Postgres backend")
	return &BackendResult{Backend: store, Cleanup: store.Close}, nil
}

func (f *DefaultFactory) createRedisBackend(ctx context.Context, config Config) (*BackendResult, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})
	store := redisstore.New(rdb, config.RedisKey, f.logger)
	if err := store.Ping(ctx); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", config.RedisAddr, err)
	}

	f.logger.InfoContext(ctx, "Initialized Redis backend", "addr", config.RedisAddr, "key", config.RedisKey)
	return &BackendResult{Backend: store, Cleanup: rdb.Close}, nil
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (*BackendResult, error) {
	client, err := google.New(ctx, google.Options{
		SpreadsheetID:   config.GoogleSpreadsheetID,
		SheetName:       config.GoogleSheetName,
		CredentialsJSON: config.GoogleServiceAccountJSON,
		CredentialsFile: config.GoogleServiceAccountFile,
	}, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	if err := client.EnsureHeader(ctx); err != nil {
		f.logger.WarnContext(ctx, "Could not verify sheet header", log.FieldError, err.Error())
	}

	f.logger.InfoContext(ctx, "Initialized Google Sheets backend",
		"spreadsheet_id", config.GoogleSpreadsheetID,
		"sheet", config.GoogleSheetName)
	return &BackendResult{Backend: client}, nil
}
