package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"go.uber.org/zap"

	"support-agent/internal/config"
	"support-agent/internal/integrations/gemini"
	"support-agent/internal/integrations/openai"
	"support-agent/internal/integrations/paramstore"
	"support-agent/internal/logging"
	"support-agent/internal/repository"
	"support-agent/internal/usecase"
)

// runtime holds everything a command needs to serve the pipeline.
type runtime struct {
	cfg    *config.Config
	logger *zap.Logger
	svc    *usecase.Service

	aws     *awsLoader
	closers []func() error
}

// newRuntime loads configuration and wires the completer, store and service.
// Callers must Close the result.
func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, logger: logger, aws: &awsLoader{}}
	rt.closers = append(rt.closers, func() error {
		_ = logger.Sync()
		return nil
	})

	if err := cfg.RequireCompletionKey(); err != nil {
		_ = rt.Close()
		return nil, err
	}
	llm, err := newCompleter(ctx, cfg, rt.aws)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	store, closeStore, err := newStore(ctx, cfg, rt.aws)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	if closeStore != nil {
		rt.closers = append(rt.closers, closeStore)
	}

	var prompts *usecase.PromptSet
	if cfg.Agent.PromptsFile != "" {
		if prompts, err = usecase.LoadPromptsFile(cfg.Agent.PromptsFile); err != nil {
			_ = rt.Close()
			return nil, err
		}
	}

	svc, err := usecase.NewService(llm, store, usecase.Options{
		ContextTurns:     cfg.Agent.ContextTurns,
		MaxQueryLength:   cfg.Agent.MaxQueryLength,
		ParallelClassify: cfg.Agent.ParallelClassify,
		Prompts:          prompts,
		Logger:           logger,
	})
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.svc = svc

	logger.Debug("runtime ready",
		zap.String("provider", cfg.Completion.Provider),
		zap.String("store", cfg.Store.Backend))
	return rt, nil
}

// Close releases resources in reverse order of acquisition.
func (r *runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

// awsLoader loads the default AWS config at most once, and only for the
// components that need it.
type awsLoader struct {
	once sync.Once
	cfg  aws.Config
	err  error
}

func (l *awsLoader) load(ctx context.Context) (aws.Config, error) {
	l.once.Do(func() {
		l.cfg, l.err = awsconfig.LoadDefaultConfig(ctx)
		if l.err != nil {
			l.err = fmt.Errorf("load AWS config: %w", l.err)
		}
	})
	return l.cfg, l.err
}

// ssmToken returns a lazily fetched token stored under prefix/key in SSM.
func ssmToken(ctx context.Context, loader *awsLoader, prefix, key string) (*paramstore.LazyToken, error) {
	awsCfg, err := loader.load(ctx)
	if err != nil {
		return nil, err
	}
	client, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return nil, err
	}
	return paramstore.NewLazyToken(client, paramstore.TokenName(prefix, key))
}

func newCompleter(ctx context.Context, cfg *config.Config, loader *awsLoader) (usecase.Completer, error) {
	cc := cfg.Completion
	httpClient := &http.Client{Timeout: cc.Timeout}

	var lazy *paramstore.LazyToken
	if cc.APIKey == "" {
		var err error
		if lazy, err = ssmToken(ctx, loader, cc.ParamPrefix, cc.Provider); err != nil {
			return nil, err
		}
	}

	switch cc.Provider {
	case config.ProviderOpenAI:
		var keys openai.KeySource = openai.StaticKey(cc.APIKey)
		if lazy != nil {
			keys = lazy
		}
		return openai.NewClient(keys,
			openai.WithBaseURL(cc.BaseURL),
			openai.WithModel(cc.Model),
			openai.WithTemperature(float32(cc.Temperature)),
			openai.WithHTTPClient(httpClient))
	case config.ProviderGemini:
		var keys gemini.KeySource = gemini.StaticKey(cc.APIKey)
		if lazy != nil {
			keys = lazy
		}
		return gemini.NewClient(keys,
			gemini.WithBaseURL(cc.BaseURL),
			gemini.WithModel(cc.Model),
			gemini.WithTemperature(float32(cc.Temperature)),
			gemini.WithHTTPClient(httpClient))
	default:
		return nil, fmt.Errorf("unknown completion provider %q", cc.Provider)
	}
}

// newStore opens the configured backend. The returned close func is nil for
// backends without resources to release.
func newStore(ctx context.Context, cfg *config.Config, loader *awsLoader) (usecase.Store, func() error, error) {
	sc := cfg.Store
	switch sc.Backend {
	case config.BackendMemory:
		return repository.NewMemoryStore(), nil, nil
	case config.BackendSQLite:
		store, err := repository.OpenSQL(ctx, repository.DriverSQLite, sc.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case config.BackendPostgres:
		store, err := repository.OpenSQL(ctx, repository.DriverPostgres, sc.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case config.BackendDynamoDB:
		awsCfg, err := loader.load(ctx)
		if err != nil {
			return nil, nil, err
		}
		store, err := repository.NewDynamoStore(awsdynamodb.NewFromConfig(awsCfg), sc.DynamoTable)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", sc.Backend)
	}
}
