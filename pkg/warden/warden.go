// Package warden assembles the reconciler from configuration: the rule
// store, the AWS inventory and firewall clients, the notifier and the
// evaluation pipeline.
package warden

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	internalaws "github.com/eleven-am/warden/internal/aws"
	"github.com/eleven-am/warden/internal/config"
	"github.com/eleven-am/warden/internal/domain"
	"github.com/eleven-am/warden/internal/evaluation"
	"github.com/eleven-am/warden/internal/logging"
	"github.com/eleven-am/warden/internal/metrics"
	"github.com/eleven-am/warden/internal/notify"
	"github.com/eleven-am/warden/internal/resolver"
	"github.com/eleven-am/warden/internal/rules"
	"github.com/eleven-am/warden/internal/scheduler"
	"github.com/eleven-am/warden/internal/server"
	"github.com/eleven-am/warden/internal/store"
)

const drainTimeout = 15 * time.Second

// Service is a fully wired reconciler.
type Service struct {
	cfg          *config.Config
	store        store.Store
	queue        *notify.Queue
	orchestrator *evaluation.Orchestrator
	registry     *prometheus.Registry
	logger       log.FieldLogger
}

// LoadAWSConfig resolves credentials through the default chain.
func LoadAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

// OpenStore opens the configured rule store. The AWS config is only used by
// the dynamodb driver.
func OpenStore(cfg *config.Config, awsCfg aws.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case store.DriverSQLite:
		return store.OpenSQLite(cfg.Store.Path)
	case store.DriverDynamoDB:
		return store.NewDynamoStore(awsCfg, store.Tables{
			Objects:     cfg.Store.Tables.Objects,
			Rules:       cfg.Store.Tables.Rules,
			Bundles:     cfg.Store.Tables.Bundles,
			BundleIndex: cfg.Store.BundleIndex,
		}), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	homeAccountID := ""
	if cfg.Firewall.RoleArnPattern != "" {
		if homeAccountID, err = internalaws.CallerAccountID(ctx, awsCfg); err != nil {
			return nil, err
		}
	}

	st, err := OpenStore(cfg, awsCfg)
	if err != nil {
		return nil, err
	}
	return Assemble(cfg, Dependencies{
		Store:     st,
		AWSConfig: awsCfg,
		AccountID: homeAccountID,
	}), nil
}

// Dependencies are the pieces Assemble cannot build from configuration
// alone.
type Dependencies struct {
	Store     store.Store
	AWSConfig aws.Config
	AccountID string

	// Inventory, Firewalls and Notifier replace the AWS backed defaults
	// when set.
	Inventory domain.Inventory
	Firewalls domain.FirewallProvider
	Notifier  domain.Notifier
}

// Assemble wires the object graph by constructor injection.
func Assemble(cfg *config.Config, deps Dependencies) *Service {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	client := internalaws.NewClient(deps.AWSConfig, cfg.Notifications.TopicArn)
	inventory, firewalls, target := deps.Inventory, deps.Firewalls, deps.Notifier
	if inventory == nil {
		inventory = client
	}
	if firewalls == nil {
		firewalls = internalaws.NewAccountContext(deps.AWSConfig, client, deps.AccountID, cfg.Firewall.RoleArnPattern)
	}
	if target == nil {
		if cfg.Notifications.TopicArn != "" {
			target = client
		} else {
			target = notify.NewLogNotifier(logging.Component("notify"))
		}
	}

	queue := notify.NewQueue(target, notify.Options{
		QueueSize: cfg.Notifications.QueueSize,
		Metrics:   m,
	})
	objects := resolver.NewDefinitionResolver(inventory, resolver.Options{
		CacheTTL: cfg.Evaluation.CacheTTL,
		Metrics:  m,
	})
	ruleResolver := rules.NewDefinitionResolver(objects, cfg.Evaluation.ChunkSize, nil)
	updater := rules.NewUpdater(firewalls, deps.Store, queue, rules.UpdaterOptions{Metrics: m})
	orchestrator := evaluation.NewOrchestrator(deps.Store, ruleResolver, updater, queue, evaluation.Options{
		Timeout: cfg.Evaluation.Timeout,
		Metrics: m,
	})

	return &Service{
		cfg:          cfg,
		store:        deps.Store,
		queue:        queue,
		orchestrator: orchestrator,
		registry:     registry,
		logger:       logging.Component("warden"),
	}
}

// Evaluate runs one reconciliation pass over the given bundles.
func (s *Service) Evaluate(ctx context.Context, bundleIDs []string) (*Result, error) {
	return s.orchestrator.Evaluate(ctx, bundleIDs)
}

func (s *Service) Store() store.Store {
	return s.store
}

// Serve runs the configured schedules and the HTTP endpoint until ctx is
// cancelled.
func (s *Service) Serve(ctx context.Context) error {
	sched := scheduler.New(nil)
	for _, schedule := range s.cfg.Schedules {
		bundles := schedule.Bundles
		err := sched.AddTask(scheduler.Task{
			Name:       schedule.Name,
			Interval:   schedule.Interval,
			RunOnStart: true,
			Func: func(ctx context.Context) error {
				_, err := s.orchestrator.Evaluate(ctx, bundles)
				return err
			},
		})
		if err != nil {
			return err
		}
	}

	handler := server.NewHandler(s.orchestrator, server.Options{
		Gatherer:  s.registry,
		Schedules: sched,
	})

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sched.Start(gCtx)
		<-gCtx.Done()
		sched.Stop()
		return nil
	})
	g.Go(func() error {
		return server.ListenAndServe(gCtx, s.cfg.Server.Listen, handler.Routes(), nil)
	})
	return g.Wait()
}

// Close drains pending notifications and closes the store.
func (s *Service) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	return errors.Join(s.queue.Close(ctx), s.store.Close())
}
