package redpanda

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// Topics carrying ledger events
const (
	TopicTransmissionOutcomes = "iis.transmission.outcomes"
	TopicResultsReconciled    = "iis.results.reconciled"
)

// TopicPrefix is shared by every topic this service owns
const TopicPrefix = "iis."

// Retention is how long outcome events are kept
const Retention = 30 * 24 * time.Hour

// TopicConfig holds configuration for a Kafka topic
type TopicConfig struct {
	Name              string
	Partitions        int32
	ReplicationFactor int16
	Configs           map[string]*string
}

func eventTopic(name string, partitions int32) TopicConfig {
	retention := strconv.FormatInt(Retention.Milliseconds(), 10)
	deletePolicy, lz4 := "delete", "lz4"
	return TopicConfig{
		Name:              name,
		Partitions:        partitions,
		ReplicationFactor: 1,
		Configs: map[string]*string{
			"retention.ms":     &retention,
			"cleanup.policy":   &deletePolicy,
			"compression.type": &lz4,
		},
	}
}

// DefaultTopicConfigs returns the outcome topics. Reconciled results are
// low volume and kept on one partition.
func DefaultTopicConfigs() []TopicConfig {
	return []TopicConfig{
		eventTopic(TopicTransmissionOutcomes, 3),
		eventTopic(TopicResultsReconciled, 1),
	}
}

// Admin provides topic administration
type Admin struct {
	client *kadm.Client
	logger *zap.Logger
}

// NewAdmin creates a new admin client
func NewAdmin(brokers []string, logger *zap.Logger) (*Admin, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	kgoClient, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &Admin{
		client: kadm.NewClient(kgoClient),
		logger: logger,
	}, nil
}

// CreateTopics creates the given topics, treating existing ones as success
func (a *Admin) CreateTopics(ctx context.Context, configs []TopicConfig) error {
	for _, cfg := range configs {
		resp, err := a.client.CreateTopics(ctx, cfg.Partitions, cfg.ReplicationFactor, cfg.Configs, cfg.Name)
		if err != nil {
			return fmt.Errorf("create topic %s: %w", cfg.Name, err)
		}

		for _, r := range resp {
			if r.Err != nil {
				if errors.Is(r.Err, kerr.TopicAlreadyExists) {
					a.logger.Debug("topic already exists", zap.String("topic", r.Topic))
					continue
				}
				return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
			}
			a.logger.Info("topic created",
				zap.String("topic", r.Topic),
				zap.Int32("partitions", cfg.Partitions))
		}
	}
	return nil
}

// EnsureTopics ensures the outcome topics exist
func (a *Admin) EnsureTopics(ctx context.Context) error {
	return a.CreateTopics(ctx, DefaultTopicConfigs())
}

// ListTopics returns the sorted names of the topics under TopicPrefix
func (a *Admin) ListTopics(ctx context.Context) ([]string, error) {
	topics, err := a.client.ListTopics(ctx)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	var names []string
	for _, name := range topics.Names() {
		if strings.HasPrefix(name, TopicPrefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Close closes the admin client
func (a *Admin) Close() {
	a.client.Close()
}

// HealthCheck verifies that at least one broker answers within timeout
func HealthCheck(ctx context.Context, brokers []string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return fmt.Errorf("create kafka client: %w", err)
	}
	defer client.Close()

	if err := client.Ping(ctx); err != nil {
		return fmt.Errorf("brokers %v unreachable: %w", brokers, err)
	}
	return nil
}
