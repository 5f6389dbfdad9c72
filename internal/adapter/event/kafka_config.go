package event

import (
	"time"

	"github.com/IBM/sarama"
)

func newConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_6_0_0
	cfg.Net.DialTimeout = 5 * time.Second
	return cfg
}

// NewSyncProducer returns a producer that waits for all in-sync replicas.
// Events are keyed by order ID so one order's events stay on one partition.
func NewSyncProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := newConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Return.Successes = true
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	return sarama.NewSyncProducer(brokers, cfg)
}

func NewGroup(brokers []string, groupID string) (sarama.ConsumerGroup, error) {
	cfg := newConfig()
	cfg.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRange
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	return sarama.NewConsumerGroup(brokers, groupID, cfg)
}
