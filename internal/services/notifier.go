package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"alfredoptarigan/applicant-screener/internal/logger"
)

type QualifiedMatch struct {
	JobID        string `json:"job_id"`
	FinalScore   int    `json:"final_score"`
	Threshold    int    `json:"threshold"`
	IsAppliedJob bool   `json:"is_applied_job"`
	Summary      string `json:"summary"`
}

// QualifiedNotification bundles every qualified match of one request.
type QualifiedNotification struct {
	RequestID      string           `json:"request_id"`
	CandidateID    string           `json:"candidate_id"`
	CandidateName  string           `json:"candidate_name"`
	CandidateEmail string           `json:"candidate_email"`
	AppliedJobID   string           `json:"applied_job_id,omitempty"`
	Matches        []QualifiedMatch `json:"matches"`
	SentAt         time.Time        `json:"sent_at"`
}

type Notifier interface {
	NotifyQualified(ctx context.Context, n QualifiedNotification) error
	Close() error
}

type kafkaNotifier struct {
	producer sarama.SyncProducer
	topic    string
	log      *zap.Logger
}

func NewKafkaNotifier(brokers []string, topic string, log *zap.Logger) (Notifier, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_6_0_0
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return newKafkaNotifier(producer, topic, log), nil
}

func newKafkaNotifier(producer sarama.SyncProducer, topic string, log *zap.Logger) Notifier {
	return &kafkaNotifier{
		producer: producer,
		topic:    topic,
		log:      logger.OrNop(log).With(zap.String("component", "notifier")),
	}
}

// NotifyQualified publishes one message keyed by candidate so a candidate's
// notifications stay ordered within a partition.
func (k *kafkaNotifier) NotifyQualified(ctx context.Context, n QualifiedNotification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	partition, offset, err := k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(n.CandidateID),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	k.log.Info("notification published",
		zap.String("request_id", n.RequestID),
		zap.String("candidate_id", n.CandidateID),
		zap.Int("matches", len(n.Matches)),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

func (k *kafkaNotifier) Close() error {
	return k.producer.Close()
}

type logNotifier struct {
	log *zap.Logger
}

// NewLogNotifier writes notifications to the log; used when kafka is disabled.
func NewLogNotifier(log *zap.Logger) Notifier {
	return &logNotifier{log: logger.OrNop(log).With(zap.String("component", "notifier"))}
}

func (l *logNotifier) NotifyQualified(_ context.Context, n QualifiedNotification) error {
	jobs := make([]string, 0, len(n.Matches))
	for _, m := range n.Matches {
		jobs = append(jobs, m.JobID)
	}
	l.log.Info("candidate qualified",
		zap.String("request_id", n.RequestID),
		zap.String("candidate_id", n.CandidateID),
		zap.Strings("jobs", jobs))
	return nil
}

func (l *logNotifier) Close() error { return nil }
