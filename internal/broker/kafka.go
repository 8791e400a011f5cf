package broker

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/IliaW/lead-scrape-worker/config"
	"github.com/IliaW/lead-scrape-worker/internal/model"
	"github.com/IliaW/lead-scrape-worker/internal/worker"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress/lz4"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type SessionStarter interface {
	StartSession(ctx context.Context, query string, filters model.SearchFilters) (int64, error)
}

type KafkaProducerClient struct {
	eventChan <-chan *model.SessionEvent
	cfg       *config.ProducerConfig
	log       *slog.Logger
	wg        *sync.WaitGroup
}

func NewKafkaProducer(eventChan <-chan *model.SessionEvent, cfg *config.ProducerConfig, log *slog.Logger,
	wg *sync.WaitGroup) *KafkaProducerClient {
	return &KafkaProducerClient{
		eventChan: eventChan,
		cfg:       cfg,
		log:       log,
		wg:        wg,
	}
}

// Run takes session events from eventChan and sends them to kafka in batches.
// After shutdown, it keeps sending until eventChan is closed and drained.
func (p *KafkaProducerClient) Run() {
	defer p.wg.Done()
	p.log.Info("starting kafka producer...", slog.String("topic", p.cfg.WriteTopicName))

	w := kafka.Writer{
		Addr:         kafka.TCP(strings.Split(p.cfg.Addr, ",")...),
		Topic:        p.cfg.WriteTopicName,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  p.cfg.MaxAttempts,
		BatchSize:    1,                // the parameter is controlled by 'batchTicker' variable
		BatchTimeout: time.Millisecond, // the parameter is controlled by 'batch' variable
		ReadTimeout:  p.cfg.ReadTimeout,
		WriteTimeout: p.cfg.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(p.cfg.RequiredAsks),
		Async:        p.cfg.Async,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				p.log.Error("failed to send messages to kafka.", slog.String("err", err.Error()))
			}
		},
		Compression: kafka.Compression(new(lz4.Codec).Code()),
	}
	defer func() {
		err := w.Close()
		if err != nil {
			p.log.Error("failed to close kafka writer.", slog.String("err", err.Error()))
		}
	}()

	batchTicker := time.NewTicker(p.cfg.BatchTimeout)
	defer batchTicker.Stop()
	batch := make([]kafka.Message, 0, p.cfg.BatchSize)
	writeMessage := func(batch []kafka.Message) {
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.WriteTimeout)
		defer cancel()
		err := w.WriteMessages(ctx, batch...)
		if err != nil {
			p.log.Error("failed to send messages to kafka.", slog.String("err", err.Error()))
			return
		}
		p.log.Debug("successfully sent messages to kafka.", slog.Int("batch length", len(batch)))
	}

	for event := range p.eventChan {
		msg, err := encodeEvent(event)
		if err != nil {
			p.log.Error("marshaling error.", slog.String("err", err.Error()), slog.Int64("session_id", event.SessionID))
			continue
		}
		batch = append(batch, msg)
		select {
		case <-batchTicker.C:
			writeMessage(batch)
			batch = make([]kafka.Message, 0, p.cfg.BatchSize)
		default:
			if len(batch) >= p.cfg.BatchSize {
				writeMessage(batch)
				batch = make([]kafka.Message, 0, p.cfg.BatchSize)
			}
		}
	}
	// Some messages may remain in the batch after eventChan is closed
	if len(batch) > 0 {
		p.log.Debug("messages in batch.", slog.Int("count", len(batch)))
		writeMessage(batch)
	}
	p.log.Info("stopping kafka writer.")
}

type KafkaConsumerClient struct {
	sessions SessionStarter
	cfg      *config.ConsumerConfig
	log      *slog.Logger
	wg       *sync.WaitGroup
}

func NewKafkaConsumer(sessions SessionStarter, cfg *config.ConsumerConfig, log *slog.Logger,
	wg *sync.WaitGroup) *KafkaConsumerClient {
	return &KafkaConsumerClient{
		sessions: sessions,
		cfg:      cfg,
		log:      log,
		wg:       wg,
	}
}

// Run reads session requests from kafka and starts a scrape session for each one.
// The reader is closed when the context is done.
func (c *KafkaConsumerClient) Run(ctx context.Context) {
	defer c.wg.Done()
	c.log.Info("starting kafka consumer.", slog.String("topic", c.cfg.ReadTopicName))

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:          strings.Split(c.cfg.Brokers, ","),
		Topic:            c.cfg.ReadTopicName,
		GroupID:          c.cfg.GroupID,
		MaxWait:          c.cfg.MaxWait,
		ReadBatchTimeout: c.cfg.ReadBatchTimeout,
	})
	defer func() {
		c.log.Info("stopping kafka reader.")
		if err := r.Close(); err != nil {
			c.log.Error("failed to close kafka reader.", slog.String("err", err.Error()))
		}
	}()

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Error("failed to read message from kafka.", slog.String("err", err.Error()))
			continue
		}
		c.log.Debug("successfully read messages from kafka.")
		c.handle(ctx, m)
	}
}

func (c *KafkaConsumerClient) handle(ctx context.Context, m kafka.Message) {
	req, err := decodeRequest(m)
	if err != nil {
		c.log.Error("failed to unmarshal message.", slog.String("err", err.Error()))
		return
	}
	log := c.log.With(slog.String("request_id", req.RequestID))

	id, err := c.sessions.StartSession(ctx, req.Query, req.Filters)
	if err != nil {
		if errors.Is(err, worker.ErrEmptyQuery) {
			log.Warn("session request rejected.", slog.String("err", err.Error()))
			return
		}
		log.Error("failed to start session.", slog.String("err", err.Error()))
		return
	}
	log.Info("session request accepted.", slog.Int64("session_id", id))
}

func decodeRequest(m kafka.Message) (*model.SessionRequest, error) {
	var req model.SessionRequest
	if err := json.Unmarshal(m.Value, &req); err != nil {
		return nil, err
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	return &req, nil
}

func encodeEvent(e *model.SessionEvent) (kafka.Message, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(strconv.FormatInt(e.SessionID, 10)),
		Value: body,
	}, nil
}
