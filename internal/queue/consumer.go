package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "sync"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"
)

// EventLogName is the file the consumer appends to inside its directory.
const EventLogName = "events.log"

// Consumer drains the device.claimed and vitals.recorded queues and writes
// one human-friendly line per event to <dir>/events.log.
type Consumer struct {
    url string
    dir string
    log *zap.Logger
    mu  sync.Mutex
}

// NewConsumer returns a Consumer for the broker at url writing into dir.
func NewConsumer(url, dir string, log *zap.Logger) *Consumer {
    return &Consumer{url: url, dir: dir, log: log.Named("consumer")}
}

// Run connects to RabbitMQ and consumes until ctx is cancelled.  Broker
// failures trigger a reconnect with exponential backoff capped at 30s.
// Messages that cannot be processed are rejected without requeue so the
// loop never spins on a poison message.
func (c *Consumer) Run(ctx context.Context) error {
    backoff := time.Second
    for {
        conn, err := amqp.Dial(c.url)
        if err != nil {
            c.log.Warn("failed to dial broker", zap.Error(err), zap.Duration("retry_in", backoff))
            if !sleep(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second

        err = c.consumeLoop(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        c.log.Warn("consume loop ended, reconnecting", zap.Error(err))
        if !sleep(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        c.log.Warn("set QoS failed", zap.Error(err))
    }

    claimed, err := c.subscribe(ch, DeviceClaimedQueue)
    if err != nil {
        return err
    }
    recorded, err := c.subscribe(ch, VitalsRecordedQueue)
    if err != nil {
        return err
    }

    for {
        var (
            d     amqp.Delivery
            ok    bool
            queue string
        )
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok = <-claimed:
            queue = DeviceClaimedQueue
        case d, ok = <-recorded:
            queue = VitalsRecordedQueue
        }
        if !ok {
            return errors.New("deliveries channel closed")
        }
        if err := c.handleMessage(queue, d.Body); err != nil {
            c.log.Warn("handle message failed", zap.String("queue", queue), zap.Error(err))
            _ = d.Nack(false, false)
            continue
        }
        _ = d.Ack(false)
    }
}

func (c *Consumer) subscribe(ch *amqp.Channel, queue string) (<-chan amqp.Delivery, error) {
    if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
        return nil, fmt.Errorf("queue declare %s: %w", queue, err)
    }
    msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
    if err != nil {
        return nil, fmt.Errorf("queue consume %s: %w", queue, err)
    }
    return msgs, nil
}

func (c *Consumer) handleMessage(queue string, body []byte) error {
    line, err := formatEvent(queue, body)
    if err != nil {
        return err
    }

    c.mu.Lock()
    defer c.mu.Unlock()

    if err := os.MkdirAll(c.dir, 0o755); err != nil {
        return fmt.Errorf("mkdir %s: %w", c.dir, err)
    }
    f, err := os.OpenFile(filepath.Join(c.dir, EventLogName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()

    if _, err := f.WriteString(line); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}

// formatEvent renders one event body as a single log line.
func formatEvent(queue string, body []byte) (string, error) {
    switch queue {
    case DeviceClaimedQueue:
        var ev DeviceClaimedEvent
        if err := json.Unmarshal(body, &ev); err != nil {
            return "", fmt.Errorf("unmarshal: %w", err)
        }
        return fmt.Sprintf("[%s] Device claimed | user_id=%d | username=%q | serial=%s\n",
            ev.ClaimedAt, ev.UserID, ev.Username, ev.SerialNum), nil
    case VitalsRecordedQueue:
        var ev VitalsRecordedEvent
        if err := json.Unmarshal(body, &ev); err != nil {
            return "", fmt.Errorf("unmarshal: %w", err)
        }
        return fmt.Sprintf("[%s] Vitals recorded | username=%q | serial=%s | hr=%g | spo2=%g | weight=%g | bp=%g/%g\n",
            ev.RecordedAt, ev.Username, ev.SerialNum, ev.AvgHR, ev.AvgSpO2, ev.Weight, ev.Systolic, ev.Diastolic), nil
    }
    return "", fmt.Errorf("unknown queue %q", queue)
}

// sleep waits for d or until ctx is done; it reports whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}
