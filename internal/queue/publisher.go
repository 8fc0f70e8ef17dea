package queue

import (
    "context"
    "encoding/json"
    "net"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"
)

// Publisher sends domain events to RabbitMQ.  It dials per publish so a
// broker outage never holds a connection open across requests.  Errors are
// logged and returned so callers can choose to ignore them without
// interrupting the main request flow.
type Publisher struct {
    url string
    log *zap.Logger
}

// NewPublisher returns a Publisher for the broker at url.
func NewPublisher(url string, log *zap.Logger) *Publisher {
    return &Publisher{url: url, log: log.Named("publisher")}
}

// PublishDeviceClaimed publishes to the device.claimed queue.
func (p *Publisher) PublishDeviceClaimed(ctx context.Context, ev DeviceClaimedEvent) error {
    return p.publish(ctx, DeviceClaimedQueue, ev)
}

// PublishVitalsRecorded publishes to the vitals.recorded queue.
func (p *Publisher) PublishVitalsRecorded(ctx context.Context, ev VitalsRecordedEvent) error {
    return p.publish(ctx, VitalsRecordedQueue, ev)
}

// dialTimeout caps the broker handshake when ctx carries no deadline.
const dialTimeout = 5 * time.Second

// dial opens a connection whose TCP connect and AMQP handshake end at the
// ctx deadline.  The library clears the socket deadline once the handshake
// completes.
func (p *Publisher) dial(ctx context.Context) (*amqp.Connection, error) {
    return amqp.DialConfig(p.url, amqp.Config{
        Heartbeat: 10 * time.Second,
        Locale:    "en_US",
        Dial: func(network, addr string) (net.Conn, error) {
            deadline, ok := ctx.Deadline()
            if !ok {
                deadline = time.Now().Add(dialTimeout)
            }
            d := net.Dialer{Deadline: deadline}
            conn, err := d.DialContext(ctx, network, addr)
            if err != nil {
                return nil, err
            }
            if err := conn.SetDeadline(deadline); err != nil {
                _ = conn.Close()
                return nil, err
            }
            return conn, nil
        },
    })
}

func (p *Publisher) publish(ctx context.Context, queue string, event any) error {
    conn, err := p.dial(ctx)
    if err != nil {
        p.log.Warn("dial failed", zap.String("queue", queue), zap.Error(err))
        return err
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        p.log.Warn("channel open failed", zap.String("queue", queue), zap.Error(err))
        return err
    }
    defer func() { _ = ch.Close() }()

    // Durable so messages survive broker restarts.
    if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
        p.log.Warn("queue declare failed", zap.String("queue", queue), zap.Error(err))
        return err
    }

    body, err := json.Marshal(event)
    if err != nil {
        p.log.Warn("marshal event failed", zap.String("queue", queue), zap.Error(err))
        return err
    }

    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        Timestamp:    time.Now().UTC(),
        Body:         body,
    }
    if err := ch.PublishWithContext(ctx, "", queue, false, false, pub); err != nil {
        p.log.Warn("publish failed", zap.String("queue", queue), zap.Error(err))
        return err
    }
    return nil
}

// Nop discards every event.  It is used when EVENTS_ENABLED is false.
type Nop struct{}

func (Nop) PublishDeviceClaimed(context.Context, DeviceClaimedEvent) error   { return nil }
func (Nop) PublishVitalsRecorded(context.Context, VitalsRecordedEvent) error { return nil }
