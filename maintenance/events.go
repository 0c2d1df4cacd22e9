package maintenance

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// IncidentChange is the message announcing that incident records were written.
type IncidentChange struct {
	IDs []string  `json:"ids,omitempty"`
	At  time.Time `json:"at"`
}

// Publisher announces incident changes on a NATS subject.
type Publisher struct {
	conn    *nats.Conn
	subject string
}

// NewPublisher connects to the NATS server at url.
func NewPublisher(url, subject string) (*Publisher, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &Publisher{conn: nc, subject: subject}, nil
}

// Publish sends change and waits until the server has received it.
func (p *Publisher) Publish(ctx context.Context, change IncidentChange) error {
	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshaling incident change: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publishing to %s: %w", p.subject, err)
	}
	return p.conn.FlushWithContext(ctx)
}

func (p *Publisher) Close() error {
	p.conn.Close()
	return nil
}

// Listener requests a risk refresh for every incident change received.
type Listener struct {
	conn *nats.Conn
	sub  *nats.Subscription
}

// Listen subscribes r to incident changes on subject. Extra options are appended to the
// reconnect defaults.
func Listen(url, subject string, r *Rebuilder, opts ...nats.Option) (*Listener, error) {
	defaults := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				r.logger.Warn("disconnected from NATS", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			r.logger.Info("reconnected to NATS", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}

	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		var change IncidentChange
		if err := json.Unmarshal(msg.Data, &change); err != nil {
			r.logger.Warn("malformed incident change message", zap.String("subject", msg.Subject), zap.Error(err))
		} else {
			r.logger.Debug("incident change received", zap.Int("ids", len(change.IDs)))
		}
		r.TriggerRisk()
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", subject, err)
	}
	// Flush so the subscription is registered before publishers on other connections send.
	if err := nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		nc.Close()
		return nil, fmt.Errorf("flushing subscription: %w", err)
	}
	return &Listener{conn: nc, sub: sub}, nil
}

func (l *Listener) Close() error {
	_ = l.sub.Unsubscribe()
	l.conn.Close()
	return nil
}
