// Package relay forwards the broadcast stream to a NATS subject so other
// processes can observe it without holding a websocket.
package relay

import (
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const DefaultSubject = "trafficwatch.stream"

type publisher interface {
	Publish(subject string, data []byte) error
}

// NATS is a session transport that publishes every frame to one subject.
type NATS struct {
	pub       publisher
	subject   string
	closeFn   func()
	closeOnce sync.Once
}

func Connect(url, subject string) (*NATS, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	nc, err := nats.Connect(url,
		nats.Name("trafficwatch-relay"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats relay disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats relay reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	log.Info().Str("url", url).Str("subject", subject).Msg("nats relay connected")
	return newNATS(nc, subject, nc.Close), nil
}

func newNATS(pub publisher, subject string, closeFn func()) *NATS {
	return &NATS{pub: pub, subject: subject, closeFn: closeFn}
}

func (n *NATS) Subject() string { return n.subject }

func (n *NATS) WriteMessage(_ int, data []byte) error {
	if err := n.pub.Publish(n.subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", n.subject, err)
	}
	return nil
}

func (n *NATS) Close() error {
	n.closeOnce.Do(func() {
		if n.closeFn != nil {
			n.closeFn()
		}
	})
	return nil
}
