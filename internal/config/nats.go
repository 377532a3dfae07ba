package config

import (
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// InitNATS connects when url is set. An empty url returns nil and the
// NATS-backed collaborators stay disabled.
func InitNATS(url string, log *zap.Logger) *nats.Conn {
	if url == "" {
		return nil
	}

	nc, err := nats.Connect(url,
		nats.Name("antrian-klinik"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("NATS reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		log.Fatal("NATS tidak nyambung", zap.Error(err))
	}

	log.Info("NATS connected", zap.String("url", url))
	return nc
}
