package chat

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const subjectPrefix = "grandbridge.chat."

type envelope struct {
	Origin  string          `json:"origin"`
	EventID int64           `json:"event_id"`
	Message json.RawMessage `json:"message"`
}

func subject(eventID int64) string {
	return subjectPrefix + strconv.FormatInt(eventID, 10)
}

// Connect dials NATS with reconnect handling logged through log.
func Connect(url string, log *zap.Logger) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("grandbridge"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
}

// Attach relays messages published by other instances into local rooms.
func (h *Hub) Attach(nc *nats.Conn) error {
	sub, err := nc.Subscribe(subjectPrefix+"*", func(m *nats.Msg) {
		h.receive(m.Subject, m.Data)
	})
	if err != nil {
		return err
	}
	h.nc = nc
	h.sub = sub
	return nil
}

func (h *Hub) receive(subj string, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		h.log.Warn("bad chat envelope", zap.String("subject", subj), zap.Error(err))
		return
	}
	if env.Origin == h.id {
		return
	}
	if want := strings.TrimPrefix(subj, subjectPrefix); want != strconv.FormatInt(env.EventID, 10) {
		return
	}
	h.deliver(env.EventID, env.Message)
}
