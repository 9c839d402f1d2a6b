// Package ws streams tenant audit events to WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/evidra/internal/domain"
	"github.com/gosuda/evidra/internal/server/middleware"
	redisstore "github.com/gosuda/evidra/internal/store/redis"
)

// Broker is the pub/sub transport behind the hub.
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error)
}

// Hub manages WebSocket connections backed by Redis pub/sub.
type Hub struct {
	broker Broker
	opts   *websocket.AcceptOptions
}

// NewHub creates a new WebSocket hub. originPatterns restricts which browser
// origins may connect; empty means same-origin only.
func NewHub(broker Broker, originPatterns ...string) *Hub {
	return &Hub{
		broker: broker,
		opts:   &websocket.AcceptOptions{OriginPatterns: originPatterns},
	}
}

// ServeEvents streams the authenticated tenant's audit events.
// Subscribes to Redis channel "tenant:<tenantID>:evidence".
func (h *Hub) ServeEvents(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := middleware.TenantIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing tenant", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, h.opts)
	if err != nil {
		log.Error().Err(err).Msg("websocket accept")
		return
	}
	defer conn.CloseNow()

	// Clients only listen; CloseRead handles control frames and cancels ctx
	// when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	messages, cleanup, err := h.broker.Subscribe(ctx, redisstore.EvidenceChannel(tenantID))
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenantID.String()).Msg("websocket subscribe")
		_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}
	defer cleanup()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "connection closed")
			return
		case msg, msgOK := <-messages:
			if !msgOK {
				_ = conn.Close(websocket.StatusNormalClosure, "channel closed")
				return
			}
			if writeErr := conn.Write(ctx, websocket.MessageText, msg); writeErr != nil {
				log.Debug().Err(writeErr).Msg("websocket write")
				return
			}
		}
	}
}

// PublishAuditEvent fans an audit event out to the tenant's live clients.
func (h *Hub) PublishAuditEvent(ctx context.Context, ev *domain.AuditEvent) error {
	payload, err := json.Marshal(newEventMessage(ev))
	if err != nil {
		return fmt.Errorf("ws.Hub.PublishAuditEvent: marshal: %w", err)
	}
	if err := h.broker.Publish(ctx, redisstore.EvidenceChannel(ev.TenantID), payload); err != nil {
		return fmt.Errorf("ws.Hub.PublishAuditEvent: %w", err)
	}
	return nil
}
