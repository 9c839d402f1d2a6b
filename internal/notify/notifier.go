// Package notify pushes work item alerts to chat review channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/evidra/internal/domain"
	"github.com/gosuda/evidra/internal/messenger"
)

// ErrPlatformNotFound is returned when a messenger platform is not registered.
var ErrPlatformNotFound = errors.New("notify: platform not found") //nolint:gochecknoglobals // sentinel error

// MessengerRegistry maps platform names to Messenger implementations.
type MessengerRegistry interface {
	Get(platform string) (messenger.Messenger, bool)
}

// Route names a channel on a platform that receives work item alerts.
type Route struct {
	Platform  string
	ChannelID string
}

// Notifier dispatches work item alerts to every configured route.
type Notifier struct {
	messengers MessengerRegistry
	routes     []Route
}

// New creates a Notifier. With no routes, alerts are only logged.
func New(messengers MessengerRegistry, routes ...Route) *Notifier {
	return &Notifier{
		messengers: messengers,
		routes:     routes,
	}
}

// NotifyWorkItem posts the work item to every route. Every route is tried;
// the returned error joins the individual failures.
func (n *Notifier) NotifyWorkItem(ctx context.Context, w *domain.WorkItem) error {
	notice := WorkItemNotice(w)

	if len(n.routes) == 0 {
		log.Info().
			Str("tenant_id", w.TenantID.String()).
			Str("work_item_id", w.ID.String()).
			Str("type", string(w.Type)).
			Msg("work item opened, no review channel configured")
		return nil
	}

	var errs []error
	for _, r := range n.routes {
		if err := n.NotifyVia(ctx, r, notice); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify.Notifier.NotifyWorkItem: %w", errors.Join(errs...))
	}
	return nil
}

// NotifyVia sends a notice over a single route.
func (n *Notifier) NotifyVia(ctx context.Context, r Route, notice messenger.Notice) error {
	msg, ok := n.messengers.Get(r.Platform)
	if !ok {
		return fmt.Errorf("notify.Notifier.NotifyVia: platform %q: %w", r.Platform, ErrPlatformNotFound)
	}

	if _, err := msg.SendNotice(ctx, r.ChannelID, notice); err != nil {
		return fmt.Errorf("notify.Notifier.NotifyVia: %s: %w", r.Platform, err)
	}
	return nil
}

// WorkItemNotice renders a work item as a messenger notice.
func WorkItemNotice(w *domain.WorkItem) messenger.Notice {
	ids := make([]string, 0, len(w.EvidenceIDs))
	for _, id := range w.EvidenceIDs {
		ids = append(ids, shortID(id))
	}

	return messenger.Notice{
		Headline: fmt.Sprintf("%s work item opened", humanize(string(w.Type))),
		Body:     w.Title,
		Fields: []messenger.Field{
			{Label: "Priority", Value: string(w.Priority)},
			{Label: "Evidence", Value: strings.Join(ids, ", ")},
			{Label: "Work item", Value: w.ID.String()},
		},
	}
}

// humanize turns MAPPING_REVIEW into "Mapping review".
func humanize(s string) string {
	s = strings.ToLower(strings.ReplaceAll(s, "_", " "))
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func shortID(id uuid.UUID) string {
	return strings.ToUpper(id.String()[:8])
}
