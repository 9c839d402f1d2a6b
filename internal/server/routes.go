package server

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	v1 "github.com/gosuda/evidra/internal/api/v1"
	"github.com/gosuda/evidra/internal/api/ws"
	"github.com/gosuda/evidra/internal/auth"
	"github.com/gosuda/evidra/internal/store/postgres"
)

func registerAuthRoutes(api huma.API, store *postgres.Store, authSvc *auth.Service) {
	v1.RegisterAuthRoutes(api, store, authSvc)
}

func registerAPIRoutes(api huma.API, store *postgres.Store, svc Services, limits v1.Limits) {
	v1.RegisterTenantRoutes(api, store)
	v1.RegisterAdminRoutes(api, svc.Auth)
	v1.RegisterDraftRoutes(api, svc.Evidence, limits)
	v1.RegisterEvidenceRoutes(api, svc.Evidence)
	v1.RegisterWorkItemRoutes(api, svc.Evidence)
	v1.RegisterAuditRoutes(api, svc.Evidence)
	v1.RegisterRegistryRoutes(api, svc.Registry)
}

func registerWSRoutes(r chi.Router, hub *ws.Hub) {
	r.Get("/events", hub.ServeEvents)
}
