package server

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	v1 "github.com/gosuda/logcatd/internal/api/v1"
	"github.com/gosuda/logcatd/internal/api/ws"
)

func registerAPIRoutes(api huma.API, deps Deps) {
	v1.RegisterDeviceRoutes(api, deps.Ingestor, deps.Devices)
	v1.RegisterHistoryRoutes(api, deps.Ingestor, deps.Archive, deps.Prefs, deps.Location)
}

func registerWSRoutes(r chi.Router, hub *ws.Hub) {
	r.Get("/devices/{serial}", hub.ServeDevice)
	r.Get("/mirror/{serial}", hub.ServeMirror)
}
