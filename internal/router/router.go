// internal/router/router.go
package router

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Jackzmc/flashforge-api-server/internal/api"
	"github.com/Jackzmc/flashforge-api-server/internal/api/handler"
	"github.com/Jackzmc/flashforge-api-server/internal/middleware"
	"github.com/Jackzmc/flashforge-api-server/internal/printer"
	"github.com/Jackzmc/flashforge-api-server/internal/service"
	"github.com/Jackzmc/flashforge-api-server/internal/websockets"
)

// Router handles HTTP routing
type Router struct {
	mux     *mux.Router
	handler http.Handler

	printers *service.PrinterService
	auth     *service.AuthService
	hub      *websockets.Hub
	registry *printer.Registry
}

// New creates a new router
func New(registry *printer.Registry, printers *service.PrinterService, auth *service.AuthService, hub *websockets.Hub, logger *slog.Logger) *Router {
	r := &Router{
		mux:      mux.NewRouter(),
		printers: printers,
		auth:     auth,
		hub:      hub,
		registry: registry,
	}

	// Set up routes
	r.setupRoutes()

	// Logged outside mux so unmatched paths are logged too
	r.handler = middleware.Logger(logger)(r.mux)

	return r
}

// ServeHTTP implements the http.Handler interface
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}

// setupRoutes sets up the routes for the router
func (r *Router) setupRoutes() {
	printerHandler := handler.NewPrinterHandler(r.printers)
	cameraHandler := handler.NewCameraHandler(r.printers)
	authHandler := handler.NewAuthHandler(r.auth)

	r.mux.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		api.NotFound(w, "no route for "+req.URL.Path)
	})
	r.mux.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		api.Error(w, http.StatusMethodNotAllowed, api.CodeBadRequest, "method "+req.Method+" not allowed")
	})

	apis := r.mux.PathPrefix("/apis").Subrouter()

	// Public routes
	apis.HandleFunc("/auth/token", authHandler.Token).Methods(http.MethodPost)

	// Protected routes
	protected := apis.NewRoute().Subrouter()
	protected.Use(middleware.Auth(r.auth))

	protected.HandleFunc("/health", printerHandler.Health).Methods(http.MethodGet)
	protected.HandleFunc("/printers", printerHandler.List).Methods(http.MethodGet)

	p := protected.PathPrefix("/printers/{id}").Subrouter()
	p.Handle("/info", printerHandler.Info()).Methods(http.MethodGet)
	p.Handle("/status", printerHandler.Status()).Methods(http.MethodGet)
	p.Handle("/temperatures", printerHandler.Temperatures()).Methods(http.MethodGet)
	p.Handle("/head-position", printerHandler.HeadPosition()).Methods(http.MethodGet)
	p.Handle("/progress", printerHandler.Progress()).Methods(http.MethodGet)
	p.HandleFunc("/jobs", printerHandler.Jobs).Methods(http.MethodGet)
	p.HandleFunc("/set-temperature/{tempIndex}/{temperatureC}", printerHandler.SetTemperature).Methods(http.MethodPost)
	p.HandleFunc("/led/{r}/{g}/{b}", printerHandler.SetLED).Methods(http.MethodPost)

	p.HandleFunc("/snapshot", cameraHandler.Snapshot).Methods(http.MethodGet)
	p.HandleFunc("/camera", cameraHandler.Stream).Methods(http.MethodGet)
	p.HandleFunc("/camera/ws", cameraHandler.WebSocket).Methods(http.MethodGet)

	r.mux.Handle("/ws", middleware.Auth(r.auth)(handler.NewWebSocketHandler(r.hub, r.registry))).Methods(http.MethodGet)
}
