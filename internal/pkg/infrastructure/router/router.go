package router

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/diwise/integration-acurite/internal/pkg/application/nodes"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/rs/zerolog"
)

type Router interface {
	Start(port string) error
	Shutdown(ctx context.Context) error
}

type NodeSource interface {
	Nodes() []nodes.Snapshot
	Notices() map[string]string
}

// Commander exposes the controller commands that can be triggered remotely.
type Commander interface {
	Discover(ctx context.Context) error
	RemoveNoticesAll()
}

type routerStruct struct {
	router chi.Router
	log    zerolog.Logger
	source NodeSource
	cmd    Commander
	server *http.Server
}

func SetupRouter(chiRouter chi.Router, log zerolog.Logger, source NodeSource, cmd Commander) *routerStruct {
	r := &routerStruct{
		router: chiRouter,
		log:    log,
		source: source,
		cmd:    cmd,
	}

	chiRouter.Use(middleware.Logger)
	chiRouter.Get("/health", r.health)

	chiRouter.Route("/api", func(api chi.Router) {
		api.Get("/nodes", r.listNodes)
		api.Get("/notices", r.listNotices)
		api.Delete("/notices", r.removeNotices)
		api.Post("/discover", r.discover)
	})

	return r
}

func (r *routerStruct) Start(port string) error {
	r.log.Info().Str("port", port).Msg("starting to listen for connections")

	r.server = &http.Server{
		Addr:              fmt.Sprintf(":%s", port),
		Handler:           r.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	err := r.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (r *routerStruct) Shutdown(ctx context.Context) error {
	if r.server == nil {
		return nil
	}
	return r.server.Shutdown(ctx)
}

func (router *routerStruct) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (router *routerStruct) listNodes(w http.ResponseWriter, r *http.Request) {
	router.writeJSON(w, http.StatusOK, router.source.Nodes())
}

func (router *routerStruct) listNotices(w http.ResponseWriter, r *http.Request) {
	router.writeJSON(w, http.StatusOK, router.source.Notices())
}

func (router *routerStruct) removeNotices(w http.ResponseWriter, r *http.Request) {
	router.cmd.RemoveNoticesAll()
	w.WriteHeader(http.StatusNoContent)
}

func (router *routerStruct) discover(w http.ResponseWriter, r *http.Request) {
	err := router.cmd.Discover(r.Context())
	if err != nil {
		router.log.Error().Err(err).Msg("discovery requested over http failed")
		router.writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (router *routerStruct) writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		router.log.Error().Err(err).Msg("failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}
