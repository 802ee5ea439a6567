package http

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/tomek7667/stressd/internal/stress"
	"github.com/tomek7667/stressd/internal/sysfs"
)

type Server struct {
	port        int
	coordinator *stress.Coordinator
	monitor     *ResourceMonitor
	diskPath    string
	r           *chi.Mux
}

// New builds the router. diskPath overrides the default directory disk
// stress files are written to; empty keeps the per-request default.
func New(port int, coordinator *stress.Coordinator, fs *sysfs.FS, diskPath string) *Server {
	s := &Server{
		r:           chi.NewRouter(),
		port:        port,
		coordinator: coordinator,
		monitor:     NewResourceMonitor(fs),
		diskPath:    diskPath,
	}
	s.r.Use(middleware.RequestID)
	s.r.Use(middleware.RealIP)
	s.r.Use(newRequestLogger("/api/stress/status", "/api/cpu/freq/status", "/api/resources"))
	s.r.Use(middleware.Recoverer)
	s.r.Use(middleware.Timeout(60 * time.Second))
	s.r.Use(allowCrossOrigin)

	s.addStressRoutes()
	s.addFreqRoutes()
	s.addResourcesRoute()
	return s
}

// Serve runs until SIGINT/SIGTERM or a listener failure, then shuts the
// listener down and closes the coordinator so no stress artifacts outlive
// the process.
func (s *Server) Serve() error {
	stopMonitor := make(chan struct{})
	s.monitor.Start(stopMonitor)

	addr := fmt.Sprintf(":%d", s.port)
	srv := &http.Server{Addr: addr, Handler: s.r}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on '%s'", addr)
		errCh <- srv.ListenAndServe()
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	var serveErr error
	select {
	case serveErr = <-errCh:
	case sig := <-c:
		log.Printf("received %v, shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		srv.Shutdown(ctx)
		cancel()
	}

	close(stopMonitor)
	s.coordinator.Close()
	return serveErr
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.r
}
