package server

import (
	"net/http"

	"github.com/NYTimes/gziphandler"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// Controller registers a set of routes on the shared router.
type Controller interface {
	Key() string
	Register(r *mux.Router)
}

type HTTPServer struct {
	Controllers []Controller
	Middlewares []mux.MiddlewareFunc

	router *mux.Router
}

func NewHTTPServer(controllers []Controller, middlewares ...mux.MiddlewareFunc) *HTTPServer {
	return &HTTPServer{Controllers: controllers, Middlewares: middlewares}
}

func (s *HTTPServer) Router() *mux.Router {
	if s.router != nil {
		return s.router
	}
	r := mux.NewRouter()
	r.Use(s.Middlewares...)
	for _, controller := range s.Controllers {
		controller.Register(r)
	}
	s.router = r
	return r
}

func (s *HTTPServer) Handler() http.Handler {
	return cors.AllowAll().Handler(gziphandler.GzipHandler(s.Router()))
}

func (s *HTTPServer) Start(socketAddress string) error {
	return http.ListenAndServe(socketAddress, s.Handler())
}
