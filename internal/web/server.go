// Package web exposes a canvas over HTTP and a websocket event stream so a
// browser canvas can drive completions.
package web

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/codefionn/canvaschat/internal/consts"
	"github.com/codefionn/canvaschat/internal/logger"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

const (
	// DefaultAddr is used when no listen address is configured.
	DefaultAddr     = "127.0.0.1:8787"
	authTokenLength = 32
)

// Server represents the web server
type Server struct {
	addr       string
	authToken  string
	httpServer *http.Server
	listener   net.Listener
	router     *httprouter.Router
	broker     *MessageBroker
	hub        *Hub
	upgrader   websocket.Upgrader
}

// NewServer creates a server for c listening on addr.
func NewServer(addr string, c Canvas) (*Server, error) {
	if addr == "" {
		addr = DefaultAddr
	}
	token, err := generateAuthToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate auth token: %w", err)
	}

	hub := NewHub()
	s := &Server{
		addr:      addr,
		authToken: token,
		router:    httprouter.New(),
		broker:    NewMessageBroker(c, hub),
		hub:       hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // local tool, the token guards access
			},
		},
	}
	s.setupRoutes()
	return s, nil
}

// Broker returns the broker; its Observe method reports completion states.
func (s *Server) Broker() *MessageBroker { return s.broker }

// SetRunner binds the orchestrator.
func (s *Server) SetRunner(r Runner) { s.broker.SetRunner(r) }

// Token returns the access token clients must present.
func (s *Server) Token() string { return s.authToken }

// Handler returns the authenticated HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.authenticate(s.router)
}

func (s *Server) setupRoutes() {
	s.router.GET("/api/canvas", s.handleCanvas)
	s.router.GET("/api/nodes/:id", s.handleNode)
	s.router.POST("/api/nodes/:id/complete", s.handleComplete)
	s.router.POST("/api/nodes/:id/cancel", s.handleCancel)
	s.router.GET("/ws", s.handleWebSocket)
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.addr = ln.Addr().String()

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.hub.Run()
	s.broker.Start()

	go func() {
		logger.Info("web server listening on %s", s.addr)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error: %v", err)
		}
	}()
	return nil
}

// Stop shuts the server down.
func (s *Server) Stop() error {
	logger.Info("stopping web server")
	s.broker.Stop()
	s.hub.Stop()
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), consts.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

// Addr returns the listen address, resolved once started.
func (s *Server) Addr() string { return s.addr }

// GetURL returns the server URL with auth token
func (s *Server) GetURL() string {
	return fmt.Sprintf("http://%s/api/canvas?token=%s", s.addr, s.authToken)
}

// authenticate accepts the token as a bearer header or a token query
// parameter (browsers cannot set headers on websocket requests).
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
			token = bearer
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
			logger.Warn("rejected %s %s: invalid auth token", r.Method, r.URL.Path)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleCanvas(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, s.broker.Snapshot())
}

func (s *Server) handleNode(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	node, ok := s.broker.canvas.Node(ps.ByName("id"))
	if !ok {
		http.Error(w, "Node not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, NewNodeInfo(node))
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	err := s.broker.Complete(id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"node_id": id})
	case errors.Is(err, ErrUnknownNode):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrAlreadyRunning):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	}
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	writeJSON(w, http.StatusOK, map[string]interface{}{"node_id": id, "cancelled": s.broker.Cancel(id)})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("failed to upgrade websocket: %v", err)
		return
	}

	client := NewClient(s.hub, conn, s.broker)
	client.enqueue(s.broker.Snapshot())
	s.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to encode response: %v", err)
	}
}

// generateAuthToken generates a random auth token
func generateAuthToken() (string, error) {
	bytes := make([]byte, authTokenLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
