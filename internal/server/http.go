package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/magefree/tabletop-server-go/internal/catalog"
	"github.com/magefree/tabletop-server-go/internal/coordinator"
	"github.com/magefree/tabletop-server-go/internal/game"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// Sessions is the coordinator surface the HTTP API drives.
type Sessions interface {
	CreateLobby(ctx context.Context, name, host string) (game.Session, error)
	Get(ctx context.Context, id string) (game.Session, error)
	ListLobbies(ctx context.Context) ([]game.Summary, error)
	ListRecent(ctx context.Context, limit int) ([]game.Summary, error)
	Execute(ctx context.Context, id string, cmd coordinator.Command) (coordinator.Result, error)
	Ping(ctx context.Context) error
}

// API serves the REST surface plus the WebSocket endpoint.
type API struct {
	sessions Sessions
	decks    catalog.Catalog
	ws       http.Handler
	logger   *zap.Logger
}

// NewAPI wires handlers. decks and ws may be nil, in which case the catalog
// routes and /ws are not served.
func NewAPI(sessions Sessions, decks catalog.Catalog, ws http.Handler, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{sessions: sessions, decks: decks, ws: ws, logger: logger}
}

// Handler returns the routed, logged and panic-safe handler.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/lobbies", a.createLobby)
	mux.HandleFunc("GET /api/lobbies", a.listLobbies)
	mux.HandleFunc("GET /api/sessions/recent", a.listRecent)
	mux.HandleFunc("GET /api/sessions/{id}", a.getSession)
	mux.HandleFunc("POST /api/sessions/{id}/commands/{command}", a.execute)
	mux.HandleFunc("DELETE /api/sessions/{id}", a.deleteSession)
	mux.HandleFunc("GET /health", a.health)
	if a.decks != nil {
		mux.HandleFunc("GET /api/decks", a.listDecks)
		mux.HandleFunc("GET /api/decks/{id}", a.getDeck)
		mux.HandleFunc("GET /api/cards/{code}", a.getCard)
	}
	if a.ws != nil {
		mux.Handle("GET /ws", a.ws)
	}
	return a.recoverPanics(a.logRequests(mux))
}

type createLobbyRequest struct {
	Name string `json:"name"`
	Host string `json:"host"`
}

type commandResponse struct {
	Session  *game.Session `json:"session,omitempty"`
	Checksum string        `json:"checksum,omitempty"`
	Deleted  bool          `json:"deleted"`
}

func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return game.InvalidArgument("decode", "malformed request body: %v", err)
	}
	return nil
}

func (a *API) createLobby(w http.ResponseWriter, r *http.Request) {
	var req createLobbyRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	s, err := a.sessions.CreateLobby(r.Context(), req.Name, req.Host)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/sessions/"+s.ID)
	writeJSON(w, http.StatusCreated, s)
}

func (a *API) listLobbies(w http.ResponseWriter, r *http.Request) {
	lobbies, err := a.sessions.ListLobbies(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lobbies)
}

func (a *API) listRecent(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			a.writeError(w, r, game.InvalidArgument("ListRecent", "limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	recent, err := a.sessions.ListRecent(r.Context(), limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recent)
}

func (a *API) getSession(w http.ResponseWriter, r *http.Request) {
	s, err := a.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if sum, err := s.ComputeChecksum(); err == nil {
		w.Header().Set("ETag", strconv.Quote(sum.Hash))
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *API) execute(w http.ResponseWriter, r *http.Request) {
	var args json.RawMessage
	if err := decodeBody(r, &args); err != nil {
		a.writeError(w, r, err)
		return
	}
	cmd, err := coordinator.ParseCommand(r.PathValue("command"), args)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.run(w, r, cmd)
}

func (a *API) deleteSession(w http.ResponseWriter, r *http.Request) {
	a.run(w, r, coordinator.DeleteLobby(r.URL.Query().Get("username")))
}

func (a *API) run(w http.ResponseWriter, r *http.Request, cmd coordinator.Command) {
	res, err := a.sessions.Execute(r.Context(), r.PathValue("id"), cmd)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if res.Deleted {
		writeJSON(w, http.StatusOK, commandResponse{Deleted: true})
		return
	}
	resp := commandResponse{Session: &res.Session}
	if sum, err := res.Session.ComputeChecksum(); err == nil {
		resp.Checksum = sum.Hash
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.sessions.Ping(ctx); err != nil {
		a.writeError(w, r, game.Unavailable("Health", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Hijack hands the connection to the WebSocket upgrader.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (a *API) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				a.logger.Error("panic in http handler",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path),
					zap.Stack("stack"),
				)
				writeJSON(w, http.StatusInternalServerError, errorBody{Error: game.DetailOf(nil)})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
