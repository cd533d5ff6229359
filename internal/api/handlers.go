// Package api serves the HTTP side-channel: health, stats and room
// creation and inspection. It never mutates room state beyond creating rooms.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/gungorefecetin/web-code-editor/internal/db"
	"github.com/gungorefecetin/web-code-editor/internal/ratelimit"
	"github.com/gungorefecetin/web-code-editor/internal/room"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 500
	maxBodyBytes         = 64 << 10
)

// ConnCounter reports the number of open realtime connections.
type ConnCounter interface {
	Count() int
}

// ActivityStore reads the room activity journal.
type ActivityStore interface {
	Recent(ctx context.Context, roomID string, limit int) ([]db.Entry, error)
	Stats(ctx context.Context) (db.Stats, error)
}

// Options configures an API.
type Options struct {
	// FrontendURL is the base of generated join URLs.
	FrontendURL string
	// Activity is nil when the journal is disabled.
	Activity ActivityStore
	// CreateLimiter throttles room creation per client IP; nil disables it.
	CreateLimiter *ratelimit.ClientLimiters
	// TrustedProxies lists addresses or CIDR prefixes whose X-Forwarded-For
	// header is believed. Requests from anywhere else are keyed on RemoteAddr.
	TrustedProxies []string
}

type API struct {
	registry    *room.Registry
	conns       ConnCounter
	activity    ActivityStore
	limiter     *ratelimit.ClientLimiters
	proxies     []netip.Prefix
	frontendURL string
	startedAt   time.Time
	now         func() time.Time
	logger      *slog.Logger
}

func New(registry *room.Registry, conns ConnCounter, logger *slog.Logger, opts Options) *API {
	return &API{
		registry:    registry,
		conns:       conns,
		activity:    opts.Activity,
		limiter:     opts.CreateLimiter,
		proxies:     parseProxies(opts.TrustedProxies, logger),
		frontendURL: strings.TrimRight(opts.FrontendURL, "/"),
		startedAt:   time.Now(),
		now:         time.Now,
		logger:      logger,
	}
}

// Routes registers the HTTP endpoints on mux.
func (a *API) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", a.HealthHandler)
	mux.HandleFunc("GET /api/stats", a.StatsHandler)
	mux.HandleFunc("GET /api/rooms", a.ListRoomsHandler)
	mux.HandleFunc("POST /api/rooms", a.CreateRoomHandler)
	mux.HandleFunc("GET /api/rooms/{id}", a.GetRoomHandler)
	mux.HandleFunc("GET /api/rooms/{id}/activity", a.ActivityHandler)
}

func (a *API) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.logger.Warn("encoding JSON response failed", "error", err)
	}
}

func (a *API) errorResponse(w http.ResponseWriter, status int, message string) {
	a.jsonResponse(w, status, map[string]string{"error": message})
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	now := a.now()
	a.jsonResponse(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    now.Sub(a.startedAt).Seconds(),
		"timestamp": now.UTC().Format(time.RFC3339),
	})
}

func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	rooms := a.registry.Rooms()
	participants := 0
	for _, rm := range rooms {
		participants += rm.ParticipantCount()
	}

	stats := map[string]any{
		"activeRooms":        len(rooms),
		"activeParticipants": participants,
		"openConnections":    a.conns.Count(),
		"timestamp":          a.now().UTC().Format(time.RFC3339),
	}

	if a.activity != nil {
		journal, err := a.activity.Stats(r.Context())
		if err != nil {
			a.logger.Warn("reading journal stats failed", "error", err)
		} else {
			stats["journal"] = journal
		}
	}

	a.jsonResponse(w, http.StatusOK, stats)
}

// Room handlers

type CreateRoomRequest struct {
	Name string `json:"name"`
}

type CreateRoomResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	JoinURL string `json:"joinUrl"`
}

type RoomSummary struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	CreatedAt        time.Time `json:"createdAt"`
	ParticipantCount int       `json:"participantCount"`
}

type RoomDetail struct {
	RoomSummary
	Participants []room.ParticipantSummary `json:"participants"`
}

func summarize(r *room.Room) RoomSummary {
	return RoomSummary{
		ID:               r.ID,
		Name:             r.Name,
		CreatedAt:        r.CreatedAt.UTC(),
		ParticipantCount: r.ParticipantCount(),
	}
}

func (a *API) ListRoomsHandler(w http.ResponseWriter, r *http.Request) {
	rooms := a.registry.Rooms()

	response := make([]RoomSummary, len(rooms))
	for i, rm := range rooms {
		response[i] = summarize(rm)
	}

	a.jsonResponse(w, http.StatusOK, map[string]any{
		"rooms": response,
		"count": len(response),
	})
}

func (a *API) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	ip := a.clientIP(r)
	if a.limiter != nil && !a.limiter.Allow(ip) {
		a.logger.Warn("room creation rate limited", "client_ip", ip)
		w.Header().Set("Retry-After", "60")
		a.errorResponse(w, http.StatusTooManyRequests, "Too many rooms created, try again later")
		return
	}

	var req CreateRoomRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		a.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		a.errorResponse(w, http.StatusBadRequest, "Room name is required")
		return
	}

	rm := a.registry.CreateRoom(name)
	a.jsonResponse(w, http.StatusCreated, CreateRoomResponse{
		ID:      rm.ID,
		Name:    rm.Name,
		JoinURL: a.frontendURL + "/room/" + rm.ID,
	})
}

func (a *API) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	rm, ok := a.registry.Lookup(r.PathValue("id"))
	if !ok {
		a.errorResponse(w, http.StatusNotFound, "Room not found")
		return
	}

	snap := rm.Snapshot()
	participants := snap.Participants
	if participants == nil {
		participants = []room.ParticipantSummary{}
	}
	detail := RoomDetail{RoomSummary: summarize(rm), Participants: participants}
	detail.ParticipantCount = len(participants)

	a.jsonResponse(w, http.StatusOK, detail)
}

func (a *API) ActivityHandler(w http.ResponseWriter, r *http.Request) {
	if a.activity == nil {
		a.errorResponse(w, http.StatusServiceUnavailable, "Activity journal is disabled")
		return
	}

	limit := defaultActivityLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			a.errorResponse(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxActivityLimit)
	}

	roomID := r.PathValue("id")
	entries, err := a.activity.Recent(r.Context(), roomID, limit)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		a.logger.Error("reading room activity failed", "room_id", roomID, "error", err)
		a.errorResponse(w, http.StatusInternalServerError, "Failed to read activity")
		return
	}

	a.jsonResponse(w, http.StatusOK, map[string]any{
		"roomId":  roomID,
		"entries": entries,
	})
}

// clientIP returns the address used to key per-client limits. The
// X-Forwarded-For chain is only consulted when the direct peer is a trusted
// proxy, and then the rightmost hop that is not itself a proxy wins.
func (a *API) clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if !a.trusted(host) {
		return host
	}

	fwd := r.Header.Get("X-Forwarded-For")
	if fwd == "" {
		return host
	}
	hops := strings.Split(fwd, ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !a.trusted(hop) {
			return hop
		}
		host = hop
	}
	return host
}

func (a *API) trusted(host string) bool {
	if len(a.proxies) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range a.proxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func parseProxies(entries []string, logger *slog.Logger) []netip.Prefix {
	var out []netip.Prefix
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if p, err := netip.ParsePrefix(e); err == nil {
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			logger.Warn("ignoring invalid trusted proxy", "entry", e)
			continue
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out
}
