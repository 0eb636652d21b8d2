package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/smcopilot/copilot-core/internal/hub"
	"github.com/smcopilot/copilot-core/internal/locks"
	"github.com/smcopilot/copilot-core/internal/logbook"
	"github.com/smcopilot/copilot-core/internal/pilot"
	"github.com/smcopilot/copilot-core/internal/session"
)

// upgrader accepts any origin: the server binds to loopback, so the
// browser tab talking to it is always local.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

func (s *Server) account() string {
	return s.cfg.Account.ID
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"account": s.account(),
		"clients": s.hub.ClientCount(s.account()),
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err.Error())
		return
	}

	client := hub.NewClient(s.hub, conn, s.account())
	s.hub.Register(client)
	client.Start()
	// No history replay. The tab pulls GET /api/state for a fresh
	// snapshot and resynchronizes from there.
}

// handleState returns the full snapshot a tab pulls on (re)connect: lock
// flags, pause state, the latest prices, and scheduler status.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Get(s.account())

	flags := make(map[string]bool)
	for category, held := range s.locks.Flags(s.account()) {
		flags[string(category)] = held
	}

	s.respond(w, http.StatusOK, map[string]any{
		"account": s.account(),
		"paused":  sess.Paused(),
		"locks":   flags,
		"prices":  sess.PriceSnapshot(),
		"tasks":   s.scheduler.Status(),
	})
}

func (s *Server) handleLogbookQuery(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"entries": s.logbook.Query(s.account(), filter),
	})
}

func (s *Server) handleLogbookDelete(w http.ResponseWriter, r *http.Request) {
	s.logbook.DeleteAll(s.account())
	s.hub.Send(s.account(), hub.EventLogbookCleared, nil)
	s.respond(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleLogbookExport(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = logbook.FormatJSON
	}

	entries := s.logbook.Query(s.account(), filter)
	out, contentType, err := logbook.Export(entries, format)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=logbook-%s.%s", s.account(), format))
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

func (s *Server) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, s.sessions.Get(s.account()).Settings())
}

func (s *Server) handleSettingsPut(w http.ResponseWriter, r *http.Request) {
	var settings session.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid settings body: "+err.Error())
		return
	}
	if settings.Automations == nil {
		settings.Automations = make(map[string]bool)
	}

	if err := s.sessions.Get(s.account()).UpdateSettings(settings); err != nil {
		s.logger.Error("settings persist failed", "error", err.Error())
		s.respondError(w, http.StatusInternalServerError, "failed to persist settings")
		return
	}

	s.hub.Send(s.account(), hub.EventSettingsUpdate, settings)
	s.respond(w, http.StatusOK, settings)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Paused bool `json:"paused"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid pause body: "+err.Error())
		return
	}

	if s.sessions.Get(s.account()).SetPaused(body.Paused) {
		s.hub.Send(s.account(), hub.EventPauseState, map[string]bool{"paused": body.Paused})
	}
	s.respond(w, http.StatusOK, map[string]bool{"paused": body.Paused})
}

func (s *Server) handleActionRepair(w http.ResponseWriter, r *http.Request) {
	s.runManualAction(w, r, pilot.NewRepairPilot())
}

func (s *Server) handleActionDepart(w http.ResponseWriter, r *http.Request) {
	s.runManualAction(w, r, pilot.NewDepartPilot())
}

func (s *Server) handleActionBulkBuy(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FuelTonnes float64 `json:"fuel_tonnes"`
		CO2Tonnes  float64 `json:"co2_tonnes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid bulk buy body: "+err.Error())
		return
	}

	s.runManualAction(w, r, &pilot.BulkBuyPilot{
		FuelTonnes: body.FuelTonnes,
		CO2Tonnes:  body.CO2Tonnes,
	})
}

// runManualAction executes a pilot on the user's behalf. A lock conflict
// maps to 409; every other result is reflected in the logbook and pushed
// over the hub, so the HTTP response only acknowledges the attempt.
func (s *Server) runManualAction(w http.ResponseWriter, r *http.Request, p pilot.Pilot) {
	err := s.runner.ExecuteManual(r.Context(), p)
	switch {
	case errors.Is(err, locks.ErrLockHeld):
		s.respondError(w, http.StatusConflict, "another operation holds the "+string(p.Category())+" lock")
	case err != nil:
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.respond(w, http.StatusOK, map[string]string{"status": "completed", "task": p.Name()})
	}
}

func parseFilter(r *http.Request) (logbook.Filter, error) {
	q := r.URL.Query()
	filter := logbook.Filter{
		Status: q.Get("status"),
		Task:   q.Get("task"),
		Search: q.Get("search"),
	}

	if v := q.Get("since"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, fmt.Errorf("invalid since timestamp: %v", err)
		}
		filter.Since = ts
	}
	if v := q.Get("until"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, fmt.Errorf("invalid until timestamp: %v", err)
		}
		filter.Until = ts
	}
	// range is a rolling window ("24h", "7d" style durations) that wins
	// over an explicit since.
	if v := q.Get("range"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return filter, fmt.Errorf("invalid range duration %q", v)
		}
		filter.Since = time.Now().UTC().Add(-d)
	}
	return filter, nil
}

func (s *Server) respond(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("response encoding failed", "error", err.Error())
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respond(w, status, map[string]string{"error": message})
}
