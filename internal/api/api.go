// Package api serves the REST query surface and the live WebSocket stream.
// It is a read-only adapter over the storage engine except for the flight
// delete endpoint.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/saviobatista/telemetry-server/internal/hub"
	"github.com/saviobatista/telemetry-server/internal/store"
	"github.com/saviobatista/telemetry-server/internal/tracker"
)

const writeTimeout = 10 * time.Second

// Server holds the handler dependencies.
type Server struct {
	store    *store.Store
	hub      *hub.Hub
	tracker  *tracker.Tracker
	logger   logrus.FieldLogger
	upgrader websocket.Upgrader
}

// New creates an API server.
func New(st *store.Store, h *hub.Hub, t *tracker.Tracker, logger logrus.FieldLogger) *Server {
	return &Server{
		store:   st,
		hub:     h,
		tracker: t,
		logger:  logger,
		upgrader: websocket.Upgrader{
			// The control panel is served from arbitrary origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(corsMiddleware)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ws/stream", s.handleStream).Methods(http.MethodGet)
	r.HandleFunc("/api/flights", s.handleListFlights).Methods(http.MethodGet)
	r.HandleFunc("/api/flights/{id}", s.handleGetFlight).Methods(http.MethodGet)
	r.HandleFunc("/api/flights/{id}", s.handleDeleteFlight).Methods(http.MethodDelete)
	r.HandleFunc("/api/flights/{id}/data", s.handleGetTelemetry).Methods(http.MethodGet)

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		s.logger.WithError(err).Warn("Failed to write health response")
	}
}

func (s *Server) handleListFlights(w http.ResponseWriter, _ *http.Request) {
	flights, err := s.store.ListFlights()
	if err != nil {
		s.logger.WithError(err).Error("Failed to list flights")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, flights)
}

func (s *Server) handleGetFlight(w http.ResponseWriter, r *http.Request) {
	flightID := mux.Vars(r)["id"]

	meta, err := s.store.GetFlight(flightID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Flight not found", http.StatusNotFound)
			return
		}
		s.logger.WithError(err).WithField("flight_id", flightID).Error("Failed to get flight")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, meta)
}

func (s *Server) handleGetTelemetry(w http.ResponseWriter, r *http.Request) {
	flightID := mux.Vars(r)["id"]

	packets, err := s.store.GetTelemetry(flightID)
	if err != nil {
		s.logger.WithError(err).WithField("flight_id", flightID).Error("Failed to get telemetry")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, packets)
}

func (s *Server) handleDeleteFlight(w http.ResponseWriter, r *http.Request) {
	flightID := mux.Vars(r)["id"]

	if err := s.store.DeleteFlight(flightID); err != nil {
		s.logger.WithError(err).WithField("flight_id", flightID).Error("Failed to delete flight")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStream upgrades to WebSocket, replays the active flight's stored
// packets, then streams live packets until either side disconnects.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	sub := s.hub.Subscribe()
	defer s.hub.Unsubscribe(sub)

	// A client that connects mid-flight gets the flight so far.
	if flightID := s.tracker.CurrentFlightID(); flightID != "" {
		packets, err := s.store.GetTelemetry(flightID)
		if err != nil {
			s.logger.WithError(err).WithField("flight_id", flightID).Error("Failed to load replay packets")
		}
		for i := range packets {
			if err := s.writePacket(conn, &packets[i]); err != nil {
				return
			}
		}
	}

	// Reader goroutine: its only job is to notice the client going away and
	// unsubscribe, which closes the delivery channel below.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.hub.Unsubscribe(sub)
				return
			}
		}
	}()

	for pkt := range sub.Packets() {
		if err := s.writePacket(conn, &pkt); err != nil {
			return
		}
	}
}

func (s *Server) writePacket(conn *websocket.Conn, pkt interface{}) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(pkt)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Warn("Failed to encode response")
	}
}
