package dispatch

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/example/rideflow/internal/models"
)

// RideAnnouncement is what connected drivers see when a new ride enters the
// REQUESTED pool. The OTP never leaves the rider side, so it is not included.
type RideAnnouncement struct {
	RideID       string              `json:"ride_id"`
	Pickup       models.Location     `json:"pickup"`
	Drop         models.Location     `json:"drop"`
	VehicleClass models.VehicleClass `json:"vehicle_class"`
	DistanceKm   float64             `json:"distance_km"`
	Fare         float64             `json:"fare"`
}

// WSSession is one connected driver app.
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) send(a RideAnnouncement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(a)
}

// WSRegistry holds driver sessions and broadcasts new pool entries to all of
// them. Delivery is best effort: a dead session is dropped, never retried.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*WSSession
	logger   *slog.Logger
}

func NewWSRegistry(logger *slog.Logger) *WSRegistry {
	return &WSRegistry{sessions: make(map[string]*WSSession), logger: logger}
}

func (r *WSRegistry) Add(driverID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[driverID] = &WSSession{conn: conn}
}

func (r *WSRegistry) Remove(driverID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, driverID)
}

// AnnounceRide pushes a new REQUESTED ride to every connected driver.
func (r *WSRegistry) AnnounceRide(ride *models.Ride) error {
	a := RideAnnouncement{
		RideID:       ride.ID,
		Pickup:       ride.Pickup,
		Drop:         ride.Drop,
		VehicleClass: ride.VehicleClass,
		DistanceKm:   ride.DistanceKm,
		Fare:         ride.Fare,
	}
	r.mu.RLock()
	sessions := make(map[string]*WSSession, len(r.sessions))
	for id, s := range r.sessions {
		sessions[id] = s
	}
	r.mu.RUnlock()

	for id, s := range sessions {
		if err := s.send(a); err != nil {
			if r.logger != nil {
				r.logger.Warn("ws announce failed, dropping session", "driver_id", id, "error", err)
			}
			r.Remove(id)
		}
	}
	return nil
}
