package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/rideflow/internal/config"
	"github.com/example/rideflow/internal/geo"
	"github.com/example/rideflow/internal/models"
	"github.com/example/rideflow/internal/storage"
)

func newTestServer(t *testing.T) (*Server, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	ctx := context.Background()
	if err := store.CreateUser(ctx, &models.User{ID: "u-rider", Name: "Asha", Phone: "9999"}); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateDriver(ctx, &models.Driver{ID: "d1", UserID: "u-d1", Vehicle: models.ClassCar, Available: true, Rating: 4.9}); err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.ServerConfig{OTPLength: 4, CancelRetainFare: true}
	return NewServer(logger, store, geo.NewMemoryTracker(), nil, cfg), store
}

func doJSON(t *testing.T, s *Server, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, req)
	return rr
}

func requestRideHTTP(t *testing.T, s *Server) models.Ride {
	t.Helper()
	rr := doJSON(t, s, "POST", "/api/v1/rides/request", "u-rider", map[string]any{
		"pickup":        map[string]any{"lat": 12.97, "lon": 77.59, "label": "MG Road"},
		"drop":          map[string]any{"lat": 12.93, "lon": 77.62, "label": "Koramangala"},
		"vehicle_class": "CAR",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("request ride: status %d body %s", rr.Code, rr.Body.String())
	}
	var ride models.Ride
	if err := json.Unmarshal(rr.Body.Bytes(), &ride); err != nil {
		t.Fatal(err)
	}
	return ride
}

func TestRideLifecycleOverHTTP(t *testing.T) {
	s, _ := newTestServer(t)
	ride := requestRideHTTP(t, s)
	if ride.Status != models.StatusRequested || len(ride.OTP) != 4 {
		t.Fatalf("ride = %+v", ride)
	}

	// the pool never exposes OTPs
	rr := doJSON(t, s, "GET", "/api/v1/rides/available", "u-d1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("pool: status %d", rr.Code)
	}
	var pool []models.Ride
	if err := json.Unmarshal(rr.Body.Bytes(), &pool); err != nil {
		t.Fatal(err)
	}
	if len(pool) != 1 || pool[0].OTP != "" {
		t.Fatalf("pool = %+v", pool)
	}

	rr = doJSON(t, s, "POST", "/api/v1/rides/"+ride.ID+"/accept", "u-d1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("accept: status %d body %s", rr.Code, rr.Body.String())
	}

	wrong := "0000"
	if ride.OTP == wrong {
		wrong = "1111"
	}
	rr = doJSON(t, s, "POST", "/api/v1/rides/"+ride.ID+"/start", "u-d1", map[string]string{"otp": wrong})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("wrong otp: status %d, want 422", rr.Code)
	}

	rr = doJSON(t, s, "POST", "/api/v1/rides/"+ride.ID+"/start", "u-d1", map[string]string{"otp": ride.OTP})
	if rr.Code != http.StatusOK {
		t.Fatalf("start: status %d body %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, s, "POST", "/api/v1/rides/"+ride.ID+"/complete", "u-d1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("complete: status %d body %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, s, "POST", "/api/v1/rides/"+ride.ID+"/cancel", "u-rider", nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("cancel of completed ride: status %d, want 409", rr.Code)
	}
}

func TestAcceptWithoutDriverProfile(t *testing.T) {
	s, _ := newTestServer(t)
	ride := requestRideHTTP(t, s)
	rr := doJSON(t, s, "POST", "/api/v1/rides/"+ride.ID+"/accept", "u-nobody", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("accept without profile: status %d, want 404", rr.Code)
	}
}

func TestQuoteEndpointMatchesBooking(t *testing.T) {
	s, _ := newTestServer(t)
	rr := doJSON(t, s, "GET", "/api/v1/fares/quote?p_lat=12.97&p_lon=77.59&d_lat=12.93&d_lon=77.62", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("quote: status %d", rr.Code)
	}
	var quote models.FareQuote
	if err := json.Unmarshal(rr.Body.Bytes(), &quote); err != nil {
		t.Fatal(err)
	}
	ride := requestRideHTTP(t, s)
	if quote.CarFare != ride.Fare {
		t.Fatalf("quote %v vs booked %v", quote.CarFare, ride.Fare)
	}
}

func TestQuoteRejectsBadCoordinates(t *testing.T) {
	s, _ := newTestServer(t)
	rr := doJSON(t, s, "GET", "/api/v1/fares/quote?p_lat=123&p_lon=77.59&d_lat=12.93&d_lon=77.62", "", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rr.Code)
	}
	rr = doJSON(t, s, "GET", "/api/v1/fares/quote", "", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rr.Code)
	}
}

func TestPaymentEndpoints(t *testing.T) {
	s, _ := newTestServer(t)
	ride := requestRideHTTP(t, s)
	for _, step := range []string{"accept", "start", "complete"} {
		var body any
		if step == "start" {
			body = map[string]string{"otp": ride.OTP}
		}
		rr := doJSON(t, s, "POST", fmt.Sprintf("/api/v1/rides/%s/%s", ride.ID, step), "u-d1", body)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: status %d body %s", step, rr.Code, rr.Body.String())
		}
	}

	rr := doJSON(t, s, "POST", "/api/v1/payments/rides/"+ride.ID+"/initiate", "u-rider", map[string]string{"method": "UPI"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("initiate: status %d body %s", rr.Code, rr.Body.String())
	}
	var p models.Payment
	if err := json.Unmarshal(rr.Body.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	if p.Amount != ride.Fare || p.Status != models.PaymentPending {
		t.Fatalf("payment = %+v", p)
	}

	rr = doJSON(t, s, "POST", "/api/v1/payments/"+p.TransactionID+"/complete", "u-rider", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("complete payment: status %d body %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, s, "GET", "/api/v1/payments/rides/"+ride.ID, "u-rider", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get by ride: status %d", rr.Code)
	}
}

func TestDriverEndpoints(t *testing.T) {
	s, store := newTestServer(t)

	rr := doJSON(t, s, "GET", "/api/v1/drivers/me", "u-d1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("me: status %d", rr.Code)
	}

	rr = doJSON(t, s, "PUT", "/api/v1/drivers/d1/availability?available=false", "u-d1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("availability: status %d", rr.Code)
	}
	d, _ := store.GetDriver(context.Background(), "d1")
	if d.Available {
		t.Fatal("driver should be unavailable after toggle")
	}

	rr = doJSON(t, s, "GET", "/api/v1/drivers/available", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("available drivers: status %d", rr.Code)
	}
	var drivers []models.Driver
	if err := json.Unmarshal(rr.Body.Bytes(), &drivers); err != nil {
		t.Fatal(err)
	}
	if len(drivers) != 0 {
		t.Fatalf("pool should be empty, got %+v", drivers)
	}

	rr = doJSON(t, s, "POST", "/api/v1/drivers", "u-d2", map[string]string{"vehicle": "BIKE", "plate_number": "KA-01"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("register: status %d body %s", rr.Code, rr.Body.String())
	}
}

func TestHeartbeatUpdatesTrackerAndRegistry(t *testing.T) {
	s, store := newTestServer(t)
	rr := doJSON(t, s, "POST", "/internal/driver/locations", "", map[string]any{
		"driver_id": "d1",
		"loc":       map[string]float64{"lat": 12.95, "lon": 77.6},
	})
	if rr.Code != http.StatusNoContent {
		t.Fatalf("heartbeat: status %d body %s", rr.Code, rr.Body.String())
	}
	hb, ok := s.Tracker.Last("d1")
	if !ok || hb.Loc.Lat != 12.95 {
		t.Fatalf("tracker = %+v, %v", hb, ok)
	}
	d, _ := store.GetDriver(context.Background(), "d1")
	if d.Position.Lat != 12.95 || d.Position.Lon != 77.6 {
		t.Fatalf("registry position = %+v", d.Position)
	}
}
