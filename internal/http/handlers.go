package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/rideflow/internal/apperrors"
	"github.com/example/rideflow/internal/config"
	"github.com/example/rideflow/internal/dispatch"
	"github.com/example/rideflow/internal/geo"
	"github.com/example/rideflow/internal/ingest"
	"github.com/example/rideflow/internal/logging"
	"github.com/example/rideflow/internal/models"
	"github.com/example/rideflow/internal/observability"
	"github.com/example/rideflow/internal/payments"
	"github.com/example/rideflow/internal/rides"
	"github.com/example/rideflow/internal/storage"
)

type Server struct {
	Rides   *rides.Service
	Ledger  *payments.Ledger
	Drivers storage.DriverRegistry
	Tracker geo.Tracker
	Kafka   *ingest.HeartbeatProducer
	WSReg   *dispatch.WSRegistry

	logger *slog.Logger
	mux    *mux.Router
}

// NewServer wires the handler tree around an already-constructed store.
func NewServer(logger *slog.Logger, store storage.Store, tracker geo.Tracker, kafka *ingest.HeartbeatProducer, cfg config.ServerConfig) *Server {
	wsreg := dispatch.NewWSRegistry(logger)
	svc := &rides.Service{
		Store:            store,
		Drivers:          store,
		Users:            store,
		Payments:         &payments.LogHook{Logger: logger},
		Dispatch:         wsreg,
		Logger:           logger,
		OTPLength:        cfg.OTPLength,
		CancelRetainFare: cfg.CancelRetainFare,
	}
	s := &Server{
		Rides:   svc,
		Ledger:  &payments.Ledger{Store: store, Rides: store},
		Drivers: store,
		Tracker: tracker,
		Kafka:   kafka,
		WSReg:   wsreg,
		logger:  logger,
		mux:     mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

// NewServerFromEnv is the env-driven wiring with sensible fallbacks: memory
// store and tracker unless Postgres/Redis are configured.
func NewServerFromEnv() *Server {
	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("config load", "error", err)
	}

	var store storage.Store
	if cfg.PGDSN != "" {
		if ps, err := storage.NewPostgresStore(cfg.PGDSN); err == nil {
			store = ps
		} else {
			logger.Error("postgres unavailable, falling back to memory store", "error", err)
		}
	}
	if store == nil {
		store = storage.NewMemoryStore()
	}

	var tracker geo.Tracker
	if cfg.RedisAddr != "" {
		tracker = geo.NewRedisTracker(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
	} else {
		tracker = geo.NewMemoryTracker()
	}

	var kp *ingest.HeartbeatProducer
	if len(cfg.KafkaBrokers) > 0 {
		kp = ingest.NewHeartbeatProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	}

	s := NewServer(logger, store, tracker, kp, cfg)
	if cfg.StripeCurrency != "" && hasStripeKey() {
		s.Rides.Payments = payments.NewStripeHook(cfg.StripeCurrency)
	}
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/rides/request", s.handleRequestRide).Methods("POST")
	api.HandleFunc("/rides/available", s.handleListAvailableRides).Methods("GET")
	api.HandleFunc("/rides/{ride_id}", s.handleGetRide).Methods("GET")
	api.HandleFunc("/rides/{ride_id}/accept", s.handleAcceptRide).Methods("POST")
	api.HandleFunc("/rides/{ride_id}/start", s.handleStartRide).Methods("POST")
	api.HandleFunc("/rides/{ride_id}/complete", s.handleCompleteRide).Methods("POST")
	api.HandleFunc("/rides/{ride_id}/cancel", s.handleCancelRide).Methods("POST")
	api.HandleFunc("/fares/quote", s.handleQuoteFare).Methods("GET")

	api.HandleFunc("/drivers", s.handleRegisterDriver).Methods("POST")
	api.HandleFunc("/drivers/available", s.handleListAvailableDrivers).Methods("GET")
	api.HandleFunc("/drivers/me", s.handleMyDriverProfile).Methods("GET")
	api.HandleFunc("/drivers/{driver_id}/availability", s.handleSetAvailability).Methods("PUT")
	api.HandleFunc("/drivers/{driver_id}/rides", s.handleRidesForDriver).Methods("GET")

	api.HandleFunc("/payments/rides/{ride_id}/initiate", s.handleInitiatePayment).Methods("POST")
	api.HandleFunc("/payments/rides/{ride_id}", s.handleGetPaymentByRide).Methods("GET")
	api.HandleFunc("/payments/{txn_id}/complete", s.handleCompletePayment).Methods("POST")
	api.HandleFunc("/payments/{txn_id}", s.handleGetPaymentByTransaction).Methods("GET")

	s.mux.HandleFunc("/internal/driver/locations", s.handleDriverLocation).Methods("POST")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/{driver_id}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// callerID is the pre-authenticated identity set by the gateway. The core
// never verifies credentials itself.
func callerID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-User-ID"))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
		s.writeJSON(w, status, map[string]string{"error": "internal error"})
		return
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

type rideRequestBody struct {
	RiderID      string              `json:"rider_id"`
	Pickup       models.Location     `json:"pickup"`
	Drop         models.Location     `json:"drop"`
	VehicleClass models.VehicleClass `json:"vehicle_class"`
}

func validCoord(c models.Coord) bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

func (s *Server) handleRequestRide(w http.ResponseWriter, r *http.Request) {
	var body rideRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	riderID := callerID(r)
	if riderID == "" {
		riderID = body.RiderID
	}
	if riderID == "" {
		http.Error(w, "rider identity required", http.StatusBadRequest)
		return
	}
	if !validCoord(body.Pickup.Coord) || !validCoord(body.Drop.Coord) {
		http.Error(w, "coordinates out of range", http.StatusBadRequest)
		return
	}
	ride, err := s.Rides.RequestRide(r.Context(), rides.RequestInput{
		RiderID:      riderID,
		Pickup:       body.Pickup,
		Drop:         body.Drop,
		VehicleClass: body.VehicleClass,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, ride)
}

func (s *Server) handleListAvailableRides(w http.ResponseWriter, r *http.Request) {
	pool, err := s.Rides.ListAvailableRides(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	// the pool is driver-facing: strip the OTPs
	for _, ride := range pool {
		ride.OTP = ""
	}
	s.writeJSON(w, http.StatusOK, pool)
}

func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	ride, err := s.Rides.GetRide(r.Context(), mux.Vars(r)["ride_id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	if callerID(r) != ride.RiderID {
		ride.OTP = ""
	}
	s.writeJSON(w, http.StatusOK, ride)
}

// callerDriver resolves the authenticated user to their driver profile.
func (s *Server) callerDriver(r *http.Request) (*models.Driver, error) {
	uid := callerID(r)
	if uid == "" {
		return nil, apperrors.PermissionDenied("driver identity required")
	}
	return s.Drivers.GetDriverByUserID(r.Context(), uid)
}

func (s *Server) handleAcceptRide(w http.ResponseWriter, r *http.Request) {
	driver, err := s.callerDriver(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	ride, err := s.Rides.AcceptRide(r.Context(), mux.Vars(r)["ride_id"], driver.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	ride.OTP = ""
	s.writeJSON(w, http.StatusOK, ride)
}

type startRideBody struct {
	OTP string `json:"otp"`
}

func (s *Server) handleStartRide(w http.ResponseWriter, r *http.Request) {
	driver, err := s.callerDriver(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var body startRideBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ride, err := s.Rides.StartRide(r.Context(), mux.Vars(r)["ride_id"], driver.ID, body.OTP)
	if err != nil {
		s.writeError(w, err)
		return
	}
	ride.OTP = ""
	s.writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleCompleteRide(w http.ResponseWriter, r *http.Request) {
	driver, err := s.callerDriver(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	ride, err := s.Rides.CompleteRide(r.Context(), mux.Vars(r)["ride_id"], driver.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	ride.OTP = ""
	s.writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleCancelRide(w http.ResponseWriter, r *http.Request) {
	ride, err := s.Rides.CancelRide(r.Context(), mux.Vars(r)["ride_id"], callerID(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	ride.OTP = ""
	s.writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleQuoteFare(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	parse := func(key string) (float64, bool) {
		v, err := strconv.ParseFloat(q.Get(key), 64)
		return v, err == nil
	}
	pLat, ok1 := parse("p_lat")
	pLon, ok2 := parse("p_lon")
	dLat, ok3 := parse("d_lat")
	dLon, ok4 := parse("d_lon")
	if !ok1 || !ok2 || !ok3 || !ok4 {
		http.Error(w, "p_lat, p_lon, d_lat, d_lon are required", http.StatusBadRequest)
		return
	}
	pickup := models.Coord{Lat: pLat, Lon: pLon}
	drop := models.Coord{Lat: dLat, Lon: dLon}
	if !validCoord(pickup) || !validCoord(drop) {
		http.Error(w, "coordinates out of range", http.StatusBadRequest)
		return
	}
	s.writeJSON(w, http.StatusOK, s.Rides.QuoteFare(pickup, drop))
}

func (s *Server) handleRegisterDriver(w http.ResponseWriter, r *http.Request) {
	var d models.Driver
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if d.UserID == "" {
		d.UserID = callerID(r)
	}
	if d.UserID == "" {
		http.Error(w, "user identity required", http.StatusBadRequest)
		return
	}
	if d.ID == "" {
		d.ID = newID()
	}
	if d.Rating == 0 {
		d.Rating = 5.0
	}
	// a newly registered driver joins the pool available
	d.Available = true
	if err := s.Drivers.CreateDriver(r.Context(), &d); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, d)
}

func (s *Server) handleListAvailableDrivers(w http.ResponseWriter, r *http.Request) {
	drivers, err := s.Drivers.ListAvailableDrivers(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	observability.DriversAvailable.Set(float64(len(drivers)))
	s.writeJSON(w, http.StatusOK, drivers)
}

func (s *Server) handleMyDriverProfile(w http.ResponseWriter, r *http.Request) {
	driver, err := s.callerDriver(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, driver)
}

func (s *Server) handleSetAvailability(w http.ResponseWriter, r *http.Request) {
	driverID := mux.Vars(r)["driver_id"]
	available := strings.EqualFold(r.URL.Query().Get("available"), "true")
	if err := s.Drivers.SetDriverAvailability(r.Context(), driverID, available); err != nil {
		s.writeError(w, err)
		return
	}
	driver, err := s.Drivers.GetDriver(r.Context(), driverID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, driver)
}

func (s *Server) handleRidesForDriver(w http.ResponseWriter, r *http.Request) {
	history, err := s.Rides.GetRidesForDriver(r.Context(), mux.Vars(r)["driver_id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	for _, ride := range history {
		ride.OTP = ""
	}
	s.writeJSON(w, http.StatusOK, history)
}

type initiatePaymentBody struct {
	Method string `json:"method"`
}

func (s *Server) handleInitiatePayment(w http.ResponseWriter, r *http.Request) {
	var body initiatePaymentBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p, err := s.Ledger.Initiate(r.Context(), mux.Vars(r)["ride_id"], body.Method)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleCompletePayment(w http.ResponseWriter, r *http.Request) {
	p, err := s.Ledger.Complete(r.Context(), mux.Vars(r)["txn_id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleGetPaymentByRide(w http.ResponseWriter, r *http.Request) {
	p, err := s.Ledger.ByRide(r.Context(), mux.Vars(r)["ride_id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleGetPaymentByTransaction(w http.ResponseWriter, r *http.Request) {
	p, err := s.Ledger.ByTransaction(r.Context(), mux.Vars(r)["txn_id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDriverLocation(w http.ResponseWriter, r *http.Request) {
	var hb models.Heartbeat
	if err := json.NewDecoder(r.Body).Decode(&hb); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if hb.Recorded.IsZero() {
		hb.Recorded = time.Now()
	}
	// publish to kafka if configured; the consumer owns the shared tracker
	if s.Kafka != nil {
		_ = s.Kafka.Publish(hb)
	}
	s.Tracker.Record(hb)
	if err := s.Drivers.UpdateDriverPosition(r.Context(), hb.DriverID, hb.Loc, hb.Recorded); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["driver_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}
	s.WSReg.Add(id, conn)
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }

func hasStripeKey() bool {
	return strings.TrimSpace(os.Getenv("STRIPE_API_KEY")) != ""
}
