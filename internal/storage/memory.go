package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/rideflow/internal/apperrors"
	"github.com/example/rideflow/internal/models"
)

// MemoryStore keeps everything behind one mutex. That makes each transition a
// trivially atomic unit, which is exactly the guarantee the engine needs; a
// production deployment swaps in PostgresStore.
type MemoryStore struct {
	mu       sync.RWMutex
	rides    map[string]*models.Ride
	drivers  map[string]*models.Driver
	users    map[string]*models.User
	payments map[string]*models.Payment // keyed by ride ID
	byTxn    map[string]string          // transaction ID -> ride ID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rides:    make(map[string]*models.Ride),
		drivers:  make(map[string]*models.Driver),
		users:    make(map[string]*models.User),
		payments: make(map[string]*models.Payment),
		byTxn:    make(map[string]string),
	}
}

func cloneRide(r *models.Ride) *models.Ride {
	c := *r
	return &c
}

func cloneDriver(d *models.Driver) *models.Driver {
	c := *d
	return &c
}

func (m *MemoryStore) CreateRide(ctx context.Context, r *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rides[r.ID] = cloneRide(r)
	return nil
}

func (m *MemoryStore) GetRide(ctx context.Context, id string) (*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, apperrors.NotFound("Ride", "id", id)
	}
	return cloneRide(r), nil
}

func (m *MemoryStore) ListRidesByStatus(ctx context.Context, status models.RideStatus) ([]*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Ride, 0)
	for _, r := range m.rides {
		if r.Status == status {
			out = append(out, cloneRide(r))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (m *MemoryStore) ListRidesByDriver(ctx context.Context, driverID string) ([]*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Ride, 0)
	for _, r := range m.rides {
		if r.DriverID == driverID && driverID != "" {
			out = append(out, cloneRide(r))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(rides []*models.Ride) {
	sort.Slice(rides, func(i, j int) bool {
		if rides[i].CreatedAt.Equal(rides[j].CreatedAt) {
			return rides[i].ID > rides[j].ID
		}
		return rides[i].CreatedAt.After(rides[j].CreatedAt)
	})
}

func (m *MemoryStore) AcceptRide(ctx context.Context, rideID, driverID string) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok {
		return nil, apperrors.NotFound("Ride", "id", rideID)
	}
	d, ok := m.drivers[driverID]
	if !ok {
		return nil, apperrors.NotFound("Driver", "id", driverID)
	}
	if r.Status != models.StatusRequested {
		return nil, apperrors.InvalidState("accept", string(r.Status))
	}
	if !d.Available {
		return nil, apperrors.PermissionDenied("driver is not marked as available")
	}
	r.DriverID = driverID
	r.Status = models.StatusAccepted
	d.Available = false
	return cloneRide(r), nil
}

func (m *MemoryStore) StartRide(ctx context.Context, rideID string, startedAt time.Time) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok {
		return nil, apperrors.NotFound("Ride", "id", rideID)
	}
	if r.Status != models.StatusAccepted {
		return nil, apperrors.InvalidState("start", string(r.Status))
	}
	at := startedAt
	r.Status = models.StatusStarted
	r.StartedAt = &at
	r.OTPConsumedAt = &at
	return cloneRide(r), nil
}

func (m *MemoryStore) CloseRide(ctx context.Context, rideID string, status models.RideStatus, endedAt time.Time, zeroFare bool) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok {
		return nil, apperrors.NotFound("Ride", "id", rideID)
	}
	switch status {
	case models.StatusCompleted:
		if r.Status != models.StatusStarted {
			return nil, apperrors.InvalidState("complete", string(r.Status))
		}
	case models.StatusCancelled:
		if r.Status.Terminal() {
			return nil, apperrors.InvalidState("cancel", string(r.Status))
		}
	default:
		return nil, apperrors.InvalidState("close", string(status))
	}
	at := endedAt
	r.Status = status
	r.EndedAt = &at
	if zeroFare {
		r.Fare = 0
	}
	if r.DriverID != "" {
		if d, ok := m.drivers[r.DriverID]; ok {
			d.Available = true
		}
	}
	return cloneRide(r), nil
}

func (m *MemoryStore) CreateDriver(ctx context.Context, d *models.Driver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[d.ID] = cloneDriver(d)
	return nil
}

func (m *MemoryStore) GetDriver(ctx context.Context, id string) (*models.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drivers[id]
	if !ok {
		return nil, apperrors.NotFound("Driver", "id", id)
	}
	return cloneDriver(d), nil
}

func (m *MemoryStore) GetDriverByUserID(ctx context.Context, userID string) (*models.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.drivers {
		if d.UserID == userID {
			return cloneDriver(d), nil
		}
	}
	return nil, apperrors.NotFound("Driver", "userId", userID)
}

func (m *MemoryStore) ListAvailableDrivers(ctx context.Context) ([]*models.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Driver, 0)
	for _, d := range m.drivers {
		if d.Available {
			out = append(out, cloneDriver(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) SetDriverAvailability(ctx context.Context, id string, available bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		return apperrors.NotFound("Driver", "id", id)
	}
	d.Available = available
	return nil
}

func (m *MemoryStore) UpdateDriverPosition(ctx context.Context, id string, loc models.Coord, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		return apperrors.NotFound("Driver", "id", id)
	}
	d.Position = loc
	d.PositionAt = at
	return nil
}

func (m *MemoryStore) CreateUser(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *u
	m.users[u.ID] = &c
	return nil
}

func (m *MemoryStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperrors.NotFound("User", "id", id)
	}
	c := *u
	return &c, nil
}

func (m *MemoryStore) CreatePayment(ctx context.Context, p *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.payments[p.RideID]; exists {
		return apperrors.InvalidState("initiate payment", "already initiated")
	}
	c := *p
	m.payments[p.RideID] = &c
	m.byTxn[p.TransactionID] = p.RideID
	return nil
}

func (m *MemoryStore) GetPaymentByRide(ctx context.Context, rideID string) (*models.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.payments[rideID]
	if !ok {
		return nil, apperrors.NotFound("Payment", "rideId", rideID)
	}
	c := *p
	return &c, nil
}

func (m *MemoryStore) GetPaymentByTransaction(ctx context.Context, txnID string) (*models.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rideID, ok := m.byTxn[txnID]
	if !ok {
		return nil, apperrors.NotFound("Payment", "transactionId", txnID)
	}
	c := *m.payments[rideID]
	return &c, nil
}

func (m *MemoryStore) MarkPaymentCompleted(ctx context.Context, txnID string, at time.Time) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rideID, ok := m.byTxn[txnID]
	if !ok {
		return nil, apperrors.NotFound("Payment", "transactionId", txnID)
	}
	p := m.payments[rideID]
	if p.Status == models.PaymentCompleted {
		return nil, apperrors.InvalidState("complete payment", string(p.Status))
	}
	p.Status = models.PaymentCompleted
	p.UpdatedAt = at
	c := *p
	return &c, nil
}
