package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/rideflow/internal/apperrors"
	"github.com/example/rideflow/internal/models"
)

// PostgresStore backs the service with Postgres. Transitions run inside a
// transaction with row locks on the ride (and the driver for AcceptRide), so
// the status guard and the write commit as one unit.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) DB() *sql.DB { return p.db }

const rideColumns = `id, rider_id, driver_id, status, pickup_lat, pickup_lon, pickup_label,
	drop_lat, drop_lon, drop_label, vehicle_class, distance_km, fare, otp,
	otp_consumed_at, created_at, started_at, ended_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRide(row rowScanner) (*models.Ride, error) {
	var r models.Ride
	var driverID sql.NullString
	var consumedAt, startedAt, endedAt sql.NullTime
	err := row.Scan(&r.ID, &r.RiderID, &driverID, &r.Status,
		&r.Pickup.Lat, &r.Pickup.Lon, &r.Pickup.Label,
		&r.Drop.Lat, &r.Drop.Lon, &r.Drop.Label,
		&r.VehicleClass, &r.DistanceKm, &r.Fare, &r.OTP,
		&consumedAt, &r.CreatedAt, &startedAt, &endedAt)
	if err != nil {
		return nil, err
	}
	if driverID.Valid {
		r.DriverID = driverID.String
	}
	if consumedAt.Valid {
		t := consumedAt.Time
		r.OTPConsumedAt = &t
	}
	if startedAt.Valid {
		t := startedAt.Time
		r.StartedAt = &t
	}
	if endedAt.Valid {
		t := endedAt.Time
		r.EndedAt = &t
	}
	return &r, nil
}

func nullableID(id string) any {
	if id == "" {
		return nil
	}
	return id
}

func (p *PostgresStore) CreateRide(ctx context.Context, r *models.Ride) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO rides(`+rideColumns+`)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		r.ID, r.RiderID, nullableID(r.DriverID), r.Status,
		r.Pickup.Lat, r.Pickup.Lon, r.Pickup.Label,
		r.Drop.Lat, r.Drop.Lon, r.Drop.Label,
		r.VehicleClass, r.DistanceKm, r.Fare, r.OTP,
		r.OTPConsumedAt, r.CreatedAt, r.StartedAt, r.EndedAt)
	return err
}

func (p *PostgresStore) GetRide(ctx context.Context, id string) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+rideColumns+` FROM rides WHERE id=$1`, id)
	r, err := scanRide(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("Ride", "id", id)
	}
	return r, err
}

func (p *PostgresStore) listRides(ctx context.Context, where string, arg any) ([]*models.Ride, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+rideColumns+` FROM rides WHERE `+where+` ORDER BY created_at DESC, id DESC`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*models.Ride, 0)
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) ListRidesByStatus(ctx context.Context, status models.RideStatus) ([]*models.Ride, error) {
	return p.listRides(ctx, "status=$1", string(status))
}

func (p *PostgresStore) ListRidesByDriver(ctx context.Context, driverID string) ([]*models.Ride, error) {
	return p.listRides(ctx, "driver_id=$1", driverID)
}

func (p *PostgresStore) AcceptRide(ctx context.Context, rideID, driverID string) (*models.Ride, error) {
	var accepted *models.Ride
	err := p.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+rideColumns+` FROM rides WHERE id=$1 FOR UPDATE`, rideID)
		r, err := scanRide(row)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound("Ride", "id", rideID)
		}
		if err != nil {
			return err
		}
		var available bool
		err = tx.QueryRowContext(ctx, `SELECT is_available FROM drivers WHERE id=$1 FOR UPDATE`, driverID).Scan(&available)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound("Driver", "id", driverID)
		}
		if err != nil {
			return err
		}
		if r.Status != models.StatusRequested {
			return apperrors.InvalidState("accept", string(r.Status))
		}
		if !available {
			return apperrors.PermissionDenied("driver is not marked as available")
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE rides SET driver_id=$1, status=$2 WHERE id=$3`,
			driverID, models.StatusAccepted, rideID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE drivers SET is_available=FALSE WHERE id=$1`, driverID); err != nil {
			return err
		}
		r.DriverID = driverID
		r.Status = models.StatusAccepted
		accepted = r
		return nil
	})
	return accepted, err
}

func (p *PostgresStore) StartRide(ctx context.Context, rideID string, startedAt time.Time) (*models.Ride, error) {
	var started *models.Ride
	err := p.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+rideColumns+` FROM rides WHERE id=$1 FOR UPDATE`, rideID)
		r, err := scanRide(row)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound("Ride", "id", rideID)
		}
		if err != nil {
			return err
		}
		if r.Status != models.StatusAccepted {
			return apperrors.InvalidState("start", string(r.Status))
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE rides SET status=$1, started_at=$2, otp_consumed_at=$2 WHERE id=$3`,
			models.StatusStarted, startedAt, rideID); err != nil {
			return err
		}
		at := startedAt
		r.Status = models.StatusStarted
		r.StartedAt = &at
		r.OTPConsumedAt = &at
		started = r
		return nil
	})
	return started, err
}

func (p *PostgresStore) CloseRide(ctx context.Context, rideID string, status models.RideStatus, endedAt time.Time, zeroFare bool) (*models.Ride, error) {
	var closed *models.Ride
	err := p.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+rideColumns+` FROM rides WHERE id=$1 FOR UPDATE`, rideID)
		r, err := scanRide(row)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound("Ride", "id", rideID)
		}
		if err != nil {
			return err
		}
		switch status {
		case models.StatusCompleted:
			if r.Status != models.StatusStarted {
				return apperrors.InvalidState("complete", string(r.Status))
			}
		case models.StatusCancelled:
			if r.Status.Terminal() {
				return apperrors.InvalidState("cancel", string(r.Status))
			}
		default:
			return apperrors.InvalidState("close", string(status))
		}
		fare := r.Fare
		if zeroFare {
			fare = 0
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE rides SET status=$1, ended_at=$2, fare=$3 WHERE id=$4`,
			status, endedAt, fare, rideID); err != nil {
			return err
		}
		if r.DriverID != "" {
			// release is best effort inside the same transaction: a missing
			// driver row must not fail the close
			if _, err := tx.ExecContext(ctx,
				`UPDATE drivers SET is_available=TRUE WHERE id=$1`, r.DriverID); err != nil {
				return err
			}
		}
		at := endedAt
		r.Status = status
		r.EndedAt = &at
		r.Fare = fare
		closed = r
		return nil
	})
	return closed, err
}

func (p *PostgresStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

func (p *PostgresStore) CreateDriver(ctx context.Context, d *models.Driver) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO drivers(id, user_id, license, vehicle, plate_number, is_available, rating, lat, lon, position_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		d.ID, d.UserID, d.License, d.Vehicle, d.PlateNumber, d.Available, d.Rating, d.Position.Lat, d.Position.Lon, d.PositionAt)
	return err
}

func scanDriver(row rowScanner) (*models.Driver, error) {
	var d models.Driver
	err := row.Scan(&d.ID, &d.UserID, &d.License, &d.Vehicle, &d.PlateNumber,
		&d.Available, &d.Rating, &d.Position.Lat, &d.Position.Lon, &d.PositionAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

const driverColumns = `id, user_id, license, vehicle, plate_number, is_available, rating, lat, lon, position_at`

func (p *PostgresStore) GetDriver(ctx context.Context, id string) (*models.Driver, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+driverColumns+` FROM drivers WHERE id=$1`, id)
	d, err := scanDriver(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("Driver", "id", id)
	}
	return d, err
}

func (p *PostgresStore) GetDriverByUserID(ctx context.Context, userID string) (*models.Driver, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+driverColumns+` FROM drivers WHERE user_id=$1`, userID)
	d, err := scanDriver(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("Driver", "userId", userID)
	}
	return d, err
}

func (p *PostgresStore) ListAvailableDrivers(ctx context.Context) ([]*models.Driver, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+driverColumns+` FROM drivers WHERE is_available ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*models.Driver, 0)
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *PostgresStore) SetDriverAvailability(ctx context.Context, id string, available bool) error {
	res, err := p.db.ExecContext(ctx, `UPDATE drivers SET is_available=$1 WHERE id=$2`, available, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound("Driver", "id", id)
	}
	return nil
}

func (p *PostgresStore) UpdateDriverPosition(ctx context.Context, id string, loc models.Coord, at time.Time) error {
	res, err := p.db.ExecContext(ctx, `UPDATE drivers SET lat=$1, lon=$2, position_at=$3 WHERE id=$4`, loc.Lat, loc.Lon, at, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound("Driver", "id", id)
	}
	return nil
}

func (p *PostgresStore) CreateUser(ctx context.Context, u *models.User) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO users(id, name, phone) VALUES($1,$2,$3)`, u.ID, u.Name, u.Phone)
	return err
}

func (p *PostgresStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := p.db.QueryRowContext(ctx, `SELECT id, name, phone FROM users WHERE id=$1`, id).Scan(&u.ID, &u.Name, &u.Phone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("User", "id", id)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (p *PostgresStore) CreatePayment(ctx context.Context, pay *models.Payment) error {
	res, err := p.db.ExecContext(ctx, `INSERT INTO payments(ride_id, transaction_id, amount, method, status, created_at, updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7) ON CONFLICT (ride_id) DO NOTHING`,
		pay.RideID, pay.TransactionID, pay.Amount, pay.Method, pay.Status, pay.CreatedAt, pay.UpdatedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.InvalidState("initiate payment", "already initiated")
	}
	return nil
}

func scanPayment(row rowScanner) (*models.Payment, error) {
	var pay models.Payment
	err := row.Scan(&pay.RideID, &pay.TransactionID, &pay.Amount, &pay.Method, &pay.Status, &pay.CreatedAt, &pay.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &pay, nil
}

const paymentColumns = `ride_id, transaction_id, amount, method, status, created_at, updated_at`

func (p *PostgresStore) GetPaymentByRide(ctx context.Context, rideID string) (*models.Payment, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE ride_id=$1`, rideID)
	pay, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("Payment", "rideId", rideID)
	}
	return pay, err
}

func (p *PostgresStore) GetPaymentByTransaction(ctx context.Context, txnID string) (*models.Payment, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE transaction_id=$1`, txnID)
	pay, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("Payment", "transactionId", txnID)
	}
	return pay, err
}

func (p *PostgresStore) MarkPaymentCompleted(ctx context.Context, txnID string, at time.Time) (*models.Payment, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE payments SET status=$1, updated_at=$2 WHERE transaction_id=$3 AND status<>$1`,
		models.PaymentCompleted, at, txnID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// either unknown transaction or already completed
		if _, lookupErr := p.GetPaymentByTransaction(ctx, txnID); lookupErr != nil {
			return nil, lookupErr
		}
		return nil, apperrors.InvalidState("complete payment", string(models.PaymentCompleted))
	}
	return p.GetPaymentByTransaction(ctx, txnID)
}
