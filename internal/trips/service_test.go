package trips

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stuartshay/otel-mileage/internal/calculator"
	"github.com/stuartshay/otel-mileage/internal/domain"
)

type memStore struct {
	mu    sync.Mutex
	staff map[string]domain.Staff
	trips map[string]domain.Trip
}

func newMemStore(staff ...domain.Staff) *memStore {
	m := &memStore{staff: map[string]domain.Staff{}, trips: map[string]domain.Trip{}}
	for _, s := range staff {
		m.staff[s.ID] = s
	}
	return m
}

func (m *memStore) GetStaff(_ context.Context, id string) (domain.Staff, error) {
	s, ok := m.staff[id]
	if !ok {
		return domain.Staff{}, domain.NotFoundError{Resource: "staff", ID: id}
	}
	return s, nil
}

func (m *memStore) CreateTrip(_ context.Context, trip domain.Trip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.trips {
		if t.StaffID == trip.StaffID && t.Active() {
			return domain.ConflictError{Resource: "trip", Msg: "active"}
		}
	}
	m.trips[trip.ID] = trip
	return nil
}

func (m *memStore) GetTrip(_ context.Context, id string) (domain.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[id]
	if !ok {
		return domain.Trip{}, domain.NotFoundError{Resource: "trip", ID: id}
	}
	return t, nil
}

func (m *memStore) GetActiveTripForStaff(_ context.Context, staffID string) (domain.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.trips {
		if t.StaffID == staffID && t.Active() {
			return t, nil
		}
	}
	return domain.Trip{}, domain.NotFoundError{Resource: "active trip for staff", ID: staffID}
}

func (m *memStore) AppendRoutePoint(_ context.Context, id string, p calculator.RoutePoint) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[id]
	if !ok {
		return 0, domain.NotFoundError{Resource: "trip", ID: id}
	}
	if !t.Active() {
		return 0, domain.ConflictError{Resource: "trip", Msg: "completed"}
	}
	t.RoutePoints = append(t.RoutePoints, p)
	m.trips[id] = t
	return len(t.RoutePoints), nil
}

func (m *memStore) CompleteTrip(_ context.Context, p domain.TripCompletion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[p.TripID]
	if !ok || !t.Active() {
		return domain.NotFoundError{Resource: "active trip", ID: p.TripID}
	}
	end := p.EndTime
	t.Status = domain.TripCompleted
	t.EndTime = &end
	if p.EndLocation != nil {
		loc := *p.EndLocation
		t.EndLocation = &loc
	}
	t.TotalDistance = p.TotalDistance
	t.TotalDriveTime = p.TotalDriveTime
	m.trips[p.TripID] = t
	return nil
}

type fakeRecorder struct {
	activities []domain.Activity
	err        error
}

func (f *fakeRecorder) RecordActivity(_ context.Context, a domain.Activity) (domain.DailyStat, error) {
	if f.err != nil {
		return domain.DailyStat{}, f.err
	}
	f.activities = append(f.activities, a)
	return domain.DailyStat{StaffID: a.StaffID, TotalMiles: a.Miles}, nil
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestService(store *memStore, rec *fakeRecorder, clock *fakeClock) *Service {
	return NewService(store, rec, 0.67, WithClock(clock.now))
}

func TestTripLifecycle_StraightLine(t *testing.T) {
	store := newMemStore(domain.Staff{ID: "A", Name: "Staff A", CostPerMile: 0.67})
	rec := &fakeRecorder{}
	clock := &fakeClock{t: time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)}
	svc := newTestService(store, rec, clock)
	ctx := context.Background()

	trip, err := svc.StartTrip(ctx, StartTripRequest{
		StaffID:  "A",
		Location: domain.Location{Latitude: 40.0, Longitude: -75.0},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TripActive, trip.Status)
	assert.NotEmpty(t, trip.ID)
	assert.Empty(t, trip.RoutePoints)

	clock.t = clock.t.Add(25 * time.Minute)
	result, err := svc.EndTrip(ctx, EndTripRequest{
		TripID:   trip.ID,
		Location: &domain.Location{Latitude: 40.01, Longitude: -75.0},
	})
	require.NoError(t, err)

	assert.Equal(t, trip.ID, result.TripID)
	assert.Equal(t, 0.69, result.TotalDistance)
	assert.Equal(t, 0.46, result.TotalCost)
	assert.Equal(t, 25, result.TotalDriveTime)

	stored, err := svc.GetTrip(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TripCompleted, stored.Status)
	require.NotNil(t, stored.EndTime)
	assert.False(t, stored.EndTime.Before(stored.StartTime))

	require.Len(t, rec.activities, 1)
	assert.Equal(t, "trip:"+trip.ID, rec.activities[0].EventID)
	assert.Equal(t, 0.69, rec.activities[0].Miles)
	assert.Equal(t, 25, rec.activities[0].DriveMinutes)
}

func TestEndTrip_PrefersRoutePoints(t *testing.T) {
	store := newMemStore(domain.Staff{ID: "A"})
	rec := &fakeRecorder{}
	clock := &fakeClock{t: time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)}
	svc := newTestService(store, rec, clock)
	ctx := context.Background()

	trip, err := svc.StartTrip(ctx, StartTripRequest{StaffID: "A", Location: domain.Location{Latitude: 40.0, Longitude: -75.0}})
	require.NoError(t, err)

	// Out to the east and back: the route is far longer than start-to-end
	for _, p := range []RoutePointRequest{
		{Latitude: 40.0, Longitude: -75.0},
		{Latitude: 40.0, Longitude: -74.9},
		{Latitude: 40.01, Longitude: -75.0},
	} {
		_, err := svc.AppendRoutePoint(ctx, trip.ID, p)
		require.NoError(t, err)
	}

	result, err := svc.EndTrip(ctx, EndTripRequest{StaffID: "A", Location: &domain.Location{Latitude: 40.01, Longitude: -75.0}})
	require.NoError(t, err)
	assert.Greater(t, result.TotalDistance, 10.0)
	assert.Equal(t, 0, result.TotalDriveTime)
}

func TestEndTrip_DefaultRateWhenStaffHasNone(t *testing.T) {
	store := newMemStore(domain.Staff{ID: "A"})
	svc := NewService(store, &fakeRecorder{}, 0.5, WithClock((&fakeClock{t: time.Now()}).now))
	ctx := context.Background()

	trip, err := svc.StartTrip(ctx, StartTripRequest{StaffID: "A", Location: domain.Location{Latitude: 40.0, Longitude: -75.0}})
	require.NoError(t, err)

	result, err := svc.EndTrip(ctx, EndTripRequest{TripID: trip.ID, Location: &domain.Location{Latitude: 40.01, Longitude: -75.0}})
	require.NoError(t, err)
	assert.Equal(t, 0.5, result.CostPerMile)
	assert.Equal(t, 0.35, result.TotalCost)
}

func TestStartTrip_SecondActiveTripConflicts(t *testing.T) {
	store := newMemStore(domain.Staff{ID: "A"})
	svc := newTestService(store, &fakeRecorder{}, &fakeClock{t: time.Now()})
	req := StartTripRequest{StaffID: "A", Location: domain.Location{Latitude: 40, Longitude: -75}}

	_, err := svc.StartTrip(context.Background(), req)
	require.NoError(t, err)

	_, err = svc.StartTrip(context.Background(), req)
	require.Error(t, err)
	assert.True(t, domain.IsConflict(err))
}

func TestStartTrip_Validation(t *testing.T) {
	svc := newTestService(newMemStore(domain.Staff{ID: "A"}), &fakeRecorder{}, &fakeClock{t: time.Now()})

	tests := []struct {
		name string
		req  StartTripRequest
	}{
		{"missing staff", StartTripRequest{Location: domain.Location{Latitude: 40, Longitude: -75}}},
		{"latitude out of range", StartTripRequest{StaffID: "A", Location: domain.Location{Latitude: 91, Longitude: -75}}},
		{"longitude out of range", StartTripRequest{StaffID: "A", Location: domain.Location{Latitude: 40, Longitude: -181}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.StartTrip(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, domain.IsValidation(err))
		})
	}
}

func TestStartTrip_UnknownStaff(t *testing.T) {
	svc := newTestService(newMemStore(), &fakeRecorder{}, &fakeClock{t: time.Now()})

	_, err := svc.StartTrip(context.Background(), StartTripRequest{StaffID: "ghost", Location: domain.Location{Latitude: 40, Longitude: -75}})
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
}

func TestEndTrip_NotFound(t *testing.T) {
	store := newMemStore(domain.Staff{ID: "A"})
	rec := &fakeRecorder{}
	svc := newTestService(store, rec, &fakeClock{t: time.Now()})
	ctx := context.Background()
	end := domain.Location{Latitude: 40.01, Longitude: -75}

	t.Run("unknown trip", func(t *testing.T) {
		_, err := svc.EndTrip(ctx, EndTripRequest{TripID: "missing", Location: &end})
		assert.True(t, domain.IsNotFound(err))
	})

	t.Run("no active trip for staff", func(t *testing.T) {
		_, err := svc.EndTrip(ctx, EndTripRequest{StaffID: "A", Location: &end})
		assert.True(t, domain.IsNotFound(err))
	})

	t.Run("already completed", func(t *testing.T) {
		trip, err := svc.StartTrip(ctx, StartTripRequest{StaffID: "A", Location: domain.Location{Latitude: 40, Longitude: -75}})
		require.NoError(t, err)
		_, err = svc.EndTrip(ctx, EndTripRequest{TripID: trip.ID, Location: &end})
		require.NoError(t, err)

		_, err = svc.EndTrip(ctx, EndTripRequest{TripID: trip.ID, Location: &end})
		assert.True(t, domain.IsNotFound(err))
		assert.Len(t, rec.activities, 1)
	})
}

func TestEndTrip_RequiresTripOrStaff(t *testing.T) {
	svc := newTestService(newMemStore(), &fakeRecorder{}, &fakeClock{t: time.Now()})

	_, err := svc.EndTrip(context.Background(), EndTripRequest{Location: &domain.Location{Latitude: 40, Longitude: -75}})
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
}

func TestEndTrip_RecorderFailureSurfaces(t *testing.T) {
	store := newMemStore(domain.Staff{ID: "A"})
	rec := &fakeRecorder{err: domain.PersistenceError{Op: "upsert", Err: errors.New("connection reset")}}
	svc := newTestService(store, rec, &fakeClock{t: time.Now()})
	ctx := context.Background()

	trip, err := svc.StartTrip(ctx, StartTripRequest{StaffID: "A", Location: domain.Location{Latitude: 40, Longitude: -75}})
	require.NoError(t, err)

	_, err = svc.EndTrip(ctx, EndTripRequest{TripID: trip.ID, Location: &domain.Location{Latitude: 40.01, Longitude: -75}})
	require.Error(t, err)
	assert.True(t, domain.IsPersistence(err))

	stored, err := svc.GetTrip(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TripCompleted, stored.Status)
}

func TestAppendRoutePoint(t *testing.T) {
	store := newMemStore(domain.Staff{ID: "A"})
	clock := &fakeClock{t: time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)}
	svc := newTestService(store, &fakeRecorder{}, clock)
	ctx := context.Background()

	trip, err := svc.StartTrip(ctx, StartTripRequest{StaffID: "A", Location: domain.Location{Latitude: 40, Longitude: -75}})
	require.NoError(t, err)

	n, err := svc.AppendRoutePoint(ctx, trip.ID, RoutePointRequest{Latitude: 40.001, Longitude: -75})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, _ := store.GetTrip(ctx, trip.ID)
	assert.Equal(t, clock.t, stored.RoutePoints[0].Timestamp)

	_, err = svc.AppendRoutePoint(ctx, trip.ID, RoutePointRequest{Latitude: 100, Longitude: -75})
	assert.True(t, domain.IsValidation(err))

	_, err = svc.AppendRoutePoint(ctx, "missing", RoutePointRequest{Latitude: 40, Longitude: -75})
	assert.True(t, domain.IsNotFound(err))

	_, err = svc.EndTrip(ctx, EndTripRequest{TripID: trip.ID, Location: &domain.Location{Latitude: 40.01, Longitude: -75}})
	require.NoError(t, err)
	_, err = svc.AppendRoutePoint(ctx, trip.ID, RoutePointRequest{Latitude: 40, Longitude: -75})
	assert.True(t, domain.IsConflict(err))
}

type recordingNotifier struct {
	events []string
	staff  []string
}

func (r *recordingNotifier) Publish(eventType, staffID string, _ interface{}) {
	r.events = append(r.events, eventType)
	r.staff = append(r.staff, staffID)
}

func TestLifecycleEventsPublished(t *testing.T) {
	store := newMemStore(domain.Staff{ID: "A"})
	n := &recordingNotifier{}
	svc := NewService(store, &fakeRecorder{}, 0.67, WithNotifier(n))
	ctx := context.Background()

	trip, err := svc.StartTrip(ctx, StartTripRequest{StaffID: "A", Location: domain.Location{Latitude: 40, Longitude: -75}})
	require.NoError(t, err)
	_, err = svc.AppendRoutePoint(ctx, trip.ID, RoutePointRequest{Latitude: 40.005, Longitude: -75})
	require.NoError(t, err)
	_, err = svc.EndTrip(ctx, EndTripRequest{TripID: trip.ID, Location: &domain.Location{Latitude: 40.01, Longitude: -75}})
	require.NoError(t, err)

	assert.Equal(t, []string{EventTripStarted, EventRoutePoint, EventTripEnded}, n.events)
	assert.Equal(t, []string{"A", "A", "A"}, n.staff)
}

func TestEndTrip_WithoutEndLocation(t *testing.T) {
	store := newMemStore(domain.Staff{ID: "A"})
	rec := &fakeRecorder{}
	clock := &fakeClock{t: time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)}
	svc := newTestService(store, rec, clock)
	ctx := context.Background()

	t.Run("no route points drives zero miles", func(t *testing.T) {
		trip, err := svc.StartTrip(ctx, StartTripRequest{StaffID: "A", Location: domain.Location{Latitude: 40, Longitude: -75}})
		require.NoError(t, err)

		clock.t = clock.t.Add(10 * time.Minute)
		result, err := svc.EndTrip(ctx, EndTripRequest{StaffID: "A"})
		require.NoError(t, err)

		assert.Equal(t, 0.0, result.TotalDistance)
		assert.Equal(t, 0.0, result.TotalCost)
		assert.Equal(t, 10, result.TotalDriveTime)

		stored, err := svc.GetTrip(ctx, trip.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TripCompleted, stored.Status)
		assert.Nil(t, stored.EndLocation)
	})

	t.Run("route points still measured", func(t *testing.T) {
		trip, err := svc.StartTrip(ctx, StartTripRequest{StaffID: "A", Location: domain.Location{Latitude: 40, Longitude: -75}})
		require.NoError(t, err)
		for _, lat := range []float64{40.0, 40.01} {
			_, err := svc.AppendRoutePoint(ctx, trip.ID, RoutePointRequest{Latitude: lat, Longitude: -75})
			require.NoError(t, err)
		}

		result, err := svc.EndTrip(ctx, EndTripRequest{TripID: trip.ID})
		require.NoError(t, err)
		assert.Equal(t, 0.69, result.TotalDistance)
	})
}
