package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/iliyamo/tour-booking/internal/model"
)

type invKey struct {
	tourID string
	date   string
}

// memStore is an in-memory Store.  InTx holds the store mutex for the whole
// transaction, which is a stricter version of the row lock the MySQL store
// takes, and restores a snapshot when fn fails.
type memStore struct {
	mu        sync.Mutex
	tours     map[string]model.Tour
	inventory map[invKey]model.InventoryRecord
	bookings  map[string]model.Booking
	events    map[string]bool

	adjustErr error
	txCount   int
}

func newMemStore(tours ...model.Tour) *memStore {
	s := &memStore{
		tours:     map[string]model.Tour{},
		inventory: map[invKey]model.InventoryRecord{},
		bookings:  map[string]model.Booking{},
		events:    map[string]bool{},
	}
	for _, t := range tours {
		s.tours[t.ID] = t
	}
	return s
}

func cloneInv(r model.InventoryRecord) model.InventoryRecord {
	if r.AvailableSpots != nil {
		v := *r.AvailableSpots
		r.AvailableSpots = &v
	}
	if r.MaxCapacity != nil {
		v := *r.MaxCapacity
		r.MaxCapacity = &v
	}
	return r
}

func (s *memStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txCount++

	inv := make(map[invKey]model.InventoryRecord, len(s.inventory))
	for k, v := range s.inventory {
		inv[k] = cloneInv(v)
	}
	bookings := make(map[string]model.Booking, len(s.bookings))
	for k, v := range s.bookings {
		bookings[k] = v
	}
	events := make(map[string]bool, len(s.events))
	for k, v := range s.events {
		events[k] = v
	}

	if err := fn(memTx{s}); err != nil {
		s.inventory, s.bookings, s.events = inv, bookings, events
		return err
	}
	return nil
}

func (s *memStore) Tour(ctx context.Context, id string) (model.Tour, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memTx{s}.Tour(ctx, id)
}

func (s *memStore) Booking(ctx context.Context, id string) (model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memTx{s}.Booking(ctx, id)
}

func (s *memStore) Inventory(ctx context.Context, tourID string, date model.Date) (*model.InventoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memTx{s}.Inventory(ctx, tourID, date)
}

func (s *memStore) CommittedGuests(ctx context.Context, tourID string, date model.Date) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memTx{s}.CommittedGuests(ctx, tourID, date)
}

func (s *memStore) BookingsByUser(_ context.Context, userID string) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Booking
	for _, b := range s.bookings {
		if b.OwnedBy(userID) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) BookingsByMerchant(_ context.Context, merchantID string) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Booking
	for _, b := range s.bookings {
		if b.MerchantID == merchantID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// setInventory seeds a row directly, bypassing the ledger.
func (s *memStore) setInventory(r model.InventoryRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inventory[invKey{r.TourID, r.TourDate.String()}] = cloneInv(r)
}

func (s *memStore) spots(tourID string, date model.Date) *int {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.inventory[invKey{tourID, date.String()}]
	if !ok || r.AvailableSpots == nil {
		return nil
	}
	v := *r.AvailableSpots
	return &v
}

type memTx struct{ s *memStore }

func (t memTx) Tour(_ context.Context, id string) (model.Tour, error) {
	tour, ok := t.s.tours[id]
	if !ok {
		return model.Tour{}, fmt.Errorf("tour %s: %w", id, ErrNotFound)
	}
	return tour, nil
}

func (t memTx) Booking(_ context.Context, id string) (model.Booking, error) {
	b, ok := t.s.bookings[id]
	if !ok {
		return model.Booking{}, fmt.Errorf("booking %s: %w", id, ErrNotFound)
	}
	return b, nil
}

func (t memTx) Inventory(_ context.Context, tourID string, date model.Date) (*model.InventoryRecord, error) {
	r, ok := t.s.inventory[invKey{tourID, date.String()}]
	if !ok {
		return nil, nil
	}
	r = cloneInv(r)
	return &r, nil
}

func (t memTx) CommittedGuests(_ context.Context, tourID string, date model.Date) (int, error) {
	sum := 0
	for _, b := range t.s.bookings {
		if b.TourID == tourID && b.TourDate.Equal(date) && b.Status.CommitsCapacity() {
			sum += b.NumberOfGuests
		}
	}
	return sum, nil
}

func (t memTx) LockInventory(ctx context.Context, tourID string, date model.Date, ensure int) (*model.InventoryRecord, error) {
	k := invKey{tourID, date.String()}
	if _, ok := t.s.inventory[k]; !ok && ensure > 0 {
		c, a := ensure, ensure
		t.s.inventory[k] = model.InventoryRecord{TourID: tourID, TourDate: date, MaxCapacity: &c, AvailableSpots: &a, IsAvailable: true}
	}
	return t.Inventory(ctx, tourID, date)
}

func (t memTx) AdjustInventory(_ context.Context, tourID string, date model.Date, delta int) error {
	if t.s.adjustErr != nil {
		return t.s.adjustErr
	}
	k := invKey{tourID, date.String()}
	r, ok := t.s.inventory[k]
	if !ok || r.MaxCapacity == nil {
		return nil
	}
	cur := *r.MaxCapacity
	if r.AvailableSpots != nil {
		cur = *r.AvailableSpots
	}
	v := min(max(cur+delta, 0), *r.MaxCapacity)
	r.AvailableSpots = &v
	t.s.inventory[k] = r
	return nil
}

func (t memTx) SetInventorySpots(_ context.Context, tourID string, date model.Date, spots int) error {
	k := invKey{tourID, date.String()}
	r, ok := t.s.inventory[k]
	if !ok || r.MaxCapacity == nil {
		return nil
	}
	v := spots
	r.AvailableSpots = &v
	t.s.inventory[k] = r
	return nil
}

func (t memTx) UpsertInventory(_ context.Context, rec model.InventoryRecord) error {
	t.s.inventory[invKey{rec.TourID, rec.TourDate.String()}] = cloneInv(rec)
	return nil
}

func (t memTx) LockBooking(ctx context.Context, id string) (model.Booking, error) {
	return t.Booking(ctx, id)
}

func (t memTx) InsertBooking(_ context.Context, b *model.Booking) error {
	if _, ok := t.s.bookings[b.ID]; ok {
		return errors.New("duplicate booking id")
	}
	t.s.bookings[b.ID] = *b
	return nil
}

func (t memTx) UpdateBooking(_ context.Context, b model.Booking) error {
	if _, ok := t.s.bookings[b.ID]; !ok {
		return fmt.Errorf("booking %s: %w", b.ID, ErrNotFound)
	}
	t.s.bookings[b.ID] = b
	return nil
}

func (t memTx) RecordPaymentEvent(_ context.Context, eventID, _, _ string) (bool, error) {
	if t.s.events[eventID] {
		return false, nil
	}
	t.s.events[eventID] = true
	return true, nil
}

// recordingNotifier captures notifications in call order.
type recordingNotifier struct {
	mu     sync.Mutex
	calls  []string
	refund int64
}

func (n *recordingNotifier) add(kind string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, kind)
}

func (n *recordingNotifier) NotifyCreated(context.Context, model.Booking, string) { n.add("created") }
func (n *recordingNotifier) NotifyConfirmed(context.Context, model.Booking, string) {
	n.add("confirmed")
}
func (n *recordingNotifier) NotifyCancelled(_ context.Context, _ model.Booking, _ string, refund int64) {
	n.mu.Lock()
	n.refund = refund
	n.mu.Unlock()
	n.add("cancelled")
}
func (n *recordingNotifier) NotifyPaymentCompleted(context.Context, model.Booking, string) {
	n.add("payment_completed")
}

func (n *recordingNotifier) snapshot() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.calls...)
}

type fakeGateway struct {
	mu       sync.Mutex
	captured map[string]int64
	refunds  []string
	err      error
}

func (g *fakeGateway) VerifyCaptured(_ context.Context, ref string, amount int64) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return false, g.err
	}
	got, ok := g.captured[ref]
	return ok && got >= amount, nil
}

func (g *fakeGateway) Refund(_ context.Context, ref string, _ int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.refunds = append(g.refunds, ref)
	return nil
}
