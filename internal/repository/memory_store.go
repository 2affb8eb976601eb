package repository

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/prohmpiriya/hotel-booking-engine/internal/domain"
)

// MemoryStore is an in-process Store for tests and local runs. Transactions
// are serialized and work on a copy that replaces the live state on commit.
// Inside WithTx only the Tx repositories may be used for writes.
type MemoryStore struct {
	// txMu serializes transactions and non-transactional writes
	txMu sync.Mutex
	// mu guards state
	mu    sync.RWMutex
	state *memoryState

	failMu  sync.RWMutex
	failErr error

	memoryRepositories
}

type memoryState struct {
	hotels   map[string]domain.Hotel
	rooms    map[string]domain.Room
	bookings map[string]domain.Booking
	payments map[string]domain.Payment
	outbox   map[string]domain.OutboxMessage
}

func newMemoryState() *memoryState {
	return &memoryState{
		hotels:   make(map[string]domain.Hotel),
		rooms:    make(map[string]domain.Room),
		bookings: make(map[string]domain.Booking),
		payments: make(map[string]domain.Payment),
		outbox:   make(map[string]domain.OutboxMessage),
	}
}

func (st *memoryState) clone() *memoryState {
	c := &memoryState{
		hotels:   make(map[string]domain.Hotel, len(st.hotels)),
		rooms:    make(map[string]domain.Room, len(st.rooms)),
		bookings: make(map[string]domain.Booking, len(st.bookings)),
		payments: make(map[string]domain.Payment, len(st.payments)),
		outbox:   make(map[string]domain.OutboxMessage, len(st.outbox)),
	}
	for k, v := range st.hotels {
		c.hotels[k] = v
	}
	for k, v := range st.rooms {
		c.rooms[k] = v
	}
	for k, v := range st.bookings {
		c.bookings[k] = v
	}
	for k, v := range st.payments {
		c.payments[k] = v
	}
	for k, v := range st.outbox {
		c.outbox[k] = v
	}
	return c
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{state: newMemoryState()}
	s.memoryRepositories = newMemoryRepositories(s, nil)
	return s
}

// AddHotel seeds a hotel
func (s *MemoryStore) AddHotel(h *domain.Hotel) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.hotels[h.ID] = *h
}

// AddRoom seeds a room
func (s *MemoryStore) AddRoom(r *domain.Room) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.rooms[r.ID] = *r
}

// SetFailure makes every operation fail with err until cleared with nil
func (s *MemoryStore) SetFailure(err error) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	s.failErr = err
}

func (s *MemoryStore) failure(op string) error {
	s.failMu.RLock()
	defer s.failMu.RUnlock()
	if s.failErr != nil {
		return domain.StorageError(op, s.failErr)
	}
	return nil
}

// WithTx runs fn on a private copy of the state and publishes it when fn
// returns nil.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := s.failure("begin transaction"); err != nil {
		return err
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return domain.StorageError("begin transaction", err)
	}

	s.mu.RLock()
	work := s.state.clone()
	s.mu.RUnlock()

	if err := fn(&memoryTx{memoryRepositories: newMemoryRepositories(s, work)}); err != nil {
		return err
	}
	if err := s.failure("commit transaction"); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = work
	s.mu.Unlock()
	return nil
}

// Ping reports the injected failure, if any
func (s *MemoryStore) Ping(ctx context.Context) error {
	return s.failure("ping store")
}

type memoryTx struct {
	memoryRepositories
}

// Transactions already run one at a time.
func (t *memoryTx) LockRoom(ctx context.Context, roomID string) error       { return nil }
func (t *memoryTx) LockBooking(ctx context.Context, bookingID string) error { return nil }

type memoryRepositories struct {
	bookings *memoryBookingRepository
	payments *memoryPaymentRepository
	hotels   *memoryHotelRepository
	outbox   *memoryOutboxRepository
}

func newMemoryRepositories(s *MemoryStore, tx *memoryState) memoryRepositories {
	a := &memoryAccess{store: s, tx: tx}
	return memoryRepositories{
		bookings: &memoryBookingRepository{a},
		payments: &memoryPaymentRepository{a},
		hotels:   &memoryHotelRepository{a},
		outbox:   &memoryOutboxRepository{a},
	}
}

func (r memoryRepositories) Bookings() BookingRepository { return r.bookings }
func (r memoryRepositories) Payments() PaymentRepository { return r.payments }
func (r memoryRepositories) Hotels() HotelRepository     { return r.hotels }
func (r memoryRepositories) Outbox() OutboxRepository    { return r.outbox }

// memoryAccess runs a closure against either a transaction's copy or the
// live state under the store locks.
type memoryAccess struct {
	store *MemoryStore
	tx    *memoryState
}

func (a *memoryAccess) read(op string, fn func(st *memoryState) error) error {
	if err := a.store.failure(op); err != nil {
		return err
	}
	if a.tx != nil {
		return fn(a.tx)
	}
	a.store.mu.RLock()
	defer a.store.mu.RUnlock()
	return fn(a.store.state)
}

func (a *memoryAccess) write(op string, fn func(st *memoryState) error) error {
	if err := a.store.failure(op); err != nil {
		return err
	}
	if a.tx != nil {
		return fn(a.tx)
	}
	a.store.txMu.Lock()
	defer a.store.txMu.Unlock()
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	return fn(a.store.state)
}

type memoryBookingRepository struct{ *memoryAccess }

func (r *memoryBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	return r.write("create booking", func(st *memoryState) error {
		if _, ok := st.bookings[booking.ID]; ok {
			return domain.ErrConflict
		}
		st.bookings[booking.ID] = *booking
		return nil
	})
}

func (r *memoryBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	var out *domain.Booking
	err := r.read("get booking", func(st *memoryState) error {
		b, ok := st.bookings[id]
		if !ok {
			return domain.ErrBookingNotFound
		}
		out = &b
		return nil
	})
	return out, err
}

func (r *memoryBookingRepository) Update(ctx context.Context, booking *domain.Booking) error {
	return r.write("update booking", func(st *memoryState) error {
		if _, ok := st.bookings[booking.ID]; !ok {
			return domain.ErrBookingNotFound
		}
		st.bookings[booking.ID] = *booking
		return nil
	})
}

func (r *memoryBookingRepository) Delete(ctx context.Context, id string) error {
	return r.write("delete booking", func(st *memoryState) error {
		if _, ok := st.bookings[id]; !ok {
			return domain.ErrBookingNotFound
		}
		delete(st.bookings, id)
		for pid, p := range st.payments {
			if p.BookingID == id {
				delete(st.payments, pid)
			}
		}
		return nil
	})
}

func (r *memoryBookingRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Booking, error) {
	return r.filter("list user bookings", func(b *domain.Booking) bool { return b.UserID == userID })
}

func (r *memoryBookingRepository) ListByHotels(ctx context.Context, hotelIDs []string) ([]*domain.Booking, error) {
	return r.filter("list hotel bookings", func(b *domain.Booking) bool { return slices.Contains(hotelIDs, b.HotelID) })
}

func (r *memoryBookingRepository) ListAll(ctx context.Context, limit, offset int) ([]*domain.Booking, int, error) {
	all, err := r.filter("list bookings", func(*domain.Booking) bool { return true })
	if err != nil {
		return nil, 0, err
	}
	return page(all, limit, offset), len(all), nil
}

func (r *memoryBookingRepository) ActiveStays(ctx context.Context, roomID string, from, to time.Time) ([]domain.Stay, error) {
	stays := []domain.Stay{}
	err := r.read("query room stays", func(st *memoryState) error {
		for _, b := range st.bookings {
			if b.RoomID != roomID || !b.IsActive() {
				continue
			}
			if b.CheckInDate.After(to) || b.CheckOutDate.Before(from) {
				continue
			}
			stays = append(stays, b.Stay())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stays, nil
}

func (r *memoryBookingRepository) filter(op string, keep func(*domain.Booking) bool) ([]*domain.Booking, error) {
	out := []*domain.Booking{}
	err := r.read(op, func(st *memoryState) error {
		for _, b := range st.bookings {
			if keep(&b) {
				out = append(out, &b)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b *domain.Booking) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

type memoryPaymentRepository struct{ *memoryAccess }

func (r *memoryPaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	return r.write("create payment", func(st *memoryState) error {
		if _, ok := st.payments[payment.ID]; ok {
			return domain.ErrConflict
		}
		if _, ok := st.bookings[payment.BookingID]; !ok {
			return domain.ErrBookingNotFound
		}
		if err := checkPaymentUniques(st, payment); err != nil {
			return err
		}
		st.payments[payment.ID] = *payment
		return nil
	})
}

func (r *memoryPaymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	var out *domain.Payment
	err := r.read("get payment", func(st *memoryState) error {
		p, ok := st.payments[id]
		if !ok {
			return domain.ErrPaymentNotFound
		}
		out = &p
		return nil
	})
	return out, err
}

func (r *memoryPaymentRepository) Update(ctx context.Context, payment *domain.Payment) error {
	return r.write("update payment", func(st *memoryState) error {
		if _, ok := st.payments[payment.ID]; !ok {
			return domain.ErrPaymentNotFound
		}
		if err := checkPaymentUniques(st, payment); err != nil {
			return err
		}
		st.payments[payment.ID] = *payment
		return nil
	})
}

func (r *memoryPaymentRepository) Delete(ctx context.Context, id string) error {
	return r.write("delete payment", func(st *memoryState) error {
		if _, ok := st.payments[id]; !ok {
			return domain.ErrPaymentNotFound
		}
		delete(st.payments, id)
		return nil
	})
}

func (r *memoryPaymentRepository) GetActiveByBooking(ctx context.Context, bookingID string) (*domain.Payment, error) {
	list, err := r.filter("get active payment", func(p *domain.Payment) bool {
		return p.BookingID == bookingID && p.IsActive()
	})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, domain.ErrPaymentNotFound
	}
	return list[0], nil
}

func (r *memoryPaymentRepository) GetLatestByBooking(ctx context.Context, bookingID string) (*domain.Payment, error) {
	list, err := r.filter("get booking payment", func(p *domain.Payment) bool { return p.BookingID == bookingID })
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, domain.ErrPaymentNotFound
	}
	return list[0], nil
}

func (r *memoryPaymentRepository) HasCompleted(ctx context.Context, bookingID string) (bool, error) {
	list, err := r.filter("check completed payment", func(p *domain.Payment) bool {
		return p.BookingID == bookingID && p.Status == domain.PaymentStatusCompleted
	})
	if err != nil {
		return false, err
	}
	return len(list) > 0, nil
}

func (r *memoryPaymentRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Payment, error) {
	return r.filter("list user payments", func(p *domain.Payment) bool { return p.UserID == userID })
}

func (r *memoryPaymentRepository) ListByHotels(ctx context.Context, hotelIDs []string) ([]*domain.Payment, error) {
	return r.filter("list hotel payments", func(p *domain.Payment) bool { return slices.Contains(hotelIDs, p.HotelID) })
}

func (r *memoryPaymentRepository) ListAll(ctx context.Context, limit, offset int) ([]*domain.Payment, int, error) {
	all, err := r.filter("list payments", func(*domain.Payment) bool { return true })
	if err != nil {
		return nil, 0, err
	}
	return page(all, limit, offset), len(all), nil
}

func (r *memoryPaymentRepository) filter(op string, keep func(*domain.Payment) bool) ([]*domain.Payment, error) {
	out := []*domain.Payment{}
	err := r.read(op, func(st *memoryState) error {
		for _, p := range st.payments {
			if keep(&p) {
				out = append(out, &p)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b *domain.Payment) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

// checkPaymentUniques mirrors the partial unique indexes of the payments table
func checkPaymentUniques(st *memoryState, payment *domain.Payment) error {
	for id, other := range st.payments {
		if id == payment.ID {
			continue
		}
		if payment.IsActive() && other.IsActive() && other.BookingID == payment.BookingID {
			return domain.ErrPaymentAlreadyActive
		}
		if payment.ReceiptNumber != "" && other.ReceiptNumber == payment.ReceiptNumber {
			return domain.ErrDuplicateReceipt
		}
	}
	return nil
}

type memoryHotelRepository struct{ *memoryAccess }

func (r *memoryHotelRepository) GetHotel(ctx context.Context, id string) (*domain.Hotel, error) {
	var out *domain.Hotel
	err := r.read("get hotel", func(st *memoryState) error {
		h, ok := st.hotels[id]
		if !ok {
			return domain.ErrHotelNotFound
		}
		out = &h
		return nil
	})
	return out, err
}

func (r *memoryHotelRepository) ListHotelsByOwner(ctx context.Context, ownerID string) ([]*domain.Hotel, error) {
	out := []*domain.Hotel{}
	err := r.read("list owner hotels", func(st *memoryState) error {
		for _, h := range st.hotels {
			if h.OwnerID == ownerID {
				out = append(out, &h)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b *domain.Hotel) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (r *memoryHotelRepository) GetRoom(ctx context.Context, id string) (*domain.Room, error) {
	var out *domain.Room
	err := r.read("get room", func(st *memoryState) error {
		room, ok := st.rooms[id]
		if !ok {
			return domain.ErrRoomNotFound
		}
		out = &room
		return nil
	})
	return out, err
}

func (r *memoryHotelRepository) ListRooms(ctx context.Context, filter domain.RoomFilter) ([]*domain.Room, error) {
	out := []*domain.Room{}
	err := r.read("list rooms", func(st *memoryState) error {
		for _, room := range st.rooms {
			if filter.HotelID != "" && room.HotelID != filter.HotelID {
				continue
			}
			if filter.AvailableOnly && !room.IsAvailable {
				continue
			}
			out = append(out, &room)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b *domain.Room) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	return page(out, limit, filter.Offset), nil
}

type memoryOutboxRepository struct{ *memoryAccess }

func (r *memoryOutboxRepository) Create(ctx context.Context, msg *domain.OutboxMessage) error {
	return r.write("create outbox message", func(st *memoryState) error {
		stored := *msg
		stored.TraceContext = maps.Clone(msg.TraceContext)
		st.outbox[msg.ID] = stored
		return nil
	})
}

func (r *memoryOutboxRepository) GetPendingMessages(ctx context.Context, limit int) ([]*domain.OutboxMessage, error) {
	return r.filter("get pending messages", limit, func(m *domain.OutboxMessage) bool {
		return m.Status == domain.OutboxStatusPending
	})
}

func (r *memoryOutboxRepository) GetFailedMessages(ctx context.Context, limit int) ([]*domain.OutboxMessage, error) {
	return r.filter("get failed messages", limit, func(m *domain.OutboxMessage) bool { return m.CanRetry() })
}

func (r *memoryOutboxRepository) MarkAsPublished(ctx context.Context, id string) error {
	return r.update("mark message as published", id, (*domain.OutboxMessage).MarkAsPublished)
}

func (r *memoryOutboxRepository) MarkAsFailed(ctx context.Context, id string, errMsg string) error {
	return r.update("mark message as failed", id, func(m *domain.OutboxMessage) { m.MarkAsFailed(errMsg) })
}

func (r *memoryOutboxRepository) ResetForRetry(ctx context.Context, id string) error {
	return r.update("reset message for retry", id, (*domain.OutboxMessage).ResetForRetry)
}

func (r *memoryOutboxRepository) DeletePublished(ctx context.Context, olderThanDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)
	var deleted int64
	err := r.write("delete published messages", func(st *memoryState) error {
		for id, m := range st.outbox {
			if m.Status == domain.OutboxStatusPublished && m.PublishedAt != nil && m.PublishedAt.Before(cutoff) {
				delete(st.outbox, id)
				deleted++
			}
		}
		return nil
	})
	return deleted, err
}

func (r *memoryOutboxRepository) update(op, id string, fn func(*domain.OutboxMessage)) error {
	return r.write(op, func(st *memoryState) error {
		m, ok := st.outbox[id]
		if !ok {
			return ErrOutboxMessageNotFound
		}
		fn(&m)
		st.outbox[id] = m
		return nil
	})
}

func (r *memoryOutboxRepository) filter(op string, limit int, keep func(*domain.OutboxMessage) bool) ([]*domain.OutboxMessage, error) {
	out := []*domain.OutboxMessage{}
	err := r.read(op, func(st *memoryState) error {
		for _, m := range st.outbox {
			if keep(&m) {
				out = append(out, &m)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b *domain.OutboxMessage) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return page(out, limit, 0), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return items[:0]
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Tx    = (*memoryTx)(nil)
)
