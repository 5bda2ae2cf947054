package service

import (
	"context"
	"sort"
	"time"

	"github.com/iliyamo/school-show-booking/internal/model"
	"github.com/iliyamo/school-show-booking/internal/repository"
)

// InboxItem is one open booking with its derived urgency.
type InboxItem struct {
	Booking      model.Booking `json:"booking"`
	Expired      bool          `json:"expired"`
	TimeToExpiry time.Duration `json:"time_to_expiry_ns"` // negative once expired; zero for PENDING
}

// Inbox projects open bookings into an urgency-ordered list.
type Inbox struct {
	store repository.Store
	now   func() time.Time
}

// NewInbox returns an inbox over store.  A nil clock means time.Now.
func NewInbox(store repository.Store, now func() time.Time) *Inbox {
	if now == nil {
		now = time.Now
	}
	return &Inbox{store: store, now: now}
}

// List loads HOLD and PENDING bookings and orders them with Prioritize.
func (i *Inbox) List(ctx context.Context) ([]InboxItem, error) {
	open, err := i.store.OpenBookings(ctx)
	if err != nil {
		return nil, err
	}
	return Prioritize(open, i.now()), nil
}

// Prioritize orders HOLD and PENDING bookings by ascending time to
// expiry, so holds already past expiry come first.  PENDING bookings have
// no expiry and follow every HOLD.  Equal keys fall back to creation time
// and then ID.  Bookings in any other status are dropped.
func Prioritize(bookings []model.Booking, now time.Time) []InboxItem {
	items := make([]InboxItem, 0, len(bookings))
	for _, b := range bookings {
		if b.Status != model.StatusHold && b.Status != model.StatusPending {
			continue
		}
		it := InboxItem{Booking: b}
		if b.Status == model.StatusHold && b.ExpiresAt != nil {
			it.TimeToExpiry = b.ExpiresAt.Sub(now)
			it.Expired = b.IsExpired(now)
		}
		items = append(items, it)
	}
	sort.SliceStable(items, func(x, y int) bool {
		a, b := items[x].Booking, items[y].Booking
		ah, bh := a.ExpiresAt != nil && a.Status == model.StatusHold, b.ExpiresAt != nil && b.Status == model.StatusHold
		if ah != bh {
			return ah
		}
		if ah && !a.ExpiresAt.Equal(*b.ExpiresAt) {
			return a.ExpiresAt.Before(*b.ExpiresAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return items
}
