package devbackend

import (
	"fmt"
	"time"

	"github.com/khabaroff/shop-admin-console/src/models"
)

// SeedAdmin creates the initial admin when the store has none. It returns
// nil when an admin already exists.
func SeedAdmin(store *Store, email, password string) (*Account, error) {
	if store.HasAdmins() {
		return nil, nil
	}
	admin, err := store.CreateAdmin("admin", email, password, "admin")
	if err != nil {
		return nil, fmt.Errorf("failed to create initial admin: %w", err)
	}
	return admin, nil
}

// SeedNotifications adds a handful of notifications covering each routing case
func SeedNotifications(store *Store) {
	store.AddNotification(models.NotificationTypeOrder, "New order #1042 placed by Maria Lopez", "")
	store.AddNotification(models.NotificationTypeOrder, "Offline sale POS-0193 recorded at the Main St store", "")
	store.AddNotification(models.NotificationTypePayment, "Payment of $89.90 received for order #1042", "")
	store.AddNotification(models.NotificationTypeGeneric, "Inventory sync finished", "")
}

// Order is a sample record served to the console's passthrough pages
type Order struct {
	ID        string    `json:"_id"`
	Number    string    `json:"orderNumber"`
	Customer  string    `json:"customer"`
	Status    string    `json:"status"`
	Total     string    `json:"total"`
	CreatedAt time.Time `json:"createdAt"`
}

var orders = []Order{
	{ID: "o-1042", Number: "1042", Customer: "Maria Lopez", Status: "pending", Total: "89.90", CreatedAt: time.Date(2026, 10, 1, 9, 30, 0, 0, time.UTC)},
	{ID: "o-1041", Number: "1041", Customer: "Jon Park", Status: "shipped", Total: "24.00", CreatedAt: time.Date(2026, 9, 30, 17, 5, 0, 0, time.UTC)},
	{ID: "o-1040", Number: "1040", Customer: "Ada Obi", Status: "delivered", Total: "310.45", CreatedAt: time.Date(2026, 9, 29, 11, 12, 0, 0, time.UTC)},
}

func sampleOrders(status string) []Order {
	out := make([]Order, 0, len(orders))
	for _, o := range orders {
		if status == "" || o.Status == status {
			out = append(out, o)
		}
	}
	return out
}
