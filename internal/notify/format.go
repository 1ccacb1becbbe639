package notify

import (
	"fmt"

	"github.com/yourneighborhoodchef/pickupwatch/internal/pickup"
)

// FormatAlert summarises a snapshot against the number of stores returned.
func FormatAlert(snap pickup.Snapshot, total int) string {
	if len(snap) == 0 {
		return fmt.Sprintf("[OUT OF STOCK] 0/%d stores: no stores available", total)
	}
	return fmt.Sprintf("[IN STOCK!] %d/%d stores: %s", len(snap), total, snap.Display())
}
