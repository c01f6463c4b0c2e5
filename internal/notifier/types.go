package notifier

import (
	"fmt"
	"time"
)

// Config controls delivery behavior. Durations come from config as Go
// duration strings.
type Config struct {
	RatePerSec  int
	SendTimeout time.Duration

	// Quiet hours: deliveries whose local hour falls inside [Start, End) are
	// held until the window opens. Start == End disables the window.
	QuietStart int
	QuietEnd   int
}

// QuietHoursError reports a delivery deferred by the quiet-hours window.
// Until is when the window opens; the scheduler re-arms for that instant
// instead of counting a send.
type QuietHoursError struct {
	Until time.Time
}

func (e *QuietHoursError) Error() string {
	return fmt.Sprintf("delivery held by quiet hours until %s", e.Until.Format("15:04"))
}

// QuietUntil lets callers detect the hold through errors.As without
// depending on this package's concrete type.
func (e *QuietHoursError) QuietUntil() time.Time { return e.Until }
