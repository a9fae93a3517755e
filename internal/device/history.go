package device

import (
	"context"
	"time"
)

// StateHistoryEntry is the state and sensor snapshot a device had right
// after one inbound message was applied.
type StateHistoryEntry struct {
	ID     int64       `json:"id"`
	Serial string      `json:"serial"`
	Kind   MessageKind `json:"kind"` // message that produced the snapshot
	State  State       `json:"state"`
	Sensor Sensor      `json:"sensor"`

	// CreatedAt is the Update time, in UTC.
	CreatedAt time.Time `json:"created_at"`
}

// StateHistoryRepository persists snapshots. Implementations are safe for
// concurrent use.
type StateHistoryRepository interface {
	RecordUpdate(ctx context.Context, u Update) error

	// GetHistory returns at most limit entries for serial, newest first.
	// Implementations may clamp limit.
	GetHistory(ctx context.Context, serial string, limit int) ([]StateHistoryEntry, error)
}

// historyWriteTimeout bounds one RecordUpdate call from a listener.
const historyWriteTimeout = 5 * time.Second

// HistoryRecorder returns a Registry listener that writes every Update to
// repo. Write failures are logged; they never reach the device.
func HistoryRecorder(repo StateHistoryRepository, logger Logger) func(Update) {
	if logger == nil {
		logger = noopLogger{}
	}
	return func(u Update) {
		ctx, cancel := context.WithTimeout(context.Background(), historyWriteTimeout)
		defer cancel()

		if err := repo.RecordUpdate(ctx, u); err != nil {
			logger.Warn("recording state history failed", "serial", u.Serial, "kind", u.Kind, "error", err)
		}
	}
}
