package room

import "fmt"

// Broadcast delivers ev to every participant except excludeID (when non-empty).
// Each delivery is independent: a failing recipient is logged and skipped.
// It returns the number of successful deliveries.
func (tx *Tx) Broadcast(ev Event, excludeID string) int {
	delivered := 0
	for _, p := range tx.r.participants {
		if excludeID != "" && p.id == excludeID {
			continue
		}
		if err := Deliver(p.conn, ev); err != nil {
			tx.r.logger.Warn("event delivery failed",
				"room_id", tx.r.ID,
				"participant_id", p.id,
				"conn_id", p.conn.ID(),
				"event", ev.EventName(),
				"error", err)
			continue
		}
		delivered++
	}
	return delivered
}

// SendTo delivers ev to a single participant.
func (tx *Tx) SendTo(participantID string, ev Event) error {
	p, ok := tx.r.participants[participantID]
	if !ok {
		return ErrParticipantNotFound
	}
	return Deliver(p.conn, ev)
}

// Deliver sends ev on conn, converting a panicking Send into an error.
func Deliver(conn Conn, ev Event) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("send panicked: %v", rec)
		}
	}()
	return conn.Send(ev)
}
