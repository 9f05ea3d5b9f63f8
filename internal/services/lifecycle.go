package services

import (
	"fmt"
	"time"

	"studio-backend/internal/models"
)

// StartWindow is how far from its scheduled start a session may be started.
const StartWindow = 60 * time.Minute

var legalTransitions = map[models.SessionStatus][]models.SessionStatus{
	models.SessionBooked:    {models.SessionConfirmed, models.SessionCancelled},
	models.SessionConfirmed: {models.SessionCompleted, models.SessionCancelled},
}

// CanModify is false once a session is cancelled or completed.
func CanModify(status models.SessionStatus) bool {
	return status.Active()
}

func CanTransition(from, to models.SessionStatus) bool {
	if !CanModify(from) || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckStart returns a reason the session cannot be started now, or "".
func CheckStart(s models.Session, now time.Time) string {
	if s.Status != models.SessionConfirmed {
		return fmt.Sprintf("Only confirmed sessions can be started (current status: %s)", s.Status)
	}
	diff := now.Sub(s.StartTime)
	if diff < 0 {
		diff = -diff
	}
	if diff > StartWindow {
		return "Session can only be started within one hour of its scheduled start time"
	}
	return ""
}

// CheckComplete returns a reason the session cannot be completed, or "".
func CheckComplete(s models.Session) string {
	if s.Status != models.SessionConfirmed {
		return fmt.Sprintf("Only confirmed sessions can be completed (current status: %s)", s.Status)
	}
	return ""
}
