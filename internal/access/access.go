// Package access decides whether a student may see or start a deployed test.
// Every read or write of attempt state goes through Resolve (or a caller that
// already did); it has no side effects.
package access

import (
	"time"

	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/models"
)

// Decision is the outcome of an access check.
type Decision int

const (
	Ok Decision = iota
	NotFound
	AccessDenied
	NotYetOpen
)

func (d Decision) String() string {
	switch d {
	case Ok:
		return "ok"
	case NotFound:
		return "not-found"
	case AccessDenied:
		return "access-denied"
	case NotYetOpen:
		return "not-yet-open"
	default:
		return "unknown"
	}
}

// Resolve gates a student against a test's deployment. A test that is absent,
// a draft, or closed without the student holding an attempt is
// indistinguishable from a missing one. When an explicit student allow-list
// is configured it overrides batch targeting. A student with an existing
// attempt is allowed back in even before the nominal start time or after the
// test has been closed, so resume accounting and late submits still run.
func Resolve(test *models.Test, student *models.Student, now time.Time, hasAttempt bool) Decision {
	if test == nil {
		return NotFound
	}
	switch test.Status {
	case models.TestDeployed:
	case models.TestCompleted:
		if !hasAttempt {
			return NotFound
		}
	default:
		return NotFound
	}

	d := test.Deployment.Data()
	if len(d.Students) > 0 {
		allowed := false
		for _, phone := range d.Students {
			if phone == student.Phone {
				allowed = true
				break
			}
		}
		if !allowed {
			return AccessDenied
		}
	} else if !student.InAnyBatch(d.Batches) {
		return AccessDenied
	}

	if now.Before(d.StartTime) && !hasAttempt {
		return NotYetOpen
	}

	return Ok
}
