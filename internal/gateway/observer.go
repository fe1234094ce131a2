package gateway

import (
	"time"

	"github.com/maxviazov/storegate/internal/repository"
)

// Operation shapes reported to observers.
const (
	ShapeExecute = "execute"
	ShapeFind    = "find"
)

// Outcome classifies how a gateway call ended.
type Outcome string

const (
	OutcomeOK            Outcome = "ok"
	OutcomeAbsent        Outcome = "absent"
	OutcomeAccessFailure Outcome = "access_failure"
	OutcomeAlreadyExists Outcome = "already_exists"
	OutcomeNotFound      Outcome = "not_found"
	OutcomeInvalid       Outcome = "invalid"
)

// Observer receives one call per Execute/Find. Implementations must be fast
// and safe for concurrent use.
type Observer interface {
	OperationDone(backend, shape string, outcome Outcome, took time.Duration)
}

type nopObserver struct{}

func (nopObserver) OperationDone(string, string, Outcome, time.Duration) {}

func outcomeOf(err error, found bool) Outcome {
	if err == nil {
		if !found {
			return OutcomeAbsent
		}
		return OutcomeOK
	}
	switch repository.KindOf(err) {
	case repository.KindAlreadyExists:
		return OutcomeAlreadyExists
	case repository.KindNotFound:
		return OutcomeNotFound
	case repository.KindInvalid:
		return OutcomeInvalid
	default:
		return OutcomeAccessFailure
	}
}
