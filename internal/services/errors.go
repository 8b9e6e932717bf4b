package services

import (
	"context"
	"errors"
	"fmt"

	"iot-engine/internal/snapshot"
)

// Stages at which a site evaluation can fail
const (
	StageSnapshot   = "snapshot"
	StageThresholds = "thresholds"
	StageTimeout    = "timeout"
	StageEvaluate   = "evaluate"
)

// StageError is an upstream failure tagged with the stage that failed
type StageError struct {
	SiteID string
	Stage  string
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("site %s: %s: %v", e.SiteID, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// stageOf classifies an evaluation error for failure reporting
func stageOf(err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, snapshot.ErrReadTimeout) {
		return StageTimeout
	}
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return StageEvaluate
}
