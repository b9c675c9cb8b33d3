package retrain

import "errors"

var (
	ErrMetricNotFound = errors.New("metric not found in snapshot")
	ErrPollTimeout    = errors.New("job did not finish within the poll bound")
	ErrJobFailed      = errors.New("retraining job did not finish")
	ErrRunInProgress  = errors.New("a retraining run is already in progress for this container")
)
