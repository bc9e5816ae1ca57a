package model

import (
	"time"
)

// Status is the lifecycle record of a job as persisted in status.json.
type Status struct {
	TimeStarted   *time.Time `json:"time_started" msgpack:"time_started"`
	TimeCompleted *time.Time `json:"time_completed" msgpack:"time_completed"`
	Error         bool       `json:"error" msgpack:"error"`
}

// Completed reports whether execution has finished, successfully or not.
func (s Status) Completed() bool {
	return s.TimeCompleted != nil
}

// InFlight reports whether the job started but has not completed yet.
func (s Status) InFlight() bool {
	return s.TimeStarted != nil && s.TimeCompleted == nil
}

// Job is the view of a tracked execution returned to callers.
type Job struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
}

// Artifact names one of the independently written job records.
type Artifact string

const (
	ArtifactStatus    Artifact = "status.json"
	ArtifactStdOutput Artifact = "std_output.txt"
	ArtifactError     Artifact = "error.txt"
	ArtifactData      Artifact = "data.json"
)

// Artifacts lists every record a job directory may hold.
var Artifacts = []Artifact{ArtifactStatus, ArtifactStdOutput, ArtifactError, ArtifactData}
