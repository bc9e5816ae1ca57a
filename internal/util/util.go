package util

import (
	"fmt"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func RecordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// GetStatusKey is the cache key of a job's terminal status.
func GetStatusKey(jobID string) string {
	return fmt.Sprintf("status:%s", jobID)
}

// GetArtifactObjectPath is where an archived job artifact lives in object storage.
func GetArtifactObjectPath(jobID string, artifact string) string {
	return fmt.Sprintf("jobs/%s/%s", jobID, artifact)
}
