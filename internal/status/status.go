// Package status reduces a source result to the tri-state verdict shown to operators.
package status

import "PersonaCollector/internal/domain"

// Classify derives the processing status from the result's fields only.
// A nil result means the source never produced one.
func Classify(r *domain.SourceResult) domain.ProcessingStatus {
	switch {
	case r == nil:
		return domain.StatusNotStarted
	case r.IsFailed():
		return domain.StatusFailed
	case r.HasData():
		return domain.StatusCompleted
	default:
		return domain.StatusCompletedNoData
	}
}
