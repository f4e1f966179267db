package models

import (
	"sort"
	"time"
)

// HistoryEvent is one entry in a submission's timeline. The timeline is a
// pure projection over aggregate timestamps and is never stored.
type HistoryEvent struct {
	Label      string    `json:"label"`
	OccurredAt time.Time `json:"occurredAt"`
}

// BuildTimeline recomputes the history projection from the aggregates.
func BuildTimeline(sub *Submission, assignments []ReviewerAssignment, reviews []Review, revisions []RevisionRequest) []HistoryEvent {
	if sub == nil {
		return nil
	}
	events := make([]HistoryEvent, 0, 8)

	if sub.SubmittedAt != nil {
		events = append(events, HistoryEvent{Label: "Submission received", OccurredAt: *sub.SubmittedAt})
	}
	if sub.VerifiedAt != nil {
		events = append(events, HistoryEvent{Label: "Document verification complete", OccurredAt: *sub.VerifiedAt})
	}
	if sub.ClassifiedAt != nil {
		events = append(events, HistoryEvent{Label: "Classified " + string(sub.Category), OccurredAt: *sub.ClassifiedAt})
	}
	if len(assignments) > 0 {
		earliest := assignments[0].AssignedAt
		for _, assignment := range assignments[1:] {
			if assignment.AssignedAt.Before(earliest) {
				earliest = assignment.AssignedAt
			}
		}
		events = append(events, HistoryEvent{Label: "Reviewers assigned", OccurredAt: earliest})
	}
	for _, review := range reviews {
		events = append(events, HistoryEvent{Label: "Review submitted", OccurredAt: review.SubmittedAt})
	}
	if sub.ReviewedAt != nil {
		events = append(events, HistoryEvent{Label: "Review complete", OccurredAt: *sub.ReviewedAt})
	}
	for _, revision := range revisions {
		events = append(events, HistoryEvent{Label: "Revision requested", OccurredAt: revision.RequestedAt})
		if revision.ResolvedAt != nil {
			events = append(events, HistoryEvent{Label: "Revised documents resubmitted", OccurredAt: *revision.ResolvedAt})
		}
	}
	if sub.DecidedAt != nil {
		events = append(events, HistoryEvent{Label: "Decision recorded", OccurredAt: *sub.DecidedAt})
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].OccurredAt.Before(events[j].OccurredAt)
	})
	return events
}
