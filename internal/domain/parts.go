package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// PartStatus is the per-part state. Legal transitions form the DAG
// Pending → Processing → {Completed | Failed}; a Failed part returns to
// Pending only through an explicit retry.
type PartStatus string

const (
	PartPending    PartStatus = "Pending"
	PartProcessing PartStatus = "Processing"
	PartCompleted  PartStatus = "Completed"
	PartFailed     PartStatus = "Failed"
)

// AggregateStatus is derived deterministically from the parts.
type AggregateStatus string

const (
	AggregatePending    AggregateStatus = "pending"
	AggregateProcessing AggregateStatus = "processing"
	AggregateCompleted  AggregateStatus = "completed"
	AggregateFailed     AggregateStatus = "failed"
)

// Part is the tracked state of one page-range part.
type Part struct {
	Status     PartStatus `json:"status"`
	StartTime  *time.Time `json:"startTime,omitempty"`
	EndTime    *time.Time `json:"endTime,omitempty"`
	Error      string     `json:"error,omitempty"`
	RetryCount int        `json:"retryCount"`
}

// PartSet is the per-item tracker document. Both tracker backends persist it
// whole and mutate it through the methods here, so the state machine lives in
// exactly one place.
type PartSet struct {
	ItemID      string     `json:"itemId"`
	TotalParts  int        `json:"totalParts"`
	Parts       []Part     `json:"parts"`
	Status      AggregateStatus `json:"status"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// NewPartSet creates a tracker entry with total parts, all Pending.
func NewPartSet(itemID string, totalParts int) (PartSet, error) {
	if itemID == "" || totalParts <= 0 {
		return PartSet{}, fmt.Errorf("op=domain.NewPartSet: item=%q total=%d: %w", itemID, totalParts, ErrInvalidArgument)
	}
	now := time.Now().UTC()
	s := PartSet{
		ItemID:     itemID,
		TotalParts: totalParts,
		Parts:      make([]Part, totalParts),
		Status:     AggregatePending,
		StartedAt:  now,
		UpdatedAt:  now,
	}
	for i := range s.Parts {
		s.Parts[i].Status = PartPending
	}
	return s, nil
}

// SetPartStatus transitions part i. Setting the current status again is a
// no-op (replays are expected); illegal transitions return ErrConflict.
// StartTime is stamped on the first Processing, EndTime on any terminal
// status, and the aggregate is recomputed.
func (s *PartSet) SetPartStatus(i int, status PartStatus, errMsg string, now time.Time) error {
	if i < 0 || i >= len(s.Parts) {
		return fmt.Errorf("op=domain.SetPartStatus: part %d of %d: %w", i, len(s.Parts), ErrInvalidArgument)
	}
	p := &s.Parts[i]
	if p.Status == status {
		if status == PartFailed && errMsg != "" {
			p.Error = errMsg
		}
		return nil
	}
	if !legalPartTransition(p.Status, status) {
		return fmt.Errorf("op=domain.SetPartStatus: part %d %s→%s: %w", i, p.Status, status, ErrConflict)
	}
	p.Status = status
	switch status {
	case PartProcessing:
		if p.StartTime == nil {
			t := now
			p.StartTime = &t
		}
	case PartCompleted:
		t := now
		p.EndTime = &t
		p.Error = ""
	case PartFailed:
		t := now
		p.EndTime = &t
		p.Error = errMsg
	}
	s.recompute(now)
	return nil
}

func legalPartTransition(from, to PartStatus) bool {
	switch from {
	case PartPending:
		return to == PartProcessing
	case PartProcessing:
		return to == PartCompleted || to == PartFailed
	default:
		return false
	}
}

// RetryFailed returns every Failed part to Pending, increments its retry
// count, clears its error, and recomputes the aggregate. It returns the
// indices reset.
func (s *PartSet) RetryFailed(now time.Time) []int {
	var reset []int
	for i := range s.Parts {
		p := &s.Parts[i]
		if p.Status != PartFailed {
			continue
		}
		p.Status = PartPending
		p.RetryCount++
		p.Error = ""
		p.StartTime = nil
		p.EndTime = nil
		reset = append(reset, i)
	}
	if len(reset) > 0 {
		s.recompute(now)
	}
	return reset
}

func (s *PartSet) recompute(now time.Time) {
	s.UpdatedAt = now
	var completed, failed, processing, pending int
	started := false
	for _, p := range s.Parts {
		switch p.Status {
		case PartCompleted:
			completed++
		case PartFailed:
			failed++
		case PartProcessing:
			processing++
		default:
			pending++
		}
		if p.Status != PartPending {
			started = true
		}
	}
	switch {
	case completed == s.TotalParts:
		s.Status = AggregateCompleted
		if s.CompletedAt == nil {
			t := now
			s.CompletedAt = &t
		}
	case failed > 0 && processing == 0 && pending == 0:
		s.Status = AggregateFailed
	case started:
		s.Status = AggregateProcessing
	default:
		s.Status = AggregatePending
	}
	if s.Status != AggregateCompleted {
		s.CompletedAt = nil
	}
}

// AllCompleted reports whether every part is Completed.
func (s *PartSet) AllCompleted() bool { return s.Status == AggregateCompleted }

// AnyFailed reports whether at least one part is Failed.
func (s *PartSet) AnyFailed() bool {
	for _, p := range s.Parts {
		if p.Status == PartFailed {
			return true
		}
	}
	return false
}

// CompletedParts returns indices of Completed parts in ascending order.
func (s *PartSet) CompletedParts() []int { return s.indicesOf(PartCompleted) }

// FailedParts returns indices of Failed parts in ascending order.
func (s *PartSet) FailedParts() []int { return s.indicesOf(PartFailed) }

func (s *PartSet) indicesOf(status PartStatus) []int {
	var out []int
	for i, p := range s.Parts {
		if p.Status == status {
			out = append(out, i)
		}
	}
	return out
}

// Statuses returns each part's status by index.
func (s *PartSet) Statuses() []PartStatus {
	out := make([]PartStatus, len(s.Parts))
	for i, p := range s.Parts {
		out[i] = p.Status
	}
	return out
}

// MarshalDoc serializes the set for tracker backends.
func (s *PartSet) MarshalDoc() ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("op=domain.MarshalDoc: %w", err)
	}
	return b, nil
}

// UnmarshalDoc deserializes a tracker document.
func UnmarshalDoc(b []byte) (PartSet, error) {
	var s PartSet
	if err := json.Unmarshal(b, &s); err != nil {
		return PartSet{}, fmt.Errorf("op=domain.UnmarshalDoc: %w", err)
	}
	return s, nil
}

// FailedPartDetail is the read-only projection of a failed part.
type FailedPartDetail struct {
	PartIndex  int       `json:"partIndex"`
	Error      string    `json:"error"`
	RetryCount int       `json:"retryCount"`
	FailedAt   time.Time `json:"failedAt"`
}

// FailedDetails returns per-part failure details in ascending index order.
func (s *PartSet) FailedDetails() []FailedPartDetail {
	var out []FailedPartDetail
	for i, p := range s.Parts {
		if p.Status != PartFailed {
			continue
		}
		d := FailedPartDetail{PartIndex: i, Error: p.Error, RetryCount: p.RetryCount}
		if p.EndTime != nil {
			d.FailedAt = *p.EndTime
		}
		out = append(out, d)
	}
	return out
}

// PartTracker is the persistent per-item part state, the single source of
// truth for "is this item done?". Updates for distinct parts of the same item
// must be linearizable; both backends use compare-and-swap loops.
type PartTracker interface {
	// Initialize atomically replaces any prior entry for itemID.
	Initialize(ctx Context, itemID string, totalParts int) error
	// UpdatePartStatus transitions one part and returns the resulting state.
	UpdatePartStatus(ctx Context, itemID string, partIndex int, status PartStatus, errMsg string) (PartSet, error)
	Get(ctx Context, itemID string) (PartSet, error)
	AreAllPartsCompleted(ctx Context, itemID string) (bool, error)
	HasAnyPartFailed(ctx Context, itemID string) (bool, error)
	GetCompletedParts(ctx Context, itemID string) ([]int, error)
	GetFailedParts(ctx Context, itemID string) ([]int, error)
	GetFailedPartsDetails(ctx Context, itemID string) ([]FailedPartDetail, error)
	GetAllPartStatuses(ctx Context, itemID string) ([]PartStatus, error)
	// RetryFailedParts resets every failed part to Pending and returns the
	// indices reset.
	RetryFailedParts(ctx Context, itemID string) ([]int, error)
	// Cleanup deletes the entry after merging.
	Cleanup(ctx Context, itemID string) error
}
