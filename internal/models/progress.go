package models

// Phase identifies the pipeline step a ProgressEvent reports on.
type Phase string

const (
	PhaseStart     Phase = "start"
	PhaseTextLayer Phase = "text-layer"
	PhaseOCR       Phase = "ocr"
	PhasePageDone  Phase = "page-done"
	PhaseCompleted Phase = "completed"
	PhaseFailed    Phase = "failed"
)

// ProgressEvent is a transient notification; the pipeline does not keep it.
// PageIndex is 0 for run-level events.
type ProgressEvent struct {
	PageIndex  int    `json:"pageIndex"`
	TotalPages int    `json:"totalPages"`
	Phase      Phase  `json:"phase"`
	Method     Method `json:"method,omitempty"`
	Message    string `json:"message"`
}

// Fraction is the share of pages finished when this event was emitted.
func (e ProgressEvent) Fraction() float64 {
	if e.TotalPages <= 0 {
		return 0
	}
	switch e.Phase {
	case PhaseCompleted:
		return 1
	case PhasePageDone:
		return float64(e.PageIndex) / float64(e.TotalPages)
	case PhaseTextLayer, PhaseOCR:
		return float64(e.PageIndex-1) / float64(e.TotalPages)
	default:
		return 0
	}
}

// ProgressSink receives progress events. Implementations must not block for long.
type ProgressSink func(ProgressEvent)

// Emit calls s when it is non-nil.
func (s ProgressSink) Emit(e ProgressEvent) {
	if s != nil {
		s(e)
	}
}
