package domain

type Citation struct {
	Text           string  `json:"text"`
	Source         string  `json:"source"`
	RelevanceScore float64 `json:"relevance_score"`
}

type QueryRequest struct {
	RequestID string       `json:"request_id,omitempty"`
	Text      string       `json:"text"`
	TopK      int          `json:"top_k"`
	Filters   SearchFilter `json:"filters,omitempty"`
	Domain    string       `json:"domain,omitempty"`
}

// QueryResult is the final artifact returned to callers. It is never mutated
// after it leaves the orchestrator.
type QueryResult struct {
	RequestID          string     `json:"request_id,omitempty"`
	Query              string     `json:"query"`
	Answer             string     `json:"answer"`
	Confidence         Confidence `json:"confidence"`
	Citations          []Citation `json:"citations"`
	IsRefusal          bool       `json:"is_refusal"`
	NeedsClarification bool       `json:"needs_clarification"`
	ProcessingTimeMs   int64      `json:"processing_time_ms"`
	Attempts           int        `json:"attempts"`
	Fallback           bool       `json:"fallback,omitempty"`
}

type OutcomeKind string

const (
	OutcomeReleased OutcomeKind = "released"
	OutcomeRefused  OutcomeKind = "refused"
	OutcomeFailed   OutcomeKind = "failed"
)

// Outcome is the terminal state of one query. Released and Refused carry a
// Result; Failed carries Err and no Result. A Refused outcome may also carry
// the internal cause in Err, which callers log but never show.
type Outcome struct {
	Kind   OutcomeKind
	Result *QueryResult
	Reason string
	Err    error
}

func Released(result *QueryResult) Outcome {
	return Outcome{Kind: OutcomeReleased, Result: result}
}

func Refused(result *QueryResult, reason string) Outcome {
	return Outcome{Kind: OutcomeRefused, Result: result, Reason: reason}
}

func Failed(err error) Outcome {
	return Outcome{Kind: OutcomeFailed, Err: err, Reason: "failed"}
}
