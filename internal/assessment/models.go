package assessment

import "time"

type Record struct {
	ID              string     `json:"id"`
	CandidateID     string     `json:"candidateId"`
	CandidateName   string     `json:"candidateName,omitempty"`
	JobID           *string    `json:"jobId"`
	Kind            string     `json:"assessmentKind"`
	RawScore        *int       `json:"rawScore"`
	NormalizedScore *int       `json:"normalizedScore"`
	Traits          *Traits    `json:"traits,omitempty"`
	SubmittedAt     *time.Time `json:"submittedAt"`
	CreatedAt       time.Time  `json:"createdAt"`
}

type SubmitResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Score   int    `json:"score"`
}
