package models

import "time"

// Standing is one participant's final rank in a competition
type Standing struct {
	ParticipantID string `json:"participant_id"`
	Rank          int    `json:"rank"`
}

// ResolvePointsRequest asks for the points of a rank.
// A missing AsOf means now.
type ResolvePointsRequest struct {
	ParticipantCount int        `json:"participant_count"`
	Rank             int        `json:"rank"`
	AsOf             *time.Time `json:"as_of,omitempty"`
}

// ResolveCoinsRequest asks for the coins of a rank
type ResolveCoinsRequest struct {
	Rank int        `json:"rank"`
	AsOf *time.Time `json:"as_of,omitempty"`
}

// GradeRequest grades a full competition
type GradeRequest struct {
	Standings []Standing `json:"standings"`
	AsOf      *time.Time `json:"as_of,omitempty"`
}

// StartPlacementRequest opens a placement session
type StartPlacementRequest struct {
	CandidateID string     `json:"candidate_id"`
	AsOf        *time.Time `json:"as_of,omitempty"`
}

// AdvancePlacementRequest reports the correct-answer count of a completed phase
type AdvancePlacementRequest struct {
	Phase        Phase `json:"phase"`
	CorrectCount *int  `json:"correct_count"`
}
