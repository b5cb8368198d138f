package models

import (
	"time"
)

// User represents a registered racer. Registration and password handling
// live in the external auth service; this service reads identities and
// writes rating updates.
type User struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	Handle    string    `gorm:"uniqueIndex;not null" json:"handle"`
	Rating    int       `gorm:"not null;index" json:"rating"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (User) TableName() string {
	return "users"
}

// RaceRecord is the settlement record written once per finished match.
// The match id is the primary key so that worker retries stay idempotent.
type RaceRecord struct {
	MatchID    string       `gorm:"primaryKey;type:uuid" json:"match_id"`
	Cancelled  bool         `gorm:"not null" json:"cancelled"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Results    []RaceResult `gorm:"foreignKey:MatchID;references:MatchID" json:"results"`
	CreatedAt  time.Time    `json:"created_at"`
}

// TableName specifies the table name for GORM
func (RaceRecord) TableName() string {
	return "race_records"
}

// RaceResult is one participant's line in a RaceRecord.
type RaceResult struct {
	ID           uint   `gorm:"primarykey" json:"-"`
	MatchID      string `gorm:"type:uuid;index;not null" json:"match_id"`
	UserID       uint   `gorm:"index;not null" json:"user_id"`
	Handle       string `json:"handle"`
	Distance     int    `json:"distance"`
	Taps         int    `json:"taps"`
	Rank         int    `json:"rank"` // 0 = no rank (cancelled match)
	DNF          bool   `json:"dnf"`
	RatingBefore int    `json:"rating_before"`
	RatingDelta  int    `json:"rating_delta"`
}

// TableName specifies the table name for GORM
func (RaceResult) TableName() string {
	return "race_results"
}

// LeaderboardEntry represents a single entry in the rating leaderboard
type LeaderboardEntry struct {
	Rank   int    `json:"rank"`
	Handle string `json:"handle"`
	Rating int    `json:"rating"`
}

// LeaderboardResponse represents the paginated leaderboard response
type LeaderboardResponse struct {
	Data   []LeaderboardEntry `json:"data"`
	Offset int                `json:"offset"`
	Limit  int                `json:"limit"`
	Total  int64              `json:"total"`
}

// SearchResponse represents the response for user search
type SearchResponse struct {
	GlobalRank int    `json:"global_rank"`
	Handle     string `json:"handle"`
	Rating     int    `json:"rating"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
