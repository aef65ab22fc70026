// Package model defines shared data structures.
package model

import "time"

// Config defines story playback settings after file, env and flag overrides.
type Config struct {
	Mode          string
	Countdown     int
	HeartRateGate bool
	CatalogPath   string
}

// SyncConfig defines how workouts are pushed to the progress endpoint.
type SyncConfig struct {
	BaseURL string
	Mock    bool
	Timeout time.Duration
	Submit  int
}

// HistoryConfig defines filters for run history output.
type HistoryConfig struct {
	Mode  string
	Since *time.Time
	Last  int
}

// Workout is one exercise record. Distance is in meters, Duration in seconds.
type Workout struct {
	ID       int64
	Type     string
	Distance float64
	Duration float64
	EndedAt  time.Time
}

// RunStats captures a finished or abandoned story run.
type RunStats struct {
	ID             string
	StartedAt      time.Time
	EndedAt        time.Time
	Mode           string
	CatalogPath    string
	ElapsedSeconds int
	FinalIndex     int
	FinalSegmentID string
	ReachedFinale  bool
	HRMin          int
	HRMax          int
	HRAvg          float64
}

// RunChoice is an option picked during a run.
type RunChoice struct {
	SegmentID      string
	SegmentIndex   int
	Option         string
	ElapsedSeconds int
}

// RunAggregate summarizes a run for reporting.
type RunAggregate struct {
	ID             string
	EndedAt        time.Time
	Mode           string
	ElapsedSeconds int
	FinalIndex     int
	ReachedFinale  bool
	HRAvg          float64
	Choices        int
}

// Message is one entry of the chat log.
type Message struct {
	ID        string
	UserID    string
	Text      string
	AudioURL  string
	IsUser    bool
	Timestamp time.Time
}
