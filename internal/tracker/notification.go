package tracker

import "time"

// RunNotification is the message published when a site run finishes.
type RunNotification struct {
	RunID      string    `json:"run_id"`
	Site       string    `json:"site"`
	TargetURL  string    `json:"target_url"`
	Status     RunStatus `json:"status"`
	Stage      Stage     `json:"stage"`
	Reason     string    `json:"reason,omitempty"`
	Records    int       `json:"records"`
	Total      int       `json:"total"`
	Score      float64   `json:"score"`
	Grade      string    `json:"grade,omitempty"`
	SheetURL   string    `json:"sheet_url,omitempty"`
	ArchiveURI string    `json:"archive_uri,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	Duration   string    `json:"duration"`
}

// NewRunNotification summarizes res.
func NewRunNotification(res RunResult) RunNotification {
	return RunNotification{
		RunID:      res.RunID,
		Site:       res.Site,
		TargetURL:  res.TargetURL,
		Status:     res.Status,
		Stage:      res.Stage,
		Reason:     res.Reason(),
		Records:    res.Records,
		Total:      res.Total,
		Score:      res.Score,
		Grade:      res.Grade,
		SheetURL:   res.SheetURL,
		ArchiveURI: res.ArchiveURI,
		StartedAt:  res.StartedAt,
		Duration:   FormatDuration(res.Duration),
	}
}

// Attributes returns routing attributes for message brokers.
func (n RunNotification) Attributes() map[string]string {
	return map[string]string{
		"site":   n.Site,
		"status": string(n.Status),
		"run_id": n.RunID,
	}
}
