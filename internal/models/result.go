package models

import "time"

// JobResult is the outcome of one platform workflow for one request.
type JobResult struct {
	Platform      Platform  `json:"platform"`
	Success       bool      `json:"success"`
	Message       string    `json:"message,omitempty"`
	Error         string    `json:"error,omitempty"`
	ErrorKind     Kind      `json:"error_kind,omitempty"`
	State         string    `json:"state,omitempty"`
	ImageAttached bool      `json:"image_attached"`
	ScreenshotURL string    `json:"screenshot_url,omitempty"`
	CompletedAt   time.Time `json:"completed_at"`
}

// Succeeded builds a successful result.
func Succeeded(p Platform, state, message string) JobResult {
	return JobResult{
		Platform:    p,
		Success:     true,
		Message:     message,
		State:       state,
		CompletedAt: time.Now().UTC(),
	}
}

// Failed builds a failed result from err.
func Failed(p Platform, state string, err error) JobResult {
	res := JobResult{
		Platform:    p,
		Success:     false,
		State:       state,
		ErrorKind:   KindOf(err),
		CompletedAt: time.Now().UTC(),
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}
