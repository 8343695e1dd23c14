package queue

import "time"

// SendEmailJob routes an outbound email through the durable queue instead
// of blocking the caller (typically a plugin host API call) on an SMTP
// round trip.
type SendEmailJob struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
	HTML    bool     `json:"html"`
}

func (SendEmailJob) JobType() string               { return "send_email" }
func (SendEmailJob) Queue() string                 { return "default" }
func (SendEmailJob) DefaultMaxAttempts() int       { return 5 }
func (SendEmailJob) DefaultTimeout() time.Duration { return 30 * time.Second }
