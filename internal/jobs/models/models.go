package models

import (
	"encoding/json"
	"time"

	"relay/pkg/domain"
)

// Status is the lifecycle state shared by a Job and its AuditRecord.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusErrored   Status = "errored"
)

func (s Status) String() string { return string(s) }

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusErrored:
		return true
	}
	return false
}

// Job is the wire-level unit of work handed from a dispatcher to a listener.
// UID is empty until the dispatcher persists the audit record and becomes the
// correlation key between dispatch and completion.
type Job struct {
	App     string           `json:"app"`
	UID     string           `json:"uid,omitempty"`
	Owner   domain.Principal `json:"owner"`
	Action  string           `json:"action"`
	Payload json.RawMessage  `json:"payload,omitempty"`
	Files   json.RawMessage  `json:"files,omitempty"`
	Status  Status           `json:"status"`
	// Logging is nil when the producer left it out, which means enabled.
	Logging *bool `json:"logging,omitempty"`
}

// LoggingEnabled reports whether the job must be audited. Only an explicit
// false disables auditing.
func (j *Job) LoggingEnabled() bool {
	return j.Logging == nil || *j.Logging
}

// WithoutLogging marks the job as not audited.
func (j *Job) WithoutLogging() *Job {
	off := false
	j.Logging = &off
	return j
}

// Response is what a listener reports for one delivery of a job.
type Response struct {
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Failed reports whether the response carries an error.
func (r Response) Failed() bool {
	return r.Error != ""
}

// StatusOf maps a response to the status it implies for a single delivery.
func StatusOf(r Response) Status {
	if r.Failed() {
		return StatusErrored
	}
	return StatusCompleted
}

// AuditRecord is the durable trail of one dispatched job.
//
// Response is set by single-response completion and overwritten on every call.
// Responses is appended to by multi-response completion; its order carries no
// meaning.
type AuditRecord struct {
	ID        string          `json:"id"`
	Queue     string          `json:"queue"`
	Job       json.RawMessage `json:"job"`
	Status    Status          `json:"status"`
	Response  *Response       `json:"response,omitempty"`
	Responses []Response      `json:"responses,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// AggregateStatus folds an incoming multi-response into the current record
// status. Errored is sticky; otherwise the incoming status wins.
func AggregateStatus(current, incoming Status, resp Response) Status {
	if current == StatusErrored || resp.Failed() {
		return StatusErrored
	}
	return incoming
}
