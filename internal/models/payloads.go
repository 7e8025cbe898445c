package models

// These structs define the JSON payloads exchanged between the HTTP layer
// and polling clients.

// UploadResponse is returned by the upload endpoint once the workflow has
// been started. The workflow itself is not awaited; the task id is the only
// handle the caller gets.
type UploadResponse struct {
	Message string `json:"message"`
	TaskID  string `json:"task_id"`
}

// LogsResponse is the payload of the per-task log endpoint.
type LogsResponse struct {
	TaskID string     `json:"task_id"`
	Status TaskStatus `json:"status"`
	Logs   []LogEntry `json:"logs"`
}

// ErrorResponse is the uniform error body for all endpoints.
type ErrorResponse struct {
	Detail string `json:"detail"`
}
