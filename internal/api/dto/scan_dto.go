package dto

// SubmitScanRequest enqueues processing for an already-uploaded scan
type SubmitScanRequest struct {
	OriginalKey string `json:"original_key" binding:"required"`
}

// JobCompleteRequest is the worker's completion callback. The field names
// follow the transfer protocol, not the REST conventions: the worker sends
// exactly one of blurredKey or error alongside the original key.
type JobCompleteRequest struct {
	OriginalKey string `json:"originalKey" binding:"required"`
	BlurredKey  string `json:"blurredKey"`
	Error       string `json:"error"`
}

type ListScansRequest struct {
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListScansResponse struct {
	Scans      []ScanDTO `json:"scans"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

type ScanDTO struct {
	OriginalKey  string `json:"original_key"`
	BlurredKey   string `json:"blurred_key,omitempty"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}
