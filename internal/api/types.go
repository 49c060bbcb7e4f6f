package api

// MultipartUpload is the server's handle for a direct-to-storage upload,
// returned by CreateMultipartUpload.
type MultipartUpload struct {
	UploadID string `json:"uploadId"`
	Key      string `json:"key"`
}

// CompletedPart pairs a part number with the etag storage returned for it.
// The completion call requires parts sorted by part number.
type CompletedPart struct {
	PartNumber int    `json:"partNumber"`
	ETag       string `json:"etag"`
}

// CompleteResult is the final object reference after a multipart completion.
type CompleteResult struct {
	Location string `json:"location"`
	Key      string `json:"key"`
}

// LoginResult is the account identity returned by the claim/login call.
type LoginResult struct {
	Username   string `json:"username"`
	Folder     string `json:"folder"`
	FirstLogin bool   `json:"first_login"`
}

// createMultipartRequest is the body for POST /api/upload/multipart.
type createMultipartRequest struct {
	Filename string            `json:"filename"`
	Type     string            `json:"type"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// signPartResponse is the body for GET /api/upload/multipart/{uploadId}.
type signPartResponse struct {
	URL string `json:"url"`
}

// completeMultipartRequest is the body for
// POST /api/upload/multipart/{uploadId}/complete.
type completeMultipartRequest struct {
	Key   string          `json:"key"`
	Parts []CompletedPart `json:"parts"`
}
