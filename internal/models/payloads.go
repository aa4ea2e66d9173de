package models

// These structs define the JSON bodies returned by the HTTP surface.

// UploadResponse is the body of a successful POST /upload.
type UploadResponse struct {
	Summary string `json:"summary"`
}

// AskResponse is the body of a successful POST /ask.
type AskResponse struct {
	Answer string `json:"answer"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}
