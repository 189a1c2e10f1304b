package dto

import "time"

type PresignUploadRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

func (r PresignUploadRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Filename == "" {
		errors["filename"] = "Filename is required"
	}
	if r.ContentType == "" {
		errors["content_type"] = "Content type is required"
	}
	if r.Size <= 0 {
		errors["size"] = "Size must be a positive byte count"
	}

	return errors
}

type PresignUploadResponse struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	Method    string    `json:"method"`
	ExpiresAt time.Time `json:"expires_at"`
}

type PresignDownloadResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
