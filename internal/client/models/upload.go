package models

import "time"

// UploadResult is the asset store's descriptor for an uploaded file.
type UploadResult struct {
	ID        string `json:"public_id"`
	URL       string `json:"url"`
	SecureURL string `json:"secure_url"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Format    string `json:"format"`
	Bytes     int64  `json:"bytes"`
}

// UploadRecord is a descriptor kept in the local history.
type UploadRecord struct {
	UploadResult
	FileName   string
	UploadedAt time.Time
	Deleted    bool
}
