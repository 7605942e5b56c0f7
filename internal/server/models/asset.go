// Package models defines server-side data models persisted in the database.
package models

import "time"

// Asset is the metadata of one stored image. The bytes live in the blob
// store under Key.
type Asset struct {
	PublicID string
	OwnerID  string
	// Key is the blob store key of the content.
	Key      string
	Folder   string
	Tags     []string
	FileName string
	// Format is the short image format, e.g. "png".
	Format      string
	ContentType string
	Width       int
	Height      int
	Bytes       int64
	CreatedAt   time.Time
}

// Descriptor is the upload response body.
type Descriptor struct {
	PublicID  string `json:"public_id"`
	URL       string `json:"url"`
	SecureURL string `json:"secure_url"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Format    string `json:"format"`
	Bytes     int64  `json:"bytes"`
}
