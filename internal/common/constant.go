package common

// AuthorizationHeaderName carries the bearer token on asset store requests.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix precedes the JWT in the Authorization header.
const BearerPrefix = "Bearer "

// Asset store routes, relative to the store's base URL.
const (
	UploadPath = "/v1/assets"
	DeletePath = "/v1/assets/delete"
)

// Multipart field names of the upload request.
const (
	FieldFile   = "file"
	FieldFolder = "folder"
	FieldTags   = "tags"
)
