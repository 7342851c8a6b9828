package dto

import "github.com/eshaffer321/reconciler/internal/domain/records"

// Default and maximum page sizes for list endpoints.
const (
	DefaultLogLimit = 50
	DefaultRunLimit = 20
	MaxListLimit    = 500
)

// ImportManualRequest is the body of POST /api/users/{userID}/manual.
// Records without a user id inherit the one in the path.
type ImportManualRequest struct {
	Records []records.ManualRecord `json:"records"`
}

// ImportExternalRequest is the body of POST /api/users/{userID}/external.
type ImportExternalRequest struct {
	Records []records.ExternalRecord `json:"records"`
}
