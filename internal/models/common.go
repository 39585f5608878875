package models

// Program identifies one of the two independent educational offerings.
type Program string

const (
	ProgramMahad Program = "MAHAD"
	ProgramDugsi Program = "DUGSI"
)

// Valid reports whether the program value is known.
func (p Program) Valid() bool {
	return p == ProgramMahad || p == ProgramDugsi
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// BulkOperationMode controls failure handling for bulk writes.
type BulkOperationMode string

const (
	BulkModeAtomic         BulkOperationMode = "atomic"
	BulkModePartialOnError BulkOperationMode = "partial_on_error"
)

// BulkItemError reports a single failed item in a best-effort bulk operation.
type BulkItemError struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}
