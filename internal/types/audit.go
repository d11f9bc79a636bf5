package types

import (
	"fmt"
	"time"
)

// Audit is one brand's submitted audit record. Snapshot is the structured
// document rules evaluate against; workflow generation deep-copies it so
// later audit edits never retroactively change a past generation.
type Audit struct {
	ID        string                 `json:"id"`
	BrandName string                 `json:"brand_name"`
	Snapshot  map[string]interface{} `json:"snapshot"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// Validate checks if the audit has valid field values
func (a *Audit) Validate() error {
	if a.BrandName == "" {
		return fmt.Errorf("brand_name is required")
	}
	if a.Snapshot == nil {
		return fmt.Errorf("snapshot is required")
	}
	return nil
}
