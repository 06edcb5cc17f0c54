package types

import "errors"

// Sentinel errors for record validation. Using sentinels allows callers to
// match with errors.Is for reliable error handling.
var (
	// ErrEmptyCapability is returned when featureCapability is empty.
	ErrEmptyCapability = errors.New("featureCapability must not be empty")

	// ErrNoTables is returned when a draft record routes to no table.
	ErrNoTables = errors.New("draft record must route to at least one table")

	// ErrBackwardTransition is returned when a status update would move a
	// feature backward along the lifecycle.
	ErrBackwardTransition = errors.New("status transition moves backward in lifecycle")
)

// Validate checks a FeatureRecord for the minimum required fields.
func (r *FeatureRecord) Validate() error {
	if r.FeatureCapability == "" {
		return ErrEmptyCapability
	}
	return nil
}

// Validate checks a DraftRecord for the minimum required fields.
func (d *DraftRecord) Validate() error {
	if err := d.Record.Validate(); err != nil {
		return err
	}
	if len(d.Tables) == 0 {
		return ErrNoTables
	}
	return nil
}
