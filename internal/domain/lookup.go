package domain

import "context"

// LookupResult is the directory's answer for one callsign. Either coordinate
// may be absent.
type LookupResult struct {
	Call      string
	Latitude  *float64
	Longitude *float64
}

// Lookup resolves a callsign to optional coordinates.
type Lookup interface {
	// Lookup returns the directory entry for call. Failures wrap
	// ErrLookupTransport or ErrLookupDecode, or are a *RemoteError.
	Lookup(ctx context.Context, call string) (LookupResult, error)
}

// Enrich combines a contact with its lookup result. Each missing coordinate
// defaults to 0.0 on its own; callers check UnknownLocation for the sentinel.
func Enrich(record ContactRecord, result LookupResult) EnrichedContact {
	out := EnrichedContact{
		Call: record.Call,
		Band: record.Band,
	}
	if result.Latitude != nil {
		out.Latitude = *result.Latitude
	}
	if result.Longitude != nil {
		out.Longitude = *result.Longitude
	}
	return out
}
