// Package homegraph defines the outbound port to Google's HomeGraph
// service. The real API calls live outside this backend; the port keeps
// the call sites explicit so a production reporter can be dropped in.
package homegraph

import "context"

// Reporter pushes device state and lifecycle events to the smart-home
// vendor. All methods are fire-and-forget from the caller's point of
// view: an error is logged, never surfaced to the originating request.
type Reporter interface {
	// ReportState notifies the vendor that deviceID now has state.
	ReportState(ctx context.Context, userID, deviceID string, state map[string]any) error
	// RequestSync asks the vendor to re-SYNC the user's device list.
	RequestSync(ctx context.Context, userID string) error
	// DeleteAgentUser tells the vendor the user unlinked their account.
	DeleteAgentUser(ctx context.Context, userID string) error
}
