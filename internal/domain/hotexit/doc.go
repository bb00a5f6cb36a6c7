// Package hotexit coordinates capturing editor state from every open window
// and handing it back to freshly started windows after a restart.
//
// Capture is a rendezvous under a deadline. The coordinator subscribes to
// responses, broadcasts a request carrying a fresh capture id, and collects
// at most one response per expected window until all have answered or the
// timeout fires. Responses from older rounds, unknown windows and repeats are
// dropped. A timeout with some responses yields a partial session.
//
// Restore is pull-based. The coordinator stages each window's state under the
// label of the window that will receive it, then sends a payload-free
// restore-start signal. Windows fetch their own state with WindowState and
// report back with MarkWindowComplete. In multi-window restore all states are
// staged before any new window opens.
//
// Collaborators:
//   - EventBus: broadcast, targeted emit and topic subscriptions
//   - WindowManager: open windows and the reserve/open window creation pair
//
// Example Usage:
//
//	coord, err := hotexit.NewCoordinator(bus, windows, hotexit.DefaultOptions(), logger)
//	s, err := coord.Capture(ctx)
//	// ... persist s, restart ...
//	res, err := coord.RestoreMultiWindow(ctx, s)
package hotexit
