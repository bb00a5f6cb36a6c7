// Package window keeps the registry of editor windows known to the backend.
//
// The host shell registers windows as they open and each window attaches to
// the event transport under its label. Document windows are "main" and
// "doc-N"; anything else is auxiliary and never takes part in hot exit.
//
// New document windows are created in two steps so restore state can be
// staged first: ReserveDocumentWindow hands out the next free doc-N label and
// OpenDocumentWindow asks the Launcher to create it at a cascaded position.
//
// Example Usage:
//
//	windows := window.NewManager(launcher, logger)
//	label, _ := windows.ReserveDocumentWindow()
//	if err := windows.OpenDocumentWindow(ctx, label); err != nil {
//	    windows.ReleaseDocumentWindow(label)
//	}
package window
