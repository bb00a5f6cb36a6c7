package hotexit

import "context"

// Message is one event delivered to a subscriber
type Message struct {
	Topic string
	// Source is the label of the sending window when the transport knows it
	Source  string
	Payload []byte
}

// Subscription yields messages for one topic until closed
type Subscription interface {
	Messages() <-chan Message
	Close()
}

// EventBus delivers events between the coordinator and document windows
type EventBus interface {
	// Broadcast sends to every connected window
	Broadcast(ctx context.Context, topic string, payload any) error
	// EmitTo sends to a single window
	EmitTo(ctx context.Context, label, topic string, payload any) error
	// Subscribe registers for messages windows send on topic
	Subscribe(topic string) (Subscription, error)
}

// WindowManager is the window registry and creation facility of the host shell.
//
// Creating a document window is split so the caller can stage restore state
// under a label before the window exists:
//
//	label, _ := wm.ReserveDocumentWindow()
//	// stage state for label
//	err := wm.OpenDocumentWindow(ctx, label)
type WindowManager interface {
	// Labels lists every open window, document and auxiliary
	Labels() []string
	Exists(label string) bool
	// ReserveDocumentWindow assigns a fresh document label without opening a window
	ReserveDocumentWindow() (string, error)
	// OpenDocumentWindow starts the window for a reserved label
	OpenDocumentWindow(ctx context.Context, label string) error
	// ReleaseDocumentWindow forgets a reservation that will not be opened
	ReleaseDocumentWindow(label string)
}
