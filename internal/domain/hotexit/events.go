package hotexit

import "github.com/GriffinCanCode/hotexit/internal/domain/session"

// Event topics exchanged with document windows
const (
	TopicCaptureRequest  = "hot-exit:capture-request"
	TopicCaptureResponse = "hot-exit:capture-response"
	TopicCaptureTimeout  = "hot-exit:capture-timeout"
	TopicRestoreStart    = "hot-exit:restore-start"
)

// CaptureRequest is broadcast to every window at the start of a round
type CaptureRequest struct {
	CaptureID string `json:"capture_id"`
}

// CaptureResponse is a window's reply to a CaptureRequest
type CaptureResponse struct {
	CaptureID   string              `json:"capture_id"`
	WindowLabel string              `json:"window_label"`
	State       session.WindowState `json:"state"`
}

// CaptureTimeout is broadcast when a round's deadline passes before every window replied
type CaptureTimeout struct {
	CaptureID string   `json:"capture_id"`
	Received  int      `json:"received"`
	Expected  int      `json:"expected"`
	Missing   []string `json:"missing"`
}
