package cli

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/hotexit/internal/domain/hotexit"
	"github.com/GriffinCanCode/hotexit/internal/domain/session"
)

// APIError is an error response from the hot-exit server
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("server returned %d (%s): %s", e.Status, e.Code, e.Message)
}

func (o *options) request(cmd *cobra.Command) (*resty.Request, *APIError) {
	client := resty.New().
		SetBaseURL(strings.TrimRight(o.server, "/")).
		SetTimeout(o.timeout).
		SetJSONMarshaler(sonic.ConfigStd.Marshal).
		SetJSONUnmarshaler(sonic.ConfigStd.Unmarshal).
		SetHeader("User-Agent", "hotexitctl/1.0")

	apiErr := &APIError{}
	return client.R().SetContext(cmd.Context()).SetError(apiErr), apiErr
}

func checkResponse(resp *resty.Response, err error, apiErr *APIError) error {
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if !resp.IsError() {
		return nil
	}
	apiErr.Status = resp.StatusCode()
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(resp.String())
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode())
	}
	return apiErr
}

// ============================================================================
// capture
// ============================================================================

func newCaptureCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture every open window through the server",
		Long:  "Ask a running server to collect the state of every document window and save it.",
		Args:  cobra.NoArgs,
		RunE:  opts.runCapture,
	}
	cmd.Flags().Bool("full", false, "Print the full session instead of a summary")
	return cmd
}

func (o *options) runCapture(cmd *cobra.Command, _ []string) error {
	full, _ := cmd.Flags().GetBool("full")

	var body struct {
		Session *session.SessionData `json:"session"`
	}
	req, apiErr := o.request(cmd)
	resp, err := req.SetResult(&body).Post("/hot-exit/capture")
	if err := checkResponse(resp, err, apiErr); err != nil {
		return err
	}
	if body.Session == nil {
		return fmt.Errorf("server returned no session")
	}

	if full {
		return o.print(body.Session)
	}
	return o.print(summarize(body.Session, "", o.cfg.HotExit.MaxAgeDays, time.Now()))
}

// ============================================================================
// restore
// ============================================================================

type restoreResult struct {
	Mode           string   `yaml:"mode" json:"mode"`
	WindowsCreated []string `yaml:"windows_created" json:"windows_created"`
}

func newRestoreCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore a session through the server",
		Long: "Restore the saved session across windows. With --file the given session is " +
			"restored instead; --single stages only its main window.",
		Args: cobra.NoArgs,
		RunE: opts.runRestore,
	}
	cmd.Flags().Bool("force", false, "Restore even if the session is stale")
	cmd.Flags().String("file", "", "Session JSON to restore instead of the saved one")
	cmd.Flags().Bool("single", false, "Stage only the main window (requires --file)")
	return cmd
}

func (o *options) runRestore(cmd *cobra.Command, _ []string) error {
	force, _ := cmd.Flags().GetBool("force")
	file, _ := cmd.Flags().GetString("file")
	single, _ := cmd.Flags().GetBool("single")
	if single && file == "" {
		return fmt.Errorf("--single requires --file")
	}

	req, apiErr := o.request(cmd)
	req.SetQueryParam("force", strconv.FormatBool(force))

	var data *session.SessionData
	if file != "" {
		raw, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read session file: %w", err)
		}
		data = &session.SessionData{}
		if err := sonic.ConfigStd.Unmarshal(raw, data); err != nil {
			return fmt.Errorf("parse session file %s: %w", file, err)
		}
		req.SetBody(data)
	}

	var created hotexit.RestoreResult
	result := restoreResult{}
	var path string
	switch {
	case single:
		result.Mode = "single"
		path = "/hot-exit/restore"
	case data != nil:
		result.Mode = "multi_window"
		path = "/hot-exit/restore/multi-window"
		req.SetResult(&created)
	default:
		result.Mode = "saved"
		path = "/hot-exit/restore/saved"
		req.SetResult(&created)
	}

	resp, err := req.Post(path)
	if err := checkResponse(resp, err, apiErr); err != nil {
		return err
	}
	result.WindowsCreated = created.WindowsCreated
	if result.WindowsCreated == nil {
		result.WindowsCreated = []string{}
	}
	return o.print(result)
}

// ============================================================================
// status
// ============================================================================

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server hot-exit diagnostics",
		Args:  cobra.NoArgs,
		RunE:  opts.runStatus,
	}
}

func (o *options) runStatus(cmd *cobra.Command, _ []string) error {
	var status map[string]any
	req, apiErr := o.request(cmd)
	resp, err := req.SetResult(&status).Get("/hot-exit/status")
	if err := checkResponse(resp, err, apiErr); err != nil {
		return err
	}
	return o.print(status)
}
