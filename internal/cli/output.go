package cli

import (
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"

	"github.com/GriffinCanCode/hotexit/internal/domain/session"
)

// print writes v to stdout in the selected format
func (o *options) print(v any) error {
	var (
		data []byte
		err  error
	)
	switch o.format {
	case formatJSON:
		data, err = sonic.ConfigStd.MarshalIndent(v, "", "  ")
	default:
		data, err = yaml.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("%s encode: %w", o.format, err)
	}
	if len(data) == 0 || data[len(data)-1] != '\n' {
		data = append(data, '\n')
	}
	_, err = o.out.Write(data)
	return err
}

type windowSummary struct {
	Label     string `yaml:"label" json:"label"`
	Main      bool   `yaml:"main" json:"main"`
	Tabs      int    `yaml:"tabs" json:"tabs"`
	Dirty     int    `yaml:"dirty" json:"dirty"`
	ActiveTab string `yaml:"active_tab,omitempty" json:"active_tab,omitempty"`
}

type sessionSummary struct {
	Path       string          `yaml:"path,omitempty" json:"path,omitempty"`
	Version    int             `yaml:"version" json:"version"`
	AppVersion string          `yaml:"app_version" json:"app_version"`
	SavedAt    string          `yaml:"saved_at" json:"saved_at"`
	Age        string          `yaml:"age" json:"age"`
	Stale      bool            `yaml:"stale" json:"stale"`
	Compatible bool            `yaml:"compatible" json:"compatible"`
	Windows    []windowSummary `yaml:"windows" json:"windows"`
}

func summarize(s *session.SessionData, path string, maxAgeDays int64, now time.Time) sessionSummary {
	out := sessionSummary{
		Path:       path,
		Version:    s.Version,
		AppVersion: s.AppVersion,
		SavedAt:    time.Unix(s.Timestamp, 0).UTC().Format(time.RFC3339),
		Age:        s.Age(now).Truncate(time.Second).String(),
		Stale:      s.IsStaleAt(now, maxAgeDays),
		Compatible: s.IsCompatible(),
		Windows:    make([]windowSummary, 0, len(s.Windows)),
	}
	for _, w := range s.Windows {
		ws := windowSummary{Label: w.WindowLabel, Main: w.IsMainWindow, Tabs: len(w.Tabs)}
		if w.ActiveTabID != nil {
			ws.ActiveTab = *w.ActiveTabID
		}
		for _, tab := range w.Tabs {
			if tab.Document.IsDirty {
				ws.Dirty++
			}
		}
		out.Windows = append(out.Windows, ws)
	}
	return out
}
