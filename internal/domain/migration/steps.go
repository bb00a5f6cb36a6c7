package migration

import "github.com/GriffinCanCode/hotexit/internal/domain/session"

// v1ToV2 adds the cross-mode undo/redo stacks to every document
func v1ToV2(s *session.SessionData) (*session.SessionData, error) {
	for wi := range s.Windows {
		tabs := s.Windows[wi].Tabs
		for ti := range tabs {
			doc := &tabs[ti].Document
			if doc.UndoHistory == nil {
				doc.UndoHistory = []session.HistoryCheckpoint{}
			}
			if doc.RedoHistory == nil {
				doc.RedoHistory = []session.HistoryCheckpoint{}
			}
		}
	}
	s.Version = 2
	return s, nil
}
