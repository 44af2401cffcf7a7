package export

import (
	"errors"
	"fmt"

	"github.com/maswad702/Database-Extraction-Chatbot/internal/config"
)

// ErrNoSink is returned by NewSink when exporting is turned off.
var ErrNoSink = errors.New("export disabled")

// NewSink builds the sink the configuration names. The returned close
// function releases its resources and is never nil.
func NewSink(cfg *config.Config) (Sink, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Export.Sink {
	case "", "none":
		return nil, noop, ErrNoSink

	case "sqlite":
		path, err := cfg.DatabasePath()
		if err != nil {
			return nil, noop, err
		}
		db, err := OpenDB(path)
		if err != nil {
			return nil, noop, err
		}
		return NewSQLiteSink(db), db.Close, nil

	case "airtable":
		at := cfg.Export.Airtable
		if at.BaseID == "" || at.APIKey == "" {
			return nil, noop, errors.New("airtable export needs base_id and api_key")
		}
		return NewAirtableSink(at.BaseURL, at.BaseID, at.Table, at.APIKey), noop, nil

	default:
		return nil, noop, fmt.Errorf("unknown export sink %q", cfg.Export.Sink)
	}
}
