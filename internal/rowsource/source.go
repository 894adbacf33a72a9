package rowsource

import (
	"context"
	"fmt"
	"time"

	"zeitslot/internal/eligibility"
	"zeitslot/internal/storage"
	logx "zeitslot/pkg/logx"
)

// Source turns stored rows into engine entries and writes outcomes back.
// Rows are read fresh on every Load.
type Source struct {
	store storage.Store
	loc   *time.Location
	log   logx.Logger
}

func New(store storage.Store, loc *time.Location, log logx.Logger) *Source {
	if loc == nil {
		loc = time.Local
	}
	return &Source{store: store, loc: loc, log: log}
}

// Location is the zone dates and fire states are read in.
func (s *Source) Location() *time.Location { return s.loc }

// Load returns all entries in storage order.
func (s *Source) Load(ctx context.Context) ([]eligibility.Entry, error) {
	rows, err := s.store.ListEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	out := make([]eligibility.Entry, 0, len(rows))
	for _, r := range rows {
		e := s.toEntry(r)
		if e.ScheduledAt.IsZero() && r.ScheduledAt != "" {
			s.log.Debug("unparseable scheduled date", logx.String("entry", r.ID), logx.String("raw", r.ScheduledAt))
		}
		if e.Rule.Kind == eligibility.RuleUnknown {
			s.log.Debug("unrecognised repeat rule", logx.String("entry", r.ID), logx.String("raw", r.Repeat))
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Source) toEntry(r storage.EntryRow) eligibility.Entry {
	return eligibility.Entry{
		ID:          r.ID,
		ScheduledAt: ParseDate(r.ScheduledAt, s.loc),
		Message:     r.Message,
		Rule:        eligibility.ParseRule(r.Repeat),
		Enabled:     ParseEnabled(r.Enabled),
		LastFire:    ParseFireState(r.LastState, s.loc),
	}
}

func (s *Source) MarkSent(ctx context.Context, id string, at time.Time) error {
	return s.mark(ctx, id, eligibility.SentAt(at))
}

func (s *Source) MarkError(ctx context.Context, id, text string) error {
	return s.mark(ctx, id, eligibility.Errored(text))
}

func (s *Source) MarkBlocked(ctx context.Context, id, text string) error {
	return s.mark(ctx, id, eligibility.BlockedBy(text))
}

func (s *Source) mark(ctx context.Context, id string, st eligibility.FireState) error {
	if err := s.store.SetLastState(ctx, id, FormatFireState(st, s.loc)); err != nil {
		return fmt.Errorf("entry %s: set state %s: %w", id, st.Kind, err)
	}
	return nil
}
