package stops

import (
	"fmt"

	"github.com/samcharles93/parley/internal/chat"
	"github.com/samcharles93/parley/internal/logger"
	"github.com/samcharles93/parley/internal/prompt"
	"github.com/samcharles93/parley/internal/tokenizer"
)

// Options tunes Resolve.
type Options struct {
	// ExtraClosingTags are appended to the family's closing tags.
	ExtraClosingTags []string
	// Strategies overrides DefaultStrategies.
	Strategies []Strategy
	Logger     logger.Logger
}

// Resolve builds the stop vocabulary for family once per session.
func Resolve(tok tokenizer.Tokenizer, family prompt.Family, opts Options) (*Set, error) {
	entry, ok := EntryFor(family)
	if !ok {
		return nil, fmt.Errorf("no stop registry entry for %s", family)
	}
	strategies := opts.Strategies
	if len(strategies) == 0 {
		strategies = DefaultStrategies
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}

	set := NewSet(nil, nil, nil)
	markers := append([]Marker{entry.EOS}, entry.Markers...)
	for _, m := range markers {
		res, ok := resolveMarker(tok, m, strategies)
		if !ok {
			if m.Required {
				return nil, &chat.StopResolutionError{Marker: m.Literal, Tried: strategyNames(strategies)}
			}
			log.Debug("optional marker unresolved", "marker", m.Literal)
			continue
		}
		set.resolved = append(set.resolved, res)
		if m.Stop {
			set.single[res.ID] = struct{}{}
		}
		if m.Control {
			set.control[res.ID] = struct{}{}
		}
		log.Debug("marker resolved", "marker", m.Literal, "id", res.ID, "strategy", res.Strategy)
	}

	if r, ok := tok.(tokenizer.EOSReporter); ok && r.EOSID() >= 0 {
		set.single[r.EOSID()] = struct{}{}
	}

	tags := append(append([]string(nil), entry.ClosingTags...), opts.ExtraClosingTags...)
	for _, tag := range tags {
		ids, err := tok.Encode(tag)
		if err != nil {
			log.Debug("closing tag not encodable", "tag", tag, "error", err)
			continue
		}
		if set.addSequence(ids) {
			log.Debug("stop sequence", "tag", tag, "ids", ids)
		}
	}
	return set, nil
}

func resolveMarker(tok tokenizer.Tokenizer, m Marker, strategies []Strategy) (Resolution, bool) {
	for _, s := range strategies {
		if id, ok := s.Resolve(tok, m); ok {
			return Resolution{Literal: m.Literal, ID: id, Strategy: s.Name}, true
		}
	}
	return Resolution{}, false
}

func strategyNames(strategies []Strategy) []string {
	names := make([]string, len(strategies))
	for i, s := range strategies {
		names[i] = s.Name
	}
	return names
}
