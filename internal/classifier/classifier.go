// Package classifier decides which stored events are relevant downstream.
package classifier

import (
	"context"
	"strings"

	"github.com/telhawk-systems/feedgen/internal/models"
)

// Classifier returns the subset of events that should be delivered.
// Implementations may be slow and may fail; order of the input is preserved.
type Classifier interface {
	Classify(ctx context.Context, events []*models.Event) ([]*models.Event, error)
}

// Func adapts a plain function to Classifier.
type Func func(ctx context.Context, events []*models.Event) ([]*models.Event, error)

func (f Func) Classify(ctx context.Context, events []*models.Event) ([]*models.Event, error) {
	return f(ctx, events)
}

// AcceptAll accepts every event.
type AcceptAll struct{}

func (AcceptAll) Classify(_ context.Context, events []*models.Event) ([]*models.Event, error) {
	return events, nil
}

// Keyword accepts events whose text contains any term, case-insensitively.
// With no terms every event passes the text check. A non-empty Languages
// list additionally requires one of the event's langs to match.
type Keyword struct {
	terms     []string
	languages map[string]struct{}
}

// NewKeyword builds a Keyword classifier. Blank entries are ignored.
func NewKeyword(terms, languages []string) *Keyword {
	k := &Keyword{}
	for _, t := range terms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			k.terms = append(k.terms, t)
		}
	}
	for _, l := range languages {
		if l = strings.ToLower(strings.TrimSpace(l)); l != "" {
			if k.languages == nil {
				k.languages = make(map[string]struct{})
			}
			k.languages[l] = struct{}{}
		}
	}
	return k
}

func (k *Keyword) Classify(_ context.Context, events []*models.Event) ([]*models.Event, error) {
	accepted := make([]*models.Event, 0, len(events))
	for _, e := range events {
		if k.matchLanguage(e) && k.matchText(e) {
			accepted = append(accepted, e)
		}
	}
	return accepted, nil
}

func (k *Keyword) matchText(e *models.Event) bool {
	if len(k.terms) == 0 {
		return true
	}
	text := strings.ToLower(e.Text)
	for _, t := range k.terms {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}

func (k *Keyword) matchLanguage(e *models.Event) bool {
	if len(k.languages) == 0 {
		return true
	}
	for _, l := range e.Langs {
		if _, ok := k.languages[strings.ToLower(l)]; ok {
			return true
		}
		// "en-US" matches an "en" allow-list entry
		if base, _, found := strings.Cut(l, "-"); found {
			if _, ok := k.languages[strings.ToLower(base)]; ok {
				return true
			}
		}
	}
	return false
}
