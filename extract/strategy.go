package extract

import (
	"context"
	"fmt"

	"github.com/andybalholm/cascadia"

	"github.com/use-agent/agentroster/driver"
)

// Strategy is an ordered list of selector alternatives for one field.
// The first selector is the preferred markup; the rest are fallbacks
// tried in order until one yields a non-empty value.
type Strategy struct {
	Field     string
	Selectors []string
}

// Validate compiles every selector, catching typos at startup instead
// of mid-crawl. ParseGroup, not Parse: several strategies are
// comma-separated selector groups.
func (s Strategy) Validate() error {
	for _, sel := range s.Selectors {
		if _, err := cascadia.ParseGroup(sel); err != nil {
			return fmt.Errorf("field %s: selector %q: %w", s.Field, sel, err)
		}
	}
	return nil
}

// Text tries each selector against the live page and returns the first
// non-empty cleaned text, or nil when every strategy misses.
func (s Strategy) Text(ctx context.Context, d driver.Driver) (*string, error) {
	for _, sel := range s.Selectors {
		v, err := d.ExtractText(ctx, sel)
		if err != nil {
			return nil, err
		}
		if cleaned := CleanPtr(v); cleaned != nil {
			return cleaned, nil
		}
	}
	return nil, nil
}

// Attr is Text for an attribute value.
func (s Strategy) Attr(ctx context.Context, d driver.Driver, attr string) (*string, error) {
	for _, sel := range s.Selectors {
		v, err := d.ExtractAttribute(ctx, sel, attr)
		if err != nil {
			return nil, err
		}
		if cleaned := CleanPtr(v); cleaned != nil {
			return cleaned, nil
		}
	}
	return nil, nil
}

// TextIn applies the strategy inside one captured element.
func (s Strategy) TextIn(el driver.Element) *string {
	for _, sel := range s.Selectors {
		if cleaned := CleanPtr(el.Text(sel)); cleaned != nil {
			return cleaned
		}
	}
	return nil
}

// AttrIn applies the strategy for an attribute inside one captured
// element.
func (s Strategy) AttrIn(el driver.Element, attr string) *string {
	for _, sel := range s.Selectors {
		if cleaned := CleanPtr(el.Attr(sel, attr)); cleaned != nil {
			return cleaned
		}
	}
	return nil
}

// ValidateAll compiles a set of strategies, returning the first error.
func ValidateAll(strategies ...Strategy) error {
	for _, s := range strategies {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}
