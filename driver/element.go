package driver

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// htmlElement is the Element implementation shared by both backends:
// each page match is captured as its outer HTML in a single page
// round-trip, then re-parsed locally so sub-queries need no further
// backend traffic.
type htmlElement struct {
	root *goquery.Selection
	raw  string
}

// NewHTMLElement parses one element's outer HTML into an Element.
func NewHTMLElement(outerHTML string) (Element, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(outerHTML))
	if err != nil {
		return nil, fmt.Errorf("parse element html: %w", err)
	}
	root := doc.Find("body").Children().First()
	if root.Length() == 0 {
		return nil, fmt.Errorf("element html has no parseable node")
	}
	return &htmlElement{root: root, raw: outerHTML}, nil
}

func (e *htmlElement) Text(selector string) *string {
	s := e.root
	if selector != "" {
		s = e.root.Find(selector)
		if s.Length() == 0 {
			return nil
		}
		s = s.First()
	}
	t := s.Text()
	return &t
}

func (e *htmlElement) Attr(selector, attr string) *string {
	s := e.root
	if selector != "" {
		s = e.root.Find(selector)
		if s.Length() == 0 {
			return nil
		}
		s = s.First()
	}
	v, ok := s.Attr(attr)
	if !ok {
		return nil
	}
	return &v
}

func (e *htmlElement) HTML() string {
	return e.raw
}

// elementSeqFromHTML wraps captured outer-HTML fragments in a lazy,
// single-pass ElementSeq. Fragments that fail to parse are skipped.
func elementSeqFromHTML(fragments []string) ElementSeq {
	return func(yield func(Element) bool) {
		for _, frag := range fragments {
			el, err := NewHTMLElement(frag)
			if err != nil {
				continue
			}
			if !yield(el) {
				return
			}
		}
	}
}
