package driver

import "testing"

const cardHTML = `<div class="agent-card" data-id="a-102">
	<img class="avatar" src="/img/a-102.jpg" alt="Jane Cooper">
	<h3 class="agent-name">Jane Cooper</h3>
	<a href="/profile/a-102">View profile</a>
	<span class="phone">(512) 555-0173</span>
</div>`

func TestElementTextSelf(t *testing.T) {
	el, err := NewHTMLElement(`<span class="phone">(512) 555-0173</span>`)
	if err != nil {
		t.Fatalf("NewHTMLElement: %v", err)
	}
	got := el.Text("")
	if got == nil || *got != "(512) 555-0173" {
		t.Errorf("Text(\"\") = %v, want (512) 555-0173", got)
	}
}

func TestElementSubQueries(t *testing.T) {
	el, err := NewHTMLElement(cardHTML)
	if err != nil {
		t.Fatalf("NewHTMLElement: %v", err)
	}

	if got := el.Text(".agent-name"); got == nil || *got != "Jane Cooper" {
		t.Errorf("Text(.agent-name) = %v, want Jane Cooper", got)
	}
	if got := el.Attr("a", "href"); got == nil || *got != "/profile/a-102" {
		t.Errorf("Attr(a, href) = %v, want /profile/a-102", got)
	}
	if got := el.Attr("", "data-id"); got == nil || *got != "a-102" {
		t.Errorf("Attr(\"\", data-id) = %v, want a-102", got)
	}
	if got := el.Attr("img", "alt"); got == nil || *got != "Jane Cooper" {
		t.Errorf("Attr(img, alt) = %v, want Jane Cooper", got)
	}
}

func TestElementAbsenceIsNil(t *testing.T) {
	el, err := NewHTMLElement(cardHTML)
	if err != nil {
		t.Fatalf("NewHTMLElement: %v", err)
	}

	if got := el.Text(".license"); got != nil {
		t.Errorf("Text on missing selector = %q, want nil", *got)
	}
	if got := el.Attr("img", "data-src"); got != nil {
		t.Errorf("Attr on missing attribute = %q, want nil", *got)
	}
	if got := el.Attr(".license", "href"); got != nil {
		t.Errorf("Attr on missing selector = %q, want nil", *got)
	}
}

func TestElementHTMLRoundTrip(t *testing.T) {
	el, err := NewHTMLElement(cardHTML)
	if err != nil {
		t.Fatalf("NewHTMLElement: %v", err)
	}
	if el.HTML() != cardHTML {
		t.Errorf("HTML() did not round-trip the captured fragment")
	}
}

func TestNewHTMLElementRejectsEmpty(t *testing.T) {
	if _, err := NewHTMLElement(""); err == nil {
		t.Error("expected error for empty fragment")
	}
}

func TestElementSeqOrderAndEarlyStop(t *testing.T) {
	frags := []string{
		`<li id="one">1</li>`,
		`<li id="two">2</li>`,
		`<li id="three">3</li>`,
	}
	seq := elementSeqFromHTML(frags)

	var ids []string
	for el := range seq {
		id := el.Attr("", "id")
		if id == nil {
			t.Fatal("element missing id")
		}
		ids = append(ids, *id)
		if len(ids) == 2 {
			break
		}
	}
	if len(ids) != 2 || ids[0] != "one" || ids[1] != "two" {
		t.Errorf("got %v, want [one two]", ids)
	}
}

func TestElementSeqSkipsUnparseable(t *testing.T) {
	seq := elementSeqFromHTML([]string{`<li>ok</li>`, ``, `<li>also ok</li>`})
	count := 0
	for range seq {
		count++
	}
	if count != 2 {
		t.Errorf("yielded %d elements, want 2", count)
	}
}
