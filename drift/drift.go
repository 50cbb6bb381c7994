// Package drift watches for page-structure changes between crawls.
// Selector strategies absorb small markup shifts silently; this package
// makes the larger shifts visible before they become empty extractions.
package drift

import (
	"hash/fnv"
	"log/slog"
	"math/bits"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"github.com/use-agent/agentroster/config"
	"github.com/use-agent/agentroster/models"
)

const shingleWidth = 3

// Fingerprint computes a 64-bit structural fingerprint of a document.
// The DOM's tag-and-class sequence is cut into shingles and feature-
// hashed into a simhash, so content edits barely move the value while
// a layout rewrite flips many bits.
func Fingerprint(htmlStr string) uint64 {
	features := shingles(tagSequence(htmlStr), shingleWidth)
	if len(features) == 0 {
		return 0
	}

	var v [64]int
	for _, f := range features {
		h := fnv.New64a()
		h.Write([]byte(f))
		sum := h.Sum64()
		for i := 0; i < 64; i++ {
			if sum&(1<<uint(i)) != 0 {
				v[i]++
			} else {
				v[i]--
			}
		}
	}

	var fp uint64
	for i := 0; i < 64; i++ {
		if v[i] > 0 {
			fp |= 1 << uint(i)
		}
	}
	return fp
}

// Distance is the Hamming distance between two fingerprints.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// tagSequence flattens a document into its opening tags, each decorated
// with its first class name. Text and attribute values are ignored:
// structure is the signal, content the noise.
func tagSequence(htmlStr string) []string {
	z := html.NewTokenizer(strings.NewReader(htmlStr))
	var seq []string
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return seq
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		tok := z.Token()
		entry := tok.Data
		for _, a := range tok.Attr {
			if a.Key == "class" {
				if fields := strings.Fields(a.Val); len(fields) > 0 {
					entry += "." + fields[0]
				}
				break
			}
		}
		seq = append(seq, entry)
	}
}

func shingles(seq []string, n int) []string {
	if len(seq) == 0 {
		return nil
	}
	if len(seq) < n {
		return []string{strings.Join(seq, ">")}
	}
	out := make([]string, 0, len(seq)-n+1)
	for i := 0; i+n <= len(seq); i++ {
		out = append(out, strings.Join(seq[i:i+n], ">"))
	}
	return out
}

// Tracker remembers the previous fingerprint per page kind ("listing",
// "profile", ...) and reports when the structure moved more than the
// configured threshold since the last crawl.
type Tracker struct {
	threshold int
	enabled   bool
	log       *slog.Logger

	mu   sync.Mutex
	prev map[string]uint64
	last map[string]models.DriftStatus
}

func NewTracker(cfg config.DriftConfig, log *slog.Logger) *Tracker {
	return &Tracker{
		threshold: cfg.Threshold,
		enabled:   cfg.Enabled,
		log:       log,
		prev:      make(map[string]uint64),
		last:      make(map[string]models.DriftStatus),
	}
}

// Status reports the most recent observation per page kind, for the
// health endpoint.
func (t *Tracker) Status() map[string]models.DriftStatus {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]models.DriftStatus, len(t.last))
	for k, v := range t.last {
		out[k] = v
	}
	return out
}

// Observe fingerprints the document and compares it with the previous
// sighting of the same kind. The first sighting establishes the
// baseline and never drifts.
func (t *Tracker) Observe(kind, htmlStr string) (distance int, drifted bool) {
	if t == nil || !t.enabled || htmlStr == "" {
		return 0, false
	}
	fp := Fingerprint(htmlStr)

	t.mu.Lock()
	prev, seen := t.prev[kind]
	t.prev[kind] = fp
	if seen {
		distance = Distance(prev, fp)
		drifted = distance > t.threshold
	}
	t.last[kind] = models.DriftStatus{Distance: distance, Drifted: drifted}
	t.mu.Unlock()

	if !seen {
		return 0, false
	}
	if drifted {
		t.log.Warn("page structure drift detected",
			"kind", kind,
			"distance", distance,
			"threshold", t.threshold)
	}
	return distance, drifted
}
