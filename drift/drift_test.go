package drift

import (
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/use-agent/agentroster/config"
)

const listingV1 = `<html><body>
	<div class="grid">
		<a class="agent-card" href="/profile/a-1"><img class="avatar"><h3 class="agent-name">One</h3></a>
		<a class="agent-card" href="/profile/a-2"><img class="avatar"><h3 class="agent-name">Two</h3></a>
	</div>
</body></html>`

func TestFingerprintIgnoresContent(t *testing.T) {
	edited := strings.ReplaceAll(listingV1, "One", "Completely Different Person")
	if d := Distance(Fingerprint(listingV1), Fingerprint(edited)); d != 0 {
		t.Errorf("content edit moved fingerprint by %d bits, want 0", d)
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	if Fingerprint(listingV1) != Fingerprint(listingV1) {
		t.Error("fingerprint not deterministic")
	}
}

func TestFingerprintSeesLayoutRewrite(t *testing.T) {
	rewritten := `<html><body>
		<table class="roster-table">
			<tr class="roster-row"><td class="cell-photo"></td><td class="cell-name">One</td></tr>
			<tr class="roster-row"><td class="cell-photo"></td><td class="cell-name">Two</td></tr>
		</table>
	</body></html>`
	d := Distance(Fingerprint(listingV1), Fingerprint(rewritten))
	if d == 0 {
		t.Error("layout rewrite left fingerprint unchanged")
	}
}

func TestFingerprintEmpty(t *testing.T) {
	if Fingerprint("") != 0 {
		t.Error("empty document should fingerprint to zero")
	}
}

func newTestTracker(threshold int) *Tracker {
	log := slog.New(slog.NewTextHandler(discard{}, nil))
	return NewTracker(config.DriftConfig{Enabled: true, Threshold: threshold}, log)
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestTrackerBaselineNeverDrifts(t *testing.T) {
	tr := newTestTracker(0)
	if _, drifted := tr.Observe("listing", listingV1); drifted {
		t.Error("first observation must establish baseline, not drift")
	}
}

func TestTrackerDetectsDrift(t *testing.T) {
	tr := newTestTracker(0)
	tr.Observe("listing", listingV1)

	// Build a structurally alien page.
	var b strings.Builder
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&b, `<section class="panel-%d"><span class="badge"></span></section>`, i)
	}
	dist, drifted := tr.Observe("listing", b.String())
	if !drifted {
		t.Errorf("expected drift, distance = %d", dist)
	}

	st := tr.Status()
	if !st["listing"].Drifted || st["listing"].Distance != dist {
		t.Errorf("status = %+v, want drifted with distance %d", st["listing"], dist)
	}
}

func TestTrackerKindsAreIndependent(t *testing.T) {
	tr := newTestTracker(0)
	tr.Observe("listing", listingV1)
	if _, drifted := tr.Observe("profile", `<div class="totally-else"></div>`); drifted {
		t.Error("profile baseline must not compare against listing fingerprint")
	}
}

func TestTrackerDisabled(t *testing.T) {
	log := slog.New(slog.NewTextHandler(discard{}, nil))
	tr := NewTracker(config.DriftConfig{Enabled: false, Threshold: 0}, log)
	tr.Observe("listing", listingV1)
	if _, drifted := tr.Observe("listing", `<p class="x"></p>`); drifted {
		t.Error("disabled tracker must never report drift")
	}
}
