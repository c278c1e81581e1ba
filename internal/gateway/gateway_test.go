package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"duebell/pkg/logx"
)

// fakeDriver is a scriptable Driver for gateway tests.
type fakeDriver struct {
	mu        sync.Mutex
	supported bool
	perm      PermissionState
	promptTo  PermissionState
	sendID    string
	sendErr   error

	prompts int
	sent    []Message
}

func (d *fakeDriver) Name() string    { return "fake" }
func (d *fakeDriver) Supported() bool { return d.supported }

func (d *fakeDriver) Permission() PermissionState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.perm
}

func (d *fakeDriver) RequestPermission(ctx context.Context) PermissionState {
	_ = ctx
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prompts++
	d.perm = d.promptTo
	return d.perm
}

func (d *fakeDriver) Send(ctx context.Context, m Message) (string, error) {
	_ = ctx
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, m)
	return d.sendID, d.sendErr
}

func (d *fakeDriver) sentCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

func newGateway(d *fakeDriver) *Gateway {
	return New(Config{RatePerSec: 100}, d, logx.Nop())
}

func TestPermissionUnsupportedIsDenied(t *testing.T) {
	t.Parallel()
	g := newGateway(&fakeDriver{supported: false, perm: PermissionGranted})
	if got := g.Permission(); got != PermissionDenied {
		t.Fatalf("Permission = %q, want denied on unsupported platform", got)
	}
	if got := g.RequestPermission(context.Background()); got != PermissionDenied {
		t.Fatalf("RequestPermission = %q, want denied", got)
	}
}

func TestRequestPermissionShortCircuitsWhenGranted(t *testing.T) {
	t.Parallel()
	d := &fakeDriver{supported: true, perm: PermissionGranted}
	g := newGateway(d)
	if got := g.RequestPermission(context.Background()); got != PermissionGranted {
		t.Fatalf("RequestPermission = %q, want granted", got)
	}
	if d.prompts != 0 {
		t.Fatalf("prompts = %d, want 0 when already granted", d.prompts)
	}
}

func TestRequestPermissionPrompts(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		to   PermissionState
	}{
		{"granted", PermissionGranted},
		{"denied", PermissionDenied},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			d := &fakeDriver{supported: true, perm: PermissionDefault, promptTo: tc.to}
			g := newGateway(d)
			if got := g.RequestPermission(context.Background()); got != tc.to {
				t.Fatalf("RequestPermission = %q, want %q", got, tc.to)
			}
			if d.prompts != 1 {
				t.Fatalf("prompts = %d, want 1", d.prompts)
			}
		})
	}
}

func TestDeliverRequiresGrant(t *testing.T) {
	t.Parallel()
	for _, perm := range []PermissionState{PermissionDefault, PermissionDenied} {
		d := &fakeDriver{supported: true, perm: perm}
		g := newGateway(d)
		if got := g.Deliver(context.Background(), "t", "b", "tag"); got != nil {
			t.Fatalf("Deliver with perm %q = %+v, want nil", perm, got)
		}
		if d.sentCount() != 0 {
			t.Fatalf("driver Send called with perm %q", perm)
		}
	}
}

func TestDeliverTagReplacement(t *testing.T) {
	t.Parallel()
	d := &fakeDriver{supported: true, perm: PermissionGranted, sendID: "42"}
	g := newGateway(d)

	if got := g.Deliver(context.Background(), "t", "b", "task:1"); got == nil || got.PlatformID != "42" {
		t.Fatalf("first Deliver = %+v, want platform id 42", got)
	}
	if d.sent[0].ReplaceID != "" {
		t.Fatalf("first delivery carried ReplaceID %q, want empty", d.sent[0].ReplaceID)
	}

	g.Deliver(context.Background(), "t", "b", "task:1")
	if d.sent[1].ReplaceID != "42" {
		t.Fatalf("second delivery ReplaceID = %q, want 42", d.sent[1].ReplaceID)
	}

	// A different tag never inherits another tag's platform id.
	g.Deliver(context.Background(), "t", "b", "task:2")
	if d.sent[2].ReplaceID != "" {
		t.Fatalf("unrelated tag got ReplaceID %q", d.sent[2].ReplaceID)
	}
}

func TestDeliverDriverErrorReturnsNil(t *testing.T) {
	t.Parallel()
	d := &fakeDriver{supported: true, perm: PermissionGranted, sendErr: errors.New("boom")}
	g := newGateway(d)
	if got := g.Deliver(context.Background(), "t", "b", "tag"); got != nil {
		t.Fatalf("Deliver = %+v, want nil on driver error", got)
	}
}

func TestDeliverEmptyPlatformIDClearsTag(t *testing.T) {
	t.Parallel()
	d := &fakeDriver{supported: true, perm: PermissionGranted, sendID: "7"}
	g := newGateway(d)

	g.Deliver(context.Background(), "t", "b", "tag")

	// Driver stops returning ids (e.g. darwin); the stale mapping must go.
	d.mu.Lock()
	d.sendID = ""
	d.mu.Unlock()
	g.Deliver(context.Background(), "t", "b", "tag")

	g.Deliver(context.Background(), "t", "b", "tag")
	if last := d.sent[2].ReplaceID; last != "" {
		t.Fatalf("ReplaceID = %q after id mapping was cleared, want empty", last)
	}
}

func TestDeliverRateLimit(t *testing.T) {
	t.Parallel()
	d := &fakeDriver{supported: true, perm: PermissionGranted, sendID: "1"}
	g := New(Config{RatePerSec: 1, SendTimeout: time.Second}, d, logx.Nop())

	first := g.Deliver(context.Background(), "t", "b", "a")
	second := g.Deliver(context.Background(), "t", "b", "b")
	if first == nil {
		t.Fatal("first Deliver dropped, want allowed")
	}
	if second != nil {
		t.Fatalf("second Deliver = %+v, want nil (over budget)", second)
	}
	if d.sentCount() != 1 {
		t.Fatalf("driver Send called %d times, want 1", d.sentCount())
	}
}

func TestNoopDriver(t *testing.T) {
	t.Parallel()
	g := New(Config{}, NewNoop(), logx.Nop())
	if g.Supported() {
		t.Fatal("noop driver reports supported")
	}
	if got := g.Permission(); got != PermissionDenied {
		t.Fatalf("Permission = %q, want denied", got)
	}
	if got := g.Deliver(context.Background(), "t", "b", ""); got != nil {
		t.Fatalf("Deliver = %+v, want nil", got)
	}
}
