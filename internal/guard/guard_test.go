package guard

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huglink/huglink/internal/replay"
	"github.com/huglink/huglink/internal/store"
	"github.com/huglink/huglink/model"
)

type fakeIntegrations struct {
	byKey map[string]*model.Integration
}

func (f *fakeIntegrations) GetIntegration(_ context.Context, key string) (*model.Integration, error) {
	return f.byKey[key], nil
}

func newTestGuard(t *testing.T, replayTTL time.Duration) (*Guard, *fakeIntegrations) {
	t.Helper()
	integrations := &fakeIntegrations{byKey: map[string]*model.Integration{
		"acme": {Key: "acme", Secret: "s3cret", Active: true},
		"dead": {Key: "dead", Secret: "s3cret", Active: false},
	}}
	g := New(integrations, replay.NewGuard(store.NewMemoryKV(), replayTTL), 5*time.Minute)
	return g, integrations
}

func signedHeaders(secret string, body []byte) (sig, ts string) {
	ts = fmt.Sprintf("%d", time.Now().UnixMilli())
	return Sign(secret, ts, body), ts
}

func TestAdmitValidEvent(t *testing.T) {
	g, _ := newTestGuard(t, time.Minute)
	body := []byte(`{"event":"device.heartbeat","battery":82}`)
	sig, ts := signedHeaders("s3cret", body)

	err := g.Admit(context.Background(), "acme", body, sig, ts, "evt_1")
	assert.NoError(t, err)
}

func TestAdmitMissingHeaders(t *testing.T) {
	g, _ := newTestGuard(t, time.Minute)
	body := []byte(`{}`)
	sig, ts := signedHeaders("s3cret", body)

	assert.ErrorIs(t, g.Admit(context.Background(), "acme", body, "", ts, "evt_1"), ErrMissingHeaders)
	assert.ErrorIs(t, g.Admit(context.Background(), "acme", body, sig, "", "evt_1"), ErrMissingHeaders)
	assert.ErrorIs(t, g.Admit(context.Background(), "acme", body, sig, ts, ""), ErrMissingHeaders)
	assert.ErrorIs(t, g.Admit(context.Background(), "acme", body, sig, "not-a-number", "evt_1"), ErrMissingHeaders)
}

func TestAdmitStaleTimestamp(t *testing.T) {
	g, _ := newTestGuard(t, time.Minute)
	body := []byte(`{}`)

	old := fmt.Sprintf("%d", time.Now().Add(-6*time.Minute).UnixMilli())
	err := g.Admit(context.Background(), "acme", body, Sign("s3cret", old, body), old, "evt_1")
	assert.ErrorIs(t, err, ErrStaleTimestamp)

	// timestamps too far in the future are just as suspect
	future := fmt.Sprintf("%d", time.Now().Add(6*time.Minute).UnixMilli())
	err = g.Admit(context.Background(), "acme", body, Sign("s3cret", future, body), future, "evt_1")
	assert.ErrorIs(t, err, ErrStaleTimestamp)
}

func TestAdmitUnknownOrInactiveIntegration(t *testing.T) {
	g, _ := newTestGuard(t, time.Minute)
	body := []byte(`{}`)
	sig, ts := signedHeaders("s3cret", body)

	assert.ErrorIs(t, g.Admit(context.Background(), "nope", body, sig, ts, "evt_1"), ErrUnknownIntegration)
	assert.ErrorIs(t, g.Admit(context.Background(), "dead", body, sig, ts, "evt_1"), ErrUnknownIntegration)
}

func TestAdmitBadSignature(t *testing.T) {
	g, _ := newTestGuard(t, time.Minute)
	body := []byte(`{"event":"device.heartbeat"}`)
	sig, ts := signedHeaders("s3cret", body)

	// flipping any byte of the raw body invalidates the signature
	tampered := append([]byte(nil), body...)
	tampered[10] ^= 0x01
	err := g.Admit(context.Background(), "acme", tampered, sig, ts, "evt_1")
	assert.ErrorIs(t, err, ErrBadSignature)

	// a rejected signature must not consume the event id
	err = g.Admit(context.Background(), "acme", body, sig, ts, "evt_1")
	assert.NoError(t, err)
}

func TestAdmitReplayRejected(t *testing.T) {
	g, _ := newTestGuard(t, time.Minute)
	body := []byte(`{"event":"device.heartbeat"}`)
	sig, ts := signedHeaders("s3cret", body)

	require.NoError(t, g.Admit(context.Background(), "acme", body, sig, ts, "evt_9"))

	err := g.Admit(context.Background(), "acme", body, sig, ts, "evt_9")
	assert.ErrorIs(t, err, ErrReplay)
}

func TestAdmitReplayExpiresAfterTTL(t *testing.T) {
	g, _ := newTestGuard(t, 30*time.Millisecond)
	body := []byte(`{"event":"device.heartbeat"}`)
	sig, ts := signedHeaders("s3cret", body)

	require.NoError(t, g.Admit(context.Background(), "acme", body, sig, ts, "evt_ttl"))
	time.Sleep(50 * time.Millisecond)

	// identical payload is no longer considered replayed once the window passes
	assert.NoError(t, g.Admit(context.Background(), "acme", body, sig, ts, "evt_ttl"))
}

func TestSignIsDeterministic(t *testing.T) {
	a := Sign("k", "123", []byte("body"))
	b := Sign("k", "123", []byte("body"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, Sign("k", "124", []byte("body")))
	assert.NotEqual(t, a, Sign("k2", "123", []byte("body")))
}
