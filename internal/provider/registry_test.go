package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	name    string
	kind    Kind
	initErr error
	healthy bool
	closed  bool
	inited  bool
}

func (s *stubProvider) Name() string { return s.name }
func (s *stubProvider) Kind() Kind   { return s.kind }
func (s *stubProvider) Init(ctx context.Context) error {
	s.inited = true
	return s.initErr
}
func (s *stubProvider) Send(ctx context.Context, msg string, history []Message) (*Response, error) {
	return &Response{Content: "ok", Provider: s.name}, nil
}
func (s *stubProvider) Stream(ctx context.Context, msg string, history []Message, onDelta DeltaFunc) error {
	onDelta("ok")
	return nil
}
func (s *stubProvider) Models(ctx context.Context) ([]string, error) {
	return []string{s.name + "-model"}, nil
}
func (s *stubProvider) Healthy(ctx context.Context) bool { return s.healthy }
func (s *stubProvider) Close() error {
	s.closed = true
	return nil
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()

	a := &stubProvider{name: "alpha", kind: KindAPI}
	b := &stubProvider{name: "beta", kind: KindWeb}

	require.NoError(t, r.Register(a, false))
	require.NoError(t, r.Register(b, false))

	got, err := r.Get("beta")
	require.NoError(t, err)
	assert.Equal(t, b, got)

	// First registered becomes the default.
	got, err = r.Get("")
	require.NoError(t, err)
	assert.Equal(t, a, got)

	_, err = r.Get("missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRegistryDuplicate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubProvider{name: "alpha"}, false))

	err := r.Register(&stubProvider{name: "alpha"}, false)
	assert.True(t, errors.Is(err, ErrAlreadyExists))
}

func TestRegistryExplicitDefault(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubProvider{name: "alpha"}, false))
	require.NoError(t, r.Register(&stubProvider{name: "beta"}, true))

	assert.Equal(t, "beta", r.Default())

	got, err := r.Get("")
	require.NoError(t, err)
	assert.Equal(t, "beta", got.Name())
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubProvider{name: "alpha"}, false))
	require.NoError(t, r.Register(&stubProvider{name: "beta"}, false))

	p, err := r.Remove("alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", p.Name())
	assert.Equal(t, []string{"beta"}, r.Names())

	// Default falls over to the remaining provider.
	assert.Equal(t, "beta", r.Default())

	_, err = r.Remove("alpha")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRegistryOrder(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"c", "a", "b"} {
		require.NoError(t, r.Register(&stubProvider{name: name}, false))
	}
	assert.Equal(t, []string{"c", "a", "b"}, r.Names())

	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, "c", list[0].Name())
	assert.Equal(t, 3, r.Count())
}

func TestRegistryInitAll(t *testing.T) {
	r := NewRegistry()
	ok := &stubProvider{name: "ok"}
	bad := &stubProvider{name: "bad", initErr: errors.New("boom")}
	require.NoError(t, r.Register(ok, false))
	require.NoError(t, r.Register(bad, false))

	err := r.InitAll(context.Background(), zerolog.Nop())
	assert.Error(t, err)
	assert.True(t, ok.inited)
	assert.True(t, bad.inited)
}

func TestRegistryHealthAndClose(t *testing.T) {
	r := NewRegistry()
	up := &stubProvider{name: "up", healthy: true}
	down := &stubProvider{name: "down"}
	require.NoError(t, r.Register(up, false))
	require.NoError(t, r.Register(down, false))

	health := r.HealthAll(context.Background())
	assert.True(t, health["up"])
	assert.False(t, health["down"])

	r.CloseAll(zerolog.Nop())
	assert.True(t, up.closed)
	assert.True(t, down.closed)
}
