package module_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/keel/internal/testutils"
	"github.com/aretw0/keel/pkg/domain"
	"github.com/aretw0/keel/pkg/module"
	"github.com/aretw0/keel/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type named struct{ name string }

func factory(name string, built *[]string) module.Factory {
	return func(host ports.Host) (module.Instance, error) {
		*built = append(*built, name)
		return &named{name: name}, nil
	}
}

func TestLoadAll_InConfiguredOrder(t *testing.T) {
	var built []string
	cat := module.NewCatalog()
	cat.Register("a", factory("a", &built))
	cat.Register("b", factory("b", &built))
	cat.Register("c", factory("c", &built))

	set, err := module.LoadAll(cat, []string{"c", "a", "b"}, testutils.NewFakeHost(nil), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"c", "a", "b"}, built)
	assert.Equal(t, []string{"c", "a", "b"}, set.Names())

	inst, ok := set.Get("a")
	require.True(t, ok)
	assert.Equal(t, "a", inst.(*named).name)
}

func TestLoadAll_UnknownModuleStopsLoading(t *testing.T) {
	var built []string
	cat := module.NewCatalog()
	cat.Register("a", factory("a", &built))
	cat.Register("c", factory("c", &built))

	set, err := module.LoadAll(cat, []string{"a", "missing", "c"}, testutils.NewFakeHost(nil), nil)

	var resErr *domain.ModuleResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, "missing", resErr.Module)
	assert.ErrorIs(t, err, domain.ErrModuleResolution)
	assert.Equal(t, []string{"a"}, built, "modules after the failure are not loaded")
	assert.Equal(t, 1, set.Len())
}

func TestLoadAll_EmptyNameIsResolutionError(t *testing.T) {
	_, err := module.LoadAll(module.NewCatalog(), []string{""}, testutils.NewFakeHost(nil), nil)
	assert.ErrorIs(t, err, domain.ErrModuleResolution)
}

func TestLoadAll_FactoryErrorIsInitializationError(t *testing.T) {
	boom := errors.New("boom")
	cat := module.NewCatalog()
	cat.Register("bad", func(host ports.Host) (module.Instance, error) { return nil, boom })

	_, err := module.LoadAll(cat, []string{"bad"}, testutils.NewFakeHost(nil), nil)

	var initErr *domain.ModuleInitializationError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, "bad", initErr.Module)
	assert.ErrorIs(t, err, boom)
}

func TestLoadAll_FactoryPanicIsInitializationError(t *testing.T) {
	cat := module.NewCatalog()
	cat.Register("panicky", func(host ports.Host) (module.Instance, error) { panic("nope") })

	_, err := module.LoadAll(cat, []string{"panicky"}, testutils.NewFakeHost(nil), nil)

	assert.ErrorIs(t, err, domain.ErrModuleInitialization)
	assert.ErrorIs(t, err, domain.ErrFault)
}

func TestLoadAll_DuplicateNameLoadedOnce(t *testing.T) {
	var built []string
	cat := module.NewCatalog()
	cat.Register("a", factory("a", &built))

	set, err := module.LoadAll(cat, []string{"a", "a"}, testutils.NewFakeHost(nil), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, built)
	assert.Equal(t, 1, set.Len())
}

func TestLoadAll_FactoriesRegisterActions(t *testing.T) {
	host := testutils.NewFakeHost(nil)
	var ran []string

	cat := module.NewCatalog()
	cat.Register("worker", func(h ports.Host) (module.Instance, error) {
		h.RegisterLaunchAction(func(ctx context.Context) error {
			ran = append(ran, "launch")
			return nil
		})
		h.RegisterShutdownAction(func(ctx context.Context) error {
			ran = append(ran, "shutdown")
			return nil
		})
		return struct{}{}, nil
	})

	_, err := module.LoadAll(cat, []string{"worker"}, host, nil)
	require.NoError(t, err)

	require.NoError(t, host.RunPhase(context.Background(), domain.PhaseLaunch))
	require.NoError(t, host.RunPhase(context.Background(), domain.PhaseShutdown))
	assert.Equal(t, []string{"launch", "shutdown"}, ran)
}

func TestCatalog_NamesAndDescriptions(t *testing.T) {
	cat := module.NewCatalog()
	cat.Register("zeta", func(ports.Host) (module.Instance, error) { return nil, nil })
	cat.Register("alpha", func(ports.Host) (module.Instance, error) { return nil, nil },
		module.WithDescription("# Alpha"))

	assert.Equal(t, []string{"alpha", "zeta"}, cat.Names())

	entries := cat.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "# Alpha", entries[0].Description)

	_, ok := cat.Lookup("missing")
	assert.False(t, ok)
}
