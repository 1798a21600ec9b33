package loader_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/huitest/liota/internal/loader"
	"github.com/huitest/liota/internal/pkgtypes"
)

type fakePackage struct{}

func (fakePackage) Run(context.Context, pkgtypes.Registrar) error { return nil }
func (fakePackage) CleanUp(context.Context) error                 { return nil }

type fakeModule struct{}

func (fakeModule) NewInstance() (pkgtypes.Package, error) { return fakePackage{}, nil }
func (fakeModule) Dependencies() ([]string, bool, error)  { return nil, false, nil }

func TestStaticLoaderResolvesByStem(t *testing.T) {
	l := loader.NewStaticLoader(map[string]pkgtypes.Module{
		"gateway": fakeModule{},
	})

	mod, err := l.Load("/var/lib/packages/gateway.src", pkgtypes.ExtSource)
	require.NoError(t, err)
	require.NotNil(t, mod)

	_, err = l.Load("/var/lib/packages/missing.src", pkgtypes.ExtSource)
	require.Error(t, err)
}
