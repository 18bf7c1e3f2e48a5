package pluginloader

import (
	"testing"

	"github.com/online-daq/goconf/backend"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct{ backend.Backend }

func TestLoadRegisteredBackend(t *testing.T) {
	Register("faketest", func(params string) (backend.Backend, error) {
		require.Equal(t, "db1", params)
		return &fakeBackend{}, nil
	})

	l := New("")
	be, err := l.Load("faketest:db1", "")
	require.NoError(t, err)
	require.NotNil(t, be)
}

func TestLoadEmptySpecNoEnv(t *testing.T) {
	l := New("")
	t.Setenv("GOCONF_BACKEND_TEST_EMPTY", "")
	_, err := l.Load("", "GOCONF_BACKEND_TEST_EMPTY")
	require.Error(t, err)
}

func TestLoadMissingModule(t *testing.T) {
	l := New("/nonexistent-dir")
	_, err := l.Load("nosuchbackend", "")
	require.Error(t, err)
	_, ok := err.(interface{ Error() string })
	require.True(t, ok)
}
