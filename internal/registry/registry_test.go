package registry_test

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vfactory/vfactory/internal/registry"
)

type fakeService struct {
	name     string
	startErr error
	stopErr  error
	calls    *[]string
}

func (f *fakeService) Start() error {
	*f.calls = append(*f.calls, "start:"+f.name)
	return f.startErr
}

func (f *fakeService) Stop() error {
	*f.calls = append(*f.calls, "stop:"+f.name)
	return f.stopErr
}

func TestStartAll_StartsInRegistrationOrder(t *testing.T) {
	var calls []string
	r := registry.New(zerolog.Nop())
	r.Register("a", &fakeService{name: "a", calls: &calls})
	r.Register("b", &fakeService{name: "b", calls: &calls})
	r.Register("c", &fakeService{name: "c", calls: &calls})

	require.NoError(t, r.StartAll())
	assert.Equal(t, []string{"start:a", "start:b", "start:c"}, calls)
}

func TestStartAll_RollsBackStartedServices(t *testing.T) {
	var calls []string
	bootErr := errors.New("boot failure")

	r := registry.New(zerolog.Nop())
	r.Register("a", &fakeService{name: "a", calls: &calls})
	r.Register("b", &fakeService{name: "b", calls: &calls, startErr: bootErr})
	r.Register("c", &fakeService{name: "c", calls: &calls})

	err := r.StartAll()
	require.ErrorIs(t, err, bootErr)
	assert.Equal(t, []string{"start:a", "start:b", "stop:a"}, calls)
}

func TestStopAll_StopsInReverseOrder(t *testing.T) {
	var calls []string
	r := registry.New(zerolog.Nop())
	r.Register("a", &fakeService{name: "a", calls: &calls})
	r.Register("b", &fakeService{name: "b", calls: &calls})

	require.NoError(t, r.StartAll())
	calls = calls[:0]

	require.NoError(t, r.StopAll())
	assert.Equal(t, []string{"stop:b", "stop:a"}, calls)
}

func TestStopAll_CollectsFailures(t *testing.T) {
	var calls []string
	stopErr := errors.New("stuck")

	r := registry.New(zerolog.Nop())
	r.Register("a", &fakeService{name: "a", calls: &calls, stopErr: stopErr})
	r.Register("b", &fakeService{name: "b", calls: &calls})

	err := r.StopAll()
	require.ErrorIs(t, err, stopErr)
	assert.Equal(t, []string{"stop:b", "stop:a"}, calls)
}

func TestRegister_IgnoresDuplicates(t *testing.T) {
	var calls []string
	r := registry.New(zerolog.Nop())
	r.Register("a", &fakeService{name: "first", calls: &calls})
	r.Register("a", &fakeService{name: "second", calls: &calls})

	require.NoError(t, r.StartAll())
	assert.Equal(t, []string{"start:first"}, calls)
}
