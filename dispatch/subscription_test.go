package dispatch

import (
	"testing"

	"github.com/online-daq/goconf/change"
	"github.com/stretchr/testify/require"
)

func TestFilteringClassVsObjectSubscription(t *testing.T) {
	reg := NewSubscriberRegistry()

	var gotA, gotB []change.Change
	reg.Subscribe(Criteria{Classes: map[string]struct{}{"Dummy": {}}}, nil, func(b []change.Change) { gotA = b })
	reg.Subscribe(Criteria{Objects: map[string]map[string]struct{}{"Dummy": {"#X": {}}}}, nil, func(b []change.Change) { gotB = b })

	batch := []change.Change{{Class: "Dummy", Created: []string{"#X", "#Y"}, Modified: []string{"#X"}, Removed: []string{"#Z"}}}
	reg.Deliver(batch, nil)

	require.Equal(t, batch, gotA)
	require.Len(t, gotB, 1)
	require.Empty(t, gotB[0].Created)
	require.Equal(t, []string{"#X"}, gotB[0].Modified)
	require.Empty(t, gotB[0].Removed)
}

func TestCallbackIsolation(t *testing.T) {
	reg := NewSubscriberRegistry()
	var called bool
	reg.Subscribe(Criteria{}, nil, func(b []change.Change) { panic("boom") })
	reg.Subscribe(Criteria{}, nil, func(b []change.Change) { called = true })

	var reported []uint64
	reg.Deliver([]change.Change{{Class: "Dummy"}}, func(id uint64, err any) { reported = append(reported, id) })

	require.True(t, called)
	require.Len(t, reported, 1)
}

func TestComputeBackendCriteriaAllWins(t *testing.T) {
	reg := NewSubscriberRegistry()
	reg.Subscribe(Criteria{Classes: map[string]struct{}{"Dummy": {}}}, nil, func([]change.Change) {})
	reg.Subscribe(Criteria{}, nil, func([]change.Change) {})

	bc := reg.ComputeBackendCriteria()
	require.True(t, bc.All)
}

func TestComputeBackendCriteriaUnion(t *testing.T) {
	reg := NewSubscriberRegistry()
	reg.Subscribe(Criteria{Classes: map[string]struct{}{"Dummy": {}}}, nil, func([]change.Change) {})
	reg.Subscribe(Criteria{Objects: map[string]map[string]struct{}{"Second": {"#7": {}}}}, nil, func([]change.Change) {})

	bc := reg.ComputeBackendCriteria()
	require.False(t, bc.All)
	require.ElementsMatch(t, []string{"Dummy"}, bc.Classes)
	require.ElementsMatch(t, []string{"#7"}, bc.Objects["Second"])
}
