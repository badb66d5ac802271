package projector_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore"
	"github.com/AntonStoeckl/catchup-eventstore-go/projector"
	"github.com/AntonStoeckl/catchup-eventstore-go/testutil/fixtures"
)

func givenNamedProjector(t *testing.T, name string, provider eventstore.Provider, opts ...projector.Option) *projector.Projector {
	p, err := projector.New(name, provider, givenOrderSubscriptions(), opts...)
	require.NoError(t, err, "error in arranging test data")

	return p
}

func Test_NewGroup_Validates_Projectors(t *testing.T) {
	provider := givenMemoryProvider(t)

	_, noneErr := projector.NewGroup()
	_, nilErr := projector.NewGroup(givenNamedProjector(t, "a", provider), nil)
	_, duplicateErr := projector.NewGroup(givenNamedProjector(t, "a", provider), givenNamedProjector(t, "a", provider))

	assert.ErrorIs(t, noneErr, projector.ErrNoProjectors)
	assert.Error(t, nilErr)
	assert.ErrorIs(t, duplicateErr, projector.ErrDuplicateBookmark)
}

func Test_Group_CatchUp_Runs_All_Projectors(t *testing.T) {
	// setup
	ctx := t.Context()
	provider := givenMemoryProvider(t)
	summary := givenNamedProjector(t, "summary", provider, projector.WithLimit(1))
	audit := givenNamedProjector(t, "audit", provider)
	summaryRecorder := &dispatchRecorder{}
	auditRecorder := &dispatchRecorder{}
	require.NoError(t, summary.Handle(fixtures.OrdersStream, fixtures.ItemAddedEventType, summaryRecorder.callback))
	require.NoError(t, audit.Handle(fixtures.OrdersStream, fixtures.OrderPlacedEventType, auditRecorder.callback))

	group, err := projector.NewGroup(summary, audit)
	require.NoError(t, err)

	givenThreeOrderEvents(t, provider)

	// act
	total, err := group.CatchUp(ctx)

	// assert
	require.NoError(t, err)
	assert.Equal(t, 6, total)
	assert.Equal(t, []eventstore.Position{2, 3}, summaryRecorder.Positions())
	assert.Equal(t, []eventstore.Position{1}, auditRecorder.Positions())
	assert.Equal(t, eventstore.Position(3), givenPosition(t, summary))
	assert.Equal(t, eventstore.Position(3), givenPosition(t, audit))
}

func Test_Group_CatchUp_Returns_The_First_Error(t *testing.T) {
	// setup
	provider := givenMemoryProvider(t)
	failing := givenNamedProjector(t, "failing", provider)
	require.NoError(t, failing.Handle(fixtures.OrdersStream, fixtures.OrderPlacedEventType,
		func(context.Context, string, eventstore.StorableEvent, eventstore.EventMeta) error {
			return errBoom
		}))

	group, err := projector.NewGroup(failing, givenNamedProjector(t, "healthy", provider))
	require.NoError(t, err)

	givenThreeOrderEvents(t, provider)

	// act
	_, err = group.CatchUp(t.Context())

	// assert
	assert.ErrorIs(t, err, errBoom)
	assert.ErrorContains(t, err, `"failing"`)
}

func Test_Group_Run_Until_The_Context_Is_Canceled(t *testing.T) {
	// setup
	provider := givenMemoryProvider(t)
	summary := givenNamedProjector(t, "summary", provider, projector.WithPollInterval(pollInterval))
	audit := givenNamedProjector(t, "audit", provider, projector.WithPollInterval(pollInterval))
	recorder := &dispatchRecorder{}
	require.NoError(t, summary.Handle(fixtures.OrdersStream, fixtures.OrderPlacedEventType, recorder.callback))
	require.NoError(t, audit.Handle(fixtures.OrdersStream, fixtures.OrderPlacedEventType, recorder.callback))

	group, err := projector.NewGroup(summary, audit)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- group.Run(ctx) }()

	// act
	fixtures.GivenOrderPlacedWasAppended(t, ctx, provider, fixtures.OrdersStream, "o-1", time.Now())

	// assert
	assert.Eventually(t, func() bool { return len(recorder.Positions()) == 2 }, waitFor, tick)

	// act
	cancel()

	// assert
	select {
	case runErr := <-done:
		assert.NoError(t, runErr)
	case <-time.After(waitFor):
		t.Fatal("Group.Run did not return after cancellation")
	}
}

func Test_Group_Run_Until_The_Context_Deadline_Expires(t *testing.T) {
	// setup
	provider := givenMemoryProvider(t)
	group, err := projector.NewGroup(
		givenNamedProjector(t, "summary", provider, projector.WithPollInterval(pollInterval)),
		givenNamedProjector(t, "audit", provider, projector.WithPollInterval(pollInterval)),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	// act
	err = group.Run(ctx)

	// assert
	assert.NoError(t, err)
	assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
}

func Test_Group_Run_Fails_When_A_Projector_Is_Already_Running(t *testing.T) {
	// setup
	provider := givenMemoryProvider(t)
	running := givenNamedProjector(t, "running", provider, projector.WithPollInterval(pollInterval))
	require.NoError(t, running.Start(t.Context()))
	t.Cleanup(func() {
		running.Stop()
		running.Wait()
	})

	group, err := projector.NewGroup(running, givenNamedProjector(t, "other", provider, projector.WithPollInterval(pollInterval)))
	require.NoError(t, err)

	// act
	err = group.Run(t.Context())

	// assert
	assert.ErrorIs(t, err, projector.ErrAlreadyRunning)
}
