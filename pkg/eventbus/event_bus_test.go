package eventbus

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type orgCreated struct {
	Name string
}

type orgDeleted struct {
	Name string
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestPublishDispatchesByParameterType(t *testing.T) {
	bus := NewEventPublisher(quietLogger())

	var created []string
	bus.Subscribe(func(e *orgCreated) {
		created = append(created, e.Name)
	})
	var deleted []string
	bus.Subscribe(func(e *orgDeleted) {
		deleted = append(deleted, e.Name)
	})

	bus.Publish(&orgCreated{Name: "A"})
	bus.Publish(&orgDeleted{Name: "B"})
	bus.Publish(&orgCreated{Name: "C"})

	require.Equal(t, []string{"A", "C"}, created)
	require.Equal(t, []string{"B"}, deleted)
}

func TestUnsubscribeAndClear(t *testing.T) {
	bus := NewEventPublisher(quietLogger())

	calls := 0
	handler := func(e *orgCreated) { calls++ }
	bus.Subscribe(handler)
	require.Equal(t, 1, bus.SubscribersCount())

	bus.Publish(&orgCreated{})
	bus.Unsubscribe(handler)
	bus.Publish(&orgCreated{})
	require.Equal(t, 1, calls)

	bus.Subscribe(handler)
	bus.Clear()
	require.Equal(t, 0, bus.SubscribersCount())
}

func TestPublishRecoversFromPanickingHandler(t *testing.T) {
	bus := NewEventPublisher(quietLogger())

	bus.Subscribe(func(e *orgCreated) { panic("handler blew up") })
	reached := false
	bus.Subscribe(func(e *orgCreated) { reached = true })

	require.NotPanics(t, func() {
		bus.Publish(&orgCreated{})
	})
	require.True(t, reached, "a panicking handler must not starve the others")
}

func TestMatchSignature(t *testing.T) {
	handler := func(e *orgCreated) {}
	require.True(t, MatchSignature(handler, []any{&orgCreated{}}))
	require.False(t, MatchSignature(handler, []any{&orgDeleted{}}))
	require.False(t, MatchSignature(handler, []any{&orgCreated{}, &orgDeleted{}}))
	require.False(t, MatchSignature("not a func", []any{&orgCreated{}}))
}
