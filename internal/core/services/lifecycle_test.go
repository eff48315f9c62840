package services

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestShutdownRunsStepsInReverseOrder(t *testing.T) {
	lc := NewLifecycleCoordinator(zaptest.NewLogger(t))

	var order []string
	lc.Register("media", func() { order = append(order, "media") })
	lc.Register("peer", func() { order = append(order, "peer") })
	lc.Register("watches", func() { order = append(order, "watches") })

	lc.Shutdown()
	assert.Equal(t, []string{"watches", "peer", "media"}, order)
}

func TestShutdownRunsOnlyOnce(t *testing.T) {
	lc := NewLifecycleCoordinator(zaptest.NewLogger(t))

	count := 0
	lc.Register("step", func() { count++ })

	lc.Shutdown()
	lc.Shutdown()
	assert.Equal(t, 1, count)
	assert.True(t, lc.Done())
}

func TestShutdownIsSafeConcurrently(t *testing.T) {
	lc := NewLifecycleCoordinator(zaptest.NewLogger(t))

	count := 0
	lc.Register("step", func() { count++ })

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lc.Shutdown()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, count)
}

func TestPanickingStepDoesNotBlockOthers(t *testing.T) {
	lc := NewLifecycleCoordinator(zaptest.NewLogger(t))

	ran := false
	lc.Register("survivor", func() { ran = true })
	lc.Register("bomb", func() { panic("boom") })

	lc.Shutdown()
	assert.True(t, ran)
}

func TestRegisterAfterShutdownRunsImmediately(t *testing.T) {
	lc := NewLifecycleCoordinator(zaptest.NewLogger(t))
	lc.Shutdown()

	ran := false
	lc.Register("late", func() { ran = true })
	assert.True(t, ran)
}

func TestRegisterNilIsIgnored(t *testing.T) {
	lc := NewLifecycleCoordinator(zaptest.NewLogger(t))
	lc.Register("nil", nil)
	lc.Shutdown()
}
