package model

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateManagerLifecycle(t *testing.T) {
	sm := NewStateManager()

	assert.False(t, sm.IsFitted())
	assert.Error(t, sm.RequireFitted())

	sm.SetFitted()
	sm.SetDimensions(24, 622)

	assert.True(t, sm.IsFitted())
	assert.NoError(t, sm.RequireFitted())

	nFeatures, nSamples := sm.GetDimensions()
	assert.Equal(t, 24, nFeatures)
	assert.Equal(t, 622, nSamples)

	sm.Reset()
	assert.False(t, sm.IsFitted())
	nFeatures, nSamples = sm.GetDimensions()
	assert.Equal(t, 0, nFeatures)
	assert.Equal(t, 0, nSamples)
}

func TestStateManagerConcurrentAccess(t *testing.T) {
	sm := NewStateManager()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sm.SetFitted()
			sm.SetDimensions(10, 100)
		}()
		go func() {
			defer wg.Done()
			_ = sm.IsFitted()
			_, _ = sm.GetDimensions()
		}()
	}
	wg.Wait()

	assert.True(t, sm.IsFitted())
}
