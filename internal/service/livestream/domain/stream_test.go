package domain

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStream_Lifecycle(t *testing.T) {
	now := time.Now().UTC()
	s := &Stream{Status: StatusScheduled, PeakViewers: 0}

	assert.ErrorIs(t, s.End(10, now), ErrInvalidTransition)
	require.NoError(t, s.Start(now))
	assert.Equal(t, StatusLive, s.Status)
	assert.ErrorIs(t, s.Start(now), ErrInvalidTransition)

	require.NoError(t, s.End(42, now.Add(time.Hour)))
	assert.Equal(t, StatusEnded, s.Status)
	assert.Equal(t, int64(42), s.PeakViewers)
	require.NotNil(t, s.EndedAt)
}

func TestStream_EndKeepsHigherPeak(t *testing.T) {
	s := &Stream{Status: StatusLive, PeakViewers: 80}
	require.NoError(t, s.End(12, time.Now()))
	assert.Equal(t, int64(80), s.PeakViewers)
}

func TestStream_Feature(t *testing.T) {
	now := time.Now()
	s := &Stream{Status: StatusScheduled}

	added, err := s.Feature("p1", now)
	require.NoError(t, err)
	assert.True(t, added)
	added, err = s.Feature("p1", now)
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, []string{"p1"}, s.ProductIDs)

	for i := len(s.ProductIDs); i < MaxProducts; i++ {
		_, err := s.Feature(fmt.Sprintf("x%d", i), now)
		require.NoError(t, err)
	}
	_, err = s.Feature("one-more", now)
	assert.ErrorIs(t, err, ErrTooManyProducts)

	ended := &Stream{Status: StatusEnded}
	_, err = ended.Feature("p1", now)
	assert.ErrorIs(t, err, ErrStreamEnded)
}
