package classes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	s := Default()
	assert.Equal(t, 10, s.Len())
	assert.Equal(t, Reference, s.Name(0))

	i, ok := s.Index("UERD_95")
	require.True(t, ok)
	assert.Equal(t, 9, i)

	_, ok = s.Index("F5_75")
	assert.False(t, ok)
	assert.Equal(t, "", s.Name(10))
}

func TestNewRejectsBadNames(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	_, err = New([]string{"a", ""})
	assert.Error(t, err)

	_, err = New([]string{"a", "b", "a"})
	assert.Error(t, err)
}

func TestNamesIsACopy(t *testing.T) {
	s := Default()
	names := s.Names()
	names[0] = "mutated"
	assert.Equal(t, Reference, s.Name(0))
}

func TestOneHot(t *testing.T) {
	s := Default()
	for label := 0; label < s.Len(); label++ {
		v, err := s.OneHot(label)
		require.NoError(t, err)
		require.Len(t, v, s.Len())
		var sum float32
		for i, x := range v {
			if i == label {
				assert.Equal(t, float32(1), x)
			} else {
				assert.Equal(t, float32(0), x)
			}
			sum += x
		}
		assert.Equal(t, float32(1), sum)
	}

	_, err := s.OneHot(s.Len())
	assert.Error(t, err)
	_, err = s.OneHot(-1)
	assert.Error(t, err)
}
