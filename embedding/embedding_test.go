package embedding

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEncodingError(t *testing.T) {
	long := strings.Repeat("x", 200)

	err := NewEncodingError([]string{"short", long}, errors.New("backend down"))

	assert.Equal(t, 2, err.Texts)
	require.Len(t, err.Previews, 2)
	assert.Equal(t, "short", err.Previews[0])
	assert.Len(t, err.Previews[1], 80)
	assert.ErrorContains(t, err, "backend down")
	assert.ErrorContains(t, err, "2 text(s)")
}
