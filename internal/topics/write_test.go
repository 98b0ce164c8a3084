package topics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructToMapRoundTripsJSONTags(t *testing.T) {
	type payload struct {
		Int0    int32   `json:"int0"`
		Double0 float64 `json:"double0"`
	}

	m, err := structToMap(payload{Int0: 3, Double0: 1.5})
	require.NoError(t, err)
	assert.EqualValues(t, 3, m["int0"])
	assert.EqualValues(t, 1.5, m["double0"])
}

func TestStructToMapRejectsUnmarshalable(t *testing.T) {
	_, err := structToMap(make(chan int))
	assert.Error(t, err)
}
