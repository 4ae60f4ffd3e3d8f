package audit

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateString(t *testing.T) {
	assert.Equal(t, "added", StateAdded.String())
	assert.Equal(t, "modified", StateModified.String())
	assert.Equal(t, "deleted", StateDeleted.String())
	assert.Equal(t, "unchanged", StateUnchanged.String())
	assert.Equal(t, "not_tracked", StateNotTracked.String())
	assert.Equal(t, "state(99)", State(99).String())
}

func TestStateValid(t *testing.T) {
	for _, state := range AllStates() {
		assert.True(t, state.Valid())
	}
	assert.False(t, State(99).Valid())
}

func TestParseState(t *testing.T) {
	state, err := ParseState("modified")
	require.NoError(t, err)
	assert.Equal(t, StateModified, state)

	_, err = ParseState("bogus")
	assert.Error(t, err)
}

func TestStateJSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(StateDeleted)
	require.NoError(t, err)
	assert.Equal(t, `"deleted"`, string(data))

	var state State
	require.NoError(t, json.Unmarshal(data, &state))
	assert.Equal(t, StateDeleted, state)

	assert.Error(t, json.Unmarshal([]byte(`"bogus"`), &state))
	assert.Error(t, json.Unmarshal([]byte(`7`), &state))
}
