package errors

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOAuth2ErrorJSONShape(t *testing.T) {
	data, err := json.Marshal(NewUnsupportedResponseType("token"))
	require.NoError(t, err)

	var body map[string]string
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, "unsupported_response_type", body["error"])
	assert.Contains(t, body["error_description"], `"token"`)
	_, hasState := body["state"]
	assert.False(t, hasState, "empty state must be omitted")
}

func TestWithStateCopies(t *testing.T) {
	base := NewInvalidGrant("code consumed")
	withState := base.WithState("xyz")

	assert.Equal(t, "xyz", withState.State)
	assert.Empty(t, base.State, "the original error must stay untouched")
}

func TestErrorString(t *testing.T) {
	err := NewAccessDenied("authentication required")
	assert.Equal(t, "access_denied: authentication required", err.Error())
}
