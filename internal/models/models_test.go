package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCharacterProfileValidate(t *testing.T) {
	profile := &CharacterProfile{
		AgentName: "Fina",
		Bio:       "a seasoned financial advisor",
		Traits:    []string{"patient", "precise"},
	}
	require.NoError(t, profile.Validate())

	assert.ErrorIs(t, (&CharacterProfile{Bio: "anonymous"}).Validate(), ErrUnnamedProfile)

	var nilProfile *CharacterProfile
	assert.ErrorIs(t, nilProfile.Validate(), ErrUnnamedProfile)
}
