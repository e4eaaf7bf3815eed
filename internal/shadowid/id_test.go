package shadowid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		thingName  string
		shadowName string
		wantErr    bool
	}{
		{"classic", "Thing-1", "", false},
		{"named", "Thing-1", "config", false},
		{"colon and underscore", "my:thing_1", "my-shadow_2", false},
		{"empty thing", "", "shadow", true},
		{"bad chars thing", "thing!", "", true},
		{"bad chars shadow", "thing", "shadow!", true},
		{"thing too long", string(make([]byte, maxThingNameLen+1)), "", true},
		{"shadow too long", "thing", string(make([]byte, maxShadowNameLen+1)), true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			id, err := New(tt.thingName, tt.shadowName)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.thingName, id.ThingName)
			assert.Equal(t, tt.shadowName, id.ShadowName)
		})
	}
}

func TestIdentity_Classic(t *testing.T) {
	t.Parallel()

	classic, err := New("thing", "")
	require.NoError(t, err)
	assert.True(t, classic.Classic())

	named, err := New("thing", "named")
	require.NoError(t, err)
	assert.False(t, named.Classic())
}

func TestIdentity_String(t *testing.T) {
	t.Parallel()

	classic, err := New("thing", "")
	require.NoError(t, err)
	assert.Equal(t, "thing", classic.String())

	named, err := New("thing", "named")
	require.NoError(t, err)
	assert.Equal(t, "thing/named", named.String())
}

func TestIdentity_Equality(t *testing.T) {
	t.Parallel()

	a, err := New("Thing", "Shadow")
	require.NoError(t, err)

	b, err := New("Thing", "Shadow")
	require.NoError(t, err)

	c, err := New("thing", "Shadow") // case differs
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
