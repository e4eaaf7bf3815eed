package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/greengrass-edge/shadow-sync/internal/sync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityFromArgs_ClassicShadow(t *testing.T) {
	t.Parallel()

	id, err := identityFromArgs("thing-1", "")
	require.NoError(t, err)
	assert.Equal(t, "thing-1", id.ThingName)
	assert.Empty(t, id.ShadowName)
}

func TestIdentityFromArgs_NamedShadow(t *testing.T) {
	t.Parallel()

	id, err := identityFromArgs("thing-1", "config")
	require.NoError(t, err)
	assert.Equal(t, "config", id.ShadowName)
}

func TestIdentityFromArgs_RejectsEmptyThingName(t *testing.T) {
	t.Parallel()

	_, err := identityFromArgs("", "config")
	assert.Error(t, err)
}

func TestReadPayload_FromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "payload.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"state":{"desired":{"on":true}}}`), 0o644))

	data, err := readPayload(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":{"desired":{"on":true}}}`, string(data))
}

func TestReadPayload_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := readPayload(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestPrintDocument_NilPrintsEmptyObject(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, printDocument(&buf, nil))
	assert.Equal(t, "{}\n", buf.String())
}

func TestPrintDocument_RendersStateAndVersion(t *testing.T) {
	t.Parallel()

	doc := &sync.Document{
		State:   sync.State{Reported: map[string]sync.Node{"temp": 21.5}},
		Version: 3,
	}

	var buf bytes.Buffer
	require.NoError(t, printDocument(&buf, doc))

	var view wireDocumentView
	require.NoError(t, json.Unmarshal(buf.Bytes(), &view))
	assert.EqualValues(t, 3, view.Version)
	assert.Contains(t, view.State.Reported, "temp")
}
