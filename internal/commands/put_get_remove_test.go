package commands

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutThenGetRoundTrips(t *testing.T) {
	withTempStore(t)

	out, err := runCmd(t, NewPutCmd(), "widgets", "sku-1", "blue")
	require.NoError(t, err)
	requireSuccess(t, out)

	out, err = runCmd(t, NewGetCmd(), "widgets", "sku-1")
	require.NoError(t, err)
	requireSuccess(t, out)
	require.Contains(t, out, `"value":"blue"`)
}

func TestGetMissingKeyPrintsErrorEnvelope(t *testing.T) {
	withTempStore(t)

	out, err := runCmd(t, NewGetCmd(), "widgets", "nope")
	require.Error(t, err)
	require.Contains(t, out, `"success":false`)
	require.Contains(t, out, "not found")
}

func TestRemoveDeletesKeyThenGetFails(t *testing.T) {
	withTempStore(t)

	_, err := runCmd(t, NewPutCmd(), "widgets", "sku-2", "red")
	require.NoError(t, err)

	out, err := runCmd(t, NewRemoveCmd(), "widgets", "sku-2")
	require.NoError(t, err)
	requireSuccess(t, out)

	out, err = runCmd(t, NewGetCmd(), "widgets", "sku-2")
	require.Error(t, err)
	require.Contains(t, out, "not found")
}

func TestRemoveAllClearsCollection(t *testing.T) {
	withTempStore(t)

	_, err := runCmd(t, NewPutCmd(), "widgets", "a", "1")
	require.NoError(t, err)
	_, err = runCmd(t, NewPutCmd(), "widgets", "b", "2")
	require.NoError(t, err)

	out, err := runCmd(t, NewRemoveCmd(), "--all", "widgets")
	require.NoError(t, err)
	requireSuccess(t, out)

	out, err = runCmd(t, NewEnumerateCmd(), "widgets")
	require.NoError(t, err)
	require.Contains(t, out, `"entries":null`)
}

func TestRemoveWithoutKeyOrAllFlagFails(t *testing.T) {
	withTempStore(t)

	out, err := runCmd(t, NewRemoveCmd(), "widgets")
	require.Error(t, err)
	require.Contains(t, out, "a key argument is required")
}
