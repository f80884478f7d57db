package artifacts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/krylovex/gridpick-cli/internal/config"
)

func TestSink_Disabled(t *testing.T) {
	sink, err := NewSink(config.ArtifactsConfig{Enabled: false, Dir: "unused"}, nil)
	require.NoError(t, err)
	require.Nil(t, sink)

	// A nil sink must stay inert.
	sink.SaveChallenge(1, []byte{0x89})
	sink.SaveCrop(0, []byte{0x89})
	assert.NoError(t, sink.Close())
}

func TestSink_WritesAndDrains(t *testing.T) {
	// Close must drain every queued write; goleak catches stragglers.
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	sink, err := NewSink(config.ArtifactsConfig{Enabled: true, Dir: dir}, nil)
	require.NoError(t, err)
	require.NotNil(t, sink)

	payload := []byte("not-a-real-png-but-bytes-suffice")
	sink.SaveChallenge(2, payload)
	sink.SaveCrop(0, payload)
	sink.SaveCrop(1, payload)
	require.NoError(t, sink.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	var challenges, crops int
	for _, e := range entries {
		switch {
		case strings.HasPrefix(e.Name(), "challenge_2_"):
			challenges++
		case strings.HasPrefix(e.Name(), "crop_"):
			crops++
		}
		assert.True(t, strings.HasSuffix(e.Name(), ".png"))

		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		require.NoError(t, err)
		assert.Equal(t, payload, data)
	}
	assert.Equal(t, 1, challenges)
	assert.Equal(t, 2, crops)
}

func TestSink_CopiesPayload(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	sink, err := NewSink(config.ArtifactsConfig{Enabled: true, Dir: dir}, nil)
	require.NoError(t, err)

	payload := []byte("original")
	sink.SaveCrop(0, payload)
	// Clobber the caller-owned buffer before the async write lands.
	copy(payload, "XXXXXXXX")
	require.NoError(t, sink.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
}

func TestSink_SkipsEmptyPayloads(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewSink(config.ArtifactsConfig{Enabled: true, Dir: dir}, nil)
	require.NoError(t, err)

	sink.SaveChallenge(1, nil)
	sink.SaveCrop(3, []byte{})
	require.NoError(t, sink.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
