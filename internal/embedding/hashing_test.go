package embedding_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shodh/memory-engine/internal/embedding"
	engineerrors "github.com/shodh/memory-engine/internal/errors"
)

func TestNewDefaultsToHashingBackend(t *testing.T) {
	emb, err := embedding.New(embedding.Config{})
	require.NoError(t, err)
	assert.Equal(t, embedding.DefaultDimension, emb.Dimension())
	assert.False(t, emb.ModelLoaded())
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	_, err := embedding.New(embedding.Config{Backend: "made-up"})
	assert.Error(t, err)
}

func TestNewONNXWithoutBuildTagIsUnavailable(t *testing.T) {
	_, err := embedding.New(embedding.Config{Backend: embedding.BackendONNX})
	assert.ErrorIs(t, err, engineerrors.ErrEmbedderUnavailable)
}

func TestHashingEmbedIsDeterministic(t *testing.T) {
	emb := embedding.NewHashingEmbedder(32)
	v1, err := emb.Embed(context.Background(), "the kubernetes deployment failed")
	require.NoError(t, err)
	v2, err := emb.Embed(context.Background(), "the kubernetes deployment failed")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
}

func TestHashingEmbedIsL2Normalized(t *testing.T) {
	emb := embedding.NewHashingEmbedder(32)
	v, err := emb.Embed(context.Background(), "some meaningful sentence with several tokens")
	require.NoError(t, err)

	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sumSq), 1e-4)
}

func TestHashingEmbedDiffersForDifferentText(t *testing.T) {
	emb := embedding.NewHashingEmbedder(32)
	v1, err := emb.Embed(context.Background(), "alice deployed the service")
	require.NoError(t, err)
	v2, err := emb.Embed(context.Background(), "bob went to the store")
	require.NoError(t, err)
	assert.NotEqual(t, v1, v2)
}

func TestHashingEmbedBatchMatchesIndividualEmbed(t *testing.T) {
	emb := embedding.NewHashingEmbedder(16)
	texts := []string{"first sentence", "second sentence"}

	batch, err := emb.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, batch, 2)

	for i, text := range texts {
		single, err := emb.Embed(context.Background(), text)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i])
	}
}

func TestHashingEmbedNormalizesCaseAndWhitespace(t *testing.T) {
	emb := embedding.NewHashingEmbedder(32)
	v1, err := emb.Embed(context.Background(), "Alice   Deployed The Service")
	require.NoError(t, err)
	v2, err := emb.Embed(context.Background(), "alice deployed the service")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
}
