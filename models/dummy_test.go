package models

import (
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// generatePCMAudio creates 16-bit PCM audio data with the given amplitude.
// amplitude should be 0.0 to 1.0.
func generatePCMAudio(samples int, amplitude float64) []byte {
	data := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		sample := int16(amplitude * 32767 * math.Sin(float64(i)*0.1))
		binary.LittleEndian.PutUint16(data[i*2:], uint16(sample))
	}
	return data
}

// generateSilence creates silent 16-bit PCM audio data.
func generateSilence(samples int) []byte {
	return make([]byte, samples*2)
}

func TestDummyVAD_Silence(t *testing.T) {
	vad := NewDummyVAD()

	res, err := vad.Detect(context.Background(), generateSilence(1600))
	require.NoError(t, err)
	assert.False(t, res.IsSpeech)
	assert.Zero(t, res.Confidence)
}

func TestDummyVAD_Speech(t *testing.T) {
	vad := NewDummyVAD()

	res, err := vad.Detect(context.Background(), generatePCMAudio(1600, 0.5))
	require.NoError(t, err)
	assert.True(t, res.IsSpeech)
	assert.Greater(t, res.Confidence, 0.1)
}

func TestDummyVAD_EmptyChunk(t *testing.T) {
	vad := NewDummyVAD()

	_, err := vad.Detect(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestDummyTranscriber(t *testing.T) {
	stt := NewDummyTranscriber()

	tr, err := stt.Transcribe(context.Background(), []byte("pcm"))
	require.NoError(t, err)
	assert.Equal(t, "ko", tr.Language)
	assert.NotEmpty(t, tr.Text)

	_, err = stt.Transcribe(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestDummyEmotionProbabilitiesSumToOneOrLess(t *testing.T) {
	analyzers := []EmotionAnalyzer{NewDummyAudioEmotion(), NewDummyFaceEmotion()}

	for _, a := range analyzers {
		res, err := a.Analyze(context.Background(), []byte("data"))
		require.NoError(t, err, a.Name())

		var sum float64
		for _, p := range res.Probabilities {
			sum += p
		}
		assert.LessOrEqual(t, sum, 1.0+1e-9, a.Name())
		assert.Contains(t, res.Probabilities, res.Primary, a.Name())
	}
}
