package models

import (
	"context"
	"encoding/binary"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWhisperTranscriber_Transcribe(t *testing.T) {
	var gotAuth, gotModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotModel = r.FormValue("model")

		file, _, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, "RIFF", string(data[:4]), "PCM must be wrapped as WAV")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"안녕하세요","language":"ko"}`))
	}))
	defer server.Close()

	stt := NewWhisperTranscriber("test-key", WithWhisperBaseURL(server.URL))
	require.NoError(t, stt.Load(context.Background()))

	tr, err := stt.Transcribe(context.Background(), []byte{0, 0, 1, 0})
	require.NoError(t, err)
	assert.Equal(t, "안녕하세요", tr.Text)
	assert.Equal(t, "ko", tr.Language)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, WhisperModel, gotModel)
}

func TestWhisperTranscriber_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"upstream down","code":"server_error"}}`))
	}))
	defer server.Close()

	stt := NewWhisperTranscriber("test-key", WithWhisperBaseURL(server.URL))

	_, err := stt.Transcribe(context.Background(), []byte{0, 0})
	require.Error(t, err)

	var inferr *InferenceError
	require.ErrorAs(t, err, &inferr)
	assert.True(t, inferr.Retryable)
	assert.Contains(t, inferr.Error(), "upstream down")
}

func TestWhisperTranscriber_EmptyAudio(t *testing.T) {
	stt := NewWhisperTranscriber("test-key")

	_, err := stt.Transcribe(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestWhisperTranscriber_LoadRequiresKey(t *testing.T) {
	stt := NewWhisperTranscriber("")
	assert.ErrorIs(t, stt.Load(context.Background()), ErrModelUnavailable)
}

func TestWrapPCMAsWAV(t *testing.T) {
	pcm := []byte{1, 2, 3, 4}
	wav := WrapPCMAsWAV(pcm, 16000, 1, 16)

	require.Len(t, wav, wavHeaderSize+len(pcm))
	assert.Equal(t, "RIFF", string(wav[0:4]))
	assert.Equal(t, "WAVE", string(wav[8:12]))
	assert.Equal(t, uint32(16000), binary.LittleEndian.Uint32(wav[24:28]))
	assert.Equal(t, uint32(len(pcm)), binary.LittleEndian.Uint32(wav[40:44]))
	assert.Equal(t, pcm, wav[44:])
}
