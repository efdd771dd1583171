package models

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

const (
	whisperBaseURL            = "https://api.openai.com/v1"
	whisperTranscribeEndpoint = "/audio/transcriptions"

	// WhisperModel is the default OpenAI transcription model.
	WhisperModel = "whisper-1"

	// Default audio settings for PCM uploads.
	DefaultSampleRate = 16000
	DefaultChannels   = 1
	DefaultBitDepth   = 16

	// Default timeout for transcription requests.
	defaultWhisperTimeout = 60 * time.Second

	// HTTP status code threshold for server errors.
	whisperServerErrorThreshold = 500
)

// WhisperTranscriber implements the Transcriber capability against an
// OpenAI-compatible transcription endpoint. Raw PCM utterances are wrapped
// as WAV before upload.
type WhisperTranscriber struct {
	apiKey     string
	baseURL    string
	client     *http.Client
	model      string
	language   string
	sampleRate int
}

// WhisperOption configures the WhisperTranscriber.
type WhisperOption func(*WhisperTranscriber)

// WithWhisperBaseURL sets a custom base URL (for testing or proxies).
func WithWhisperBaseURL(url string) WhisperOption {
	return func(w *WhisperTranscriber) {
		w.baseURL = url
	}
}

// WithWhisperClient sets a custom HTTP client.
func WithWhisperClient(client *http.Client) WhisperOption {
	return func(w *WhisperTranscriber) {
		w.client = client
	}
}

// WithWhisperModel sets the transcription model to use.
func WithWhisperModel(model string) WhisperOption {
	return func(w *WhisperTranscriber) {
		w.model = model
	}
}

// WithWhisperLanguage sets the language hint sent with each request.
func WithWhisperLanguage(language string) WhisperOption {
	return func(w *WhisperTranscriber) {
		w.language = language
	}
}

// WithWhisperSampleRate sets the PCM sample rate used when wrapping audio.
func WithWhisperSampleRate(rate int) WhisperOption {
	return func(w *WhisperTranscriber) {
		w.sampleRate = rate
	}
}

// NewWhisperTranscriber creates a Whisper-backed transcriber.
func NewWhisperTranscriber(apiKey string, opts ...WhisperOption) *WhisperTranscriber {
	w := &WhisperTranscriber{
		apiKey:     apiKey,
		baseURL:    whisperBaseURL,
		client:     &http.Client{Timeout: defaultWhisperTimeout},
		model:      WhisperModel,
		language:   "ko",
		sampleRate: DefaultSampleRate,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Name returns the implementation identifier.
func (w *WhisperTranscriber) Name() string {
	return "openai-whisper"
}

// Load verifies the transcriber is usable. The API is stateless, so there is
// nothing to warm up beyond checking for credentials.
func (w *WhisperTranscriber) Load(_ context.Context) error {
	if w.apiKey == "" {
		return fmt.Errorf("%w: missing API key", ErrModelUnavailable)
	}
	return nil
}

// Close releases resources. No-op for an HTTP-backed model.
func (w *WhisperTranscriber) Close() error {
	return nil
}

// Reentrant reports that concurrent requests are safe.
func (w *WhisperTranscriber) Reentrant() bool {
	return true
}

// Transcribe converts a complete PCM utterance to text.
func (w *WhisperTranscriber) Transcribe(ctx context.Context, audio []byte) (Transcript, error) {
	if len(audio) == 0 {
		return Transcript{}, ErrEmptyInput
	}

	// Whisper expects a file upload, so wrap the raw PCM as WAV.
	wav := WrapPCMAsWAV(audio, w.sampleRate, DefaultChannels, DefaultBitDepth)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return Transcript{}, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return Transcript{}, fmt.Errorf("failed to write audio data: %w", err)
	}
	if err := writer.WriteField("model", w.model); err != nil {
		return Transcript{}, fmt.Errorf("failed to write model field: %w", err)
	}
	if w.language != "" {
		if err := writer.WriteField("language", w.language); err != nil {
			return Transcript{}, fmt.Errorf("failed to write language field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return Transcript{}, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		w.baseURL+whisperTranscribeEndpoint,
		&buf,
	)
	if err != nil {
		return Transcript{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+w.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := w.client.Do(req)
	if err != nil {
		return Transcript{}, NewInferenceError(CapabilitySTT, w.Name(), err, true)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Transcript{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Transcript{}, w.handleError(resp.StatusCode, body)
	}

	var result struct {
		Text     string `json:"text"`
		Language string `json:"language"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return Transcript{}, fmt.Errorf("failed to parse response: %w", err)
	}

	language := result.Language
	if language == "" {
		language = w.language
	}
	return Transcript{Text: result.Text, Language: language}, nil
}

// handleError processes an error response from the transcription endpoint.
func (w *WhisperTranscriber) handleError(statusCode int, body []byte) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}

	retryable := statusCode == http.StatusTooManyRequests ||
		statusCode >= whisperServerErrorThreshold

	if err := json.Unmarshal(body, &errResp); err != nil {
		return NewInferenceError(
			CapabilitySTT, w.Name(),
			fmt.Errorf("status %d: %s", statusCode, body),
			retryable,
		)
	}

	return NewInferenceError(
		CapabilitySTT, w.Name(),
		fmt.Errorf("status %d [%s]: %s", statusCode, errResp.Error.Code, errResp.Error.Message),
		retryable,
	)
}
