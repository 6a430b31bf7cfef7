package speech

import (
	"bytes"
	"context"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ASRVersion identifies the transcription configuration. Sessions freeze it
// at creation for reproducibility.
const ASRVersion = "whisper-1"

const transcribeTimeout = 30 * time.Second

// WhisperTranscriber implements Transcriber over an OpenAI-compatible audio
// transcription endpoint.
type WhisperTranscriber struct {
	api   *openai.Client
	model string
}

// NewWhisperTranscriber creates a transcriber against the given endpoint.
// An empty baseURL uses the default OpenAI API.
func NewWhisperTranscriber(baseURL, apiKey, modelName string) *WhisperTranscriber {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if modelName == "" {
		modelName = ASRVersion
	}
	return &WhisperTranscriber{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// Transcribe converts the recording to text. The language hint is a BCP 47
// primary tag ("fr"); an empty hint lets the model detect the language.
func (t *WhisperTranscriber) Transcribe(ctx context.Context, audio []byte, languageHint string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, transcribeTimeout)
	defer cancel()

	resp, err := t.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: "recording.wav",
		Reader:   bytes.NewReader(audio),
		Language: languageHint,
	})
	if err != nil {
		return "", &TranscriptionError{Err: err}
	}

	return strings.TrimSpace(resp.Text), nil
}
