package speech

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

const ttsTimeout = 10 * time.Second

// HTTPSynthesizer fetches reference audio from a TTS HTTP endpoint and
// caches the MP3 bytes on disk keyed by the text, so repeated playback of
// the same prompt never re-hits the service.
type HTTPSynthesizer struct {
	baseURL  string
	language string
	audioDir string
	client   *http.Client
}

// NewHTTPSynthesizer creates a caching TTS client. audioDir is created on
// first use if missing.
func NewHTTPSynthesizer(baseURL, language, audioDir string) *HTTPSynthesizer {
	return &HTTPSynthesizer{
		baseURL:  baseURL,
		language: language,
		audioDir: audioDir,
		client:   &http.Client{Timeout: ttsTimeout},
	}
}

// Synthesize returns MP3 audio for the given text, serving from the disk
// cache when available.
func (s *HTTPSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	cachePath := filepath.Join(s.audioDir, "tts_"+cacheKey(text)+".mp3")
	if data, err := os.ReadFile(cachePath); err == nil {
		return data, nil
	}

	q := url.Values{}
	q.Set("text", text)
	q.Set("lang", s.language)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v1/speech?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build TTS request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("TTS request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("TTS service returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read TTS response: %w", err)
	}

	if err := os.MkdirAll(s.audioDir, 0o755); err == nil {
		// Cache write failures are not fatal; the audio is already in hand.
		_ = os.WriteFile(cachePath, data, 0o644)
	}

	return data, nil
}

func cacheKey(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:8])
}
