package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const assessTimeout = 30 * time.Second

// HTTPAssessor implements Assessor against a pronunciation-assessment HTTP
// service that accepts audio plus a reference text and returns overall,
// per-word, and per-phoneme accuracy scores.
type HTTPAssessor struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPAssessor creates an assessor client for the given endpoint.
func NewHTTPAssessor(baseURL, apiKey string) *HTTPAssessor {
	return &HTTPAssessor{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: assessTimeout},
	}
}

type assessRequest struct {
	ReferenceText string `json:"reference_text"`
	AudioBase64   string `json:"audio"`
	Language      string `json:"language"`
}

// Assess scores the recording against the reference text.
func (a *HTTPAssessor) Assess(ctx context.Context, audio []byte, referenceText string) (*Assessment, error) {
	body, err := json.Marshal(assessRequest{
		ReferenceText: referenceText,
		AudioBase64:   base64.StdEncoding.EncodeToString(audio),
		Language:      "fr-FR",
	})
	if err != nil {
		return nil, &AssessmentError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/assess", bytes.NewReader(body))
	if err != nil {
		return nil, &AssessmentError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &AssessmentError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &AssessmentError{Err: fmt.Errorf("assessor returned %d: %s", resp.StatusCode, msg)}
	}

	var result Assessment
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &AssessmentError{Err: fmt.Errorf("parse assessor response: %w", err)}
	}

	return &result, nil
}
