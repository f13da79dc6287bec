package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/nikki/internal/models"
	"go.uber.org/zap"
)

// Whisper transcribes with an OpenAI-compatible /v1/audio/transcriptions endpoint.
type Whisper struct {
	endpoint   string
	apiKey     string
	model      string
	language   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewWhisper creates a transcriber that uploads audio to endpoint. language may be empty for auto-detect.
func NewWhisper(endpoint, apiKey, model, language string, logger *zap.Logger) *Whisper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Whisper{
		endpoint:   endpoint,
		apiKey:     apiKey,
		model:      model,
		language:   language,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		logger:     logger,
	}
}

type whisperResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		Start      float64 `json:"start"`
		End        float64 `json:"end"`
		Text       string  `json:"text"`
		AvgLogprob float64 `json:"avg_logprob"`
	} `json:"segments"`
}

// Transcribe uploads the chunk's audio and returns the verbose segments.
func (w *Whisper) Transcribe(ctx context.Context, chunk *models.AudioChunk) ([]*models.TranscriptSegment, error) {
	audio, err := os.Open(chunk.AudioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio: %w", err)
	}
	defer audio.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(chunk.AudioPath))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, audio); err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	fields := map[string]string{"model": w.model, "response_format": "verbose_json"}
	if w.language != "" {
		fields["language"] = w.language
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+w.apiKey)

	start := time.Now()
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var wr whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	w.logger.Debug("whisper transcription",
		zap.String("chunk_id", chunk.ID),
		zap.Int("segments", len(wr.Segments)),
		zap.Duration("took", time.Since(start)))

	if len(wr.Segments) == 0 {
		text := strings.TrimSpace(wr.Text)
		if text == "" {
			return nil, nil
		}
		return []*models.TranscriptSegment{{
			EndOffset:  chunk.Duration().Seconds(),
			Text:       text,
			Confidence: 1,
			Language:   wr.Language,
		}}, nil
	}
	segments := make([]*models.TranscriptSegment, 0, len(wr.Segments))
	for _, s := range wr.Segments {
		segments = append(segments, &models.TranscriptSegment{
			StartOffset: s.Start,
			EndOffset:   s.End,
			Text:        strings.TrimSpace(s.Text),
			Confidence:  math.Exp(s.AvgLogprob),
			Language:    wr.Language,
		})
	}
	return segments, nil
}
