package transcription

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/nikki/internal/config"
	"github.com/hyperjump/nikki/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChunk(t *testing.T) *models.AudioChunk {
	t.Helper()
	return &models.AudioChunk{
		ID:        "c1",
		SessionID: "s1",
		AudioPath: filepath.Join(t.TempDir(), "c1.m4a"),
		StartedAt: morning,
		EndedAt:   morning.Add(45 * time.Second),
	}
}

func TestSidecar_plainText(t *testing.T) {
	chunk := testChunk(t)
	require.NoError(t, os.WriteFile(chunk.AudioPath+".txt", []byte("  Good morning.\n\nCoffee first.  "), 0o644))

	segs, err := NewSidecar(nil).Transcribe(context.Background(), chunk)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, "Good morning. Coffee first.", segs[0].Text)
	assert.Equal(t, 45.0, segs[0].EndOffset)
}

func TestSidecar_jsonPreferred(t *testing.T) {
	chunk := testChunk(t)
	require.NoError(t, os.WriteFile(chunk.AudioPath+".txt", []byte("ignored"), 0o644))
	raw := `[{"start":0,"end":2.5,"text":" hi ","confidence":0.9,"language":"en"},{"start":2.5,"end":5,"text":"there","sentiment":0.4}]`
	require.NoError(t, os.WriteFile(chunk.AudioPath+".transcript.json", []byte(raw), 0o644))

	segs, err := NewSidecar(nil).Transcribe(context.Background(), chunk)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, "hi", segs[0].Text)
	assert.Equal(t, "en", segs[0].Language)
	assert.Nil(t, segs[0].Sentiment)
	require.NotNil(t, segs[1].Sentiment)
	assert.Equal(t, 0.4, *segs[1].Sentiment)
}

func TestSidecar_missingAndMalformed(t *testing.T) {
	chunk := testChunk(t)
	_, err := NewSidecar(nil).Transcribe(context.Background(), chunk)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(chunk.AudioPath+".transcript.json", []byte("{not json"), 0o644))
	_, err = NewSidecar(nil).Transcribe(context.Background(), chunk)
	assert.Error(t, err)
}

func TestWhisper_Transcribe(t *testing.T) {
	chunk := testChunk(t)
	require.NoError(t, os.WriteFile(chunk.AudioPath, []byte("fake audio"), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "verbose_json", r.FormValue("response_format"))
		assert.Equal(t, "ja", r.FormValue("language"))
		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		data, _ := io.ReadAll(f)
		assert.Equal(t, "fake audio", string(data))
		assert.Equal(t, "c1.m4a", hdr.Filename)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"text":     "konnichiwa sekai",
			"language": "japanese",
			"segments": []map[string]any{
				{"start": 0, "end": 1.2, "text": " konnichiwa", "avg_logprob": 0},
				{"start": 1.2, "end": 2, "text": "sekai", "avg_logprob": -0.5},
			},
		})
	}))
	defer srv.Close()

	segs, err := NewWhisper(srv.URL, "key", "whisper-1", "ja", nil).Transcribe(context.Background(), chunk)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, "konnichiwa", segs[0].Text)
	assert.InDelta(t, 1.0, segs[0].Confidence, 1e-9)
	assert.InDelta(t, 0.6065, segs[1].Confidence, 1e-3)
	assert.Equal(t, "japanese", segs[1].Language)
}

func TestWhisper_statusError(t *testing.T) {
	chunk := testChunk(t)
	require.NoError(t, os.WriteFile(chunk.AudioPath, []byte("x"), 0o644))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewWhisper(srv.URL, "key", "whisper-1", "", nil).Transcribe(context.Background(), chunk)
	assert.ErrorContains(t, err, "401")
}

func TestNew(t *testing.T) {
	tr, err := New(&config.TranscriptionConfig{Engine: "sidecar"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Sidecar{}, tr)

	_, err = New(&config.TranscriptionConfig{Engine: "whisper"}, nil)
	assert.Error(t, err)

	tr, err = New(&config.TranscriptionConfig{Engine: "whisper", APIKey: "k"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Whisper{}, tr)

	_, err = New(&config.TranscriptionConfig{Engine: "vosk"}, nil)
	assert.Error(t, err)
}
