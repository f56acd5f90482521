package ai

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"opsvision/internal/domain/model"
	"opsvision/internal/domain/ports/adapter"
	"opsvision/internal/infra/metrics"
)

var _ adapter.JobService = (*GeminiFileService)(nil)

// GeminiFileService runs the remote side of a media job on the Gemini Files
// API: upload, re-read state, and hand out the ready file reference.
type GeminiFileService struct {
	client *genai.Client
	log    *zerolog.Logger
}

func NewGeminiFileService(client *genai.Client, logger *zerolog.Logger) *GeminiFileService {
	l := logger.With().Str("component", "GeminiFileService").Logger()
	return &GeminiFileService{client: client, log: &l}
}

func (s *GeminiFileService) Submit(ctx context.Context, path string) (model.JobHandle, error) {
	cfg := &genai.UploadFileConfig{DisplayName: filepath.Base(path)}
	if mt := detectMIME(path, readHead(path)); mt != "" {
		cfg.MIMEType = mt
	}

	start := time.Now()
	f, err := s.client.Files.UploadFromPath(ctx, path, cfg)
	metrics.ObserveAICall(providerGemini, "files", "upload", int(time.Since(start)/time.Millisecond), err == nil)
	if err != nil {
		return model.JobHandle{}, err
	}
	if f == nil || f.Name == "" {
		return model.JobHandle{}, errors.New("gemini: upload returned no file name")
	}
	s.log.Debug().Str("file", f.Name).Str("mime", f.MIMEType).Msg("uploaded")
	return model.JobHandle{ID: f.Name, Locator: f.URI}, nil
}

func (s *GeminiFileService) Status(ctx context.Context, h model.JobHandle) (model.JobState, error) {
	f, err := s.client.Files.Get(ctx, h.ID, nil)
	if err != nil {
		return "", err
	}
	return fileState(f.State), nil
}

func (s *GeminiFileService) Fetch(ctx context.Context, h model.JobHandle) (model.Artifact, error) {
	f, err := s.client.Files.Get(ctx, h.ID, nil)
	if err != nil {
		return model.Artifact{}, err
	}
	if fileState(f.State) != model.JobStateReady {
		return model.Artifact{}, errors.New("gemini: file " + h.ID + " is not active")
	}
	return model.Artifact{
		Handle:   model.JobHandle{ID: f.Name, Locator: f.URI},
		URI:      f.URI,
		MIMEType: f.MIMEType,
	}, nil
}

func (s *GeminiFileService) Delete(ctx context.Context, h model.JobHandle) error {
	_, err := s.client.Files.Delete(ctx, h.ID, nil)
	return err
}

func fileState(st genai.FileState) model.JobState {
	switch st {
	case genai.FileStateActive:
		return model.JobStateReady
	case genai.FileStateFailed:
		return model.JobStateFailed
	default:
		// PROCESSING and STATE_UNSPECIFIED
		return model.JobStatePending
	}
}

// readHead returns up to 512 bytes for content sniffing; errors are ignored.
func readHead(path string) []byte {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	buf := make([]byte, 512)
	n, _ := io.ReadFull(f, buf)
	return buf[:n]
}
