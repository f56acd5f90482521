package usecase

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"opsvision/internal/domain"
	"opsvision/internal/domain/ports/adapter"
)

const maxImageBytes = 20 << 20

type ImageUseCase interface {
	IdentifyItems(ctx context.Context, path string, limit int) ([]string, error)
}

type imageUC struct {
	analyzer adapter.ImageAnalyzer
}

func NewImageUseCase(analyzer adapter.ImageAnalyzer) *imageUC {
	return &imageUC{analyzer: analyzer}
}

// IdentifyItems sends the image inline; it is small enough not to need the file API.
func (u *imageUC) IdentifyItems(ctx context.Context, path string, limit int) ([]string, error) {
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		return nil, fmt.Errorf("%w: %s", domain.ErrInputNotFound, path)
	}
	if fi.Size() > maxImageBytes {
		return nil, fmt.Errorf("%w: image larger than %d bytes", domain.ErrInvalidArgument, maxImageBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInputNotFound, err)
	}
	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, fmt.Errorf("%w: not an image (%s)", domain.ErrInvalidArgument, mimeType)
	}
	return u.analyzer.IdentifyItems(ctx, mimeType, data, limit)
}
