package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"opsvision/internal/domain"
	"opsvision/internal/domain/model"
	"opsvision/internal/domain/ports/adapter"
	"opsvision/internal/domain/ports/repository"
	"opsvision/internal/infra/metrics"
)

var _ ManualUseCase = (*manualUC)(nil)

// manualExts are the file types picked up when a directory is ingested.
var manualExts = map[string]bool{".txt": true, ".md": true}

const maxSearchResults = 20

// IngestReport summarises one ingest run.
type IngestReport struct {
	Sources int      `json:"sources"`
	Chunks  int      `json:"chunks"`
	Skipped []string `json:"skipped,omitempty"`
}

type ManualUseCase interface {
	// Ingest chunks, embeds and stores every manual under paths. Files are
	// stored by base name, so re-ingesting a file replaces its chunks.
	Ingest(ctx context.Context, paths []string, meta map[string]string) (IngestReport, error)
	// Search ranks stored chunks against query, keeping only chunks whose
	// metadata matches filter.
	Search(ctx context.Context, query string, k int, filter map[string]string) ([]model.ManualHit, error)
	// Recall identifies items in an image and looks each one up in the manuals.
	Recall(ctx context.Context, imagePath string, items int) ([]model.ItemRecall, error)
	Sources(ctx context.Context) (map[string]int, error)
}

type ManualOptions struct {
	ChunkWords   int
	ChunkOverlap int
	// MinScore is the cosine similarity a recall hit must reach.
	MinScore float64
}

type manualUC struct {
	repo     repository.ManualRepository
	embedder adapter.Embedder
	images   ImageUseCase
	opts     ManualOptions
	log      *zerolog.Logger
}

func NewManualUseCase(
	repo repository.ManualRepository,
	embedder adapter.Embedder,
	images ImageUseCase,
	opts ManualOptions,
	logger *zerolog.Logger,
) *manualUC {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if opts.ChunkWords <= 0 {
		opts.ChunkWords = 120
	}
	l := logger.With().Str("component", "ManualUseCase").Logger()
	return &manualUC{repo: repo, embedder: embedder, images: images, opts: opts, log: &l}
}

func (u *manualUC) Ingest(ctx context.Context, paths []string, meta map[string]string) (IngestReport, error) {
	var rep IngestReport
	files, err := manualFiles(paths)
	if err != nil {
		return rep, err
	}
	if len(files) == 0 {
		return rep, fmt.Errorf("%w: no .txt or .md manuals under %s", domain.ErrInputNotFound, strings.Join(paths, ", "))
	}

	for _, path := range files {
		n, err := u.ingestFile(ctx, path, meta)
		if err != nil {
			return rep, fmt.Errorf("ingest %s: %w", path, err)
		}
		if n == 0 {
			rep.Skipped = append(rep.Skipped, path)
			continue
		}
		rep.Sources++
		rep.Chunks += n
	}
	metrics.IncManualChunks(rep.Chunks)
	u.log.Info().Int("sources", rep.Sources).Int("chunks", rep.Chunks).Int("skipped", len(rep.Skipped)).Msg("manuals ingested")
	return rep, nil
}

func (u *manualUC) ingestFile(ctx context.Context, path string, meta map[string]string) (int, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrInputNotFound, err)
	}
	texts := chunkWords(string(body), u.opts.ChunkWords, u.opts.ChunkOverlap)
	if len(texts) == 0 {
		return 0, nil
	}
	vecs, err := u.embedder.Embed(ctx, adapter.EmbedTaskDocument, texts)
	if err != nil {
		return 0, err
	}
	if len(vecs) != len(texts) {
		return 0, fmt.Errorf("%w: %d vectors for %d chunks", domain.ErrMalformedResult, len(vecs), len(texts))
	}

	source := filepath.Base(path)
	chunks := make([]*model.ManualChunk, len(texts))
	for i, text := range texts {
		c, err := model.NewManualChunk(source, i, text, meta)
		if err != nil {
			return 0, err
		}
		c.Embedding = vecs[i]
		chunks[i] = c
	}
	if err := u.repo.ReplaceSource(ctx, source, chunks); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// manualFiles expands directories into their manual files, sorted.
func manualFiles(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		fi, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrInputNotFound, p)
		}
		if !fi.IsDir() {
			out = append(out, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && manualExts[strings.ToLower(filepath.Ext(path))] {
				out = append(out, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", p, err)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (u *manualUC) Search(ctx context.Context, query string, k int, filter map[string]string) ([]model.ManualHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidArgument)
	}
	if k <= 0 {
		k = 3
	}
	k = min(k, maxSearchResults)

	vecs, err := u.embedder.Embed(ctx, adapter.EmbedTaskQuery, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: %d vectors for one query", domain.ErrMalformedResult, len(vecs))
	}
	chunks, err := u.repo.ListChunks(ctx)
	if err != nil {
		return nil, err
	}
	return rank(vecs[0], chunks, k, filter), nil
}

func (u *manualUC) Recall(ctx context.Context, imagePath string, items int) ([]model.ItemRecall, error) {
	found, err := u.images.IdentifyItems(ctx, imagePath, items)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, nil
	}

	vecs, err := u.embedder.Embed(ctx, adapter.EmbedTaskQuery, found)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(found) {
		return nil, fmt.Errorf("%w: %d vectors for %d items", domain.ErrMalformedResult, len(vecs), len(found))
	}
	chunks, err := u.repo.ListChunks(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]model.ItemRecall, len(found))
	for i, item := range found {
		out[i] = model.ItemRecall{Item: item}
		hits := rank(vecs[i], chunks, 1, nil)
		if len(hits) == 0 || hits[0].Score < u.opts.MinScore {
			metrics.IncRecall(false)
			continue
		}
		metrics.IncRecall(true)
		out[i].Hit = &hits[0]
	}
	return out, nil
}

func (u *manualUC) Sources(ctx context.Context) (map[string]int, error) {
	return u.repo.Sources(ctx)
}

// rank scores chunks by cosine similarity and keeps the best k.
func rank(query []float32, chunks []*model.ManualChunk, k int, filter map[string]string) []model.ManualHit {
	hits := make([]model.ManualHit, 0, len(chunks))
	for _, c := range chunks {
		if !c.Matches(filter) {
			continue
		}
		score, err := cosine(query, c.Embedding)
		if err != nil {
			continue
		}
		hits = append(hits, model.ManualHit{Chunk: *c, Score: score})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

var errDimension = errors.New("vector dimensions differ")

func cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, errDimension
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}
