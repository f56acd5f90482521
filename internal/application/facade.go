package application

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"opsvision/internal/domain/model"
	"opsvision/internal/domain/ports/adapter"
	"opsvision/internal/usecase"
)

// Facade composes the usecases into CLI commands.
// Methods return printable strings so the entry point just forwards them.
type Facade struct {
	Video VideoAnalyzerIface
	Image ImageUseCaseIface
	Chat  ChatUseCaseIface
	Agent AgentIface

	Manuals ManualsIface
}

// NewFacade accepts nil for any usecase the caller does not need; the
// matching commands then return an error.
func NewFacade(video VideoAnalyzerIface, image ImageUseCaseIface, chat ChatUseCaseIface, agent AgentIface) *Facade {
	return &Facade{Video: video, Image: image, Chat: chat, Agent: agent}
}

// WithManuals enables the ingest, search and recall commands.
func (f *Facade) WithManuals(m ManualsIface) *Facade {
	f.Manuals = m
	return f
}

// HandleVideo runs one analysis to completion. Timelines are printed as
// indented JSON, the other modes as plain text.
func (f *Facade) HandleVideo(ctx context.Context, path, mode, question string) (string, error) {
	if f.Video == nil {
		return "", fmt.Errorf("video usecase not available")
	}
	m, err := model.ParseAnalysisMode(mode)
	if err != nil {
		return "", fmt.Errorf("mode %q: %w", mode, err)
	}
	job, err := f.Video.Analyze(ctx, usecase.AnalysisRequest{Path: path, Mode: m, Question: question})
	if err != nil {
		return "", err
	}
	return FormatResult(job)
}

// HandleFollowUp asks another question about a finished analysis.
func (f *Facade) HandleFollowUp(ctx context.Context, id, question string) (string, error) {
	if f.Video == nil {
		return "", fmt.Errorf("video usecase not available")
	}
	answer, err := f.Video.FollowUp(ctx, id, question)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

func FormatResult(job *model.AnalysisJob) (string, error) {
	if job == nil || job.Result == nil {
		return "", fmt.Errorf("analysis produced no result")
	}
	if job.Mode == model.AnalysisModeTimeline {
		events := job.Result.Events
		if events == nil {
			events = []model.Event{}
		}
		b, err := json.MarshalIndent(events, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encode timeline: %w", err)
		}
		return string(b), nil
	}
	return strings.TrimSpace(job.Result.Text), nil
}

// HandleImage lists up to limit items, one per line.
func (f *Facade) HandleImage(ctx context.Context, path string, limit int) (string, error) {
	if f.Image == nil {
		return "", fmt.Errorf("image usecase not available")
	}
	items, err := f.Image.IdentifyItems(ctx, path, limit)
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "No items identified.", nil
	}
	var sb strings.Builder
	for i, it := range items {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, it)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// HandleChat sends a single prompt, optionally under a system instruction.
func (f *Facade) HandleChat(ctx context.Context, modelName, system, prompt string) (string, error) {
	if f.Chat == nil {
		return "", fmt.Errorf("chat usecase not available")
	}
	var msgs []adapter.Message
	if strings.TrimSpace(system) != "" {
		msgs = append(msgs, adapter.Message{Role: "system", Content: system})
	}
	msgs = append(msgs, adapter.Message{Role: "user", Content: prompt})
	reply, usage, err := f.Chat.Chat(ctx, modelName, msgs)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s\n\n[tokens: prompt=%d completion=%d total=%d]",
		strings.TrimSpace(reply), usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens), nil
}

func (f *Facade) HandleTokens(ctx context.Context, modelName, prompt string) (string, error) {
	if f.Chat == nil {
		return "", fmt.Errorf("chat usecase not available")
	}
	n, err := f.Chat.CountTokens(ctx, modelName, []adapter.Message{{Role: "user", Content: prompt}})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d tokens", n), nil
}

func (f *Facade) HandleModels(ctx context.Context) (string, error) {
	if f.Chat == nil {
		return "", fmt.Errorf("chat usecase not available")
	}
	models, err := f.Chat.ListModels(ctx)
	if err != nil {
		return "", fmt.Errorf("list models: %w", err)
	}
	if len(models) == 0 {
		return "No models available.", nil
	}
	return strings.Join(models, "\n"), nil
}

// HandleAgent runs the agent and, when verbose, prefixes the tool trace.
func (f *Facade) HandleAgent(ctx context.Context, prompt string, verbose bool) (string, error) {
	if f.Agent == nil {
		return "", fmt.Errorf("agent not available")
	}
	answer, history, err := f.Agent.Run(ctx, prompt)
	if err != nil {
		return "", err
	}
	if !verbose {
		return strings.TrimSpace(answer), nil
	}
	var sb strings.Builder
	for _, m := range history {
		for _, c := range m.Calls {
			args, _ := json.Marshal(c.Args)
			fmt.Fprintf(&sb, "-> %s %s\n", c.Name, args)
		}
		for _, r := range m.Results {
			out, _ := json.Marshal(r.Output)
			fmt.Fprintf(&sb, "<- %s %s\n", r.Name, out)
		}
	}
	sb.WriteString(strings.TrimSpace(answer))
	return sb.String(), nil
}

// snippetLen bounds how much of a manual chunk is echoed back.
const snippetLen = 160

func (f *Facade) HandleIngest(ctx context.Context, paths []string, meta map[string]string) (string, error) {
	if f.Manuals == nil {
		return "", fmt.Errorf("manuals not available")
	}
	rep, err := f.Manuals.Ingest(ctx, paths, meta)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Ingested %d chunks from %d manuals.", rep.Chunks, rep.Sources)
	for _, s := range rep.Skipped {
		fmt.Fprintf(&sb, "\nskipped (empty): %s", s)
	}
	return sb.String(), nil
}

// HandleSearch prints the best chunks with their cosine scores.
func (f *Facade) HandleSearch(ctx context.Context, query string, k int, filter map[string]string) (string, error) {
	if f.Manuals == nil {
		return "", fmt.Errorf("manuals not available")
	}
	hits, err := f.Manuals.Search(ctx, query, k, filter)
	if err != nil {
		return "", err
	}
	if len(hits) == 0 {
		return "No matching manual passages.", nil
	}
	var sb strings.Builder
	for i, h := range hits {
		fmt.Fprintf(&sb, "%d. [%.3f] %s#%d: %s\n", i+1, h.Score, h.Chunk.Source, h.Chunk.Seq, snippet(h.Chunk.Text))
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// HandleRecall lists the items in an image, each with the manual passage
// that covers it, if any.
func (f *Facade) HandleRecall(ctx context.Context, path string, limit int) (string, error) {
	if f.Manuals == nil {
		return "", fmt.Errorf("manuals not available")
	}
	recalls, err := f.Manuals.Recall(ctx, path, limit)
	if err != nil {
		return "", err
	}
	if len(recalls) == 0 {
		return "No items identified.", nil
	}
	var sb strings.Builder
	for i, r := range recalls {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, r.Item)
		if r.Hit == nil {
			sb.WriteString("   no manual entry\n")
			continue
		}
		fmt.Fprintf(&sb, "   %s#%d (%.2f): %s\n", r.Hit.Chunk.Source, r.Hit.Chunk.Seq, r.Hit.Score, snippet(r.Hit.Chunk.Text))
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func snippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= snippetLen {
		return s
	}
	return string(r[:snippetLen]) + "..."
}
