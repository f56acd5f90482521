package application_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"opsvision/internal/application"
	"opsvision/internal/domain"
	"opsvision/internal/domain/model"
	"opsvision/internal/domain/ports/adapter"
	"opsvision/internal/usecase"
)

type mockVideo struct {
	got usecase.AnalysisRequest
	job *model.AnalysisJob
	err error
}

func (m *mockVideo) Analyze(_ context.Context, req usecase.AnalysisRequest) (*model.AnalysisJob, error) {
	m.got = req
	return m.job, m.err
}

func (m *mockVideo) FollowUp(_ context.Context, id, question string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return " " + id + ": " + question + "\n", nil
}

type mockImage struct {
	items []string
	err   error
}

func (m *mockImage) IdentifyItems(context.Context, string, int) ([]string, error) {
	return m.items, m.err
}

type mockChat struct {
	msgs   []adapter.Message
	models []string
}

func (m *mockChat) Chat(_ context.Context, _ string, msgs []adapter.Message) (string, adapter.Usage, error) {
	m.msgs = msgs
	return " hi there \n", adapter.Usage{PromptTokens: 2, CompletionTokens: 3, TotalTokens: 5}, nil
}

func (m *mockChat) CountTokens(_ context.Context, _ string, msgs []adapter.Message) (int, error) {
	return len(msgs) * 7, nil
}

func (m *mockChat) ListModels(context.Context) ([]string, error) { return m.models, nil }

type mockAgent struct{}

func (mockAgent) Run(context.Context, string) (string, []adapter.AgentMessage, error) {
	history := []adapter.AgentMessage{
		{Role: "user", Text: "status of db-01?"},
		{Role: "model", Calls: []adapter.ToolCall{{ID: "1", Name: "check_server_status", Args: map[string]any{"hostname": "db-01"}}}},
		{Role: "tool", Results: []adapter.ToolResult{{CallID: "1", Name: "check_server_status", Output: map[string]any{"state": "CRITICAL"}}}},
	}
	return "db-01 is critical", history, nil
}

func TestHandleVideo(t *testing.T) {
	ctx := context.Background()

	t.Run("text", func(t *testing.T) {
		v := &mockVideo{job: &model.AnalysisJob{Mode: model.AnalysisModeQuestion, Result: &model.AnalysisResult{Text: " two people \n"}}}
		f := application.NewFacade(v, nil, nil, nil)
		out, err := f.HandleVideo(ctx, "clip.mp4", "QUESTION", "how many?")
		if err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
		if out != "two people" {
			t.Fatalf("out = %q", out)
		}
		if v.got.Mode != model.AnalysisModeQuestion || v.got.Question != "how many?" {
			t.Fatalf("request = %+v", v.got)
		}
	})

	t.Run("timeline", func(t *testing.T) {
		v := &mockVideo{job: &model.AnalysisJob{Mode: model.AnalysisModeTimeline, Result: &model.AnalysisResult{
			Events: []model.Event{{Start: "00:00", End: "00:03", Description: "door opens"}},
		}}}
		out, err := application.NewFacade(v, nil, nil, nil).HandleVideo(ctx, "clip.mp4", "timeline", "")
		if err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
		if !strings.Contains(out, `"description": "door opens"`) {
			t.Fatalf("timeline not rendered as JSON: %s", out)
		}
	})

	t.Run("bad mode", func(t *testing.T) {
		_, err := application.NewFacade(&mockVideo{}, nil, nil, nil).HandleVideo(ctx, "clip.mp4", "sing", "")
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("want ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("usecase error", func(t *testing.T) {
		v := &mockVideo{err: domain.ErrTimeout}
		_, err := application.NewFacade(v, nil, nil, nil).HandleVideo(ctx, "clip.mp4", "", "")
		if !errors.Is(err, domain.ErrTimeout) {
			t.Fatalf("want ErrTimeout, got %v", err)
		}
	})

	t.Run("not wired", func(t *testing.T) {
		if _, err := application.NewFacade(nil, nil, nil, nil).HandleVideo(ctx, "x", "", ""); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestHandleImage(t *testing.T) {
	f := application.NewFacade(nil, &mockImage{items: []string{"router", "patch panel"}}, nil, nil)
	out, err := f.HandleImage(context.Background(), "rack.jpg", 5)
	if err != nil {
		t.Fatal(err)
	}
	if out != "1. router\n2. patch panel" {
		t.Fatalf("out = %q", out)
	}

	f = application.NewFacade(nil, &mockImage{}, nil, nil)
	out, _ = f.HandleImage(context.Background(), "rack.jpg", 5)
	if out != "No items identified." {
		t.Fatalf("out = %q", out)
	}
}

func TestHandleChatAndModels(t *testing.T) {
	c := &mockChat{models: []string{"gemini-2.5-flash", "gpt-4o-mini"}}
	f := application.NewFacade(nil, nil, c, nil)
	ctx := context.Background()

	out, err := f.HandleChat(ctx, "", "be brief", "hello")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "hi there\n") || !strings.Contains(out, "total=5") {
		t.Fatalf("out = %q", out)
	}
	if len(c.msgs) != 2 || c.msgs[0].Role != "system" || c.msgs[1].Role != "user" {
		t.Fatalf("messages = %+v", c.msgs)
	}

	out, _ = f.HandleModels(ctx)
	if out != "gemini-2.5-flash\ngpt-4o-mini" {
		t.Fatalf("models = %q", out)
	}

	out, _ = f.HandleTokens(ctx, "", "count me")
	if out != "7 tokens" {
		t.Fatalf("tokens = %q", out)
	}
}

func TestHandleAgent(t *testing.T) {
	f := application.NewFacade(nil, nil, nil, mockAgent{})
	out, err := f.HandleAgent(context.Background(), "status of db-01?", false)
	if err != nil || out != "db-01 is critical" {
		t.Fatalf("out = %q err = %v", out, err)
	}

	out, _ = f.HandleAgent(context.Background(), "status of db-01?", true)
	for _, want := range []string{`-> check_server_status {"hostname":"db-01"}`, `<- check_server_status {"state":"CRITICAL"}`, "db-01 is critical"} {
		if !strings.Contains(out, want) {
			t.Fatalf("verbose output missing %q:\n%s", want, out)
		}
	}
}

type mockManuals struct {
	meta   map[string]string
	filter map[string]string
	hits   []model.ManualHit
	recall []model.ItemRecall
}

func (m *mockManuals) Ingest(_ context.Context, _ []string, meta map[string]string) (usecase.IngestReport, error) {
	m.meta = meta
	return usecase.IngestReport{Sources: 2, Chunks: 9, Skipped: []string{"blank.txt"}}, nil
}

func (m *mockManuals) Search(_ context.Context, _ string, _ int, filter map[string]string) ([]model.ManualHit, error) {
	m.filter = filter
	return m.hits, nil
}

func (m *mockManuals) Recall(context.Context, string, int) ([]model.ItemRecall, error) {
	return m.recall, nil
}

func TestHandleFollowUp(t *testing.T) {
	f := application.NewFacade(&mockVideo{}, nil, nil, nil)
	out, err := f.HandleFollowUp(context.Background(), "job-1", "who enters?")
	if err != nil || out != "job-1: who enters?" {
		t.Fatalf("out = %q err = %v", out, err)
	}

	f = application.NewFacade(&mockVideo{err: domain.ErrRemoteGone}, nil, nil, nil)
	if _, err := f.HandleFollowUp(context.Background(), "job-1", "q"); !errors.Is(err, domain.ErrRemoteGone) {
		t.Fatalf("want ErrRemoteGone, got %v", err)
	}
}

func TestHandleManuals(t *testing.T) {
	ctx := context.Background()
	hit := model.ManualHit{
		Chunk: model.ManualChunk{Source: "ups.md", Seq: 2, Text: "Swap the\nbattery " + strings.Repeat("x", 300)},
		Score: 0.8731,
	}
	m := &mockManuals{
		hits: []model.ManualHit{hit},
		recall: []model.ItemRecall{
			{Item: "UPS", Hit: &hit},
			{Item: "Fan"},
		},
	}
	f := application.NewFacade(nil, nil, nil, nil).WithManuals(m)

	out, err := f.HandleIngest(ctx, []string{"manuals/"}, map[string]string{"site": "fra"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "Ingested 9 chunks from 2 manuals.\nskipped (empty): blank.txt" {
		t.Fatalf("ingest = %q", out)
	}
	if m.meta["site"] != "fra" {
		t.Fatalf("meta = %v", m.meta)
	}

	out, err = f.HandleSearch(ctx, "battery", 3, map[string]string{"vendor": "apc"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "1. [0.873] ups.md#2: Swap the battery x") || !strings.HasSuffix(out, "...") {
		t.Fatalf("search = %q", out)
	}
	if m.filter["vendor"] != "apc" {
		t.Fatalf("filter = %v", m.filter)
	}

	out, err = f.HandleRecall(ctx, "rack.jpg", 5)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"1. UPS\n   ups.md#2 (0.87): Swap the battery", "2. Fan\n   no manual entry"} {
		if !strings.Contains(out, want) {
			t.Fatalf("recall missing %q:\n%s", want, out)
		}
	}

	m.hits = nil
	out, _ = f.HandleSearch(ctx, "nothing", 3, nil)
	if out != "No matching manual passages." {
		t.Fatalf("empty search = %q", out)
	}

	if _, err := application.NewFacade(nil, nil, nil, nil).HandleSearch(ctx, "q", 1, nil); err == nil {
		t.Fatal("expected error without manuals")
	}
}
