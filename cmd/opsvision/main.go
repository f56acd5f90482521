// File: cmd/opsvision/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"opsvision/internal/application"
	"opsvision/internal/bootstrap"
	"opsvision/internal/config"
	aiAdapters "opsvision/internal/infra/adapters/ai"
	"opsvision/internal/infra/api"
	"opsvision/internal/infra/logging"
	"opsvision/internal/usecase"
)

const usage = `usage: opsvision [-config file] [-dev] <command> [flags]

commands:
  video   -mode describe|timeline|question [-q question] <file>
  ask     <analysis-id> <question>
  image   [-n 5] [-recall] <file>
  ingest  [-meta k=v,...] <file or dir>...
  search  [-k 3] [-filter k=v,...] <query>
  chat    [-model m] [-system s] <prompt>
  tokens  [-model m] <prompt>
  models
  agent   [-v] <prompt>
  jobs    [-n 20]
  token   [-sub subject] [-ttl 24h]
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("opsvision", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	cfgPath := fs.String("config", "config.yaml", "optional YAML config file")
	devMode := fs.Bool("dev", false, "console logs, no redaction")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := config.LoadConfig(*cfgPath, *devMode, true)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	// CLI output goes to stdout; logs stay on stderr and quiet by default.
	if !*devMode && os.Getenv("LOG_LEVEL") == "" {
		cfg.Log.Level = "warn"
	}
	logger := logging.NewWithWriter(cfg.Log, cfg.Runtime.Dev, stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out, err := dispatch(ctx, cfg, logger, fs.Arg(0), fs.Args()[1:])
	if err != nil {
		var ue usageError
		if errors.As(err, &ue) {
			fmt.Fprintf(stderr, "%v\n\n%s", err, usage)
			return 2
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, out)
	return 0
}

type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func dispatch(ctx context.Context, cfg *config.Config, logger *zerolog.Logger, cmd string, args []string) (string, error) {
	switch cmd {
	case "video":
		return videoCmd(ctx, cfg, logger, args)
	case "ask":
		return askCmd(ctx, cfg, logger, args)
	case "image":
		return imageCmd(ctx, cfg, logger, args)
	case "ingest", "search":
		return manualsCmd(ctx, cfg, logger, cmd, args)
	case "chat", "tokens", "models":
		return chatCmd(ctx, cfg, logger, cmd, args)
	case "agent":
		return agentCmd(ctx, cfg, logger, args)
	case "jobs":
		return jobsCmd(ctx, cfg, logger, args)
	case "token":
		return tokenCmd(cfg, args)
	}
	return "", usageError{msg: fmt.Sprintf("unknown command %q", cmd)}
}

func videoCmd(ctx context.Context, cfg *config.Config, logger *zerolog.Logger, args []string) (string, error) {
	fs := flag.NewFlagSet("video", flag.ContinueOnError)
	mode := fs.String("mode", "describe", "describe, timeline or question")
	question := fs.String("q", "", "question for -mode question")
	if err := fs.Parse(args); err != nil {
		return "", usageError{msg: err.Error()}
	}
	if fs.NArg() != 1 {
		return "", usageError{msg: "video needs exactly one file"}
	}
	if err := cfg.ValidateMedia(); err != nil {
		return "", err
	}

	media, err := bootstrap.NewMedia(ctx, cfg, logger)
	if err != nil {
		return "", err
	}
	store, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		return "", err
	}
	defer store.Close()
	notifier, err := bootstrap.NewNotifier(cfg.Notify, logger)
	if err != nil {
		return "", err
	}

	videoUC := usecase.NewVideoUseCase(media.Poller, media.Files, media.Analyzer, store.Jobs, notifier,
		usecase.VideoOptions{DeleteAfterUse: cfg.AI.DeleteAfterUse}, logger)
	return application.NewFacade(videoUC, nil, nil, nil).HandleVideo(ctx, fs.Arg(0), *mode, *question)
}

func imageCmd(ctx context.Context, cfg *config.Config, logger *zerolog.Logger, args []string) (string, error) {
	fs := flag.NewFlagSet("image", flag.ContinueOnError)
	limit := fs.Int("n", 5, "maximum number of items")
	recall := fs.Bool("recall", false, "look each item up in the ingested manuals")
	if err := fs.Parse(args); err != nil {
		return "", usageError{msg: err.Error()}
	}
	if fs.NArg() != 1 {
		return "", usageError{msg: "image needs exactly one file"}
	}
	if err := cfg.ValidateMedia(); err != nil {
		return "", err
	}
	media, err := bootstrap.NewMedia(ctx, cfg, logger)
	if err != nil {
		return "", err
	}
	imageUC := usecase.NewImageUseCase(media.Analyzer)
	f := application.NewFacade(nil, imageUC, nil, nil)
	if !*recall {
		return f.HandleImage(ctx, fs.Arg(0), *limit)
	}

	manuals, err := bootstrap.OpenManualStore(ctx, cfg.Manuals, logger)
	if err != nil {
		return "", err
	}
	defer manuals.Close()
	uc := usecase.NewManualUseCase(manuals.Chunks, bootstrap.NewEmbedder(cfg, media.Client), imageUC,
		bootstrap.ManualOptions(cfg.Manuals), logger)
	return f.WithManuals(uc).HandleRecall(ctx, fs.Arg(0), *limit)
}

// askCmd reuses the remote file of a finished analysis, so the video is
// not uploaded again.
func askCmd(ctx context.Context, cfg *config.Config, logger *zerolog.Logger, args []string) (string, error) {
	if len(args) < 2 {
		return "", usageError{msg: "ask needs an analysis id and a question"}
	}
	question := strings.TrimSpace(strings.Join(args[1:], " "))
	if question == "" {
		return "", usageError{msg: "ask needs a question"}
	}
	if err := cfg.ValidateMedia(); err != nil {
		return "", err
	}
	media, err := bootstrap.NewMedia(ctx, cfg, logger)
	if err != nil {
		return "", err
	}
	store, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		return "", err
	}
	defer store.Close()

	videoUC := usecase.NewVideoUseCase(media.Poller, media.Files, media.Analyzer, store.Jobs, nil, usecase.VideoOptions{}, logger)
	return application.NewFacade(videoUC, nil, nil, nil).HandleFollowUp(ctx, args[0], question)
}

func manualsCmd(ctx context.Context, cfg *config.Config, logger *zerolog.Logger, cmd string, args []string) (string, error) {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	var pairs *string
	k := 3
	if cmd == "ingest" {
		pairs = fs.String("meta", "", "metadata stored with every chunk, k=v,...")
	} else {
		pairs = fs.String("filter", "", "only chunks whose metadata matches, k=v,...")
		fs.IntVar(&k, "k", 3, "number of passages")
	}
	if err := fs.Parse(args); err != nil {
		return "", usageError{msg: err.Error()}
	}
	kv, err := parsePairs(*pairs)
	if err != nil {
		return "", usageError{msg: err.Error()}
	}
	if fs.NArg() == 0 {
		return "", usageError{msg: cmd + " needs at least one argument"}
	}
	if err := cfg.ValidateMedia(); err != nil {
		return "", err
	}

	client, err := aiAdapters.NewGeminiClient(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL)
	if err != nil {
		return "", err
	}
	manuals, err := bootstrap.OpenManualStore(ctx, cfg.Manuals, logger)
	if err != nil {
		return "", err
	}
	defer manuals.Close()
	uc := usecase.NewManualUseCase(manuals.Chunks, bootstrap.NewEmbedder(cfg, client), nil,
		bootstrap.ManualOptions(cfg.Manuals), logger)
	f := application.NewFacade(nil, nil, nil, nil).WithManuals(uc)

	if cmd == "ingest" {
		return f.HandleIngest(ctx, fs.Args(), kv)
	}
	return f.HandleSearch(ctx, strings.Join(fs.Args(), " "), k, kv)
}

// parsePairs reads "k=v,k2=v2". An empty string yields nil.
func parsePairs(s string) (map[string]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	out := map[string]string{}
	for _, p := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("bad pair %q, want key=value", p)
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out, nil
}

func chatCmd(ctx context.Context, cfg *config.Config, logger *zerolog.Logger, cmd string, args []string) (string, error) {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	modelName := fs.String("model", "", "model name; provider is inferred")
	system := fs.String("system", "", "system instruction")
	if err := fs.Parse(args); err != nil {
		return "", usageError{msg: err.Error()}
	}
	prompt := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if cmd != "models" && prompt == "" {
		return "", usageError{msg: cmd + " needs a prompt"}
	}

	var client *genai.Client
	if cfg.AI.GeminiKey != "" {
		c, err := aiAdapters.NewGeminiClient(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL)
		if err != nil {
			return "", err
		}
		client = c
	}
	chatAI, err := bootstrap.NewChatAI(cfg, client, logger)
	if err != nil {
		return "", err
	}
	f := application.NewFacade(nil, nil, usecase.NewChatUseCase(chatAI, bootstrap.DefaultChatModel(cfg, client != nil)), nil)

	switch cmd {
	case "models":
		return f.HandleModels(ctx)
	case "tokens":
		return f.HandleTokens(ctx, *modelName, prompt)
	}
	return f.HandleChat(ctx, *modelName, *system, prompt)
}

func agentCmd(ctx context.Context, cfg *config.Config, logger *zerolog.Logger, args []string) (string, error) {
	fs := flag.NewFlagSet("agent", flag.ContinueOnError)
	verbose := fs.Bool("v", false, "print tool calls")
	if err := fs.Parse(args); err != nil {
		return "", usageError{msg: err.Error()}
	}
	prompt := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if prompt == "" {
		return "", usageError{msg: "agent needs a prompt"}
	}
	if err := cfg.ValidateMedia(); err != nil {
		return "", err
	}
	media, err := bootstrap.NewMedia(ctx, cfg, logger)
	if err != nil {
		return "", err
	}
	ag, err := bootstrap.NewAgent(cfg, media.Client, logger)
	if err != nil {
		return "", err
	}
	return application.NewFacade(nil, nil, nil, ag).HandleAgent(ctx, prompt, *verbose)
}

func jobsCmd(ctx context.Context, cfg *config.Config, logger *zerolog.Logger, args []string) (string, error) {
	fs := flag.NewFlagSet("jobs", flag.ContinueOnError)
	limit := fs.Int("n", 20, "number of records")
	if err := fs.Parse(args); err != nil {
		return "", usageError{msg: err.Error()}
	}
	store, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		return "", err
	}
	defer store.Close()

	videoUC := usecase.NewVideoUseCase(nil, nil, nil, store.Jobs, nil, usecase.VideoOptions{}, logger)
	jobs, err := videoUC.List(ctx, *limit)
	if err != nil {
		return "", err
	}
	if len(jobs) == 0 {
		return "No analyses yet.", nil
	}
	var sb strings.Builder
	for _, j := range jobs {
		fmt.Fprintf(&sb, "%s  %-10s  %-8s  %s", j.ID, j.Status, j.Mode, j.CreatedAt.Local().Format(time.DateTime))
		if j.LastError != "" {
			fmt.Fprintf(&sb, "  %s", j.LastError)
		}
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func tokenCmd(cfg *config.Config, args []string) (string, error) {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	sub := fs.String("sub", "ops", "token subject")
	ttl := fs.Duration("ttl", 24*time.Hour, "validity")
	if err := fs.Parse(args); err != nil {
		return "", usageError{msg: err.Error()}
	}
	return api.NewAuthManager(cfg.API.JWTSecret).Mint(*sub, *ttl)
}
