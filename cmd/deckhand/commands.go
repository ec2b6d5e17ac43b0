package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/artpar/deckhand/internal/core/compose"
	"github.com/artpar/deckhand/internal/shell/api"
	"github.com/artpar/deckhand/internal/shell/docker"
	"github.com/artpar/deckhand/internal/shell/engine"
	"github.com/artpar/deckhand/internal/shell/store"
)

// =============================================================================
// Runtime Setup
// =============================================================================

// runtime bundles the wired-up dependencies a command needs.
type runtime struct {
	cfg    *Config
	engine *engine.Engine
	store  store.Store
	docker docker.Client
	logger *slog.Logger
}

func (r *runtime) close() {
	r.docker.Close()
	r.store.Close()
}

// newRuntime loads config and connects the store and Docker client.
func newRuntime(configPath string, engineOverride func(*engine.Options)) (*runtime, int) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return nil, ExitConfigError
	}
	logger := SetupLogger(cfg)

	s, err := store.NewSQLiteStore(cfg.Database.DSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "state database error: %v\n", err)
		return nil, ExitError
	}

	d, err := docker.NewDockerClient(cfg.Docker.Host)
	if err != nil {
		s.Close()
		fmt.Fprintf(os.Stderr, "docker error: %v\n", err)
		return nil, ExitDockerError
	}
	if err := d.Ping(context.Background()); err != nil {
		s.Close()
		d.Close()
		fmt.Fprintf(os.Stderr, "docker is not reachable: %v\n", err)
		return nil, ExitDockerError
	}

	opts := engine.Options{
		StartTimeout:       cfg.Engine.StartTimeout,
		StopTimeout:        cfg.Engine.StopTimeout,
		MaxRestartAttempts: cfg.Engine.MaxRestartAttempts,
		LayerConcurrency:   cfg.Engine.LayerConcurrency,
	}
	if engineOverride != nil {
		engineOverride(&opts)
	}

	return &runtime{
		cfg:    cfg,
		engine: engine.New(d, s, opts, logger),
		store:  s,
		docker: d,
		logger: logger,
	}, ExitSuccess
}

// =============================================================================
// Descriptor Helpers
// =============================================================================

var projectNameRegex = regexp.MustCompile(`[^a-z0-9_-]+`)

// deriveProject derives a project name from the descriptor's directory.
func deriveProject(descriptorPath string) string {
	abs, err := filepath.Abs(descriptorPath)
	if err != nil {
		abs = descriptorPath
	}
	name := strings.ToLower(filepath.Base(filepath.Dir(abs)))
	name = projectNameRegex.ReplaceAllString(name, "")
	if name == "" || name == "." || name == "/" {
		name = "default"
	}
	return name
}

// loadDescriptor reads and parses a descriptor file.
func loadDescriptor(path string) ([]byte, *compose.Descriptor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot read descriptor: %w", err)
	}
	desc, err := compose.Parse(raw)
	if err != nil {
		return nil, nil, err
	}
	return raw, desc, nil
}

// processVariables collects the process environment for ${VAR} substitution.
func processVariables() map[string]string {
	vars := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}
	return vars
}

// =============================================================================
// up
// =============================================================================

func upCmd(args []string) int {
	fs := flag.NewFlagSet("up", flag.ExitOnError)
	file := fs.String("f", "deckhand.yaml", "Path to descriptor file")
	project := fs.String("p", "", "Project name (default: descriptor directory name)")
	detach := fs.Bool("d", false, "Deploy and exit; the runtime daemon handles restarts")
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	raw, desc, err := loadDescriptor(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return ExitConfigError
	}
	if *project == "" {
		*project = deriveProject(*file)
	}

	rt, code := newRuntime(*configPath, func(o *engine.Options) {
		o.Detached = *detach
	})
	if code != ExitSuccess {
		return code
	}
	defer rt.close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	result, err := rt.engine.Up(ctx, engine.UpParams{
		Project:    *project,
		Descriptor: desc,
		RawYAML:    raw,
		Variables:  processVariables(),
	})
	if result != nil {
		for _, name := range result.Started {
			fmt.Printf("started   %s\n", name)
		}
		for _, name := range result.Failed {
			fmt.Printf("failed    %s\n", name)
		}
		for _, name := range result.Skipped {
			fmt.Printf("skipped   %s\n", name)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "deploy error: %v\n", err)
		return ExitError
	}

	if *detach {
		fmt.Printf("project %s deployed\n", *project)
		return ExitSuccess
	}

	// Foreground mode: supervise restarts until interrupted. Containers
	// keep running after exit; `deckhand down` tears them down.
	fmt.Printf("project %s deployed, supervising (Ctrl+C to detach)\n", *project)
	if err := rt.engine.Watch(ctx, *project); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "supervision error: %v\n", err)
		return ExitError
	}
	return ExitSuccess
}

// =============================================================================
// down
// =============================================================================

func downCmd(args []string) int {
	fs := flag.NewFlagSet("down", flag.ExitOnError)
	file := fs.String("f", "deckhand.yaml", "Path to the deployment descriptor")
	project := fs.String("p", "", "Project name (default: derived from the descriptor path)")
	volumes := fs.Bool("v", false, "Also remove named volumes")
	fs.BoolVar(volumes, "volumes", false, "Also remove named volumes")
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	if *project == "" {
		*project = deriveProject(*file)
	}

	rt, code := newRuntime(*configPath, nil)
	if code != ExitSuccess {
		return code
	}
	defer rt.close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rt.engine.Down(ctx, *project, engine.DownOptions{RemoveVolumes: *volumes}); err != nil {
		fmt.Fprintf(os.Stderr, "teardown error: %v\n", err)
		return ExitError
	}
	fmt.Printf("project %s removed\n", *project)
	return ExitSuccess
}

// =============================================================================
// ps
// =============================================================================

func psCmd(args []string) int {
	fs := flag.NewFlagSet("ps", flag.ExitOnError)
	project := fs.String("p", "", "Project name (default: list all projects)")
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	rt, code := newRuntime(*configPath, nil)
	if code != ExitSuccess {
		return code
	}
	defer rt.close()

	ctx := context.Background()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	if *project == "" {
		deployments, err := rt.engine.ListProjects(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return ExitError
		}
		fmt.Fprintln(w, "PROJECT\tSTATUS\tCREATED")
		for _, d := range deployments {
			fmt.Fprintf(w, "%s\t%s\t%s\n", d.Project, d.Status, d.CreatedAt.Format(time.RFC3339))
		}
		return ExitSuccess
	}

	status, err := rt.engine.Ps(ctx, *project)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return ExitError
	}

	fmt.Fprintln(w, "SERVICE\tSTATE\tHEALTH\tRESTARTS\tCONTAINER")
	for _, svc := range status.Services {
		containerID := svc.ContainerID
		if len(containerID) > 12 {
			containerID = containerID[:12]
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			svc.ServiceName, svc.State, svc.Health, svc.RestartCount, containerID)
	}
	return ExitSuccess
}

// =============================================================================
// logs
// =============================================================================

func logsCmd(args []string) int {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	project := fs.String("p", "", "Project name")
	service := fs.String("s", "", "Service name")
	follow := fs.Bool("f", false, "Follow log output")
	tail := fs.String("tail", "all", "Number of lines to show from the end")
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	if *service == "" && fs.NArg() == 1 {
		*service = fs.Arg(0)
	}
	if *project == "" || *service == "" {
		fmt.Fprintln(os.Stderr, "usage: deckhand logs -p <project> -s <service>")
		return ExitUsageError
	}

	rt, code := newRuntime(*configPath, nil)
	if code != ExitSuccess {
		return code
	}
	defer rt.close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rc, err := rt.engine.Logs(ctx, *project, *service, docker.LogOptions{
		Follow: *follow,
		Tail:   *tail,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return ExitError
	}
	defer rc.Close()

	if _, err := io.Copy(os.Stdout, rc); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "log stream error: %v\n", err)
		return ExitError
	}
	return ExitSuccess
}

// =============================================================================
// config
// =============================================================================

func configCmd(args []string) int {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	file := fs.String("f", "deckhand.yaml", "Path to descriptor file")
	fs.Parse(args)

	_, desc, err := loadDescriptor(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return ExitConfigError
	}

	out, err := yaml.Marshal(desc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return ExitError
	}
	os.Stdout.Write(out)
	return ExitSuccess
}

// =============================================================================
// serve
// =============================================================================

func serveCmd(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	rt, code := newRuntime(*configPath, nil)
	if code != ExitSuccess {
		return code
	}
	defer rt.close()

	logger := rt.logger
	handler := api.NewHandler(rt.engine, rt.docker, logger)

	srv := &http.Server{
		Addr:         rt.cfg.API.Address(),
		Handler:      handler.Routes(),
		ReadTimeout:  rt.cfg.API.ReadTimeout,
		WriteTimeout: rt.cfg.API.WriteTimeout,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("status API listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			return ExitError
		}
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), rt.cfg.API.ShutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
			return ExitError
		}
		logger.Info("status API stopped")
	}
	return ExitSuccess
}
