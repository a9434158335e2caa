// Copyright 2025 Berth Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/berthd/berth/pkg/api"
	"github.com/berthd/berth/pkg/debug"
	"github.com/berthd/berth/pkg/logger"
	"github.com/berthd/berth/pkg/modules"
	"github.com/berthd/berth/pkg/upload"
	"github.com/berthd/berth/pkg/utils"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ServeOpts holds all configuration for the upload server.
type ServeOpts struct {
	// Network binding
	BindAddr  string // Address to bind to (e.g., "127.0.0.1:2233")
	DebugPort int    // Debug HTTP port

	// Filesystem layout
	UploadsRoot  string
	TempRoot     string
	FrontendRoot string
	MinFreeSpace *utils.FreeSpace

	// Limits
	ChunkSize           int64 // advisory size clients should slice chunks at
	MaxFileSize         int64
	GlobalMaxConcurrent int64
	MaxMergeConcurrent  int64
	MaxChunkConcurrent  int64
	MaxLocks            int

	// Janitor
	CleanupInterval time.Duration
	LockIdleTTL     time.Duration
	ProgressIdleTTL time.Duration
	TempFileTTL     time.Duration
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the upload server",
	Long: `Start the berth upload server. It serves the upload API and static
files on bind_addr and the metrics/pprof surface on debug_port.`,
	Run: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	f := serveCmd.Flags()

	f.String("bind_addr", "127.0.0.1:2233", "Address to bind the HTTP server (host:port)")
	f.Int("debug_port", 2333, "Debug/metrics HTTP port (binds to same host as bind_addr)")

	f.String("uploads_root", "./uploads", "Directory holding finished files, one subdirectory per module")
	f.String("temp_root", "./temp", "Directory holding in-flight chunk files")
	f.String("frontend_root", "./frontend", "Directory with the web frontend; empty disables it")
	f.String("min_free_space", "5", "Free space threshold for the uploads disk (percent or humanized bytes)")

	f.String("chunk_size", "5MiB", "Chunk size clients are advised to use (humanized)")
	f.String("max_file_size", "10GB", "Largest accepted declared file size (humanized, e.g. '10GB')")
	f.Int64("global_max_concurrent", 64, "Upload requests admitted at once")
	f.Int64("max_merge_concurrent", 4, "Merges running at once (0 shares the global pool)")
	f.Int64("max_chunk_concurrent", 3, "Disk copies running at once (0 disables the limit)")
	f.Int("max_locks", upload.DefaultMaxLocks, "File lock entries kept before eviction")

	f.Duration("cleanup_interval", upload.DefaultCleanupInterval, "Time between janitor passes")
	f.Duration("lock_idle_ttl", upload.DefaultLockIdleTTL, "Idle time before a lock entry is evicted")
	f.Duration("progress_idle_ttl", upload.DefaultProgressIdleTTL, "Idle time before a progress entry is evicted")
	f.Duration("temp_file_ttl", upload.DefaultTempFileTTL, "Age before an orphaned temp file is deleted")

	viper.BindPFlags(f)
}

func runServe(cmd *cobra.Command, args []string) {
	utils.LoadConfiguration("berth", false)
	opts := loadServeOpts(cmd)

	debug.SetNotReady()

	for _, dir := range []string{opts.UploadsRoot, opts.TempRoot} {
		if err := utils.EnsureDir(dir); err != nil {
			logger.Fatal().Err(err).Str("dir", dir).Msg("data directory is not usable")
		}
	}
	if opts.FrontendRoot != "" {
		if _, err := os.Stat(opts.FrontendRoot); err != nil {
			logger.Warn().Str("dir", opts.FrontendRoot).Msg("frontend directory not found, disabling frontend")
			opts.FrontendRoot = ""
		}
	}

	admission := upload.NewAdmission(opts.GlobalMaxConcurrent, opts.MaxMergeConcurrent, opts.MaxChunkConcurrent)
	locks := upload.NewLockRegistry(opts.MaxLocks)
	tracker := upload.NewProgressTracker()
	stats := upload.NewStats()

	receiver := upload.NewReceiver(upload.ReceiverConfig{
		TempRoot:    opts.TempRoot,
		MaxFileSize: opts.MaxFileSize,
	}, admission, tracker, stats)
	merger := upload.NewMerger(upload.MergerConfig{
		UploadsRoot: opts.UploadsRoot,
		TempRoot:    opts.TempRoot,
	}, locks, tracker)
	advisor := upload.NewAdvisor(opts.UploadsRoot, opts.TempRoot)
	janitor := upload.NewJanitor(upload.JanitorConfig{
		TempRoot:        opts.TempRoot,
		Interval:        opts.CleanupInterval,
		LockIdleTTL:     opts.LockIdleTTL,
		ProgressIdleTTL: opts.ProgressIdleTTL,
		TempFileTTL:     opts.TempFileTTL,
	}, locks, tracker)

	server := api.NewServer(api.Config{
		UploadsRoot:  opts.UploadsRoot,
		FrontendRoot: opts.FrontendRoot,
		MinFreeSpace: opts.MinFreeSpace,
	}, api.Deps{
		Receiver:  receiver,
		Merger:    merger,
		Advisor:   advisor,
		Janitor:   janitor,
		Admission: admission,
		Locks:     locks,
		Tracker:   tracker,
		Stats:     stats,
		Modules:   modules.NewService(opts.UploadsRoot, opts.TempRoot),
	})

	logger.Info().
		Str("version", Version).
		Str("bind_addr", opts.BindAddr).
		Str("uploads_root", opts.UploadsRoot).
		Str("temp_root", opts.TempRoot).
		Str("chunk_size", humanize.IBytes(uint64(opts.ChunkSize))).
		Str("max_file_size", humanize.Bytes(uint64(opts.MaxFileSize))).
		Int64("global_max_concurrent", opts.GlobalMaxConcurrent).
		Msg("Upload server configuration")

	janitor.Start()

	bindHost, bindPort := splitBindAddr(opts.BindAddr)
	httpServer := startHTTPServer(server.Handler(), bindHost, bindPort)
	debugServer := startHTTPServer(debug.GetMux(), bindHost, opts.DebugPort)

	debug.SetReady()

	waitForShutdown()

	debug.SetNotReady()
	httpServer.Shutdown(cmd.Context())
	debugServer.Shutdown(cmd.Context())
	janitor.Stop()

	// One last pass so a clean shutdown leaves no stale temp files
	// behind.
	janitor.RunOnce(context.Background())
}

func loadServeOpts(cmd *cobra.Command) ServeOpts {
	f := NewFlagLoader(cmd)

	maxFileSizeStr := f.String("max_file_size")
	maxFileSize, err := humanize.ParseBytes(maxFileSizeStr)
	if err != nil {
		logger.Fatal().Err(err).Str("max_file_size", maxFileSizeStr).Msg("invalid max_file_size")
	}

	chunkSizeStr := f.String("chunk_size")
	chunkSize, err := humanize.ParseBytes(chunkSizeStr)
	if err != nil {
		logger.Fatal().Err(err).Str("chunk_size", chunkSizeStr).Msg("invalid chunk_size")
	}

	minFreeStr := f.String("min_free_space")
	minFree, err := utils.ParseMinFreeSpace(minFreeStr)
	if err != nil {
		logger.Fatal().Err(err).Str("min_free_space", minFreeStr).Msg("invalid min_free_space")
	}

	return ServeOpts{
		BindAddr:  f.String("bind_addr"),
		DebugPort: f.Int("debug_port"),

		UploadsRoot:  utils.ResolvePath(f.String("uploads_root")),
		TempRoot:     utils.ResolvePath(f.String("temp_root")),
		FrontendRoot: f.String("frontend_root"),
		MinFreeSpace: minFree,

		ChunkSize:           int64(chunkSize),
		MaxFileSize:         int64(maxFileSize),
		GlobalMaxConcurrent: f.Int64("global_max_concurrent"),
		MaxMergeConcurrent:  f.Int64("max_merge_concurrent"),
		MaxChunkConcurrent:  f.Int64("max_chunk_concurrent"),
		MaxLocks:            f.Int("max_locks"),

		CleanupInterval: f.Duration("cleanup_interval"),
		LockIdleTTL:     f.Duration("lock_idle_ttl"),
		ProgressIdleTTL: f.Duration("progress_idle_ttl"),
		TempFileTTL:     f.Duration("temp_file_ttl"),
	}
}

func splitBindAddr(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		logger.Fatal().Err(err).Str("bind_addr", addr).Msg("invalid bind_addr format, expected host:port")
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		logger.Fatal().Err(err).Str("bind_addr", addr).Msg("invalid bind_addr port")
	}
	return host, port
}

func startHTTPServer(handler http.Handler, ip string, port int) *http.Server {
	listener, err := utils.NewListener(utils.JoinHostPort(ip, port), 0)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create HTTP listener")
	}

	httpServer := &http.Server{Handler: handler}
	go func() {
		logger.Info().Str("http_addr", utils.JoinHostPort(ip, port)).Msg("Starting HTTP server")
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("failed to start HTTP server")
		}
	}()
	return httpServer
}

func waitForShutdown() {
	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, os.Interrupt, syscall.SIGALRM, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	<-stopChan
}
