package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/himanishpuri/NeuroMotion/pkg/config"
	"github.com/himanishpuri/NeuroMotion/pkg/logger"
	"github.com/himanishpuri/NeuroMotion/pkg/neuromotion"
)

// Global flags
var (
	configPath string
	logLevel   string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "neuromotion",
		Short:         "Brain and audio embeddings for motion decoding",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if logLevel != "" {
				logger.SetLevel(logger.ParseLevel(logLevel))
			}
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to the YAML config (env: "+config.EnvPrefix+"_CONFIG, default: "+config.DefaultPath+")")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override pipeline.log_level (debug, info, warn, error)")

	root.AddCommand(
		newStageCmd("fmri", "Embed every pending scan segment", neuromotion.Service.EmbedFMRI),
		newStageCmd("audio", "Embed every pending stimulus file", neuromotion.Service.EmbedAudio),
		newStageCmd("fuse", "Fuse brain and audio embeddings per subject segment", neuromotion.Service.Fuse),
		newTrainCmd(),
		newEvaluateCmd(),
		newMotionCmd(),
		newVideoCmd(),
		newJobsCmd(),
		newForgetCmd(),
		newConfigCmd(),
	)
	return root
}

func printBanner() {
	banner := `
 _   _                      __  __       _   _             
| \ | | ___ _   _ _ __ ___ |  \/  | ___ | |_(_) ___  _ __  
|  \| |/ _ \ | | | '__/ _ \| |\/| |/ _ \| __| |/ _ \| '_ \ 
| |\  |  __/ |_| | | | (_) | |  | | (_) | |_| | (_) | | | |
|_| \_|\___|\__,_|_|  \___/|_|  |_|\___/ \__|_|\___/|_| |_|

         fMRI + Audio Motion Decoding Pipeline
`
	fmt.Println(banner)
}

// loadConfig reads the config and applies the log level it names unless
// --log-level overrides it.
func loadConfig() (*config.Root, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel == "" {
		logger.SetLevel(logger.ParseLevel(cfg.Pipeline.LogLvl))
	}
	return cfg, nil
}

// createService creates a pipeline service from the loaded config
func createService() (neuromotion.Service, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	opts := []neuromotion.Option{
		neuromotion.WithConfig(cfg),
		neuromotion.WithLogger(logger.GetLogger()),
	}
	if cfg.Video.URL != "" {
		opts = append(opts, neuromotion.WithVideoURL(cfg.Video.URL))
	}

	fmt.Println("🔧 Initializing service...")
	svc, err := neuromotion.NewService(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	return svc, nil
}
