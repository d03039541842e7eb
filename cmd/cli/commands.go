package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/himanishpuri/NeuroMotion/pkg/config"
	"github.com/himanishpuri/NeuroMotion/pkg/logger"
	"github.com/himanishpuri/NeuroMotion/pkg/models"
	"github.com/himanishpuri/NeuroMotion/pkg/neuromotion"
)

type stageFunc func(neuromotion.Service, context.Context) (*neuromotion.Report, error)

func newStageCmd(use, short string, run stageFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printBanner()
			svc, err := createService()
			if err != nil {
				return err
			}
			defer svc.Close()

			fmt.Printf("⚙️  Running %s stage...\n", use)
			rep, err := run(svc, cmd.Context())
			if err != nil {
				return err
			}
			printReport(use, rep)
			if rep.Failed > 0 {
				return fmt.Errorf("%d %s unit(s) failed", rep.Failed, use)
			}
			return nil
		},
	}
}

func printReport(stage string, rep *neuromotion.Report) {
	fmt.Printf("\n✅ %s: %d completed, %d skipped, %d missing input, %d failed\n",
		stage, rep.Completed, rep.Skipped, rep.Missing, rep.Failed)
	for _, f := range rep.Failures {
		fmt.Printf("   ❌ %s: %s\n", f.Key, f.Error)
	}
	logger.Infof("%s stage finished: %+v", stage, *rep)
}

func newTrainCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "train [fmri|fusion|all]",
		Short:     "Fit motion decoders, resuming from stored checkpoints",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"fmri", "fusion", "all"},
		RunE: func(cmd *cobra.Command, args []string) error {
			modes := []neuromotion.Mode{neuromotion.ModeFMRI, neuromotion.ModeFusion}
			if len(args) == 1 && args[0] != "all" {
				switch m := neuromotion.Mode(args[0]); m {
				case neuromotion.ModeFMRI, neuromotion.ModeFusion:
					modes = []neuromotion.Mode{m}
				default:
					return fmt.Errorf("unknown mode %q, expected fmri, fusion or all", args[0])
				}
			}

			printBanner()
			svc, err := createService()
			if err != nil {
				return err
			}
			defer svc.Close()

			for _, mode := range modes {
				fmt.Printf("🧠 Training %s decoder...\n", mode)
				sum, err := svc.Train(cmd.Context(), mode)
				if err != nil {
					return fmt.Errorf("train %s: %w", mode, err)
				}
				fmt.Printf("   Pairs:      %d new, %d already seen\n", sum.Pairs, sum.Skipped)
				fmt.Printf("   Samples:    %s\n", humanize.Comma(int64(sum.Samples)))
				fmt.Printf("   Resumed:    %t\n", sum.Resumed)
				fmt.Printf("   Checkpoint: %s\n", sum.Checkpoint)
			}
			return nil
		},
	}
}

func newEvaluateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate",
		Short: "Score both decoders on held-out segments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printBanner()
			svc, err := createService()
			if err != nil {
				return err
			}
			defer svc.Close()

			fmt.Println("📊 Evaluating decoders...")
			res, err := svc.Evaluate(cmd.Context())
			if err != nil {
				return err
			}
			if res.Cached {
				fmt.Printf("\nℹ️  Results already exist at %s\n", res.Path)
			} else {
				fmt.Printf("\n✅ Wrote %s (run %s)\n", res.Path, res.RunID)
			}
			printRecords(res.Records)
			return nil
		},
	}
}

func printRecords(records []models.MetricsRecord) {
	if len(records) == 0 {
		fmt.Println("\n📭 No segments evaluated")
		return
	}
	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SEGMENT\tMSE FMRI\tMSE FUSION\tCORR FMRI\tCORR FUSION")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.Segment,
			metric(r.MSEFMRI), metric(r.MSEFusion), metric(r.CorrFMRI), metric(r.CorrFusion))
	}
	w.Flush()
}

func metric(v float64) string {
	if math.IsNaN(v) {
		return "nan"
	}
	return fmt.Sprintf("%.4f", v)
}

func newMotionCmd() *cobra.Command {
	motion := &cobra.Command{
		Use:   "motion",
		Short: "Manage motion targets",
	}
	var segment string
	importCmd := &cobra.Command{
		Use:   "import <csv>",
		Short: "Publish a per-frame magnitude/angle CSV as a segment's motion targets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := createService()
			if err != nil {
				return err
			}
			defer svc.Close()

			out, err := svc.ImportMotion(cmd.Context(), args[0], segment)
			if err != nil {
				return err
			}
			fmt.Printf("✅ Imported %s → %s\n", args[0], out)
			return nil
		},
	}
	importCmd.Flags().StringVar(&segment, "segment", "", "Segment id (default: file name without _motion)")
	motion.AddCommand(importCmd)
	return motion
}

func newVideoCmd() *cobra.Command {
	var imagePath string
	cmd := &cobra.Command{
		Use:   "video <subject> <segment>",
		Short: "Generate a clip seeded by decoded motion",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			image, err := os.ReadFile(imagePath)
			if err != nil {
				return fmt.Errorf("failed to read seed image: %w", err)
			}
			svc, err := createService()
			if err != nil {
				return err
			}
			defer svc.Close()

			fmt.Printf("🎬 Generating video for %s/%s...\n", args[0], args[1])
			res, err := svc.GenerateVideo(cmd.Context(), args[0], args[1], image)
			if err != nil {
				return err
			}
			fmt.Printf("\n✅ Published %d frame(s), seed %d\n", len(res.Frames), res.Seed)
			for _, f := range res.Frames {
				fmt.Printf("   %s\n", f)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&imagePath, "image", "", "Seed image (PNG or JPEG)")
	cmd.MarkFlagRequired("image")
	return cmd
}

func newJobsCmd() *cobra.Command {
	var stage string
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List completed units",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := createService()
			if err != nil {
				return err
			}
			defer svc.Close()

			jobs, err := svc.Jobs(cmd.Context(), stage)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Println("\n📭 No completed jobs")
				return nil
			}
			fmt.Printf("\n📚 Found %d job(s):\n\n", len(jobs))
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STAGE\tKEY\tOUTPUTS\tCOMPLETED")
			for _, j := range jobs {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", j.Stage, j.Key, len(j.Outputs), humanize.Time(j.CompletedAt))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&stage, "stage", "", "Only list this stage")
	return cmd
}

func newForgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forget <stage> <key>",
		Short: "Drop a ledger record so the unit runs again",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := createService()
			if err != nil {
				return err
			}
			defer svc.Close()

			if err := svc.Forget(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("✅ Forgot %s %s\n", args[0], args[1])
			return nil
		},
	}
}

func newConfigCmd() *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultPath
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			if err := config.Write(path, config.Default()); err != nil {
				return err
			}
			fmt.Printf("✅ Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	cfgCmd.AddCommand(initCmd)
	return cfgCmd
}
