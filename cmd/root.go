package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/trialkit/trialkit/trial"
	"github.com/trialkit/trialkit/trial/device"
	"github.com/trialkit/trialkit/trial/trace"
)

var (
	// CLI flags for the train command
	configPath string // Experiment YAML
	workers    int    // Number of local workers (slots_per_trial)
	localSize  int    // Workers per simulated host (slots_per_host)
	batches    int    // Batches to train
	seed       int64  // Trial seed
	traceLevel string // Step-cycle trace level

	// CLI flags shared by every command
	logLevel string // Log verbosity level
	logFile  string // Rotating log file
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "trialkit",
	Short: "Distributed training trial context with local workers",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		closeLog, err := setupLogging(logLevel, logFile)
		if err != nil {
			return err
		}
		cobra.OnFinalize(closeLog)
		return nil
	},
}

// trainCmd trains the reference model with one trial context per worker
var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the reference model with local workers",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := DefaultExperimentConfig()
		if configPath != "" {
			var err error
			if cfg, err = LoadExperimentConfig(configPath); err != nil {
				logrus.Fatalf("%v", err)
			}
		}
		// Flags override the experiment file only when set explicitly.
		if cmd.Flags().Changed("workers") {
			cfg.Resources.SlotsPerTrial = workers
		}
		if cmd.Flags().Changed("local-size") {
			cfg.Resources.SlotsPerHost = localSize
		}
		if cmd.Flags().Changed("seed") {
			cfg.Seed = seed
		}
		if cmd.Flags().Changed("trace") {
			cfg.Trace = traceLevel
		}

		gpus, err := resolveGPUs(cfg)
		if err != nil {
			logrus.Fatalf("Failed to discover GPUs: %v", err)
		}
		logrus.Infof("Starting trial with %d worker(s), aggregation_frequency=%d, mixed_precision=%v, %d GPU(s)",
			cfg.Resources.SlotsPerTrial, cfg.Optimizations.AggregationFrequency, cfg.MixedPrecision.Enabled, len(gpus))

		startTime := time.Now()
		result, err := runTrial(cfg, batches, gpus)
		if err != nil {
			logrus.Fatalf("Trial failed: %v", err)
		}
		if err := printJSON("Trial Results", result); err != nil {
			logrus.Fatalf("Failed to print results: %v", err)
		}
		logrus.Infof("Training complete in %v.", time.Since(startTime))
	},
}

// devicesCmd describes the host and the device a worker would train on
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Show the host CPU, visible GPUs and the resolved device",
	Run: func(cmd *cobra.Command, args []string) {
		gpus, err := device.VisibleGPUs()
		if err != nil {
			logrus.Fatalf("Failed to discover GPUs: %v", err)
		}
		ctx, err := trial.NewContext(trial.Config{
			Env:         trial.Env{ContainerGPUs: device.IDs(gpus)},
			Distributed: trial.NewDistributedConfig(false),
		})
		if err != nil {
			logrus.Fatalf("Failed to resolve device: %v", err)
		}

		fmt.Printf("Host: %s\n", device.Host())
		fmt.Printf("GPUs: %d\n", len(gpus))
		for _, g := range gpus {
			fmt.Printf("  [%d] id=%s", g.Index, g.ID)
			if g.Name != "" {
				fmt.Printf(" name=%q memory=%d compute=%s", g.Name, g.MemoryBytes, g.ComputeCapability)
			}
			fmt.Println()
		}
		fmt.Printf("Device: %s\n", ctx.Device())
	},
}

func printJSON(header string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Printf("=== %s ===\n%s\n", header, data)
	return nil
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write logs to this file, rotated at 100MB")

	trainCmd.Flags().StringVar(&configPath, "config", "", "Experiment YAML (defaults are used for omitted fields)")
	trainCmd.Flags().IntVar(&workers, "workers", 1, "Number of local workers; more than one enables distributed training")
	trainCmd.Flags().IntVar(&localSize, "local-size", 0, "Workers per simulated host (0: all on one host)")
	trainCmd.Flags().IntVar(&batches, "batches", 32, "Number of batches to train")
	trainCmd.Flags().Int64Var(&seed, "seed", 42, "Trial seed")
	trainCmd.Flags().StringVar(&traceLevel, "trace", string(trace.TraceLevelNone), "Step-cycle trace level (none, steps)")

	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(devicesCmd)
}
