package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	sim "github.com/qnet-sim/qnet-sim/sim"
)

var (
	// CLI flags for the simulation run
	seed         int64  // Master seed for all random streams
	horizon      int64  // Total simulation time (in ticks)
	logLevel     string // Log verbosity level
	topologyFile string // Path to the YAML topology description
	metricsOut   string // Path for the JSON entanglement record dump ("" = skip)
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "qnetsim",
	Short: "Discrete-event simulator for quantum-network entanglement generation",
}

// runCmd executes the simulation using parameters from CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the network simulation",
	Run: func(cmd *cobra.Command, args []string) {
		// Set up logging
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		if topologyFile == "" {
			logrus.Fatalf("No topology file provided. Exiting simulation.")
		}
		cfg, err := GetTopologyConfig(topologyFile)
		if err != nil {
			logrus.Fatalf("Unable to read topology config: %v", err)
		}

		logrus.Infof("Starting simulation: %d nodes, %d heralding nodes, horizon=%d ticks, seed=%d",
			len(cfg.Nodes), len(cfg.BSMNodes), horizon, seed)

		tl := sim.NewTimeline()
		rng := sim.NewPartitionedRNG(sim.NewSimulationKey(seed))
		metrics := sim.NewMetrics()

		net, err := sim.BuildNetwork(cfg, tl, rng, metrics)
		if err != nil {
			logrus.Fatalf("Topology build failed: %v", err)
		}
		if err := net.LoadFlows(cfg.Flows); err != nil {
			logrus.Fatalf("Rule loading failed: %v", err)
		}

		net.Run(horizon)
		metrics.Print(horizon)

		if metricsOut != "" {
			f, err := os.Create(metricsOut)
			if err != nil {
				logrus.Fatalf("Cannot create metrics output %s: %v", metricsOut, err)
			}
			defer f.Close()
			if err := metrics.WriteJSON(f); err != nil {
				logrus.Fatalf("Cannot write metrics output: %v", err)
			}
			logrus.Infof("Entanglement records written to %s", metricsOut)
		}

		logrus.Info("Simulation complete.")
	},
}

func init() {
	runCmd.Flags().Int64Var(&seed, "seed", 0, "Master seed for deterministic replay")
	runCmd.Flags().Int64Var(&horizon, "horizon", 1e12, "Simulation horizon in ticks (picoseconds)")
	runCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	runCmd.Flags().StringVar(&topologyFile, "topology", "", "Path to YAML topology description")
	runCmd.Flags().StringVar(&metricsOut, "metrics-out", "", "Path for JSON entanglement records")

	rootCmd.AddCommand(runCmd)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
