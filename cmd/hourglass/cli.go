package main

import (
	"flag"
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/born-ml/hourglass/backend/cpu"
	"github.com/born-ml/hourglass/hourglass"
	"github.com/born-ml/hourglass/internal/config"
	"github.com/born-ml/hourglass/nn"
	"github.com/born-ml/hourglass/tensor"
)

// NewCLI builds the root command with the summary, forward and version
// sub-commands.
func NewCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hourglass",
		Short: "Build and inspect hourglass keypoint networks",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Disable usage printing on errors
			cmd.SilenceUsage = true
		},
	}

	klogFlags := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(klogFlags)
	rootCmd.PersistentFlags().AddGoFlagSet(klogFlags)
	rootCmd.PersistentFlags().String("config", "", "YAML network description (defaults to the built-in depth-2 network)")

	cobra.EnableCommandSorting = false

	summaryCmd := &cobra.Command{
		Use:   "summary",
		Args:  cobra.NoArgs,
		Short: "Print the levels and parameter count of a network",
		RunE:  SummaryHandler,
	}

	forwardCmd := &cobra.Command{
		Use:   "forward",
		Args:  cobra.NoArgs,
		Short: "Run one forward pass on random input",
		RunE:  ForwardHandler,
	}
	forwardCmd.Flags().Int("batch", 1, "Batch size of the random input")
	forwardCmd.Flags().Int("size", 64, "Height and width of the random input")
	forwardCmd.Flags().Bool("sequential", false, "Run every kernel on the calling goroutine")

	versionCmd := &cobra.Command{
		Use:   "version",
		Args:  cobra.NoArgs,
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hourglass %s\n", version)
		},
	}

	rootCmd.AddCommand(
		summaryCmd,
		forwardCmd,
		versionCmd,
	)

	return rootCmd
}

// loadNetwork reads --config, falling back to config.Default.
func loadNetwork(cmd *cobra.Command) (config.Network, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Network{}, err
	}
	if path == "" {
		klog.V(1).Info("no --config given, using the default network")
		return config.Default(), nil
	}
	return config.Load(path)
}

func buildNetwork(cfg config.Network, backend *cpu.Backend) *hourglass.Module[*cpu.Backend] {
	start := time.Now()
	net := hourglass.NewWithKernel(cfg.Depth, cfg.KernelSize, cfg.Channels, cfg.Modules, cfg.BlockOptions(), backend)
	net.SetTraining(cfg.Training)
	klog.V(1).Infof("built depth-%d hourglass with %s parameters in %s",
		cfg.Depth, humanize.Comma(int64(nn.CountParameters[*cpu.Backend](net))), time.Since(start))
	return net
}

// SummaryHandler prints one table row per hourglass level.
func SummaryHandler(cmd *cobra.Command, _ []string) error {
	cfg, err := loadNetwork(cmd)
	if err != nil {
		return err
	}
	if len(cfg.Channels) > cfg.Depth+1 {
		klog.Warningf("channels has %d entries, only the first %d are used", len(cfg.Channels), cfg.Depth+1)
	}

	net := buildNetwork(cfg, cpu.New())

	var data [][]string
	for _, l := range net.Levels() {
		data = append(data, []string{
			fmt.Sprint(l.Depth),
			fmt.Sprintf("%d -> %d", l.Channels, l.NextChannels),
			fmt.Sprint(l.Modules),
			humanize.Comma(int64(l.Parameters)),
		})
	}

	out := cmd.OutOrStdout()
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"DEPTH", "CHANNELS", "MODULES", "PARAMETERS"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()

	total := nn.CountParameters[*cpu.Backend](net)
	fmt.Fprintf(out, "\nTotal parameters: %s (%s as float32)\n",
		humanize.Comma(int64(total)), humanize.Bytes(uint64(total)*4))
	return nil
}

// ForwardHandler runs the network once on N(0, 1) input.
func ForwardHandler(cmd *cobra.Command, _ []string) error {
	cfg, err := loadNetwork(cmd)
	if err != nil {
		return err
	}

	batch, err := cmd.Flags().GetInt("batch")
	if err != nil {
		return err
	}
	size, err := cmd.Flags().GetInt("size")
	if err != nil {
		return err
	}
	sequential, err := cmd.Flags().GetBool("sequential")
	if err != nil {
		return err
	}

	if batch <= 0 || size <= 0 {
		return errors.Errorf("--batch and --size must be positive, got %d and %d", batch, size)
	}
	if step := 1 << cfg.Depth; size%step != 0 {
		return errors.Errorf("--size %d must be divisible by 2^%d = %d", size, cfg.Depth, step)
	}

	backend := cpu.New()
	if sequential {
		backend = cpu.NewWithConfig(cpu.SequentialConfig())
	}
	net := buildNetwork(cfg, backend)

	if err := cmd.Context().Err(); err != nil {
		return errors.Wrap(err, "forward cancelled")
	}

	x := tensor.Randn[float32](tensor.Shape{batch, cfg.Channels[0], size, size}, backend)
	start := time.Now()
	y := net.Forward(x)
	elapsed := time.Since(start)
	klog.V(1).Infof("forward pass took %s", elapsed)

	data := y.Data()
	var sum, sumSq float64
	for _, v := range data {
		sum += float64(v)
		sumSq += float64(v) * float64(v)
	}
	mean := sum / float64(len(data))
	std := math.Sqrt(math.Max(sumSq/float64(len(data))-mean*mean, 0))

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "input:  %v\n", x.Shape())
	fmt.Fprintf(out, "output: %v (%s)\n", y.Shape(), humanize.Bytes(uint64(y.Raw().ByteSize())))
	fmt.Fprintf(out, "mean:   %.4f  std: %.4f\n", mean, std)
	fmt.Fprintf(out, "time:   %s\n", elapsed.Round(time.Millisecond))
	return nil
}
