// Command shardarc validates range tables, resolves codes and writes
// release shards.
package main

import (
	"fmt"
	"os"

	"github.com/bsm/shardarc"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	verbose     bool
	compression string
	digest      string
	oldRelease  string
	newRelease  string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:          "shardarc",
	Short:        "Range-sharded release archives of short codes",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var checkCmd = &cobra.Command{
	Use:   "check TABLE",
	Short: "Validate a range table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := shardarc.LoadRangeIndex(args[0])
		if err != nil {
			return err
		}
		for _, service := range idx.Services() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", service, len(idx.Mappings(service)))
		}
		return nil
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve TABLE SERVICE CODE",
	Short: "Print the shard owning a code",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := shardarc.LoadRangeIndex(args[0])
		if err != nil {
			return err
		}
		m, err := idx.Resolve(args[1], args[2])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), m.File)
		return nil
	},
}

var serviceCmd = &cobra.Command{
	Use:   "service TABLE FILE",
	Short: "Print the service owning a shard file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := shardarc.LoadRangeIndex(args[0])
		if err != nil {
			return err
		}
		service, err := idx.ServiceFor(args[1])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), service)
		return nil
	},
}

var writeCmd = &cobra.Command{
	Use:   "write TABLE SERVICE",
	Short: "Write sorted code|url records from stdin into release shards",
	Long: `Reads code|url lines from stdin, sorted by code, and writes them into
the shards of the new release. Shards whose content did not change since
the old release are copied instead of recompressed.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := shardarc.LoadRangeIndex(args[0])
		if err != nil {
			return err
		}
		o, err := writerOptions()
		if err != nil {
			return err
		}

		a := &archiver{Index: idx, Service: args[1], OldDir: oldRelease, NewDir: newRelease, Options: o}
		stats, err := a.Run(cmd.InOrStdin())
		if err != nil {
			return err
		}
		logger.Info("release written",
			zap.String("service", args[1]),
			zap.Int("records", stats.Records),
			zap.Int("shards", stats.Shards),
			zap.Int("reused", stats.Reused),
		)
		return nil
	},
}

var catCmd = &cobra.Command{
	Use:   "cat ARTIFACT",
	Short: "Print the records of a compressed shard",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := shardarc.ParseCompression(compression)
		if err != nil {
			return err
		}
		r, err := shardarc.OpenReader(args[0], c)
		if err != nil {
			return err
		}
		defer r.Close()

		out := cmd.OutOrStdout()
		for r.Next() {
			fmt.Fprintf(out, "%s|%s\n", r.Code(), r.URL())
		}
		if err := r.Err(); err != nil {
			return err
		}
		return r.Close()
	},
}

func writerOptions() (*shardarc.WriterOptions, error) {
	c, err := shardarc.ParseCompression(compression)
	if err != nil {
		return nil, err
	}
	d, err := shardarc.ParseDigest(digest)
	if err != nil {
		return nil, err
	}
	return &shardarc.WriterOptions{Compression: c, Digest: d, Logger: logger}, nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&compression, "compression", "xz", "artifact codec: xz, zstd, snappy or lz4")

	writeCmd.Flags().StringVar(&digest, "digest", "md5", "content digest: md5 or blake3")
	writeCmd.Flags().StringVar(&oldRelease, "old", "", "previous release directory")
	writeCmd.Flags().StringVar(&newRelease, "new", "", "new release directory")
	_ = writeCmd.MarkFlagRequired("old")
	_ = writeCmd.MarkFlagRequired("new")

	rootCmd.AddCommand(checkCmd, resolveCmd, serviceCmd, writeCmd, catCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
