package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xtmatch/xtmatch/internal/config"
	"github.com/xtmatch/xtmatch/internal/log"
	"github.com/xtmatch/xtmatch/internal/rule"
	"github.com/xtmatch/xtmatch/internal/rule/match"
	"github.com/xtmatch/xtmatch/internal/statistics"
	"github.com/xtmatch/xtmatch/internal/u32"
)

var (
	AppVersion    = "Development"
	shutdownChain []func() error
)

var rootCmd = &cobra.Command{
	Use:   "xtmatch",
	Short: "xtmatch evaluates u32 and port match rules against packets",
	Long:  "xtmatch evaluates an ordered list of u32, UDP/TCP port and address rules against IP packets read from a pcap file, hex arguments or stdin, and prints one verdict per packet.",
	RunE:  runRoot,
}

func init() {
	cobra.OnInitialize(initConfig)

	// Short flags
	rootCmd.Flags().StringP("config", "c", "", "Config file path")
	rootCmd.Flags().StringP("log-level", "l", "", "Log level")
	rootCmd.Flags().StringP("rules", "r", "", "Rules as a JSON array")
	rootCmd.Flags().BoolP("version", "v", false, "Show version")
	rootCmd.Flags().BoolP("generate-config", "g", false, "Generate template config file")

	// Long flags
	rootCmd.Flags().String("log-file", "", "Log file path")
	rootCmd.Flags().String("default-action", "", "Verdict when no rule decides: ACCEPT, DROP")
	rootCmd.Flags().String("at-mode", "", "u32 @ semantics: absolute, cumulative")
	rootCmd.Flags().String("backend", "", "u32 evaluator: native, bpf")
	rootCmd.Flags().Int("cache-size", 0, "Compiled expression cache size")
	rootCmd.Flags().String("stats-file", "", "Statistics file path")
	rootCmd.Flags().Duration("stats-interval", 0, "Statistics dump interval")
	rootCmd.Flags().String("pcap", "", "Read packets from a pcap file")
	rootCmd.Flags().StringSlice("hex", nil, "Hex encoded packets starting at the IP header")

	// Bind all flags to viper using consistent key names
	_ = viper.BindPFlag("config", rootCmd.Flags().Lookup("config"))
	_ = viper.BindPFlag("log-level", rootCmd.Flags().Lookup("log-level"))
	_ = viper.BindPFlag("log-file", rootCmd.Flags().Lookup("log-file"))
	_ = viper.BindPFlag("rules-json", rootCmd.Flags().Lookup("rules"))
	_ = viper.BindPFlag("default-action", rootCmd.Flags().Lookup("default-action"))
	_ = viper.BindPFlag("at-mode", rootCmd.Flags().Lookup("at-mode"))
	_ = viper.BindPFlag("backend", rootCmd.Flags().Lookup("backend"))
	_ = viper.BindPFlag("cache-size", rootCmd.Flags().Lookup("cache-size"))
	_ = viper.BindPFlag("stats-file", rootCmd.Flags().Lookup("stats-file"))
	_ = viper.BindPFlag("stats-interval", rootCmd.Flags().Lookup("stats-interval"))

	// Bind environment variables
	viper.SetEnvPrefix("XTMATCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	_ = viper.BindEnv("rules-json", "XTMATCH_RULES")
}

func initConfig() {
	configFile := viper.GetString("config")
	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.MergeInConfig(); err != nil {
			slog.Error("Failed to read config file", slog.Any("error", err))
			os.Exit(1)
		}
	}

	viper.SetDefault("log-level", "info")
	viper.SetDefault("default-action", "ACCEPT")
	viper.SetDefault("at-mode", "absolute")
	viper.SetDefault("backend", "native")
	viper.SetDefault("cache-size", 128)
	viper.SetDefault("stats-interval", "10s")
}

func runRoot(cmd *cobra.Command, args []string) error {
	// Handle -v / --version
	showVer, _ := cmd.Flags().GetBool("version")
	if showVer {
		fmt.Printf("xtmatch version %s\n", AppVersion)
		return nil
	}

	// Handle -g / --generate-config
	genConfig, _ := cmd.Flags().GetBool("generate-config")
	if genConfig {
		_, err := config.GenerateTemplateConfig(true)
		if err != nil {
			return fmt.Errorf("failed to generate template config: %w", err)
		}
		fmt.Println("Template config file 'config.yaml' generated successfully.")
		return nil
	}

	cfg, err := config.BuildConfigFromViper()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	logCloser := log.SetLogConf(cfg.LogLevel, cfg.LogFile)
	addShutdown("logCloser.Close", logCloser.Close)
	log.LogHeader(AppVersion, cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	engine, recorder, err := newEngine(cfg)
	if err != nil {
		slog.Error("newEngine", slog.Any("error", err))
		shutdown()
		return err
	}
	recorder.Run()
	addShutdown("recorder.Close", recorder.Close)

	pcapFile, _ := cmd.Flags().GetString("pcap")
	hexPackets, _ := cmd.Flags().GetStringSlice("hex")
	src, err := openSource(pcapFile, hexPackets, cmd.InOrStdin())
	if err != nil {
		slog.Error("openSource", slog.Any("error", err))
		shutdown()
		return err
	}
	addShutdown("src.Close", src.Close)

	err = evaluate(ctx, engine, src, cmd.OutOrStdout())
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("evaluate", slog.Any("error", err))
	}
	slog.Info("Evaluation finished", slog.Uint64("packets", recorder.Packets()), slog.Uint64("dropped stats", recorder.Dropped()))
	shutdown()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newEngine(cfg *config.Config) (*rule.Engine, *statistics.Recorder, error) {
	mode, err := u32.ParseATMode(cfg.ATMode)
	if err != nil {
		return nil, nil, err
	}
	cache, err := match.NewCache(cfg.CacheSize)
	if err != nil {
		return nil, nil, err
	}

	reg := match.NewRegistry()
	if err := match.RegisterDefaults(reg); err != nil {
		return nil, nil, err
	}

	opts := &match.Options{
		ATMode:  mode,
		Backend: cfg.Backend,
		Cache:   cache,
	}
	recorder := statistics.NewRecorder(log.ResolvePath(cfg.StatsFile), cfg.StatsInterval)

	engine, err := rule.NewEngine(cfg.Rules, cfg.DefaultAction, reg, opts, recorder)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("Rules loaded", slog.Int("rules", len(engine.Rules())), slog.Int("configured", len(cfg.Rules)))
	return engine, recorder, nil
}

func addShutdown(name string, fn func() error) {
	shutdownChain = append(shutdownChain, func() error {
		if err := fn(); err != nil {
			slog.Error(name, slog.Any("error", err))
			return err
		}
		return nil
	})
}

func shutdown() {
	for i := len(shutdownChain) - 1; i >= 0; i-- {
		_ = shutdownChain[i]()
	}
	shutdownChain = nil
	slog.Info("xtmatch exit")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
