package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/paulschiretz/pgl-mirror/pkg/buildinfo"
	"github.com/paulschiretz/pgl-mirror/pkg/config"
	"github.com/paulschiretz/pgl-mirror/pkg/lockfile"
	"github.com/paulschiretz/pgl-mirror/pkg/pathsync"
	"github.com/paulschiretz/pgl-mirror/pkg/plog"
	"github.com/paulschiretz/pgl-mirror/pkg/safeguard"
	"github.com/paulschiretz/pgl-mirror/pkg/toolcheck"
	"github.com/paulschiretz/pgl-mirror/pkg/toolexec"
	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// action defines a special command to execute instead of a mirror run.
type action int

const (
	actionRunMirror action = iota // The default action is to run a mirror.
	actionShowVersion
	actionInitConfig
)

// init is called before main. We use it to set up a custom, more descriptive
// help message for the command-line flags.
func init() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage of %s (version %s):\n", buildinfo.Name, buildinfo.Version)
		fmt.Fprintf(flag.CommandLine.Output(), "A directory mirroring utility that prefers rsync and falls back to a built-in recursive copy.\n\n")
		flag.PrintDefaults()
	}
}

// parseFlagConfig defines and parses command-line flags, and constructs a
// configuration map containing only the values provided by those flags.
func parseFlagConfig() (action, map[string]interface{}, error) {
	configFlag := flag.String("config", "", "Path to the configuration file. Defaults to '"+config.ConfigFileName+"' in the working directory.")
	srcFlag := flag.String("source", "", "Source directory to mirror from")
	targetFlag := flag.String("target", "", "Target directory to mirror into. Its previous contents are replaced.")
	logLevelFlag := flag.String("log-level", "info", "Set the logging level: 'debug', 'notice', 'info', 'warn', 'error'.")
	toolModeFlag := flag.String("tool-mode", "auto", "External tool usage: 'auto' (probe for rsync), 'always' or 'never'.")
	metricsFlag := flag.Bool("metrics", false, "Enable detailed performance and file-counting metrics.")
	safeguardFlag := flag.Bool("safeguard", false, "Archive the target directory before it is replaced.")
	safeguardFormatFlag := flag.String("safeguard-format", "", "Safeguard archive format: 'tar.gz' or 'tar.zst'.")
	initFlag := flag.Bool("init", false, "Generate a default "+config.ConfigFileName+" file and exit.")
	versionFlag := flag.Bool("version", false, "Print the application version and exit.")

	flag.Parse()

	// Create a map of the flags that were explicitly set by the user, along with their values.
	// This map is used to selectively override the base configuration.
	usedFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { usedFlags[f.Name] = true })

	flagMap := make(map[string]interface{})

	// Helper to add a value to the map only if the corresponding flag was set.
	addIfUsed := func(name string, value interface{}) {
		if usedFlags[name] {
			flagMap[name] = value
		}
	}

	addIfUsed("config", *configFlag)
	addIfUsed("source", *srcFlag)
	addIfUsed("target", *targetFlag)
	addIfUsed("log-level", *logLevelFlag)
	addIfUsed("metrics", *metricsFlag)
	addIfUsed("safeguard", *safeguardFlag)

	// Handle flags that require parsing/validation.
	if usedFlags["tool-mode"] {
		mode, err := config.ParseToolMode(*toolModeFlag)
		if err != nil {
			return actionRunMirror, nil, err
		}
		flagMap["tool-mode"] = mode
	}
	if usedFlags["safeguard-format"] {
		format, err := safeguard.ParseFormat(*safeguardFormatFlag)
		if err != nil {
			return actionRunMirror, nil, err
		}
		flagMap["safeguard-format"] = format
	}

	// Determine which action to take based on flags.
	if *versionFlag {
		return actionShowVersion, flagMap, nil
	}
	if *initFlag {
		return actionInitConfig, flagMap, nil
	}
	return actionRunMirror, flagMap, nil
}

// runInit handles the logic for the 'init' action.
func runInit(flagMap map[string]interface{}) error {
	runConfig := config.MergeConfigWithFlags(config.NewDefault(), flagMap)
	if err := runConfig.Validate(false); err != nil {
		return err
	}

	configPath, _ := flagMap["config"].(string)
	return config.Generate(runConfig, configPath)
}

// runMirror handles the logic for the main mirror action.
func runMirror(ctx context.Context, flagMap map[string]interface{}) error {
	configPath, _ := flagMap["config"].(string)

	loadedConfig, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Merge the flag values over the loaded config to get the final run config.
	runConfig := config.MergeConfigWithFlags(loadedConfig, flagMap)

	// Set the global log level based on the final configuration.
	plog.SetLevel(plog.LevelFromString(runConfig.LogLevel))

	if err := runConfig.Validate(true); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	runConfig.LogSummary()

	// Run the engine's pre-flight checks before creating the lock directory,
	// so a rejected source/target pair leaves the filesystem untouched.
	_, absTargetPath, err := pathsync.ValidatePaths(runConfig.Source, runConfig.Target)
	if err != nil {
		return err
	}

	// Serialize runs against the same target. The lock lives next to the
	// target, not inside it, because the target is replaced wholesale.
	lockDir := filepath.Dir(absTargetPath)
	if err := os.MkdirAll(lockDir, util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("could not create target parent directory: %w", err)
	}
	lock, err := lockfile.Acquire(ctx, lockDir, buildinfo.Name)
	if err != nil {
		return err
	}
	defer lock.Release()

	runner := toolexec.NewExecRunner()
	tool := toolcheck.New(toolcheck.ToolName, runner)
	tool.Override(runConfig.ToolMode.Override())

	var metrics pathsync.Metrics
	var syncMetrics *pathsync.SyncMetrics
	if runConfig.Metrics {
		syncMetrics = pathsync.NewSyncMetrics()
		metrics = syncMetrics
	}

	var guard pathsync.Safeguarder
	if runConfig.Safeguard.Enabled {
		guard = safeguard.NewArchiver(runConfig.Safeguard.Format)
	}

	startTime := time.Now()
	syncer := pathsync.NewSyncer(runner, tool, metrics, guard)
	strategy, err := syncer.Sync(ctx, runConfig.Source, runConfig.Target)
	duration := time.Since(startTime).Round(time.Millisecond)
	if err != nil {
		return err // The error will be logged with full details by main()
	}

	if syncMetrics != nil {
		syncMetrics.LogSummary("Mirror metrics")
	}
	plog.Info(buildinfo.Name+" finished successfully.", "strategy", strategy, "duration", duration)
	return nil
}

// run encapsulates the main application logic and returns an error if something
// goes wrong, allowing the main function to handle exit codes.
func run(ctx context.Context) error {
	plog.Info("Starting "+buildinfo.Name, "version", buildinfo.Version, "pid", os.Getpid())

	action, flagMap, err := parseFlagConfig()
	if err != nil {
		return err
	}

	switch action {
	case actionShowVersion:
		fmt.Printf("%s version %s\n", buildinfo.Name, buildinfo.Version)
		return nil
	case actionInitConfig:
		return runInit(flagMap)
	case actionRunMirror:
		return runMirror(ctx, flagMap)
	default:
		return fmt.Errorf("internal error: unknown action %d", action)
	}
}

func main() {
	// Set up a context that is canceled when an interrupt signal is received.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		cancel()
	}()

	if err := run(ctx); err != nil {
		plog.Error(buildinfo.Name+" exited with error", "error", err)
		os.Exit(1)
	}
}
