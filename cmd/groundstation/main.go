package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	serverrun "github.com/CarletonURocketry/ground-station/internal/cmd/server"
	cfgpkg "github.com/CarletonURocketry/ground-station/internal/config"
	"github.com/CarletonURocketry/ground-station/internal/missionfs"
	pebblestore "github.com/CarletonURocketry/ground-station/internal/storage/pebble"

	"github.com/CarletonURocketry/ground-station/internal/archive"
	logpkg "github.com/CarletonURocketry/ground-station/pkg/log"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "groundstation",
		Short: "Rocket telemetry ground station CLI",
		Long:  "groundstation runs the telemetry dashboard server and manages recorded mission logs.",
	}

	rootCmd.AddCommand(newServerCommand())
	rootCmd.AddCommand(newSDCardCommand())
	rootCmd.AddCommand(newMissionCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig layers defaults, an optional config file, the environment
// and finally the command-line flags.
func loadConfig(cmd *cobra.Command) (cfgpkg.Config, error) {
	cfg := cfgpkg.Default()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := cfgpkg.Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	cfgpkg.FromEnv(&cfg)

	if v, _ := cmd.Flags().GetString("http"); v != "" {
		cfg.HTTPAddr = v
	}
	if v, _ := cmd.Flags().GetString("rocket"); v != "" {
		cfg.RocketName = v
	}
	if v, _ := cmd.Flags().GetString("serial"); v != "" {
		cfg.SerialDevice = v
	}
	if v, _ := cmd.Flags().GetString("mission-image"); v != "" {
		cfg.MissionImage = v
	}
	if v, _ := cmd.Flags().GetString("missions-dir"); v != "" {
		cfg.MissionsDir = v
	}
	return cfg, nil
}

func newCLILogger(cmd *cobra.Command) logpkg.Logger {
	level := os.Getenv("GS_LOG_LEVEL")
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		level = v
	}
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	format := os.Getenv("GS_LOG_FORMAT")
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		format = v
	}
	var formatter logpkg.Formatter
	if format == "json" {
		formatter = &logpkg.JSONFormatter{}
	} else {
		formatter = &logpkg.TextFormatter{}
	}
	return logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(formatter),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)
}

func newServerCommand() *cobra.Command {
	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	startCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the ground station server",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			replay, _ := cmd.Flags().GetString("replay")
			replaySpeed, _ := cmd.Flags().GetFloat64("replay-speed")

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := serverrun.Run(ctx, serverrun.Options{
				Config:        cfg,
				Logger:        newCLILogger(cmd),
				ReplayMission: replay,
				ReplaySpeed:   replaySpeed,
			}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			// brief delay to allow logs flush
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	}
	startCmd.Flags().String("config", "", "Path to a JSON config file")
	startCmd.Flags().String("http", "", "HTTP listen address (default :33845)")
	startCmd.Flags().String("rocket", "", "Rocket call sign shown on the dashboard")
	startCmd.Flags().String("serial", "", "Serial device carrying the radio downlink")
	startCmd.Flags().String("mission-image", "", "SD card image for durable frame capture")
	startCmd.Flags().String("missions-dir", "", "Mission library directory (if not specified, uses OS-specific application data directory)")
	startCmd.Flags().String("replay", "", "Replay an archived mission instead of reading the serial device")
	startCmd.Flags().Float64("replay-speed", 1.0, "Replay speed multiplier (0 replays as fast as possible)")
	startCmd.Flags().String("log-level", "", "Log level: debug|info|warn|error")
	startCmd.Flags().String("log-format", "", "Log format: text|json (default text)")
	serverCmd.AddCommand(startCmd)
	return serverCmd
}

func newSDCardCommand() *cobra.Command {
	sdCmd := &cobra.Command{Use: "sdcard", Short: "SD card image operations"}

	formatCmd := &cobra.Command{
		Use:   "format <image>",
		Short: "Create or re-initialize a logging filesystem on an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			blocks, _ := cmd.Flags().GetUint32("blocks")
			force, _ := cmd.Flags().GetBool("force")

			path := args[0]
			var dev *missionfs.FileDevice
			var err error
			if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
				dev, err = missionfs.CreateFile(path, blocks)
			} else {
				dev, err = missionfs.OpenFile(path)
			}
			if err != nil {
				return err
			}
			defer dev.Close()

			if err := missionfs.Format(dev, missionfs.FormatOptions{Force: force}); err != nil {
				return err
			}
			fmt.Printf("formatted %s (%d blocks)\n", path, dev.BlockCount())
			return nil
		},
	}
	formatCmd.Flags().Uint32("blocks", missionfs.PartitionStart+65536, "Total image size in 512-byte blocks when creating a new image")
	formatCmd.Flags().Bool("force", false, "Re-format even if the image already holds a flight log")
	sdCmd.AddCommand(formatCmd)

	inspectCmd := &cobra.Command{
		Use:   "inspect <image>",
		Short: "Print the log geometry and record count of an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dev, err := missionfs.OpenFile(args[0])
			if err != nil {
				return err
			}
			defer dev.Close()

			session, err := missionfs.Mount(dev, missionfs.MountOptions{})
			if err != nil {
				return err
			}
			defer session.Close()

			var records uint64
			if err := session.Iterate(func(raw []byte) error {
				records++
				return nil
			}); err != nil {
				return err
			}

			geo := session.Geometry()
			fmt.Printf("version:          %d\n", geo.Version)
			fmt.Printf("block size:       %d\n", geo.BlockSize)
			fmt.Printf("partition blocks: %d\n", geo.PartitionBlocks)
			fmt.Printf("sealed blocks:    %d\n", geo.WriteCursor-1)
			fmt.Printf("records:          %d\n", records)
			return nil
		},
	}
	sdCmd.AddCommand(inspectCmd)
	return sdCmd
}

// openLibrary opens the pebble-backed mission library for CLI operations.
func openLibrary(cmd *cobra.Command) (*archive.Library, *pebblestore.DB, error) {
	dir, _ := cmd.Flags().GetString("missions-dir")
	if dir == "" {
		dir = cfgpkg.DefaultDataDir()
	}
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir: dir,
		Fsync:   pebblestore.FsyncModeAlways,
	})
	if err != nil {
		return nil, nil, err
	}
	return archive.New(db, logpkg.NewNop()), db, nil
}

func newMissionCommand() *cobra.Command {
	missionCmd := &cobra.Command{Use: "mission", Short: "Mission library operations"}
	missionCmd.PersistentFlags().String("missions-dir", "", "Mission library directory")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List archived missions",
		RunE: func(cmd *cobra.Command, args []string) error {
			library, db, err := openLibrary(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			missions, err := library.List()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tFRAMES\tDURATION\tIMPORTED")
			for _, m := range missions {
				duration := time.Duration(m.LastMissionTime-m.FirstMissionTime) * time.Millisecond
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", m.Name, m.Frames, duration, m.ImportedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
	missionCmd.AddCommand(listCmd)

	importCmd := &cobra.Command{
		Use:   "import <image> <name>",
		Short: "Import the flight log on an SD card image into the library",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dev, err := missionfs.OpenFile(args[0])
			if err != nil {
				return err
			}
			defer dev.Close()
			session, err := missionfs.Mount(dev, missionfs.MountOptions{})
			if err != nil {
				return err
			}
			defer session.Close()

			library, db, err := openLibrary(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			meta, err := library.Import(cmd.Context(), args[1], session)
			if err != nil {
				return err
			}
			fmt.Printf("imported %s: %d frames (%d records skipped)\n",
				meta.Name, meta.Frames, meta.DecodeFaults)
			return nil
		},
	}
	missionCmd.AddCommand(importCmd)

	showCmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Show one mission's metadata as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			library, db, err := openLibrary(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			meta, err := library.Get(args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(meta)
		},
	}
	missionCmd.AddCommand(showCmd)

	deleteCmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete an archived mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			library, db, err := openLibrary(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := library.Delete(args[0]); err != nil {
				return err
			}
			fmt.Println("deleted", args[0])
			return nil
		},
	}
	missionCmd.AddCommand(deleteCmd)
	return missionCmd
}
