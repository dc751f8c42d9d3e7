// cmd/moviecam/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/AlverezYari/moviecam/internal/config"
	"github.com/AlverezYari/moviecam/pkg/camera"
)

// managerFactory builds the camera backend; tests swap it for a fake.
var managerFactory = func(opts camera.Options) camera.Manager {
	return camera.NewV4L2Manager(opts)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "moviecam",
		Short:         "Record video from a V4L2 camera",
		Long:          `moviecam previews a camera in the browser and records H.264/AAC MP4 files from a terminal UI.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Resolve(configPath, cmd.Flags(), os.Getenv)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				return err
			}
			if err := run(cmd.Context(), cfg); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error running program: %v\n", err)
				return err
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (.json or .toml), default ~/.config/moviecam/config.json")
	config.BindFlags(root.PersistentFlags())

	root.AddCommand(newDevicesCmd(&configPath), newConfigCmd(&configPath))
	return root
}

func newDevicesCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List cameras and the sizes they can record",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Resolve(*configPath, cmd.Flags(), os.Getenv)
			if err != nil {
				return err
			}
			m := managerFactory(camera.Options{})
			return printDevices(cmd.OutOrStdout(), m, cfg)
		},
	}
}

func printDevices(w io.Writer, m camera.Manager, cfg *config.AppConfig) error {
	devices, err := m.ScanDevices()
	if err != nil {
		return fmt.Errorf("error scanning for cameras: %w", err)
	}
	if len(devices) == 0 {
		fmt.Fprintln(w, "No cameras found")
		return camera.ErrNoCamera
	}

	for _, dev := range devices {
		fmt.Fprintf(w, "%s  %s  %s  %s\n", dev.ID, dev.Name, dev.Path, dev.Facing)
		caps, err := m.Capabilities(dev.ID)
		if err != nil {
			fmt.Fprintf(w, "    %v\n", err)
			continue
		}
		camera.SortCapabilities(caps)
		for _, c := range caps {
			fmt.Fprintf(w, "    %s %s FPS\n", c.Size, c.FPSLabel())
		}
	}

	info, _, err := selectCamera(m, cfg.CameraConfig)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\nRecording with: %s\n", info.Name)
	return nil
}

func newConfigCmd(configPath *string) *cobra.Command {
	var asTOML, save bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Resolve(*configPath, cmd.Flags(), os.Getenv)
			if err != nil {
				return err
			}
			if save {
				if err := config.Save(cfg); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Config saved to %s\n", cfg.Path())
			}
			return printConfig(cmd.OutOrStdout(), cfg, asTOML)
		},
	}
	cmd.Flags().BoolVar(&asTOML, "toml", false, "print as TOML")
	cmd.Flags().BoolVar(&save, "save", false, "write the effective configuration to the config file")
	return cmd
}

func printConfig(w io.Writer, cfg *config.AppConfig, asTOML bool) error {
	if asTOML {
		return toml.NewEncoder(w).Encode(cfg)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}
