package main

import (
	"fmt"
	"os"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/blind/pkg/config"
	daemonutils "github.com/charlie0129/blind/pkg/utils/daemon"
)

// NewInstallCommand .
func NewInstallCommand() *cobra.Command {
	allowNonRootAccess := false
	simulate := false

	cmd := &cobra.Command{
		Use:     "install",
		Short:   "Install blind (system-wide)",
		GroupID: gInstallation,
		Long: `Install blind daemon as a systemd service (system-wide).

This makes blind run in the background and automatically start on boot. You must run this command as root.

By default, only root user is allowed to access the blind daemon. If you want to allow non-root users to access the daemon, use the --allow-non-root-access flag, so you don't have to use sudo every time.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := config.NewFile(configPath)
			if err != nil {
				return err
			}

			conf.SetAllowNonRootAccess(allowNonRootAccess)
			if allowNonRootAccess {
				logrus.Info("non-root users are allowed to access the blind daemon.")
			} else {
				logrus.Info("only root user is allowed to access the blind daemon.")
			}

			// Save first so the service starts with the new settings.
			err = conf.Save()
			if err != nil {
				return pkgerrors.Wrapf(err, "failed to save config")
			}

			var extraArgs []string
			if simulate {
				extraArgs = append(extraArgs, "--simulate")
			}
			err = daemonutils.Install(extraArgs...)
			if err != nil {
				// check if current user is root
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to install daemon: %v. Are you root?", err)
			}

			logrus.Infof("installation succeeded")

			exePath, _ := os.Executable()

			cmd.Printf("systemd will use current binary (%s) at startup so please make sure you do not move this binary. Once this binary is moved or deleted, you will need to run `blind install' again.\n", exePath)

			return nil
		},
	}

	cmd.Flags().BoolVar(&allowNonRootAccess, "allow-non-root-access", false, "Allow non-root users to access blind daemon.")
	cmd.Flags().BoolVar(&simulate, "simulate", false, "Install the daemon with a simulated mechanism.")

	return cmd
}

// NewUninstallCommand .
func NewUninstallCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "uninstall",
		Short:   "Uninstall blind (system-wide)",
		GroupID: gInstallation,
		Long: `Uninstall blind daemon from systemd (system-wide).

This stops blind and removes its service unit. The blind stays wherever it currently is.

You must run this command as root.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := daemonutils.Uninstall()
			if err != nil {
				// check if current user is root
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to uninstall daemon: %v", err)
			}

			fmt.Println("successfully uninstalled")

			cmd.Printf("Your config is kept in %s, in case you want to use `blind' again. If you want a complete uninstall, you can remove the config file, the calibration file and blind itself manually.\n", configPath)

			return nil
		},
	}

	return cmd
}
