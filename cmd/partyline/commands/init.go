package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sswguo/partyline/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample partyline configuration file.

By default, the configuration file is created at
$XDG_CONFIG_HOME/partyline/config.yaml. Use --config to specify a
custom path.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	target := configPath
	if target == "" {
		target = config.DefaultConfigPath()
	}

	if !initForce {
		if _, err := os.Stat(target); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", target)
		}
	}

	if err := config.Save(config.DefaultConfig(), target); err != nil {
		return fmt.Errorf("initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", target)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Println("  2. Start the server with: partyline serve-demo")
	return nil
}
