package main

import (
	"Go2NetAccounting/internal/config"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const version = "0.1.0"

var cli = &cobra.Command{
	Use:          "ns-accounting",
	Short:        "Poll a MikroTik accounting feed and store per-address traffic.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

var cliOptionVersion = &cobra.Command{
	Use:   "version",
	Short: "Print the version.",
	Long:  "The version of this program",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Version %s\n", version)
	},
}

func init() {
	cli.AddCommand(cliOptionVersion)

	viper.SetEnvPrefix("ns")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	flags := cli.Flags()

	flags.StringP("config", "f", "", "Config file (.yaml or .toml)")
	viper.BindPFlag("config", flags.Lookup("config"))

	flags.BoolP("console", "c", false, "Console mode, exit when enter is pressed")
	viper.BindPFlag("console", flags.Lookup("console"))

	flags.BoolP("verbose", "v", false, "Enable verbose")
	viper.BindPFlag("verbose", flags.Lookup("verbose"))

	flags.StringP("router-ip", "r", "", "Router IP address")
	viper.BindPFlag("router_ip", flags.Lookup("router-ip"))

	flags.StringSliceP("subnet", "n", nil, "LAN subnets (e.g. 192.168.1.0/24), repeatable")
	viper.BindPFlag("subnet", flags.Lookup("subnet"))

	flags.String("interval", config.DefaultPollInterval, "Polling interval")
	viper.BindPFlag("interval", flags.Lookup("interval"))

	flags.Int("max-retries", config.DefaultMaxAttempts, "Write attempts per cycle")
	viper.BindPFlag("max_retries", flags.Lookup("max-retries"))

	flags.String("storage", config.DefaultStorageType, "Storage type (clickhouse, gob, postgres, redis)")
	viper.BindPFlag("storage", flags.Lookup("storage"))

	flags.StringP("db-host", "d", "", "ClickHouse host")
	viper.BindPFlag("db_host", flags.Lookup("db-host"))

	flags.StringP("db-user", "u", "", "ClickHouse user")
	viper.BindPFlag("db_user", flags.Lookup("db-user"))

	flags.StringP("db-password", "p", "", "ClickHouse password")
	viper.BindPFlag("db_password", flags.Lookup("db-password"))

	flags.String("db-name", "", "ClickHouse database")
	viper.BindPFlag("db_name", flags.Lookup("db-name"))

	flags.String("listen", config.DefaultAPIListenAddr, "Status API listen address")
	viper.BindPFlag("listen", flags.Lookup("listen"))
}

// loadConfig reads the config file, if any, and applies flag and NS_* environment overrides.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if path := viper.GetString("config"); path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		// Flag-only runs serve the status API on the default address.
		cfg = config.Default()
		cfg.API.ListenAddr = config.DefaultAPIListenAddr
	}
	applyOverrides(cfg, viper.GetViper())
	return cfg, nil
}

// applyOverrides copies every explicitly set flag or environment variable into cfg.
func applyOverrides(cfg *config.Config, v *viper.Viper) {
	if v.IsSet("router_ip") {
		cfg.Router.Address = v.GetString("router_ip")
	}
	if v.IsSet("subnet") {
		cfg.Subnets = v.GetStringSlice("subnet")
	}
	if v.IsSet("interval") {
		cfg.Polling.Interval = v.GetString("interval")
	}
	if v.IsSet("max_retries") {
		cfg.Retry.MaxAttempts = v.GetInt("max_retries")
	}
	if v.IsSet("storage") {
		cfg.Storage.Type = v.GetString("storage")
	}
	if v.IsSet("db_host") {
		cfg.Storage.ClickHouse.Host = v.GetString("db_host")
	}
	if v.IsSet("db_user") {
		cfg.Storage.ClickHouse.Username = v.GetString("db_user")
	}
	if v.IsSet("db_password") {
		cfg.Storage.ClickHouse.Password = v.GetString("db_password")
	}
	if v.IsSet("db_name") {
		cfg.Storage.ClickHouse.Database = v.GetString("db_name")
	}
	if v.IsSet("listen") {
		cfg.API.ListenAddr = v.GetString("listen")
	}
}
