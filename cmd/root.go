package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/promowatch/internal/utils"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var cfgFile string

const (
	LOGO = `                                            _       _
 _ __  _ __ ___  _ __ ___   _____      ____ _| |_ ___| |__
| '_ \| '__/ _ \| '_ ' _ \ / _ \ \ /\ / / _' | __/ __| '_ \
| |_) | | | (_) | | | | | | (_) \ V  V / (_| | || (__| | | |
| .__/|_|  \___/|_| |_| |_|\___/ \_/\_/ \__,_|\__\___|_| |_|
|_|

`
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "promowatch",
	Short: "Watch promotion pages and report the changes that matter.",
	Long: LOGO + `promowatch scrapes a list of promotion pages, extracts the offers on them and
compares every run with the last one, notifying only on material changes:
new or removed deals, real price moves and shifted validity dates.`,
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		levelString, _ := cmd.Flags().GetString("loglevel")
		return utils.SetLogLevel(levelString)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.promowatch.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("proxy", "", "", "HTTP Proxy (Useful for debugging. Example: http://127.0.0.1:8080)")
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
	rootCmd.PersistentFlags().String("extractor", "", "Extraction backend: query (DOM) or token (streaming)")

	viper.BindPFlag("fetch.proxy", rootCmd.PersistentFlags().Lookup("proxy"))
	viper.BindPFlag("extractor", rootCmd.PersistentFlags().Lookup("extractor"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".promowatch")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("promowatch")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := filepath.Join(home, ".promowatch.yaml")
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				utils.Log.Debugf("Could not create config file: %v", err)
			}
		} else {
			utils.Log.Warnf("Could not read config file: %v", err)
		}
	}
}

func setDefaults() {
	viper.SetDefault("store.driver", "sqlite")
	viper.SetDefault("store.path", "promowatch.sqlite")
	viper.SetDefault("store.redis.addr", "localhost:6379")
	viper.SetDefault("store.redis.password", "")
	viper.SetDefault("store.redis.db", 0)
	viper.SetDefault("store.prefix", "promowatch:")
	viper.SetDefault("fetch.timeout", "30s")
	viper.SetDefault("fetch.retries", 2)
	viper.SetDefault("fetch.useragent", "")
	viper.SetDefault("fetch.maxbytes", 5<<20)
	viper.SetDefault("notify.webhook", "")
	viper.SetDefault("notify.timeout", "10s")
	viper.SetDefault("extractor", "query")
	viper.SetDefault("concurrency", 5)
	viper.SetDefault("history.keep", 5)
	viper.SetDefault("cache.size", 128)
}
