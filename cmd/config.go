package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/josephgoksu/ShiftWing/internal/config"
	"github.com/spf13/viper"
)

const (
	configName = ".shiftwing"
	envPrefix  = "SHIFTWING"
)

// InitConfig reads in config file and ENV variables if set.
func InitConfig() {
	// It's okay if .env file doesn't exist.
	_ = godotenv.Load()

	// Environment variable handling must be set up before reading the config
	// file so SHIFTWING_DIR can point at another state directory.
	viper.SetEnvPrefix(envPrefix)                          // e.g., SHIFTWING_VERBOSE
	viper.AutomaticEnv()                                   // Read in environment variables that match
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // executor.maxAttempts -> SHIFTWING_EXECUTOR_MAXATTEMPTS

	config.SetDefaults(viper.GetViper())

	cfgFileFlag := viper.GetString("config")
	if cfgFileFlag != "" {
		viper.SetConfigFile(cfgFileFlag)
	} else {
		// The project state directory wins over the working directory, which
		// wins over the home directory.
		viper.AddConfigPath(config.GetStateDir())
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigName(configName)
		viper.SetConfigType("yaml")
	}

	err := viper.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil:
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	case errors.As(err, &notFound):
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "No config file found. Using defaults and environment variables.")
		}
	case cfgFileFlag != "" && errors.Is(err, os.ErrNotExist):
		fmt.Fprintln(os.Stderr, "Error: Specified config file not found:", cfgFileFlag)
	default:
		// Config file was found but another error was produced (e.g., parsing error).
		fmt.Fprintln(os.Stderr, "Error reading config file:", viper.ConfigFileUsed(), "-", err)
	}
}

// stateDir is where every store of this invocation lives.
func stateDir(cfg *config.Config) string {
	if cfg != nil && cfg.Dir != "" {
		return cfg.Dir
	}
	return config.GetStateDir()
}

// projectConfigPath is where init writes the project configuration.
func projectConfigPath(dir string) string {
	return filepath.Join(dir, config.ConfigFileName)
}
