package cmd

import (
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/auralabs/aura/pkg/bytesize"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing aura configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the effective configuration",
	Long: `Dump the effective configuration values in YAML format.

This shows every configuration option after defaults, the config file, and
environment variables have been applied. Redirect the output to a file to
create a configuration template:

  aura config dump > config.yaml

Environment variables use the AURA_ prefix with underscores for nesting.
Example: server.port -> AURA_SERVER_PORT`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

// toMap converts a config struct to a map keyed by mapstructure tags,
// formatting durations and sizes for human readability.
func toMap(v any) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		key := fieldType.Tag.Get("mapstructure")
		if key == "" {
			key = fieldType.Name
		}

		switch fv := field.Interface().(type) {
		case time.Duration:
			result[key] = fv.String()
		case bytesize.Size:
			result[key] = fv.String()
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(field.Interface())
			} else {
				result[key] = field.Interface()
			}
		}
	}
	return result
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	yamlData, err := yaml.Marshal(toMap(cfg))
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	fmt.Println("# aura Configuration File")
	fmt.Println("# =======================")
	fmt.Println("#")
	fmt.Println("# Values reflect the effective configuration: defaults, then the")
	fmt.Println("# config file, then environment variables.")
	fmt.Println("# Duration format: 30s, 5m, 1h. Size format: 500MB, 2GB.")
	fmt.Println("#")
	fmt.Println("# Environment variable overrides:")
	fmt.Println("#   AURA_SERVER_HOST, AURA_SERVER_PORT")
	fmt.Println("#   AURA_STORAGE_OUTPUT_DIR, AURA_STORAGE_DATA_DIR")
	fmt.Println("#   AURA_PROVIDERS_OFFLINE, AURA_PROVIDERS_OLLAMA_HOST")
	fmt.Println("#   AURA_LOGGING_LEVEL, AURA_LOGGING_FORMAT")
	fmt.Println("#   etc.")
	fmt.Println("#")
	fmt.Println("")
	fmt.Print(string(yamlData))

	return nil
}
