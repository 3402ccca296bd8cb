/*
Copyright (c) The DynamoDBtoCSV Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"os"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/edasque/DynamoDBtoCSV/src/utils"
)

const (
	ConfigFileEnvVar = "DDB2CSV_CONFIG_FILE"

	// Connection flags may also be set once for every command under "aws:".
	AWSConfigPrefix = "aws."
)

var allowedGlobalConfigKeys = mapset.NewThreadUnsafeSet[string](
	"log-level", "log-dir", "disable-logging",
)

var allowedAWSConfigKeys = mapset.NewThreadUnsafeSet[string](
	"region", "endpoint", "profile", "env-creds", "max-retries", "max-backoff",
)

var allowedExportConfigKeys = mapset.NewThreadUnsafeSet[string](
	"table", "index", "key-condition", "key-values", "select", "count", "stats",
	"size", "limit", "file", "start-key", "header-policy", "newlines",
	"line-terminator", "delimiter", "upload-url", "disable-pb",
)

var allowedDescribeConfigKeys = mapset.NewThreadUnsafeSet[string](
	"table",
)

var allowedConfigSections = map[string]mapset.Set[string]{
	"aws":      allowedAWSConfigKeys,
	"export":   allowedExportConfigKeys,
	"describe": allowedDescribeConfigKeys,
}

// ConfigFlagOverride records a flag whose value came from the config file.
type ConfigFlagOverride struct {
	FlagName  string
	ConfigKey string
	Value     string
}

/*
initConfig loads the config file for cmd and applies it to every flag the
user did not set on the command line.

	Config file precedence: --config-file > $DDB2CSV_CONFIG_FILE > ~/ddb2csv-config.yaml.
	A missing default file is not an error; a missing explicit file is.
*/
func initConfig(cmd *cobra.Command) ([]ConfigFlagOverride, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else if os.Getenv(ConfigFileEnvVar) != "" {
		v.SetConfigFile(os.Getenv(ConfigFileEnvVar))
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(home)
		v.SetConfigName("ddb2csv-config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err == nil {
		utils.PrintAndLog("Using config file: %s", v.ConfigFileUsed())
	} else {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	err := validateConfigFile(v)
	if err != nil {
		return nil, err
	}

	overrides, err := bindCobraFlagsToViper(cmd, v)
	if err != nil {
		return nil, fmt.Errorf("failed to bind cobra flags to viper: %w", err)
	}
	return overrides, nil
}

// validateConfigFile reports every unknown global key, section and section
// key at once, then fails.
func validateConfigFile(v *viper.Viper) error {
	invalidGlobalKeys := mapset.NewThreadUnsafeSet[string]()
	invalidSectionKeys := make(map[string]mapset.Set[string])
	invalidSections := mapset.NewThreadUnsafeSet[string]()

	for _, key := range v.AllKeys() {
		parts := strings.Split(key, ".")
		if len(parts) == 1 {
			if !allowedGlobalConfigKeys.Contains(key) {
				invalidGlobalKeys.Add(key)
			}
			continue
		}
		// "a.b.c" -> section "a", nested key "b.c"
		section := parts[0]
		nestedKey := strings.Join(parts[1:], ".")
		allowedKeys, ok := allowedConfigSections[section]
		if !ok {
			invalidSections.Add(section)
			continue
		}
		if !allowedKeys.Contains(nestedKey) {
			if _, exists := invalidSectionKeys[section]; !exists {
				invalidSectionKeys[section] = mapset.NewThreadUnsafeSet[string]()
			}
			invalidSectionKeys[section].Add(nestedKey)
		}
	}

	if invalidGlobalKeys.Cardinality() == 0 && len(invalidSectionKeys) == 0 && invalidSections.Cardinality() == 0 {
		return nil
	}
	out := utils.DiagnosticOutput()
	if invalidGlobalKeys.Cardinality() > 0 {
		fmt.Fprintf(out, "%s [%s]\n", color.RedString("Invalid global config keys:"), strings.Join(invalidGlobalKeys.ToSlice(), ", "))
	}
	for section, keys := range invalidSectionKeys {
		fmt.Fprintf(out, "%s [%s]\n", color.RedString(fmt.Sprintf("Invalid keys in section '%s':", section)), strings.Join(keys.ToSlice(), ", "))
	}
	if invalidSections.Cardinality() > 0 {
		fmt.Fprintf(out, "%s [%s]\n", color.RedString("Invalid sections:"), strings.Join(invalidSections.ToSlice(), ", "))
	}
	return fmt.Errorf("found invalid configurations in config file: %s", v.ConfigFileUsed())
}

/*
bindCobraFlagsToViper sets each flag of cmd not changed on the command line
from the first config key found among:

	<command-path>.<flag>   e.g. export.table
	<flag>                  global keys such as log-level
	aws.<flag>              connection settings shared by all commands
*/
func bindCobraFlagsToViper(cmd *cobra.Command, v *viper.Viper) ([]ConfigFlagOverride, error) {
	var bindErr error
	var overrides []ConfigFlagOverride

	subCmdPath := strings.TrimPrefix(cmd.CommandPath(), cmd.Root().Name())
	configKeyPrefix := strings.ReplaceAll(strings.TrimSpace(subCmdPath), " ", "-")

	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if bindErr != nil || f.Changed {
			return
		}
		var key string
		switch {
		case configKeyPrefix != "" && v.IsSet(configKeyPrefix+"."+f.Name):
			key = configKeyPrefix + "." + f.Name
		case v.IsSet(f.Name):
			key = f.Name
		case v.IsSet(AWSConfigPrefix + f.Name):
			key = AWSConfigPrefix + f.Name
		default:
			return
		}
		val := v.GetString(key)
		if err := cmd.Flags().Set(f.Name, val); err != nil {
			bindErr = fmt.Errorf("config key %q: %w", key, err)
			return
		}
		overrides = append(overrides, ConfigFlagOverride{
			FlagName:  f.Name,
			ConfigKey: key,
			Value:     val,
		})
	})
	return overrides, bindErr
}
