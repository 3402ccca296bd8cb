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

	"github.com/spf13/cobra"

	"github.com/edasque/DynamoDBtoCSV/src/config"
	"github.com/edasque/DynamoDBtoCSV/src/utils"
)

var (
	cfgFile        string
	logDir         string
	disableLogging bool
)

var rootCmd = &cobra.Command{
	Use:   "ddb2csv",
	Short: "Export the content of a DynamoDB table into CSV",
	Long: `Export the items of a DynamoDB table, index or query into CSV.

Items are fetched page by page and written in chunks, so memory stays bounded
whatever the size of the table. After every chunk the key the next run would
resume from is printed on stderr; pass it back with --start-key to resume.`,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		overrides, err := initConfig(cmd)
		if err != nil {
			return err
		}
		if err := config.ValidateLogLevel(); err != nil {
			return err
		}
		InitLogging(logDir, disableLogging || cmd.Name() == "version", cmd.Name())
		for _, o := range overrides {
			utils.PrintAndLog("Using %s = %q from the config file (%s)", o.FlagName, o.Value, o.ConfigKey)
		}
		return nil
	},

	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			cmd.Help()
			os.Exit(0)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SilenceUsage = true

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "",
		fmt.Sprintf("path of the config file (default $%s or ~/ddb2csv-config.yaml)", ConfigFileEnvVar))
	rootCmd.PersistentFlags().StringVarP(&config.LogLevel, "log-level", "l", "info",
		"log level for ddb2csv. Accepted values: (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "",
		fmt.Sprintf("directory for the log files (default %s)", defaultLogDir()))
	rootCmd.PersistentFlags().BoolVar(&disableLogging, "disable-logging", false,
		"do not write a log file")
}
