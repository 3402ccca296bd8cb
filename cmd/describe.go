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
	"context"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/edasque/DynamoDBtoCSV/src/ddb"
	"github.com/edasque/DynamoDBtoCSV/src/errs"
	"github.com/edasque/DynamoDBtoCSV/src/utils"
)

var describeTableName string

var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Print the description of a table",

	Run: func(cmd *cobra.Command, args []string) {
		err := describeTable(cmd.Context())
		if err != nil {
			utils.ErrExit("ERROR: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(describeCmd)
	registerAWSFlags(describeCmd)
	describeCmd.Flags().StringVarP(&describeTableName, "table", "t", "", "table to describe")
}

func describeTable(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	name := strings.TrimSpace(describeTableName)
	if name == "" {
		return errs.NewInvalidConfigErr("table", "a table name is required")
	}
	cc := clientConfig()
	client, err := ddb.NewClient(ctx, cc)
	if err != nil {
		return err
	}
	desc, err := ddb.DescribeTable(ctx, client, name)
	if err != nil {
		return err
	}
	ddb.PrintTableDescription(os.Stdout, desc)
	return nil
}
