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
	"fmt"
	"os"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/dustin/go-humanize"
	"github.com/gosuri/uitable"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"golang.org/x/term"

	"github.com/edasque/DynamoDBtoCSV/src/config"
	"github.com/edasque/DynamoDBtoCSV/src/ddb"
	"github.com/edasque/DynamoDBtoCSV/src/errs"
	"github.com/edasque/DynamoDBtoCSV/src/export"
	"github.com/edasque/DynamoDBtoCSV/src/pbreporter"
	"github.com/edasque/DynamoDBtoCSV/src/tabular"
	"github.com/edasque/DynamoDBtoCSV/src/utils"
	"github.com/edasque/DynamoDBtoCSV/src/utils/csv"
	"github.com/edasque/DynamoDBtoCSV/src/utils/s3"
)

var (
	tableName          string
	indexName          string
	keyCondition       string
	keyValues          string
	selectFields       string
	countOnly          bool
	statsField         string
	chunkSize          int64
	pageLimit          int32
	outputFile         string
	startKey           string
	headerPolicyFlag   string
	newlinesFlag       string
	lineTerminatorFlag string
	delimiterFlag      string
	uploadURL          string
	disablePb          bool
)

var lineTerminators = map[string]string{
	"crlf": "\r\n",
	"lf":   "\n",
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the items of a table, index or query into CSV",
	Long: `Export the items of a table into CSV on stdout, or appended to --file.

Without --key-condition the whole table (or index) is scanned. With it, only
the matching items are queried. --count and --stats print a tally on stderr
instead of writing rows.`,

	Run: func(cmd *cobra.Command, args []string) {
		err := exportTable(cmd.Context())
		if err != nil {
			utils.ErrExit("ERROR: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	registerAWSFlags(exportCmd)

	f := exportCmd.Flags()
	f.StringVarP(&tableName, "table", "t", "", "table to export")
	f.StringVarP(&indexName, "index", "i", "", "secondary index to export instead of the table")
	f.StringVarP(&keyCondition, "key-condition", "k", "",
		"key condition expression to query with, e.g. \"pk = :pk\"")
	f.StringVarP(&keyValues, "key-values", "v", "",
		`values of the key condition as DynamoDB JSON, e.g. '{":pk":{"S":"a"}}'`)
	f.StringVarP(&selectFields, "select", "S", "",
		"comma separated list of attributes to export (default all)")
	f.BoolVarP(&countOnly, "count", "c", false,
		"only print the number of matching items, requires --key-condition")
	f.StringVarP(&statsField, "stats", "a", "",
		"print the number of items per value of this string attribute, requires --key-condition")
	f.Int64VarP(&chunkSize, "size", "s", export.DefaultChunkSize,
		"number of rows to read before writing a chunk")
	f.Int32Var(&pageLimit, "limit", ddb.DefaultPageLimit,
		"maximum number of items per request, 0 lets DynamoDB decide")
	f.StringVarP(&outputFile, "file", "f", "",
		"file to append the CSV to (default stdout)")
	f.StringVar(&startKey, "start-key", "",
		"last key printed by an interrupted run, as DynamoDB JSON, to resume from")
	f.StringVar(&headerPolicyFlag, "header-policy", string(export.HeaderPolicyAppend),
		"how columns first seen after the header was written are handled: append or two-pass")
	f.StringVar(&newlinesFlag, "newlines", string(csv.NewlineKeep),
		"newlines inside values: keep, strip or escape")
	f.StringVar(&lineTerminatorFlag, "line-terminator", "crlf",
		"line terminator of the CSV: crlf or lf")
	f.StringVar(&delimiterFlag, "delimiter", ",", "field delimiter of the CSV")
	f.StringVar(&uploadURL, "upload-url", "",
		"s3://bucket/key to upload --file to once the export is complete")
	f.BoolVar(&disablePb, "disable-pb", false, "do not show the progress bar")
}

type exportPlan struct {
	Request ddb.RequestSpec
	Options export.Options
	AWS     ddb.ClientConfig
}

// buildExportPlan validates the flags. Nothing is fetched before it
// succeeds.
func buildExportPlan() (*exportPlan, error) {
	if strings.TrimSpace(tableName) == "" {
		return nil, errs.NewInvalidConfigErr("table", "a table name is required")
	}
	plan := &exportPlan{
		Request: ddb.RequestSpec{
			TableName:              strings.TrimSpace(tableName),
			IndexName:              strings.TrimSpace(indexName),
			KeyConditionExpression: strings.TrimSpace(keyCondition),
			Projection:             utils.CsvStringToSlice(selectFields),
			CountOnly:              countOnly,
			Limit:                  pageLimit,
		},
		AWS: clientConfig(),
	}

	if keyValues != "" {
		values, err := ddb.ParseAttributeValueMap([]byte(keyValues))
		if err != nil {
			return nil, errs.NewInvalidConfigErr("key-values", err.Error())
		}
		plan.Request.ExpressionAttributeValues = values
	}
	if countOnly && statsField != "" {
		return nil, errs.NewInvalidConfigErr("count", "cannot be combined with --stats")
	}
	if statsField != "" && !plan.Request.IsQuery() {
		return nil, errs.NewInvalidConfigErr("stats", "requires --key-condition")
	}
	if err := plan.Request.Validate(); err != nil {
		return nil, errs.NewInvalidConfigErr("key-condition", err.Error())
	}

	serializer := tabular.DefaultSerializer()
	newlines, err := csv.ParseNewlinePolicy(newlinesFlag)
	if err != nil {
		return nil, errs.NewInvalidConfigErr("newlines", err.Error())
	}
	serializer.Newlines = newlines
	terminator, ok := lineTerminators[strings.ToLower(lineTerminatorFlag)]
	if !ok {
		return nil, errs.NewInvalidConfigErr("line-terminator", fmt.Sprintf("%q is not one of crlf, lf", lineTerminatorFlag))
	}
	serializer.LineTerminator = terminator
	if len(delimiterFlag) != 1 || delimiterFlag == `"` || delimiterFlag == "\r" || delimiterFlag == "\n" {
		return nil, errs.NewInvalidConfigErr("delimiter", fmt.Sprintf("%q is not a single separator character", delimiterFlag))
	}
	serializer.Delimiter = delimiterFlag[0]

	headerPolicy, err := export.ParseHeaderPolicy(headerPolicyFlag)
	if err != nil {
		return nil, errs.NewInvalidConfigErr("header-policy", err.Error())
	}
	plan.Options = export.Options{
		Mode:         export.ModeRows,
		ChunkSize:    chunkSize,
		HeaderPolicy: headerPolicy,
		Serializer:   serializer,
	}
	switch {
	case countOnly:
		plan.Options.Mode = export.ModeCount
	case statsField != "":
		plan.Options.Mode = export.ModeStats
		plan.Options.StatsField = strings.TrimSpace(statsField)
	}

	if startKey != "" {
		cursor, err := ddb.ParseCursor(startKey)
		if err != nil {
			return nil, errs.NewInvalidConfigErr("start-key", err.Error())
		}
		plan.Options.StartCursor = cursor
	}
	if uploadURL != "" {
		if outputFile == "" {
			return nil, errs.NewInvalidConfigErr("upload-url", "requires --file")
		}
		if err := s3.ValidateObjectURL(uploadURL); err != nil {
			return nil, errs.NewInvalidConfigErr("upload-url", err.Error())
		}
	}
	if err := plan.Options.Validate(); err != nil {
		return nil, err
	}
	if err := plan.AWS.Validate(); err != nil {
		return nil, errs.NewInvalidConfigErr("mfa", err.Error())
	}
	return plan, nil
}

func exportTable(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	plan, err := buildExportPlan()
	if err != nil {
		return err
	}
	log.Infof("export plan: %s", spew.Sdump(redactedPlan(plan)))

	client, err := ddb.NewClient(ctx, plan.AWS)
	if err != nil {
		return err
	}
	fetcher := ddb.NewTableFetcher(client, plan.Request)

	sink, err := openSink(&plan.Options)
	if err != nil {
		return err
	}
	defer sink.Close()

	progressContainer, progress := newProgressReporter(ctx, client, plan)
	summary, err := export.Run(ctx, fetcher, sink, plan.Options, progress)
	if progressContainer != nil {
		if err == nil {
			progressContainer.Wait()
		} else {
			progressContainer.Shutdown()
		}
	}
	if err != nil {
		return err
	}
	if err := sink.Close(); err != nil {
		return err
	}
	if config.IsLogLevelDebugOrBelow() {
		log.Debugf("export summary: %s", spew.Sdump(summary))
	}
	printExportSummary(plan, summary)

	if uploadURL != "" {
		return uploadOutput(ctx, plan, sink.FilePath())
	}
	return nil
}

// openSink opens the destination. When appending to a file that already
// starts with a header line, no second header is written.
func openSink(opts *export.Options) (*export.Sink, error) {
	if outputFile == "" {
		return export.NewSink(os.Stdout, os.Stderr), nil
	}
	if opts.Mode == export.ModeRows && utils.FileOrFolderExists(outputFile) {
		header, err := csv.ReadHeaderFile(outputFile, opts.Serializer.Delimiter)
		if err != nil {
			return nil, fmt.Errorf("read header of %q: %w", outputFile, err)
		}
		if len(header) > 0 {
			utils.PrintAndLog("Appending to %s, keeping its header %v", outputFile, header)
			opts.HeaderNames = header
		}
	}
	return export.OpenFileSink(outputFile, os.Stderr)
}

// newProgressReporter draws a bar on stderr only when it is a terminal. The
// total of a scan is estimated from the item count of the table, which
// DynamoDB refreshes about every six hours.
func newProgressReporter(ctx context.Context, api ddb.API, plan *exportPlan) (*mpb.Progress, pbreporter.ExportProgressReporter) {
	if disablePb || !term.IsTerminal(int(os.Stderr.Fd())) {
		return nil, pbreporter.NewExportPB(nil, plan.Request.TableName, true)
	}
	container := pbreporter.NewProgressContainer(os.Stderr)
	progress := pbreporter.NewExportPB(container, plan.Request.TableName, false)
	if plan.Request.IsQuery() || plan.Request.IndexName != "" {
		return container, progress
	}
	desc, err := ddb.DescribeTable(ctx, api, plan.Request.TableName)
	if err != nil {
		log.Warnf("no row estimate for the progress bar: %v", err)
		return container, progress
	}
	if desc.ItemCount != nil && *desc.ItemCount > 0 {
		progress.SetTotalRowCount(*desc.ItemCount, false)
	}
	return container, progress
}

func printExportSummary(plan *exportPlan, summary *export.Summary) {
	out := utils.DiagnosticOutput()
	table := uitable.New()
	table.AddRow("TABLE", plan.Request.TableName)
	table.AddRow("MODE", plan.Options.Mode)
	table.AddRow("PAGES", humanize.Comma(int64(summary.Pages)))
	switch plan.Options.Mode {
	case export.ModeCount:
		table.AddRow("COUNT", humanize.Comma(summary.Count))
	case export.ModeStats:
		table.AddRow("DISTINCT VALUES", humanize.Comma(int64(len(summary.Stats))))
	default:
		table.AddRow("ROWS", humanize.Comma(summary.RowsFound))
		table.AddRow("COLUMNS", len(summary.Headers))
		table.AddRow("CHUNKS", summary.Flushes)
		table.AddRow("WRITTEN", humanize.Bytes(uint64(summary.BytesOut)))
	}
	if outputFile != "" {
		table.AddRow("FILE", outputFile)
	}
	fmt.Fprintf(out, "\n%s\n", table)
}

func uploadOutput(ctx context.Context, plan *exportPlan, localPath string) error {
	cfg, err := ddb.LoadAWSConfig(ctx, plan.AWS)
	if err != nil {
		return errs.NewExportError(errs.UPLOAD_STAGE, 0, "", err)
	}
	size, err := s3.UploadFile(ctx, cfg, localPath, uploadURL)
	if err != nil {
		return errs.NewExportError(errs.UPLOAD_STAGE, 0, "", err)
	}
	utils.PrintAndLog("Uploaded %s (%s) to %s", localPath, humanize.Bytes(uint64(size)), uploadURL)
	return nil
}

// redactedPlan is logged instead of plan so the MFA code never reaches the
// log file.
func redactedPlan(plan *exportPlan) exportPlan {
	p := *plan
	if p.AWS.MFACode != "" {
		p.AWS.MFACode = "XXX"
	}
	return p
}
