package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/unihub/unihub/client"
	"github.com/unihub/unihub/pkg/clierr"
	"github.com/unihub/unihub/pkg/pool"
	"github.com/unihub/unihub/pkg/validation"
)

// getCmd fetches one or more API paths in parallel. All requests share one
// client, so a single expired token causes a single refresh.
func getCmd() *cobra.Command {
	var asTable, quiet bool

	cmd := &cobra.Command{
		Use:   "get <path>...",
		Short: "Fetch one or more API resources",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				if err := validation.ValidateAPIPath(path); err != nil {
					return clierr.New(clierr.Validation, err.Error(), err)
				}
			}
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := validation.ValidateWorkerCount(a.cfg.Workers); err != nil {
				return clierr.New(clierr.Validation, err.Error(), err)
			}

			var bar *progressbar.ProgressBar
			if len(args) > 1 && !quiet {
				bar = progressbar.NewOptions(len(args),
					progressbar.OptionSetWriter(cmd.ErrOrStderr()),
					progressbar.OptionSetDescription("Fetching"),
					progressbar.OptionShowCount(),
					progressbar.OptionClearOnFinish(),
				)
			}

			results := pool.Map(cmd.Context(), args, a.cfg.Workers, func(ctx context.Context, path string) (*client.Response, error) {
				resp, err := a.client.Do(ctx, &client.Request{Method: http.MethodGet, Path: path})
				if bar != nil {
					_ = bar.Add(1)
				}
				return resp, err
			})
			if bar != nil {
				_ = bar.Finish()
			}

			return printResults(cmd, args, results, asTable)
		},
	}

	cmd.Flags().BoolVarP(&asTable, "table", "t", false, "Render JSON objects and arrays as a table")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Hide the progress bar")
	cmd.Flags().Int("workers", 4, "Number of parallel requests")

	return cmd
}

// postCmd sends a JSON body to one API path.
func postCmd() *cobra.Command {
	var data, method string

	cmd := &cobra.Command{
		Use:   "post <path>",
		Short: "Send a JSON body to an API resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validation.ValidateAPIPath(args[0]); err != nil {
				return clierr.New(clierr.Validation, err.Error(), err)
			}
			if data == "-" {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return clierr.New(clierr.Validation, "failed to read request body", err)
				}
				data = string(b)
			}
			if err := validation.ValidateJSONBody(data); err != nil {
				return clierr.New(clierr.Validation, err.Error(), err)
			}
			method = strings.ToUpper(method)
			switch method {
			case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			default:
				return clierr.New(clierr.Validation, fmt.Sprintf("unsupported method %s (must be one of: POST, PUT, PATCH, DELETE)", method), nil)
			}

			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			req := &client.Request{Method: method, Path: args[0]}
			if data != "" {
				req.Body = []byte(data)
			}
			resp, err := a.client.Do(cmd.Context(), req)
			if err != nil {
				return err
			}
			writeBody(cmd.OutOrStdout(), resp.Body)
			return nil
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body, or - to read it from stdin")
	cmd.Flags().StringVarP(&method, "method", "X", http.MethodPost, "HTTP method [POST, PUT, PATCH, DELETE]")

	return cmd
}

func printResults(cmd *cobra.Command, paths []string, results []pool.Result[*client.Response], asTable bool) error {
	out := cmd.OutOrStdout()
	var firstErr error
	failed := 0
	for i, r := range results {
		if len(paths) > 1 {
			fmt.Fprintf(out, "== %s\n", paths[i])
		}
		if r.Err != nil {
			failed++
			if firstErr == nil {
				firstErr = r.Err
			}
			log.Error().Err(r.Err).Str("path", paths[i]).Msg("Request failed")
			if len(paths) > 1 {
				cmd.PrintErrln("Error:", r.Err)
			}
			continue
		}
		if asTable && renderTable(out, r.Value.Body) {
			continue
		}
		writeBody(out, r.Value.Body)
	}
	if failed == 0 {
		return nil
	}
	if failed == 1 && len(paths) == 1 {
		return firstErr
	}
	return fmt.Errorf("%d of %d requests failed: %w", failed, len(paths), firstErr)
}

// writeBody pretty-prints JSON and writes anything else unchanged.
func writeBody(out io.Writer, body []byte) {
	var buf bytes.Buffer
	if json.Indent(&buf, body, "", "  ") == nil {
		buf.WriteByte('\n')
		_, _ = buf.WriteTo(out)
		return
	}
	_, _ = out.Write(body)
	if len(body) > 0 && body[len(body)-1] != '\n' {
		fmt.Fprintln(out)
	}
}

// renderTable writes a JSON object as a key/value table and an array of
// objects as one row per element. It reports false for anything else.
func renderTable(out io.Writer, body []byte) bool {
	var value any
	if err := json.Unmarshal(body, &value); err != nil {
		return false
	}

	table := tablewriter.NewWriter(out)
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)

	switch v := value.(type) {
	case map[string]any:
		table.SetHeader([]string{"Field", "Value"})
		for _, k := range sortedKeys(v) {
			table.Append([]string{k, cell(v[k])})
		}
	case []any:
		columns := map[string]struct{}{}
		for _, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				return false
			}
			for k := range obj {
				columns[k] = struct{}{}
			}
		}
		header := sortedKeys(columns)
		table.SetHeader(header)
		for _, item := range v {
			obj := item.(map[string]any)
			row := make([]string, len(header))
			for i, k := range header {
				if val, ok := obj[k]; ok {
					row[i] = cell(val)
				}
			}
			table.Append(row)
		}
	default:
		return false
	}

	table.Render()
	return true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.ReplaceAll(t, "\n", " ")
	case map[string]any, []any:
		b, _ := json.Marshal(t)
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}
