package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/dshills/skbridge/internal/sourcekitd"
)

func newSendCommand(state *rootState) *cobra.Command {
	var (
		document     string
		sourceFile   string
		timeout      time.Duration
		printRequest bool
	)

	cmd := &cobra.Command{
		Use:   "send <request-kind> [request.json]",
		Short: "Send a request to the backend and print the response",
		Long: `Send dispatches one request of the given dotted kind, for example
source.request.cursorinfo. The optional JSON file supplies the request body;
keys are interned as UIDs, and string values starting with "source." or
"key." are interned as UIDs as well.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ok := sourcekitd.ParseRequestKind(args[0])
			if !ok {
				return fmt.Errorf("unknown request kind %q", args[0])
			}

			sk, err := state.openSession()
			if err != nil {
				return err
			}

			req := sourcekitd.NewRequestDictionary()
			if len(args) == 2 {
				data, err := os.ReadFile(args[1])
				if err != nil {
					return err
				}
				if !gjson.ValidBytes(data) {
					return fmt.Errorf("%s: not valid JSON", args[1])
				}
				if err := buildRequest(sk, req, gjson.ParseBytes(data)); err != nil {
					return fmt.Errorf("%s: %w", args[1], err)
				}
			}
			if sourceFile != "" {
				req.Set(sk.Keys().SourceFile, sourceFile)
			}

			var contents string
			if sourceFile != "" {
				if data, err := os.ReadFile(sourceFile); err == nil {
					contents = string(data)
				}
			}

			if printRequest {
				fmt.Fprintln(os.Stderr, color.CyanString(sk.RequestDescription(req)))
			}

			resp, err := sk.Send(context.Background(), kind, req,
				state.requestTimeout(timeout), state.cfg.SourceKit.RestartTimeout.Std(),
				sourcekitd.DocumentURI(document), contents)
			if err != nil {
				return err
			}
			defer resp.Dispose()

			fmt.Println(sk.ResponseDescription(resp))
			fmt.Fprintln(os.Stderr, color.GreenString("ok"))
			return nil
		},
	}

	cmd.Flags().StringVar(&document, "document", "", "document URI for contextual crash tracking")
	cmd.Flags().StringVar(&sourceFile, "source-file", "", "source file set as key.sourcefile and attached to crash logs")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per-request timeout (0 uses the configured default)")
	cmd.Flags().BoolVar(&printRequest, "print-request", false, "print the marshalled request before sending")

	return cmd
}

// buildRequest converts a parsed JSON object into request dictionary entries.
func buildRequest(sk *sourcekitd.SourceKitD, dict *sourcekitd.RequestDictionary, obj gjson.Result) error {
	if !obj.IsObject() {
		return fmt.Errorf("request body must be a JSON object")
	}
	var walkErr error
	obj.ForEach(func(key, value gjson.Result) bool {
		v, err := requestValueOf(sk, value)
		if err != nil {
			walkErr = fmt.Errorf("%s: %w", key.String(), err)
			return false
		}
		dict.Set(sk.UIDForName(key.String()), v)
		return true
	})
	return walkErr
}

func requestValueOf(sk *sourcekitd.SourceKitD, value gjson.Result) (any, error) {
	switch value.Type {
	case gjson.String:
		s := value.String()
		if strings.HasPrefix(s, "source.") || strings.HasPrefix(s, "key.") {
			return sk.UIDForName(s), nil
		}
		return s, nil
	case gjson.Number:
		if f := value.Float(); f != float64(int64(f)) {
			return f, nil
		}
		return value.Int(), nil
	case gjson.True:
		return true, nil
	case gjson.False:
		return false, nil
	case gjson.Null:
		return nil, nil
	case gjson.JSON:
		if value.IsArray() {
			arr := sourcekitd.NewRequestArray()
			var walkErr error
			value.ForEach(func(_, elem gjson.Result) bool {
				v, err := requestValueOf(sk, elem)
				if err != nil {
					walkErr = err
					return false
				}
				arr.Append(v)
				return true
			})
			return arr, walkErr
		}
		nested := sourcekitd.NewRequestDictionary()
		if err := buildRequest(sk, nested, value); err != nil {
			return nil, err
		}
		return nested, nil
	default:
		return nil, fmt.Errorf("unsupported JSON value %s", value.Raw)
	}
}
