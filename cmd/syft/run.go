package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/muesli/termenv"
	"github.com/sbm367/syft"
	"github.com/sbm367/syft/internal/cli"
	"github.com/sbm367/syft/internal/presentation/tui"
	"github.com/sbm367/syft/pkg/adapters/file"
	"github.com/sbm367/syft/pkg/adapters/redis"
	"github.com/sbm367/syft/pkg/config"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var runCmd = &cobra.Command{
	Use:   "run <script>",
	Short: "Run a tensor script",
	Long: `Loads a YAML or JSON script of tensors, operations and removals and runs it
against a client. With --url every step is mirrored to the peer. Tensors are
persisted when the config names a Redis address or a file directory.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		script, err := cli.LoadScript(args[0])
		if err != nil {
			return err
		}

		markdown, _ := cmd.Flags().GetBool("markdown")
		mermaid, _ := cmd.Flags().GetBool("graph")
		restore, _ := cmd.Flags().GetBool("restore")
		out := cmd.OutOrStdout()
		interactive := isTerminal(out)

		runCtx := cli.NewRunContext(context.Background())
		defer runCtx.Release()

		client, err := newClient(runCtx, cfg, restore)
		if err != nil {
			return err
		}
		defer client.Close()

		if interactive && !markdown && !mermaid {
			tui.PrintBanner(out, syft.Version)
		}

		report, runErr := cli.Execute(runCtx, client, script)
		if err := runCtx.Interruption(); err != nil {
			fmt.Fprintf(out, ">>> %v after %d steps\n", err, len(report.Steps))
			runErr = err
		}

		switch {
		case mermaid:
			failed := ""
			if runErr != nil {
				failed = failedStep(script, report)
			}
			fmt.Fprint(out, script.Mermaid(failed))
		case markdown:
			if err := printMarkdown(out, report.Markdown(), interactive); err != nil {
				return err
			}
		default:
			profile := termenv.Ascii
			if interactive {
				profile = termenv.ColorProfile()
			}
			report.Print(out, profile)
		}
		return runErr
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Bool("markdown", false, "Print the report as markdown (rendered when stdout is a terminal)")
	runCmd.Flags().Bool("graph", false, "Print the script dataflow as a Mermaid graph")
	runCmd.Flags().Bool("restore", false, "Load persisted tensors before running")
}

func newClient(ctx context.Context, cfg config.Config, restore bool) (*syft.Syft, error) {
	opts := []syft.Option{syft.WithConfig(cfg)}
	switch {
	case cfg.Redis.Addr != "":
		var storeOpts []redis.Option
		if cfg.Redis.Prefix != "" {
			storeOpts = append(storeOpts, redis.WithPrefix(cfg.Redis.Prefix))
		}
		if ttl := cfg.RedisTTL(); ttl > 0 {
			storeOpts = append(storeOpts, redis.WithTTL(ttl))
		}
		opts = append(opts, syft.WithStore(redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, storeOpts...)))
	case cfg.File.Dir != "":
		opts = append(opts, syft.WithStore(file.New(cfg.File.Dir)))
	}

	client, err := syft.New(opts...)
	if err != nil {
		return nil, err
	}
	if restore {
		if _, err := client.Restore(ctx); err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	return client, nil
}

// failedStep names the script node that did not complete, for the graph
// overlay.
func failedStep(script cli.Script, report *cli.Report) string {
	done := len(report.Steps)
	if done < len(script.Tensors) {
		return script.Tensors[done].ID
	}
	done -= len(script.Tensors)
	if done < len(script.Operations) {
		return fmt.Sprintf("op%d", done+1)
	}
	done -= len(script.Operations)
	if done < len(script.Remove) {
		return script.Remove[done]
	}
	return ""
}

func printMarkdown(w io.Writer, md string, render bool) error {
	if !render {
		_, err := fmt.Fprint(w, md)
		return err
	}
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		width = 0
	}
	renderer, err := tui.NewRenderer(width)
	if err != nil {
		return err
	}
	rendered, err := renderer(md)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(w, rendered)
	return err
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
