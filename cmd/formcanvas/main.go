/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"formcanvas/internal/background"
	"formcanvas/internal/config"
	"formcanvas/internal/crash"
	"formcanvas/internal/export"
	applog "formcanvas/internal/log"
	"formcanvas/internal/preview"
	"formcanvas/internal/server"
	"formcanvas/internal/ui"
	"formcanvas/internal/version"
	"formcanvas/internal/workspace"
)

func usage(w io.Writer) {
	fmt.Fprintln(w, "Form Canvas")
	fmt.Fprintf(w, "Version: %s\n", version.String())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  formcanvas version|-v|--version          Show version")
	fmt.Fprintln(w, "  formcanvas serve [<addr>]                 Serve the editor and preview over HTTP")
	fmt.Fprintln(w, "  formcanvas show                           Print the saved layout")
	fmt.Fprintln(w, "  formcanvas export-pdf <file>              Write the saved layout as a one-page PDF")
	fmt.Fprintln(w, "  formcanvas export-png <file>              Write the saved layout as a PNG")
	fmt.Fprintln(w, "  formcanvas set-background <image>         Set and save the background image")
	fmt.Fprintln(w, "  formcanvas clear                          Delete the saved layout")
	fmt.Fprintln(w, "  formcanvas config-path                    Print the config file location")
	fmt.Fprintln(w, "  formcanvas set-pg-password <password>     Store the postgres password in the OS keychain (empty deletes)")
	fmt.Fprintln(w, "  formcanvas ui [<dataDir>]                 Launch desktop UI (build with -tags fyne)")
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

// run executes one command and returns the process exit code.
func run(args []string, out io.Writer) int {
	cfg, cerr := config.Load()
	applog.Init(workspace.LogOptions(cfg.Logging))
	l := applog.WithComponent("cli")
	if cerr != nil {
		l.Warn("config load failed, using defaults", slog.Any("err", cerr))
	}
	target := &crash.Target{}
	defer crash.Recover(target)

	if len(args) == 0 {
		usage(out)
		return 0
	}
	l.Debug("start", slog.String("cmd", args[0]), slog.Int("args", len(args)))

	need := func(n int, what string) bool {
		if len(args) < n+1 {
			fmt.Fprintf(out, "%s requires %s\n", args[0], what)
			usage(out)
			return false
		}
		return true
	}
	fail := func(op string, err error) int {
		l.Error(op+" failed", slog.Any("err", err))
		fmt.Fprintln(out, "Error:", err)
		return 1
	}

	switch args[0] {
	case "version", "--version", "-v":
		fmt.Fprintln(out, "Form Canvas")
		fmt.Fprintln(out, version.String())
		return 0
	case "config-path":
		p, err := config.ConfigPath()
		if err != nil {
			return fail("config path", err)
		}
		fmt.Fprintln(out, p)
		return 0
	case "set-pg-password":
		if !need(1, "<password>") {
			return 2
		}
		if err := config.SavePostgresPassword(args[1]); err != nil {
			return fail("store password", err)
		}
		fmt.Fprintln(out, "Postgres password updated.")
		return 0
	case "ui":
		var dir string
		if len(args) >= 2 {
			dir = args[1]
		}
		if err := ui.Run(dir); err != nil {
			return fail("ui", err)
		}
		return 0
	case "serve", "show", "export-pdf", "export-png", "set-background", "clear":
	default:
		fmt.Fprintf(out, "unknown command %q\n", args[0])
		usage(out)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if args[0] == "serve" && len(args) >= 2 {
		cfg.Server.Addr = args[1]
	}
	env, err := workspace.Open(ctx, cfg)
	if err != nil {
		return fail("open", err)
	}
	defer func() { _ = env.Close() }()
	env.Arm(target)

	switch args[0] {
	case "serve":
		previews := preview.NewRegistry(env.Store, cfg.Server.PreviewTTL())
		go previews.Run(ctx, time.Minute)
		srv := server.New(cfg.Server, env.Canvas, env.Store, previews)
		fmt.Fprintf(out, "Serving on http://%s (Ctrl+C to stop)\n", cfg.Server.Addr)
		if err := srv.ListenAndServe(ctx); err != nil {
			return fail("serve", err)
		}
		return 0
	case "show":
		return show(ctx, env, out)
	case "export-pdf", "export-png":
		if !need(1, "<file>") {
			return 2
		}
		if err := exportSaved(ctx, env, args[0], args[1]); err != nil {
			return fail("export", err)
		}
		fmt.Fprintln(out, "Exported to", args[1])
		return 0
	case "set-background":
		if !need(1, "<image>") {
			return 2
		}
		dataURL, err := background.FromFile(args[1])
		if err != nil {
			return fail("read background", err)
		}
		env.Canvas.SetBackground(dataURL)
		if _, err := env.Canvas.Save(ctx); err != nil {
			return fail("save", err)
		}
		fmt.Fprintln(out, "Background saved.")
		return 0
	case "clear":
		if _, err := env.Canvas.Clear(ctx); err != nil {
			return fail("clear", err)
		}
		fmt.Fprintln(out, "Saved layout cleared.")
		return 0
	}
	return 0
}

// show prints the saved layout the way the preview page renders it.
func show(ctx context.Context, env *workspace.Env, out io.Writer) int {
	sess := preview.Open(ctx, env.Store)
	if !sess.Found {
		fmt.Fprintln(out, "No saved layout.")
		return 0
	}
	bg := "none"
	if mime, data, err := background.ParseDataURL(sess.Background()); err == nil {
		bg = fmt.Sprintf("%s, %d bytes", mime, len(data))
	}
	fmt.Fprintln(out, "Background:", bg)
	items := sess.Items()
	fmt.Fprintf(out, "Items: %d\n", len(items))
	if len(items) == 0 {
		return 0
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLABEL\tX\tY\tW\tH\tVALUE")
	for _, it := range items {
		fmt.Fprintf(tw, "%s\t%s\t%g\t%g\t%g\t%g\t%q\n", it.ID, it.Label, it.X, it.Y, it.Width, it.Height, it.Value)
	}
	_ = tw.Flush()
	return 0
}

func exportSaved(ctx context.Context, env *workspace.Env, cmd, path string) (err error) {
	snap, _ := env.Store.Load(ctx)
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	opt := export.Options{Title: filepath.Base(path)}
	if cmd == "export-png" {
		opt.Font = export.GoRegular()
		return export.PNG(f, snap, opt)
	}
	return export.PDF(f, snap, opt)
}
