// snapctl 检查、转换与校验快照文件。
//
//	snapctl [--config path] inspect  [-codec json] file...
//	snapctl [--config path] convert  -to cbor [-from json] [-out dir] file...
//	snapctl [--config path] validate -types A,B [-codec json] file...
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lk2023060901/graphsnap-go/application"
	"github.com/lk2023060901/graphsnap-go/pkg/log"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("snapctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.String("config", "", "config file path")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: snapctl [--config path] <inspect|convert|validate> [flags] file...")
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	app := application.New(args...)
	if err := app.Run(); err != nil {
		fmt.Fprintln(stderr, "snapctl:", err)
		return 1
	}

	name, rest := fs.Arg(0), fs.Args()[1:]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "snapctl: unknown command %q\n", name)
		fs.Usage()
		return 2
	}

	ctx, span := log.NewIntentContext("snapctl", name)
	defer span.End()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	app.OnSignal(func(kind application.SignalKind, _ os.Signal) {
		if kind == application.SignalShutdown {
			cancel()
		}
	})

	e := &env{app: app, stdout: stdout, stderr: stderr}
	if err := cmd(ctx, e, rest); err != nil {
		log.Ctx(ctx).Warn("command failed", zap.Error(err))
		fmt.Fprintln(stderr, "snapctl:", err)
		var exit exitError
		if errors.As(err, &exit) {
			return exit.code
		}
		return 1
	}
	return 0
}
