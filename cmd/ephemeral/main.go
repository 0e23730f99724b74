// ephemeral runs any server binary as a throwaway resource: a fresh working
// directory and port, data initialised on first use, the server probed until
// ready, then stopped and cleaned up when interrupted.
//
//	ephemeral run --probe postgres --init 'initdb -D {data}' -- postgres -D {data} -p {port} -k {dir}
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"

	"github.com/circleci/ephemeral/config"
	"github.com/circleci/ephemeral/config/o11y"
)

// Version is set at build time.
var Version = "dev"

type cli struct {
	Run  runCmd  `cmd:"" help:"Run a server until interrupted."`
	Port portCmd `cmd:"" help:"Print a free TCP port."`
	Find findCmd `cmd:"" help:"Print the path of a server executable."`
	Env  envCmd  `cmd:"" help:"List the environment variables that change behaviour."`
}

// runEnv is bound into every command.
type runEnv struct {
	ctx context.Context
	out io.Writer
}

func main() {
	kctx := kong.Parse(&cli{},
		kong.Name("ephemeral"),
		kong.Description("Run servers as ephemeral resources."),
		kong.UsageOnError(),
	)

	ctx, cleanup, err := o11y.Setup(context.Background(), o11y.Config{
		Service: "ephemeral",
		Version: Version,
		Writer:  os.Stderr,
		Colour:  config.Get().LogColour,
	})
	kctx.FatalIfErrorf(err)

	err = kctx.Run(&runEnv{ctx: ctx, out: os.Stdout})
	cleanup(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ephemeral:", err)
		os.Exit(1)
	}
}
