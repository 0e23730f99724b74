// fakeserver stands in for a real database server in tests. Its behaviour at
// start and stop is controlled by flags: it can be slow to boot, crash, or
// ignore the terminate signal.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/gin-gonic/gin"

	"github.com/circleci/ephemeral/termination"
)

// Store is the file written by init, served back by /data.
const Store = "store.dat"

type cli struct {
	Init  initCmd  `cmd:"" help:"Initialise a data directory."`
	Serve serveCmd `cmd:"" help:"Serve until terminated."`
}

type initCmd struct {
	DataDir string `name:"data-dir" required:"" help:"Directory to initialise."`
	Fail    bool   `name:"fail" help:"Fail with a message on stderr."`
}

func (c *initCmd) Run() error {
	if c.Fail {
		fmt.Fprintln(os.Stderr, "fakeserver: refusing to initialise, disk full")
		os.Exit(2)
	}
	if err := os.MkdirAll(c.DataDir, 0o700); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(c.DataDir, "VERSION"), []byte("1\n"), 0o600); err != nil {
		return err
	}
	stamp := strconv.FormatInt(time.Now().UnixNano(), 10)
	return os.WriteFile(filepath.Join(c.DataDir, Store), []byte(stamp), 0o600)
}

type serveCmd struct {
	Host       string        `name:"host" default:"127.0.0.1"`
	Port       int           `name:"port" required:""`
	DataDir    string        `name:"data-dir" help:"Directory whose store is served on /data."`
	BootDelay  time.Duration `name:"boot-delay" help:"Wait this long before listening."`
	ExitAfter  time.Duration `name:"exit-after" help:"Exit with status 3 after this long."`
	IgnoreTerm bool          `name:"ignore-term" help:"Ignore the terminate signal."`
}

func (c *serveCmd) Run() error {
	if c.IgnoreTerm {
		signal.Ignore(syscall.SIGTERM)
	}
	if c.ExitAfter > 0 {
		go func() {
			time.Sleep(c.ExitAfter)
			fmt.Fprintln(os.Stderr, "fakeserver: crashing on purpose")
			os.Exit(3)
		}()
	}

	fmt.Printf("fakeserver: booting pid=%d\n", os.Getpid())
	time.Sleep(c.BootDelay)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.GET("/ready", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"pid": os.Getpid()})
	})
	r.GET("/data", func(ctx *gin.Context) {
		b, err := os.ReadFile(filepath.Join(c.DataDir, Store))
		if err != nil {
			ctx.String(http.StatusNotFound, err.Error())
			return
		}
		ctx.String(http.StatusOK, string(b))
	})

	addr := net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintln(os.Stderr, "fakeserver:", err)
			os.Exit(1)
		}
	}()
	fmt.Printf("fakeserver: listening on %s\n", addr)

	if c.IgnoreTerm {
		for {
			time.Sleep(time.Hour)
		}
	}
	_ = termination.Handle(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = srv.Shutdown(ctx)
	fmt.Println("fakeserver: stopped")
	return err
}

func main() {
	ctx := kong.Parse(&cli{})
	ctx.FatalIfErrorf(ctx.Run())
}
