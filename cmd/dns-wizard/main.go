package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"

	"github.com/urfave/cli/v3"

	"github.com/sinaha81/dns-wizard/cloudflare"
	"github.com/sinaha81/dns-wizard/paths"
	"github.com/sinaha81/dns-wizard/update"
	"github.com/sinaha81/dns-wizard/wizard"
)

const (
	versionURL = "https://raw.githubusercontent.com/sinaha81/dns-wizard/main/version.txt"
	binaryURL  = "https://github.com/sinaha81/dns-wizard/releases/latest/download/dns-wizard"
	scriptURL  = "https://raw.githubusercontent.com/sinaha81/dns-wizard/main/worker.js"

	workerDomain = "workers.dev"
	tokenName    = "dns-wizard"
)

func main() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		onInterrupt(os.Stderr, os.Exit)
	}()

	root := &cli.Command{
		Name:    "dns-wizard",
		Usage:   "deploy the dns worker to your cloudflare account",
		Version: resolveVersion(),
		Action:  run,
	}

	if err := root.Run(context.Background(), os.Args); err != nil {
		cli.HandleExitCoder(err)
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	outcome, err := checkUpdate(ctx)
	if err != nil {
		return cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	if outcome.Relaunch {
		os.Exit(relaunch(outcome))
	}

	err = wizard.Run(ctx, wizard.Options{
		ScriptURL:    scriptURL,
		WorkerDomain: workerDomain,
		TokenName:    tokenName,
		In:           os.Stdin,
		Out:          os.Stdout,
		NewClient:    func(token string) wizard.API { return cloudflare.New(token) },
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	return nil
}

// checkUpdate runs the self-update bootstrap. A failed version check is
// a warning and the current build proceeds; a failed download of a newer
// build is fatal.
func checkUpdate(ctx context.Context) (update.Outcome, error) {
	cacheDir, err := paths.EnsureCacheDir()
	if err != nil {
		fmt.Fprintln(os.Stderr, "warning: skipping update check:", err)
		return update.Outcome{}, nil
	}

	outcome, err := update.Check(ctx, update.Options{
		Version:    resolveVersion(),
		VersionURL: versionURL,
		BinaryURL:  binaryURL,
		CacheDir:   cacheDir,
		Args:       os.Args[1:],
	})
	if err != nil {
		return update.Outcome{}, err
	}
	if outcome.CheckErr != nil {
		fmt.Fprintln(os.Stderr, "warning: version check failed:", outcome.CheckErr)
	}
	return outcome, nil
}

// onInterrupt reports the abort and terminates with the conventional
// interrupted status. Prompt reads blocked on stdin cannot be unwound
// portably, so the process exits directly instead of cancelling
// in-flight work.
func onInterrupt(stderr io.Writer, exit func(int)) {
	fmt.Fprintln(stderr, "\ninterrupted")
	exit(130)
}

// relaunch hands control to the freshly downloaded copy and returns its
// exit status. Nothing else runs in this process afterwards.
func relaunch(outcome update.Outcome) int {
	c := exec.Command(outcome.Path, outcome.Args...)
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if err := c.Run(); err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return ee.ExitCode()
		}
		fmt.Fprintln(os.Stderr, "error: relaunch:", err)
		return 1
	}
	return 0
}
