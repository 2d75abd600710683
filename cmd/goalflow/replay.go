package main

import (
	"fmt"
	"os"

	"github.com/vinayprograms/goalflow/internal/replay"
)

// Run replays the session.
func (c *ReplayCmd) Run() error {
	r := replay.New(os.Stdout, c.Verbose)

	// Use interactive pager when stdout is a TTY and not disabled
	interactive := !c.NoPager && isTerminal(os.Stdout)
	switch {
	case c.Follow && interactive:
		return r.ReplayFileLive(c.Session)
	case c.Follow:
		return fmt.Errorf("--follow needs a terminal")
	case interactive:
		return r.ReplayFileInteractive(c.Session)
	}
	return r.ReplayFile(c.Session)
}

// Run prints version information.
func (c *VersionCmd) Run() error {
	fmt.Printf("goalflow version %s (commit %s, built %s)\n", version, commit, buildTime)
	return nil
}
