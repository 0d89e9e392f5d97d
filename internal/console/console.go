// Package console is a line-oriented terminal front end for the monitor.
// It reads commands from an input stream and prints tables of the current
// store snapshot.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/katieblackabee/upquack/internal/domains"
	"github.com/katieblackabee/upquack/internal/storage"
)

var (
	ErrAmbiguousID    = errors.New("ambiguous id")
	ErrUsage          = errors.New("wrong number of arguments")
	ErrUnknownCommand = errors.New("unknown command")
)

// Store is the subset of domains.Store the console drives.
type Store interface {
	Add(url string) (string, error)
	Remove(id string) error
	Snapshot() []storage.Target
	History(id string) ([]storage.CheckRecord, error)
	PersistErr() error
}

type Refresher interface {
	Trigger()
}

type Console struct {
	store     Store
	refresher Refresher
	logger    *zap.Logger
	now       func() time.Time
}

// New returns a console over store. refresher may be nil, in which case the
// refresh command reports that no scheduler is running.
func New(store Store, refresher Refresher, logger *zap.Logger) *Console {
	return &Console{
		store:     store,
		refresher: refresher,
		logger:    logger,
		now:       time.Now,
	}
}

// Run reads commands from in until quit, end of input, or ctx is done.
func (c *Console) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	// The reader may stay blocked in Scan after Run returns; it exits on
	// the next line or at end of input.
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		readErr <- scanner.Err()
	}()

	fmt.Fprintln(out, `upquack ready, type "help" for commands`)
	c.prompt(out)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("reading input: %w", err)
			}
			return nil
		case line := <-lines:
			if quit, _ := c.Exec(line, out); quit {
				return nil
			}
			c.prompt(out)
		}
	}
}

func (c *Console) prompt(out io.Writer) {
	fmt.Fprint(out, "> ")
}

// Exec runs a single command line and reports whether the console should
// exit. The returned error is the reason a command failed; its message has
// already been written to out.
func (c *Console) Exec(line string, out io.Writer) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	var err error
	switch cmd {
	case "quit", "exit", "q":
		return true, nil
	case "help", "?":
		printHelp(out)
	case "list", "ls":
		c.list(out)
	case "add":
		err = c.add(out, args)
	case "rm", "remove", "delete":
		err = c.remove(out, args)
	case "history", "show":
		err = c.history(out, args)
	case "refresh":
		c.refresh(out)
	default:
		fmt.Fprintf(out, "unknown command %q, type \"help\" for commands\n", cmd)
		err = fmt.Errorf("%w: %s", ErrUnknownCommand, cmd)
	}
	return false, err
}

func (c *Console) list(out io.Writer) {
	targets := c.store.Snapshot()
	renderTargets(out, targets, c.now())
	if err := c.store.PersistErr(); err != nil {
		fmt.Fprintf(out, "warning: changes are not saved: %v\n", err)
	}
}

func (c *Console) add(out io.Writer, args []string) error {
	if len(args) != 1 {
		fmt.Fprintln(out, "usage: add <url>")
		return ErrUsage
	}

	id, err := c.store.Add(args[0])
	switch {
	case errors.Is(err, domains.ErrInvalidURL):
		fmt.Fprintf(out, "invalid url: %s\n", args[0])
	case errors.Is(err, domains.ErrDuplicateURL):
		fmt.Fprintf(out, "already monitoring %s\n", args[0])
	case err != nil:
		fmt.Fprintf(out, "add failed: %v\n", err)
	default:
		fmt.Fprintf(out, "added %s %s\n", shortID(id), args[0])
	}
	return err
}

func (c *Console) remove(out io.Writer, args []string) error {
	if len(args) != 1 {
		fmt.Fprintln(out, "usage: rm <id>")
		return ErrUsage
	}

	target, err := c.resolve(args[0])
	if err != nil {
		fmt.Fprintln(out, err)
		return err
	}
	if err := c.store.Remove(target.ID); err != nil {
		fmt.Fprintf(out, "remove failed: %v\n", err)
		return err
	}
	fmt.Fprintf(out, "removed %s %s\n", shortID(target.ID), target.URL)
	return nil
}

func (c *Console) history(out io.Writer, args []string) error {
	if len(args) != 1 {
		fmt.Fprintln(out, "usage: history <id>")
		return ErrUsage
	}

	target, err := c.resolve(args[0])
	if err != nil {
		fmt.Fprintln(out, err)
		return err
	}
	records, err := c.store.History(target.ID)
	if err != nil {
		fmt.Fprintln(out, err)
		return err
	}

	fmt.Fprintf(out, "%s  %s  %s\n", shortID(target.ID), target.URL, target.Status)
	renderHistory(out, records, c.now())
	return nil
}

func (c *Console) refresh(out io.Writer) {
	if c.refresher == nil {
		fmt.Fprintln(out, "no scheduler running")
		return
	}
	c.refresher.Trigger()
	c.logger.Info("refresh_requested")
	fmt.Fprintln(out, "refresh requested")
}

// resolve accepts a full id or a unique prefix of one.
func (c *Console) resolve(prefix string) (storage.Target, error) {
	var match *storage.Target
	targets := c.store.Snapshot()
	for i := range targets {
		t := &targets[i]
		if t.ID == prefix {
			return *t, nil
		}
		if strings.HasPrefix(t.ID, prefix) {
			if match != nil {
				return storage.Target{}, fmt.Errorf("%w: %s", ErrAmbiguousID, prefix)
			}
			match = t
		}
	}
	if match == nil {
		return storage.Target{}, fmt.Errorf("%w: %s", domains.ErrNotFound, prefix)
	}
	return *match, nil
}

func printHelp(out io.Writer) {
	fmt.Fprint(out, `commands:
  list                 show all targets
  add <url>            start monitoring url
  rm <id>              stop monitoring a target
  history <id>         show recent checks of a target
  refresh              check every target now
  help                 show this help
  quit                 exit
ids may be shortened to any unique prefix
`)
}
