package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/drpcorg/lwdelta/model"
	"github.com/ergochat/readline"
	"github.com/pkg/errors"
)

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),
	readline.PcItem("partitions"),
	readline.PcItem("clients"),
	readline.PcItem("show"),
	readline.PcItem("quit"),
)

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

// console serves in the background and reads commands until quit.
func console(ctx context.Context, s *server) error {
	l, err := readline.NewEx(&readline.Config{
		Prompt:          "◌ ",
		HistoryFile:     "/tmp/lwdelta.history",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		return err
	}
	defer l.Close()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- s.run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				return nil
			}
			continue
		} else if err == io.EOF {
			return nil
		}

		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		cmd, args := args[0], args[1:]
		err = nil
		switch cmd {
		case "help":
			fmt.Println("partitions | clients | show <partition> | quit")
		case "partitions":
			for _, p := range s.repo.Partitions() {
				fmt.Printf("%s\t%s\n", p.Id, p.Classifier)
			}
		case "clients":
			for _, c := range s.repo.Clients() {
				fmt.Printf("%s\t%s\t%s\tsigned on: %v\tconnected: %v\tnext #%d\t%v\n",
					c.ClientId, c.Name, c.Participation, c.SignedOn, c.Connected, c.NextSequence, c.Subscriptions)
			}
		case "show":
			for _, arg := range args {
				if err = show(s, model.NodeId(arg)); err != nil {
					break
				}
			}
		case "exit", "quit":
			return nil
		default:
			_, _ = fmt.Fprintf(os.Stderr, "command unknown: %s\n", cmd)
		}

		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Error executing %s: %s\n", cmd, err.Error())
		}
	}
}

func show(s *server, id model.NodeId) error {
	chunk, err := s.repo.Snapshot(id)
	if err != nil {
		return errors.Wrapf(err, "show %s", id)
	}
	out, err := json.MarshalIndent(chunk, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
