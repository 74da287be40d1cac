package console

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/uuid"

	"github.com/korvid-labs/wsbridge/pkg/bus"
	"github.com/korvid-labs/wsbridge/pkg/config"
	"github.com/korvid-labs/wsbridge/pkg/logger"
	"github.com/korvid-labs/wsbridge/pkg/registry"
	"github.com/korvid-labs/wsbridge/pkg/router"
	"github.com/korvid-labs/wsbridge/pkg/tpproto"
	"github.com/korvid-labs/wsbridge/pkg/wsconn"
)

func consoleCmd(debug bool, configPath string) error {
	if debug {
		logger.SetLevel(logger.DEBUG)
	} else {
		logger.SetLevel(logger.WARN)
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgBus := bus.New(64)
	reg := registry.New(cfg.Queue.Capacity)

	mgr := wsconn.NewManager(wsconn.OptionsFromConfig(cfg), reg, msgBus)
	mgr.UpdateAliases(cfg.Destinations)
	defer mgr.Shutdown()

	rt := router.New(reg, mgr, msgBus, cancel)
	go rt.Run(ctx)

	// Events land asynchronously; print them as they arrive.
	go func() {
		for {
			ev, ok := msgBus.NextEvent(ctx)
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Printf("< %s\n", data)
		}
	}()

	fmt.Println("wsbridge console. Commands: send <dest> <message>, list, remove <dest>, quit.")
	fmt.Println("Raw JSON lines are dispatched as host commands.")

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		HistoryFile:     filepath.Join(os.TempDir(), ".wsbridge_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("error initializing readline: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				fmt.Println("\nGoodbye!")
				return nil
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Goodbye!")
			return nil
		}

		if err := dispatch(ctx, input, msgBus, mgr, reg); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func dispatch(ctx context.Context, input string, msgBus *bus.Bus, mgr *wsconn.Manager, reg *registry.Registry) error {
	if strings.HasPrefix(input, "{") {
		return publishRaw(ctx, input, msgBus)
	}

	fields := strings.Fields(input)
	switch fields[0] {
	case "send":
		if len(fields) < 3 {
			return errors.New("usage: send <dest> <message>")
		}
		dest := fields[1]
		message := strings.TrimSpace(strings.TrimPrefix(input, "send"))
		message = strings.TrimSpace(strings.TrimPrefix(message, dest))
		return msgBus.PublishCommand(ctx, bus.CommandEnvelope{
			Command: tpproto.SendMessage{Destination: dest, Message: message},
			ID:      uuid.NewString(),
		})
	case "list":
		entries := reg.List()
		if len(entries) == 0 {
			fmt.Println("no destinations")
			return nil
		}
		for _, d := range entries {
			line := fmt.Sprintf("%s\t%s", d.ID, d.State())
			if err := d.LastError(); err != nil {
				line += "\t" + err.Error()
			}
			fmt.Println(line)
		}
		return nil
	case "remove":
		if len(fields) != 2 {
			return errors.New("usage: remove <dest>")
		}
		if !mgr.Remove(fields[1]) {
			return fmt.Errorf("unknown destination %q", fields[1])
		}
		fmt.Printf("removed %s\n", fields[1])
		return nil
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
}

func publishRaw(ctx context.Context, input string, msgBus *bus.Bus) error {
	cmd, err := tpproto.ParseCommand([]byte(input))
	if err != nil {
		return err
	}
	return msgBus.PublishCommand(ctx, bus.CommandEnvelope{Command: cmd, ID: uuid.NewString()})
}
