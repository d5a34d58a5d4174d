package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	goredis "github.com/go-redis/redis/v8"
)

// DefaultCommandChannel carries remote selection commands.
const DefaultCommandChannel = "cmd:indicators"

// Command actions.
const (
	ActionActivate   = "activate"
	ActionDeactivate = "deactivate"
	ActionSet        = "set"
)

// Command changes the active selection of one symbol.
//
//	{"action":"activate","symbol":"AAPL","id":"RSI"}
//	{"action":"set","symbol":"AAPL","ids":["SMA_20","MACD"]}
type Command struct {
	Action string   `json:"action"`
	Symbol string   `json:"symbol"`
	ID     string   `json:"id,omitempty"`
	IDs    []string `json:"ids,omitempty"`
}

// ParseCommand decodes and checks a command payload. Action names are
// case-insensitive.
func ParseCommand(payload []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return Command{}, fmt.Errorf("decode command: %w", err)
	}
	cmd.Action = strings.ToLower(strings.TrimSpace(cmd.Action))
	if cmd.Symbol == "" {
		return Command{}, fmt.Errorf("command %q: missing symbol", cmd.Action)
	}
	switch cmd.Action {
	case ActionActivate, ActionDeactivate:
		if cmd.ID == "" {
			return Command{}, fmt.Errorf("command %q: missing id", cmd.Action)
		}
	case ActionSet:
		if cmd.IDs == nil {
			cmd.IDs = []string{}
		}
	default:
		return Command{}, fmt.Errorf("unknown command action %q", cmd.Action)
	}
	return cmd, nil
}

// CommandHandler applies one command.
type CommandHandler func(ctx context.Context, cmd Command) error

// SubscribeCommands listens on channel and hands every valid command to
// handle. Malformed payloads and handler errors are logged and skipped.
// Blocks until ctx is cancelled or the subscription closes.
func SubscribeCommands(ctx context.Context, client *goredis.Client, channel string, log *slog.Logger, handle CommandHandler) error {
	if channel == "" {
		channel = DefaultCommandChannel
	}
	if log == nil {
		log = slog.Default()
	}
	pubsub := client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}
	defer pubsub.Close()
	log.Info("subscribed to selection commands", "channel", channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			cmd, err := ParseCommand([]byte(msg.Payload))
			if err != nil {
				log.Warn("bad selection command", "payload", msg.Payload, "error", err)
				continue
			}
			if err := handle(ctx, cmd); err != nil {
				log.Warn("selection command failed", "action", cmd.Action, "symbol", cmd.Symbol, "error", err)
			}
		}
	}
}
