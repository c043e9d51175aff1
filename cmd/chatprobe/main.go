// chatprobe joins a running server as one identity and prints every event it
// receives. Handy for watching presence, typing and reactions by hand.
package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"world-chat/internal/logging"
	"world-chat/internal/types"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type probeOptions struct {
	server   string
	identity string
	name     string
	token    string
	say      string
	typing   bool
	linger   time.Duration
	verbose  bool
}

func main() {
	opts := &probeOptions{}

	rootCmd := &cobra.Command{
		Use:   "chatprobe",
		Short: "Join a world-chat server and print the event stream",
		RunE: func(cmd *cobra.Command, _ []string) error {
			level := "info"
			if opts.verbose {
				level = "debug"
			}
			return run(cmd.Context(), opts, logging.New(level, "console"))
		},
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	f := rootCmd.Flags()
	f.StringVarP(&opts.server, "server", "s", "ws://localhost:8080/ws", "websocket endpoint")
	f.StringVarP(&opts.identity, "identity", "i", "", "identity to join as (required)")
	f.StringVarP(&opts.name, "name", "n", "", "display name to set after joining")
	f.StringVar(&opts.token, "token", "", "signed access token")
	f.StringVar(&opts.say, "say", "", "send one message after joining")
	f.BoolVar(&opts.typing, "typing", false, "announce typing before sending")
	f.DurationVar(&opts.linger, "linger", 0, "disconnect after this long (0 waits for ctrl-c)")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "log raw frames")
	_ = rootCmd.MarkFlagRequired("identity")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts *probeOptions, log zerolog.Logger) error {
	endpoint, err := url.Parse(opts.server)
	if err != nil {
		return fmt.Errorf("parse server url: %w", err)
	}
	if opts.token != "" {
		q := endpoint.Query()
		q.Set("token", opts.token)
		endpoint.RawQuery = q.Encode()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", opts.server, err)
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, frame, err := conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Msg("connection ended")
				return
			}
			env, err := types.DecodeEnvelope(frame)
			if err != nil {
				log.Warn().Bytes("frame", frame).Msg("undecodable frame")
				continue
			}
			log.Info().Str("event", env.Event).RawJSON("data", orNull(env.Data)).Msg("recv")
		}
	}()

	send := func(event string, payload any) error {
		frame, err := types.Encode(event, payload)
		if err != nil {
			return err
		}
		log.Debug().Bytes("frame", frame).Msg("send")
		return conn.WriteMessage(websocket.TextMessage, frame)
	}

	if err := send(types.EventJoin, types.JoinRequest{Identity: opts.identity}); err != nil {
		return err
	}
	if opts.name != "" {
		if err := send(types.EventSetDisplayName, types.SetDisplayNameRequest{Identity: opts.identity, DisplayName: opts.name}); err != nil {
			return err
		}
	}
	if opts.say != "" {
		if opts.typing {
			if err := send(types.EventTypingStart, types.TypingRequest{}); err != nil {
				return err
			}
			time.Sleep(time.Second)
		}
		if err := send(types.EventSendMessage, types.SendMessageRequest{Content: opts.say}); err != nil {
			return err
		}
	}

	var timeout <-chan time.Time
	if opts.linger > 0 {
		timeout = time.After(opts.linger)
	}
	select {
	case <-ctx.Done():
	case <-timeout:
	case <-done:
		return nil
	}

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	select {
	case <-done:
	case <-time.After(time.Second):
	}
	return nil
}

func orNull(raw []byte) []byte {
	if len(raw) == 0 {
		return []byte("null")
	}
	return raw
}
