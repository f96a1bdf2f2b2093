package main

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/duochat/internal/client"
	"github.com/vovakirdan/duochat/internal/proto"
)

func newSmokeCmd(opts *options) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Log in, open /ws, check presence and ping/pong, then exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return smoke(ctx, *opts)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "total timeout for the run")
	return cmd
}

func smoke(ctx context.Context, opts options) error {
	api := client.NewHTTPClient(opts.server, "")
	auth, err := api.Login(ctx, opts.email, opts.password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	wsURL := "ws" + strings.TrimPrefix(strings.TrimRight(opts.server, "/"), "http") +
		"/ws?userId=" + auth.User.ID + "&token=" + auth.Token
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypePing}); err != nil {
		return fmt.Errorf("send ping: %w", err)
	}

	var sawSelf, sawPong bool
	for !sawSelf || !sawPong {
		var out proto.RawOutbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		fmt.Printf("Received outbound: type=%s", out.Type)
		if out.Event != "" {
			fmt.Printf(" event=%s", out.Event)
		}
		fmt.Println()

		if out.Error != nil {
			return fmt.Errorf("server error %s: %s", out.Error.Code, out.Error.Msg)
		}

		switch out.Event {
		case proto.EventOnlineUsers:
			var ids []string
			if err := json.Unmarshal(out.Data, &ids); err != nil {
				return fmt.Errorf("unmarshal online users: %w", err)
			}
			fmt.Printf("Online: %v\n", ids)
			sawSelf = sawSelf || slices.Contains(ids, auth.User.ID)
		case proto.EventPong:
			sawPong = true
		case proto.EventNewMessage:
			var msg proto.Message
			if err := json.Unmarshal(out.Data, &msg); err == nil {
				fmt.Printf("Message: from=%s text=%q\n", msg.SenderID, msg.Text)
			}
		}
	}

	fmt.Println("smoke ok")
	return nil
}
