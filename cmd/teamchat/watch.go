package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	domainchat "github.com/yungbote/teamchat-backend/internal/domain/chat"
	"github.com/yungbote/teamchat-backend/internal/domain/identity"
	"github.com/yungbote/teamchat-backend/internal/realtime/session"
)

type watchOpts struct {
	baseURL    string
	accountID  int64
	userID     int64
	token      string
	roomKind   string
	identifier string
	perPage    int
}

func watchCmd() *cobra.Command {
	var o watchOpts
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Tail a room over the realtime channel; lines typed on stdin are sent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, o)
		},
	}
	cmd.Flags().StringVar(&o.baseURL, "url", "http://localhost:8080", "server base URL")
	cmd.Flags().Int64Var(&o.accountID, "account", 0, "account id")
	cmd.Flags().Int64Var(&o.userID, "user", 0, "user id")
	cmd.Flags().StringVar(&o.token, "token", os.Getenv("TEAMCHAT_TOKEN"), "access token (default $TEAMCHAT_TOKEN)")
	cmd.Flags().StringVar(&o.roomKind, "room", "general", "room kind: general, team or direct")
	cmd.Flags().StringVar(&o.identifier, "id", "", "team id or peer user id")
	cmd.Flags().IntVar(&o.perPage, "per-page", session.DefaultPerPage, "history to load when the room opens")
	return cmd
}

func wsURL(base string) string {
	base = strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/api/internal_chat/ws"
}

func runWatch(cmd *cobra.Command, o watchOpts) error {
	kind, ok := domainchat.ParseRoomKind(o.roomKind)
	if !ok {
		return fmt.Errorf("unknown room kind %q", o.roomKind)
	}
	if o.token == "" || o.accountID <= 0 {
		return fmt.Errorf("--token and --account are required")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := session.NewManager(log, session.Config{
		Transport: session.NewWebsocketTransport(wsURL(o.baseURL)),
		API:       session.NewHTTPAPI(o.baseURL),
		PerPage:   o.perPage,
	})
	defer m.Close()

	snaps, cancel := m.Subscribe()
	defer cancel()
	m.SetCredentials(identity.Credentials{AccountID: o.accountID, UserID: o.userID, Token: o.token})

	page, err := m.OpenRoom(ctx, kind, o.identifier)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if page.Reason != "" {
		fmt.Fprintf(out, "-- %s\n", page.Reason)
	}

	go readInput(ctx, cmd.InOrStdin(), m, out)

	printed := map[int64]string{}
	var lastState session.State
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-snaps:
			if !ok {
				return nil
			}
			if snap.State != lastState {
				lastState = snap.State
				fmt.Fprintf(out, "-- %s\n", snap.State)
			}
			if snap.State == session.StateError {
				return snap.Err
			}
			for _, e := range snap.Entries {
				if e.Temp {
					continue
				}
				line := formatEntry(e.Message)
				if printed[e.Message.ID] == line {
					continue
				}
				printed[e.Message.ID] = line
				fmt.Fprintln(out, line)
			}
		}
	}
}

func formatEntry(msg domainchat.MessageView) string {
	body := "(deleted)"
	if msg.Content != nil {
		body = *msg.Content
	}
	if len(msg.Attachments) > 0 {
		names := make([]string, 0, len(msg.Attachments))
		for _, a := range msg.Attachments {
			names = append(names, a.FileName)
		}
		body += " [" + strings.Join(names, ", ") + "]"
	}
	suffix := ""
	if msg.Edited && !msg.Deleted {
		suffix = " (edited)"
	}
	return fmt.Sprintf("%s #%d %s: %s%s", msg.CreatedAt, msg.ID, msg.Sender.Name, body, suffix)
}

func readInput(ctx context.Context, in io.Reader, m *session.Manager, out io.Writer) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if _, err := m.Send(ctx, line); err != nil {
			var se *session.SendError
			if errors.As(err, &se) {
				fmt.Fprintf(out, "-- not sent: %q (%v)\n", se.Content, se.Err)
				continue
			}
			fmt.Fprintf(out, "-- %v\n", err)
		}
	}
}
