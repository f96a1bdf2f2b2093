package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/duochat/internal/client"
	"github.com/vovakirdan/duochat/internal/log"
	"github.com/vovakirdan/duochat/internal/proto"
)

type options struct {
	server   string
	email    string
	password string
	name     string
	bio      string
	signup   bool
	logLevel string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "chat:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:           "duochat",
		Short:         "Terminal client for duochat",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(opts)
		},
	}

	cmd.AddCommand(newSmokeCmd(&opts))

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.server, "server", "http://localhost:8080", "server base URL")
	flags.StringVar(&opts.email, "email", "", "account email")
	flags.StringVar(&opts.password, "password", "", "account password")
	flags.BoolVar(&opts.signup, "signup", false, "create the account first")
	flags.StringVar(&opts.name, "name", "", "full name (with --signup)")
	flags.StringVar(&opts.bio, "bio", "hey there", "bio (with --signup)")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level")
	_ = cmd.MarkPersistentFlagRequired("email")
	_ = cmd.MarkPersistentFlagRequired("password")

	return cmd
}

func run(opts options) error {
	logger := log.NewWithWriter(os.Stderr, "duochat", opts.logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := client.NewHTTPClient(opts.server, "")
	authCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var (
		auth *proto.AuthResponse
		err  error
	)
	if opts.signup {
		auth, err = api.Signup(authCtx, proto.SignupRequest{
			FullName: opts.name,
			Email:    opts.email,
			Password: opts.password,
			Bio:      opts.bio,
		})
	} else {
		auth, err = api.Login(authCtx, opts.email, opts.password)
	}
	if err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}

	ctrl := client.NewController(api, auth.User.ID, logger)
	go ctrl.Run(ctx)

	wsURL := "ws" + strings.TrimPrefix(strings.TrimRight(opts.server, "/"), "http") + "/ws"
	conn, err := client.Dial(ctx, wsURL, auth.User.ID, auth.Token, logger)
	if err != nil {
		return err
	}
	defer conn.Close()
	ctrl.Attach(conn)

	if err := ctrl.LoadSidebar(ctx); err != nil {
		return fmt.Errorf("load contacts: %w", err)
	}

	fmt.Printf("Signed in as %s (%s)\n", auth.User.FullName, auth.User.Email)
	fmt.Println("Commands: /users, /open <n|id>, /img <ref>, /bio <text>, /close to quit. Other lines are sent to the open conversation.")
	printContacts(ctrl.Snapshot())

	go watch(ctx, ctrl)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-conn.Done():
			if err := conn.Err(); err != nil {
				return fmt.Errorf("connection lost: %w", err)
			}
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if done := handleLine(ctx, ctrl, api, &auth.User, strings.TrimSpace(line)); done {
				return nil
			}
		}
	}
}

func handleLine(ctx context.Context, ctrl *client.Controller, api *client.HTTPClient, me *proto.User, line string) bool {
	switch {
	case line == "":
	case line == "/close":
		return true
	case line == "/users":
		if err := ctrl.LoadSidebar(ctx); err != nil {
			fmt.Println("! load contacts:", err)
			return false
		}
		printContacts(ctrl.Snapshot())
	case strings.HasPrefix(line, "/open "):
		target := resolveContact(ctrl.Snapshot(), strings.TrimSpace(strings.TrimPrefix(line, "/open ")))
		if target == "" {
			fmt.Println("! unknown contact")
			return false
		}
		ctrl.Select(target)
	case strings.HasPrefix(line, "/bio "):
		reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		user, err := api.UpdateProfile(reqCtx, proto.UpdateProfileRequest{
			FullName: me.FullName,
			Bio:      strings.TrimSpace(strings.TrimPrefix(line, "/bio ")),
		})
		if err != nil {
			fmt.Println("! update profile:", err)
			return false
		}
		*me = *user
		fmt.Println("bio updated")
	default:
		sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		req := proto.SendRequest{Text: line}
		if strings.HasPrefix(line, "/img ") {
			req = proto.SendRequest{Image: strings.TrimSpace(strings.TrimPrefix(line, "/img "))}
		}
		if _, err := ctrl.Send(sendCtx, req); err != nil {
			if errors.Is(err, client.ErrNoContactSelected) {
				fmt.Println("! open a conversation first with /open")
				return false
			}
			fmt.Println("! send:", err)
		}
	}
	return false
}

// watch prints conversation changes and notices as they happen.
func watch(ctx context.Context, ctrl *client.Controller) {
	var (
		selected string
		printed  int
	)
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-ctrl.Notices():
			fmt.Printf("! %s: %v\n", n.Op, n.Err)
		case <-ctrl.Changed():
			st := ctrl.Snapshot()
			if st.Selected != selected {
				selected, printed = st.Selected, 0
				fmt.Printf("--- conversation with %s ---\n", contactName(st, selected))
			}
			for _, m := range st.Messages[min(printed, len(st.Messages)):] {
				printMessage(st, m)
			}
			printed = len(st.Messages)
		}
	}
}

func printContacts(st client.State) {
	for i, u := range st.Contacts {
		marker := " "
		if slices.Contains(st.Online, u.ID) {
			marker = "*"
		}
		unseen := ""
		if n := st.Unseen[u.ID]; n > 0 {
			unseen = fmt.Sprintf(" (%d new)", n)
		}
		fmt.Printf("%2d %s %s <%s>%s\n", i+1, marker, u.FullName, u.Email, unseen)
	}
}

func printMessage(st client.State, m proto.Message) {
	who := "you"
	if m.SenderID != st.Self {
		who = contactName(st, m.SenderID)
	}
	body := m.Text
	if m.Image != "" {
		body = strings.TrimSpace(body + " [image " + m.Image + "]")
	}
	fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04"), who, body)
}

func resolveContact(st client.State, arg string) string {
	if n, err := strconv.Atoi(arg); err == nil && n >= 1 && n <= len(st.Contacts) {
		return st.Contacts[n-1].ID
	}
	for _, u := range st.Contacts {
		if u.ID == arg || strings.EqualFold(u.Email, arg) {
			return u.ID
		}
	}
	return ""
}

func contactName(st client.State, id string) string {
	for _, u := range st.Contacts {
		if u.ID == id {
			return u.FullName
		}
	}
	return id
}
