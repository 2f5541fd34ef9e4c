// eppctl is an operator client for EPP servers: greeting, object checks and
// info, and service message polling.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danmuck/eppkit/internal/client"
	"github.com/danmuck/eppkit/internal/extension/secdns"
	logs "github.com/danmuck/eppkit/internal/logging"
	"github.com/danmuck/eppkit/internal/mapping/contact"
	"github.com/danmuck/eppkit/internal/mapping/domain"
	"github.com/danmuck/eppkit/internal/mapping/host"
	"github.com/danmuck/eppkit/internal/protocol/codec"
	"github.com/danmuck/eppkit/internal/protocol/session"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "eppctl: %v\n", err)
		os.Exit(1)
	}
}

type app struct {
	configPath string
	clientID   string
	password   string
	out        io.Writer
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}
	root := &cobra.Command{
		Use:           "eppctl",
		Short:         "EPP client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logs.ConfigureRuntime()
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "cmd/eppctl/config.toml", "eppctl config file")
	root.PersistentFlags().StringVar(&a.clientID, "client-id", "", "override client_id")
	root.PersistentFlags().StringVar(&a.password, "password", "", "override password")

	root.AddCommand(
		a.helloCmd(),
		a.checkCmd(),
		a.infoCmd(),
		a.pollCmd(),
		a.ackCmd(),
	)
	return root
}

func registry() (*codec.Registry, error) {
	reg := codec.NewRegistry()
	for _, register := range []func(*codec.Registry) error{
		domain.Register,
		contact.Register,
		host.Register,
		secdns.Register,
	} {
		if err := register(reg); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func (a *app) config() (clientConfig, error) {
	cfg, err := loadClientConfig(a.configPath)
	if err != nil {
		return clientConfig{}, err
	}
	if a.clientID != "" {
		cfg.Creds.ClientID = a.clientID
	}
	if a.password != "" {
		cfg.Creds.Password = a.password
	}
	return cfg, nil
}

// withSession logs in, runs fn and logs out.
func (a *app) withSession(ctx context.Context, fn func(*session.Session) error) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	reg, err := registry()
	if err != nil {
		return err
	}
	sess, err := client.Connect(ctx, cfg.Session, reg, cfg.Creds)
	if err != nil {
		return err
	}
	runErr := fn(sess)
	if _, err := sess.Logout(ctx); err != nil {
		logs.Warnf("eppctl logout err=%v", err)
	}
	return runErr
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) helloCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hello",
		Short: "Connect and print the server greeting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			reg, err := registry()
			if err != nil {
				return err
			}
			sess := session.New(cfg.Session, reg)
			defer sess.Close()
			greeting, err := sess.Connect(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(greeting)
		},
	}
}

func (a *app) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "check <domain|contact|host> <name>...",
		Short:     "Check object availability",
		Args:      cobra.MinimumNArgs(2),
		ValidArgs: []string{"domain", "contact", "host"},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, names := strings.ToLower(args[0]), args[1:]
			return a.withSession(cmd.Context(), func(sess *session.Session) error {
				var (
					data codec.Component
					err  error
				)
				switch kind {
				case "domain":
					_, data, err = client.NewDomain(sess).AddName(names...).SendCheck(cmd.Context())
				case "contact":
					_, data, err = client.NewContact(sess).AddID(names...).SendCheck(cmd.Context())
				case "host":
					_, data, err = client.NewHost(sess).AddName(names...).SendCheck(cmd.Context())
				default:
					return fmt.Errorf("unknown object kind %q", args[0])
				}
				if err != nil {
					return err
				}
				return a.print(data)
			})
		},
	}
}

func (a *app) infoCmd() *cobra.Command {
	var authInfo string
	cmd := &cobra.Command{
		Use:   "info <domain|contact|host> <name>",
		Short: "Print one object",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, name := strings.ToLower(args[0]), args[1]
			return a.withSession(cmd.Context(), func(sess *session.Session) error {
				var (
					data codec.Component
					err  error
				)
				switch kind {
				case "domain":
					_, data, err = client.NewDomain(sess).AddName(name).SetAuthInfo(authInfo).SendInfo(cmd.Context())
				case "contact":
					_, data, err = client.NewContact(sess).AddID(name).SetAuthInfo(authInfo).SendInfo(cmd.Context())
				case "host":
					_, data, err = client.NewHost(sess).AddName(name).SendInfo(cmd.Context())
				default:
					return fmt.Errorf("unknown object kind %q", args[0])
				}
				if err != nil {
					return err
				}
				return a.print(data)
			})
		},
	}
	cmd.Flags().StringVar(&authInfo, "auth", "", "authInfo password for objects sponsored by another registrar")
	return cmd
}

type pollOutput struct {
	ID        string          `json:"id"`
	Remaining int             `json:"remaining"`
	Message   string          `json:"message"`
	Data      codec.Component `json:"data,omitempty"`
}

func (a *app) pollCmd() *cobra.Command {
	var ack, all bool
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Read queued service messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd.Context(), func(sess *session.Session) error {
				poller := client.NewPoller(sess)
				if all {
					n, err := poller.Drain(cmd.Context(), func(msg client.Message) error {
						return a.print(pollOutput{ID: msg.ID, Remaining: msg.Remaining, Message: msg.Text, Data: msg.Data})
					})
					logs.Infof("eppctl poll drained=%d", n)
					return err
				}
				msg, ok, err := poller.Next(cmd.Context())
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(a.out, "no messages")
					return nil
				}
				if err := a.print(pollOutput{ID: msg.ID, Remaining: msg.Remaining, Message: msg.Text, Data: msg.Data}); err != nil {
					return err
				}
				if ack {
					_, err := poller.Ack(cmd.Context(), msg.ID)
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&ack, "ack", false, "acknowledge the message after printing it")
	cmd.Flags().BoolVar(&all, "all", false, "print and acknowledge every queued message")
	return cmd
}

func (a *app) ackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ack <msgID>",
		Short: "Acknowledge a service message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd.Context(), func(sess *session.Session) error {
				remaining, err := client.NewPoller(sess).Ack(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "acknowledged %s, %d remaining\n", args[0], remaining)
				return nil
			})
		},
	}
}
