package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"taskflow/cmd/client"
)

var smokeCmd = &cobra.Command{
	Use:   "smoke",
	Short: "Exercise a running server end to end",
	Long: `Logs in (registering the account first with --register), subscribes to the
invalidation feed, creates and deletes a task, and rotates the session. Any
failed step exits non-zero, so the command fits CI.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		var o smokeOptions
		o.baseURL, _ = f.GetString("url")
		o.email, _ = f.GetString("email")
		o.password, _ = f.GetString("password")
		o.register, _ = f.GetBool("register")
		o.stepTimeout, _ = f.GetDuration("timeout")
		return runSmoke(cmd.Context(), cmd.OutOrStdout(), o)
	},
}

func init() {
	smokeCmd.Flags().String("url", "http://127.0.0.1:8080", "Server base URL")
	smokeCmd.Flags().String("email", "smoke@example.com", "Account email")
	smokeCmd.Flags().String("password", "smoke-test-password", "Account password")
	smokeCmd.Flags().Bool("register", false, "Register the account before logging in")
	smokeCmd.Flags().Duration("timeout", 7*time.Second, "Per-step timeout")
	rootCmd.AddCommand(smokeCmd)
}

type smokeOptions struct {
	baseURL     string
	email       string
	password    string
	register    bool
	stepTimeout time.Duration
}

type smokeTask struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func runSmoke(parent context.Context, out io.Writer, o smokeOptions) error {
	c, err := client.New(o.baseURL)
	if err != nil {
		return err
	}
	step := func(name string, fn func(ctx context.Context) error) error {
		ctx, cancel := context.WithTimeout(parent, o.stepTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			return fmt.Errorf("smoke: %s: %w", name, err)
		}
		return nil
	}

	if o.register {
		err := step("register", func(ctx context.Context) error {
			err := c.SendJSON(ctx, "POST", "/api/auth/register", map[string]string{
				"email": o.email, "password": o.password, "userName": "smoke",
			}, nil)
			if client.CodeOf(err) == "email_taken" {
				return nil
			}
			return err
		})
		if err != nil {
			return err
		}
	}

	var user client.User
	if err := step("login", func(ctx context.Context) (err error) {
		user, err = c.Login(ctx, o.email, o.password)
		return err
	}); err != nil {
		return err
	}

	var feed *client.Feed
	if err := step("subscribe", func(ctx context.Context) (err error) {
		if feed, err = c.DialFeed(ctx); err != nil {
			return err
		}
		return expectEvent(ctx, feed, "tasks.subscribed")
	}); err != nil {
		return err
	}
	defer feed.Close()

	var created struct {
		Task smokeTask `json:"task"`
	}
	title := fmt.Sprintf("smoke-%d", time.Now().UnixNano())
	if err := step("create", func(ctx context.Context) error {
		if err := c.SendJSON(ctx, "POST", "/api/tasks", map[string]string{"title": title}, &created); err != nil {
			return err
		}
		return expectEvent(ctx, feed, "tasks.invalidated")
	}); err != nil {
		return err
	}

	if err := step("list", func(ctx context.Context) error {
		var list struct {
			Tasks []smokeTask `json:"tasks"`
		}
		if err := c.GetJSON(ctx, "/api/tasks", &list); err != nil {
			return err
		}
		for _, t := range list.Tasks {
			if t.ID == created.Task.ID {
				return nil
			}
		}
		return fmt.Errorf("task %s missing from list", created.Task.ID)
	}); err != nil {
		return err
	}

	if err := step("rotate", c.Refresh); err != nil {
		return err
	}

	if err := step("delete", func(ctx context.Context) error {
		if err := c.SendJSON(ctx, "DELETE", "/api/tasks/"+created.Task.ID, nil, nil); err != nil {
			return err
		}
		return expectEvent(ctx, feed, "tasks.invalidated")
	}); err != nil {
		return err
	}

	if err := step("logout", c.Logout); err != nil {
		return err
	}

	fmt.Fprintf(out, "OK: principal=%s task=%s\n", user.ID, created.Task.ID)
	return nil
}

// expectEvent skips pongs until an event of type want arrives.
func expectEvent(ctx context.Context, feed *client.Feed, want string) error {
	for {
		ev, err := feed.Next(ctx)
		if err != nil {
			return err
		}
		switch ev.Type {
		case want:
			return nil
		case "pong":
		case "error":
			return errors.New(ev.Code + ": " + ev.Message)
		default:
			return fmt.Errorf("got %q, want %q", ev.Type, want)
		}
	}
}
