package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/psylog/internal/app"
	"github.com/dmitrijs2005/psylog/internal/biometric"
	"github.com/dmitrijs2005/psylog/internal/common"
	"github.com/dmitrijs2005/psylog/internal/lock"
	"github.com/spf13/cobra"
)

const maxPinAttempts = 3

func newLockCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Inspect and configure the app lock",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show lock settings and state",
			Args:  cobra.NoArgs,
			RunE:  e.run(lockStatus),
		},
		&cobra.Command{
			Use:   "enable",
			Short: "Require authentication on startup and after the auto-lock delay",
			Args:  cobra.NoArgs,
			RunE: e.run(func(cmd *cobra.Command, a *app.App, _ []string) error {
				if err := a.Policy.SetEnabled(cmd.Context(), true); err != nil {
					return err
				}
				cmd.Println("App lock enabled")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "disable",
			Short: "Turn the app lock off",
			Args:  cobra.NoArgs,
			RunE: e.run(func(cmd *cobra.Command, a *app.App, _ []string) error {
				if err := a.Policy.SetEnabled(cmd.Context(), false); err != nil {
					return err
				}
				cmd.Println("App lock disabled")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "delay <seconds>",
			Short: "Set the auto-lock delay; 0 asks for authentication every time",
			Args:  cobra.ExactArgs(1),
			RunE: e.run(func(cmd *cobra.Command, a *app.App, args []string) error {
				seconds, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("%w: delay must be a number of seconds", common.ErrValidation)
				}
				if err := a.Policy.SetAutoLockDelay(cmd.Context(), seconds); err != nil {
					return err
				}
				cfg, err := a.Policy.Config(cmd.Context())
				if err != nil {
					return err
				}
				cmd.Printf("Auto-lock delay set to %ds\n", cfg.AutoLockDelaySeconds)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "lock",
			Short: "Lock the session now",
			Args:  cobra.NoArgs,
			RunE: e.run(func(cmd *cobra.Command, a *app.App, _ []string) error {
				if err := a.Policy.Lock(cmd.Context()); err != nil {
					return err
				}
				if a.Policy.IsLocked() {
					cmd.Println("Locked")
				} else {
					cmd.Println("App lock is disabled; nothing to lock")
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "unlock",
			Short: "Unlock with the PIN",
			Args:  cobra.NoArgs,
			RunE:  e.run(unlock),
		},
		newHistoryCmd(e),
		newPinCmd(e),
	)
	return cmd
}

func lockStatus(cmd *cobra.Command, a *app.App, _ []string) error {
	ctx := cmd.Context()
	cfg, err := a.Policy.Config(ctx)
	if err != nil {
		return err
	}
	needs, err := a.Policy.NeedsAuthentication(ctx)
	if err != nil {
		return err
	}
	hasPin, err := a.Policy.HasPin(ctx)
	if err != nil {
		return err
	}

	cmd.Printf("Enabled:         %t\n", cfg.Enabled)
	cmd.Printf("Auto-lock delay: %ds\n", cfg.AutoLockDelaySeconds)
	cmd.Printf("PIN set:         %t\n", hasPin)
	cmd.Printf("Locked:          %t\n", a.Policy.IsLocked())
	cmd.Printf("Needs auth:      %t\n", needs)
	if cfg.HasUnlocked() {
		cmd.Printf("Last unlock:     %s\n", time.UnixMilli(cfg.LastUnlockAtEpochMs).Format(time.DateTime))
	} else {
		cmd.Println("Last unlock:     never")
	}
	return nil
}

// pinAuthenticator asks for the PIN on the terminal. Wrong PINs are
// recoverable failures until maxPinAttempts is reached.
func pinAuthenticator(cmd *cobra.Command, a *app.App) biometric.AuthenticatorFunc {
	return func(ctx context.Context, p *biometric.Prompt) {
		for attempt := 1; attempt <= maxPinAttempts; attempt++ {
			pin, err := GetPassword("PIN", cmd.OutOrStdout())
			if err != nil {
				p.Error(err.Error())
				return
			}
			ok, err := a.Policy.VerifyPin(ctx, string(pin))
			common.WipeByteArray(pin)
			if err != nil {
				p.Error(err.Error())
				return
			}
			if ok {
				_ = p.Succeed(ctx, lock.MethodPin)
				return
			}
			p.Failed()
			cmd.Println("Wrong PIN")
		}
		p.Error("too many attempts")
	}
}

func unlock(cmd *cobra.Command, a *app.App, _ []string) error {
	ctx := cmd.Context()
	hasPin, err := a.Policy.HasPin(ctx)
	if err != nil {
		return err
	}
	if !hasPin {
		return fmt.Errorf("%w: no PIN set, use 'psylog lock pin set'", common.ErrValidation)
	}

	out, err := a.Gate.TryPrompt(ctx, pinAuthenticator(cmd, a))
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	switch out.Kind {
	case biometric.OutcomeSuccess:
		cmd.Println("Unlocked")
		return nil
	case biometric.OutcomeSkipped:
		return fmt.Errorf("%w: authentication prompt not available right now", common.ErrBusy)
	default:
		return fmt.Errorf("%w: unlock %s: %s", common.ErrAuthFailed, out.Kind, out.Reason)
	}
}

func newHistoryCmd(e *env) *cobra.Command {
	var clearHistory bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent unlocks, newest first",
		Args:  cobra.NoArgs,
		RunE: e.run(func(cmd *cobra.Command, a *app.App, _ []string) error {
			ctx := cmd.Context()
			if clearHistory {
				if err := a.Policy.ClearAccessHistory(ctx); err != nil {
					return err
				}
				cmd.Println("Access history cleared")
				return nil
			}
			events, err := a.Policy.AccessHistory(ctx)
			if err != nil {
				return err
			}
			if len(events) == 0 {
				cmd.Println("No unlocks recorded")
				return nil
			}
			for _, ev := range events {
				cmd.Printf("%s  %s\n", ev.Time().Format(time.DateTime), ev.Method.Label())
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&clearHistory, "clear", false, "delete the recorded history")
	return cmd
}

func newPinCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pin",
		Short: "Manage the unlock PIN",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "set",
			Short: "Set or replace the PIN (at least 4 digits)",
			Args:  cobra.NoArgs,
			RunE: e.run(func(cmd *cobra.Command, a *app.App, _ []string) error {
				pin, err := GetNewPassword("New PIN", cmd.OutOrStdout())
				if err != nil {
					return err
				}
				defer common.WipeByteArray(pin)
				if err := a.Policy.SetPin(cmd.Context(), string(pin)); err != nil {
					return err
				}
				cmd.Println("PIN saved")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Remove the PIN",
			Args:  cobra.NoArgs,
			RunE: e.run(func(cmd *cobra.Command, a *app.App, _ []string) error {
				if err := a.Policy.ClearPin(cmd.Context()); err != nil {
					return err
				}
				cmd.Println("PIN removed")
				return nil
			}),
		},
	)
	return cmd
}
