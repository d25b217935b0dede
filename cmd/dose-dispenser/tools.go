package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sweeney/dose-dispenser/internal/clock"
	"github.com/sweeney/dose-dispenser/internal/config"
	"github.com/sweeney/dose-dispenser/internal/journal"
	"github.com/sweeney/dose-dispenser/internal/kv"
	"github.com/sweeney/dose-dispenser/internal/loop"
	"github.com/sweeney/dose-dispenser/internal/motion"
	"github.com/sweeney/dose-dispenser/internal/network"
	"github.com/sweeney/dose-dispenser/internal/schedule"
	"github.com/sweeney/dose-dispenser/internal/syncer"
)

var (
	heading = color.New(color.Bold)
	good    = color.New(color.FgGreen)
	warn    = color.New(color.FgYellow)
	bad     = color.New(color.FgRed)
)

func openStore(cfg config.Config) (*kv.DiskStore, error) {
	store, err := kv.OpenDisk(cfg.StorePath())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return store, nil
}

func addPrintState(topLevel *cobra.Command, a *app) {
	topLevel.AddCommand(&cobra.Command{
		Use:   "print-state",
		Short: "Print the persisted device state and exit.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.load()
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			printState(cmd.OutOrStdout(), store)
			return nil
		},
	})
}

func printState(w io.Writer, store *kv.DiskStore) {
	label, _ := store.Get(clock.StoreKey)
	clk := clock.New(time.Now, string(label))
	slot, err := store.Get(motion.SlotKey)
	if err != nil {
		slot = []byte("1")
	}

	heading.Fprintln(w, "Device")
	fmt.Fprintf(w, "  clock: %s\n", clk.Render())
	fmt.Fprintf(w, "  slot:  %s\n", slot)

	heading.Fprintln(w, "Schedule")
	cache := schedule.NewCache(store, clk)
	for _, cat := range schedule.Categories {
		if !cache.EnsureLoaded(cat) {
			fmt.Fprintf(w, "  %-8s %s\n", cat, warn.Sprint("no cache"))
			continue
		}
		cc := cache.Get(cat)
		fmt.Fprintf(w, "  %-8s %d records (updated %s)\n", cat, len(cc.Records), cc.UpdatedAt)
		for _, r := range cc.Records {
			fmt.Fprintf(w, "    %s  %s %s (slot %d)\n", clock.Format12h(r.ScheduledTime), r.Name, r.Dose, r.Slot)
		}
	}

	heading.Fprintln(w, "WiFi")
	creds := network.LoadCreds(store).List()
	if len(creds) == 0 {
		fmt.Fprintf(w, "  %s\n", warn.Sprint("no saved networks"))
	}
	for _, c := range creds {
		fmt.Fprintf(w, "  %s\n", c.SSID)
	}

	heading.Fprintln(w, "Store")
	if _, err := store.Get(syncer.ProfileKey); err == nil {
		fmt.Fprintf(w, "  profile: %s\n", good.Sprint("cached"))
	} else {
		fmt.Fprintf(w, "  profile: %s\n", warn.Sprint("none"))
	}
	keys := store.Keys()
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s\n", k)
	}
}

// withMotion runs fn against a motion controller on the configured hardware.
// The persisted slot is loaded first.
func withMotion(a *app, fn func(*motion.Controller) error) error {
	cfg, err := a.load()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	hw, closeHW, err := openHardware(cfg)
	if err != nil {
		return err
	}
	defer closeHW()

	l := loop.New(time.Now, loop.NopLocker{})
	ctl := motion.New(motionConfig(cfg), hw.Stepper, hw.Servo, hw.Presence, store, l)
	ctl.LoadPosition()
	return fn(ctl)
}

func intArg(s, name string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a number", name, s)
	}
	return n, nil
}

func addMotion(topLevel *cobra.Command, a *app) {
	topLevel.AddCommand(&cobra.Command{
		Use:   "move-slot N",
		Short: "Turn the carousel to compartment N.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := intArg(args[0], "slot")
			if err != nil {
				return err
			}
			return withMotion(a, func(ctl *motion.Controller) error {
				ctl.MoveToSlot(n)
				fmt.Fprintf(cmd.OutOrStdout(), "slot %d\n", ctl.State().Slot)
				return nil
			})
		},
	})

	topLevel.AddCommand(&cobra.Command{
		Use:   "jog STEPS",
		Short: "Drive the stepper by a signed number of steps without moving the slot model.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := intArg(args[0], "steps")
			if err != nil {
				return err
			}
			return withMotion(a, func(ctl *motion.Controller) error {
				ctl.Jog(n)
				return nil
			})
		},
	})

	topLevel.AddCommand(&cobra.Command{
		Use:   "servo DEG",
		Short: "Set the lid servo to an angle between 0 and 180.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deg, err := intArg(args[0], "angle")
			if err != nil {
				return err
			}
			if deg < 0 || deg > 180 {
				return fmt.Errorf("angle %d out of range 0..180", deg)
			}
			return withMotion(a, func(ctl *motion.Controller) error {
				ctl.SetAngle(deg)
				return nil
			})
		},
	})
}

func addHistory(topLevel *cobra.Command, a *app) {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent dispense events and report deliveries.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.load()
			if err != nil {
				return err
			}
			j, err := journal.Open(cfg.JournalPath())
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer j.Close()

			entries, err := j.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), entries)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries (0 for all)")
	topLevel.AddCommand(cmd)
}

func printHistory(w io.Writer, entries []journal.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "no history")
		return
	}
	for _, e := range entries {
		at := e.At.Local().Format("2006-01-02 15:04:05")
		switch e.Kind {
		case journal.KindReport:
			outcome := good.Sprint("ok")
			if e.Outcome != "" {
				outcome = bad.Sprint(e.Outcome)
			}
			fmt.Fprintf(w, "%s  report  %-12s %s %s\n", at, e.Type, e.DoseID, outcome)
		default:
			fmt.Fprintf(w, "%s  %-7s %-12s %s %s (slot %d)\n", at, e.Kind, e.Type, e.Name, e.Dose, e.Slot)
		}
	}
}

func addWiFi(topLevel *cobra.Command, a *app) {
	cmd := &cobra.Command{
		Use:   "wifi",
		Short: "Manage remembered WiFi networks.",
	}

	var connect bool
	add := &cobra.Command{
		Use:   "add SSID [PASSWORD]",
		Short: "Remember a network, optionally joining it now.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.load()
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			password := ""
			if len(args) == 2 {
				password = args[1]
			}
			if connect {
				ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
				defer cancel()
				if err := network.NewNMCLI().Connect(ctx, args[0], password); err != nil {
					return err
				}
			}
			if err := network.LoadCreds(store).Add(args[0], password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %q\n", args[0])
			return nil
		},
	}
	add.Flags().BoolVar(&connect, "connect", false, "join the network before saving it")

	list := &cobra.Command{
		Use:   "list",
		Short: "List remembered networks, most recent first.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.load()
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			creds := network.LoadCreds(store).List()
			if len(creds) == 0 {
				return errors.New("no saved networks")
			}
			for _, c := range creds {
				fmt.Fprintln(cmd.OutOrStdout(), c.SSID)
			}
			return nil
		},
	}

	cmd.AddCommand(add, list)
	topLevel.AddCommand(cmd)
}
