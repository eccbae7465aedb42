package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xraph/streampass"
	"github.com/xraph/streampass/flow/sim"
	"github.com/xraph/streampass/pass"
	"github.com/xraph/streampass/tier"
	"github.com/xraph/streampass/types"
)

// errExpectation marks a scenario whose assertions did not hold.
var errExpectation = errors.New("expectation failed")

// Scenario is a replayable sequence of stream lifecycle steps.
type Scenario struct {
	Name string `yaml:"name"`
	// Accounts maps aliases to addresses. Steps may use either.
	Accounts map[string]string `yaml:"accounts"`
	Steps    []Step            `yaml:"steps"`
}

// Step is one scenario action. Which fields apply depends on Op.
type Step struct {
	Op      string   `yaml:"op"`
	Sender  string   `yaml:"sender"`
	To      string   `yaml:"to"`
	Pass    uint64   `yaml:"pass"`
	Rate    string   `yaml:"rate"`
	Seconds int64    `yaml:"seconds"`
	Tiers   []string `yaml:"tiers"`

	// Error, when set, requires the step to fail with a message
	// containing it.
	Error string `yaml:"error"`

	// Assertions for op: expect.
	Tier       *int    `yaml:"tier"`
	TTV        string  `yaml:"ttv"`
	Active     *bool   `yaml:"active"`
	ActivePass *uint64 `yaml:"active_pass"`
	Owner      string  `yaml:"owner"`
}

func loadScenario(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var sc Scenario
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if len(sc.Steps) == 0 {
		return nil, fmt.Errorf("scenario %s has no steps", path)
	}
	return &sc, nil
}

// replayer drives an engine through a scenario on a simulated host.
type replayer struct {
	engine   *streampass.Engine
	host     *sim.Host
	clock    *sim.Clock
	cfg      streampass.Config
	decimals int
	accounts map[string]pass.Address
	seen     map[pass.Address]string
	out      io.Writer
}

func (r *replayer) address(ref string) (pass.Address, error) {
	if addr, ok := r.accounts[ref]; ok {
		return addr, nil
	}
	return pass.ParseAddress(ref)
}

func (r *replayer) subscriber(ref string) (pass.Address, error) {
	addr, err := r.address(ref)
	if err != nil {
		return "", fmt.Errorf("sender %q: %w", ref, err)
	}
	if _, ok := r.seen[addr]; !ok {
		r.seen[addr] = ref
	}
	return addr, nil
}

func (r *replayer) run(ctx context.Context, sc *Scenario) error {
	failures := 0
	for i, step := range sc.Steps {
		err := r.apply(ctx, step)
		switch {
		case errors.Is(err, errExpectation):
			failures++
			fmt.Fprintf(r.out, "step %d (%s): %v\n", i+1, step.Op, err)
			continue
		case step.Error != "":
			if err == nil {
				failures++
				fmt.Fprintf(r.out, "step %d (%s): expected error containing %q\n", i+1, step.Op, step.Error)
			} else if !strings.Contains(err.Error(), step.Error) {
				failures++
				fmt.Fprintf(r.out, "step %d (%s): error %q does not contain %q\n", i+1, step.Op, err, step.Error)
			}
			continue
		case err != nil:
			return fmt.Errorf("step %d (%s): %w", i+1, step.Op, err)
		}
	}

	if err := r.summary(ctx); err != nil {
		return err
	}
	if failures > 0 {
		return fmt.Errorf("%s: %d of %d steps: %w", sc.Name, failures, len(sc.Steps), errExpectation)
	}
	return nil
}

func (r *replayer) apply(ctx context.Context, step Step) error {
	switch step.Op {
	case "advance":
		if step.Seconds <= 0 {
			return fmt.Errorf("advance needs positive seconds")
		}
		r.clock.Advance(time.Duration(step.Seconds) * time.Second)
		return nil
	case "update-tier":
		caller := r.cfg.Owner
		if step.Sender != "" {
			addr, err := r.address(step.Sender)
			if err != nil {
				return fmt.Errorf("sender %q: %w", step.Sender, err)
			}
			caller = addr
		}
		sched, err := tier.ParseSchedule(step.Tiers, r.decimals)
		if err != nil {
			return err
		}
		return r.engine.UpdateTier(ctx, caller, sched)
	}

	sender, err := r.subscriber(step.Sender)
	if err != nil {
		return err
	}

	switch step.Op {
	case "create", "update":
		rate, err := types.ParseBase(step.Rate)
		if err != nil {
			return fmt.Errorf("rate: %w", err)
		}
		if step.Op == "create" {
			return r.host.CreateFlow(ctx, r.cfg.Token, sender, r.cfg.Address, rate, nil)
		}
		return r.host.UpdateFlow(ctx, r.cfg.Token, sender, r.cfg.Address, rate, nil)
	case "delete":
		return r.host.DeleteFlow(ctx, r.cfg.Token, sender, r.cfg.Address)
	case "transfer":
		to, err := r.subscriber(step.To)
		if err != nil {
			return err
		}
		return r.engine.TransferFrom(ctx, sender, sender, to, pass.ID(step.Pass))
	case "switch":
		return r.engine.SwitchPass(ctx, sender, pass.ID(step.Pass))
	case "expect":
		return r.expect(ctx, sender, step)
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
}

func (r *replayer) expect(ctx context.Context, sender pass.Address, step Step) error {
	var problems []string

	activeID, err := r.engine.ActivePass(ctx, sender)
	if err != nil {
		return err
	}
	if step.Active != nil && *step.Active == activeID.IsNone() {
		problems = append(problems, fmt.Sprintf("active: got %v, want %v", !activeID.IsNone(), *step.Active))
	}
	if step.ActivePass != nil && pass.ID(*step.ActivePass) != activeID {
		problems = append(problems, fmt.Sprintf("active pass: got %d, want %d", activeID, *step.ActivePass))
	}
	if step.Tier != nil {
		level, err := r.engine.ActiveTier(ctx, sender)
		if err != nil {
			return err
		}
		if level != *step.Tier {
			problems = append(problems, fmt.Sprintf("tier: got %d, want %d", level, *step.Tier))
		}
	}

	target := pass.ID(step.Pass)
	if target.IsNone() {
		target = activeID
	}
	if step.TTV != "" {
		want, err := types.ParseBase(step.TTV)
		if err != nil {
			return fmt.Errorf("ttv: %w", err)
		}
		got, err := r.engine.TTV(ctx, target)
		if err != nil {
			return err
		}
		if !got.Eq(want) {
			problems = append(problems, fmt.Sprintf("ttv of pass %d: got %s, want %s", target, got.Dec(), want.Dec()))
		}
	}
	if step.Owner != "" {
		want, err := r.address(step.Owner)
		if err != nil {
			return fmt.Errorf("owner %q: %w", step.Owner, err)
		}
		got, err := r.engine.OwnerOf(ctx, target)
		if err != nil {
			return err
		}
		if got != want {
			problems = append(problems, fmt.Sprintf("owner of pass %d: got %s, want %s", target, got.Short(), want.Short()))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", errExpectation, strings.Join(problems, "; "))
	}
	return nil
}

// summary prints one row per subscriber seen during the replay.
func (r *replayer) summary(ctx context.Context) error {
	addrs := make([]pass.Address, 0, len(r.seen))
	for addr := range r.seen {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return r.seen[addrs[i]] < r.seen[addrs[j]] })

	tw := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SUBSCRIBER\tPASSES\tACTIVE\tTTV\tTIER")
	for _, addr := range addrs {
		ids, err := r.engine.PassesOf(ctx, addr)
		if err != nil {
			return err
		}
		activeID, err := r.engine.ActivePass(ctx, addr)
		if err != nil {
			return err
		}
		value := "-"
		if !activeID.IsNone() {
			v, err := r.engine.TTV(ctx, activeID)
			if err != nil {
				return err
			}
			value = types.FormatUnits(v, r.decimals)
		}
		level, err := r.engine.ActiveTier(ctx, addr)
		if err != nil {
			return err
		}
		active := "-"
		if !activeID.IsNone() {
			active = fmt.Sprintf("#%d", activeID)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%d\n", r.seen[addr], len(ids), active, value, level)
	}
	return tw.Flush()
}
