package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/abiosoft/ishell"
	"periph.io/x/conn/v3/physic"

	"robohal-go/types"
	"robohal-go/x/convert"
)

// HAL is the part of hal.Service the shell drives.
type HAL interface {
	Devices() []string
	Reports() []types.Report
	Read(ctx context.Context, dev string, id uint8) (any, error)
	SetAngle(ctx context.Context, id uint8, mask uint16, angle float64) error
	Recover(ctx context.Context, dev string, id uint8) error
}

const commandTimeout = 2 * time.Second

// Shell carries what every command needs.
type Shell struct {
	HAL  HAL
	JSON bool
	Out  io.Writer
}

type command struct {
	name    string
	aliases []string
	help    string
	run     func(ctx context.Context, s *Shell, args []string) error
}

var commands = []command{
	{"devices", []string{"ls"}, "list enabled devices", runDevices},
	{"status", []string{"st"}, "show every device report", runStatus},
	{"read", []string{"r"}, "DEVICE [ID]", runRead},
	{"angle", []string{"a"}, "ID MASK ANGLE (mask may be 0x..; angle in degrees or with a unit, e.g. 90 or 1.2rad)", runAngle},
	{"recover", []string{"rec"}, "DEVICE [ID]", runRecover},
}

// Cmds adapts the command table to ishell.
func (s *Shell) Cmds() []*ishell.Cmd {
	out := make([]*ishell.Cmd, 0, len(commands))
	for _, c := range commands {
		c := c
		out = append(out, &ishell.Cmd{
			Name:    c.name,
			Aliases: c.aliases,
			Help:    c.help,
			Func: func(ic *ishell.Context) {
				ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
				defer cancel()
				if err := c.run(ctx, s, ic.Args); err != nil {
					ic.Err(err)
				}
			},
		})
	}
	return out
}

func (s *Shell) print(v any) error {
	if s.JSON {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(s.Out, string(b))
		return err
	}
	_, err := fmt.Fprintf(s.Out, "%+v\n", v)
	return err
}

func runDevices(_ context.Context, s *Shell, _ []string) error {
	if s.JSON {
		return s.print(s.HAL.Devices())
	}
	for _, d := range s.HAL.Devices() {
		fmt.Fprintln(s.Out, d)
	}
	return nil
}

func runStatus(_ context.Context, s *Shell, _ []string) error {
	reps := s.HAL.Reports()
	if s.JSON {
		return s.print(reps)
	}
	w := tabwriter.NewWriter(s.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DEVICE\tID\tADDR\tSTATE\tFRESH\tRETRY\tINTERVAL\tNEXT")
	for _, r := range reps {
		id := "-"
		if r.ID != nil {
			id = strconv.Itoa(int(*r.ID))
		}
		next := "-"
		if !r.Recovery.NextAttempt.IsZero() {
			next = r.Recovery.NextAttempt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t0x%02x\t%s\t%t\t%d\t%s\t%s\n",
			r.Device, id, r.Addr, r.State, r.Fresh, r.Recovery.RetryCount, r.Recovery.Interval, next)
	}
	return w.Flush()
}

func deviceArgs(args []string) (string, uint8, error) {
	if len(args) < 1 {
		return "", 0, fmt.Errorf("DEVICE required")
	}
	var id uint8
	if len(args) > 1 {
		v, err := strconv.ParseUint(args[1], 0, 8)
		if err != nil {
			return "", 0, fmt.Errorf("invalid ID: %v", err)
		}
		id = uint8(v)
	}
	return args[0], id, nil
}

func runRead(ctx context.Context, s *Shell, args []string) error {
	dev, id, err := deviceArgs(args)
	if err != nil {
		return err
	}
	v, err := s.HAL.Read(ctx, dev, id)
	if err != nil {
		return err
	}
	return s.print(v)
}

func runAngle(ctx context.Context, s *Shell, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("ID MASK ANGLE required")
	}
	id, err := strconv.ParseUint(args[0], 0, 8)
	if err != nil {
		return fmt.Errorf("invalid ID: %v", err)
	}
	mask, err := strconv.ParseUint(args[1], 0, 16)
	if err != nil {
		return fmt.Errorf("invalid MASK: %v", err)
	}
	angle, err := parseDegrees(args[2])
	if err != nil {
		return fmt.Errorf("invalid ANGLE: %v", err)
	}
	if err := s.HAL.SetAngle(ctx, uint8(id), uint16(mask), angle); err != nil {
		return err
	}
	fmt.Fprintln(s.Out, "OK")
	return nil
}

// parseDegrees accepts a bare number of degrees or any angle periph can
// parse ("90°", "45deg", "1.2rad").
func parseDegrees(s string) (float64, error) {
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, nil
	}
	var a physic.Angle
	if err := a.Set(s); err != nil {
		return 0, err
	}
	return convert.Degrees(a), nil
}

func runRecover(ctx context.Context, s *Shell, args []string) error {
	dev, id, err := deviceArgs(args)
	if err != nil {
		return err
	}
	if err := s.HAL.Recover(ctx, dev, id); err != nil {
		return err
	}
	fmt.Fprintln(s.Out, "OK")
	return nil
}
