package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/urfave/cli.v2"

	"go86/cpu"
	"go86/mem"
)

// parseOrg reads a "seg:off" hex pair, e.g. "1000:0000".
func parseOrg(s string) (mem.SegmentedAddress, error) {
	seg, off, ok := strings.Cut(s, ":")
	if !ok {
		return mem.SegmentedAddress{}, fmt.Errorf("org must be seg:off, got %q", s)
	}
	sv, err := strconv.ParseUint(seg, 16, 16)
	if err != nil {
		return mem.SegmentedAddress{}, err
	}
	ov, err := strconv.ParseUint(off, 16, 16)
	if err != nil {
		return mem.SegmentedAddress{}, err
	}
	return mem.SegmentedAddress{Segment: uint16(sv), Offset: uint16(ov)}, nil
}

func load(c *cli.Context) (*cpu.Cpu, error) {
	if c.Args().Len() != 1 {
		cli.ShowAppHelp(c)
		return nil, cli.Exit("exactly one image file required", 86)
	}

	org, err := parseOrg(c.String("org"))
	if err != nil {
		return nil, err
	}

	image, err := os.ReadFile(c.Args().First())
	if err != nil {
		return nil, err
	}

	C := cpu.New(mem.NewBus())
	if c.Bool("hex") {
		C.LoadProgram(string(image), org)
	} else {
		C.LoadImage(image, org)
	}
	C.Jump(org)

	// a stack somewhere out of the way of small test images
	C.State.SS = org.Segment + 0x1000
	C.State.SetReg16(cpu.RegSP, 0xfffe)
	C.State.DS = org.Segment
	C.State.ES = org.Segment

	if c.Bool("trace") {
		cpu.SetLogger(stderrLogger{})
	}
	return C, nil
}

type stderrLogger struct{}

func (stderrLogger) Logf(format string, v ...any) {
	log.Printf(format, v...)
}

func main() {
	app := &cli.App{
		Name:  "go86",
		Usage: "run a flat real-mode binary on the cfg cpu core",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "org",
				Aliases: []string{"g"},
				Usage:   "load address as seg:off",
				Value:   "1000:0000",
			},
			&cli.BoolFlag{
				Name:  "hex",
				Usage: "image file is whitespace-separated hex text",
			},
			&cli.BoolFlag{
				Name:  "trace",
				Usage: "log evictions, reductions and selector installs to stderr",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "run until hlt",
				ArgsUsage: "image",
				Action: func(c *cli.Context) error {
					C, err := load(c)
					if err != nil {
						return err
					}
					if err := C.Run(); err != nil {
						return err
					}
					fmt.Printf("halted at %s, ax=%04x\n",
						C.State.IPSegmented(), C.State.Reg16(cpu.RegAX))
					return nil
				},
			},
			{
				Name:      "debug",
				Usage:     "step interactively",
				ArgsUsage: "image",
				Action: func(c *cli.Context) error {
					C, err := load(c)
					if err != nil {
						return err
					}
					return C.Debug()
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
