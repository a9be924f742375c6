package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/rjboer/limetrx/internal/frontend"
	"github.com/rjboer/limetrx/internal/frontend/soapy"
	"github.com/rjboer/limetrx/internal/logging"
	"github.com/rjboer/limetrx/internal/params"
	"github.com/rjboer/limetrx/internal/trx"
)

type cli struct {
	LogLevel  string `help:"Log level (debug, info, warn, error)" default:"info"`
	LogFormat string `help:"Log format (text, json, logfmt)" default:"text"`

	Probe struct {
		Driver string `help:"SoapySDR driver to match" default:"lime"`
	} `cmd:"" help:"List SoapySDR modules and matching devices"`

	Run struct {
		Config    string    `help:"HCL parameter file; LIMETRX_* environment variables override it"`
		Mock      bool      `help:"Use the in-memory recording front-end instead of hardware"`
		MinRate   float64   `help:"Minimum sample rate in Hz when none is configured" default:"1.92e6"`
		Rx        int       `help:"Receive channel count" default:"1"`
		Tx        int       `help:"Transmit channel count" default:"1"`
		RxFreq    float64   `help:"Receive LO in Hz" default:"2.14e9"`
		TxFreq    float64   `help:"Transmit LO in Hz" default:"1.95e9"`
		RxGain    []float64 `help:"Receive gain per channel in dB" default:"30"`
		TxGain    []float64 `help:"Transmit gain per channel in dB" default:"40"`
		Bandwidth float64   `help:"Channel bandwidth in Hz" default:"5e6"`
		Batch     int       `help:"Samples per channel per batch" default:"1020"`
		Batches   int       `help:"Batches to loop back before stopping" default:"100"`
		Latency   int64     `help:"Transmit timestamp lead over receive, in samples" default:"4096"`
	} `cmd:"" help:"Bring up the transceiver and loop received batches back to transmit"`
}

var (
	listDevices = soapy.List
	listModules = soapy.Modules
	openers     = func(mock bool, log logging.Logger) frontend.Opener {
		if mock {
			return frontend.NewMock().Opener()
		}
		return soapy.Opener{Log: log}
	}
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "limetrx:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	var c cli
	parser, err := kong.New(&c,
		kong.Name("limetrx"),
		kong.Description("LMS7002M transceiver driver host"),
		kong.Writers(out, out),
		kong.UsageOnError())
	if err != nil {
		return err
	}
	ctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(c.LogFormat)
	if err != nil {
		return err
	}
	log := logging.New(level, format, out)
	logging.SetDefault(log)

	switch ctx.Command() {
	case "probe":
		return probe(c, out)
	case "run":
		return runTransceiver(c, out, log)
	default:
		return fmt.Errorf("unknown command %q", ctx.Command())
	}
}

func probe(c cli, out io.Writer) error {
	mods := listModules()
	fmt.Fprintf(out, "modules: %d\n", len(mods))
	for _, m := range mods {
		fmt.Fprintf(out, "  %s\n", m)
	}
	devs := listDevices(map[string]string{"driver": c.Probe.Driver})
	fmt.Fprintf(out, "devices: %d\n", len(devs))
	for i, d := range devs {
		keys := make([]string, 0, len(d))
		for k := range d {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for j, k := range keys {
			parts[j] = k + "=" + d[k]
		}
		fmt.Fprintf(out, "  [%d] %s\n", i, strings.Join(parts, ", "))
	}
	return nil
}

func runTransceiver(c cli, out io.Writer, log logging.Logger) error {
	r := c.Run
	src, err := params.Load(r.Config)
	if err != nil {
		return err
	}
	dir := "."
	if r.Config != "" {
		dir = filepath.Dir(r.Config)
	}

	d, err := trx.Init(&trx.HostContext{
		APIVersion: trx.APIVersion,
		Path:       dir,
		Params:     src,
		Opener:     openers(r.Mock, log),
		Logger:     log,
	})
	if err != nil {
		return err
	}
	defer d.End()

	rate, _, err := d.SampleRate(r.MinRate)
	if err != nil {
		return err
	}
	err = d.Start(trx.RadioParams{
		RFPortCount:    1,
		RxChannelCount: r.Rx,
		TxChannelCount: r.Tx,
		RxGain:         r.RxGain,
		TxGain:         r.TxGain,
		RxFreq:         []float64{r.RxFreq},
		TxFreq:         []float64{r.TxFreq},
		RxBandwidth:    []float64{r.Bandwidth},
		TxBandwidth:    []float64{r.Bandwidth},
	})
	if err != nil {
		return err
	}

	batch := r.Batch
	if batch <= 0 {
		batch = d.TxSamplesPerPacket()
	}
	rx := make([][]complex64, r.Rx)
	for i := range rx {
		rx[i] = make([]complex64, batch)
	}
	tx := make([][]complex64, r.Tx)
	for i := range tx {
		if r.Rx > 0 {
			tx[i] = rx[i%r.Rx]
		} else {
			tx[i] = make([]complex64, batch)
		}
	}

	var received, timeouts int
	for i := 0; i < r.Batches; i++ {
		ts, n, err := d.Read(rx, batch)
		if err != nil {
			if errors.Is(err, trx.ErrTimeout) {
				timeouts++
				continue
			}
			return err
		}
		received += n
		if r.Tx == 0 {
			continue
		}
		last := i == r.Batches-1
		if err := d.Write(ts+r.Latency, tx, batch, last); err != nil {
			if !errors.Is(err, trx.ErrTimeout) {
				return err
			}
			timeouts++
		}
	}
	fmt.Fprintf(out, "rate %.0f Hz, format %s, received %d samples/channel, %d timeouts\n",
		rate.Float(), d.Format(), received, timeouts)
	return d.End()
}
